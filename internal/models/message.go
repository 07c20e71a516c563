package models

// EvaluationRequest is the queue message body. It carries the resolved CV and
// submission text so the worker never re-reads the document store.
type EvaluationRequest struct {
	CV         string `json:"cv"`
	Submission string `json:"submission"`
	JobID      string `json:"jobId"`
	Title      string `json:"title"`
}

// EvaluationResult is the verdict the model is instructed to return.
type EvaluationResult struct {
	CVMatchRate     float64 `json:"cv_match_rate"`
	CVFeedback      string  `json:"cv_feedback"`
	ProjectScore    float64 `json:"project_score"`
	ProjectFeedback string  `json:"project_feedback"`
	OverallSummary  string  `json:"overall_summary"`
}

// EvaluationEnvelope is the top-level object wrapping EvaluationResult.
type EvaluationEnvelope struct {
	Result EvaluationResult `json:"result"`
}
