package models

import "encoding/json"

type UploadResponse struct {
	Message      string `json:"message"`
	CVID         string `json:"cv_id"`
	SubmissionID string `json:"submission_id"`
}

type EvaluateRequest struct {
	Title        string `json:"title"`
	CVID         string `json:"cv_id"`
	SubmissionID string `json:"submission_id"`
}

type EvaluateResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ResultResponse mirrors a Job for polling clients. Result is embedded as JSON
// when the stored output parses, otherwise as a JSON string.
type ResultResponse struct {
	ID           string          `json:"id"`
	Status       string          `json:"status"`
	Title        string          `json:"title,omitempty"`
	Result       json.RawMessage `json:"result"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}
