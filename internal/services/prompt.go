package services

import (
	"fmt"
	"strings"
)

// NoReferenceContext stands in for the rubric when retrieval finds nothing.
const NoReferenceContext = "No reference document found."

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildSystemPrompt creates the evaluator instruction around the retrieved ground truth
func (pb *PromptBuilder) BuildSystemPrompt(rubricContext string) string {
	return fmt.Sprintf(`You are an AI evaluator with 100%% rate accuracy.
Evaluate the candidate's CV and project report based on the given ground truth
(the reference documents retrieved for this evaluation), including the scoring rubric:

%s

Provide detailed feedback and a score following each specific material or section
in the ground truth scoring rubric document.

Then you must always return ONLY a JSON string that follows this exact format
(no explanation, no markdown, no extra text):

{
  "result": {
    "cv_match_rate": <number>,
    "cv_feedback": "<string>",
    "project_score": <number>,
    "project_feedback": "<string>",
    "overall_summary": "<string>"
  }
}`, rubricContext)
}

// BuildUserPrompt carries the candidate material verbatim
func (pb *PromptBuilder) BuildUserPrompt(cv, submission string) string {
	return fmt.Sprintf("cv: %s,\nprojectSubmission: %s", cv, submission)
}

// FormatRubricContext joins the selected reference documents. A single
// document is used as-is.
func FormatRubricContext(docs []SearchResult) string {
	var kept []SearchResult
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) != "" {
			kept = append(kept, doc)
		}
	}

	switch len(kept) {
	case 0:
		return NoReferenceContext
	case 1:
		return strings.TrimSpace(kept[0].Text)
	}

	parts := make([]string, 0, len(kept))
	for i, doc := range kept {
		parts = append(parts, fmt.Sprintf("--- Reference %d (%s) ---\n%s", i+1, doc.ID, strings.TrimSpace(doc.Text)))
	}
	return strings.Join(parts, "\n\n")
}
