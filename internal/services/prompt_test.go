package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatRubricContext(t *testing.T) {
	assert.Equal(t, NoReferenceContext, FormatRubricContext(nil))
	assert.Equal(t, NoReferenceContext, FormatRubricContext([]SearchResult{{ID: "sr-3", Text: "  "}}))
	assert.Equal(t, "rubric body", FormatRubricContext([]SearchResult{{ID: "sr-3", Text: "rubric body\n"}}))

	merged := FormatRubricContext([]SearchResult{
		{ID: "sr-3", Text: "rubric"},
		{ID: "jd-2", Text: ""},
		{ID: "cs-1", Text: "case study"},
	})
	assert.Equal(t, "--- Reference 1 (sr-3) ---\nrubric\n\n--- Reference 2 (cs-1) ---\ncase study", merged)
}

func TestPromptBuilder(t *testing.T) {
	pb := NewPromptBuilder()

	system := pb.BuildSystemPrompt("SCORING RUBRIC TEXT")
	assert.Contains(t, system, "SCORING RUBRIC TEXT")
	assert.Contains(t, system, `"cv_match_rate"`)
	assert.Contains(t, system, `"overall_summary"`)
	assert.Contains(t, system, "100% rate accuracy")

	user := pb.BuildUserPrompt("5 years backend Go experience", "Built a queue-based worker")
	assert.Equal(t, "cv: 5 years backend Go experience,\nprojectSubmission: Built a queue-based worker", user)
}
