package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrResultShape = errors.New("evaluation result does not match the expected shape")

const resultSchema = `{
  "type": "object",
  "required": ["result"],
  "properties": {
    "result": {
      "type": "object",
      "required": ["cv_match_rate", "cv_feedback", "project_score", "project_feedback", "overall_summary"],
      "properties": {
        "cv_match_rate":    {"type": "number"},
        "cv_feedback":      {"type": "string"},
        "project_score":    {"type": "number"},
        "project_feedback": {"type": "string"},
        "overall_summary":  {"type": "string"}
      }
    }
  }
}`

var resultSchemaLoader = gojsonschema.NewStringLoader(resultSchema)

// ValidateResult reports whether raw model output has the five-field result
// shape. Scores are not range-checked.
func ValidateResult(raw string) error {
	result, err := gojsonschema.Validate(resultSchemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResultShape, err)
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("%w: %s", ErrResultShape, strings.Join(errs, "; "))
	}

	return nil
}
