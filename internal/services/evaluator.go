package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/cv-evaluation-pipeline/internal/logger"
	"alfredoptarigan/cv-evaluation-pipeline/internal/metrics"
	"alfredoptarigan/cv-evaluation-pipeline/internal/models"
)

type EvaluatorService interface {
	// Evaluate returns the raw model output for one request. The output is
	// never parsed or rewritten.
	Evaluate(ctx context.Context, req models.EvaluationRequest) (string, error)
}

type evaluatorService struct {
	retriever     Retriever
	llm           LanguageModel
	promptBuilder *PromptBuilder
	log           *zap.Logger
}

func NewEvaluatorService(retriever Retriever, llm LanguageModel, log *zap.Logger) EvaluatorService {
	return &evaluatorService{
		retriever:     retriever,
		llm:           llm,
		promptBuilder: NewPromptBuilder(),
		log:           log,
	}
}

func (e *evaluatorService) Evaluate(ctx context.Context, req models.EvaluationRequest) (string, error) {
	log := e.log.With(zap.String("job_id", req.JobID))

	docs, err := e.retriever.Retrieve(ctx, []string{req.Title, req.CV, req.Submission})
	if err != nil {
		return "", fmt.Errorf("failed to retrieve rubric context: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	log.Debug("rubric context selected", zap.Strings("doc_ids", ids))

	system := e.promptBuilder.BuildSystemPrompt(FormatRubricContext(docs))
	user := e.promptBuilder.BuildUserPrompt(req.CV, req.Submission)

	output, err := e.llm.Complete(ctx, system, user)
	if err != nil {
		return "", fmt.Errorf("failed to generate evaluation: %w", err)
	}
	if strings.TrimSpace(output) == "" {
		return "", fmt.Errorf("failed to generate evaluation: %w", ErrEmptyCompletion)
	}

	if err := ValidateResult(output); err != nil {
		metrics.ResultsSchemaInvalid.Inc()
		log.Warn("evaluation output does not match result schema, storing verbatim",
			zap.Error(err),
			zap.String("output_preview", logger.Truncate(output, 200)))
	}

	return output, nil
}
