package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-evaluation-pipeline/internal/metrics"
	"alfredoptarigan/cv-evaluation-pipeline/internal/models"
	"alfredoptarigan/cv-evaluation-pipeline/internal/repositories"
)

type Producer interface {
	// Enqueue resolves the referenced documents and publishes one evaluation
	// request. It returns repositories.ErrDocumentNotFound without publishing
	// when either document is missing.
	Enqueue(ctx context.Context, jobID, cvID, submissionID uuid.UUID, title string) error
}

type producer struct {
	docRepo repositories.DocumentRepository
	broker  *QueueBroker
	log     *zap.Logger
}

func NewProducer(docRepo repositories.DocumentRepository, broker *QueueBroker, log *zap.Logger) Producer {
	return &producer{docRepo: docRepo, broker: broker, log: log}
}

func (p *producer) Enqueue(ctx context.Context, jobID, cvID, submissionID uuid.UUID, title string) error {
	cv, err := p.docRepo.FindByID(ctx, cvID)
	if err != nil {
		return fmt.Errorf("failed to load CV: %w", err)
	}

	submission, err := p.docRepo.FindByID(ctx, submissionID)
	if err != nil {
		return fmt.Errorf("failed to load submission: %w", err)
	}

	body, err := json.Marshal(models.EvaluationRequest{
		CV:         cv.Content,
		Submission: submission.Content,
		JobID:      jobID.String(),
		Title:      title,
	})
	if err != nil {
		return fmt.Errorf("failed to encode evaluation request: %w", err)
	}

	ch, err := p.broker.Open(ctx)
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Declare(ctx); err != nil {
		return err
	}

	messageID, err := ch.Publish(ctx, body)
	if err != nil {
		return err
	}

	metrics.JobsEnqueued.Inc()
	p.log.Info("evaluation request enqueued",
		zap.String("job_id", jobID.String()),
		zap.String("message_id", messageID))

	return nil
}
