package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-evaluation-pipeline/internal/models"
	"alfredoptarigan/cv-evaluation-pipeline/internal/repositories"
	"alfredoptarigan/cv-evaluation-pipeline/internal/services"
)

type EvaluationHandler struct {
	jobRepo  repositories.JobRepository
	docRepo  repositories.DocumentRepository
	producer services.Producer
	log      *zap.Logger
}

func NewEvaluationHandler(
	jobRepo repositories.JobRepository,
	docRepo repositories.DocumentRepository,
	producer services.Producer,
	log *zap.Logger,
) *EvaluationHandler {
	return &EvaluationHandler{
		jobRepo:  jobRepo,
		docRepo:  docRepo,
		producer: producer,
		log:      log,
	}
}

// HandleEvaluate handles POST /evaluate
func (h *EvaluationHandler) HandleEvaluate(c *fiber.Ctx) error {
	var req models.EvaluateRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	if strings.TrimSpace(req.Title) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "title is required",
		})
	}

	cvID, err := uuid.Parse(req.CVID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "cv_id is required and must be a valid id",
		})
	}

	submissionID, err := uuid.Parse(req.SubmissionID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "submission_id is required and must be a valid id",
		})
	}

	ctx := c.UserContext()

	// Verify documents exist
	if _, err := h.docRepo.FindByID(ctx, cvID); err != nil {
		return documentLookupError(err, "CV document not found")
	}

	if _, err := h.docRepo.FindByID(ctx, submissionID); err != nil {
		return documentLookupError(err, "Submission document not found")
	}

	job, err := h.jobRepo.Create(ctx, cvID, submissionID, req.Title)
	if err != nil {
		h.log.Error("failed to create job", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create evaluation job",
		})
	}

	if err := h.producer.Enqueue(ctx, job.ID, cvID, submissionID, req.Title); err != nil {
		h.log.Error("failed to enqueue job", zap.String("job_id", job.ID.String()), zap.Error(err))

		// The job would otherwise sit in processing with no message behind it.
		if failErr := h.jobRepo.Fail(ctx, job.ID, "enqueue failed: "+err.Error()); failErr != nil {
			h.log.Error("failed to mark job failed", zap.String("job_id", job.ID.String()), zap.Error(failErr))
		}

		if errors.Is(err, repositories.ErrDocumentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Referenced document not found",
				"id":    job.ID.String(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to enqueue evaluation job",
			"id":    job.ID.String(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(models.EvaluateResponse{
		ID:     job.ID.String(),
		Status: string(job.Status),
	})
}

func documentLookupError(err error, notFoundMsg string) error {
	if errors.Is(err, repositories.ErrDocumentNotFound) {
		return fiber.NewError(fiber.StatusNotFound, notFoundMsg)
	}
	return fiber.NewError(fiber.StatusInternalServerError, "Failed to look up document")
}
