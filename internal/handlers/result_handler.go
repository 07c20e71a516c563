package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/cv-evaluation-pipeline/internal/models"
	"alfredoptarigan/cv-evaluation-pipeline/internal/repositories"
)

type ResultHandler struct {
	jobRepo repositories.JobRepository
}

func NewResultHandler(jobRepo repositories.JobRepository) *ResultHandler {
	return &ResultHandler{
		jobRepo: jobRepo,
	}
}

// HandleGetResult handles GET /result/:id. It only reads, so repeated polls
// return the same body until the worker moves the job.
func (h *ResultHandler) HandleGetResult(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid job ID format",
		})
	}

	job, err := h.jobRepo.FindByID(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Job not found",
			})
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to get result")
	}

	response := models.ResultResponse{
		ID:     job.ID.String(),
		Status: string(job.Status),
		Title:  job.Title,
		Result: rawResult(job.Result),
	}

	if job.Status == models.StatusFailed {
		response.ErrorMessage = job.ErrorMessage
	}

	return c.JSON(response)
}

// rawResult embeds stored model output as JSON when it parses and as a JSON
// string otherwise. The stored text itself is never altered.
func rawResult(result *string) json.RawMessage {
	if result == nil {
		return nil
	}
	if json.Valid([]byte(*result)) {
		return json.RawMessage(*result)
	}
	encoded, _ := json.Marshal(*result)
	return encoded
}
