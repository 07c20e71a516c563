package handlers

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(api fiber.Router, upload *UploadHandler, evaluate *EvaluationHandler, result *ResultHandler) {
	api.Get("/health", HandleHealth)
	api.Post("/upload", upload.HandleUpload)
	api.Post("/evaluate", evaluate.HandleEvaluate)
	api.Get("/result/:id", result.HandleGetResult)
}
