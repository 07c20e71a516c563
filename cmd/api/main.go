package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"alfredoptarigan/cv-evaluation-pipeline/internal/bootstrap"
	"alfredoptarigan/cv-evaluation-pipeline/internal/config"
	"alfredoptarigan/cv-evaluation-pipeline/internal/handlers"
	"alfredoptarigan/cv-evaluation-pipeline/internal/logger"
	"alfredoptarigan/cv-evaluation-pipeline/internal/services"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx := context.Background()

	app, err := bootstrap.Build(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize application", zap.Error(err))
	}
	defer app.Close()

	storageService := services.NewStorageService(cfg.Storage.UploadPath)
	if err := storageService.EnsureUploadDir(); err != nil {
		zlog.Fatal("failed to create upload directory", zap.Error(err))
	}

	if cfg.Worker.Embedded {
		app.Worker.Start(ctx)
	}

	uploadHandler := handlers.NewUploadHandler(
		app.DocRepo,
		storageService,
		services.NewPDFParserService(),
		cfg.Storage.MaxFileSize,
		zlog,
	)
	evaluateHandler := handlers.NewEvaluationHandler(
		app.JobRepo,
		app.DocRepo,
		app.Producer,
		zlog,
	)
	resultHandler := handlers.NewResultHandler(app.JobRepo)

	server := fiber.New(fiber.Config{
		AppName:      "Candidate Evaluation Pipeline API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    int(cfg.Storage.MaxFileSize) * 2,
		ErrorHandler: handlers.ErrorHandler,
	})

	server.Use(recover.New())
	server.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	server.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	handlers.RegisterRoutes(server.Group("/api/v1"), uploadHandler, evaluateHandler, resultHandler)
	server.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	server.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to candidate evaluator!",
			"endpoints": []string{
				"POST /api/v1/upload",
				"POST /api/v1/evaluate",
				"GET /api/v1/result/:id",
				"GET /api/v1/health",
				"GET /metrics",
			},
		})
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		zlog.Info("shutting down server")
		if cfg.Worker.Embedded {
			app.Worker.Stop()
		}
		if err := server.Shutdown(); err != nil {
			zlog.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	zlog.Info("server starting", zap.String("addr", addr), zap.Bool("embedded_worker", cfg.Worker.Embedded))

	if err := server.Listen(addr); err != nil {
		zlog.Fatal("failed to start server", zap.Error(err))
	}
}
