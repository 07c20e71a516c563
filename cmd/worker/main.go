package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"alfredoptarigan/cv-evaluation-pipeline/internal/bootstrap"
	"alfredoptarigan/cv-evaluation-pipeline/internal/config"
	"alfredoptarigan/cv-evaluation-pipeline/internal/logger"
)

// Standalone consumer for deployments that run the API with WORKER_EMBEDDED=false.
func main() {
	cfg := config.Load()

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to initialize worker", zap.Error(err))
	}
	defer app.Close()

	app.Worker.Start(ctx)
	<-ctx.Done()

	zlog.Info("shutdown signal received")
	app.Worker.Stop()
}
