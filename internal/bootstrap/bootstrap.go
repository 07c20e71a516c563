package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"alfredoptarigan/cv-evaluation-pipeline/internal/config"
	"alfredoptarigan/cv-evaluation-pipeline/internal/repositories"
	"alfredoptarigan/cv-evaluation-pipeline/internal/services"
)

// App holds the dependencies shared by the API and worker binaries.
type App struct {
	Config    *config.Config
	Log       *zap.Logger
	DB        *gorm.DB
	DocRepo   repositories.DocumentRepository
	JobRepo   repositories.JobRepository
	Broker    *services.QueueBroker
	Producer  services.Producer
	Gemini    services.GeminiService
	Qdrant    services.QdrantService
	Evaluator services.EvaluatorService
	Worker    services.Worker
}

// Build connects every backing service and wires the pipeline. The worker is
// built but not started.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := config.InitDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	docRepo := repositories.NewDocumentRepository(db)
	jobRepo := repositories.NewJobRepository(db)

	broker := services.NewQueueBroker(config.NewRedisDialer(cfg.Redis), services.QueueOptions{
		Stream:         cfg.Queue.Name,
		Group:          cfg.Queue.Group,
		DeadLetter:     cfg.Queue.DeadLetter,
		BlockTimeout:   cfg.Queue.BlockTimeout,
		RedeliverAfter: cfg.Queue.RedeliverAfter,
		BatchSize:      cfg.Queue.BatchSize,
	})

	gemini, err := services.NewGeminiService(ctx, services.GeminiOptions{
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		EmbedModel:  cfg.Gemini.EmbedModel,
		Temperature: cfg.Gemini.Temperature,
	}, log)
	if err != nil {
		return nil, err
	}

	qdrant, err := services.NewQdrantService(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, cfg.Qdrant.VectorSize, log)
	if err != nil {
		return nil, err
	}
	if err := qdrant.InitCollection(ctx); err != nil {
		return nil, err
	}

	retriever := services.NewRetriever(gemini, qdrant, services.RetrievalOptions{
		Mode: cfg.Retrieval.Mode,
		TopK: cfg.Retrieval.TopK,
	}, log)
	evaluator := services.NewEvaluatorService(retriever, gemini, log)

	worker := services.NewWorker(broker, jobRepo, evaluator, services.WorkerOptions{
		ID:                    cfg.Worker.ID,
		RetryMaxAttempts:      cfg.Worker.RetryMaxAttempts,
		LeaseTTL:              cfg.Worker.LeaseTTL,
		EvaluationTimeout:     cfg.Worker.EvaluationTimeout,
		ReconnectInitialDelay: cfg.Worker.ReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.Worker.ReconnectMaxDelay,
	}, log)

	log.Info("pipeline wired",
		zap.String("queue", cfg.Queue.Name),
		zap.String("collection", cfg.Qdrant.Collection),
		zap.String("retrieval_mode", cfg.Retrieval.Mode),
		zap.String("worker_id", cfg.Worker.ID))

	return &App{
		Config:    cfg,
		Log:       log,
		DB:        db,
		DocRepo:   docRepo,
		JobRepo:   jobRepo,
		Broker:    broker,
		Producer:  services.NewProducer(docRepo, broker, log),
		Gemini:    gemini,
		Qdrant:    qdrant,
		Evaluator: evaluator,
		Worker:    worker,
	}, nil
}

// Close releases the database pool.
func (a *App) Close() {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		a.Log.Warn("failed to close database", zap.Error(err))
	}
}
