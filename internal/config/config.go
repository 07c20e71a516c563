package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

const (
	RetrievalModePrimary = "primary"
	RetrievalModeMerged  = "merged"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Qdrant    QdrantConfig
	Gemini    GeminiConfig
	Retrieval RetrievalConfig
	Storage   StorageConfig
	Worker    WorkerConfig
	Logging   LoggingConfig
	Seed      SeedConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// QueueConfig names the stream, consumer group and dead-letter stream that
// together make up the durable evaluation queue.
type QueueConfig struct {
	Name           string
	Group          string
	DeadLetter     string
	BlockTimeout   time.Duration
	RedeliverAfter time.Duration
	BatchSize      int64
}

type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	VectorSize uint64
}

type GeminiConfig struct {
	APIKey      string
	Model       string
	EmbedModel  string
	Temperature float32
}

type RetrievalConfig struct {
	Mode string
	TopK int
}

type StorageConfig struct {
	UploadPath  string
	MaxFileSize int64
}

type WorkerConfig struct {
	ID                    string
	Embedded              bool
	RetryMaxAttempts      int
	LeaseTTL              time.Duration
	EvaluationTimeout     time.Duration
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

type SeedConfig struct {
	ReferenceDocsPath string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found. Using default values.")
	}

	return &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "3000"),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "ai_cv_evaluator"),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Name:           getEnv("QUEUE_NAME", "cv_evaluation_queue"),
			Group:          getEnv("QUEUE_GROUP", "cv_evaluation_workers"),
			DeadLetter:     getEnv("QUEUE_DEAD_LETTER", "cv_evaluation_queue:dead"),
			BlockTimeout:   getEnvAsDuration("QUEUE_BLOCK_TIMEOUT", "5s"),
			RedeliverAfter: getEnvAsDuration("QUEUE_REDELIVER_AFTER", "30s"),
			BatchSize:      getEnvAsInt64("QUEUE_BATCH_SIZE", 1),
		},
		Qdrant: QdrantConfig{
			URL:        getEnv("QDRANT_URL", "http://localhost:6334"),
			APIKey:     getEnv("QDRANT_API_KEY", ""),
			Collection: getEnv("QDRANT_COLLECTION", "round_thruth"),
			VectorSize: uint64(getEnvAsInt64("QDRANT_VECTOR_SIZE", 768)),
		},
		Gemini: GeminiConfig{
			APIKey:      getEnv("GEMINI_API_KEY", ""),
			Model:       getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			EmbedModel:  getEnv("GEMINI_EMBED_MODEL", "text-embedding-004"),
			Temperature: getEnvAsFloat32("GEMINI_TEMPERATURE", 0.3),
		},
		Retrieval: RetrievalConfig{
			Mode: getEnv("RETRIEVAL_MODE", RetrievalModePrimary),
			TopK: getEnvAsInt("RETRIEVAL_TOP_K", 1),
		},
		Storage: StorageConfig{
			UploadPath:  getEnv("UPLOAD_PATH", "./uploads"),
			MaxFileSize: getEnvAsInt64("MAX_FILE_SIZE", 10485760),
		},
		Worker: WorkerConfig{
			ID:                    getEnv("WORKER_ID", defaultWorkerID()),
			Embedded:              getEnvAsBool("WORKER_EMBEDDED", true),
			RetryMaxAttempts:      getEnvAsInt("RETRY_MAX_ATTEMPTS", 3),
			LeaseTTL:              getEnvAsDuration("LEASE_TTL", "5m"),
			EvaluationTimeout:     getEnvAsDuration("EVALUATION_TIMEOUT", "2m"),
			ReconnectInitialDelay: getEnvAsDuration("RECONNECT_INITIAL_DELAY", "1s"),
			ReconnectMaxDelay:     getEnvAsDuration("RECONNECT_MAX_DELAY", "30s"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
		Seed: SeedConfig{
			ReferenceDocsPath: getEnv("REFERENCE_DOCS_PATH", "./reference_docs"),
		},
	}
}

// Validate rejects combinations the worker cannot run safely with.
func (c *Config) Validate() error {
	switch c.Retrieval.Mode {
	case RetrievalModePrimary, RetrievalModeMerged:
	default:
		return fmt.Errorf("invalid RETRIEVAL_MODE %q: expected %q or %q",
			c.Retrieval.Mode, RetrievalModePrimary, RetrievalModeMerged)
	}

	if c.Retrieval.TopK < 1 {
		return fmt.Errorf("RETRIEVAL_TOP_K must be at least 1, got %d", c.Retrieval.TopK)
	}

	if c.Worker.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.Worker.RetryMaxAttempts)
	}

	if c.Worker.EvaluationTimeout <= 0 {
		return fmt.Errorf("EVALUATION_TIMEOUT must be positive, got %s", c.Worker.EvaluationTimeout)
	}

	// A lease shorter than the evaluation would let a second worker reclaim a job still in flight.
	if c.Worker.LeaseTTL <= c.Worker.EvaluationTimeout {
		return fmt.Errorf("LEASE_TTL (%s) must be greater than EVALUATION_TIMEOUT (%s)",
			c.Worker.LeaseTTL, c.Worker.EvaluationTimeout)
	}

	if c.Queue.Name == "" || c.Queue.Group == "" {
		return fmt.Errorf("QUEUE_NAME and QUEUE_GROUP are required")
	}

	// Zero blocks XREADGROUP indefinitely; negative disables blocking.
	if c.Queue.BlockTimeout == 0 {
		return fmt.Errorf("QUEUE_BLOCK_TIMEOUT must not be zero")
	}

	return nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 32); err == nil {
		return float32(value)
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
