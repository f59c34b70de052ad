// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Embedding providers
const (
	EmbeddingTFIDF  = "tfidf"
	EmbeddingOpenAI = "openai"
)

// Model stores
const (
	ModelStoreFile = "file"
	ModelStoreS3   = "s3"
)

// Config holds application configuration
type Config struct {
	DataDir         string // Base directory for corpus, cache and models (always absolute)
	CorpusPath      string // Explicit corpus file; empty = data/raw/lot_details.json or real_lots.json
	LabelsPath      string // Optional CSV of human labels
	CalibrationPath string // Optional YAML overriding scoring constants
	CacheDBPath     string
	ModelsDir       string

	LogLevel  string
	LogPretty bool

	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingBaseURL  string
	EmbeddingAPIKey   string

	GraphEnabled bool

	ModelStore        string
	S3                S3Config
	ForceTrain        bool
	ExportTrain       bool
	RealDataThreshold int // 0 keeps the calibration value

	Worker WorkerConfig

	GoszakupBaseURL   string
	GoszakupToken     string
	GoszakupRateLimit int // requests per minute

	MetricsTextfile string
}

// S3Config holds object storage settings for the model store (S3, R2 or MinIO)
type S3Config struct {
	Bucket          string
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
}

// WorkerConfig holds background analysis settings
type WorkerConfig struct {
	BatchSize        int
	BatchPause       time.Duration
	MaxCPUPercent    float64
	MaxMemoryPercent float64
	RefreshSchedule  string
	CleanupSchedule  string
	RetrainSchedule  string
	MetricsSchedule  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TENDERWATCH_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		CorpusPath:      getEnv("CORPUS_PATH", ""),
		LabelsPath:      getEnv("LABELS_PATH", ""),
		CalibrationPath: getEnv("CALIBRATION_PATH", ""),
		CacheDBPath:     getEnv("CACHE_DB_PATH", filepath.Join(absDataDir, "cache", "analysis.db")),
		ModelsDir:       getEnv("MODELS_DIR", filepath.Join(absDataDir, "models")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),

		EmbeddingProvider: strings.ToLower(getEnv("EMBEDDING_PROVIDER", EmbeddingTFIDF)),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", "sentence-transformers/LaBSE"),
		EmbeddingBaseURL:  getEnv("EMBEDDING_BASE_URL", ""),
		EmbeddingAPIKey:   getEnv("EMBEDDING_API_KEY", ""),

		GraphEnabled: getEnvAsBool("GRAPH_ENABLED", true),

		ModelStore: strings.ToLower(getEnv("MODEL_STORE", ModelStoreFile)),
		S3: S3Config{
			Bucket:          getEnv("S3_BUCKET", ""),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "auto"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Prefix:          getEnv("S3_PREFIX", "tenderwatch/models"),
		},
		ForceTrain:        getEnvAsBool("FORCE_TRAIN", false),
		ExportTrain:       getEnvAsBool("EXPORT_TRAIN_DATA", false),
		RealDataThreshold: getEnvAsInt("REAL_DATA_THRESHOLD", 0),

		Worker: WorkerConfig{
			BatchSize:        getEnvAsInt("BATCH_SIZE", 50),
			BatchPause:       getEnvAsDuration("BATCH_PAUSE", 2*time.Second),
			MaxCPUPercent:    getEnvAsFloat("MAX_CPU_PERCENT", 85),
			MaxMemoryPercent: getEnvAsFloat("MAX_MEMORY_PERCENT", 90),
			RefreshSchedule:  getEnv("REFRESH_SCHEDULE", "0 */10 * * * *"),
			CleanupSchedule:  getEnv("CLEANUP_SCHEDULE", "0 30 3 * * *"),
			RetrainSchedule:  getEnv("RETRAIN_SCHEDULE", "0 0 4 * * *"),
			MetricsSchedule:  getEnv("METRICS_SCHEDULE", "@every 30s"),
		},

		GoszakupBaseURL:   getEnv("GOSZAKUP_BASE_URL", "https://ows.goszakup.gov.kz"),
		GoszakupToken:     getEnv("GOSZAKUP_TOKEN", ""),
		GoszakupRateLimit: getEnvAsInt("GOSZAKUP_RATE_LIMIT", 60),

		MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	switch c.EmbeddingProvider {
	case EmbeddingTFIDF:
	case EmbeddingOpenAI:
		if c.EmbeddingBaseURL == "" && c.EmbeddingAPIKey == "" {
			return fmt.Errorf("EMBEDDING_PROVIDER=openai requires EMBEDDING_BASE_URL or EMBEDDING_API_KEY")
		}
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	switch c.ModelStore {
	case ModelStoreFile:
	case ModelStoreS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("MODEL_STORE=s3 requires S3_BUCKET")
		}
	default:
		return fmt.Errorf("unknown MODEL_STORE %q", c.ModelStore)
	}

	if c.Worker.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive, got %d", c.Worker.BatchSize)
	}
	if c.Worker.BatchPause < 0 {
		return fmt.Errorf("BATCH_PAUSE must not be negative")
	}
	if c.RealDataThreshold < 0 {
		return fmt.Errorf("REAL_DATA_THRESHOLD must not be negative, got %d", c.RealDataThreshold)
	}
	if c.GoszakupRateLimit <= 0 {
		return fmt.Errorf("GOSZAKUP_RATE_LIMIT must be positive, got %d", c.GoszakupRateLimit)
	}

	return nil
}

// ResolveCorpusPath returns the corpus file to read.
// An explicit CORPUS_PATH wins; otherwise lot_details.json is preferred over real_lots.json.
func (c *Config) ResolveCorpusPath() string {
	if c.CorpusPath != "" {
		return c.CorpusPath
	}

	rawDir := filepath.Join(c.DataDir, "raw")
	details := filepath.Join(rawDir, "lot_details.json")
	if _, err := os.Stat(details); err == nil {
		return details
	}
	return filepath.Join(rawDir, "real_lots.json")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(value) {
		case "yes", "y", "on":
			return true
		case "no", "n", "off":
			return false
		}
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("2s", "500ms") or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
