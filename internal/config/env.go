package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `validate:"required"`
	SslCertPath string
	EmbedDim    int `validate:"gt=0"`

	EmbedProvider string `validate:"oneof=openai gemini"`
	EmbedModel    string `validate:"required"`
	OpenAIAPIKey  string `validate:"required_if=EmbedProvider openai"`
	OpenAIBaseURL string
	GeminiAPIKey  string `validate:"required_if=EmbedProvider gemini"`

	ChunkSize           int     `validate:"gt=0"`
	ChunkOverlap        int     `validate:"gte=0,ltfield=ChunkSize"`
	MinChunkLength      int     `validate:"gte=0,ltefield=ChunkSize"`
	MinContentLength    int     `validate:"gte=0"`
	MinKeywordHits      int     `validate:"gte=0"`
	RepetitionThreshold float64 `validate:"gte=0,lte=1"`

	EmbedBatchSize int           `validate:"gt=0"`
	FilesPerBatch  int           `validate:"gt=0"`
	MaxRetries     int           `validate:"gt=0"`
	RetryBaseDelay time.Duration `validate:"gte=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
	EmbedDelay     time.Duration `validate:"gte=0"`
	BatchDelay     time.Duration `validate:"gte=0"`
	EmbedRPS       float64       `validate:"gte=0"`

	CheckpointPath  string `validate:"required"`
	CollectionsFile string `validate:"required"`
	MinPassRate     float64 `validate:"gte=0,lte=100"`
	SampleCheckSize int     `validate:"gte=0"`

	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	ReportBucket string

	StatusAddr string
	JWTSecret  string
	LogLevel   string `validate:"oneof=debug info warn error"`
	LogFormat  string `validate:"oneof=text json"`
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	provider := getEnv("EMBED_PROVIDER", "openai")

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),
		EmbedDim:    getEnvInt("EMBED_DIM", defaultEmbedDim(provider)),

		EmbedProvider: provider,
		EmbedModel:    getEnv("EMBED_MODEL", defaultEmbedModel(provider)),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),

		ChunkSize:           getEnvInt("CHUNK_SIZE", 800),
		ChunkOverlap:        getEnvInt("CHUNK_OVERLAP", 100),
		MinChunkLength:      getEnvInt("MIN_CHUNK_LENGTH", 50),
		MinContentLength:    getEnvInt("MIN_CONTENT_LENGTH", 150),
		MinKeywordHits:      getEnvInt("MIN_KEYWORD_HITS", 2),
		RepetitionThreshold: getEnvFloat("REPETITION_THRESHOLD", 0.5),

		EmbedBatchSize: getEnvInt("EMBED_BATCH_SIZE", 15),
		FilesPerBatch:  getEnvInt("FILES_PER_BATCH", 500),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay: getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),
		EmbedDelay:     getEnvDuration("EMBED_DELAY", 500*time.Millisecond),
		BatchDelay:     getEnvDuration("BATCH_DELAY", 2*time.Second),
		EmbedRPS:       getEnvFloat("EMBED_RPS", 0),

		CheckpointPath:  getEnv("CHECKPOINT_PATH", "./ingest-progress.json"),
		CollectionsFile: getEnv("COLLECTIONS_FILE", "collections.toml"),
		MinPassRate:     getEnvFloat("MIN_PASS_RATE", 5.0),
		SampleCheckSize: getEnvInt("SAMPLE_CHECK_SIZE", 500),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		ReportBucket: getEnv("REPORT_BUCKET", ""),

		StatusAddr: getEnv("STATUS_ADDR", ""),
		JWTSecret:  getEnv("JWT_SECRET", ""),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "text"),
	}

	return cfg
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func defaultEmbedModel(provider string) string {
	if provider == "gemini" {
		return "gemini-embedding-001"
	}
	return "text-embedding-3-small"
}

func defaultEmbedDim(provider string) int {
	if provider == "gemini" {
		return 3072
	}
	return 1536
}

// HasAWSCredentials reports whether S3 access is configured.
func (c *Config) HasAWSCredentials() bool {
	return c.AwsAccessKey != "" && c.AwsSecretKey != ""
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("env value is not an int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("env value is not a float, using default", "key", key, "value", v, "default", def)
		return def
	}
	return f
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("env value is not a duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
