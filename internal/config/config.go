package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"

	BackendMemory   = "memory"
	BackendWeaviate = "weaviate"

	DispatchInProcess = "inprocess"
	DispatchNSQ       = "nsq"
)

type Config struct {
	// Providers
	LLMProvider    string `envconfig:"LLM_PROVIDER" default:"gemini"`
	GeminiAPIKey   string `envconfig:"GEMINI_API_KEY"`
	OpenAIAPIKey   string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL  string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL"`
	ChatModel      string `envconfig:"CHAT_MODEL"`
	RerankProvider string `envconfig:"RERANK_PROVIDER"`
	RerankAPIKey   string `envconfig:"RERANK_API_KEY"`

	// Retrieval
	SourcePath     string `envconfig:"SOURCE_PATH" default:"data/Nubank_2025-06-20.pdf"`
	RetrievalTopK  int    `envconfig:"RETRIEVAL_TOP_K" default:"4"`
	EmbedBatchSize int    `envconfig:"EMBED_BATCH_SIZE" default:"100"`
	IndexCache     bool   `envconfig:"INDEX_CACHE" default:"true"`
	VectorBackend  string `envconfig:"VECTOR_BACKEND" default:"memory"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	// Dispatch
	DispatchMode string `envconfig:"DISPATCH_MODE" default:"inprocess"`
	NSQLookupd   string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost     string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP     string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	// questions handled concurrently by one consumer
	NSQMaxInFlight int `envconfig:"NSQ_MAX_IN_FLIGHT" default:"32"`

	RunTimeoutSeconds int `envconfig:"RUN_TIMEOUT_SECONDS" default:"120"`

	// Run store
	EnableRunStore bool   `envconfig:"ENABLE_RUN_STORE" default:"false"`
	DBHost         string `envconfig:"DB_HOST" default:"postgres"`
	DBPort         int    `envconfig:"DB_PORT" default:"5432"`
	DBUser         string `envconfig:"DB_USER" default:"ragfinance"`
	DBPass         string `envconfig:"DB_PASS" default:"password"`
	DBName         string `envconfig:"DB_NAME" default:"ragfinance"`
	MigrationPath  string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Server
	ServerPort    int    `envconfig:"SERVER_PORT" default:"8000"`
	AnswerLogPath string `envconfig:"ANSWER_LOG_PATH" default:"data/logs/answers.log"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	_ = godotenv.Load(filepath.Join(cwd, "../.env"))

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY", ErrMissingRequired)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: LLM_PROVIDER=%q", ErrInvalidValue, c.LLMProvider)
	}

	if c.SourcePath == "" {
		return fmt.Errorf("%w: SOURCE_PATH", ErrMissingRequired)
	}
	if c.RetrievalTopK < 0 {
		return fmt.Errorf("%w: RETRIEVAL_TOP_K=%d", ErrInvalidValue, c.RetrievalTopK)
	}

	switch c.VectorBackend {
	case BackendMemory, BackendWeaviate:
	default:
		return fmt.Errorf("%w: VECTOR_BACKEND=%q", ErrInvalidValue, c.VectorBackend)
	}

	switch c.DispatchMode {
	case DispatchInProcess, DispatchNSQ:
	default:
		return fmt.Errorf("%w: DISPATCH_MODE=%q", ErrInvalidValue, c.DispatchMode)
	}

	if c.EnableRunStore {
		if c.DBHost == "" {
			return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
		}
		if c.DBUser == "" {
			return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
		}
		if c.DBName == "" {
			return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
		}
	}
	return nil
}

func (c *Config) RunTimeout() time.Duration {
	return time.Duration(c.RunTimeoutSeconds) * time.Second
}

func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.BootstrapRetryDelaySeconds) * time.Second
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPass, c.DBName)
}
