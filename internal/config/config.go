package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/domain"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PDFQA"

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	BackendMemory   = "memory"
	BackendPgvector = "pgvector"
)

type Config struct {
	Port      string `envconfig:"PORT" default:"8080"`
	Debug     bool   `envconfig:"DEBUG" default:"false"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Optional YAML file with pipeline settings
	ConfigFile string `envconfig:"CONFIG_FILE"`

	Provider string `envconfig:"PROVIDER" default:"openai"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL       string `envconfig:"OPENAI_BASE_URL"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	OllamaURL            string            `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	OllamaEmbeddingModel string            `envconfig:"OLLAMA_EMBEDDING_MODEL" default:"nomic-embed-text"`
	OllamaModels         map[string]string `envconfig:"OLLAMA_MODELS"`

	DefaultModel string  `envconfig:"DEFAULT_MODEL" default:"gpt-4"`
	Temperature  float32 `envconfig:"TEMPERATURE" default:"0.1"`

	ChunkSize        int  `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap     int  `envconfig:"CHUNK_OVERLAP" default:"250"`
	TopK             int  `envconfig:"TOP_K" default:"8"`
	HistoryWindow    int  `envconfig:"HISTORY_WINDOW" default:"0"`
	CondenseQuestion bool `envconfig:"CONDENSE_QUESTION" default:"true"`

	EmbedConcurrency int           `envconfig:"EMBED_CONCURRENCY" default:"4"`
	EmbedTimeout     time.Duration `envconfig:"EMBED_TIMEOUT" default:"30s"`
	GenerateTimeout  time.Duration `envconfig:"GENERATE_TIMEOUT" default:"2m"`

	IndexBackend string `envconfig:"INDEX_BACKEND" default:"memory"`
	DatabaseURL  string `envconfig:"DATABASE_URL"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"pdfqa-uploads"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	SessionIdleTTL time.Duration `envconfig:"SESSION_IDLE_TTL" default:"1h"`
	ReaperInterval time.Duration `envconfig:"REAPER_INTERVAL" default:"1m"`
	MaxUploadBytes int64         `envconfig:"MAX_UPLOAD_BYTES" default:"26214400"`
}

// pipelineFile is the YAML overlay. Only pipeline tuning lives here;
// secrets and endpoints stay in the environment.
type pipelineFile struct {
	Provider             *string           `yaml:"provider"`
	EmbeddingModel       *string           `yaml:"embedding_model"`
	EmbeddingDimensions  *int              `yaml:"embedding_dimensions"`
	OllamaEmbeddingModel *string           `yaml:"ollama_embedding_model"`
	OllamaModels         map[string]string `yaml:"ollama_models"`
	DefaultModel         *string           `yaml:"default_model"`
	Temperature          *float32          `yaml:"temperature"`
	ChunkSize            *int              `yaml:"chunk_size"`
	ChunkOverlap         *int              `yaml:"chunk_overlap"`
	TopK                 *int              `yaml:"top_k"`
	HistoryWindow        *int              `yaml:"history_window"`
	CondenseQuestion     *bool             `yaml:"condense_question"`
	EmbedConcurrency     *int              `yaml:"embed_concurrency"`
	EmbedTimeout         *time.Duration    `yaml:"embed_timeout"`
	GenerateTimeout      *time.Duration    `yaml:"generate_timeout"`
	IndexBackend         *string           `yaml:"index_backend"`
	SessionIdleTTL       *time.Duration    `yaml:"session_idle_ttl"`
	MaxUploadBytes       *int64            `yaml:"max_upload_bytes"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file pipelineFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	overlay(&c.Provider, file.Provider, "PROVIDER")
	overlay(&c.EmbeddingModel, file.EmbeddingModel, "EMBEDDING_MODEL")
	overlay(&c.EmbeddingDimensions, file.EmbeddingDimensions, "EMBEDDING_DIMENSIONS")
	overlay(&c.OllamaEmbeddingModel, file.OllamaEmbeddingModel, "OLLAMA_EMBEDDING_MODEL")
	overlay(&c.DefaultModel, file.DefaultModel, "DEFAULT_MODEL")
	overlay(&c.Temperature, file.Temperature, "TEMPERATURE")
	overlay(&c.ChunkSize, file.ChunkSize, "CHUNK_SIZE")
	overlay(&c.ChunkOverlap, file.ChunkOverlap, "CHUNK_OVERLAP")
	overlay(&c.TopK, file.TopK, "TOP_K")
	overlay(&c.HistoryWindow, file.HistoryWindow, "HISTORY_WINDOW")
	overlay(&c.CondenseQuestion, file.CondenseQuestion, "CONDENSE_QUESTION")
	overlay(&c.EmbedConcurrency, file.EmbedConcurrency, "EMBED_CONCURRENCY")
	overlay(&c.EmbedTimeout, file.EmbedTimeout, "EMBED_TIMEOUT")
	overlay(&c.GenerateTimeout, file.GenerateTimeout, "GENERATE_TIMEOUT")
	overlay(&c.IndexBackend, file.IndexBackend, "INDEX_BACKEND")
	overlay(&c.SessionIdleTTL, file.SessionIdleTTL, "SESSION_IDLE_TTL")
	overlay(&c.MaxUploadBytes, file.MaxUploadBytes, "MAX_UPLOAD_BYTES")
	if file.OllamaModels != nil && !envSet("OLLAMA_MODELS") {
		c.OllamaModels = file.OllamaModels
	}

	log.Debug().Str("path", path).Msg("pipeline config file applied")
	return nil
}

// overlay copies a file value into dst unless the environment already set it.
func overlay[T any](dst *T, value *T, key string) {
	if value == nil || envSet(key) {
		return
	}
	*dst = *value
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(envPrefix + "_" + key)
	return ok
}

// Validate checks settings that envconfig cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai provider"))
		}
	case ProviderOllama:
		if c.OllamaURL == "" {
			errs = append(errs, errors.New("OLLAMA_URL is required for the ollama provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}

	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("TOP_K must be positive, got %d", c.TopK))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("TEMPERATURE must be between 0 and 2, got %v", c.Temperature))
	}
	if _, err := domain.ParseModelVariant(c.DefaultModel); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_MODEL: %w", err))
	}
	for variant := range c.OllamaModels {
		if !domain.ModelVariant(variant).IsValid() {
			errs = append(errs, fmt.Errorf("OLLAMA_MODELS: unknown model variant %q", variant))
		}
	}

	switch c.IndexBackend {
	case BackendMemory:
	case BackendPgvector:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the pgvector index backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index backend %q", c.IndexBackend))
	}

	switch strings.ToLower(c.LogFormat) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// Model returns the configured default model variant.
func (c *Config) Model() domain.ModelVariant {
	m, err := domain.ParseModelVariant(c.DefaultModel)
	if err != nil {
		return domain.DefaultModelName
	}
	return m
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) UsesPgvector() bool {
	return c.IndexBackend == BackendPgvector
}
