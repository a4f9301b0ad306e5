// Package app assembles the question-answering pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cloo-solutions/pdfqa/internal/api/handlers"
	"github.com/cloo-solutions/pdfqa/internal/config"
	"github.com/cloo-solutions/pdfqa/internal/database"
	"github.com/cloo-solutions/pdfqa/internal/extract"
	"github.com/cloo-solutions/pdfqa/internal/jobs"
	"github.com/cloo-solutions/pdfqa/internal/ollama"
	"github.com/cloo-solutions/pdfqa/internal/openai"
	"github.com/cloo-solutions/pdfqa/internal/repository"
	"github.com/cloo-solutions/pdfqa/internal/server"
	"github.com/cloo-solutions/pdfqa/internal/service"
	"github.com/cloo-solutions/pdfqa/internal/storage"
	"github.com/cloo-solutions/pdfqa/internal/vectorstore"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	goopenai "github.com/sashabaranov/go-openai"
)

// Options adjust how New assembles the pipeline.
type Options struct {
	SkipMigrations bool
	MigrationsDir  string
	// SkipStorage disables S3 even when configured (the local chat REPL).
	SkipStorage bool
}

// App holds the wired pipeline and the resources it owns.
type App struct {
	Config   *config.Config
	Sessions *service.SessionService
	Storage  *storage.S3Client
	Pool     *pgxpool.Pool
	Vectors  *repository.ChunkVectorRepository

	startedAt time.Time
}

// New builds every component named by cfg. Close must be called to release
// the database pool.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, startedAt: time.Now().UTC()}

	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	generator, err := NewGenerator(cfg)
	if err != nil {
		return nil, err
	}

	stores, err := a.storeProvider(ctx, opts)
	if err != nil {
		return nil, err
	}

	var docs service.DocumentStorage
	if cfg.HasS3() && !opts.SkipStorage {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Info().Str("bucket", cfg.S3Bucket).Msg("S3 bucket ready")
		a.Storage = s3Client
		docs = s3Client
	}

	chunker := service.NewChunker(service.ChunkConfig{
		Size:       cfg.ChunkSize,
		Overlap:    cfg.ChunkOverlap,
		Separators: service.DefaultChunkConfig().Separators,
	})
	builder := service.NewIndexBuilder(embedder, stores, service.IndexConfig{
		Concurrency:  cfg.EmbedConcurrency,
		EmbedTimeout: cfg.EmbedTimeout,
	})
	answers := service.NewAnswerService(service.NewRetriever(cfg.TopK), generator, service.AnswerConfig{
		HistoryWindow:    cfg.HistoryWindow,
		CondenseQuestion: cfg.CondenseQuestion,
		Temperature:      cfg.Temperature,
		GenerateTimeout:  cfg.GenerateTimeout,
	})

	a.Sessions = service.NewSessionService(service.SessionServiceConfig{
		Extractor:        extract.NewPDFExtractor(),
		Chunker:          chunker,
		Builder:          builder,
		Answers:          answers,
		Storage:          docs,
		DefaultModel:     cfg.Model(),
		MaxDocumentBytes: cfg.MaxUploadBytes,
	})

	log.Info().
		Str("provider", cfg.Provider).
		Str("index_backend", cfg.IndexBackend).
		Str("default_model", cfg.Model().String()).
		Int("chunk_size", cfg.ChunkSize).
		Int("chunk_overlap", cfg.ChunkOverlap).
		Int("top_k", cfg.TopK).
		Bool("staged_uploads", docs != nil).
		Msg("pipeline ready")
	return a, nil
}

func (a *App) storeProvider(ctx context.Context, opts Options) (service.ChunkStoreProvider, error) {
	if !a.Config.UsesPgvector() {
		return vectorstore.NewChromemProvider(), nil
	}

	if !opts.SkipMigrations {
		if err := database.RunMigrations(a.Config.DatabaseURL, opts.MigrationsDir); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: a.Config.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("connected to database")
	a.Pool = pool
	a.Vectors = repository.NewChunkVectorRepository(pool)

	// Sessions live in memory, so rows written before this process started
	// belong to indexes nobody can query any more.
	purged, err := a.Vectors.PurgeOlderThan(ctx, a.startedAt)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to purge stale vectors: %w", err)
	}
	if purged > 0 {
		log.Info().Int64("rows", purged).Msg("purged vectors from previous runs")
	}
	return a.Vectors, nil
}

// NewEmbedder returns the embedding client for the configured provider.
func NewEmbedder(cfg *config.Config) (service.EmbeddingClient, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewEmbedderWithConfig(openaiConfig(cfg)), nil
	case config.ProviderOllama:
		embedder, err := ollama.NewEmbedder(cfg.OllamaURL, cfg.OllamaEmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama embedder: %w", err)
		}
		return embedder, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// NewGenerator returns the generation client for the configured provider.
func NewGenerator(cfg *config.Config) (service.Generator, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewGeneratorWithConfig(openaiConfig(cfg)), nil
	case config.ProviderOllama:
		generator, err := ollama.NewGeneratorWithServer(cfg.OllamaURL, cfg.OllamaModels)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama generator: %w", err)
		}
		return generator, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func openaiConfig(cfg *config.Config) openai.Config {
	return openai.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
		EmbeddingDimensions: cfg.EmbeddingDimensions,
	}
}

// Router returns the HTTP API over the session service.
func (a *App) Router() http.Handler {
	return server.NewRouter(server.RouterConfig{
		SessionHandler: handlers.NewSessionHandler(a.Sessions),
		ModelHandler:   handlers.NewModelHandler(a.Config.Model()),
		// multipart framing on top of the largest accepted document
		MaxBodyBytes: a.Config.MaxUploadBytes + 1<<20,
	})
}

// StartReaper runs the idle session reaper until ctx is cancelled or the
// returned worker is stopped. It returns nil when reaping is disabled.
func (a *App) StartReaper(ctx context.Context) *jobs.Worker {
	if a.Config.SessionIdleTTL <= 0 || a.Config.ReaperInterval <= 0 {
		return nil
	}
	worker := jobs.NewWorker("session-reaper", jobs.NewSessionReaper(a.Sessions, a.Config.SessionIdleTTL), a.Config.ReaperInterval)
	go worker.Start(ctx)
	return worker
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Pool = nil
	}
}
