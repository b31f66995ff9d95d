package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"golang.org/x/time/rate"

	"github.com/docquery/docquery/db"
	"github.com/docquery/docquery/internal/config"
	"github.com/docquery/docquery/internal/genai"
	"github.com/docquery/docquery/internal/index"
	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/jobs"
	"github.com/docquery/docquery/internal/log"
	"github.com/docquery/docquery/internal/memory"
	"github.com/docquery/docquery/internal/rag"
)

// Option adjusts Setup behavior.
type Option func(*options)

type options struct {
	pdf   ingest.PDFExtractor
	image ingest.ImageExtractor
}

// WithExtractors wires the PDF and image OCR collaborators so file
// uploads are available. Without them only raw-text ingestion works.
func WithExtractors(pdf ingest.PDFExtractor, image ingest.ImageExtractor) Option {
	return func(o *options) {
		o.pdf = pdf
		o.image = image
	}
}

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, retErr error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.New(log.Config{
		Level: parseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})
	slog.SetDefault(logger)

	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	appCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	g, err := genai.Init(ctx, providerConfig(cfg), logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	embedder := genai.Embedder(g, providerConfig(cfg))
	if embedder == nil {
		return nil, fmt.Errorf("embedder %q not found for provider %q", cfg.EmbedderModel, cfg.Provider)
	}
	a.Embedder = embedder

	idx, pool, err := provideIndex(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Index = idx
	a.Pool = pool

	a.Memory = memory.NewStore(logger)
	a.Jobs = jobs.NewTracker(appCtx, logger)

	generator := genai.NewGenerator(genai.GeneratorConfig{
		Genkit:    g,
		Logger:    logger,
		ModelName: qualifiedModelName(cfg),
		Timeout:   cfg.GenerationTimeout,
		Limiter:   rate.NewLimiter(rate.Limit(cfg.GenerationRPS), cfg.GenerationBurst),
	})

	a.RAG, err = rag.New(rag.Config{
		Embedder:  embedder,
		Index:     idx,
		Memory:    a.Memory,
		Generator: generator,
		Logger:    logger,
		TopK:      cfg.RetrievalTopK,
	})
	if err != nil {
		return nil, err
	}

	a.Pipeline, err = ingest.NewPipeline(ingest.Config{
		Embedder:     embedder,
		Index:        idx,
		Logger:       logger,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	if o.pdf != nil && o.image != nil {
		a.Files, err = ingest.NewFileSource(ingest.FileSourceConfig{
			PDF:                o.pdf,
			Image:              o.image,
			Logger:             logger,
			ScannedThreshold:   cfg.ScannedPDFThreshold,
			ScannedSamplePages: cfg.ScannedPDFSamplePages,
		})
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

func providerConfig(cfg *config.Config) genai.ProviderConfig {
	return genai.ProviderConfig{
		Provider:      cfg.Provider,
		ModelName:     cfg.ModelName,
		EmbedderModel: cfg.EmbedderModel,
		OllamaHost:    cfg.OllamaHost,
	}
}

// qualifiedModelName returns the provider-qualified model name Genkit
// resolves at generate time.
func qualifiedModelName(cfg *config.Config) string {
	prefix := cfg.Provider
	if prefix == config.ProviderGemini {
		prefix = "googleai"
	}
	return prefix + "/" + cfg.ModelName
}

// provideIndex builds the configured vector index backend. The postgres
// backend runs migrations and returns its pool for readiness checks.
func provideIndex(ctx context.Context, cfg *config.Config, logger log.Logger) (index.Index, *pgxpool.Pool, error) {
	switch cfg.IndexBackend {
	case config.IndexMemory:
		idx, err := index.NewMemory(cfg.EmbedderDimension, logger)
		if err != nil {
			return nil, nil, err
		}
		return idx, nil, nil

	case config.IndexPostgres:
		if err := db.Migrate(cfg.PostgresURL()); err != nil {
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}

		poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
		if err != nil {
			return nil, nil, fmt.Errorf("parsing connection config: %w", err)
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 2
		poolCfg.MaxConnLifetime = 30 * time.Minute
		poolCfg.MaxConnIdleTime = 5 * time.Minute
		poolCfg.HealthCheckPeriod = 1 * time.Minute
		poolCfg.AfterConnect = pgxvector.RegisterTypes

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("creating connection pool: %w", err)
		}

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		defer pingCancel()
		if err := pool.Ping(pingCtx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("pinging database: %w", err)
		}

		idx, err := index.NewPostgres(ctx, pool, cfg.EmbedderDimension, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return idx, pool, nil

	default:
		return nil, nil, fmt.Errorf("unknown index backend %q", cfg.IndexBackend)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
