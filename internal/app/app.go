// Package app provides application initialization and dependency wiring.
//
// Setup builds every component from configuration: Genkit with the
// selected provider, the vector index backend, session memory, the job
// tracker, and the ingestion and query pipelines. App owns their
// lifecycle; Close releases everything in reverse order.
package app

import (
	"context"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docquery/docquery/internal/config"
	"github.com/docquery/docquery/internal/index"
	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/jobs"
	"github.com/docquery/docquery/internal/log"
	"github.com/docquery/docquery/internal/memory"
	"github.com/docquery/docquery/internal/rag"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	// Core services
	Genkit   *genkit.Genkit
	Embedder ai.Embedder
	Index    index.Index
	Memory   *memory.Store
	Jobs     *jobs.Tracker
	RAG      *rag.Service
	Pipeline *ingest.Pipeline
	Files    *ingest.FileSource // nil when no extractors are configured

	// Pool is set only for the postgres index backend.
	Pool *pgxpool.Pool

	cancel context.CancelFunc
}

// Close gracefully shuts down all resources. In-flight background jobs
// are waited for before the database pool is released.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.Jobs != nil {
		a.Jobs.Close()
	}

	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}

	return nil
}
