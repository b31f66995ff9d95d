// Package api exposes the RAG pipeline over HTTP.
//
// Endpoints:
//
//	POST   /api/chat                synchronous query
//	POST   /api/chat/stream         streaming query (SSE)
//	POST   /api/chat/async          background query, poll via /api/jobs
//	POST   /api/documents/texts     ingest raw texts
//	POST   /api/documents/upload    ingest a file in the background
//	POST   /api/documents/directory ingest a server-side directory in the background
//	DELETE /api/documents           clear the vector index
//	DELETE /api/memory/{id}         clear one session
//	DELETE /api/memory              clear all sessions
//	GET    /api/jobs/{id}           poll a background job (consumes terminal state)
//	GET    /health, /ready          probes
//
// File structure:
//   - server.go: server setup and lifecycle
//   - middleware.go: logging and recovery middleware
//   - response.go: JSON helpers and error-to-status mapping
//   - chat.go, documents.go, memory.go, jobs.go, health.go: handlers
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docquery/docquery/internal/index"
	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/jobs"
	"github.com/docquery/docquery/internal/log"
	"github.com/docquery/docquery/internal/memory"
	"github.com/docquery/docquery/internal/rag"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = ":8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	// This prevents Slowloris attacks (CWE-400).
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 60 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Bounds generation latency on synchronous and streaming queries.
	WriteTimeout = 180 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Config contains the dependencies the server routes to.
type Config struct {
	RAG      *rag.Service
	Pipeline *ingest.Pipeline
	Files    *ingest.FileSource // nil disables file uploads
	Index    index.Index
	Memory   *memory.Store
	Jobs     *jobs.Tracker
	Pool     *pgxpool.Pool // nil when the memory index backend is used
	Logger   log.Logger

	UploadDir string
}

// Server is the HTTP server for the REST API.
type Server struct {
	mux *http.ServeMux

	health    *HealthHandler
	chat      *ChatHandler
	documents *DocumentsHandler
	memory    *MemoryHandler
	jobs      *JobsHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(cfg Config) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		health:    NewHealthHandler(cfg.Pool, cfg.Logger),
		chat:      NewChatHandler(cfg.RAG, cfg.Jobs, cfg.Logger),
		documents: NewDocumentsHandler(cfg.Pipeline, cfg.Files, cfg.Index, cfg.Jobs, cfg.UploadDir, cfg.Logger),
		memory:    NewMemoryHandler(cfg.Memory, cfg.Logger),
		jobs:      NewJobsHandler(cfg.Jobs, cfg.Logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)
	s.memory.RegisterRoutes(mux)
	s.jobs.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware, loggingMiddleware)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
