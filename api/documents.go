package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/docquery/docquery/internal/index"
	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/jobs"
	"github.com/docquery/docquery/internal/log"
)

// maxUploadBytes bounds a single file upload.
const maxUploadBytes = 50 << 20 // 50 MiB

// DocumentsHandler handles ingestion endpoints.
//
// Endpoints:
//   - POST   /api/documents/texts     - Ingest raw texts synchronously
//   - POST   /api/documents/upload    - Ingest a file in the background
//   - POST   /api/documents/directory - Ingest a server-side directory in the background
//   - DELETE /api/documents           - Clear the vector index
type DocumentsHandler struct {
	pipeline  *ingest.Pipeline
	files     *ingest.FileSource
	index     index.Index
	jobs      *jobs.Tracker
	uploadDir string
	logger    log.Logger
}

// NewDocumentsHandler creates a documents handler. files may be nil when
// no extractors are configured; the upload endpoint then reports
// unsupported format for everything.
func NewDocumentsHandler(pipeline *ingest.Pipeline, files *ingest.FileSource, idx index.Index, tracker *jobs.Tracker, uploadDir string, logger log.Logger) *DocumentsHandler {
	return &DocumentsHandler{
		pipeline:  pipeline,
		files:     files,
		index:     idx,
		jobs:      tracker,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents/texts", h.handleTexts)
	mux.HandleFunc("POST /api/documents/upload", h.handleUpload)
	mux.HandleFunc("POST /api/documents/directory", h.handleDirectory)
	mux.HandleFunc("DELETE /api/documents", h.handleClear)
}

// TextsRequest is the payload for raw-text ingestion.
type TextsRequest struct {
	Texts     []string         `json:"texts"`
	Metadatas []map[string]any `json:"metadatas,omitempty"`
}

// IngestResult reports how many chunks an ingestion created.
type IngestResult struct {
	ChunksCreated int `json:"chunksCreated"`
}

func (h *DocumentsHandler) handleTexts(w http.ResponseWriter, r *http.Request) {
	var req TextsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if len(req.Texts) == 0 {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "texts is required")
		return
	}

	docs, err := ingest.TextDocuments(req.Texts, req.Metadatas)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	count, err := h.pipeline.Ingest(r.Context(), docs)
	if err != nil {
		h.logger.Error("text ingestion failed", "texts", len(req.Texts), "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, IngestResult{ChunksCreated: count})
}

// handleUpload stages the uploaded file and submits extraction plus
// ingestion as a background job. The file is deleted once the job ends.
func (h *DocumentsHandler) handleUpload(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT", "no file extractors configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("reading upload: %v", err))
		return
	}
	defer func() { _ = file.Close() }()

	useOCR := r.FormValue("useOcr") == "true"

	staged, err := h.stageUpload(file, header.Filename)
	if err != nil {
		h.logger.Error("staging upload failed", "file", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "staging upload failed")
		return
	}

	id := h.jobs.Submit(func(ctx context.Context) (any, error) {
		defer func() { _ = os.Remove(staged) }()

		docs, err := h.files.Documents(ctx, staged, useOCR)
		if err != nil {
			return nil, err
		}
		count, err := h.pipeline.Ingest(ctx, docs)
		if err != nil {
			return nil, err
		}
		return IngestResult{ChunksCreated: count}, nil
	})

	h.logger.Info("upload accepted", "file", header.Filename, "job_id", id)
	writeJSON(w, http.StatusAccepted, AsyncAccepted{JobID: id.String()})
}

// stageUpload copies the upload into the staging directory under a unique
// name, keeping the original extension for format detection.
func (h *DocumentsHandler) stageUpload(file io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}

	staged := filepath.Join(h.uploadDir, uuid.NewString()+filepath.Ext(filename))
	out, err := os.Create(staged)
	if err != nil {
		return "", fmt.Errorf("creating staged file: %w", err)
	}

	if _, err := io.Copy(out, file); err != nil {
		_ = out.Close()
		_ = os.Remove(staged)
		return "", fmt.Errorf("writing staged file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(staged)
		return "", fmt.Errorf("closing staged file: %w", err)
	}
	return staged, nil
}

// DirectoryRequest is the payload for server-side directory ingestion.
type DirectoryRequest struct {
	Path   string `json:"path"`
	UseOcr bool   `json:"useOcr,omitempty"`
}

// handleDirectory submits recursive extraction and ingestion of every
// supported file under a server-side directory as a background job.
func (h *DocumentsHandler) handleDirectory(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT", "no file extractors configured")
		return
	}

	var req DirectoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "path is required")
		return
	}

	// Reject bad paths before accepting the job so the caller sees the
	// failure on the request instead of a failed job later.
	info, err := os.Stat(req.Path)
	if err != nil {
		writeDomainError(w, fmt.Errorf("stat %s: %w", req.Path, err))
		return
	}
	if !info.IsDir() {
		writeDomainError(w, fmt.Errorf("%w: %s", ingest.ErrNotDirectory, req.Path))
		return
	}

	id := h.jobs.Submit(func(ctx context.Context) (any, error) {
		docs, err := h.files.DirectoryDocuments(ctx, req.Path, req.UseOcr)
		if err != nil {
			return nil, err
		}
		count, err := h.pipeline.Ingest(ctx, docs)
		if err != nil {
			return nil, err
		}
		return IngestResult{ChunksCreated: count}, nil
	})

	h.logger.Info("directory ingestion accepted", "path", req.Path, "job_id", id)
	writeJSON(w, http.StatusAccepted, AsyncAccepted{JobID: id.String()})
}

// ClearResult reports an index clear.
type ClearResult struct {
	Cleared bool `json:"cleared"`
}

func (h *DocumentsHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := h.index.Clear(r.Context()); err != nil {
		h.logger.Error("clearing index failed", "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ClearResult{Cleared: true})
}
