package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/docquery/docquery/internal/jobs"
	"github.com/docquery/docquery/internal/log"
	"github.com/docquery/docquery/internal/rag"
)

// ChatHandler handles query endpoints.
//
// Endpoints:
//   - POST /api/chat        - Synchronous query (JSON request/response)
//   - POST /api/chat/stream - Streaming query (SSE)
//   - POST /api/chat/async  - Background query, polled via /api/jobs/{id}
type ChatHandler struct {
	rag    *rag.Service
	jobs   *jobs.Tracker
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(svc *rag.Service, tracker *jobs.Tracker, logger log.Logger) *ChatHandler {
	return &ChatHandler{rag: svc, jobs: tracker, logger: logger}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleQuery)
	mux.HandleFunc("POST /api/chat/stream", h.handleStream)
	mux.HandleFunc("POST /api/chat/async", h.handleAsync)
}

func (h *ChatHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req rag.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := h.rag.Query(r.Context(), req)
	if err != nil {
		h.logger.Error("query failed", "session_id", req.SessionID, "error", err)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleStream delivers a query as Server-Sent Events. Event names mirror
// the orchestrator's event types: sources, token, done, error.
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var req rag.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeSSE(w, flusher, rag.Event{
			Type:  rag.EventError,
			Error: fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}

	ctx := r.Context()
	h.logger.Info("SSE stream started", "session_id", req.SessionID)

	err := h.rag.QueryStream(ctx, req, func(ev rag.Event) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return writeSSE(w, flusher, ev)
	})
	if err != nil {
		// The consumer is gone; nothing left to deliver.
		h.logger.Info("SSE stream aborted", "session_id", req.SessionID, "error", err)
		return
	}

	h.logger.Info("SSE stream completed", "session_id", req.SessionID)
}

// writeSSE writes one event in SSE framing and flushes it.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev rag.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

// AsyncAccepted is the response for accepted background work.
type AsyncAccepted struct {
	JobID string `json:"jobId"`
}

// handleAsync accepts a query for background execution and returns a job
// id immediately; the result is consumed via GET /api/jobs/{id}.
func (h *ChatHandler) handleAsync(w http.ResponseWriter, r *http.Request) {
	var req rag.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err))
		return
	}

	id := h.jobs.Submit(func(ctx context.Context) (any, error) {
		return h.rag.Query(ctx, req)
	})

	writeJSON(w, http.StatusAccepted, AsyncAccepted{JobID: id.String()})
}
