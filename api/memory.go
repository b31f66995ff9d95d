package api

import (
	"errors"
	"net/http"

	"github.com/docquery/docquery/internal/log"
	"github.com/docquery/docquery/internal/memory"
)

// MemoryHandler handles session transcript endpoints.
//
// Endpoints:
//   - DELETE /api/memory/{sessionId} - Clear one session
//   - DELETE /api/memory             - Clear all sessions
type MemoryHandler struct {
	store  *memory.Store
	logger log.Logger
}

// NewMemoryHandler creates a memory handler.
func NewMemoryHandler(store *memory.Store, logger log.Logger) *MemoryHandler {
	return &MemoryHandler{store: store, logger: logger}
}

// RegisterRoutes registers memory routes on the given mux.
func (h *MemoryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("DELETE /api/memory/{sessionId}", h.handleClear)
	mux.HandleFunc("DELETE /api/memory", h.handleClearAll)
}

// SessionClearResult reports a single-session clear. Cleared is false
// when the session did not exist; callers treat that as informational,
// not an error.
type SessionClearResult struct {
	SessionID string `json:"sessionId"`
	Cleared   bool   `json:"cleared"`
}

func (h *MemoryHandler) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	err := h.store.Clear(sessionID)
	if err != nil && !errors.Is(err, memory.ErrSessionNotFound) {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SessionClearResult{
		SessionID: sessionID,
		Cleared:   err == nil,
	})
}

// SessionsClearResult reports a clear-all.
type SessionsClearResult struct {
	Cleared int `json:"cleared"`
}

func (h *MemoryHandler) handleClearAll(w http.ResponseWriter, _ *http.Request) {
	count := h.store.ClearAll()
	h.logger.Info("all sessions cleared", "count", count)
	writeJSON(w, http.StatusOK, SessionsClearResult{Cleared: count})
}
