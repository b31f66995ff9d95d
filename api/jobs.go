package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/docquery/docquery/internal/jobs"
	"github.com/docquery/docquery/internal/log"
)

// JobsHandler handles background-job polling.
//
// Endpoints:
//   - GET /api/jobs/{id} - Poll a job; the first read of a terminal job
//     consumes it, so a later poll returns 404.
type JobsHandler struct {
	jobs   *jobs.Tracker
	logger log.Logger
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(tracker *jobs.Tracker, logger log.Logger) *JobsHandler {
	return &JobsHandler{jobs: tracker, logger: logger}
}

// RegisterRoutes registers job routes on the given mux.
func (h *JobsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/jobs/{id}", h.handleStatus)
}

func (h *JobsHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid job id")
		return
	}

	status, err := h.jobs.Status(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}
