package api

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/docquery/docquery/internal/genai"
	"github.com/docquery/docquery/internal/index"
	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/jobs"
	"github.com/docquery/docquery/internal/memory"
	"github.com/docquery/docquery/internal/rag"
)

// writeJSON writes a JSON response with the given status code.
// If encoding fails after WriteHeader the status is already sent; the
// error is logged and the response left as-is.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

// writeDomainError maps a component error to its HTTP representation.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	writeError(w, status, code, err.Error())
}

// errorStatus maps component sentinel errors to HTTP status and a stable
// error code. Unrecognized errors are internal.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, rag.ErrValidation),
		errors.Is(err, ingest.ErrMetadataCount),
		errors.Is(err, ingest.ErrNoDocuments),
		errors.Is(err, ingest.ErrNotDirectory),
		errors.Is(err, index.ErrInvalidK):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, memory.ErrSessionNotFound),
		errors.Is(err, jobs.ErrNotFound),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, "UNSUPPORTED_FORMAT"
	case errors.Is(err, ingest.ErrExtractionFailed):
		return http.StatusUnprocessableEntity, "EXTRACTION_FAILED"
	case errors.Is(err, genai.ErrUpstream):
		return http.StatusBadGateway, "UPSTREAM_FAILURE"
	case errors.Is(err, index.ErrDimensionMismatch):
		return http.StatusInternalServerError, "DIMENSION_MISMATCH"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
