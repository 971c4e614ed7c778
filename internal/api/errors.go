package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/tapline/internal/scheduler"
	"github.com/nerrad567/tapline/internal/session"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "device_unavailable"
	ErrCodeTimeout      = "device_timeout"
	ErrCodeShuttingDown = "shutting_down"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps session and scheduler errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrEventNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, scheduler.ErrInvalidEvent), errors.Is(err, session.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, scheduler.ErrEventExists),
		errors.Is(err, scheduler.ErrEventBusy),
		errors.Is(err, scheduler.ErrNotRunning),
		errors.Is(err, scheduler.ErrNotPaused):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, scheduler.ErrNotConnected),
		errors.Is(err, session.ErrDisconnected):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
	case errors.Is(err, session.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, err.Error())
	case errors.Is(err, session.ErrCancelled), errors.Is(err, session.ErrSessionClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeShuttingDown, err.Error())
	default:
		writeInternalError(w, err.Error())
	}
}
