package handler

// RESPONSE HELPERS:
// Every endpoint answers with the same envelope so the frontend can always
// look at "success" first:
//
//	{"success": true,  "data": {...}, "warning": "..."}
//	{"success": false, "message": "Validation failed", "errors": ["..."]}
//
// Auth endpoints put the session in "token" and the profile in "user"
// instead of "data". List endpoints use ListResponse, which adds paging.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/codemind/internal/apperror"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 10 << 20

const msgInternalError = "An internal error occurred"

// Response is the standard envelope.
type Response struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Token   string   `json:"token,omitempty"`
	User    any      `json:"user,omitempty"`
	Data    any      `json:"data,omitempty"`
	Warning string   `json:"warning,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// ListResponse is the envelope for paged collections.
type ListResponse struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Total   int    `json:"total"`
	Page    int    `json:"page"`
	Pages   int    `json:"pages"`
	Data    any    `json:"data"`
	Warning string `json:"warning,omitempty"`
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything set afterwards is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already on the wire; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to an HTTP status.
//
// errors.Is walks the whole chain, so a service may wrap an AppError with
// fmt.Errorf("...: %w", err) and the mapping still works. Errors that are
// not AppErrors are logged and reported as a generic 500; their text may
// contain SQL or file paths and never reaches the client.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, Response{Message: msgInternalError})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperror.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrConflict):
		// Duplicate registration is a client mistake like any other bad input.
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, apperror.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, apperror.ErrUpstream):
		logger.Error("upstream failure", slog.String("error", appErr.Err.Error()))
	}

	writeJSON(w, status, Response{
		Message: appErr.Message,
		Errors:  appErr.Details,
	})
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body", "Request body is too large")
		}
		return apperror.ValidationFailed("body", "Invalid JSON request body")
	}
	return nil
}
