package handler

// RESPONSE HELPERS:
// These functions standardise how we send JSON responses and errors.
//
// CONSISTENT ERROR FORMAT:
// Every error response from our API has the same shape:
//
//	{"error": "not_found", "message": "game not found with id 42"}
//
// Validation failures add the per-field details:
//
//	{"error": "validation_error", "message": "invalid game data (...)",
//	 "errors": [{"field": "price", "message": "price is required"}]}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/game-market/internal/apperror"
)

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string                `json:"error"`            // Machine-readable error type (e.g., "not_found")
	Message string                `json:"message"`          // Human-readable description
	Errors  []apperror.FieldError `json:"errors,omitempty"` // Field-level validation details
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
// Headers and status must be set BEFORE the body is written; once Encode
// writes, header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent — we can only log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// errors.Is() walks the whole chain, so a service error like
//
//	fmt.Errorf("service/game: ...: %w", apperror.NotFound(...))
//
// still maps to 404. Anything that isn't an *apperror.AppError is an
// infrastructure failure: the client gets a generic 500 and the cause is
// logged server-side only (it may contain SQL or file paths).
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		errorType := "internal_error"

		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest // 400
			errorType = "validation_error"
		case errors.Is(err, apperror.ErrUnauthorized):
			status = http.StatusUnauthorized // 401
			errorType = "unauthorized"
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden // 403
			errorType = "forbidden"
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound // 404
			errorType = "not_found"
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict // 409
			errorType = "conflict"
		}

		if status == http.StatusInternalServerError {
			logger.Error("unmapped application error", slog.String("error", err.Error()))
		}

		resp := ErrorResponse{Error: errorType, Message: appErr.Message}
		if status == http.StatusBadRequest {
			resp.Errors = appErr.Fields
		}
		writeJSON(w, status, resp)
		return
	}

	logger.Error("request failed", slog.String("error", err.Error()))

	// NEVER expose internal error details to the client.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}
