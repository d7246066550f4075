package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/caldermaw/graft/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrIntegrity):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrStaleIndex):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrPrecondition):
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// writeErr renders a domain error. Internal errors are logged and masked;
// client errors carry their message through.
func writeErr(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op, slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
