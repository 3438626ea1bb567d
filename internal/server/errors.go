package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"faixabet-api/internal/models"
	"faixabet-api/pkg/logger"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a domain error to its HTTP status and the message that is
// safe to show the client.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrDuplicateEmail),
		errors.Is(err, models.ErrInvalidPlan),
		errors.Is(err, models.ErrMissingMetadata),
		errors.Is(err, models.ErrSignature):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrPlanNotConfigured):
		return http.StatusInternalServerError, err.Error()
	case errors.Is(err, models.ErrUpstream):
		return http.StatusInternalServerError, "payment provider unavailable"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, l *logger.Logger, err error) {
	code, msg := statusFor(err)
	if code >= http.StatusInternalServerError {
		l.Errorw("Request failed", "error", err, "path", r.URL.Path, "requestID", RequestIDFromContext(r.Context()))
	} else {
		l.Infow("Request rejected", "error", err, "path", r.URL.Path, "requestID", RequestIDFromContext(r.Context()))
	}
	writeJSON(w, code, errorResponse{Error: msg})
}
