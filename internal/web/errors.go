package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/logging"
	"github.com/arhamsadaf7-commits/sinohr-sub000/internal/permit"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError logs the technical error with the request id and returns a
// JSON error body. Storage outages override the caller's status with 503.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if errors.Is(err, permit.ErrUnavailable) {
		statusCode = http.StatusServiceUnavailable
	}

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"request_id", middleware.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: err.Error(),
		Code:  errorCode(err, statusCode),
	})
}

// errorCode maps an error to a stable machine-readable code.
func errorCode(err error, statusCode int) string {
	switch {
	case errors.Is(err, permit.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, permit.ErrUnavailable):
		return "STORAGE_UNAVAILABLE"
	case errors.Is(err, permit.ErrRunActive):
		return "RUN_ACTIVE"
	case statusCode == http.StatusBadRequest:
		return "BAD_REQUEST"
	default:
		return "INTERNAL"
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}
