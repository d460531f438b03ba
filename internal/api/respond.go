package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/reapbenefit/cmp-backend/internal/anthropic"
	"github.com/reapbenefit/cmp-backend/internal/cms"
	"github.com/reapbenefit/cmp-backend/internal/extractor"
	"github.com/reapbenefit/cmp-backend/internal/llm"
	"github.com/reapbenefit/cmp-backend/internal/store"
)

var (
	errBadRequest     = errors.New("bad request")
	errCMSUnavailable = errors.New("cms is not configured")
)

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

func statusFor(err error) int {
	var apiErr *anthropic.StatusError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, cms.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, cms.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, errCMSUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, llm.ErrInvalidOutput),
		errors.Is(err, llm.ErrRetryExhausted),
		errors.Is(err, extractor.ErrUnknownSkill),
		errors.As(err, &apiErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail maps err to a status and writes it. Server-side failures are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	Error(w, status, err.Error())
}
