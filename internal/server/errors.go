package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
)

// serviceUnavailableMessage is returned for provider failures; the cause is only logged.
const serviceUnavailableMessage = "AI service unavailable"

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case models.IsServiceUnavailable(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes the mapped error response.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	message := err.Error()
	switch {
	case status == http.StatusServiceUnavailable:
		message = serviceUnavailableMessage
		s.logger.Warn(msg, zap.Error(err))
	case status >= 500:
		s.logger.Error(msg, zap.Error(err))
	default:
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, message)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
