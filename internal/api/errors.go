package api

import (
	"encoding/json"
	"net/http"

	"github.com/whale-role-bot/internal/logging"
)

// ErrorBody carries a stable code and a human message
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// Common error codes
const (
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// respondError sends an error response
func respondError(w http.ResponseWriter, statusCode int, code, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logging.WithError(err).Warn("Failed to encode response")
		}
	}
}
