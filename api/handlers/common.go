// Package handlers implements the REST API surface: document insertion,
// querying, and health endpoints.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
)

// Response is the uniform API response envelope.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ErrorInfo carries a normalized API error.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
}

// WriteJSON writes data as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a success envelope.
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError normalizes err into the response envelope. Taxonomy errors
// keep their code and HTTP status; anything else becomes a 500.
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	code := llm.ErrInternal
	message := err.Error()
	retryable := false
	attempts := 0

	if e, ok := llm.AsError(err); ok {
		code = e.Code
		message = e.Message
		retryable = e.Retryable
		attempts = e.Attempts
	}
	status := statusForCode(code)

	if logger != nil {
		logger.Error("API error",
			zap.String("code", string(code)),
			zap.String("message", message),
			zap.Int("status", status),
			zap.Bool("retryable", retryable))
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(code),
			Message:   message,
			Retryable: retryable,
			Attempts:  attempts,
		},
		Timestamp: time.Now(),
	})
}

// statusForCode maps taxonomy error codes onto HTTP statuses.
func statusForCode(code llm.ErrorCode) int {
	switch code {
	case llm.ErrInvalidRequest, llm.ErrEmptyInput:
		return http.StatusBadRequest
	case llm.ErrUnauthorized:
		return http.StatusUnauthorized
	case llm.ErrForbidden:
		return http.StatusForbidden
	case llm.ErrModelNotFound:
		return http.StatusNotFound
	case llm.ErrRateLimited, llm.ErrQuotaExceeded:
		return http.StatusTooManyRequests
	case llm.ErrProviderUnavailable, llm.ErrModelOverloaded:
		return http.StatusServiceUnavailable
	case llm.ErrInvalidConfiguration, llm.ErrUnsupportedProvider:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
