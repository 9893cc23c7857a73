package chat

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when an API key is required but missing.
	ErrNoAPIKey = errors.New("chat: API key required")

	// ErrEmptyMessage is returned when the user message is blank.
	ErrEmptyMessage = errors.New("chat: empty message")

	// ErrNoContent is returned when the model reply has no usable content.
	ErrNoContent = errors.New("chat: no response content")
)

// APIError represents an error response from the generation API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("chat: API error %d: %s", e.StatusCode, e.Message)
}

// IsRateLimited returns true for HTTP 429.
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true for HTTP 5xx.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}
