package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorType represents the category of a provider failure.
type ErrorType string

const (
	// ErrorTypeProvider indicates an upstream server or transport failure.
	ErrorTypeProvider ErrorType = "provider_error"
	// ErrorTypeRateLimit indicates the upstream throttled the request (429).
	ErrorTypeRateLimit ErrorType = "rate_limit_error"
	// ErrorTypeInvalidRequest indicates the upstream rejected the request (4xx).
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	// ErrorTypeAuthentication indicates bad or missing credentials (401/403).
	ErrorTypeAuthentication ErrorType = "authentication_error"
	// ErrorTypeNotFound indicates an unknown model or endpoint (404).
	ErrorTypeNotFound ErrorType = "not_found_error"
	// ErrorTypeConfiguration indicates a missing key or unregistered provider.
	ErrorTypeConfiguration ErrorType = "configuration_error"
	// ErrorTypeTimeout indicates the request deadline elapsed.
	ErrorTypeTimeout ErrorType = "timeout_error"
	// ErrorTypeCanceled indicates the caller abandoned the request.
	ErrorTypeCanceled ErrorType = "canceled_error"
)

// StatusClientClosedRequest follows the nginx convention for client disconnects.
const StatusClientClosedRequest = 499

// ProviderError is the only error shape that crosses the provider boundary.
// Values are never mutated after construction.
type ProviderError struct {
	Type       ErrorType `json:"type"`
	Provider   string    `json:"provider,omitempty"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
	Retryable  bool      `json:"retryable"`
	// Err is the underlying cause, kept for logs and never sent to clients.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the caller may retry the request or fail over.
func (e *ProviderError) IsRetryable() bool {
	return e.Retryable
}

// HTTPStatusCode returns the status to report to API clients.
func (e *ProviderError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}
	switch e.Type {
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeAuthentication:
		return http.StatusUnauthorized
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeCanceled:
		return StatusClientClosedRequest
	case ErrorTypeConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

// ToJSON converts the error to a JSON-compatible map.
func (e *ProviderError) ToJSON() map[string]any {
	body := map[string]any{
		"type":      e.Type,
		"message":   e.Message,
		"retryable": e.Retryable,
	}
	if e.Provider != "" {
		body["provider"] = e.Provider
	}
	return map[string]any{"error": body}
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// NewProviderError creates an upstream failure. 5xx statuses are retryable.
func NewProviderError(provider string, statusCode int, message string, err error) *ProviderError {
	return &ProviderError{
		Type:       ErrorTypeProvider,
		Provider:   provider,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryableStatus(statusCode),
		Err:        err,
	}
}

// NewRateLimitError creates a retryable 429 error.
func NewRateLimitError(provider, message string) *ProviderError {
	return &ProviderError{
		Type:       ErrorTypeRateLimit,
		Provider:   provider,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
	}
}

// NewInvalidRequestError creates a non-retryable 400 error.
func NewInvalidRequestError(provider, message string, err error) *ProviderError {
	return NewInvalidRequestErrorWithStatus(provider, http.StatusBadRequest, message, err)
}

// NewInvalidRequestErrorWithStatus creates a non-retryable client error with a specific status.
func NewInvalidRequestErrorWithStatus(provider string, statusCode int, message string, err error) *ProviderError {
	return &ProviderError{
		Type:       ErrorTypeInvalidRequest,
		Provider:   provider,
		Message:    message,
		StatusCode: statusCode,
		Err:        err,
	}
}

// NewAuthenticationError creates a non-retryable credential error.
func NewAuthenticationError(provider, message string) *ProviderError {
	return &ProviderError{
		Type:       ErrorTypeAuthentication,
		Provider:   provider,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewNotFoundError creates a non-retryable 404 error.
func NewNotFoundError(provider, message string) *ProviderError {
	return &ProviderError{
		Type:       ErrorTypeNotFound,
		Provider:   provider,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewConfigurationError reports a missing key, unknown provider or similar setup fault.
func NewConfigurationError(provider, message string) *ProviderError {
	return &ProviderError{
		Type:     ErrorTypeConfiguration,
		Provider: provider,
		Message:  message,
	}
}

// ParseProviderError classifies an HTTP error response from an upstream.
func ParseProviderError(provider string, statusCode int, body []byte, originalErr error) *ProviderError {
	message := extractErrorMessage(body)
	if message == "" {
		message = http.StatusText(statusCode)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e := NewAuthenticationError(provider, message)
		e.StatusCode = statusCode
		e.Err = originalErr
		return e
	case statusCode == http.StatusTooManyRequests:
		e := NewRateLimitError(provider, message)
		e.Err = originalErr
		return e
	case statusCode == http.StatusNotFound:
		e := NewNotFoundError(provider, message)
		e.Err = originalErr
		return e
	case statusCode >= 400 && statusCode < 500:
		return NewInvalidRequestErrorWithStatus(provider, statusCode, message, originalErr)
	default:
		e := NewProviderError(provider, http.StatusBadGateway, message, originalErr)
		e.Retryable = true
		return e
	}
}

// extractErrorMessage pulls a human-readable message out of the error bodies
// used by the supported vendors.
func extractErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !gjson.ValidBytes(body) {
		return strings.TrimSpace(string(body))
	}
	for _, path := range []string{"error.message", "message", "error", "detail"} {
		if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
			return v.Str
		}
	}
	return strings.TrimSpace(string(body))
}

var retryablePatterns = []string{
	"rate limit",
	"too many requests",
	"429",
	"service unavailable",
	"503",
	"timeout",
	"connection refused",
	"network error",
	"econnreset",
	"connection reset",
	"socket hang up",
	"internal server error",
	"500",
	"bad gateway",
	"502",
	"gateway timeout",
	"504",
}

var nonRetryablePatterns = []string{
	"invalid api key",
	"unauthorized",
	"authentication",
	"invalid request",
	"bad request",
	"model not found",
	"content filtered",
	"safety",
}

// NormalizeProviderError maps any failure from an upstream call into a *ProviderError.
// An existing *ProviderError is returned as is, or copied when the provider name is missing.
func NormalizeProviderError(provider string, err error) *ProviderError {
	if err == nil {
		return nil
	}

	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Provider != "" || provider == "" {
			return pe
		}
		clone := *pe
		clone.Provider = provider
		return &clone
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ProviderError{
			Type:       ErrorTypeTimeout,
			Provider:   provider,
			Message:    "request timed out",
			StatusCode: http.StatusGatewayTimeout,
			Retryable:  true,
			Err:        err,
		}
	case errors.Is(err, context.Canceled):
		return &ProviderError{
			Type:       ErrorTypeCanceled,
			Provider:   provider,
			Message:    "request canceled",
			StatusCode: StatusClientClosedRequest,
			Err:        err,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		e := NewProviderError(provider, http.StatusBadGateway, "network error: "+err.Error(), err)
		if netErr.Timeout() {
			e.Type = ErrorTypeTimeout
			e.StatusCode = http.StatusGatewayTimeout
		}
		return e
	}

	msg := strings.ToLower(err.Error())
	for _, p := range nonRetryablePatterns {
		if strings.Contains(msg, p) {
			return &ProviderError{Type: ErrorTypeInvalidRequest, Provider: provider, Message: err.Error(), Err: err}
		}
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return &ProviderError{Type: ErrorTypeProvider, Provider: provider, Message: err.Error(), Retryable: true, Err: err}
		}
	}
	return &ProviderError{Type: ErrorTypeProvider, Provider: provider, Message: err.Error(), Err: err}
}

// IsRetryable reports whether err should trigger a retry or failover.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return NormalizeProviderError("", err).Retryable
}
