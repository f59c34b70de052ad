package goszakup

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// ErrorType classifies upstream failures
type ErrorType string

// Error types
const (
	ErrRateLimit  ErrorType = "rate_limit"
	ErrAuth       ErrorType = "auth_error"
	ErrNotFound   ErrorType = "not_found"
	ErrValidation ErrorType = "validation_error"
	ErrServer     ErrorType = "server_error"
	ErrNetwork    ErrorType = "network_error"
	ErrTimeout    ErrorType = "timeout"
	ErrUnknown    ErrorType = "unknown"
)

// APIError is a classified upstream failure
type APIError struct {
	Type       ErrorType
	Status     int
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("[%s] (%d) %s", e.Type, e.Status, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request may succeed
func (e *APIError) Retryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrServer, ErrNetwork, ErrTimeout:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is an APIError worth retrying
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable()
}

// IsNotFound reports whether err is a not_found APIError
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Type == ErrNotFound
}

// classifyStatus maps a non-2xx response onto an APIError
func classifyStatus(resp *http.Response, body []byte) *APIError {
	e := &APIError{Status: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Type = ErrRateLimit
		e.Message = "rate limit exceeded"
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		e.Type = ErrAuth
		e.Message = "authentication failed (invalid token)"
	case resp.StatusCode == http.StatusNotFound:
		e.Type = ErrNotFound
		e.Message = "resource not found"
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		e.Type = ErrValidation
		e.Message = "client error: " + truncate(string(body), 200)
	case resp.StatusCode >= 500:
		e.Type = ErrServer
		e.Message = "server error"
	default:
		e.Type = ErrUnknown
		e.Message = "unexpected status"
	}
	return e
}

// classifyTransport maps a transport failure onto an APIError
func classifyTransport(err error) *APIError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{Type: ErrTimeout, Message: "request timed out", Err: err}
	}
	return &APIError{Type: ErrNetwork, Message: err.Error(), Err: err}
}

// parseRetryAfter accepts delta-seconds or an HTTP date
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
