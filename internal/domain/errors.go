package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Common domain errors
var (
	ErrInvalidDescriptor = errors.New("invalid descriptor")
	ErrSizeMismatch      = errors.New("size mismatch")
	ErrNoFiles           = errors.New("no files found for the requested range")
)

// TransportError wraps a connection, DNS or timeout failure during a
// fetch attempt. Always retryable.
type TransportError struct {
	Err error
}

// Error returns the error message
func (e *TransportError) Error() string {
	return "transport error: " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError represents a non-2xx response to a download request.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

// Error returns the error message
func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// Retryable reports whether the status is worth another attempt.
// Server errors and throttling retry; other client errors do not — a 404
// will still be a 404 on the next attempt.
func (e *HTTPStatusError) Retryable() bool {
	if e.StatusCode >= 500 {
		return true
	}
	return e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusTooManyRequests
}

// FilesystemError wraps a directory creation or file write/delete
// failure. Never retryable.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

// Error returns the error message
func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error
func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// IsRetryable classifies an attempt error for the retry loop.
func IsRetryable(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	var fsErr *FilesystemError
	if errors.As(err, &fsErr) {
		return false
	}
	if errors.Is(err, ErrInvalidDescriptor) {
		return false
	}
	// Transport and size-mismatch errors are transient by assumption.
	return true
}
