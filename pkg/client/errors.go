package client

import (
	"errors"
	"fmt"
)

// Errors returned by the client. Every *APIError matches the sentinel of its
// class with errors.Is.
var (
	// ErrNotFound is returned for HTTP 404. It is never retried.
	ErrNotFound = errors.New("resource not found")

	// ErrUpstream is returned when the upstream keeps failing after all retries,
	// or rejects the request with a non-retryable client error.
	ErrUpstream = errors.New("upstream error")

	// ErrTimeout is returned when the last failed attempt exceeded its deadline.
	ErrTimeout = errors.New("upstream timeout")

	// ErrUpstreamRateLimited is returned when the upstream keeps answering 429
	// beyond the configured number of waits.
	ErrUpstreamRateLimited = errors.New("upstream rate limited")

	// ErrCircuitOpen is returned without any network I/O while the breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrContextCancelled is returned when the caller's context ends the call.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 404 and 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassNotFound represents 404 responses.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassServer represents 5xx server errors and unparseable bodies.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassTimeout represents attempts that exceeded their deadline.
	ErrorClassTimeout ErrorClass = "timeout"
)

// sentinel maps a class to the error it matches with errors.Is.
func (c ErrorClass) sentinel() error {
	switch c {
	case ErrorClassNotFound:
		return ErrNotFound
	case ErrorClassTimeout:
		return ErrTimeout
	case ErrorClassRateLimit:
		return ErrUpstreamRateLimited
	default:
		return ErrUpstream
	}
}

// APIError represents an upstream failure with additional context.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("steam %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("steam %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's class.
func (e *APIError) Is(target error) bool {
	return target == e.ErrorClass.sentinel()
}

// shouldRetry determines if an error should be retried based on its classification.
// Rate-limit responses are waited out separately and never reach this check.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassServer, ErrorClassNetwork, ErrorClassTimeout:
		return true
	default:
		// 4xx errors should NOT be retried
		return false
	}
}

// classifyStatus maps an HTTP status to an error class.
// Returns "" for statuses that are not failures.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 404:
		return ErrorClassNotFound
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
