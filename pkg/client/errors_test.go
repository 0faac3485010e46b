package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{"client error should not retry", ErrorClassClient, false},
		{"not found should not retry", ErrorClassNotFound, false},
		{"rate limit is waited out, not retried", ErrorClassRateLimit, false},
		{"server error should retry", ErrorClassServer, true},
		{"network error should retry", ErrorClassNetwork, true},
		{"timeout should retry", ErrorClassTimeout, true},
		{"empty error class should not retry", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shouldRetry(tt.errorClass); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, got, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{200, ""},
		{304, ""},
		{400, ErrorClassClient},
		{403, ErrorClassClient},
		{404, ErrorClassNotFound},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "error with wrapped error",
			apiError: &APIError{
				StatusCode: 0,
				ErrorClass: ErrorClassNetwork,
				Message:    "request failed",
				Err:        errors.New("connection refused"),
			},
			expected: "steam network error (status 0): request failed: connection refused",
		},
		{
			name: "error without wrapped error",
			apiError: &APIError{
				StatusCode: 503,
				ErrorClass: ErrorClassServer,
				Message:    "503 Service Unavailable",
			},
			expected: "steam server error (status 503): 503 Service Unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apiError.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  error
		not   []error
	}{
		{ErrorClassNotFound, ErrNotFound, []error{ErrUpstream, ErrTimeout}},
		{ErrorClassTimeout, ErrTimeout, []error{ErrUpstream, ErrNotFound}},
		{ErrorClassRateLimit, ErrUpstreamRateLimited, []error{ErrUpstream}},
		{ErrorClassServer, ErrUpstream, []error{ErrTimeout}},
		{ErrorClassNetwork, ErrUpstream, []error{ErrTimeout}},
		{ErrorClassClient, ErrUpstream, []error{ErrNotFound}},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			err := fmt.Errorf("fetch: %w", &APIError{ErrorClass: tt.class})

			if !errors.Is(err, tt.want) {
				t.Errorf("errors.Is(%s, %v) = false", tt.class, tt.want)
			}
			for _, other := range tt.not {
				if errors.Is(err, other) {
					t.Errorf("errors.Is(%s, %v) = true", tt.class, other)
				}
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	err := &APIError{ErrorClass: ErrorClassNetwork, Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is did not reach wrapped error")
	}
}
