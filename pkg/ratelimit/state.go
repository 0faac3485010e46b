// Package ratelimit implements per-caller sliding-window admission control.
// Each caller may make at most MaxRequests admitted calls in any span of
// Window; denied attempts are never recorded.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Defaults for the sliding window.
const (
	// DefaultMaxRequests is the number of admitted calls per caller per window.
	DefaultMaxRequests = 15

	// DefaultWindow is the length of the sliding window.
	DefaultWindow = 60 * time.Second
)

// ErrRateLimited is matched by every *LimitError.
var ErrRateLimited = errors.New("rate limited")

// Limiter decides whether a caller may make another upstream call.
type Limiter interface {
	// Allow records and admits the call if the caller has budget left.
	Allow(ctx context.Context, callerID string) (bool, error)

	// Remaining returns how many calls the caller may still make in the current window.
	Remaining(ctx context.Context, callerID string) (int, error)

	// ResetIn returns how long until the caller's oldest recorded call leaves
	// the window. Zero when the caller has budget left.
	ResetIn(ctx context.Context, callerID string) (time.Duration, error)
}

// Config holds limiter configuration.
type Config struct {
	// MaxRequests per caller per window (default: 15)
	MaxRequests int

	// Window length (default: 60s)
	Window time.Duration

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time
}

// withDefaults fills unset fields and validates the rest.
func (c Config) withDefaults() (Config, error) {
	if c.MaxRequests == 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	if c.Window == 0 {
		c.Window = DefaultWindow
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.MaxRequests < 0 {
		return c, fmt.Errorf("max requests must be positive, got %d", c.MaxRequests)
	}
	if c.Window < 0 {
		return c, fmt.Errorf("window must be positive, got %s", c.Window)
	}
	return c, nil
}

// LimitError is returned by callers of a Limiter when a request is denied.
type LimitError struct {
	// CallerID is the denied caller
	CallerID string

	// RetryAfter is the time until a slot frees up
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited: caller %q may retry in %s", e.CallerID, e.RetryAfter.Round(time.Second))
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// Deny builds the LimitError for callerID, asking the limiter when the
// caller's next slot frees up.
func Deny(ctx context.Context, l Limiter, callerID string) error {
	wait, err := l.ResetIn(ctx, callerID)
	if err != nil {
		wait = 0
	}
	return &LimitError{CallerID: callerID, RetryAfter: wait}
}
