package client

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// Attempts is the number of retries after the first attempt.
	Attempts int

	// Delay is the base backoff; attempt n waits Delay * 2^n.
	Delay time.Duration

	// MaxDelay caps a single backoff (0 = uncapped).
	MaxDelay time.Duration

	// Jitter adds up to ±Jitter fraction of randomness (0 = none).
	Jitter float64
}

// Backoff returns the wait before retry number attempt (0-based).
func (rc RetryConfig) Backoff(attempt int) time.Duration {
	backoff := time.Duration(float64(rc.Delay) * math.Pow(2, float64(attempt)))
	if rc.MaxDelay > 0 && backoff > rc.MaxDelay {
		backoff = rc.MaxDelay
	}

	if rc.Jitter > 0 {
		// ±Jitter randomness to prevent thundering herd
		factor := 1 - rc.Jitter + rand.Float64()*2*rc.Jitter
		backoff = time.Duration(float64(backoff) * factor)
	}
	return backoff
}

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the default sleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. Missing or unparseable values yield def.
func parseRetryAfter(value string, now time.Time, def time.Duration) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return def
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if wait := at.Sub(now); wait > 0 {
			return wait
		}
		return 0
	}

	return def
}
