package client

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// BreakerStatus is a snapshot of a client's circuit breaker.
type BreakerStatus struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	Open                bool      `json:"open"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastFailureAt       time.Time `json:"last_failure_at,omitempty"`
}

// breaker wraps a two-step gobreaker so the outcome of a call can be reported
// after retries are resolved, and so an abandoned call can be left unreported.
// gobreaker clears its counts on every state change, so consecutive failures
// are tracked here as well and only reset by a success.
type breaker struct {
	cb *gobreaker.TwoStepCircuitBreaker

	mu            sync.Mutex
	failures      int
	lastFailureAt time.Time
}

func newBreaker(name string, threshold int, resetTimeout time.Duration, logger zerolog.Logger) *breaker {
	b := &breaker{}

	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name: name,
		// A single probe call is allowed while half-open.
		MaxRequests: 1,
		// Counts are only cleared on state change or success.
		Interval: 0,
		Timeout:  resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerState.WithLabelValues(name).Set(stateValue(to))

			event := logger.Info()
			if to == gobreaker.StateOpen {
				event = logger.Error()
			}
			event.
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	breakerState.WithLabelValues(name).Set(0)

	return b
}

// allow asks the breaker for permission. The returned state is the one the
// call was admitted in.
func (b *breaker) allow() (func(success bool), gobreaker.State, error) {
	done, err := b.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, gobreaker.StateOpen, ErrCircuitOpen
		}
		return nil, gobreaker.StateOpen, err
	}

	report := func(success bool) {
		if success {
			b.mu.Lock()
			b.failures = 0
			b.mu.Unlock()
		}
		done(success)
	}
	return report, b.cb.State(), nil
}

func (b *breaker) recordFailure(now time.Time) {
	b.mu.Lock()
	b.failures++
	b.lastFailureAt = now
	b.mu.Unlock()
}

func (b *breaker) status() BreakerStatus {
	b.mu.Lock()
	failures, last := b.failures, b.lastFailureAt
	b.mu.Unlock()

	state := b.cb.State()
	return BreakerStatus{
		Name:                b.cb.Name(),
		State:               state.String(),
		Open:                state == gobreaker.StateOpen,
		ConsecutiveFailures: failures,
		LastFailureAt:       last,
	}
}
