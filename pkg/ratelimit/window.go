package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Window is an in-memory sliding-window limiter keyed by caller.
// Check-and-record happens under one mutex, so concurrent callers can never
// overshoot MaxRequests.
type Window struct {
	mu     sync.Mutex
	calls  map[string][]time.Time // oldest first
	cfg    Config
	logger zerolog.Logger
}

// NewWindow creates an in-memory limiter.
func NewWindow(cfg Config, logger zerolog.Logger) (*Window, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Window{
		calls:  make(map[string][]time.Time),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Allow admits and records the call if callerID has budget left.
func (w *Window) Allow(_ context.Context, callerID string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.cfg.Clock()
	calls := w.prune(callerID, now)

	if len(calls) >= w.cfg.MaxRequests {
		w.logger.Debug().
			Str("caller", callerID).
			Int("count", len(calls)).
			Msg("Rate limit reached, denying call")
		recordDecision(backendMemory, false)
		return false, nil
	}

	if len(calls) == 0 {
		trackedCallers.Inc()
	}
	w.calls[callerID] = append(calls, now)
	recordDecision(backendMemory, true)
	return true, nil
}

// Remaining returns the caller's unused budget in the current window.
func (w *Window) Remaining(_ context.Context, callerID string) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	calls := w.prune(callerID, w.cfg.Clock())
	remaining := w.cfg.MaxRequests - len(calls)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ResetIn returns the time until the oldest recorded call leaves the window,
// or zero if the caller may call now.
func (w *Window) ResetIn(_ context.Context, callerID string) (time.Duration, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.cfg.Clock()
	calls := w.prune(callerID, now)
	if len(calls) < w.cfg.MaxRequests {
		return 0, nil
	}
	return calls[0].Add(w.cfg.Window).Sub(now), nil
}

// Sweep drops callers whose windows have emptied and returns how many were dropped.
func (w *Window) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.cfg.Clock()
	dropped := 0
	for callerID := range w.calls {
		if len(w.prune(callerID, now)) == 0 {
			dropped++
		}
	}
	return dropped
}

// Callers returns the number of callers currently tracked.
func (w *Window) Callers() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.calls)
}

// prune removes timestamps at least Window old and returns what is left.
// Empty windows are deleted from the map. Must be called with mu held.
func (w *Window) prune(callerID string, now time.Time) []time.Time {
	calls, ok := w.calls[callerID]
	if !ok {
		return nil
	}

	i := 0
	for i < len(calls) && now.Sub(calls[i]) >= w.cfg.Window {
		i++
	}

	if i == len(calls) {
		delete(w.calls, callerID)
		trackedCallers.Dec()
		return nil
	}
	if i > 0 {
		calls = append(calls[:0], calls[i:]...)
		w.calls[callerID] = calls
	}
	return calls
}
