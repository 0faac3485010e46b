package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Config holds batch fetcher configuration
type Config struct {
	// MaxConcurrency is the maximum number of parallel fetches.
	// Each fetch still goes through the client's own pacing and concurrency limits.
	MaxConcurrency int
	// Timeout per item fetch
	Timeout time.Duration
}

// DefaultConfig returns safe default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 5,
		Timeout:        15 * time.Second,
	}
}

// FetchFunc fetches a single item.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Result represents the result of fetching a single item
type Result[K comparable, V any] struct {
	Key   K
	Value V
	Err   error
}

// Fetcher handles parallel fetching of many items
type Fetcher[K comparable, V any] struct {
	fetch  FetchFunc[K, V]
	config Config
}

// New creates a new batch fetcher
func New[K comparable, V any](fetch FetchFunc[K, V], config Config) *Fetcher[K, V] {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}

	return &Fetcher[K, V]{
		fetch:  fetch,
		config: config,
	}
}

// FetchAll fetches every key in parallel and returns results in input order.
// Individual failures are reported per result; an error is returned only if
// the context ended or every fetch failed.
func (f *Fetcher[K, V]) FetchAll(ctx context.Context, keys []K) ([]Result[K, V], error) {
	start := time.Now()
	results := make([]Result[K, V], len(keys))
	if len(keys) == 0 {
		return results, nil
	}

	var g errgroup.Group
	g.SetLimit(f.config.MaxConcurrency)

	for i, key := range keys {
		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			itemCtx, cancel := context.WithTimeout(ctx, f.config.Timeout)
			defer cancel()

			value, err := f.fetch(itemCtx, key)
			results[i] = Result[K, V]{Key: key, Value: value, Err: err}
			if err != nil {
				log.Warn().
					Err(err).
					Interface("key", key).
					Msg("Batch item fetch failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return results, fmt.Errorf("batch fetch cancelled: %w", err)
	}

	failed := 0
	var firstErr error
	for _, r := range results {
		if r.Err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.Err
			}
		}
	}

	log.Debug().
		Int("items", len(keys)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")

	if failed == len(keys) {
		return results, fmt.Errorf("all %d fetches failed: %w", failed, firstErr)
	}
	return results, nil
}
