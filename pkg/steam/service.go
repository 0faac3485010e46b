// Package steam is the data-access façade over the Steam Web API and Store
// API. Every accessor checks the cache, then the caller's rate-limit window,
// then fetches through a resilient client and caches the result.
package steam

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/steam-relay/pkg/batch"
	"github.com/Sternrassler/steam-relay/pkg/cache"
	"github.com/Sternrassler/steam-relay/pkg/client"
	"github.com/Sternrassler/steam-relay/pkg/ratelimit"
)

// Upstream base URLs.
const (
	DefaultAPIBaseURL   = "https://api.steampowered.com"
	DefaultStoreBaseURL = "https://store.steampowered.com"
)

// DefaultLoadTimeout bounds a shared upstream load, which runs detached from
// the callers waiting on it.
const DefaultLoadTimeout = 2 * time.Minute

// Fetcher performs upstream requests. *client.Client implements it.
type Fetcher interface {
	Do(ctx context.Context, req client.Request) (*client.Response, error)
	BreakerStatus() client.BreakerStatus
}

// Sweeper is implemented by limiters that hold per-caller state in memory.
type Sweeper interface {
	Sweep() int
}

// Config holds the façade configuration.
type Config struct {
	// API is the Web API client (api.steampowered.com)
	API client.Config

	// Store is the Store API client (store.steampowered.com)
	Store client.Config

	// Cache sizing
	Cache cache.Config

	// RateLimit configures the in-memory limiter used when Limiter is nil
	RateLimit ratelimit.Config

	// Limiter overrides the in-memory limiter (e.g., a ratelimit.RedisWindow)
	Limiter ratelimit.Limiter

	// TTL per resource kind
	TTL TTLPolicy

	// TopGames bounds the player-count fan-out of GetTopGames
	TopGames batch.Config

	// LoadTimeout bounds one shared upstream load including retries (default: 2m)
	LoadTimeout time.Duration
}

// DefaultConfig returns the standard configuration for the given API key.
func DefaultConfig(apiKey string) Config {
	api := client.DefaultConfig("web-api", DefaultAPIBaseURL)
	api.APIKey = apiKey

	return Config{
		API:   api,
		Store: client.DefaultConfig("store-api", DefaultStoreBaseURL),
		Cache: cache.Config{MaxSize: cache.DefaultMaxSize},
		RateLimit: ratelimit.Config{
			MaxRequests: ratelimit.DefaultMaxRequests,
			Window:      ratelimit.DefaultWindow,
		},
		TTL:         DefaultTTLPolicy(),
		TopGames:    batch.DefaultConfig(),
		LoadTimeout: DefaultLoadTimeout,
	}
}

// Service is the data-access façade. It is safe for concurrent use.
type Service struct {
	api      Fetcher
	store    Fetcher
	cache    *cache.Memory
	limiter  ratelimit.Limiter
	ttl         TTLPolicy
	topGames    batch.Config
	loadTimeout time.Duration
	group       singleflight.Group
	logger      zerolog.Logger
}

// New builds a Service and its clients, cache and limiter from cfg.
func New(cfg Config) (*Service, error) {
	api, err := client.New(cfg.API)
	if err != nil {
		return nil, fmt.Errorf("create web api client: %w", err)
	}

	store, err := client.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("create store client: %w", err)
	}

	c, err := cache.NewMemory(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	limiter := cfg.Limiter
	if limiter == nil {
		w, err := ratelimit.NewWindow(cfg.RateLimit, log.With().Str("component", "ratelimit").Logger())
		if err != nil {
			return nil, fmt.Errorf("create rate limiter: %w", err)
		}
		limiter = w
	}

	s := NewService(api, store, c, limiter, cfg.TTL)
	s.topGames = cfg.TopGames
	if cfg.LoadTimeout > 0 {
		s.loadTimeout = cfg.LoadTimeout
	}
	return s, nil
}

// NewService wires a Service from explicit collaborators.
func NewService(api, store Fetcher, c *cache.Memory, limiter ratelimit.Limiter, ttl TTLPolicy) *Service {
	return &Service{
		api:         api,
		store:       store,
		cache:       c,
		limiter:     limiter,
		ttl:         ttl,
		topGames:    batch.DefaultConfig(),
		loadTimeout: DefaultLoadTimeout,
		logger:      log.With().Str("component", "steam-service").Logger(),
	}
}

// fetch serves key from the cache, or admits the caller and loads it.
// Concurrent loads of the same key are collapsed into one upstream call that
// keeps running when any one waiting caller gives up. With admit false the
// rate-limit check is skipped (used for fan-out inside an already admitted
// call).
func fetch[T any](ctx context.Context, s *Service, key cache.Key, admit bool, load func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	info := fetchInfoFrom(ctx)
	digest := key.Digest()

	if v, ok := s.cache.Get(digest); ok {
		info.Cached = true
		s.logger.Debug().Str("kind", key.Kind).Bool("cache_hit", true).Msg("Served from cache")
		return v.(T), nil
	}
	info.Cached = false

	if admit {
		caller := CallerFrom(ctx)
		allowed, err := s.limiter.Allow(ctx, caller)
		switch {
		case err != nil:
			// A broken limiter backend must not take the bot down
			s.logger.Warn().Err(err).Str("caller", caller).Msg("Rate limiter unavailable, admitting call")
		case !allowed:
			s.logger.Info().Str("caller", caller).Str("kind", key.Kind).Msg("Caller rate limited")
			return zero, ratelimit.Deny(ctx, s.limiter, caller)
		}
	}

	ch := s.group.DoChan(digest, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		// Nested fetches report into their own FetchInfo
		val, err := load(WithFetchInfo(loadCtx, &FetchInfo{}))
		if err != nil {
			return nil, err
		}
		s.cache.Set(digest, val, s.ttl.For(key.Kind))
		return val, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		s.logger.Debug().Str("kind", key.Kind).Str("caller", CallerFrom(ctx)).Msg("Caller stopped waiting for fetch")
		return zero, fmt.Errorf("%s: %w: %v", key.Kind, ErrContextCancelled, context.Cause(ctx))
	}
	info.Cached = false
	info.Shared = res.Shared

	if res.Err != nil {
		s.logger.Debug().Err(res.Err).Str("kind", key.Kind).Msg("Fetch failed")
		return zero, fmt.Errorf("%s: %w", key.Kind, res.Err)
	}
	return res.Val.(T), nil
}

// getJSON fetches endpoint from f and decodes the body into v.
func getJSON(ctx context.Context, f Fetcher, endpoint string, params url.Values, v any) error {
	resp, err := f.Do(ctx, client.Request{Endpoint: endpoint, Params: params})
	if err != nil {
		return err
	}
	if err := resp.Decode(v); err != nil {
		return &client.APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: client.ErrorClassServer,
			Message:    "unexpected response shape",
			Err:        err,
		}
	}
	return nil
}

// CacheInfo returns cache size, capacity and counters.
func (s *Service) CacheInfo() cache.Info {
	return s.cache.Info()
}

// CacheClear drops every cached entry.
func (s *Service) CacheClear() {
	s.cache.Clear()
	s.logger.Info().Msg("Cache cleared")
}

// RateLimitRemaining returns how many uncached calls callerID may still make
// in the current window.
func (s *Service) RateLimitRemaining(ctx context.Context, callerID string) (int, error) {
	return s.limiter.Remaining(ctx, callerID)
}

// RateLimitResetIn returns how long until callerID regains a slot.
func (s *Service) RateLimitResetIn(ctx context.Context, callerID string) (time.Duration, error) {
	return s.limiter.ResetIn(ctx, callerID)
}

// CircuitBreakerStatus returns the breaker of each upstream client.
func (s *Service) CircuitBreakerStatus() []client.BreakerStatus {
	return []client.BreakerStatus{s.api.BreakerStatus(), s.store.BreakerStatus()}
}

// ClientStats is the usage statistics of one upstream client.
type ClientStats struct {
	Name string `json:"name"`
	client.Stats
}

// Stats returns usage statistics for clients that track them.
func (s *Service) Stats() []ClientStats {
	var out []ClientStats
	for _, f := range []Fetcher{s.api, s.store} {
		if st, ok := f.(interface{ Stats() client.Stats }); ok {
			out = append(out, ClientStats{Name: f.BreakerStatus().Name, Stats: st.Stats()})
		}
	}
	return out
}

// SweepResult reports what a Sweep removed.
type SweepResult struct {
	ExpiredEntries int `json:"expired_entries"`
	IdleCallers    int `json:"idle_callers"`
}

// Sweep purges expired cache entries and idle rate-limit windows. The
// application calls it on a schedule.
func (s *Service) Sweep() SweepResult {
	res := SweepResult{ExpiredEntries: s.cache.EvictExpired()}
	if sw, ok := s.limiter.(Sweeper); ok {
		res.IdleCallers = sw.Sweep()
	}

	s.logger.Debug().
		Int("expired_entries", res.ExpiredEntries).
		Int("idle_callers", res.IdleCallers).
		Msg("Sweep complete")
	return res
}

// Close releases the upstream clients.
func (s *Service) Close() error {
	for _, f := range []Fetcher{s.api, s.store} {
		if c, ok := f.(io.Closer); ok {
			if err := c.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
