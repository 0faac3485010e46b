// Package client provides the resilient Steam HTTP client with retry,
// upstream rate-limit handling, request pacing and a circuit breaker.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// maxBodySize bounds how much of a response body is read.
const maxBodySize = 10 << 20

const tracerName = "github.com/Sternrassler/steam-relay/pkg/client"

// Client is a resilient HTTP client bound to one upstream base URL.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	retry      RetryConfig
	breaker    *breaker
	throttle   *rate.Limiter
	sem        *semaphore.Weighted
	tracer     trace.Tracer
	logger     zerolog.Logger
	sleep      sleepFunc

	statsMu sync.Mutex
	stats   Stats
}

// Config holds the client configuration.
type Config struct {
	// Name identifies the client in logs, metrics and breaker status (e.g., "web-api")
	Name string

	// BaseURL of the upstream (e.g., "https://api.steampowered.com")
	BaseURL string

	// APIKey is appended as the "key" query parameter when set and not already present
	APIKey string

	// UserAgent header sent with every request
	UserAgent string

	// Timeout per attempt (overridable per request)
	Timeout time.Duration

	// Retry
	RetryAttempts int           // Retries after the first attempt
	RetryDelay    time.Duration // Base backoff, doubled per attempt
	MaxRetryDelay time.Duration // Backoff cap (0 = uncapped)
	Jitter        float64       // Backoff randomness fraction (0 = none)

	// Pacing and concurrency
	MinRequestInterval    time.Duration // Minimum delay between network attempts
	MaxConcurrentRequests int           // Max parallel network attempts

	// Circuit breaker
	FailureThreshold int           // Consecutive failed fetches before opening
	ResetTimeout     time.Duration // Open duration before a probe is allowed

	// Upstream rate limiting (HTTP 429)
	DefaultRetryAfter time.Duration // Wait when Retry-After is absent
	MaxRateLimitWaits int           // 429 waits per fetch before giving up
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(name, baseURL string) Config {
	return Config{
		Name:                  name,
		BaseURL:               baseURL,
		UserAgent:             "steam-relay/1.0",
		Timeout:               30 * time.Second,
		RetryAttempts:         3,
		RetryDelay:            1 * time.Second,
		MaxRetryDelay:         30 * time.Second,
		MinRequestInterval:    100 * time.Millisecond,
		MaxConcurrentRequests: 10,
		FailureThreshold:      5,
		ResetTimeout:          60 * time.Second,
		DefaultRetryAfter:     60 * time.Second,
		MaxRateLimitWaits:     5,
	}
}

// Request describes one logical fetch.
type Request struct {
	// Endpoint path relative to the base URL (e.g., "/ISteamUser/GetPlayerSummaries/v2/")
	Endpoint string

	// Params are sent as the query string
	Params url.Values

	// Method defaults to GET
	Method string

	// Timeout overrides Config.Timeout for each attempt of this request
	Timeout time.Duration
}

// Response is a successfully fetched JSON document.
type Response struct {
	Data       json.RawMessage
	StatusCode int
	Header     http.Header
	Latency    time.Duration
	RetryCount int
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Stats holds usage statistics for a client.
type Stats struct {
	Requests       int64         `json:"requests"`
	Errors         int64         `json:"errors"`
	TotalLatency   time.Duration `json:"-"`
	AverageLatency time.Duration `json:"average_latency"`
}

// New creates a new Steam client.
func New(cfg Config) (*Client, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("name is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}

	if cfg.RetryAttempts < 0 {
		return nil, fmt.Errorf("retry_attempts must be >= 0 (got %d)", cfg.RetryAttempts)
	}

	if cfg.MaxConcurrentRequests < 1 {
		return nil, fmt.Errorf("max_concurrent_requests must be >= 1 (got %d)", cfg.MaxConcurrentRequests)
	}

	if cfg.FailureThreshold < 1 {
		return nil, fmt.Errorf("failure_threshold must be >= 1 (got %d)", cfg.FailureThreshold)
	}

	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		return nil, fmt.Errorf("jitter must be in [0, 1) (got %v)", cfg.Jitter)
	}

	// Initialize logger
	logger := log.With().Str("component", "steam-client").Str("client", cfg.Name).Logger()

	every := rate.Inf
	if cfg.MinRequestInterval > 0 {
		every = rate.Every(cfg.MinRequestInterval)
	}

	return &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		retry: RetryConfig{
			Attempts: cfg.RetryAttempts,
			Delay:    cfg.RetryDelay,
			MaxDelay: cfg.MaxRetryDelay,
			Jitter:   cfg.Jitter,
		},
		breaker:  newBreaker(cfg.Name, cfg.FailureThreshold, cfg.ResetTimeout, logger),
		throttle: rate.NewLimiter(every, 1),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		tracer:   otel.Tracer(tracerName),
		logger:   logger,
		sleep:    sleepContext,
	}, nil
}

// Do performs a fetch with circuit breaking, pacing, retry and 429 handling.
// The returned error matches one of the package sentinels with errors.Is.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "steam.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("steam.client", c.config.Name),
			attribute.String("steam.endpoint", req.Endpoint),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.do(ctx, req, start)
	elapsed := time.Since(start)

	requestDuration.WithLabelValues(c.config.Name, req.Endpoint).Observe(elapsed.Seconds())
	c.recordStats(elapsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("steam.retry_count", resp.RetryCount))
	return resp, nil
}

func (c *Client) do(ctx context.Context, req Request, start time.Time) (*Response, error) {
	endpoint := req.Endpoint

	target, err := c.buildURL(req)
	if err != nil {
		return nil, &APIError{ErrorClass: ErrorClassClient, Message: "build url", Err: err}
	}

	// Step 1: Check circuit breaker
	done, admittedIn, err := c.breaker.allow()
	if err != nil {
		breakerRejectionsTotal.WithLabelValues(c.config.Name).Inc()
		requestsTotal.WithLabelValues(c.config.Name, endpoint, "circuit_open").Inc()
		c.logger.Warn().Str("endpoint", endpoint).Msg("Circuit breaker open, failing fast")
		return nil, err
	}

	var lastErr *APIError
	rateLimitWaits := 0

	// Step 2: Attempt loop. 429 waits do not advance the attempt counter.
	for attempt := 0; attempt <= c.retry.Attempts; {
		resp, apiErr := c.attempt(ctx, req, target)

		if apiErr == nil {
			done(true)
			resp.Latency = time.Since(start)
			resp.RetryCount = attempt
			requestsTotal.WithLabelValues(c.config.Name, endpoint, strconv.Itoa(resp.StatusCode)).Inc()
			if attempt > 0 {
				c.logger.Info().
					Str("endpoint", endpoint).
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return resp, nil
		}

		if ctx.Err() != nil {
			return nil, c.abandon(ctx, done, admittedIn, endpoint)
		}

		errorsTotal.WithLabelValues(c.config.Name, string(apiErr.ErrorClass)).Inc()
		requestsTotal.WithLabelValues(c.config.Name, endpoint, statusLabel(apiErr)).Inc()

		switch {
		case apiErr.ErrorClass == ErrorClassRateLimit:
			rateLimitWaits++
			if rateLimitWaits > c.config.MaxRateLimitWaits {
				c.logger.Warn().
					Str("endpoint", endpoint).
					Int("waits", rateLimitWaits-1).
					Msg("Upstream rate limit persisted, giving up")
				c.fail(done)
				return nil, apiErr
			}

			wait := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now(), c.config.DefaultRetryAfter)
			c.logger.Warn().
				Str("endpoint", endpoint).
				Dur("retry_after", wait).
				Msg("Rate limited by Steam, waiting")
			if err := c.sleep(ctx, wait); err != nil {
				return nil, c.abandon(ctx, done, admittedIn, endpoint)
			}
			continue

		case !shouldRetry(apiErr.ErrorClass):
			// 404 and other client errors mean the upstream is healthy
			done(true)
			c.logger.Debug().
				Str("endpoint", endpoint).
				Int("status", apiErr.StatusCode).
				Str("error_class", string(apiErr.ErrorClass)).
				Msg("Request failed without retry")
			return nil, apiErr
		}

		lastErr = apiErr
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", apiErr.StatusCode).
			Str("error_class", string(apiErr.ErrorClass)).
			Int("attempt", attempt+1).
			Err(apiErr.Err).
			Msg("Steam request error")

		// If this was the last attempt, don't wait
		if attempt >= c.retry.Attempts {
			break
		}

		backoff := c.retry.Backoff(attempt)
		retriesTotal.WithLabelValues(c.config.Name, string(apiErr.ErrorClass)).Inc()
		retryBackoffSeconds.WithLabelValues(c.config.Name, string(apiErr.ErrorClass)).Observe(backoff.Seconds())
		c.logger.Debug().
			Str("endpoint", endpoint).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		if err := c.sleep(ctx, backoff); err != nil {
			return nil, c.abandon(ctx, done, admittedIn, endpoint)
		}
		attempt++
	}

	// All retries exhausted
	retryExhaustedTotal.WithLabelValues(c.config.Name, string(lastErr.ErrorClass)).Inc()
	c.logger.Warn().
		Str("endpoint", endpoint).
		Str("error_class", string(lastErr.ErrorClass)).
		Int("attempts", c.retry.Attempts+1).
		Msg("Retry attempts exhausted")
	c.fail(done)

	return nil, &APIError{
		StatusCode: lastErr.StatusCode,
		ErrorClass: lastErr.ErrorClass,
		Message:    fmt.Sprintf("retries exhausted after %d attempts: %s", c.retry.Attempts+1, lastErr.Message),
		Err:        lastErr.Err,
	}
}

// attempt performs one network round trip. On failure the returned Response,
// if non-nil, still carries the status and headers.
func (c *Client) attempt(ctx context.Context, req Request, target string) (*Response, *APIError) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "throttle wait", Err: err}
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, &APIError{ErrorClass: ErrorClassNetwork, Message: "acquire slot", Err: err}
	}
	defer c.sem.Release(1)

	timeout := c.config.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target, nil)
	if err != nil {
		return nil, &APIError{ErrorClass: ErrorClassClient, Message: "create request", Err: err}
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", req.Endpoint).
		Str("method", method).
		Msg("Executing Steam request")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, transportError(attemptCtx, err)
	}
	defer httpResp.Body.Close()

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
	}

	if class := classifyStatus(httpResp.StatusCode); class != "" {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(httpResp.Body, maxBodySize))
		return resp, &APIError{
			StatusCode: httpResp.StatusCode,
			ErrorClass: class,
			Message:    httpResp.Status,
		}
	}

	if httpResp.StatusCode != http.StatusOK {
		return resp, &APIError{
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    "unexpected status " + httpResp.Status,
		}
	}

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
	if err != nil {
		apiErr := transportError(attemptCtx, err)
		apiErr.StatusCode = httpResp.StatusCode
		return resp, apiErr
	}

	if !json.Valid(body) {
		return resp, &APIError{
			StatusCode: httpResp.StatusCode,
			ErrorClass: ErrorClassServer,
			Message:    "invalid JSON body",
		}
	}

	resp.Data = json.RawMessage(body)
	return resp, nil
}

// transportError classifies an error from the round trip or body read.
func transportError(attemptCtx context.Context, err error) *APIError {
	var netErr net.Error
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return &APIError{ErrorClass: ErrorClassTimeout, Message: "request timed out", Err: err}
	}
	return &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed", Err: err}
}

// fail reports a failed fetch to the breaker.
func (c *Client) fail(done func(bool)) {
	c.breaker.recordFailure(time.Now())
	done(false)
}

// abandon handles a fetch ended by the caller. A cancelled call is never a
// success; an abandoned half-open probe reopens the breaker so it cannot stay
// half-open forever.
func (c *Client) abandon(ctx context.Context, done func(bool), admittedIn gobreaker.State, endpoint string) error {
	if admittedIn == gobreaker.StateHalfOpen {
		done(false)
	}
	requestsTotal.WithLabelValues(c.config.Name, endpoint, "cancelled").Inc()
	c.logger.Debug().Str("endpoint", endpoint).Msg("Request cancelled by caller")
	return fmt.Errorf("%w: %v", ErrContextCancelled, context.Cause(ctx))
}

// buildURL joins the endpoint to the base URL and adds the API key.
func (c *Client) buildURL(req Request) (string, error) {
	u, err := url.Parse(c.baseURL + "/" + strings.TrimLeft(req.Endpoint, "/"))
	if err != nil {
		return "", err
	}

	q := u.Query()
	for name, values := range req.Params {
		for _, v := range values {
			q.Add(name, v)
		}
	}
	if c.config.APIKey != "" && !q.Has("key") {
		q.Set("key", c.config.APIKey)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *Client) recordStats(latency time.Duration, err error) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	c.stats.Requests++
	c.stats.TotalLatency += latency
	if err != nil {
		c.stats.Errors++
	}
}

// Stats returns usage statistics.
func (c *Client) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	s := c.stats
	if s.Requests > 0 {
		s.AverageLatency = s.TotalLatency / time.Duration(s.Requests)
	}
	return s
}

// BreakerStatus returns a snapshot of the circuit breaker.
func (c *Client) BreakerStatus() BreakerStatus {
	return c.breaker.status()
}

// Name returns the configured client name.
func (c *Client) Name() string {
	return c.config.Name
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func statusLabel(err *APIError) string {
	if err.StatusCode > 0 {
		return strconv.Itoa(err.StatusCode)
	}
	return string(err.ErrorClass)
}
