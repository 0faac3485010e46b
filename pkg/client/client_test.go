package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/steam-relay/internal/testutil"
)

// sleepRecorder replaces real sleeps so tests run instantly.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func newTestClient(t *testing.T, baseURL string, mutate func(*Config)) (*Client, *sleepRecorder) {
	t.Helper()

	cfg := DefaultConfig("test", baseURL)
	cfg.APIKey = "test-key"
	cfg.Timeout = 2 * time.Second
	cfg.RetryDelay = time.Millisecond
	cfg.MinRequestInterval = 0
	cfg.ResetTimeout = 50 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	rec := &sleepRecorder{}
	c.sleep = rec.sleep
	t.Cleanup(func() { c.Close() })
	return c, rec
}

func TestNew_Validation(t *testing.T) {
	valid := DefaultConfig("web-api", "https://api.steampowered.com")

	tests := []struct {
		name     string
		mutate   func(*Config)
		errorMsg string
	}{
		{name: "valid config"},
		{
			name:     "empty name",
			mutate:   func(c *Config) { c.Name = "" },
			errorMsg: "name is required",
		},
		{
			name:     "empty base url",
			mutate:   func(c *Config) { c.BaseURL = "" },
			errorMsg: "base url is required",
		},
		{
			name:     "empty user agent",
			mutate:   func(c *Config) { c.UserAgent = "" },
			errorMsg: "user-agent is required",
		},
		{
			name:     "negative retries",
			mutate:   func(c *Config) { c.RetryAttempts = -1 },
			errorMsg: "retry_attempts must be >= 0 (got -1)",
		},
		{
			name:     "no concurrency",
			mutate:   func(c *Config) { c.MaxConcurrentRequests = 0 },
			errorMsg: "max_concurrent_requests must be >= 1 (got 0)",
		},
		{
			name:     "zero failure threshold",
			mutate:   func(c *Config) { c.FailureThreshold = 0 },
			errorMsg: "failure_threshold must be >= 1 (got 0)",
		},
		{
			name:     "zero timeout",
			mutate:   func(c *Config) { c.Timeout = 0 },
			errorMsg: "timeout must be > 0 (got 0s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}

			_, err := New(cfg)
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("New() unexpected error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("New() expected error %q, got nil", tt.errorMsg)
			}
			if err.Error() != tt.errorMsg {
				t.Errorf("Error message = %q, want %q", err.Error(), tt.errorMsg)
			}
		})
	}
}

func TestClient_Do_Success(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetPlayerCount(1234)

	c, _ := newTestClient(t, mock.URL(), nil)

	resp, err := c.Do(context.Background(), Request{
		Endpoint: testutil.PathPlayerCount,
		Params:   map[string][]string{"appid": {"440"}},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if resp.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", resp.RetryCount)
	}
	if resp.Latency <= 0 {
		t.Error("Latency not recorded")
	}

	var body struct {
		Response struct {
			PlayerCount int `json:"player_count"`
		} `json:"response"`
	}
	if err := resp.Decode(&body); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if body.Response.PlayerCount != 1234 {
		t.Errorf("player_count = %d, want 1234", body.Response.PlayerCount)
	}

	q := mock.LastQuery()
	if q.Get("key") != "test-key" {
		t.Errorf("key param = %q, want test-key", q.Get("key"))
	}
	if q.Get("appid") != "440" {
		t.Errorf("appid param = %q, want 440", q.Get("appid"))
	}

	h := mock.LastHeader()
	if h.Get("User-Agent") != "steam-relay/1.0" {
		t.Errorf("User-Agent = %q", h.Get("User-Agent"))
	}
	if h.Get("Accept") != "application/json" {
		t.Errorf("Accept = %q", h.Get("Accept"))
	}
}

func TestClient_Do_KeepsExplicitKey(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetPlayerCount(1)

	c, _ := newTestClient(t, mock.URL(), nil)

	_, err := c.Do(context.Background(), Request{
		Endpoint: testutil.PathPlayerCount,
		Params:   map[string][]string{"key": {"caller-key"}},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got := mock.LastQuery()["key"]; len(got) != 1 || got[0] != "caller-key" {
		t.Errorf("key param = %v, want [caller-key]", got)
	}
}

func TestClient_Do_RetryThenSuccess(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()

	mock.SetSequence(testutil.PathPlayerCount,
		testutil.NewServerErrorResponse(),
		testutil.NewServerErrorResponse(),
		testutil.NewServerErrorResponse(),
		testutil.NewOKResponse(`{"response":{"player_count":5}}`),
	)

	c, rec := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.RetryAttempts = 3 })

	resp, err := c.Do(context.Background(), Request{Endpoint: testutil.PathPlayerCount})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if resp.RetryCount != 3 {
		t.Errorf("RetryCount = %d, want 3", resp.RetryCount)
	}
	if got := mock.GetPathCount(testutil.PathPlayerCount); got != 4 {
		t.Errorf("network attempts = %d, want 4", got)
	}

	want := []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond}
	got := rec.recorded()
	if len(got) != len(want) {
		t.Fatalf("backoffs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("backoff[%d] = %v, want %v", i, got[i], want[i])
		}
	}

	if s := c.BreakerStatus(); s.ConsecutiveFailures != 0 {
		t.Errorf("ConsecutiveFailures = %d, want 0", s.ConsecutiveFailures)
	}
}

func TestClient_Do_NotFoundNotRetried(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetResponse(testutil.PathPlayerSummaries, testutil.NewNotFoundResponse())

	c, rec := newTestClient(t, mock.URL(), nil)

	_, err := c.Do(context.Background(), Request{Endpoint: testutil.PathPlayerSummaries})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Do() error = %v, want ErrNotFound", err)
	}
	if got := mock.GetPathCount(testutil.PathPlayerSummaries); got != 1 {
		t.Errorf("network attempts = %d, want 1", got)
	}
	if len(rec.recorded()) != 0 {
		t.Errorf("unexpected backoff sleeps: %v", rec.recorded())
	}
	if s := c.BreakerStatus(); s.ConsecutiveFailures != 0 {
		t.Errorf("404 counted against breaker: ConsecutiveFailures = %d", s.ConsecutiveFailures)
	}
}

func TestClient_Do_ClientErrorNotRetried(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetResponse(testutil.PathOwnedGames, testutil.MockResponse{StatusCode: http.StatusForbidden, Body: `{}`})

	c, _ := newTestClient(t, mock.URL(), nil)

	_, err := c.Do(context.Background(), Request{Endpoint: testutil.PathOwnedGames})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Do() error = %v, want ErrUpstream", err)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Do() error type = %T, want *APIError", err)
	}
	if apiErr.ErrorClass != ErrorClassClient || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("APIError = %+v, want client/403", apiErr)
	}
	if got := mock.GetPathCount(testutil.PathOwnedGames); got != 1 {
		t.Errorf("network attempts = %d, want 1", got)
	}
}

func TestClient_Do_RetriesExhausted(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetResponse(testutil.PathPlayerCount, testutil.NewServerErrorResponse())

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.RetryAttempts = 2 })

	_, err := c.Do(context.Background(), Request{Endpoint: testutil.PathPlayerCount})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("Do() error = %v, want ErrUpstream", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("server error reported as timeout")
	}
	if got := mock.GetPathCount(testutil.PathPlayerCount); got != 3 {
		t.Errorf("network attempts = %d, want 3", got)
	}

	s := c.BreakerStatus()
	if s.ConsecutiveFailures != 1 {
		t.Errorf("ConsecutiveFailures = %d, want 1", s.ConsecutiveFailures)
	}
	if s.LastFailureAt.IsZero() {
		t.Error("LastFailureAt not set")
	}
}

func TestClient_Do_InvalidJSONRetried(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetSequence(testutil.PathPlayerCount,
		testutil.NewOKResponse(`<html>maintenance</html>`),
		testutil.NewOKResponse(`{"response":{"player_count":1}}`),
	)

	c, _ := newTestClient(t, mock.URL(), nil)

	resp, err := c.Do(context.Background(), Request{Endpoint: testutil.PathPlayerCount})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if resp.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", resp.RetryCount)
	}
}

func TestClient_Do_RateLimitWaitsRetryAfter(t *testing.T) {
	tests := []struct {
		name       string
		retryAfter string
		wantWait   time.Duration
	}{
		{"seconds header", "7", 7 * time.Second},
		{"missing header uses default", "", 60 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockSteam()
			defer mock.Close()
			mock.SetSequence(testutil.PathPlayerCount,
				testutil.NewRateLimitResponse(tt.retryAfter),
				testutil.NewOKResponse(`{"response":{"player_count":1}}`),
			)

			c, rec := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.RetryAttempts = 0 })

			resp, err := c.Do(context.Background(), Request{Endpoint: testutil.PathPlayerCount})
			if err != nil {
				t.Fatalf("Do() error = %v", err)
			}

			// 429 waits do not consume the retry budget
			if resp.RetryCount != 0 {
				t.Errorf("RetryCount = %d, want 0", resp.RetryCount)
			}
			waits := rec.recorded()
			if len(waits) != 1 || waits[0] != tt.wantWait {
				t.Errorf("waits = %v, want [%v]", waits, tt.wantWait)
			}
		})
	}
}

func TestClient_Do_RateLimitPersists(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetResponse(testutil.PathPlayerCount, testutil.NewRateLimitResponse("1"))

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.MaxRateLimitWaits = 2 })

	_, err := c.Do(context.Background(), Request{Endpoint: testutil.PathPlayerCount})
	if !errors.Is(err, ErrUpstreamRateLimited) {
		t.Fatalf("Do() error = %v, want ErrUpstreamRateLimited", err)
	}
	if got := mock.GetPathCount(testutil.PathPlayerCount); got != 3 {
		t.Errorf("network attempts = %d, want 3", got)
	}
}

func TestClient_Do_Timeout(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetResponse(testutil.PathPlayerCount, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Delay:      500 * time.Millisecond,
	})

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.RetryAttempts = 1
		cfg.Timeout = 20 * time.Millisecond
	})

	_, err := c.Do(context.Background(), Request{Endpoint: testutil.PathPlayerCount})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Do() error = %v, want ErrTimeout", err)
	}
	if errors.Is(err, ErrUpstream) {
		t.Error("timeout also matched ErrUpstream")
	}
	if got := mock.GetPathCount(testutil.PathPlayerCount); got != 2 {
		t.Errorf("network attempts = %d, want 2", got)
	}
}

func TestClient_Do_PerRequestTimeout(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetResponse(testutil.PathPlayerCount, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Delay:      300 * time.Millisecond,
	})

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) { cfg.RetryAttempts = 0 })

	_, err := c.Do(context.Background(), Request{
		Endpoint: testutil.PathPlayerCount,
		Timeout:  20 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Do() error = %v, want ErrTimeout", err)
	}
}

func TestClient_Do_ContextCancelled(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetResponse(testutil.PathPlayerCount, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{}`,
		Delay:      time.Second,
	})

	c, _ := newTestClient(t, mock.URL(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := c.Do(ctx, Request{Endpoint: testutil.PathPlayerCount})
	if !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("Do() error = %v, want ErrContextCancelled", err)
	}

	s := c.BreakerStatus()
	if s.ConsecutiveFailures != 0 {
		t.Errorf("cancelled call counted against breaker: %d", s.ConsecutiveFailures)
	}
	if s.State != "closed" {
		t.Errorf("State = %q, want closed", s.State)
	}
}

func TestClient_CircuitBreaker(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetResponse(testutil.PathPlayerCount, testutil.NewServerErrorResponse())

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.RetryAttempts = 0
		cfg.FailureThreshold = 2
	})
	ctx := context.Background()
	req := Request{Endpoint: testutil.PathPlayerCount}

	for i := 0; i < 2; i++ {
		if _, err := c.Do(ctx, req); !errors.Is(err, ErrUpstream) {
			t.Fatalf("call %d: error = %v, want ErrUpstream", i+1, err)
		}
	}

	s := c.BreakerStatus()
	if !s.Open || s.State != "open" {
		t.Fatalf("breaker status = %+v, want open", s)
	}
	if s.ConsecutiveFailures != 2 {
		t.Errorf("ConsecutiveFailures while open = %d, want 2", s.ConsecutiveFailures)
	}

	// Fails fast without network I/O
	before := mock.GetRequestCount()
	if _, err := c.Do(ctx, req); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if mock.GetRequestCount() != before {
		t.Error("open breaker made a network call")
	}

	// After the reset timeout a successful probe closes the breaker
	time.Sleep(70 * time.Millisecond)
	mock.SetPlayerCount(1)

	if _, err := c.Do(ctx, req); err != nil {
		t.Fatalf("probe error = %v", err)
	}

	s = c.BreakerStatus()
	if s.Open || s.State != "closed" || s.ConsecutiveFailures != 0 {
		t.Errorf("breaker status after probe = %+v, want closed with 0 failures", s)
	}
}

func TestClient_CircuitBreaker_FailedProbeReopens(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetResponse(testutil.PathPlayerCount, testutil.NewServerErrorResponse())

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.RetryAttempts = 0
		cfg.FailureThreshold = 1
	})
	ctx := context.Background()
	req := Request{Endpoint: testutil.PathPlayerCount}

	c.Do(ctx, req)
	if !c.BreakerStatus().Open {
		t.Fatal("breaker not open after threshold")
	}

	time.Sleep(70 * time.Millisecond)

	if _, err := c.Do(ctx, req); !errors.Is(err, ErrUpstream) {
		t.Fatalf("probe error = %v, want ErrUpstream", err)
	}
	if _, err := c.Do(ctx, req); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("after failed probe error = %v, want ErrCircuitOpen", err)
	}
}

func TestClient_CircuitBreaker_AbandonedProbeReopens(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetResponse(testutil.PathPlayerCount, testutil.NewServerErrorResponse())

	c, _ := newTestClient(t, mock.URL(), func(cfg *Config) {
		cfg.RetryAttempts = 0
		cfg.FailureThreshold = 1
	})
	req := Request{Endpoint: testutil.PathPlayerCount}

	c.Do(context.Background(), req)
	if !c.BreakerStatus().Open {
		t.Fatal("breaker not open after threshold")
	}

	time.Sleep(70 * time.Millisecond)

	// The probe is admitted half-open, then its caller gives up mid-flight
	mock.SetResponse(testutil.PathPlayerCount, testutil.MockResponse{
		StatusCode: http.StatusOK,
		Body:       `{"response":{"player_count":1,"result":1}}`,
		Delay:      time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if _, err := c.Do(ctx, req); !errors.Is(err, ErrContextCancelled) {
		t.Fatalf("probe error = %v, want ErrContextCancelled", err)
	}

	s := c.BreakerStatus()
	if !s.Open || s.State != "open" {
		t.Fatalf("breaker status after abandoned probe = %+v, want open", s)
	}
	if _, err := c.Do(context.Background(), req); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("error after abandoned probe = %v, want ErrCircuitOpen", err)
	}

	// The next probe after another reset succeeds and closes the breaker
	time.Sleep(70 * time.Millisecond)
	mock.SetPlayerCount(1)

	if _, err := c.Do(context.Background(), req); err != nil {
		t.Fatalf("second probe error = %v", err)
	}
	s = c.BreakerStatus()
	if s.Open || s.State != "closed" || s.ConsecutiveFailures != 0 {
		t.Errorf("breaker status after probe = %+v, want closed with 0 failures", s)
	}
}

func TestClient_Stats(t *testing.T) {
	mock := testutil.NewMockSteam()
	defer mock.Close()
	mock.SetPlayerCount(1)
	mock.SetResponse(testutil.PathPlayerSummaries, testutil.NewNotFoundResponse())

	c, _ := newTestClient(t, mock.URL(), nil)
	ctx := context.Background()

	c.Do(ctx, Request{Endpoint: testutil.PathPlayerCount})
	c.Do(ctx, Request{Endpoint: testutil.PathPlayerSummaries})

	s := c.Stats()
	if s.Requests != 2 {
		t.Errorf("Requests = %d, want 2", s.Requests)
	}
	if s.Errors != 1 {
		t.Errorf("Errors = %d, want 1", s.Errors)
	}
	if s.AverageLatency <= 0 {
		t.Error("AverageLatency not recorded")
	}
}
