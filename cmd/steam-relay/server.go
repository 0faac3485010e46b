package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/steam-relay/internal/commands"
	"github.com/Sternrassler/steam-relay/pkg/metrics"
	"github.com/Sternrassler/steam-relay/pkg/ratelimit"
	"github.com/Sternrassler/steam-relay/pkg/steam"
)

const (
	headerCallerID  = "X-Caller-ID"
	headerRequestID = "X-Request-ID"

	maxCommandBody = 4 << 10
)

type requestIDKey struct{}

// server exposes the command dispatcher and the façade's admin operations over HTTP.
type server struct {
	svc        *steam.Service
	dispatcher *commands.Dispatcher
	ready      func(ctx context.Context) error
	logger     zerolog.Logger
}

func newServer(svc *steam.Service, dispatcher *commands.Dispatcher, ready func(ctx context.Context) error, logger zerolog.Logger) *server {
	if ready == nil {
		ready = func(context.Context) error { return nil }
	}
	return &server{svc: svc, dispatcher: dispatcher, ready: ready, logger: logger}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/health", s.healthHandler)
	r.Get("/ready", s.readyHandler)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/commands", s.listCommands)
		r.Post("/commands", s.executeCommand)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/cache", s.cacheInfo)
		r.Delete("/cache", s.cacheClear)
		r.Get("/ratelimit/{caller}", s.rateLimit)
		r.Get("/breakers", s.breakers)
		r.Get("/stats", s.stats)
	})

	return r
}

// requestID tags each request with an ID, reusing a well-formed incoming one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.New().String()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", requestIDFrom(r.Context())).
			Str("caller", r.Header.Get(headerCallerID)).
			Msg("HTTP request")
	})
}

func (s *server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *server) readyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.ready(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *server) listCommands(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Commands())
}

type commandResponse struct {
	RequestID string           `json:"request_id"`
	Result    *commands.Result `json:"result"`
}

type errorResponse struct {
	RequestID  string `json:"request_id,omitempty"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func (s *server) executeCommand(w http.ResponseWriter, r *http.Request) {
	var req commands.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid request body", 0)
		return
	}

	res, err := s.dispatcher.Execute(r.Context(), r.Header.Get(headerCallerID), req)
	if err != nil {
		s.commandError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, commandResponse{RequestID: requestIDFrom(r.Context()), Result: res})
}

// commandError maps façade errors to statuses. Upstream details stay in the log.
func (s *server) commandError(w http.ResponseWriter, r *http.Request, err error) {
	var limitErr *ratelimit.LimitError

	switch {
	case errors.As(err, &limitErr):
		secs := int(limitErr.RetryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		s.writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, please wait before making more requests", secs)
	case errors.Is(err, commands.ErrInvalidArgument):
		s.writeError(w, r, http.StatusBadRequest, err.Error(), 0)
	case errors.Is(err, commands.ErrUnknownCommand):
		s.writeError(w, r, http.StatusNotFound, err.Error(), 0)
	case errors.Is(err, steam.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, "not found or private", 0)
	case errors.Is(err, steam.ErrCircuitOpen), errors.Is(err, steam.ErrUpstreamRateLimited):
		s.writeError(w, r, http.StatusServiceUnavailable, "Steam is temporarily unavailable, try again later", 0)
	case errors.Is(err, steam.ErrTimeout):
		s.writeError(w, r, http.StatusGatewayTimeout, "Steam did not respond in time", 0)
	case errors.Is(err, steam.ErrContextCancelled):
		s.writeError(w, r, http.StatusServiceUnavailable, "request cancelled", 0)
	default:
		s.logger.Error().Err(err).Str("request_id", requestIDFrom(r.Context())).Msg("Command failed")
		s.writeError(w, r, http.StatusBadGateway, "Steam request failed", 0)
	}
}

func (s *server) cacheInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.CacheInfo())
}

func (s *server) cacheClear(w http.ResponseWriter, _ *http.Request) {
	s.svc.CacheClear()
	w.WriteHeader(http.StatusNoContent)
}

type rateLimitResponse struct {
	CallerID       string  `json:"caller_id"`
	Remaining      int     `json:"remaining"`
	ResetInSeconds float64 `json:"reset_in_seconds"`
}

func (s *server) rateLimit(w http.ResponseWriter, r *http.Request) {
	caller := chi.URLParam(r, "caller")

	remaining, err := s.svc.RateLimitRemaining(r.Context(), caller)
	if err != nil {
		s.logger.Error().Err(err).Str("caller", caller).Msg("Rate limit lookup failed")
		s.writeError(w, r, http.StatusServiceUnavailable, "rate limiter unavailable", 0)
		return
	}
	resetIn, err := s.svc.RateLimitResetIn(r.Context(), caller)
	if err != nil {
		s.logger.Error().Err(err).Str("caller", caller).Msg("Rate limit lookup failed")
		s.writeError(w, r, http.StatusServiceUnavailable, "rate limiter unavailable", 0)
		return
	}

	writeJSON(w, http.StatusOK, rateLimitResponse{
		CallerID:       caller,
		Remaining:      remaining,
		ResetInSeconds: resetIn.Seconds(),
	})
}

func (s *server) breakers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.CircuitBreakerStatus())
}

func (s *server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, retryAfter int) {
	writeJSON(w, status, errorResponse{
		RequestID:  requestIDFrom(r.Context()),
		Error:      msg,
		RetryAfter: retryAfter,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
