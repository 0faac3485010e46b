// Command steam-relay serves Steam lookups over HTTP with caching, per-caller
// rate limiting and a resilient upstream client.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/steam-relay/internal/commands"
	"github.com/Sternrassler/steam-relay/internal/config"
	"github.com/Sternrassler/steam-relay/pkg/logging"
	"github.com/Sternrassler/steam-relay/pkg/ratelimit"
	"github.com/Sternrassler/steam-relay/pkg/steam"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Relay stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logging.Setup(cfg.ToLoggingConfig())
	logger := logging.NewLogger("relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	steamCfg := cfg.ToSteamConfig()
	ready := func(context.Context) error { return nil }

	if cfg.RateLimit.Backend == config.BackendRedis {
		redisClient := redis.NewClient(cfg.RateLimit.ToRedisOptions())
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.RateLimit.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.RateLimit.RedisAddr).Msg("Connected to Redis")

		limiter, err := ratelimit.NewRedisWindow(redisClient, steamCfg.RateLimit, logging.NewLogger("ratelimit"))
		if err != nil {
			return fmt.Errorf("create redis limiter: %w", err)
		}
		steamCfg.Limiter = limiter
		ready = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	svc, err := steam.New(steamCfg)
	if err != nil {
		return fmt.Errorf("create steam service: %w", err)
	}
	defer svc.Close()

	srv := newServer(svc, commands.New(svc), ready, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go sweepLoop(ctx, svc, cfg.Server.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", httpServer.Addr).
			Str("ratelimit_backend", cfg.RateLimit.Backend).
			Msg("Starting Steam relay")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// sweepLoop purges expired cache entries and idle limiter windows until ctx ends.
func sweepLoop(ctx context.Context, svc *steam.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.Sweep()
		}
	}
}
