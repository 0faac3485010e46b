package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKeyPrefix namespaces per-caller sorted sets.
const RedisKeyPrefix = "steam:ratelimit:"

// allowScript prunes, counts and conditionally records in one round trip.
// Scores are microseconds; entries with score <= cutoff have aged out.
// Arguments are passed pre-computed so Lua never formats large numbers.
var allowScript = redis.NewScript(`
local key = KEYS[1]

redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
if count >= tonumber(ARGV[3]) then
	return 0
end

redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return 1
`)

// RedisWindow is a sliding-window limiter whose state lives in Redis, so
// several relay instances share one budget per caller.
type RedisWindow struct {
	redis  *redis.Client
	cfg    Config
	logger zerolog.Logger
}

// NewRedisWindow creates a Redis-backed limiter.
func NewRedisWindow(redisClient *redis.Client, cfg Config, logger zerolog.Logger) (*RedisWindow, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &RedisWindow{
		redis:  redisClient,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Allow admits and records the call if callerID has budget left.
func (w *RedisWindow) Allow(ctx context.Context, callerID string) (bool, error) {
	now := w.cfg.Clock().UnixMicro()
	cutoff := now - w.cfg.Window.Microseconds()
	ttl := w.cfg.Window.Milliseconds() + 1

	res, err := allowScript.Run(ctx, w.redis,
		[]string{RedisKeyPrefix + callerID},
		now, cutoff, w.cfg.MaxRequests, uuid.NewString(), ttl,
	).Int()
	if err != nil {
		return false, fmt.Errorf("run allow script: %w", err)
	}

	allowed := res == 1
	recordDecision(backendRedis, allowed)
	if !allowed {
		w.logger.Debug().Str("caller", callerID).Msg("Rate limit reached, denying call")
	}
	return allowed, nil
}

// Remaining returns the caller's unused budget in the current window.
func (w *RedisWindow) Remaining(ctx context.Context, callerID string) (int, error) {
	key := RedisKeyPrefix + callerID
	now := w.cfg.Clock().UnixMicro()

	pipe := w.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprint(now-w.cfg.Window.Microseconds()))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("count window: %w", err)
	}

	remaining := w.cfg.MaxRequests - int(card.Val())
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// ResetIn returns the time until the oldest recorded call leaves the window,
// or zero if the caller may call now.
func (w *RedisWindow) ResetIn(ctx context.Context, callerID string) (time.Duration, error) {
	key := RedisKeyPrefix + callerID
	now := w.cfg.Clock().UnixMicro()

	pipe := w.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprint(now-w.cfg.Window.Microseconds()))
	card := pipe.ZCard(ctx, key)
	oldest := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("read window: %w", err)
	}

	if int(card.Val()) < w.cfg.MaxRequests || len(oldest.Val()) == 0 {
		return 0, nil
	}

	freeAt := int64(oldest.Val()[0].Score) + w.cfg.Window.Microseconds()
	return time.Duration(freeAt-now) * time.Microsecond, nil
}
