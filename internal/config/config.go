// Package config loads the relay configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/steam-relay/pkg/batch"
	"github.com/Sternrassler/steam-relay/pkg/cache"
	"github.com/Sternrassler/steam-relay/pkg/client"
	"github.com/Sternrassler/steam-relay/pkg/logging"
	"github.com/Sternrassler/steam-relay/pkg/ratelimit"
	"github.com/Sternrassler/steam-relay/pkg/steam"
)

// Rate limiter backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config represents the relay configuration.
type Config struct {
	Steam     SteamConfig     `split_words:"true"`
	Cache     CacheConfig     `split_words:"true"`
	RateLimit RateLimitConfig `split_words:"true"`
	Log       LogConfig       `split_words:"true"`
	Server    ServerConfig    `split_words:"true"`
}

// SteamConfig contains upstream client settings shared by the Web API and
// Store API clients.
type SteamConfig struct {
	APIKey                string        `envconfig:"STEAM_API_KEY" required:"true" validate:"required"`
	APIBaseURL            string        `envconfig:"STEAM_API_BASE_URL" default:"https://api.steampowered.com" validate:"required,url"`
	StoreBaseURL          string        `envconfig:"STEAM_STORE_BASE_URL" default:"https://store.steampowered.com" validate:"required,url"`
	UserAgent             string        `envconfig:"USER_AGENT" default:"steam-relay/1.0" validate:"required"`
	RequestTimeout        time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s" validate:"gt=0"`
	RetryAttempts         int           `envconfig:"RETRY_ATTEMPTS" default:"3" validate:"min=0,max=10"`
	RetryDelay            time.Duration `envconfig:"RETRY_DELAY" default:"1s" validate:"gt=0"`
	RequestInterval       time.Duration `envconfig:"REQUEST_INTERVAL" default:"100ms" validate:"gte=0"`
	MaxConcurrentRequests int           `envconfig:"MAX_CONCURRENT_REQUESTS" default:"10" validate:"min=1"`
	FailureThreshold      int           `envconfig:"CIRCUIT_FAILURE_THRESHOLD" default:"5" validate:"min=1"`
	ResetTimeout          time.Duration `envconfig:"CIRCUIT_RESET_TIMEOUT" default:"60s" validate:"gt=0"`
	TopGamesConcurrency   int           `envconfig:"TOP_GAMES_CONCURRENCY" default:"5" validate:"min=1"`
	LoadTimeout           time.Duration `envconfig:"LOAD_TIMEOUT" default:"2m" validate:"gt=0"`
}

// CacheConfig contains cache sizing and lifetimes.
type CacheConfig struct {
	MaxSize        int           `envconfig:"CACHE_MAX_SIZE" default:"1000" validate:"min=1"`
	DefaultTTL     time.Duration `envconfig:"CACHE_DEFAULT_TTL" default:"5m" validate:"gt=0"`
	PlayerCountTTL time.Duration `envconfig:"CACHE_PLAYER_COUNT_TTL" default:"2m" validate:"gt=0"`
	GameTTL        time.Duration `envconfig:"CACHE_GAME_TTL" default:"1h" validate:"gt=0"`
	FeaturedTTL    time.Duration `envconfig:"CACHE_FEATURED_TTL" default:"10m" validate:"gt=0"`
	NewsTTL        time.Duration `envconfig:"CACHE_NEWS_TTL" default:"10m" validate:"gt=0"`
}

// RateLimitConfig contains per-caller limiter settings.
type RateLimitConfig struct {
	MaxRequests   int           `envconfig:"RATE_LIMIT_MAX_REQUESTS" default:"15" validate:"min=1"`
	Window        time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"60s" validate:"gt=0"`
	Backend       string        `envconfig:"RATE_LIMIT_BACKEND" default:"memory" validate:"oneof=memory redis"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" validate:"required_if=Backend redis"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0" validate:"min=0"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// ServerConfig contains relay server settings.
type ServerConfig struct {
	Port            int           `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m" validate:"gt=0"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s" validate:"gt=0"`
}

// Load reads the given .env files (".env" when none are given) into the
// environment, then processes and validates the configuration. Missing .env
// files are not an error; variables already set take precedence.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	return Process()
}

// Process builds the configuration from the environment alone.
func Process() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their environment variable
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("envconfig"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks the configuration and names the offending variables.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// ToSteamConfig converts to the façade configuration. The limiter is left
// unset; callers wire a Redis limiter themselves when RateLimit.Backend is redis.
func (c *Config) ToSteamConfig() steam.Config {
	cfg := steam.DefaultConfig(c.Steam.APIKey)
	cfg.API.BaseURL = c.Steam.APIBaseURL
	cfg.Store.BaseURL = c.Steam.StoreBaseURL
	c.Steam.apply(&cfg.API)
	c.Steam.apply(&cfg.Store)

	cfg.Cache = cache.Config{MaxSize: c.Cache.MaxSize}
	cfg.TTL = steam.TTLPolicy{
		Default:     c.Cache.DefaultTTL,
		PlayerCount: c.Cache.PlayerCountTTL,
		Game:        c.Cache.GameTTL,
		Featured:    c.Cache.FeaturedTTL,
		News:        c.Cache.NewsTTL,
	}
	cfg.RateLimit = c.RateLimit.ToLimiterConfig()

	topGames := batch.DefaultConfig()
	topGames.MaxConcurrency = c.Steam.TopGamesConcurrency
	cfg.TopGames = topGames
	cfg.LoadTimeout = c.Steam.LoadTimeout
	return cfg
}

func (s SteamConfig) apply(cfg *client.Config) {
	cfg.UserAgent = s.UserAgent
	cfg.Timeout = s.RequestTimeout
	cfg.RetryAttempts = s.RetryAttempts
	cfg.RetryDelay = s.RetryDelay
	cfg.MinRequestInterval = s.RequestInterval
	cfg.MaxConcurrentRequests = s.MaxConcurrentRequests
	cfg.FailureThreshold = s.FailureThreshold
	cfg.ResetTimeout = s.ResetTimeout
}

// ToLimiterConfig converts to the rate limiter configuration.
func (r RateLimitConfig) ToLimiterConfig() ratelimit.Config {
	return ratelimit.Config{MaxRequests: r.MaxRequests, Window: r.Window}
}

// ToRedisOptions returns the connection options of the Redis limiter backend.
func (r RateLimitConfig) ToRedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     r.RedisAddr,
		Password: r.RedisPassword,
		DB:       r.RedisDB,
	}
}

// ToLoggingConfig converts to the logger configuration.
func (c *Config) ToLoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.Log.Level)
	cfg.Pretty = c.Log.Pretty
	return cfg
}
