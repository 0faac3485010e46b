// Package logging configures zerolog for the Steam relay.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name such as "warning" to a LogLevel.
// Unknown names fall back to LevelInfo.
func ParseLevel(name string) LogLevel {
	switch parseLevel(LogLevel(name)) {
	case zerolog.DebugLevel:
		return LevelDebug
	case zerolog.WarnLevel:
		return LevelWarn
	case zerolog.ErrorLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, kind)
//   - Retry backoff and Retry-After waits
//   - Sweep results
//
// Info: Normal operation events
//   - Circuit breaker state changes
//   - Callers denied by the rate limiter
//   - Cache cleared by an operator
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Upstream 429 responses
//   - Rate limiter backend unavailable (call admitted)
//   - Failed items in a batch fan-out
//
// Error: Error conditions requiring attention
//   - Failed requests (after retries)
//   - Circuit breaker opened
//   - Configuration errors
//
// Context Fields:
//   - component: steam-client, steam-service, ratelimit, relay
//   - client: web-api or store-api
//   - endpoint: Steam endpoint path
//   - status: HTTP status code
//   - attempt: Zero-based attempt index
//   - backoff: Wait before the next attempt
//   - error_class: client, not_found, server, rate_limit, network, timeout
//   - caller: Rate-limit identity
//   - kind: Resource kind (profile, player_count, ...)
//   - cache_hit: Boolean indicating cache hit
//   - request_id: Relay request ID
