package cache

import (
	"time"
)

// Entry represents a cached upstream result.
type Entry struct {
	// Value is the cached payload (already decoded by the caller)
	Value any

	// CreatedAt is when the entry was stored
	CreatedAt time.Time

	// TTL is how long the entry stays fresh after CreatedAt
	TTL time.Duration

	// AccessCount is the number of hits served from this entry
	AccessCount int64

	// LastAccessedAt is the time of the most recent hit (or CreatedAt)
	LastAccessedAt time.Time
}

// ExpiresAt returns the instant after which the entry must not be served.
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(e.TTL)
}

// IsExpired reports whether the entry is stale at now.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt())
}

// Remaining returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) Remaining(now time.Time) time.Duration {
	ttl := e.ExpiresAt().Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
