package steam

import (
	"github.com/Sternrassler/steam-relay/pkg/client"
	"github.com/Sternrassler/steam-relay/pkg/ratelimit"
)

// Errors returned by Service accessors. Match them with errors.Is.
var (
	ErrNotFound            = client.ErrNotFound
	ErrRateLimited         = ratelimit.ErrRateLimited
	ErrUpstreamRateLimited = client.ErrUpstreamRateLimited
	ErrTimeout             = client.ErrTimeout
	ErrUpstream            = client.ErrUpstream
	ErrCircuitOpen         = client.ErrCircuitOpen
	ErrContextCancelled    = client.ErrContextCancelled
)
