package steam

import "context"

// AnonymousCaller is the rate-limit identity used when none is set.
const AnonymousCaller = "anonymous"

type callerKey struct{}

type fetchInfoKey struct{}

// WithCaller returns a context carrying the caller identity used for rate limiting.
func WithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, callerKey{}, callerID)
}

// CallerFrom returns the caller identity in ctx, or AnonymousCaller.
func CallerFrom(ctx context.Context) string {
	if id, ok := ctx.Value(callerKey{}).(string); ok && id != "" {
		return id
	}
	return AnonymousCaller
}

// FetchInfo reports how an accessor call was served.
type FetchInfo struct {
	// Cached is true when the value came from the cache without any network call.
	Cached bool

	// Shared is true when the value came from a concurrent identical fetch.
	Shared bool
}

// WithFetchInfo returns a context into which accessors record how they were served.
func WithFetchInfo(ctx context.Context, info *FetchInfo) context.Context {
	return context.WithValue(ctx, fetchInfoKey{}, info)
}

func fetchInfoFrom(ctx context.Context) *FetchInfo {
	if info, ok := ctx.Value(fetchInfoKey{}).(*FetchInfo); ok && info != nil {
		return info
	}
	return &FetchInfo{}
}
