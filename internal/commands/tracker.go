package commands

import (
	"context"
	"sync"

	"github.com/Sternrassler/steam-relay/pkg/steam"
)

// cacheTracker records whether each lookup of a command was served from the cache.
type cacheTracker struct {
	mu      sync.Mutex
	lookups int
	cached  int
}

func (t *cacheTracker) record(cached bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lookups++
	if cached {
		t.cached++
	}
}

func (t *cacheTracker) allCached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lookups > 0 && t.cached == t.lookups
}

type trackerKey struct{}

func withTracker(ctx context.Context, t *cacheTracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// track runs one façade lookup and records how it was served.
func track[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	info := &steam.FetchInfo{}
	v, err := fn(steam.WithFetchInfo(ctx, info))
	if t, ok := ctx.Value(trackerKey{}).(*cacheTracker); ok && err == nil {
		t.record(info.Cached)
	}
	return v, err
}
