package cache

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

// DefaultMaxSize is the default number of entries held before LRU eviction.
const DefaultMaxSize = 1000

// ErrInvalidConfig indicates a cache configuration that cannot be used.
var ErrInvalidConfig = errors.New("invalid cache config")

// Config holds cache configuration.
type Config struct {
	// MaxSize is the maximum number of entries (default: 1000)
	MaxSize int

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time
}

// Info is a snapshot of cache occupancy and counters.
type Info struct {
	Size        int   `json:"size"`
	Capacity    int   `json:"capacity"`
	Hits        int64 `json:"hits"`
	Misses      int64 `json:"misses"`
	Evictions   int64 `json:"evictions"`
	Expirations int64 `json:"expirations"`
}

type item struct {
	key   string
	entry Entry
}

// Memory is an in-memory TTL cache with strict LRU eviction.
// It is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	maxSize  int
	now      func() time.Time
	counters Info
}

// NewMemory creates a cache. A zero Config uses the defaults.
func NewMemory(cfg Config) (*Memory, error) {
	if cfg.MaxSize < 0 {
		return nil, ErrInvalidConfig
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Memory{
		items:   make(map[string]*list.Element, cfg.MaxSize),
		order:   list.New(),
		maxSize: cfg.MaxSize,
		now:     cfg.Clock,
	}, nil
}

// Get returns the cached value for key.
// An expired entry is removed and reported exactly like an absent one.
func (m *Memory) Get(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.counters.Misses++
		CacheMisses.Inc()
		return nil, false
	}

	it := elem.Value.(*item)
	now := m.now()
	if it.entry.IsExpired(now) {
		m.removeElement(elem)
		m.counters.Misses++
		m.counters.Expirations++
		CacheMisses.Inc()
		CacheEvictions.WithLabelValues(reasonExpired).Inc()
		return nil, false
	}

	it.entry.AccessCount++
	it.entry.LastAccessedAt = now
	m.order.MoveToFront(elem)

	m.counters.Hits++
	CacheHits.Inc()
	return it.entry.Value, true
}

// Peek returns a copy of the entry metadata without touching recency or
// access counters. Expired entries are reported absent but not removed.
func (m *Memory) Peek(key string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return Entry{}, false
	}
	entry := elem.Value.(*item).entry
	if entry.IsExpired(m.now()) {
		return Entry{}, false
	}
	return entry, true
}

// Set stores value under key for ttl. A non-positive ttl is not cached.
// Inserting a new key into a full cache evicts the least recently used entry.
func (m *Memory) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	entry := Entry{
		Value:          value,
		CreatedAt:      now,
		TTL:            ttl,
		LastAccessedAt: now,
	}

	if elem, ok := m.items[key]; ok {
		elem.Value.(*item).entry = entry
		m.order.MoveToFront(elem)
		return
	}

	if m.order.Len() >= m.maxSize {
		if oldest := m.order.Back(); oldest != nil {
			m.removeElement(oldest)
			m.counters.Evictions++
			CacheEvictions.WithLabelValues(reasonCapacity).Inc()
		}
	}

	m.items[key] = m.order.PushFront(&item{key: key, entry: entry})
	CacheEntries.Set(float64(m.order.Len()))
}

// Delete removes key. Returns true if it was present.
func (m *Memory) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return false
	}
	m.removeElement(elem)
	return true
}

// EvictExpired removes every expired entry and returns how many were removed.
func (m *Memory) EvictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for elem := m.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*item).entry.IsExpired(now) {
			m.removeElement(elem)
			removed++
		}
		elem = prev
	}

	if removed > 0 {
		m.counters.Expirations += int64(removed)
		CacheEvictions.WithLabelValues(reasonExpired).Add(float64(removed))
	}
	return removed
}

// Clear removes all entries. Counters are kept.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = make(map[string]*list.Element, m.maxSize)
	m.order.Init()
	CacheEntries.Set(0)
}

// Len returns the number of stored entries, including expired ones not yet purged.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Capacity returns the configured maximum size.
func (m *Memory) Capacity() int {
	return m.maxSize
}

// Info returns a snapshot of size and counters.
func (m *Memory) Info() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := m.counters
	info.Size = m.order.Len()
	info.Capacity = m.maxSize
	return info
}

// removeElement must be called with mu held.
func (m *Memory) removeElement(elem *list.Element) {
	it := m.order.Remove(elem).(*item)
	delete(m.items, it.key)
	CacheEntries.Set(float64(m.order.Len()))
}
