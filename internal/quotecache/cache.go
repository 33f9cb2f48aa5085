// Package quotecache provides the in-memory TTL caches used for market quotes and
// historical series.
//
// Every entry moves through three states based on its age:
//
//	Fresh   -> served as a hit
//	Stale   -> not a hit, but may be served as a degraded fallback via Lookup
//	Expired -> never served; evicted on the next read or sweep
//
// The transition times are fixed when the entry is stored, so readers never compare
// raw timestamps themselves.
package quotecache

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is the freshness state of a cache entry
type State int

const (
	StateFresh State = iota
	StateStale
	StateExpired
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	default:
		return "expired"
	}
}

// Default TTLs for the two cache instances
const (
	QuoteFreshTTL   = 5 * time.Minute
	QuoteStaleTTL   = 15 * time.Minute
	HistoryFreshTTL = 24 * time.Hour
)

type entry[T any] struct {
	value      T
	freshUntil time.Time
	staleUntil time.Time
}

func (e *entry[T]) stateAt(now time.Time) State {
	if !now.After(e.freshUntil) {
		return StateFresh
	}
	if !now.After(e.staleUntil) {
		return StateStale
	}
	return StateExpired
}

// Stats is a point-in-time view of cache counters
type Stats struct {
	Entries   int    `json:"entries"`
	Hits      uint64 `json:"hits"`
	StaleHits uint64 `json:"stale_hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// Cache is a concurrency-safe key/value store with fresh and stale windows.
// Last writer wins when two goroutines store the same key.
type Cache[T any] struct {
	mu       sync.RWMutex
	entries  map[string]*entry[T]
	freshTTL time.Duration
	staleTTL time.Duration
	now      func() time.Time

	hits      atomic.Uint64
	staleHits atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache. freshTTL is the age up to which entries are hits; staleTTL is the age
// up to which they may still be served as stale. A staleTTL below freshTTL disables the stale
// window.
func New[T any](freshTTL, staleTTL time.Duration) *Cache[T] {
	if staleTTL < freshTTL {
		staleTTL = freshTTL
	}
	return &Cache[T]{
		entries:  make(map[string]*entry[T]),
		freshTTL: freshTTL,
		staleTTL: staleTTL,
		now:      time.Now,
	}
}

// WithClock replaces the time source (tests)
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.now = now
	return c
}

// Set stores value with the cache's default TTLs
func (c *Cache[T]) Set(key string, value T) {
	c.SetWithTTL(key, value, c.freshTTL, c.staleTTL)
}

// SetWithTTL stores value with explicit fresh and stale ages
func (c *Cache[T]) SetWithTTL(key string, value T, freshTTL, staleTTL time.Duration) {
	if staleTTL < freshTTL {
		staleTTL = freshTTL
	}
	now := c.now()

	c.mu.Lock()
	c.entries[key] = &entry[T]{
		value:      value,
		freshUntil: now.Add(freshTTL),
		staleUntil: now.Add(staleTTL),
	}
	c.mu.Unlock()
}

// Get returns the value only while it is fresh.
// An expired entry is evicted by this read.
func (c *Cache[T]) Get(key string) (T, bool) {
	value, state, ok := c.lookup(key)
	if ok && state == StateFresh {
		c.hits.Add(1)
		return value, true
	}
	c.misses.Add(1)
	var zero T
	return zero, false
}

// Lookup returns the value and its state while it is fresh or stale.
// Expired entries are never returned.
func (c *Cache[T]) Lookup(key string) (T, State, bool) {
	value, state, ok := c.lookup(key)
	if !ok {
		c.misses.Add(1)
		return value, StateExpired, false
	}
	if state == StateFresh {
		c.hits.Add(1)
	} else {
		c.staleHits.Add(1)
	}
	return value, state, true
}

func (c *Cache[T]) lookup(key string) (T, State, bool) {
	var zero T
	now := c.now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return zero, StateExpired, false
	}

	state := e.stateAt(now)
	if state == StateExpired {
		c.mu.Lock()
		// The entry may have been replaced since the read lock was released
		if cur, ok := c.entries[key]; ok && cur == e {
			delete(c.entries, key)
			c.evictions.Add(1)
		}
		c.mu.Unlock()
		return zero, StateExpired, false
	}

	return e.value, state, true
}

// Delete removes key
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Sweep evicts every expired entry and returns how many were removed
func (c *Cache[T]) Sweep() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for key, e := range c.entries {
		if e.stateAt(now) == StateExpired {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()

	c.evictions.Add(uint64(removed))
	return removed
}

// Len returns the number of stored entries, including ones not yet swept
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the cache counters
func (c *Cache[T]) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		StaleHits: c.staleHits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
