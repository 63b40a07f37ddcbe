// Package cache provides the bounded query result cache: an LRU with TTL
// keyed by the fingerprint of (project, query, top_k). Entries hold value
// copies only and are safe to drop at any time.
package cache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/nevindra/recall"
)

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets a structured logger. When set, the cache emits debug logs
// for evictions and project invalidations.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Size      int     `json:"size"`
	HitRate   float64 `json:"hit_rate"`
}

type entry struct {
	projectID  string
	value      any
	insertedAt time.Time
}

// Cache is a bounded LRU with TTL over retrieval results. All operations
// share one mutex; critical sections are map operations only. Callers must
// never hold a cache lookup across an embed or store call.
type Cache struct {
	mu        sync.Mutex
	lru       *simplelru.LRU[string, *entry]
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger
	hits      int64
	misses    int64
	evictions int64
}

// New creates a Cache bounded at maxSize entries with the given TTL.
func New(maxSize int, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		ttl:    ttl,
		now:    time.Now,
		logger: recall.NopLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	// Eviction callback only counts; the LRU itself never drops live
	// references the caller depends on (entries are value copies).
	lru, err := simplelru.NewLRU(maxSize, func(key string, _ *entry) {
		c.evictions++
		c.logger.Debug("cache: evicted", "key", key)
	})
	if err != nil {
		panic("cache: non-positive size")
	}
	c.lru = lru
	return c
}

// Key fingerprints a retrieval request.
func Key(projectID, query string, topK int) string {
	return recall.CacheKey(projectID, query, topK)
}

// Get returns the cached value for key, if present and younger than the TTL.
// Expired entries are removed on access.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return nil, false
	}
	if c.now().Sub(e.insertedAt) >= c.ttl {
		// Lazy expiry: the callback will count this as an eviction; undo
		// that so stats separate TTL expiry from capacity pressure.
		c.lru.Remove(key)
		c.evictions--
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores a value copy for key. At capacity the least recently used entry
// is evicted.
func (c *Cache) Set(key, projectID string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, &entry{projectID: projectID, value: value, insertedAt: c.now()})
}

// Invalidate removes one entry. Missing keys are a no-op.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Remove(key) {
		c.evictions--
	}
}

// InvalidateProject removes every entry belonging to a project. Called after
// a write to that project commits.
func (c *Cache) InvalidateProject(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var stale []string
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && e.projectID == projectID {
			stale = append(stale, key)
		}
	}
	for _, key := range stale {
		c.lru.Remove(key)
		c.evictions--
	}
	if len(stale) > 0 {
		c.logger.Debug("cache: project invalidated", "project_id", projectID, "entries", len(stale))
	}
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.lru.Len()
	c.lru.Purge()
	c.evictions -= int64(n)
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      c.lru.Len(),
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
