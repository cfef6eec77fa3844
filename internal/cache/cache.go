// Package cache provides the TTL-bounded content cache used by the file store.
package cache

import (
	"bytes"
	"sync"
	"time"

	"github.com/starford/vaultkeep/internal/metrics"
)

// Cache maps vault paths to their last-read content for a fixed TTL.
//
// Every slot carries a write generation. A read miss records the generation it
// started under and only fills the slot if no invalidation happened while the
// loader ran, so content read before a write can never be served after it.
type Cache struct {
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu     sync.Mutex
	slots  map[string]*slot
	filled int
}

type slot struct {
	data    []byte
	expires time.Time
	filled  bool
	gen     uint64
	pending int // loaders in flight
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics records hits, misses and invalidations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New creates a cache. A ttl of zero or less disables caching.
func New(ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		ttl:   ttl,
		now:   time.Now,
		slots: make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics = metrics.OrNop(c.metrics)
	return c
}

// TTL returns the configured time-to-live.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns unexpired content for path.
func (c *Cache) Get(path string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[path]
	if !ok || !s.filled || !c.now().Before(s.expires) {
		return nil, false
	}
	return bytes.Clone(s.data), true
}

// Load returns cached content for path, calling load on a miss. The loaded
// content is cached unless path was invalidated while load was running.
func (c *Cache) Load(path string, load func() ([]byte, error)) ([]byte, error) {
	if c.ttl <= 0 {
		return load()
	}

	c.mu.Lock()
	s, ok := c.slots[path]
	if ok && s.filled && c.now().Before(s.expires) {
		data := bytes.Clone(s.data)
		c.mu.Unlock()
		c.metrics.CacheHits.Inc()
		return data, nil
	}
	if !ok {
		s = &slot{}
		c.slots[path] = s
	}
	c.unfillLocked(s)
	gen := s.gen
	s.pending++
	c.mu.Unlock()

	c.metrics.CacheMisses.Inc()
	data, err := load()

	c.mu.Lock()
	defer c.mu.Unlock()
	s.pending--
	if err == nil && s.gen == gen && c.slots[path] == s {
		if !s.filled {
			c.filled++
		}
		s.data = bytes.Clone(data)
		s.filled = true
		s.expires = c.now().Add(c.ttl)
	} else if !s.filled && s.pending == 0 && c.slots[path] == s {
		delete(c.slots, path)
	}
	c.metrics.CacheEntries.Set(float64(c.filled))
	return data, err
}

// Invalidate drops the entry for path and fences off in-flight loaders.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[path]
	if !ok {
		return
	}
	s.gen++
	c.unfillLocked(s)
	if s.pending == 0 {
		delete(c.slots, path)
	}
	c.metrics.CacheInvalidations.Inc()
	c.metrics.CacheEntries.Set(float64(c.filled))
}

// Clear invalidates every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for p, s := range c.slots {
		s.gen++
		c.unfillLocked(s)
		if s.pending == 0 {
			delete(c.slots, p)
		}
	}
	c.metrics.CacheEntries.Set(0)
}

// Sweep removes expired entries and returns how many were dropped.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for p, s := range c.slots {
		if s.filled && !now.Before(s.expires) && s.pending == 0 {
			c.unfillLocked(s)
			delete(c.slots, p)
			n++
		}
	}
	c.metrics.CacheEntries.Set(float64(c.filled))
	return n
}

// Len returns the number of filled entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filled
}

func (c *Cache) unfillLocked(s *slot) {
	if s.filled {
		c.filled--
	}
	s.filled = false
	s.data = nil
}
