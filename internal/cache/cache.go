// Package cache is the process-wide result cache shared by all request handlers.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/couchcryptid/disaster-report-server/internal/observability"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time // zero means never
}

func (e entry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Cache is a TTL cache keyed by Key. It is safe for concurrent use; concurrent
// Puts on the same key are last-writer-wins.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[Key]entry[V]
	clock   clockwork.Clock
	group   singleflight.Group
	metrics *observability.Metrics
}

// New creates an empty cache. metrics may be nil.
func New[V any](clock clockwork.Clock, metrics *observability.Metrics) *Cache[V] {
	return &Cache[V]{
		entries: make(map[Key]entry[V]),
		clock:   clock,
		metrics: metrics,
	}
}

// Get returns the value stored under key if it is present and not expired.
// An expired entry is removed and reported as a miss.
func (c *Cache[V]) Get(key Key) (V, bool) {
	v, ok := c.lookup(key)
	c.observe(ok)
	return v, ok
}

func (c *Cache[V]) lookup(key Key) (V, bool) {
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if e.expired(now) {
		c.mu.Lock()
		// Re-check: a concurrent Put may have replaced the entry.
		if cur, ok := c.entries[key]; ok && cur.expired(now) {
			delete(c.entries, key)
			c.setSize()
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores v under key, replacing any previous entry.
func (c *Cache[V]) Put(key Key, v V, exp Expiry) {
	e := entry[V]{value: v}
	if exp.Policy == Temporary {
		e.expiresAt = c.clock.Now().Add(exp.TTL)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.setSize()
	c.mu.Unlock()
}

// Len reports the number of stored entries, including expired ones not yet purged.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge removes every expired entry and returns how many were removed.
func (c *Cache[V]) Purge() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, k)
			n++
		}
	}
	if c.metrics != nil && n > 0 {
		c.metrics.CacheEvictions.Add(float64(n))
	}
	c.setSize()
	return n
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result with exp. Concurrent callers missing on the same key share a single
// load. Errors are returned to every waiting caller and are not cached.
func (c *Cache[V]) GetOrLoad(ctx context.Context, key Key, exp Expiry, load func(context.Context) (V, error)) (V, error) {
	return c.GetOrLoadWithExpiry(ctx, key, func(ctx context.Context) (V, Expiry, error) {
		v, err := load(ctx)
		return v, exp, err
	})
}

// GetOrLoadWithExpiry is GetOrLoad for loaders that decide the expiry of the
// value they produce.
//
// The shared load is detached from the cancellation of whichever caller
// started it, so a departing caller does not fail the others waiting on the
// same key. Loaders must bound their own running time.
func (c *Cache[V]) GetOrLoadWithExpiry(ctx context.Context, key Key, load func(context.Context) (V, Expiry, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	res, err, _ := c.group.Do(key.String(), func() (any, error) {
		// Another flight may have filled the entry between our miss and Do.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, exp, err := load(loadCtx)
		if err != nil {
			return v, err
		}
		c.Put(key, v, exp)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Run purges expired entries every interval until ctx is cancelled.
func (c *Cache[V]) Run(ctx context.Context, interval time.Duration) {
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.Purge()
		}
	}
}

func (c *Cache[V]) observe(hit bool) {
	if c.metrics == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.metrics.CacheLookups.WithLabelValues("memory", result).Inc()
}

// setSize must be called with mu held.
func (c *Cache[V]) setSize() {
	if c.metrics != nil {
		c.metrics.CacheEntries.Set(float64(len(c.entries)))
	}
}
