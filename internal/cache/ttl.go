// Package cache wraps ttlcache with the eviction semantics the gateway's
// process-local caches rely on.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// TTL is a process-local cache whose entries expire a fixed duration after
// they were set. Reads do not extend an entry's life.
//
// The OnEvict hook runs exactly once for every entry that leaves the cache:
// expiry, Delete, replacement by Set and Close. It runs on its own goroutine;
// Close waits for outstanding hooks.
type TTL[K comparable, V any] struct {
	mu          sync.Mutex
	items       *ttlcache.Cache[K, V]
	onEvict     func(K, V)
	unsubscribe func()
}

type Option[K comparable, V any] func(*TTL[K, V])

// WithOnEvict registers a hook for removed entries.
func WithOnEvict[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *TTL[K, V]) {
		c.onEvict = fn
	}
}

func New[K comparable, V any](ttl time.Duration, opts ...Option[K, V]) *TTL[K, V] {
	c := &TTL[K, V]{
		items: ttlcache.New[K, V](
			ttlcache.WithTTL[K, V](ttl),
			ttlcache.WithDisableTouchOnHit[K, V](),
		),
		unsubscribe: func() {},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.onEvict != nil {
		c.unsubscribe = c.items.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[K, V]) {
			c.onEvict(item.Key(), item.Value())
		})
	}
	return c
}

// Get returns the live value for key.
func (c *TTL[K, V]) Get(key K) (V, bool) {
	item := c.items.Get(key)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

// Set stores value under key. A previous value, live or expired, is evicted.
func (c *TTL[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// ttlcache updates an existing item in place without an eviction event.
	c.items.Delete(key)
	c.items.Set(key, value, ttlcache.DefaultTTL)
}

// Delete removes key and reports whether a live value was present.
func (c *TTL[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	present := c.items.Get(key) != nil
	c.items.Delete(key)
	return present
}

// DeleteFunc removes every entry for which match returns true.
func (c *TTL[K, V]) DeleteFunc(match func(K, V) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, item := range c.items.Items() {
		if match(key, item.Value()) {
			c.items.Delete(key)
			n++
		}
	}
	return n
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *TTL[K, V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.items.Len()
	c.items.DeleteExpired()
	return before - c.items.Len()
}

// Len counts stored entries, including expired ones not yet cleaned up.
func (c *TTL[K, V]) Len() int {
	return c.items.Len()
}

// Run removes entries as they expire until ctx is done.
func (c *TTL[K, V]) Run(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		c.items.Start()
		close(done)
	}()

	<-ctx.Done()
	c.items.Stop()
	<-done
}

// Close evicts every entry and waits for the eviction hooks to finish.
// The cache must not be used afterwards.
func (c *TTL[K, V]) Close() {
	c.mu.Lock()
	c.items.DeleteAll()
	c.mu.Unlock()
	c.unsubscribe()
}
