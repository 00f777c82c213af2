/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package resultcache provides an in-memory, time- and size-bounded store for
// completed upstream responses keyed by request fingerprint. Entries expire by
// TTL and are evicted in LRU order when the entry count exceeds the capacity,
// which keeps hot, recently-asked queries fast without unbounded growth under
// high query diversity.
package resultcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Default parameter values for Cache.
const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 500
)

type cacheEntry[V any] struct {
	key       string
	value     V
	storedAt  time.Time
	expiresAt time.Time
}

// Cache is a TTL+LRU bounded cache of completed responses.
// It is safe for concurrent use; all mutations are serialized through one lock.
type Cache[V any] struct {
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	lruList *list.List
	entries map[string]*list.Element // map of cache entries, value is a lruList element

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64

	collector MetricsCollector
}

// Opts represents options for the cache.
type Opts struct {
	// TTL is the lifetime of each entry. DefaultTTL is used when zero.
	TTL time.Duration

	// MaxEntries bounds the number of entries. DefaultMaxEntries is used when zero.
	MaxEntries int

	// Collector is used to report cache usage metrics. Can be nil to disable metrics.
	Collector MetricsCollector
}

// New creates a new Cache with default TTL and capacity.
func New[V any]() *Cache[V] {
	c, err := NewWithOpts[V](Opts{})
	if err != nil {
		panic(err) // unreachable with zero opts
	}
	return c
}

// NewWithOpts creates a new Cache with the provided options.
func NewWithOpts[V any](opts Opts) (*Cache[V], error) {
	if opts.TTL < 0 {
		return nil, fmt.Errorf("ttl must be greater or equal to 0")
	}
	if opts.TTL == 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxEntries < 0 {
		return nil, fmt.Errorf("maxEntries must be greater or equal to 0")
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.Collector == nil {
		opts.Collector = disabledMetrics{}
	}
	return &Cache[V]{
		ttl:        opts.TTL,
		maxEntries: opts.MaxEntries,
		lruList:    list.New(),
		entries:    make(map[string]*list.Element),
		collector:  opts.Collector,
	}, nil
}

// Get returns the stored value for the key if it exists and is not expired.
// Expired entries are lazily removed on access. A hit refreshes the entry's recency.
func (c *Cache[V]) Get(key string) (value V, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.entries[key]
	if !found {
		c.misses.Inc()
		c.collector.IncMisses()
		return value, false
	}
	entry := elem.Value.(*cacheEntry[V])
	if entry.expiresAt.Before(time.Now()) {
		c.removeElement(elem)
		c.collector.SetAmount(len(c.entries))
		c.misses.Inc()
		c.collector.IncMisses()
		return value, false
	}
	c.lruList.MoveToFront(elem)
	c.hits.Inc()
	c.collector.IncHits()
	return entry.value, true
}

// Add inserts or overwrites the value for the key. If the entry count exceeds
// the capacity, the least-recently-used entry is evicted.
func (c *Cache[V]) Add(key string, value V) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.lruList.MoveToFront(elem)
		elem.Value = &cacheEntry[V]{key: key, value: value, storedAt: now, expiresAt: now.Add(c.ttl)}
		return
	}

	c.entries[key] = c.lruList.PushFront(
		&cacheEntry[V]{key: key, value: value, storedAt: now, expiresAt: now.Add(c.ttl)})
	if len(c.entries) <= c.maxEntries {
		c.collector.SetAmount(len(c.entries))
		return
	}
	if oldest := c.lruList.Back(); oldest != nil {
		c.removeElement(oldest)
		c.evictions.Inc()
		c.collector.AddEvictions(1)
	}
	c.collector.SetAmount(len(c.entries))
}

// Remove removes the value for the key, reporting whether the key was present.
func (c *Cache[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeElement(elem)
	c.collector.SetAmount(len(c.entries))
	return true
}

// PurgeExpired removes all expired entries and returns the number of removed ones.
func (c *Cache[V]) PurgeExpired() int {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var purged int
	for _, elem := range c.entries {
		if elem.Value.(*cacheEntry[V]).expiresAt.Before(now) {
			c.removeElement(elem)
			purged++
		}
	}
	if purged > 0 {
		c.collector.SetAmount(len(c.entries))
	}
	return purged
}

// Len returns the number of entries in the cache, including not yet purged expired ones.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats is a point-in-time summary of cache usage.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Stats returns cache usage counters for status reporting.
func (c *Cache[V]) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}

// RunPeriodicCleanup periodically removes expired entries until ctx is canceled.
// It's supposed to be run in a separate goroutine.
func (c *Cache[V]) RunPeriodicCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.PurgeExpired()
		}
	}
}

func (c *Cache[V]) removeElement(elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.entries, elem.Value.(*cacheEntry[V]).key)
}
