// Package cache holds the dashboard read-model cache and the run lease.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Stats describes the local cache. The API reports it on /health.
type Stats struct {
	Entries   int    `json:"entries"`
	Capacity  int    `json:"capacity"`
	Leases    int    `json:"leases"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// HitRate is hits over lookups as a percentage; 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// LRUCache is a size-bounded in-process cache with per-entry TTL. It is
// the single-node cache and the L1 of TwoPhaseCache.
type LRUCache struct {
	mu        sync.Mutex
	capacity  int
	namespace string
	entries   map[string]*list.Element
	recency   *list.List // front is most recently used
	leases    map[string]time.Time
	now       func() time.Time

	hits, misses, evictions uint64
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates a cache holding at most capacity entries
// (10000 when capacity <= 0). Keys are prefixed with namespace.
func NewLRUCache(capacity int, namespace string) *LRUCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LRUCache{
		capacity:  capacity,
		namespace: namespace,
		entries:   make(map[string]*list.Element),
		recency:   list.New(),
		leases:    make(map[string]time.Time),
		now:       time.Now,
	}
}

// Get returns the cached value, or nil on a miss or an expired entry.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, error) {
	k := c.makeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[k]
	if !ok {
		c.misses++
		return nil, nil
	}
	e := elem.Value.(*entry)
	if !c.now().Before(e.expiresAt) {
		c.drop(elem)
		c.misses++
		return nil, nil
	}

	c.hits++
	c.recency.MoveToFront(elem)
	return e.value, nil
}

// Set stores value for ttl, evicting the least recently used entries
// beyond capacity.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	k := c.makeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if elem, ok := c.entries[k]; ok {
		e := elem.Value.(*entry)
		e.value, e.expiresAt = value, expiresAt
		c.recency.MoveToFront(elem)
		return nil
	}

	c.entries[k] = c.recency.PushFront(&entry{key: k, value: value, expiresAt: expiresAt})
	for c.recency.Len() > c.capacity {
		c.drop(c.recency.Back())
		c.evictions++
	}
	return nil
}

// Delete removes key; a missing key is not an error.
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	k := c.makeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[k]; ok {
		c.drop(elem)
	}
	return nil
}

// Acquire takes an in-process lease on key. Leases live outside the LRU
// list, so eviction never drops a held run lock.
func (c *LRUCache) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	k := c.makeKey(key)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if until, held := c.leases[k]; held && now.Before(until) {
		return false, nil
	}
	c.leases[k] = now.Add(ttl)
	return true, nil
}

// Release drops a lease.
func (c *LRUCache) Release(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.leases, c.makeKey(key))
	return nil
}

// Ping always succeeds.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close empties the cache and drops every lease.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.recency.Init()
	c.leases = make(map[string]time.Time)
	return nil
}

// Stats returns a snapshot of the cache counters.
func (c *LRUCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	leases := 0
	now := c.now()
	for _, until := range c.leases {
		if now.Before(until) {
			leases++
		}
	}
	return Stats{
		Entries:   c.recency.Len(),
		Capacity:  c.capacity,
		Leases:    leases,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *LRUCache) makeKey(key string) string {
	if c.namespace == "" {
		return key
	}
	return c.namespace + ":" + key
}

func (c *LRUCache) drop(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.entries, elem.Value.(*entry).key)
}
