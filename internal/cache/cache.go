package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/redis/go-redis/v9"
)

// New creates a new cache based on configuration.
// "memory" returns an LRU cache.
// "redis" with two-phase returns TwoPhaseCache wrapping LRU + Redis.
// "redis" without two-phase returns a plain Redis cache.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize, cfg.Namespace), nil

	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Namespace)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache layers the local LRU (L1) over Redis (L2). Deletes are
// broadcast on a Redis channel so every node drops its L1 copy when a run
// on any node invalidates the dashboard read models. Leases always go to
// Redis so the run lock holds across nodes.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration

	node    string
	channel string
	pubsub  *redis.PubSub
	done    chan struct{}
}

// NewTwoPhaseCache connects to Redis and starts listening for
// invalidations from other nodes.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	c := newTwoPhase(NewLRUCache(cfg.LocalMaxSize, cfg.Namespace), remote, cfg.LocalTTL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.pubsub = remote.client.Subscribe(ctx, c.channel)
	if _, err := c.pubsub.Receive(ctx); err != nil {
		c.pubsub.Close()
		remote.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", c.channel, err)
	}
	c.done = make(chan struct{})
	go c.listen()

	return c, nil
}

func newTwoPhase(local *LRUCache, remote *RedisCache, l1TTL time.Duration) *TwoPhaseCache {
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}
	return &TwoPhaseCache{
		local:   local,
		remote:  remote,
		l1TTL:   l1TTL,
		node:    uuid.NewString(),
		channel: remote.makeKey("invalidate"),
	}
}

// listen drops L1 entries invalidated by other nodes until Close.
func (c *TwoPhaseCache) listen() {
	defer close(c.done)
	for msg := range c.pubsub.Channel() {
		node, key, ok := parseInvalidation(msg.Payload)
		if !ok || node == c.node {
			continue
		}
		_ = c.local.Delete(context.Background(), key)
	}
}

// Get reads L1, then L2. An L2 hit is copied into L1.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	if val, err := c.local.Get(ctx, key); err != nil || val != nil {
		return val, err
	}

	val, err := c.remote.Get(ctx, key)
	if err != nil || val == nil {
		return nil, err
	}
	_ = c.local.Set(ctx, key, val, c.l1TTL)
	return val, nil
}

// Set writes L2 with ttl and L1 with the shorter of ttl and the L1 TTL.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.local.Set(ctx, key, value, min(ttl, c.l1TTL))
}

// Delete removes key from both levels and tells the other nodes.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	_ = c.local.Delete(ctx, key)
	if err := c.remote.Delete(ctx, key); err != nil {
		return err
	}
	if c.pubsub == nil {
		return nil
	}
	return c.remote.client.Publish(ctx, c.channel, formatInvalidation(c.node, key)).Err()
}

// Acquire takes the lease in Redis.
func (c *TwoPhaseCache) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.remote.Acquire(ctx, key, ttl)
}

// Release drops a Redis lease.
func (c *TwoPhaseCache) Release(ctx context.Context, key string) error {
	return c.remote.Release(ctx, key)
}

// Ping checks both levels.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("L1 ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("L2 ping failed: %w", err)
	}
	return nil
}

// Close stops the invalidation listener and closes both levels.
func (c *TwoPhaseCache) Close() error {
	if c.pubsub != nil {
		_ = c.pubsub.Close()
		<-c.done
	}
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns L1 statistics; Redis keeps its own.
func (c *TwoPhaseCache) Stats() Stats {
	return c.local.Stats()
}

func formatInvalidation(node, key string) string {
	return node + "|" + key
}

func parseInvalidation(payload string) (node, key string, ok bool) {
	node, key, ok = strings.Cut(payload, "|")
	return node, key, ok && node != "" && key != ""
}

// GetJSON reads a cached JSON document into a new T.
// Returns nil, nil on a miss.
func GetJSON[T any](ctx context.Context, c domain.Cache, key string) (*T, error) {
	data, err := c.Get(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SetJSON caches v as JSON.
func SetJSON(ctx context.Context, c domain.Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}

// Invalidate deletes every key, returning the first error.
func Invalidate(ctx context.Context, c domain.Cache, keys ...string) error {
	var first error
	for _, key := range keys {
		if err := c.Delete(ctx, key); err != nil && first == nil {
			first = err
		}
	}
	return first
}
