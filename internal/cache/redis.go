package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a lease only if this holder still owns it.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// RedisCache implements Cache using Redis.
// Used for multi-node deployments and as L2 in two-phase caching.
type RedisCache struct {
	client    *redis.Client
	namespace string

	mu     sync.Mutex
	tokens map[string]string
}

// NewRedisCache creates a new Redis cache.
func NewRedisCache(addr, password string, db int, namespace string) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	if namespace == "" {
		namespace = "kestrel"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRedisCache(client, namespace), nil
}

func newRedisCache(client *redis.Client, namespace string) *RedisCache {
	return &RedisCache{
		client:    client,
		namespace: namespace,
		tokens:    make(map[string]string),
	}
}

// Get retrieves a value from Redis.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.makeKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value in Redis with TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.makeKey(key), value, ttl).Err()
}

// Delete removes a value from Redis.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.makeKey(key)).Err()
}

// Acquire takes a cluster-wide lease with SET NX PX. The lease expires on
// its own if the holder dies.
func (c *RedisCache) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	fullKey := c.makeKey(key)
	token := uuid.NewString()

	ok, err := c.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return false, err
	}
	if ok {
		c.mu.Lock()
		c.tokens[fullKey] = token
		c.mu.Unlock()
	}
	return ok, nil
}

// Release drops a lease this process holds. Leases taken by other holders
// are left alone.
func (c *RedisCache) Release(ctx context.Context, key string) error {
	fullKey := c.makeKey(key)

	c.mu.Lock()
	token, ok := c.tokens[fullKey]
	delete(c.tokens, fullKey)
	c.mu.Unlock()

	if !ok {
		return nil
	}
	return releaseScript.Run(ctx, c.client, []string{fullKey}, token).Err()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) makeKey(key string) string {
	return c.namespace + ":" + key
}
