package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU in front of Redis.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// Acquire takes a lease on key for ttl. It returns false if another holder owns it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Release drops a lease taken with Acquire.
	Release(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// Cache keys shared between the pipeline and the API.
const (
	CacheKeyOverview   = "dashboard:overview"
	CacheKeyQuality    = "quality:summary"
	CacheKeyCompliance = "compliance:metrics"
	CacheKeyRunLock    = "lock:run"
)

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `envconfig:"TYPE" validate:"oneof=memory redis"`

	// Local LRU cache settings
	LocalMaxSize int           `envconfig:"LOCAL_MAX_SIZE"`
	LocalTTL     time.Duration `envconfig:"LOCAL_TTL"`

	// Redis settings
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB"`

	// Two-phase settings
	EnableTwoPhase bool `envconfig:"TWO_PHASE"` // If true, check local first, then Redis

	// Namespace prefixes every key so several deployments can share a Redis.
	Namespace string `envconfig:"NAMESPACE"`
}
