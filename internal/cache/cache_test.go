package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100, "test")
	ctx := context.Background()

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		// Wait for expiration
		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3, "")

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, "d", []byte("4"), time.Minute)

		val, _ := smallCache.Get(ctx, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		val, _ = smallCache.Get(ctx, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("NamespaceIsolation", func(t *testing.T) {
		if got := cache.makeKey("k"); got != "test:k" {
			t.Errorf("expected 'test:k', got '%s'", got)
		}
		if got := NewLRUCache(1, "").makeKey("k"); got != "k" {
			t.Errorf("expected 'k', got '%s'", got)
		}
	})

	t.Run("Lease", func(t *testing.T) {
		ok, err := cache.Acquire(ctx, domain.CacheKeyRunLock, time.Minute)
		if err != nil {
			t.Fatalf("Acquire failed: %v", err)
		}
		if !ok {
			t.Fatal("expected first acquire to succeed")
		}

		ok, _ = cache.Acquire(ctx, domain.CacheKeyRunLock, time.Minute)
		if ok {
			t.Error("expected second acquire to fail while held")
		}

		if err := cache.Release(ctx, domain.CacheKeyRunLock); err != nil {
			t.Fatalf("Release failed: %v", err)
		}

		ok, _ = cache.Acquire(ctx, domain.CacheKeyRunLock, time.Minute)
		if !ok {
			t.Error("expected acquire to succeed after release")
		}
		_ = cache.Release(ctx, domain.CacheKeyRunLock)
	})

	t.Run("LeaseExpires", func(t *testing.T) {
		ok, _ := cache.Acquire(ctx, "lock:short", 10*time.Millisecond)
		if !ok {
			t.Fatal("expected acquire to succeed")
		}

		time.Sleep(20 * time.Millisecond)

		ok, _ = cache.Acquire(ctx, "lock:short", time.Minute)
		if !ok {
			t.Error("expected expired lease to be taken over")
		}
	})

	t.Run("LeaseSurvivesEviction", func(t *testing.T) {
		smallCache := NewLRUCache(1, "")
		ok, _ := smallCache.Acquire(ctx, "lock", time.Minute)
		if !ok {
			t.Fatal("expected acquire to succeed")
		}

		_ = smallCache.Set(ctx, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, "b", []byte("2"), time.Minute)

		ok, _ = smallCache.Acquire(ctx, "lock", time.Minute)
		if ok {
			t.Error("expected lease to survive value eviction")
		}
	})

	t.Run("JSON", func(t *testing.T) {
		in := domain.QualitySummary{TotalChecks: 3, Passed: 2, SuccessRate: 66.67}
		if err := SetJSON(ctx, cache, domain.CacheKeyQuality, in, time.Minute); err != nil {
			t.Fatalf("SetJSON failed: %v", err)
		}

		out, err := GetJSON[domain.QualitySummary](ctx, cache, domain.CacheKeyQuality)
		if err != nil {
			t.Fatalf("GetJSON failed: %v", err)
		}
		if out == nil || out.TotalChecks != 3 || out.SuccessRate != 66.67 {
			t.Errorf("unexpected round trip: %+v", out)
		}

		miss, err := GetJSON[domain.QualitySummary](ctx, cache, "missing")
		if err != nil || miss != nil {
			t.Errorf("expected nil, nil on miss, got %v, %v", miss, err)
		}
	})

	t.Run("Invalidate", func(t *testing.T) {
		_ = cache.Set(ctx, domain.CacheKeyOverview, []byte("x"), time.Minute)
		_ = cache.Set(ctx, domain.CacheKeyCompliance, []byte("y"), time.Minute)

		if err := Invalidate(ctx, cache, domain.CacheKeyOverview, domain.CacheKeyCompliance); err != nil {
			t.Fatalf("Invalidate failed: %v", err)
		}

		for _, key := range []string{domain.CacheKeyOverview, domain.CacheKeyCompliance} {
			if val, _ := cache.Get(ctx, key); val != nil {
				t.Errorf("expected %s to be invalidated", key)
			}
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50, "")
		_ = statsCache.Set(ctx, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, "k2", []byte("v2"), time.Minute)

		_, _ = statsCache.Get(ctx, "k1")
		_, _ = statsCache.Get(ctx, "absent")
		_, _ = statsCache.Acquire(ctx, "run-lock", time.Minute)

		stats := statsCache.Stats()
		if stats.Entries != 2 {
			t.Errorf("expected 2 entries, got %d", stats.Entries)
		}
		if stats.Capacity != 50 {
			t.Errorf("expected capacity 50, got %d", stats.Capacity)
		}
		if stats.Hits != 1 || stats.Misses != 1 {
			t.Errorf("expected 1 hit and 1 miss, got %d/%d", stats.Hits, stats.Misses)
		}
		if stats.Leases != 1 {
			t.Errorf("expected 1 held lease, got %d", stats.Leases)
		}
		if rate := stats.HitRate(); rate != 50 {
			t.Errorf("expected hit rate 50, got %v", rate)
		}
	})

	t.Run("EvictionCounted", func(t *testing.T) {
		small := NewLRUCache(2, "")
		for _, k := range []string{"a", "b", "c"} {
			_ = small.Set(ctx, k, []byte(k), time.Minute)
		}
		if got := small.Stats().Evictions; got != 1 {
			t.Errorf("expected 1 eviction, got %d", got)
		}
		if v, _ := small.Get(ctx, "a"); v != nil {
			t.Error("expected oldest entry to be evicted")
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10, "")
		_ = testCache.Set(ctx, "k", []byte("v"), time.Minute)

		err := testCache.Close()
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}

		val, _ := testCache.Get(ctx, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100,
			Namespace:    "kestrel",
		}

		cache, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		lru, ok := cache.(*LRUCache)
		if !ok {
			t.Fatal("expected LRUCache for memory type")
		}
		if lru.namespace != "kestrel" {
			t.Errorf("expected namespace 'kestrel', got '%s'", lru.namespace)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type: "memcached",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestParseInvalidation(t *testing.T) {
	tests := []struct {
		payload  string
		node     string
		key      string
		expectOK bool
	}{
		{formatInvalidation("node-a", "dashboard:overview"), "node-a", "dashboard:overview", true},
		{"node-a|key|with|pipes", "node-a", "key|with|pipes", true},
		{"no-separator", "", "", false},
		{"|key", "", "", false},
		{"node-a|", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			node, key, ok := parseInvalidation(tt.payload)
			if ok != tt.expectOK {
				t.Fatalf("expected ok=%v, got %v", tt.expectOK, ok)
			}
			if ok && (node != tt.node || key != tt.key) {
				t.Errorf("expected %s/%s, got %s/%s", tt.node, tt.key, node, key)
			}
		})
	}
}

// TestTwoPhaseInvalidation needs a Redis server; set KESTREL_TEST_REDIS_ADDR to run it.
func TestTwoPhaseInvalidation(t *testing.T) {
	addr := os.Getenv("KESTREL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KESTREL_TEST_REDIS_ADDR not set")
	}

	ctx := context.Background()
	cfg := domain.CacheConfig{
		Type:           "redis",
		RedisAddr:      addr,
		EnableTwoPhase: true,
		LocalMaxSize:   100,
		LocalTTL:       time.Minute,
		Namespace:      "kestrel-test-" + time.Now().Format("150405.000000"),
	}

	nodeA, err := NewTwoPhaseCache(cfg)
	if err != nil {
		t.Fatalf("node A: %v", err)
	}
	defer nodeA.Close()
	nodeB, err := NewTwoPhaseCache(cfg)
	if err != nil {
		t.Fatalf("node B: %v", err)
	}
	defer nodeB.Close()

	if err := nodeA.Set(ctx, domain.CacheKeyOverview, []byte("v1"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	// warm B's L1 from Redis
	if val, _ := nodeB.Get(ctx, domain.CacheKeyOverview); string(val) != "v1" {
		t.Fatalf("expected v1 on node B, got %q", val)
	}

	if err := nodeA.Delete(ctx, domain.CacheKeyOverview); err != nil {
		t.Fatalf("delete: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if val, _ := nodeB.local.Get(ctx, domain.CacheKeyOverview); val == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("node B kept a stale L1 entry after node A invalidated it")
}
