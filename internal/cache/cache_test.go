package cache

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"batchread/internal/contract"
)

func testResult(v string) contract.BatchResult {
	return contract.BatchResult{{Values: []interface{}{v}}}
}

func newTestCache(t *testing.T, cfg Config) (*ResultCache, *time.Time) {
	t.Helper()
	c, err := New(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)

	clock := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now := &clock
	c.now = func() time.Time { return *now }
	return c, now
}

func TestGet_Miss(t *testing.T) {
	c, _ := newTestCache(t, Config{CacheTime: time.Minute, StaleTime: StaleForever})

	if _, ok := c.Get("batch:missing"); ok {
		t.Error("Get returned a hit for an empty cache")
	}
}

func TestPutGet_Fresh(t *testing.T) {
	c, _ := newTestCache(t, Config{CacheTime: time.Minute, StaleTime: StaleForever})
	key := contract.BatchKey("batch:aa")

	c.Put(key, testResult("v1"), Policy{})

	e, ok := c.Get(key)
	if !ok {
		t.Fatal("Get missed after Put")
	}
	if e.Stale {
		t.Error("entry stale immediately after Put")
	}
	if e.Result[0].Values[0] != "v1" {
		t.Errorf("result = %v", e.Result[0].Values[0])
	}
}

func TestGet_StaleAfterStaleTime(t *testing.T) {
	c, now := newTestCache(t, Config{CacheTime: time.Hour, StaleTime: time.Minute})
	key := contract.BatchKey("batch:aa")

	c.Put(key, testResult("v1"), Policy{})

	*now = now.Add(30 * time.Second)
	if e, _ := c.Get(key); e.Stale {
		t.Error("entry stale before StaleTime")
	}

	*now = now.Add(2 * time.Minute)
	e, ok := c.Get(key)
	if !ok {
		t.Fatal("stale entry evicted instead of served")
	}
	if !e.Stale {
		t.Error("entry fresh after StaleTime")
	}
}

func TestGet_ZeroStaleTime_AlwaysStale(t *testing.T) {
	c, _ := newTestCache(t, Config{CacheTime: time.Hour, StaleTime: 0})
	key := contract.BatchKey("batch:aa")

	c.Put(key, testResult("v1"), Policy{})

	e, ok := c.Get(key)
	if !ok {
		t.Fatal("Get missed")
	}
	if !e.Stale {
		t.Error("entry fresh with zero StaleTime")
	}
}

func TestGet_RetentionEviction(t *testing.T) {
	c, now := newTestCache(t, Config{CacheTime: 5 * time.Minute, StaleTime: StaleForever})
	key := contract.BatchKey("batch:aa")

	c.Put(key, testResult("v1"), Policy{})

	*now = now.Add(6 * time.Minute)
	if _, ok := c.Get(key); ok {
		t.Error("entry survived past its retention window")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d after lazy eviction", c.Len())
	}
}

func TestGet_AccessExtendsRetention(t *testing.T) {
	c, now := newTestCache(t, Config{CacheTime: 5 * time.Minute, StaleTime: StaleForever})
	key := contract.BatchKey("batch:aa")

	c.Put(key, testResult("v1"), Policy{})

	// Repeated access inside the window keeps the entry alive well past
	// CacheTime from creation
	for i := 0; i < 3; i++ {
		*now = now.Add(4 * time.Minute)
		if _, ok := c.Get(key); !ok {
			t.Fatalf("entry evicted on access %d despite activity", i)
		}
	}
}

func TestPut_ZeroCacheTime_NothingRetained(t *testing.T) {
	c, _ := newTestCache(t, Config{CacheTime: 0, StaleTime: StaleForever})
	key := contract.BatchKey("batch:aa")

	c.Put(key, testResult("v1"), Policy{})

	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0 with zero CacheTime", c.Len())
	}
	if _, ok := c.Get(key); ok {
		t.Error("Get hit with zero CacheTime")
	}
}

func TestPolicy_StaleTimeOverride(t *testing.T) {
	c, now := newTestCache(t, Config{CacheTime: time.Hour, StaleTime: StaleForever})
	key := contract.BatchKey("batch:aa")

	staleTime := time.Minute
	c.Put(key, testResult("v1"), Policy{StaleTime: &staleTime})

	if e, _ := c.Get(key); e.Stale {
		t.Error("entry stale before its own StaleTime")
	}

	*now = now.Add(2 * time.Minute)
	e, ok := c.Get(key)
	if !ok {
		t.Fatal("Get missed")
	}
	if !e.Stale {
		t.Error("per-entry StaleTime ignored in favor of the cache default")
	}
}

func TestPolicy_NegativeStaleTime_NeverStale(t *testing.T) {
	c, now := newTestCache(t, Config{CacheTime: time.Hour, StaleTime: 0})
	key := contract.BatchKey("batch:aa")

	never := -time.Second
	c.Put(key, testResult("v1"), Policy{StaleTime: &never})

	*now = now.Add(30 * time.Minute)
	e, ok := c.Get(key)
	if !ok {
		t.Fatal("Get missed")
	}
	if e.Stale {
		t.Error("negative StaleTime marked entry stale")
	}
}

func TestPolicy_CacheTimeOverride(t *testing.T) {
	c, now := newTestCache(t, Config{CacheTime: time.Hour, StaleTime: StaleForever})

	short := time.Minute
	c.Put("batch:short", testResult("s"), Policy{CacheTime: &short})
	c.Put("batch:default", testResult("d"), Policy{})

	*now = now.Add(2 * time.Minute)
	if _, ok := c.Get("batch:short"); ok {
		t.Error("entry survived past its own retention window")
	}
	if _, ok := c.Get("batch:default"); !ok {
		t.Error("default-retention entry evicted early")
	}
}

func TestPolicy_ZeroCacheTimeOverride_NothingRetained(t *testing.T) {
	c, _ := newTestCache(t, Config{CacheTime: time.Hour, StaleTime: StaleForever})

	zero := time.Duration(0)
	c.Put("batch:aa", testResult("v1"), Policy{CacheTime: &zero})

	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0 with a zero per-entry CacheTime", c.Len())
	}
}

func TestInvalidate(t *testing.T) {
	c, _ := newTestCache(t, Config{CacheTime: time.Hour, StaleTime: StaleForever})
	key := contract.BatchKey("batch:aa")

	c.Put(key, testResult("v1"), Policy{})
	c.Invalidate(key)

	if _, ok := c.Get(key); ok {
		t.Error("entry survived Invalidate")
	}
}

func TestInvalidateBlockScoped(t *testing.T) {
	c, _ := newTestCache(t, Config{CacheTime: time.Hour, StaleTime: StaleForever})

	c.Put("batch:time", testResult("t"), Policy{})
	c.Put("batch:block1", testResult("b1"), Policy{Scope: ScopeBlock})
	c.Put("batch:block2", testResult("b2"), Policy{Scope: ScopeBlock})

	c.InvalidateBlockScoped()

	if _, ok := c.Get("batch:time"); !ok {
		t.Error("time-scoped entry removed by block invalidation")
	}
	if _, ok := c.Get("batch:block1"); ok {
		t.Error("block-scoped entry survived invalidation")
	}
	if _, ok := c.Get("batch:block2"); ok {
		t.Error("block-scoped entry survived invalidation")
	}
}

func TestLRU_Bound(t *testing.T) {
	c, _ := newTestCache(t, Config{Size: 2, CacheTime: time.Hour, StaleTime: StaleForever})

	c.Put("batch:1", testResult("1"), Policy{})
	c.Put("batch:2", testResult("2"), Policy{})
	c.Put("batch:3", testResult("3"), Policy{})

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get("batch:1"); ok {
		t.Error("oldest entry survived LRU eviction")
	}
	if _, ok := c.Get("batch:3"); !ok {
		t.Error("newest entry evicted")
	}
}

func TestRemoveExpired(t *testing.T) {
	c, now := newTestCache(t, Config{CacheTime: 5 * time.Minute, StaleTime: StaleForever})

	c.Put("batch:old", testResult("old"), Policy{})
	*now = now.Add(3 * time.Minute)
	c.Put("batch:new", testResult("new"), Policy{})

	*now = now.Add(3 * time.Minute)
	c.removeExpired()

	if _, ok := c.Get("batch:old"); ok {
		t.Error("expired entry survived cleanup")
	}
	if _, ok := c.Get("batch:new"); !ok {
		t.Error("live entry removed by cleanup")
	}
}
