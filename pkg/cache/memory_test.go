package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type point struct {
	Value float64 `json:"value"`
	Label string  `json:"label"`
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(8)

	if err := mc.Set(ctx, "query:index", point{Value: 101.5, Label: "overall"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	var got point
	if err := mc.Get(ctx, "query:index", &got); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Value != 101.5 || got.Label != "overall" {
		t.Fatalf("unexpected value: %+v", got)
	}

	var s string
	_ = mc.Set(ctx, "raw", "hello", time.Minute)
	if err := mc.Get(ctx, "raw", &s); err != nil || s != "hello" {
		t.Fatalf("string get: %q %v", s, err)
	}
}

func TestMemoryCacheMissAndPattern(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(8)

	var got point
	if err := mc.Get(ctx, "absent", &got); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	_ = mc.Set(ctx, "query:score:1", point{}, time.Minute)
	_ = mc.Set(ctx, "query:score:2", point{}, time.Minute)
	_ = mc.Set(ctx, "other", point{}, time.Minute)
	if err := mc.DeleteByPattern(ctx, BuildPattern("query:")); err != nil {
		t.Fatalf("delete by pattern: %v", err)
	}
	if mc.Len() != 1 {
		t.Fatalf("len = %d, want 1", mc.Len())
	}
	if err := mc.Get(ctx, "other", &got); err != nil {
		t.Fatalf("unrelated key should survive: %v", err)
	}
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(2)

	_ = mc.Set(ctx, "a", 1, time.Minute)
	_ = mc.Set(ctx, "b", 2, time.Minute)
	var n int
	_ = mc.Get(ctx, "a", &n) // a is now the most recent
	_ = mc.Set(ctx, "c", 3, time.Minute)

	if err := mc.Get(ctx, "b", &n); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("b should be evicted, got %v", err)
	}
	if err := mc.Get(ctx, "a", &n); err != nil || n != 1 {
		t.Fatalf("a = %d %v", n, err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(4)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	_ = mc.Set(ctx, "k", "v", time.Second)
	now = now.Add(2 * time.Second)

	var s string
	if err := mc.Get(ctx, "k", &s); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired miss, got %v", err)
	}
	if mc.Len() != 0 {
		t.Fatalf("expired entry not collected")
	}
}

func TestMemoryCacheLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(4)

	if ok, _ := mc.TryLock(ctx, "lock:score:1", time.Minute); !ok {
		t.Fatalf("first lock should succeed")
	}
	if ok, _ := mc.TryLock(ctx, "lock:score:1", time.Minute); ok {
		t.Fatalf("second lock should fail")
	}
	_ = mc.Unlock(ctx, "lock:score:1")
	if ok, _ := mc.TryLock(ctx, "lock:score:1", time.Minute); !ok {
		t.Fatalf("lock after unlock should succeed")
	}
}

func TestMemoryCacheExtendLock(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache(4)
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }

	if ok, _ := mc.ExtendLock(ctx, "lock:detect", time.Second); ok {
		t.Fatalf("extending an unheld lock should fail")
	}
	_, _ = mc.TryLock(ctx, "lock:detect", time.Second)
	now = now.Add(900 * time.Millisecond)
	if ok, _ := mc.ExtendLock(ctx, "lock:detect", time.Second); !ok {
		t.Fatalf("extend should succeed while held")
	}
	now = now.Add(900 * time.Millisecond)
	if ok, _ := mc.TryLock(ctx, "lock:detect", time.Second); ok {
		t.Fatalf("extended lock expired early")
	}
}

func TestGenerateKeyWithParams(t *testing.T) {
	if got := GenerateKeyWithParams("query:index", 3, "2024-03-01"); got != "query:index:3:2024-03-01" {
		t.Fatalf("key = %q", got)
	}
}
