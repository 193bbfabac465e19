package cache

import (
	"context"
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache(8)
	_ = c.SetBytes(ctx, "a", []byte("1"), time.Millisecond)
	_ = c.SetBytes(ctx, "b", []byte("2"), 0)
	time.Sleep(5 * time.Millisecond)

	if _, ok, _ := c.GetBytes(ctx, "a"); ok {
		t.Fatal("a should have expired")
	}
	if b, ok, _ := c.GetBytes(ctx, "b"); !ok || string(b) != "2" {
		t.Fatalf("b = %q, %v", b, ok)
	}
}

func TestTTLCacheBounded(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache(2)
	_ = c.SetBytes(ctx, "a", []byte("1"), 0)
	_ = c.SetBytes(ctx, "b", []byte("2"), 0)
	_ = c.SetBytes(ctx, "c", []byte("3"), 0)
	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
	if _, ok, _ := c.GetBytes(ctx, "c"); !ok {
		t.Fatal("newest entry must be kept")
	}
	// overwriting an existing key does not evict
	_ = c.SetBytes(ctx, "c", []byte("4"), 0)
	if c.Len() != 2 {
		t.Fatalf("len = %d", c.Len())
	}
}
