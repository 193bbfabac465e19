package cache

import (
	"context"
	"sync"
	"time"
)

// BytesCache stores raw bytes with a TTL. Misses are (nil, false, nil).
type BytesCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type entry struct {
	b   []byte
	exp time.Time
}

func (e entry) expired(now time.Time) bool { return !e.exp.IsZero() && now.After(e.exp) }

// TTLCache is an in-process BytesCache holding at most max entries. When
// full, expired entries are swept first, then an arbitrary one is evicted.
type TTLCache struct {
	mu  sync.Mutex
	m   map[string]entry
	max int
}

func NewTTLCache(capacity int) *TTLCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &TTLCache{m: make(map[string]entry), max: capacity}
}

func (c *TTLCache) GetBytes(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false, nil
	}
	if e.expired(time.Now()) {
		delete(c.m, key)
		return nil, false, nil
	}
	return e.b, true, nil
}

func (c *TTLCache) SetBytes(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.m[key]; !ok && len(c.m) >= c.max {
		c.evictLocked()
	}
	c.m[key] = entry{b: append([]byte(nil), value...), exp: exp}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *TTLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func (c *TTLCache) evictLocked() {
	now := time.Now()
	for k, e := range c.m {
		if e.expired(now) {
			delete(c.m, k)
		}
	}
	if len(c.m) < c.max {
		return
	}
	for k := range c.m {
		delete(c.m, k)
		return
	}
}
