package cache

import (
	"context"
	"time"

	"github.com/creasty/defaults"
)

// LayeredCache puts a small MemoryCache in front of Redis. Local entries
// live at most LocalTTL, which bounds how stale a replica can be after
// another replica invalidates Redis.
type LayeredCache struct {
	local  *MemoryCache
	shared *RedisCache
	ttl    time.Duration
}

func NewLayeredCache(shared *RedisCache, cfg LayeredConfig) *LayeredCache {
	_ = defaults.Set(&cfg)
	return &LayeredCache{
		local:  NewMemoryCache(cfg.LocalSize),
		shared: shared,
		ttl:    cfg.LocalTTL,
	}
}

func (lc *LayeredCache) localTTL(ttl time.Duration) time.Duration {
	if ttl > 0 && ttl < lc.ttl {
		return ttl
	}
	return lc.ttl
}

// Set writes Redis first; the local copy is only kept when Redis accepted it.
func (lc *LayeredCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	if err := lc.shared.Set(ctx, key, data, ttl); err != nil {
		return err
	}
	return lc.local.Set(ctx, key, data, lc.localTTL(ttl))
}

func (lc *LayeredCache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	if err := lc.local.Get(ctx, key, &data); err == nil {
		return decodeValue(data, dest)
	}
	if err := lc.shared.Get(ctx, key, &data); err != nil {
		return err
	}
	_ = lc.local.Set(ctx, key, data, lc.ttl)
	return decodeValue(data, dest)
}

func (lc *LayeredCache) Delete(ctx context.Context, keys ...string) error {
	_ = lc.local.Delete(ctx, keys...)
	return lc.shared.Delete(ctx, keys...)
}

func (lc *LayeredCache) DeleteByPattern(ctx context.Context, pattern string) error {
	_ = lc.local.DeleteByPattern(ctx, pattern)
	return lc.shared.DeleteByPattern(ctx, pattern)
}

// Locks must be visible to every replica, so they bypass the local layer.
func (lc *LayeredCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.shared.TryLock(ctx, key, ttl)
}

func (lc *LayeredCache) Unlock(ctx context.Context, key string) error {
	return lc.shared.Unlock(ctx, key)
}

func (lc *LayeredCache) ExtendLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return lc.shared.ExtendLock(ctx, key, ttl)
}

// Close clears the local layer. Redis belongs to its own owner.
func (lc *LayeredCache) Close() error { return lc.local.Close() }

var _ Service = (*LayeredCache)(nil)
