package cache

import (
	"container/list"
	"context"
	"path"
	"sync"
	"time"
)

// maxMemoryTTL bounds entries written without a TTL.
const maxMemoryTTL = 24 * time.Hour

type memEntry struct {
	key     string
	value   []byte
	expires time.Time
}

// MemoryCache is a bounded LRU holding encoded values. Expired entries are
// dropped lazily when touched or when they reach the cold end of the list.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
	now      func() time.Time
}

// NewMemoryCache returns an LRU that holds at most capacity keys
// (1000 when capacity <= 0).
func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.putLocked(key, data, ttl)
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	e := mc.liveLocked(key)
	if e == nil {
		mc.mu.Unlock()
		return ErrCacheMiss
	}
	data := e.value
	mc.mu.Unlock()
	return decodeValue(data, dest)
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		if el, ok := mc.index[k]; ok {
			mc.removeLocked(el)
		}
	}
	return nil
}

// DeleteByPattern removes keys matching a glob such as "query:*".
func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for k, el := range mc.index {
		if ok, _ := path.Match(pattern, k); ok {
			mc.removeLocked(el)
		}
	}
	return nil
}

// TryLock claims key for ttl unless a live claim exists.
func (mc *MemoryCache) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	if mc.liveLocked(key) != nil {
		return false, nil
	}
	mc.putLocked(key, []byte("1"), ttl)
	return true, nil
}

func (mc *MemoryCache) Unlock(ctx context.Context, key string) error {
	return mc.Delete(ctx, key)
}

func (mc *MemoryCache) ExtendLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	e := mc.liveLocked(key)
	if e == nil {
		return false, nil
	}
	mc.putLocked(key, e.value, ttl)
	return true, nil
}

// Len reports stored keys, expired ones not yet collected included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.order.Len()
}

// Close drops every entry.
func (mc *MemoryCache) Close() error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.order.Init()
	mc.index = make(map[string]*list.Element)
	return nil
}

func (mc *MemoryCache) putLocked(key string, data []byte, ttl time.Duration) {
	if ttl <= 0 || ttl > maxMemoryTTL {
		ttl = maxMemoryTTL
	}
	expires := mc.now().Add(ttl)
	if el, ok := mc.index[key]; ok {
		e := el.Value.(*memEntry)
		e.value, e.expires = data, expires
		mc.order.MoveToFront(el)
		return
	}
	mc.index[key] = mc.order.PushFront(&memEntry{key: key, value: data, expires: expires})
	for mc.order.Len() > mc.capacity {
		mc.removeLocked(mc.order.Back())
	}
}

func (mc *MemoryCache) liveLocked(key string) *memEntry {
	el, ok := mc.index[key]
	if !ok {
		return nil
	}
	e := el.Value.(*memEntry)
	if !mc.now().Before(e.expires) {
		mc.removeLocked(el)
		return nil
	}
	mc.order.MoveToFront(el)
	return e
}

func (mc *MemoryCache) removeLocked(el *list.Element) {
	e := mc.order.Remove(el).(*memEntry)
	delete(mc.index, e.key)
}

var _ Service = (*MemoryCache)(nil)
