package lock

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PlantDex/pkg/cache"
	applogger "PlantDex/pkg/logger"
)

func TestKeyedLockerSerializesSameKey(t *testing.T) {
	l := New()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.WithLock(context.Background(), ScoreKey(1), func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	if maxInside != 1 {
		t.Fatalf("expected exclusive access, saw %d concurrent holders", maxInside)
	}
	if len(l.entries) != 0 {
		t.Fatalf("entries must be released, %d left", len(l.entries))
	}
}

func TestKeyedLockerDistinctKeysDoNotBlock(t *testing.T) {
	l := New()
	unlockA, err := l.Lock(context.Background(), ScoreKey(1))
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, ScoreKey(2))
	if err != nil {
		t.Fatalf("lock b should not wait: %v", err)
	}
	unlockB()
}

func TestKeyedLockerHonoursContext(t *testing.T) {
	l := New()
	unlock, _ := l.Lock(context.Background(), IndexKey(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, IndexKey(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))); err == nil {
		t.Fatalf("expected context error while key is held")
	}
}

func TestKeyedLockerDistributedBackend(t *testing.T) {
	mc := cache.NewMemoryCache(128)
	defer mc.Close()

	var waits int32
	a := New(WithDistributed(mc, time.Second), WithRetryInterval(5*time.Millisecond))
	b := New(WithDistributed(mc, time.Second), WithRetryInterval(5*time.Millisecond),
		WithContentionHook(func(string) { atomic.AddInt32(&waits, 1) }))

	unlock, err := a.Lock(context.Background(), DetectKey)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		u, err := b.Lock(context.Background(), DetectKey)
		if err == nil {
			u()
		}
	}()
	time.Sleep(20 * time.Millisecond)
	unlock()
	<-done
	if atomic.LoadInt32(&waits) != 1 {
		t.Fatalf("expected one contended acquisition, got %d", waits)
	}
}

func TestKeyedLockerRenewsDistributedLease(t *testing.T) {
	mc := cache.NewMemoryCache(128)
	defer mc.Close()

	l := New(WithDistributed(mc, 60*time.Millisecond))
	unlock, err := l.Lock(context.Background(), DetectKey)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// well past the original TTL the lease must still be held
	time.Sleep(200 * time.Millisecond)
	if ok, _ := mc.TryLock(context.Background(), lockKey(DetectKey), time.Second); ok {
		t.Fatal("lease expired while held")
	}

	unlock()
	if ok, _ := mc.TryLock(context.Background(), lockKey(DetectKey), time.Second); !ok {
		t.Fatal("lease not released")
	}
}

type failingUnlock struct {
	*cache.MemoryCache
}

func (failingUnlock) Unlock(context.Context, string) error { return errors.New("redis down") }

func TestKeyedLockerLogsUnlockFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock.log")
	log, err := applogger.New(&applogger.Config{Level: "warn", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	l := New(WithDistributed(failingUnlock{cache.NewMemoryCache(16)}, time.Second), WithLogger(log))
	unlock, err := l.Lock(context.Background(), ScoreKey(3))
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	unlock()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(raw)
	if !strings.Contains(out, "release distributed lock failed") || !strings.Contains(out, "redis down") || !strings.Contains(out, `"key":"score:3"`) {
		t.Fatalf("unlock failure not logged: %s", out)
	}
}
