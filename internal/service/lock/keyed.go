package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PlantDex/pkg/cache"
	applogger "PlantDex/pkg/logger"
)

// Distributed is the subset of cache.Service used for cross-process locks.
type Distributed interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	ExtendLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var _ Distributed = (cache.Service)(nil)

type entry struct {
	sem  chan struct{}
	refs int
}

// KeyedLocker serializes work per key. Within a process callers queue on a
// per-key semaphore; with a distributed backend the holder also owns a TTL
// lock so other replicas wait for it. The TTL lock is renewed every third of
// its TTL until released.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[string]*entry
	dist    Distributed
	ttl     time.Duration
	retry   time.Duration
	onWait  func(key string)
	log     *applogger.Logger
}

type Option func(*KeyedLocker)

// WithDistributed adds a cross-process lock backend (e.g. Redis SETNX).
func WithDistributed(d Distributed, ttl time.Duration) Option {
	return func(l *KeyedLocker) {
		l.dist = d
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithRetryInterval sets the poll interval for the distributed lock.
func WithRetryInterval(d time.Duration) Option {
	return func(l *KeyedLocker) {
		if d > 0 {
			l.retry = d
		}
	}
}

// WithContentionHook is called once per acquisition that had to wait.
func WithContentionHook(fn func(key string)) Option {
	return func(l *KeyedLocker) { l.onWait = fn }
}

// WithLogger reports distributed lock renewal and release failures.
func WithLogger(log *applogger.Logger) Option {
	return func(l *KeyedLocker) {
		if log != nil {
			l.log = log
		}
	}
}

func New(opts ...Option) *KeyedLocker {
	l := &KeyedLocker{
		entries: make(map[string]*entry),
		ttl:     30 * time.Second,
		retry:   50 * time.Millisecond,
		log:     applogger.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *KeyedLocker) acquireEntry(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *KeyedLocker) releaseEntry(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock blocks until key is held or ctx is done. The returned func releases it.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	e := l.acquireEntry(key)

	waited := false
	select {
	case e.sem <- struct{}{}:
	default:
		waited = true
		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			l.releaseEntry(key, e)
			return nil, fmt.Errorf("lock %s: %w", key, ctx.Err())
		}
	}

	stopRenew := func() {}
	if l.dist != nil {
		w, err := l.lockDistributed(ctx, key)
		if err != nil {
			<-e.sem
			l.releaseEntry(key, e)
			return nil, err
		}
		waited = waited || w
		stopRenew = l.renew(key)
	}
	if waited && l.onWait != nil {
		l.onWait(key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if l.dist != nil {
				stopRenew()
				if err := l.dist.Unlock(context.Background(), lockKey(key)); err != nil {
					l.log.Warn("release distributed lock failed",
						applogger.String("key", key),
						applogger.Error(err),
					)
				}
			}
			<-e.sem
			l.releaseEntry(key, e)
		})
	}, nil
}

func (l *KeyedLocker) lockDistributed(ctx context.Context, key string) (bool, error) {
	waited := false
	for {
		ok, err := l.dist.TryLock(ctx, lockKey(key), l.ttl)
		if err != nil {
			return waited, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return waited, nil
		}
		waited = true
		select {
		case <-time.After(l.retry):
		case <-ctx.Done():
			return waited, fmt.Errorf("lock %s: %w", key, ctx.Err())
		}
	}
}

// renew extends the distributed lock on key until the returned func is called.
// A lost lock is logged and renewal stops.
func (l *KeyedLocker) renew(key string) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				ok, err := l.dist.ExtendLock(ctx, lockKey(key), l.ttl)
				cancel()
				if err != nil {
					l.log.Warn("renew distributed lock failed",
						applogger.String("key", key),
						applogger.Error(err),
					)
					continue
				}
				if !ok {
					l.log.Warn("distributed lock lost before release", applogger.String("key", key))
					return
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-done
	}
}

// WithLock runs fn while holding key.
func (l *KeyedLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	unlock, err := l.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return fn()
}

func lockKey(key string) string { return "lock:" + key }

// Key helpers for the recompute targets.

func AggregateKey(itemID int64, day time.Time) string {
	return fmt.Sprintf("aggregate:%d:%s", itemID, day.UTC().Format("2006-01-02"))
}

func IndexKey(day time.Time) string {
	return "index:" + day.UTC().Format("2006-01-02")
}

func ScoreKey(itemID int64) string {
	return fmt.Sprintf("score:%d", itemID)
}

// DetectKey guards whole detection passes; they write many items at once.
const DetectKey = "detect"
