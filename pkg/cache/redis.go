package cache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/creasty/defaults"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// unlockScript deletes a lock only while it still carries our token, so an
// expired lock re-acquired by another replica is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// RedisCache is the shared cache. All keys live under "<prefix>:".
type RedisCache struct {
	client *redis.Client
	prefix string
	token  string
}

// NewRedisCache dials Redis and pings it once.
func NewRedisCache(cfg RedisConfig) (*RedisCache, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("redis defaults: %w", err)
	}
	client := redis.NewClient(&redis.Options{
		Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		PoolTimeout:  cfg.PoolTimeout,
		DialTimeout:  cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", client.Options().Addr, err)
	}
	return &RedisCache{client: client, prefix: cfg.Prefix, token: uuid.NewString()}, nil
}

// Client exposes the connection for components that share it (job queue,
// byte caches).
func (c *RedisCache) Client() *redis.Client { return c.client }

func (c *RedisCache) Close() error { return c.client.Close() }

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return decodeValue(data, dest)
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	return c.client.Unlink(ctx, full...).Err()
}

// DeleteByPattern walks matching keys with SCAN and unlinks them in batches.
func (c *RedisCache) DeleteByPattern(ctx context.Context, pattern string) error {
	const batch = 256
	iter := c.client.Scan(ctx, 0, c.key(pattern), batch).Iterator()
	pending := make([]string, 0, batch)
	for iter.Next(ctx) {
		pending = append(pending, iter.Val())
		if len(pending) == batch {
			if err := c.client.Unlink(ctx, pending...).Err(); err != nil {
				return err
			}
			pending = pending[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(pending) > 0 {
		return c.client.Unlink(ctx, pending...).Err()
	}
	return nil
}

// TryLock sets key to this instance's token with SET NX.
func (c *RedisCache) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, c.key(key), c.token, ttl).Result()
}

func (c *RedisCache) Unlock(ctx context.Context, key string) error {
	return unlockScript.Run(ctx, c.client, []string{c.key(key)}, c.token).Err()
}

func (c *RedisCache) ExtendLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	n, err := extendScript.Run(ctx, c.client, []string{c.key(key)}, c.token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *RedisCache) key(k string) string { return c.prefix + ":" + k }

var _ Service = (*RedisCache)(nil)
