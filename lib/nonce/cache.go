package nonce

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemCache is the default in-process cache. Entries are lost on restart, which is acceptable: the next allocation
// re-seeds from the provider's pending count.
type MemCache struct {
	mu sync.Mutex
	m  map[string]Entry
}

// NewMemCache returns an empty in-process cache.
func NewMemCache() *MemCache {
	return &MemCache{m: make(map[string]Entry)}
}

// Get returns the entry for key, if present.
func (c *MemCache) Get(_ context.Context, key string) (Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.m[key]

	return e, ok, nil
}

// Put stores the entry for key.
func (c *MemCache) Put(_ context.Context, key string, e Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m[key] = e

	return nil
}

// Delete removes the entry for key.
func (c *MemCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.m, key)

	return nil
}

// RedisCache keeps allocation entries in redis so multiple dispatcher instances can share one allocation sequence.
// Expiry is delegated to redis: keys are written with the TTL and a hit counts as fresh.
type RedisCache struct {
	c   *redis.Client
	ttl time.Duration
}

// NewRedisCache connects to redis at addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	c := redis.NewClient(&redis.Options{Addr: addr})

	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()

		return nil, err
	}

	return &RedisCache{c: c, ttl: ttl}, nil
}

// Get returns the entry for key, if present and not expired.
func (c *RedisCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	v, err := c.c.Get(ctx, "txd:nonce:"+key).Result()
	if err == redis.Nil {
		return Entry{}, false, nil
	}

	if err != nil {
		return Entry{}, false, err
	}

	next, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return Entry{}, false, err
	}

	return Entry{Next: next, Refreshed: time.Now()}, true, nil
}

// Put stores the entry for key with the configured TTL.
func (c *RedisCache) Put(ctx context.Context, key string, e Entry) error {
	return c.c.Set(ctx, "txd:nonce:"+key, strconv.FormatUint(e.Next, 10), c.ttl).Err()
}

// Delete removes the entry for key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.c.Del(ctx, "txd:nonce:"+key).Err()
}

// Close releases the redis connection.
func (c *RedisCache) Close() error {
	return c.c.Close()
}
