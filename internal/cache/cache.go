// Package cache is a small versioned JSON cache over Redis.
//
// Readers embed the current version of a namespace in their keys; writers
// invalidate a whole namespace by incrementing its version, so stale entries
// simply stop being addressed and expire on their own. A Cache with no
// client is a valid no-op (every Get misses, every Set is dropped).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Cache wraps an optional Redis client.
type Cache struct {
	client *redis.Client
}

// New returns a Cache over client. A nil client disables caching.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Connect dials addr and pings it. When addr is empty or Redis does not
// answer, it logs and returns a disabled Cache so the service runs without
// Redis.
func Connect(ctx context.Context, addr string) *Cache {
	if addr == "" {
		log.Info().Msg("cache disabled (REDIS_ADDR empty)")
		return New(nil)
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis not available, running without cache")
		_ = client.Close()
		return New(nil)
	}
	log.Info().Str("addr", addr).Msg("redis connected")
	return New(client)
}

// Enabled reports whether a Redis client is attached.
func (c *Cache) Enabled() bool { return c != nil && c.client != nil }

// GetVersion returns the current version of a namespace (0 when unset or
// when the cache is disabled).
func (c *Cache) GetVersion(ctx context.Context, key string) int64 {
	if !c.Enabled() {
		return 0
	}
	v, err := c.client.Get(ctx, key).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("cache version read failed")
		}
		return 0
	}
	return v
}

// IncrementVersion invalidates every entry addressed with the previous
// version of a namespace.
func (c *Cache) IncrementVersion(ctx context.Context, key string) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Incr(ctx, key).Err(); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache version bump failed")
	}
}

// Get decodes the JSON stored at key into dest. It reports false on a miss.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value as JSON under key for ttl.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.Enabled() {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}
