// Package cache holds the Redis connection shared by rate limiting and the
// catalog cache, plus a small JSON value cache on top of it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Connect parses a redis:// URL and verifies the server with a ping
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// JSONCache stores JSON-encoded values under a key prefix with a fixed TTL.
// A nil *JSONCache is valid and caches nothing.
type JSONCache struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewJSONCache creates a cache; keys are stored as prefix + ":" + key
func NewJSONCache(client redis.Cmdable, prefix string, ttl time.Duration) *JSONCache {
	if client == nil {
		return nil
	}
	return &JSONCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *JSONCache) key(k string) string {
	return c.prefix + ":" + k
}

// Get decodes the cached value into dst. It reports false on a miss.
func (c *JSONCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return true, nil
}

// Set stores v under key
func (c *JSONCache) Set(ctx context.Context, key string, v any) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Delete removes key
func (c *JSONCache) Delete(ctx context.Context, key string) error {
	if c == nil {
		return nil
	}
	if err := c.client.Del(ctx, c.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}
