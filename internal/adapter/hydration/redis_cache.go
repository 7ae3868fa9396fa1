package hydration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hybrid-retrieval/internal/domain"

	"github.com/redis/go-redis/v9"
)

// RedisCache stores hydrated chunks as JSON under tenant-scoped keys.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache creates a cache on an existing client.
func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	if prefix == "" {
		prefix = "hydration"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisClientWithURL parses a redis:// URL into a client.
func NewRedisClientWithURL(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (c *RedisCache) key(tenantID, kind, id string) string {
	return fmt.Sprintf("%s:%s:%s:%s", c.prefix, tenantID, kind, id)
}

// Get returns the cached value, or nil without error on a miss.
func (c *RedisCache) Get(ctx context.Context, tenantID, kind, id string) (*domain.HydratedChunk, error) {
	raw, err := c.client.Get(ctx, c.key(tenantID, kind, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var chunk domain.HydratedChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return nil, fmt.Errorf("decode cached chunk: %w", err)
	}
	return &chunk, nil
}

// Set writes a value with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, tenantID, kind, id string, chunk *domain.HydratedChunk) error {
	raw, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("encode chunk: %w", err)
	}
	if err := c.client.Set(ctx, c.key(tenantID, kind, id), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping reports whether Redis answers.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
