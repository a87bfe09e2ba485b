package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisPrefix namespaces cache keys in Redis.
	DefaultRedisPrefix = "cencori:"

	// DefaultRedisTTL applies when Set is called without a ttl.
	DefaultRedisTTL = 5 * time.Minute
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379" or "redis://:password@host:6379/0")
	URL string

	// Prefix is prepended to every key (defaults to "cencori:")
	Prefix string

	// TTL is the default time-to-live (defaults to 5 minutes)
	TTL time.Duration
}

// Connect parses url, dials Redis and verifies the connection. The returned
// client can be shared with other Redis consumers such as the circuit breaker.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisCache implements Cache using Redis for distributed storage.
// This is suitable for multi-instance deployments behind a load balancer.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owned  bool
}

// NewRedisCache connects to Redis and owns the resulting client.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client, err := Connect(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	c := NewRedisCacheWithClient(client, cfg)
	c.owned = true
	slog.Info("redis cache connected", "prefix", c.prefix, "ttl", c.ttl)
	return c, nil
}

// NewRedisCacheWithClient wraps a client owned by the caller. cfg.URL is ignored.
func NewRedisCacheWithClient(client *redis.Client, cfg RedisConfig) *RedisCache {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

// Client returns the underlying Redis client.
func (c *RedisCache) Client() *redis.Client {
	return c.client
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get %q from redis: %w", key, err)
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %q in redis: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection when this cache created it.
func (c *RedisCache) Close() error {
	if c.owned && c.client != nil {
		return c.client.Close()
	}
	return nil
}
