// Package cache provides idempotency.Cache backends.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/tollgate/idempotency"
)

var _ idempotency.Cache = (*Redis)(nil)

// RedisConfig holds the Redis connection configuration.
type RedisConfig struct {
	URL          string
	Prefix       string
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
}

// DefaultRedisConfig returns a configuration for local development.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		URL:          "redis://localhost:6379/0",
		Prefix:       "tollgate",
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// Redis stores idempotency outcomes in Redis under "<prefix>:<namespace>:<key>".
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	if cfg.MaxRetries > 0 {
		opts.MaxRetries = cfg.MaxRetries
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}

	return NewRedisFromClient(client, cfg.Prefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultRedisConfig().Prefix
	}
	return &Redis{client: client, prefix: prefix}
}

// Get implements idempotency.Cache.
func (r *Redis) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key(namespace, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, idempotency.ErrCacheMiss
		}
		return nil, fmt.Errorf("cache: redis get: %w", err)
	}
	return data, nil
}

// Set implements idempotency.Cache. A zero ttl keeps the entry forever.
func (r *Redis) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(namespace, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(namespace, key string) string {
	return r.prefix + ":" + namespace + ":" + key
}
