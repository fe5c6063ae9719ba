package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/redbco/redb-persist/pkg/config"
)

// RedisConfig holds the Redis connection configuration
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	MaxIdleTime  time.Duration
}

// DefaultRedisConfig returns a default configuration for local development
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:         "localhost",
		Port:         6379,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxIdleTime:  time.Minute * 5,
	}
}

func (c RedisConfig) options() *redis.Options {
	return &redis.Options{
		Addr:            fmt.Sprintf("%s:%d", c.Host, c.Port),
		Password:        c.Password,
		DB:              c.DB,
		MaxRetries:      c.MaxRetries,
		PoolSize:        c.PoolSize,
		MinIdleConns:    c.MinIdleConns,
		ConnMaxIdleTime: c.MaxIdleTime,
	}
}

// Redis represents a Redis client connection pool
type Redis struct {
	client *redis.Client
}

// NewRedis creates a new Redis client using the provided configuration
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	return connectRedis(ctx, redis.NewClient(cfg.options()))
}

// NewRedisFromURL creates a Redis client from a redis:// or rediss:// URL.
func NewRedisFromURL(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return connectRedis(ctx, redis.NewClient(opts))
}

// RedisFromGlobalConfig connects to the server named by redis.url, falling
// back to the local default.
func RedisFromGlobalConfig(ctx context.Context, cfg *config.Config) (*Redis, error) {
	if url := cfg.Get(config.KeyRedisURL); url != "" {
		return NewRedisFromURL(ctx, url)
	}
	return NewRedis(ctx, DefaultRedisConfig())
}

// WrapRedis wraps an existing client without pinging it.
func WrapRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func connectRedis(ctx context.Context, client *redis.Client) (*Redis, error) {
	// Test the connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() {
	if r.client != nil {
		r.client.Close()
	}
}

// Client returns the underlying Redis client
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Ping checks if the Redis connection is alive
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
