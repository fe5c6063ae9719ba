package idgen

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/redbco/redb-persist/pkg/adapter"
)

// DefaultKeyPrefix prefixes the per-table counters.
const DefaultKeyPrefix = "redb:persist:id:"

// RedisAllocator hands out ids from one INCRBY counter per table, so several
// kernels writing the same database never collide. A missing counter is
// seeded from the table's MAX(C__ID).
type RedisAllocator struct {
	client  redis.Cmdable
	dialect adapter.Dialect
	prefix  string
}

// NewRedisAllocator creates an allocator on a Redis client.
func NewRedisAllocator(client redis.Cmdable, d adapter.Dialect, prefix string) *RedisAllocator {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisAllocator{client: client, dialect: d, prefix: prefix}
}

// Key returns the counter key of a table.
func (a *RedisAllocator) Key(table string) string {
	return a.prefix + table
}

func (a *RedisAllocator) Allocate(ctx context.Context, ex adapter.Executor, table string, n int) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid id count %d", n)
	}
	key := a.Key(table)

	exists, err := a.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read id counter %s: %w", key, err)
	}
	if exists == 0 {
		seed, err := maxID(ctx, a.dialect, ex, table)
		if err != nil {
			return 0, err
		}
		// A concurrent seeder may win; its value is the same MAX(C__ID).
		if err := a.client.SetNX(ctx, key, seed, 0).Err(); err != nil {
			return 0, fmt.Errorf("failed to seed id counter %s: %w", key, err)
		}
	}

	last, err := a.client.IncrBy(ctx, key, int64(n)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate ids from %s: %w", key, err)
	}
	return last - int64(n) + 1, nil
}

// Reset removes the counter of a table so the next allocation reseeds it.
func (a *RedisAllocator) Reset(ctx context.Context, table string) error {
	if err := a.client.Del(ctx, a.Key(table)).Err(); err != nil {
		return fmt.Errorf("failed to reset id counter: %w", err)
	}
	return nil
}
