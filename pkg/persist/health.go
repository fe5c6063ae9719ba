package persist

import (
	"context"
	"errors"

	"github.com/redbco/redb-persist/pkg/health"
)

// Health checks the database, the system catalog and, for the redis id
// allocator, the redis server.
func (k *Kernel) Health(ctx context.Context) *health.Checker {
	c := health.NewChecker()
	c.RunCheck(ctx, "database", func(ctx context.Context) error {
		if k.closed.Load() {
			return ErrClosed
		}
		if k.db == nil {
			return errors.New("no database")
		}
		return k.db.PingContext(ctx)
	})
	c.RunCheck(ctx, "catalog", func(ctx context.Context) error {
		if k.db == nil {
			return errors.New("no database")
		}
		_, err := k.catalog.Tables(ctx, k.db)
		return err
	})
	if k.opts.Redis != nil {
		c.RunCheck(ctx, "redis", func(ctx context.Context) error {
			return k.opts.Redis.Ping(ctx).Err()
		})
	}

	if status := c.Overall(); status != health.Healthy {
		k.log.With("kernel", k.id.String()).Warn("Kernel is %s", status)
	}
	return c
}
