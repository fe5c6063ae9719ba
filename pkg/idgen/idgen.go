// Package idgen allocates C__ID values for engines, or deployments, that
// write ids explicitly instead of reading them back from an identity column.
package idgen

import (
	"context"
	"fmt"
	"sync"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/catalog"
	"github.com/redbco/redb-persist/pkg/shape"
)

// Allocator reserves n consecutive ids for a table and returns the first.
type Allocator interface {
	Allocate(ctx context.Context, ex adapter.Executor, table string, n int) (int64, error)
}

// Kind names an allocation strategy in configuration.
type Kind string

const (
	Native   Kind = "native"
	Sequence Kind = "sequence"
	Redis    Kind = "redis"
)

// ParseKind validates a configured allocator name. Empty means native.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "":
		return Native, nil
	case Native, Sequence, Redis:
		return k, nil
	}
	return "", fmt.Errorf("unknown id allocator %q", s)
}

// SequenceAllocator keeps the next id per table in C__SEQUENCE. A table
// without an entry is seeded from its current MAX(C__ID).
type SequenceAllocator struct {
	dialect adapter.Dialect
	mu      sync.Mutex
}

// NewSequenceAllocator creates an allocator over the catalog sequence table.
func NewSequenceAllocator(d adapter.Dialect) *SequenceAllocator {
	return &SequenceAllocator{dialect: d}
}

func (a *SequenceAllocator) Allocate(ctx context.Context, ex adapter.Executor, table string, n int) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid id count %d", n)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	res, err := ex.ExecContext(ctx, adapter.Rebind(a.dialect,
		"UPDATE "+catalog.SequenceTable+" SET NEXT_ID = NEXT_ID + ? WHERE TABLE_NAME = ?"), int64(n), table)
	if err != nil {
		return 0, adapter.WrapError(a.dialect.ID(), "allocate id", err)
	}
	updated, err := res.RowsAffected()
	if err != nil {
		return 0, adapter.WrapError(a.dialect.ID(), "allocate id", err)
	}

	if updated > 0 {
		var next int64
		err := ex.QueryRowContext(ctx, adapter.Rebind(a.dialect,
			"SELECT NEXT_ID FROM "+catalog.SequenceTable+" WHERE TABLE_NAME = ?"), table).Scan(&next)
		if err != nil {
			return 0, adapter.WrapError(a.dialect.ID(), "read sequence", err)
		}
		return next - int64(n), nil
	}

	first, err := maxID(ctx, a.dialect, ex, table)
	if err != nil {
		return 0, err
	}
	first++

	if _, err := ex.ExecContext(ctx, adapter.Rebind(a.dialect,
		"INSERT INTO "+catalog.SequenceTable+" (TABLE_NAME, NEXT_ID) VALUES (?, ?)"), table, first+int64(n)); err != nil {
		return 0, adapter.WrapError(a.dialect.ID(), "seed sequence", err)
	}
	return first, nil
}

// maxID returns the largest id stored in a table, or zero when empty.
func maxID(ctx context.Context, d adapter.Dialect, ex adapter.Executor, table string) (int64, error) {
	var v any
	if err := ex.QueryRowContext(ctx, "SELECT MAX(C__ID) FROM "+table).Scan(&v); err != nil {
		return 0, adapter.WrapError(d.ID(), "read max id", err)
	}
	if v == nil {
		return 0, nil
	}
	n, err := d.Decode(shape.Int64, v)
	if err != nil {
		return 0, err
	}
	return n.(int64), nil
}
