// Package catalog owns the system tables that record the stored shape of
// every level table and the ownership edges between rows:
//
//   - C__TYPE_TABLE maps (owner table, column) to the stored property type.
//     The pseudo column C__TYPE records the type name owning a table.
//   - C__IS_A lists (superclass table, subclass table) pairs.
//   - C__HAS_A lists ownership edges; external edges have no owner.
//   - C__INDEX_TABLE lists the columns of every generated index.
//   - C__SEQUENCE holds the next id per table for sequence allocation.
//
// The tables are created by versioned goose migrations.
package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/logger"
)

// System table names.
const (
	TypeTable     = "C__TYPE_TABLE"
	IsATable      = "C__IS_A"
	HasATable     = "C__HAS_A"
	IndexTable    = "C__INDEX_TABLE"
	SequenceTable = "C__SEQUENCE"
)

// TypeColumn is the pseudo column name under which C__TYPE_TABLE records
// the type owning a table.
const TypeColumn = "C__TYPE"

// nameLength bounds table, column and index names stored in the catalog.
const nameLength = 128

// classLength bounds stored property type names.
const classLength = 512

// Catalog reads and writes the system tables through one dialect.
type Catalog struct {
	dialect adapter.Dialect
	log     *logger.Logger
}

// New creates a catalog.
func New(d adapter.Dialect, log *logger.Logger) *Catalog {
	if log == nil {
		log = logger.Discard()
	}
	return &Catalog{dialect: d, log: log}
}

// Dialect returns the catalog's dialect.
func (c *Catalog) Dialect() adapter.Dialect { return c.dialect }

func (c *Catalog) exec(ctx context.Context, ex adapter.Executor, op, query string, args ...any) (sql.Result, error) {
	res, err := ex.ExecContext(ctx, adapter.Rebind(c.dialect, query), args...)
	if err != nil {
		return nil, adapter.WrapError(c.dialect.ID(), op, err)
	}
	return res, nil
}

func (c *Catalog) query(ctx context.Context, ex adapter.Executor, op, query string, args ...any) (*sql.Rows, error) {
	rows, err := ex.QueryContext(ctx, adapter.Rebind(c.dialect, query), args...)
	if err != nil {
		return nil, adapter.WrapError(c.dialect.ID(), op, err)
	}
	return rows, nil
}

// strings runs a single-column query.
func (c *Catalog) strings(ctx context.Context, ex adapter.Executor, op, query string, args ...any) ([]string, error) {
	rows, err := c.query(ctx, ex, op, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, adapter.WrapError(c.dialect.ID(), op, err)
	}
	return out, nil
}
