package catalog

import (
	"context"
	"fmt"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/descriptor"
)

// Indexes returns the stored indices of a table ordered by name. Column
// order within an index is not recorded; columns come back sorted.
func (c *Catalog) Indexes(ctx context.Context, ex adapter.Executor, table string) ([]descriptor.Index, error) {
	rows, err := c.query(ctx, ex, "list indexes",
		"SELECT INDEX_NAME, COLUMN_NAME FROM "+IndexTable+
			" WHERE OWNER_TABLE = ? ORDER BY INDEX_NAME, COLUMN_NAME", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []descriptor.Index
	for rows.Next() {
		var name, column string
		if err := rows.Scan(&name, &column); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		if n := len(out); n > 0 && out[n-1].Name == name {
			out[n-1].Columns = append(out[n-1].Columns, column)
			continue
		}
		out = append(out, descriptor.Index{Name: name, Table: table, Columns: []string{column}})
	}
	if err := rows.Err(); err != nil {
		return nil, adapter.WrapError(c.dialect.ID(), "list indexes", err)
	}
	return out, nil
}

// AddIndex records an index with its columns.
func (c *Catalog) AddIndex(ctx context.Context, ex adapter.Executor, idx descriptor.Index) error {
	for _, column := range idx.Columns {
		if _, err := c.exec(ctx, ex, "add index entry",
			"INSERT INTO "+IndexTable+" (OWNER_TABLE, INDEX_NAME, COLUMN_NAME) VALUES (?, ?, ?)",
			idx.Table, idx.Name, column); err != nil {
			return err
		}
	}
	return nil
}

// DropIndex forgets an index.
func (c *Catalog) DropIndex(ctx context.Context, ex adapter.Executor, table, name string) error {
	_, err := c.exec(ctx, ex, "drop index entry",
		"DELETE FROM "+IndexTable+" WHERE OWNER_TABLE = ? AND INDEX_NAME = ?", table, name)
	return err
}
