package catalog

import (
	"context"
	"fmt"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/shape"
)

// Column is one stored (column, type) pair of a level table.
type Column struct {
	Name  string
	Class string
}

// Type parses the stored property type.
func (c Column) Type() (shape.TypeRef, error) {
	return shape.ParseTypeRef(c.Class)
}

// TableType is a level table with the type name owning it.
type TableType struct {
	Table string
	Type  string
}

// Tables lists all registered level tables ordered by table name.
func (c *Catalog) Tables(ctx context.Context, ex adapter.Executor) ([]TableType, error) {
	rows, err := c.query(ctx, ex, "list tables",
		"SELECT OWNER_TABLE, COLUMN_CLASS FROM "+TypeTable+" WHERE COLUMN_NAME = ? ORDER BY OWNER_TABLE", TypeColumn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TableType
	for rows.Next() {
		var t TableType
		if err := rows.Scan(&t.Table, &t.Type); err != nil {
			return nil, fmt.Errorf("failed to scan table type: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, adapter.WrapError(c.dialect.ID(), "list tables", err)
	}
	return out, nil
}

// TableType returns the type name registered for a table.
func (c *Catalog) TableType(ctx context.Context, ex adapter.Executor, table string) (string, bool, error) {
	names, err := c.strings(ctx, ex, "read table type",
		"SELECT COLUMN_CLASS FROM "+TypeTable+" WHERE OWNER_TABLE = ? AND COLUMN_NAME = ?", table, TypeColumn)
	if err != nil || len(names) == 0 {
		return "", false, err
	}
	return names[0], true, nil
}

// RegisterTable records the type owning a freshly created level table.
func (c *Catalog) RegisterTable(ctx context.Context, ex adapter.Executor, table, typeName string) error {
	return c.AddColumn(ctx, ex, table, Column{Name: TypeColumn, Class: typeName})
}

// DropTable removes every catalog row describing a table.
func (c *Catalog) DropTable(ctx context.Context, ex adapter.Executor, table string) error {
	for _, q := range []struct {
		query string
		args  []any
	}{
		{"DELETE FROM " + TypeTable + " WHERE OWNER_TABLE = ?", []any{table}},
		{"DELETE FROM " + IndexTable + " WHERE OWNER_TABLE = ?", []any{table}},
		{"DELETE FROM " + IsATable + " WHERE SUBCLASS = ? OR SUPERCLASS = ?", []any{table, table}},
	} {
		if _, err := c.exec(ctx, ex, "drop table entry", q.query, q.args...); err != nil {
			return err
		}
	}
	return nil
}

// Columns returns the stored property columns of a table ordered by name.
func (c *Catalog) Columns(ctx context.Context, ex adapter.Executor, table string) ([]Column, error) {
	rows, err := c.query(ctx, ex, "list columns",
		"SELECT COLUMN_NAME, COLUMN_CLASS FROM "+TypeTable+
			" WHERE OWNER_TABLE = ? AND COLUMN_NAME <> ? ORDER BY COLUMN_NAME", table, TypeColumn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Column
	for rows.Next() {
		var col Column
		if err := rows.Scan(&col.Name, &col.Class); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		out = append(out, col)
	}
	if err := rows.Err(); err != nil {
		return nil, adapter.WrapError(c.dialect.ID(), "list columns", err)
	}
	return out, nil
}

// AddColumn records a stored column.
func (c *Catalog) AddColumn(ctx context.Context, ex adapter.Executor, table string, col Column) error {
	_, err := c.exec(ctx, ex, "add column entry",
		"INSERT INTO "+TypeTable+" (OWNER_TABLE, COLUMN_NAME, COLUMN_CLASS) VALUES (?, ?, ?)",
		table, col.Name, col.Class)
	return err
}

// DropColumn forgets a stored column.
func (c *Catalog) DropColumn(ctx context.Context, ex adapter.Executor, table, column string) error {
	_, err := c.exec(ctx, ex, "drop column entry",
		"DELETE FROM "+TypeTable+" WHERE OWNER_TABLE = ? AND COLUMN_NAME = ?", table, column)
	return err
}

// RenameColumn renames a stored column in place.
func (c *Catalog) RenameColumn(ctx context.Context, ex adapter.Executor, table, from, to string) error {
	_, err := c.exec(ctx, ex, "rename column entry",
		"UPDATE "+TypeTable+" SET COLUMN_NAME = ? WHERE OWNER_TABLE = ? AND COLUMN_NAME = ?", to, table, from)
	return err
}

// SetColumnClass updates the stored type of a column.
func (c *Catalog) SetColumnClass(ctx context.Context, ex adapter.Executor, table, column, class string) error {
	_, err := c.exec(ctx, ex, "update column entry",
		"UPDATE "+TypeTable+" SET COLUMN_CLASS = ? WHERE OWNER_TABLE = ? AND COLUMN_NAME = ?", class, table, column)
	return err
}

// Supers returns the parent tables recorded for a table, sorted.
func (c *Catalog) Supers(ctx context.Context, ex adapter.Executor, table string) ([]string, error) {
	return c.strings(ctx, ex, "list superclasses",
		"SELECT SUPERCLASS FROM "+IsATable+" WHERE SUBCLASS = ? ORDER BY SUPERCLASS", table)
}

// Subs returns the child tables recorded for a table, sorted.
func (c *Catalog) Subs(ctx context.Context, ex adapter.Executor, table string) ([]string, error) {
	return c.strings(ctx, ex, "list subclasses",
		"SELECT SUBCLASS FROM "+IsATable+" WHERE SUPERCLASS = ? ORDER BY SUBCLASS", table)
}

// SetSupers replaces the parent tables recorded for a table.
func (c *Catalog) SetSupers(ctx context.Context, ex adapter.Executor, table string, supers []string) error {
	if _, err := c.exec(ctx, ex, "clear superclasses",
		"DELETE FROM "+IsATable+" WHERE SUBCLASS = ?", table); err != nil {
		return err
	}
	for _, super := range supers {
		if _, err := c.exec(ctx, ex, "add superclass",
			"INSERT INTO "+IsATable+" (SUPERCLASS, SUBCLASS) VALUES (?, ?)", super, table); err != nil {
			return err
		}
	}
	return nil
}
