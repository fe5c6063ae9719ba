package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redbco/redb-persist/pkg/adapter"
)

// Row addresses one row of a level table.
type Row struct {
	Table string
	ID    int64
}

// Edge is one ownership edge. An edge with a zero Owner is external: the
// caller pinned the property row directly.
type Edge struct {
	Owner    Row
	Property Row
	Class    string
}

// External reports whether the edge is a caller pin.
func (e Edge) External() bool { return e.Owner.Table == "" }

const edgeColumns = "OWNER_TABLE, OWNER_ID, PROPERTY_TABLE, PROPERTY_ID, PROPERTY_CLASS"

// InsertEdge records an edge.
func (c *Catalog) InsertEdge(ctx context.Context, ex adapter.Executor, e Edge) error {
	var owner, ownerID any
	if !e.External() {
		owner, ownerID = e.Owner.Table, e.Owner.ID
	}
	_, err := c.exec(ctx, ex, "insert edge",
		"INSERT INTO "+HasATable+" ("+edgeColumns+") VALUES (?, ?, ?, ?, ?)",
		owner, ownerID, e.Property.Table, e.Property.ID, e.Class)
	return err
}

// DeleteEdge removes the edges from owner to property and reports how many
// rows were removed. A zero owner removes the external pin.
func (c *Catalog) DeleteEdge(ctx context.Context, ex adapter.Executor, owner, property Row) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if owner.Table == "" {
		res, err = c.exec(ctx, ex, "delete edge",
			"DELETE FROM "+HasATable+" WHERE OWNER_TABLE IS NULL AND PROPERTY_TABLE = ? AND PROPERTY_ID = ?",
			property.Table, property.ID)
	} else {
		res, err = c.exec(ctx, ex, "delete edge",
			"DELETE FROM "+HasATable+" WHERE OWNER_TABLE = ? AND OWNER_ID = ? AND PROPERTY_TABLE = ? AND PROPERTY_ID = ?",
			owner.Table, owner.ID, property.Table, property.ID)
	}
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, adapter.WrapError(c.dialect.ID(), "delete edge", err)
	}
	return n, nil
}

// HasEdge reports whether an edge from owner to property exists.
func (c *Catalog) HasEdge(ctx context.Context, ex adapter.Executor, owner, property Row) (bool, error) {
	var n int64
	var err error
	if owner.Table == "" {
		n, err = c.count(ctx, ex, "SELECT COUNT(*) FROM "+HasATable+
			" WHERE OWNER_TABLE IS NULL AND PROPERTY_TABLE = ? AND PROPERTY_ID = ?",
			property.Table, property.ID)
	} else {
		n, err = c.count(ctx, ex, "SELECT COUNT(*) FROM "+HasATable+
			" WHERE OWNER_TABLE = ? AND OWNER_ID = ? AND PROPERTY_TABLE = ? AND PROPERTY_ID = ?",
			owner.Table, owner.ID, property.Table, property.ID)
	}
	return n > 0, err
}

// CountOwners counts the edges of either kind targeting a row.
func (c *Catalog) CountOwners(ctx context.Context, ex adapter.Executor, property Row) (int64, error) {
	return c.count(ctx, ex, "SELECT COUNT(*) FROM "+HasATable+
		" WHERE PROPERTY_TABLE = ? AND PROPERTY_ID = ?", property.Table, property.ID)
}

// Owned lists the internal edges leaving a row.
func (c *Catalog) Owned(ctx context.Context, ex adapter.Executor, owner Row) ([]Edge, error) {
	return c.edges(ctx, ex, "list owned", "SELECT "+edgeColumns+" FROM "+HasATable+
		" WHERE OWNER_TABLE = ? AND OWNER_ID = ? ORDER BY PROPERTY_TABLE, PROPERTY_ID", owner.Table, owner.ID)
}

// Owners lists the edges of either kind targeting a row.
func (c *Catalog) Owners(ctx context.Context, ex adapter.Executor, property Row) ([]Edge, error) {
	return c.edges(ctx, ex, "list owners", "SELECT "+edgeColumns+" FROM "+HasATable+
		" WHERE PROPERTY_TABLE = ? AND PROPERTY_ID = ? ORDER BY OWNER_TABLE, OWNER_ID", property.Table, property.ID)
}

// Edges lists every edge. Used by copy and inspection tools.
func (c *Catalog) Edges(ctx context.Context, ex adapter.Executor) ([]Edge, error) {
	return c.edges(ctx, ex, "list edges", "SELECT "+edgeColumns+" FROM "+HasATable+
		" ORDER BY PROPERTY_TABLE, PROPERTY_ID, OWNER_TABLE, OWNER_ID")
}

// DeleteEdgesOf removes every edge leaving or targeting a row.
func (c *Catalog) DeleteEdgesOf(ctx context.Context, ex adapter.Executor, r Row) error {
	_, err := c.exec(ctx, ex, "delete edges",
		"DELETE FROM "+HasATable+" WHERE (OWNER_TABLE = ? AND OWNER_ID = ?) OR (PROPERTY_TABLE = ? AND PROPERTY_ID = ?)",
		r.Table, r.ID, r.Table, r.ID)
	return err
}

func (c *Catalog) edges(ctx context.Context, ex adapter.Executor, op, query string, args ...any) ([]Edge, error) {
	rows, err := c.query(ctx, ex, op, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var (
			e       Edge
			owner   sql.NullString
			ownerID sql.NullInt64
		)
		if err := rows.Scan(&owner, &ownerID, &e.Property.Table, &e.Property.ID, &e.Class); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		if owner.Valid {
			e.Owner = Row{Table: owner.String, ID: ownerID.Int64}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, adapter.WrapError(c.dialect.ID(), op, err)
	}
	return out, nil
}

func (c *Catalog) count(ctx context.Context, ex adapter.Executor, query string, args ...any) (int64, error) {
	var n int64
	if err := ex.QueryRowContext(ctx, adapter.Rebind(c.dialect, query), args...).Scan(&n); err != nil {
		return 0, adapter.WrapError(c.dialect.ID(), "count", err)
	}
	return n, nil
}
