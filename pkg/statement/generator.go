// Package statement compiles clause trees against inheritance stacks into
// parameterized SQL. Every statement joins one aliased table per selected
// level, T0 being the searched type, and is rendered with '?' placeholders
// rebound through the dialect at the end.
package statement

import (
	"fmt"
	"strings"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/clause"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/inheritance"
	"github.com/redbco/redb-persist/pkg/object"
)

// Statement is a rendered statement with its arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Resolver returns the stored id of an object in its own type's table.
type Resolver interface {
	ID(o *object.Object) (int64, bool)
}

// Func is an aggregate function.
type Func string

const (
	Count Func = "COUNT"
	Sum   Func = "SUM"
	Min   Func = "MIN"
	Max   Func = "MAX"
	Avg   Func = "AVG"
)

// Aggregate is one aggregate over a property. Count with an empty field
// counts objects.
type Aggregate struct {
	Func  Func
	Field string
}

// Generator renders statements for one dialect.
type Generator struct {
	dialect adapter.Dialect
	stacks  *inheritance.Cache
	ids     Resolver
}

// New creates a generator.
func New(d adapter.Dialect, stacks *inheritance.Cache, ids Resolver) *Generator {
	return &Generator{dialect: d, stacks: stacks, ids: ids}
}

// Dialect returns the generator's dialect.
func (g *Generator) Dialect() adapter.Dialect { return g.dialect }

// IDs selects the ids of the selection type's level rows matching clauses,
// ordered and paged as requested. Distinct is honoured only where the
// dialect handles DISTINCT reliably and no explicit order is given; callers
// de-duplicate by id regardless.
func (g *Generator) IDs(selection string, clauses []clause.Clause, distinct bool) (Statement, error) {
	where, orders, limit, offset := clause.Split(clauses)

	extra := make([]string, len(orders))
	for i, o := range orders {
		extra[i] = o.Field
	}

	c := g.compiler()
	sc, err := c.prepare(selection, "", where, extra, false)
	if err != nil {
		return Statement{}, err
	}
	body, err := c.body(sc, where)
	if err != nil {
		return Statement{}, err
	}

	var orderBy []string
	for _, o := range orders {
		col, _, err := sc.column(o.Field)
		if err != nil {
			return Statement{}, err
		}
		dir := " ASC"
		if o.Desc {
			dir = " DESC"
		}
		orderBy = append(orderBy, col.String()+dir)
	}

	id := Column{Alias: sc.alias(sc.join.Nodes()[0]), Name: descriptor.ColumnID}
	paging := limit >= 0 || offset > 0
	if paging && len(orderBy) == 0 {
		orderBy = []string{id.String() + " ASC"}
	}

	f := g.dialect.Features()
	var sql string
	if paging && !f.NativePaging {
		sql = g.dialect.RowNumberPaginate(id.String()+" AS "+descriptor.ColumnID, descriptor.ColumnID,
			strings.TrimPrefix(body, " "), strings.Join(orderBy, ", "), limit, offset)
	} else {
		sql = "SELECT "
		if distinct && f.DistinctWithLOB && len(orders) == 0 {
			sql += "DISTINCT "
		}
		sql += id.String() + body
		if len(orderBy) > 0 {
			sql += " ORDER BY " + strings.Join(orderBy, ", ")
		}
		if paging {
			sql += g.dialect.Paginate(limit, offset)
		}
	}

	return c.statement(sql), nil
}

// Count counts distinct objects matching clauses. Ordering and paging are
// ignored.
func (g *Generator) Count(selection string, clauses []clause.Clause) (Statement, error) {
	return g.Aggregates(selection, clauses, []Aggregate{{Func: Count}})
}

// Aggregates computes aggregates over the objects matching clauses in one
// statement. Ordering and paging are ignored.
func (g *Generator) Aggregates(selection string, clauses []clause.Clause, aggs []Aggregate) (Statement, error) {
	if len(aggs) == 0 {
		return Statement{}, fmt.Errorf("%w: no aggregates", ErrInvalidClause)
	}
	where, _, _, _ := clause.Split(clauses)

	var extra []string
	for _, a := range aggs {
		if a.Field != "" {
			extra = append(extra, a.Field)
		}
	}

	c := g.compiler()
	sc, err := c.prepare(selection, "", where, extra, false)
	if err != nil {
		return Statement{}, err
	}

	id := Column{Alias: sc.alias(sc.join.Nodes()[0]), Name: descriptor.ColumnID}
	cols := make([]string, len(aggs))
	for i, a := range aggs {
		expr, err := g.aggregate(sc, id, a)
		if err != nil {
			return Statement{}, err
		}
		cols[i] = expr
	}

	body, err := c.body(sc, where)
	if err != nil {
		return Statement{}, err
	}
	return c.statement("SELECT " + strings.Join(cols, ", ") + body), nil
}

func (g *Generator) aggregate(sc *scope, id Column, a Aggregate) (string, error) {
	if a.Field == "" {
		if a.Func != Count {
			return "", fmt.Errorf("%w: %s needs a property", ErrInvalidClause, a.Func)
		}
		return "COUNT(DISTINCT " + id.String() + ")", nil
	}

	col, prop, err := sc.column(a.Field)
	if err != nil {
		return "", err
	}
	switch a.Func {
	case Count:
		return "COUNT(" + col.String() + ")", nil
	case Sum, Min, Max, Avg:
		if !prop.Kind().IsNumeric() {
			return "", fmt.Errorf("%w: %s over %s property %s", ErrInvalidClause, a.Func, prop.Kind(), a.Field)
		}
		expr := col.String()
		if a.Func == Avg && prop.Kind().IsInteger() && g.dialect.Features().CastAverage {
			expr = g.dialect.CastDouble(expr)
		}
		return string(a.Func) + "(" + expr + ")", nil
	}
	return "", fmt.Errorf("%w: unknown aggregate %q", ErrInvalidClause, a.Func)
}

// Rows selects the system columns followed by columns of one level table,
// for rows whose key column is in ids. A non-empty tag restricts the rows
// to C__REAL_CLASS = tag. Statements are chunked to the dialect's maximum
// IN-list size.
func (g *Generator) Rows(table string, columns []string, key, tag string, ids []int64) []Statement {
	cols := append([]string{descriptor.ColumnID, descriptor.ColumnRealClass, descriptor.ColumnRealID}, columns...)
	head := "SELECT " + strings.Join(cols, ", ") + " FROM " + table + " WHERE "
	if tag != "" {
		head += descriptor.ColumnRealClass + " = ? AND "
	}

	size := g.dialect.Features().MaxInValues
	if size <= 0 {
		size = len(ids)
	}

	var out []Statement
	for start := 0; start < len(ids); start += size {
		chunk := ids[start:min(start+size, len(ids))]
		args := make([]any, 0, len(chunk)+1)
		if tag != "" {
			args = append(args, tag)
		}
		for _, id := range chunk {
			args = append(args, id)
		}
		sql := head + key + " IN (" + marks(len(chunk)) + ")"
		out = append(out, Statement{SQL: adapter.Rebind(g.dialect, sql), Args: args})
	}
	return out
}

// Members selects the members of arrays, ordered by array and position.
// Statements are chunked like Rows.
func (g *Generator) Members(table string, arrayIDs []int64) []Statement {
	head := "SELECT " + strings.Join([]string{descriptor.ColumnArrayID, descriptor.ColumnPosition,
		descriptor.ColumnValue, descriptor.ColumnClass}, ", ") + " FROM " + table + " WHERE " + descriptor.ColumnArrayID + " IN ("

	size := g.dialect.Features().MaxInValues
	if size <= 0 {
		size = len(arrayIDs)
	}

	var out []Statement
	for start := 0; start < len(arrayIDs); start += size {
		chunk := arrayIDs[start:min(start+size, len(arrayIDs))]
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		sql := head + marks(len(chunk)) + ") ORDER BY " + descriptor.ColumnArrayID + ", " + descriptor.ColumnPosition
		out = append(out, Statement{SQL: adapter.Rebind(g.dialect, sql), Args: args})
	}
	return out
}

// DeleteMembers renders the deletion of every member of one array.
func (g *Generator) DeleteMembers(table string) string {
	return adapter.Rebind(g.dialect, "DELETE FROM "+table+" WHERE "+descriptor.ColumnArrayID+" = ?")
}

// Update renders an update of columns of one row by id.
func (g *Generator) Update(table string, columns []string) string {
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = ?"
	}
	return adapter.Rebind(g.dialect, "UPDATE "+table+" SET "+strings.Join(sets, ", ")+" WHERE "+descriptor.ColumnID+" = ?")
}

// Delete renders the deletion of one row by id.
func (g *Generator) Delete(table string) string {
	return adapter.Rebind(g.dialect, "DELETE FROM "+table+" WHERE "+descriptor.ColumnID+" = ?")
}

// Insert renders an insert through the dialect.
func (g *Generator) Insert(table string, columns []string, returning bool) string {
	return adapter.Rebind(g.dialect, g.dialect.Insert(table, columns, returning))
}

func marks(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
