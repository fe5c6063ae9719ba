package statement

import (
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/clause"
	"github.com/redbco/redb-persist/pkg/dbcapabilities"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/inheritance"
	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/shape"
)

type fixedIDs map[*object.Object]int64

func (f fixedIDs) ID(o *object.Object) (int64, bool) {
	id, ok := f[o]
	return id, ok
}

type dollarDialect struct {
	adapter.Base
}

func (dollarDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func newGenerator(t *testing.T, d adapter.Dialect, ids Resolver) *Generator {
	t.Helper()
	reg := shape.NewRegistry()
	require.NoError(t, reg.Register(
		shape.InterfaceOf("Named", nil, shape.Property("name", shape.Of(shape.String))),
		shape.InterfaceOf("Marker", nil),
		shape.Class("Shape", "", shape.Property("color", shape.Of(shape.String))).Implements("Marker"),
		shape.Class("Circle", "Shape",
			shape.Property("radius", shape.Of(shape.Float64)),
			shape.Property("owner", shape.Ref("Person")),
			shape.Property("tags", shape.ArrayOf(shape.Of(shape.String))),
		).Implements("Named"),
		shape.Class("Person", "", shape.Property("age", shape.Of(shape.Int32))),
		shape.Class("Employee", "Person", shape.Property("salary", shape.Of(shape.Int64))),
	))
	if ids == nil {
		ids = fixedIDs{}
	}
	return New(d, inheritance.NewCache(descriptor.NewCache(reg, d)), ids)
}

func sqliteLike(f adapter.Features) adapter.Dialect {
	return adapter.NewBase(dbcapabilities.SQLite, f)
}

func TestGenerator_IDs(t *testing.T) {
	g := newGenerator(t, sqliteLike(adapter.Features{NativePaging: true}), nil)

	tests := []struct {
		name      string
		selection string
		clauses   []clause.Clause
		sql       string
		args      []any
	}{
		{
			name:      "joins main path",
			selection: "Circle",
			clauses:   []clause.Clause{clause.Equal("radius", 2.0)},
			sql: "SELECT T0.C__ID FROM CIRCLE T0" +
				" INNER JOIN SHAPE T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = ?" +
				" INNER JOIN C__OBJECT T2 ON T1.C__ID = T2.C__REAL_ID AND T2.C__REAL_CLASS = ?" +
				" WHERE T0.RADIUS = ?",
			args: []any{"Circle", "Shape", 2.0},
		},
		{
			name:      "interface",
			selection: "Named",
			clauses:   []clause.Clause{clause.Like("name", "A%")},
			sql:       "SELECT T0.C__ID FROM NAMED T0 WHERE T0.NAME LIKE ?",
			args:      []any{"A%"},
		},
		{
			name:      "or and not",
			selection: "Person",
			clauses:   []clause.Clause{clause.Or(clause.Equal("age", int32(1)), clause.Not(clause.IsNull("age")))},
			sql: "SELECT T0.C__ID FROM PERSON T0" +
				" INNER JOIN C__OBJECT T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = ?" +
				" WHERE (T0.AGE = ? OR NOT (T0.AGE IS NULL))",
			args: []any{"Person", int64(1)},
		},
		{
			name:      "in list",
			selection: "Person",
			clauses:   []clause.Clause{clause.In("age", int32(1), int32(2))},
			sql: "SELECT T0.C__ID FROM PERSON T0" +
				" INNER JOIN C__OBJECT T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = ?" +
				" WHERE T0.AGE IN (?, ?)",
			args: []any{"Person", int64(1), int64(2)},
		},
		{
			name:      "empty in list",
			selection: "Person",
			clauses:   []clause.Clause{clause.In("age")},
			sql: "SELECT T0.C__ID FROM PERSON T0" +
				" INNER JOIN C__OBJECT T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = ?" +
				" WHERE 1 = 0",
			args: []any{"Person"},
		},
		{
			name:      "default order when paging",
			selection: "Shape",
			clauses:   []clause.Clause{clause.Limit(10), clause.Offset(5)},
			sql: "SELECT T0.C__ID FROM SHAPE T0" +
				" INNER JOIN C__OBJECT T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = ?" +
				" ORDER BY T0.C__ID ASC LIMIT 10 OFFSET 5",
			args: []any{"Shape"},
		},
		{
			name:      "explicit order",
			selection: "Person",
			clauses:   []clause.Clause{clause.Desc("age"), clause.Limit(3)},
			sql: "SELECT T0.C__ID FROM PERSON T0" +
				" INNER JOIN C__OBJECT T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = ?" +
				" ORDER BY T0.AGE DESC LIMIT 3",
			args: []any{"Person"},
		},
		{
			name:      "example narrows to subtype",
			selection: "Shape",
			clauses:   []clause.Clause{clause.ByExample(object.New("Circle").Set("radius", 1.5))},
			sql: "SELECT T0.C__ID FROM SHAPE T0" +
				" INNER JOIN CIRCLE T1 ON T1.C__ID = T0.C__REAL_ID AND T0.C__REAL_CLASS = ?" +
				" INNER JOIN C__OBJECT T2 ON T0.C__ID = T2.C__REAL_ID AND T2.C__REAL_CLASS = ?" +
				" WHERE (T1.RADIUS = ?)",
			args: []any{"Circle", "Shape", 1.5},
		},
		{
			name:      "empty example of subtype does not narrow",
			selection: "Shape",
			clauses:   []clause.Clause{clause.ByExample(object.New("Circle"))},
			sql: "SELECT T0.C__ID FROM SHAPE T0" +
				" INNER JOIN C__OBJECT T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = ?" +
				" WHERE 1 = 1",
			args: []any{"Shape"},
		},
		{
			name:      "subquery with fresh aliases",
			selection: "Circle",
			clauses:   []clause.Clause{clause.Sub("owner", "Employee", clause.Greater("salary", int64(10)))},
			sql: "SELECT T0.C__ID FROM CIRCLE T0" +
				" INNER JOIN SHAPE T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = ?" +
				" INNER JOIN C__OBJECT T2 ON T1.C__ID = T2.C__REAL_ID AND T2.C__REAL_CLASS = ?" +
				" WHERE T0.OWNER IN (SELECT T3.C__ID FROM PERSON T3" +
				" INNER JOIN EMPLOYEE T4 ON T4.C__ID = T3.C__REAL_ID AND T3.C__REAL_CLASS = ?" +
				" INNER JOIN C__OBJECT T5 ON T3.C__ID = T5.C__REAL_ID AND T5.C__REAL_CLASS = ?" +
				" WHERE T4.SALARY > ?)",
			args: []any{"Circle", "Shape", "Employee", "Person", int64(10)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := g.IDs(tt.selection, tt.clauses, false)
			require.NoError(t, err)
			assert.Equal(t, tt.sql, st.SQL)
			assert.Equal(t, tt.args, st.Args)
		})
	}
}

func TestGenerator_IdentityComparison(t *testing.T) {
	person := object.New("Person")
	employee := object.New("Employee")
	unsaved := object.New("Person")
	g := newGenerator(t, sqliteLike(adapter.Features{NativePaging: true}), fixedIDs{person: 3, employee: 7})

	const prefix = "SELECT T0.C__ID FROM CIRCLE T0" +
		" INNER JOIN SHAPE T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = ?" +
		" INNER JOIN C__OBJECT T2 ON T1.C__ID = T2.C__REAL_ID AND T2.C__REAL_CLASS = ?"

	st, err := g.IDs("Circle", []clause.Clause{clause.Equal("owner", person)}, false)
	require.NoError(t, err)
	assert.Equal(t, prefix+" WHERE T0.OWNER = ?", st.SQL)
	assert.Equal(t, []any{"Circle", "Shape", int64(3)}, st.Args)

	st, err = g.IDs("Circle", []clause.Clause{clause.Equal("owner", employee)}, false)
	require.NoError(t, err)
	assert.Equal(t, prefix+" WHERE T0.OWNER IN (SELECT T3.C__ID FROM PERSON T3"+
		" INNER JOIN EMPLOYEE T4 ON T4.C__ID = T3.C__REAL_ID AND T3.C__REAL_CLASS = ?"+
		" INNER JOIN C__OBJECT T5 ON T3.C__ID = T5.C__REAL_ID AND T5.C__REAL_CLASS = ?"+
		" WHERE T4.C__ID = ?)", st.SQL)
	assert.Equal(t, []any{"Circle", "Shape", "Employee", "Person", int64(7)}, st.Args)

	st, err = g.IDs("Circle", []clause.Clause{clause.Equal("owner", unsaved)}, false)
	require.NoError(t, err)
	assert.Equal(t, prefix+" WHERE 1 = 0", st.SQL)

	st, err = g.IDs("Circle", []clause.Clause{clause.NotEqual("owner", unsaved)}, false)
	require.NoError(t, err)
	assert.Equal(t, prefix+" WHERE T0.OWNER IS NOT NULL", st.SQL)

	_, err = g.IDs("Circle", []clause.Clause{clause.Less("owner", person)}, false)
	assert.True(t, errors.Is(err, ErrInvalidClause))

	_, err = g.IDs("Circle", []clause.Clause{clause.Equal("owner", "bob")}, false)
	assert.True(t, errors.Is(err, ErrInvalidClause))
}

func TestGenerator_NestedExample(t *testing.T) {
	g := newGenerator(t, sqliteLike(adapter.Features{NativePaging: true}), nil)

	owner := object.New("Person").Set("age", int32(40))
	proto := object.New("Circle").Set("owner", owner)

	st, err := g.IDs("Circle", []clause.Clause{clause.ByExample(proto)}, false)
	require.NoError(t, err)
	assert.Contains(t, st.SQL, "WHERE (T0.OWNER IN (SELECT T3.C__ID FROM PERSON T3")
	assert.Contains(t, st.SQL, "WHERE (T3.AGE = ?))")
	assert.Equal(t, int64(40), st.Args[len(st.Args)-1])

	// an empty prototype matches everything
	st, err = g.IDs("Circle", []clause.Clause{clause.ByExample(proto), clause.ByExample(object.New("Circle"))}, false)
	require.NoError(t, err)
	assert.Contains(t, st.SQL, " AND 1 = 1)")
}

func TestGenerator_Paging(t *testing.T) {
	t.Run("row number fallback", func(t *testing.T) {
		g := newGenerator(t, sqliteLike(adapter.Features{}), nil)
		st, err := g.IDs("Shape", []clause.Clause{clause.Limit(10), clause.Offset(5)}, false)
		require.NoError(t, err)
		assert.Equal(t, "SELECT C__ID FROM (SELECT T0.C__ID AS C__ID, ROW_NUMBER() OVER (ORDER BY T0.C__ID ASC) AS C__RN"+
			" FROM SHAPE T0 INNER JOIN C__OBJECT T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = ?)"+
			" C__PAGE WHERE C__RN > 5 AND C__RN <= 15 ORDER BY C__RN", st.SQL)
		assert.Equal(t, []any{"Shape"}, st.Args)
	})

	t.Run("distinct", func(t *testing.T) {
		g := newGenerator(t, sqliteLike(adapter.Features{NativePaging: true, DistinctWithLOB: true}), nil)
		st, err := g.IDs("Named", nil, true)
		require.NoError(t, err)
		assert.Equal(t, "SELECT DISTINCT T0.C__ID FROM NAMED T0", st.SQL)

		st, err = g.IDs("Person", []clause.Clause{clause.Asc("age")}, true)
		require.NoError(t, err)
		assert.NotContains(t, st.SQL, "DISTINCT")
	})

	t.Run("rebind", func(t *testing.T) {
		d := dollarDialect{adapter.NewBase(dbcapabilities.PostgreSQL, adapter.Features{NativePaging: true})}
		g := newGenerator(t, d, nil)
		st, err := g.IDs("Person", []clause.Clause{clause.Equal("age", int32(3))}, false)
		require.NoError(t, err)
		assert.Equal(t, "SELECT T0.C__ID FROM PERSON T0"+
			" INNER JOIN C__OBJECT T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = $1"+
			" WHERE T0.AGE = $2", st.SQL)
	})
}

func TestGenerator_Aggregates(t *testing.T) {
	g := newGenerator(t, sqliteLike(adapter.Features{NativePaging: true, CastAverage: true}), nil)

	st, err := g.Aggregates("Person", []clause.Clause{clause.Greater("age", int32(1)), clause.Limit(1)}, []Aggregate{
		{Func: Sum, Field: "age"},
		{Func: Avg, Field: "age"},
		{Func: Count},
		{Func: Count, Field: "age"},
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT SUM(T0.AGE), AVG(CAST(T0.AGE AS DOUBLE PRECISION)), COUNT(DISTINCT T0.C__ID), COUNT(T0.AGE)"+
		" FROM PERSON T0 INNER JOIN C__OBJECT T1 ON T0.C__ID = T1.C__REAL_ID AND T1.C__REAL_CLASS = ?"+
		" WHERE T0.AGE > ?", st.SQL)
	assert.Equal(t, []any{"Person", int64(1)}, st.Args)

	st, err = g.Count("Named", nil)
	require.NoError(t, err)
	assert.Equal(t, "SELECT COUNT(DISTINCT T0.C__ID) FROM NAMED T0", st.SQL)

	tests := []struct {
		name string
		aggs []Aggregate
		err  error
	}{
		{"none", nil, ErrInvalidClause},
		{"sum of string", []Aggregate{{Func: Sum, Field: "color"}}, ErrInvalidClause},
		{"sum without field", []Aggregate{{Func: Sum}}, ErrInvalidClause},
		{"unknown function", []Aggregate{{Func: "MEDIAN", Field: "radius"}}, ErrInvalidClause},
		{"unknown property", []Aggregate{{Func: Max, Field: "weight"}}, ErrUnknownProperty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Aggregates("Circle", nil, tt.aggs)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}
}

func TestGenerator_Errors(t *testing.T) {
	g := newGenerator(t, sqliteLike(adapter.Features{NativePaging: true}), nil)

	tests := []struct {
		name    string
		clauses []clause.Clause
		err     error
	}{
		{"unknown property", []clause.Clause{clause.Equal("weight", 1)}, ErrUnknownProperty},
		{"unrelated example", []clause.Clause{clause.ByExample(object.New("Person"))}, ErrIncompatibleType},
		{"unrelated subquery", []clause.Clause{clause.Sub("owner", "Shape")}, ErrIncompatibleType},
		{"subquery on array", []clause.Clause{clause.Sub("tags", "Person")}, ErrInvalidClause},
		{"nested order", []clause.Clause{clause.And(clause.Asc("radius"))}, ErrInvalidClause},
		{"bad value", []clause.Clause{clause.Equal("radius", "wide")}, adapter.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.IDs("Circle", tt.clauses, false)
			assert.True(t, errors.Is(err, tt.err), "got %v", err)
		})
	}
}

func TestGenerator_Rows(t *testing.T) {
	g := newGenerator(t, sqliteLike(adapter.Features{MaxInValues: 2}), nil)

	got := g.Rows("PERSON", []string{"AGE"}, descriptor.ColumnID, "", []int64{1, 2, 3})
	require.Len(t, got, 2)
	assert.Equal(t, "SELECT C__ID, C__REAL_CLASS, C__REAL_ID, AGE FROM PERSON WHERE C__ID IN (?, ?)", got[0].SQL)
	assert.Equal(t, []any{int64(1), int64(2)}, got[0].Args)
	assert.Equal(t, "SELECT C__ID, C__REAL_CLASS, C__REAL_ID, AGE FROM PERSON WHERE C__ID IN (?)", got[1].SQL)

	got = g.Rows("C__OBJECT", nil, descriptor.ColumnRealID, "Person", []int64{9})
	require.Len(t, got, 1)
	assert.Equal(t, "SELECT C__ID, C__REAL_CLASS, C__REAL_ID FROM C__OBJECT WHERE C__REAL_CLASS = ? AND C__REAL_ID IN (?)", got[0].SQL)
	assert.Equal(t, []any{"Person", int64(9)}, got[0].Args)

	assert.Empty(t, g.Rows("PERSON", nil, descriptor.ColumnID, "", nil))

	assert.Equal(t, "UPDATE PERSON SET AGE = ?, C__REAL_CLASS = ? WHERE C__ID = ?", g.Update("PERSON", []string{"AGE", "C__REAL_CLASS"}))
	assert.Equal(t, "DELETE FROM PERSON WHERE C__ID = ?", g.Delete("PERSON"))
	assert.Equal(t, "INSERT INTO PERSON (C__REAL_CLASS, C__REAL_ID) VALUES (?, ?)", g.Insert("PERSON", []string{"C__REAL_CLASS", "C__REAL_ID"}, true))

	members := g.Members("C__ARRAY_MEMBER_INT32", []int64{4, 5, 6})
	require.Len(t, members, 2)
	assert.Equal(t, "SELECT C__ARRAY_ID, C__POSITION, C__VALUE, C__CLASS FROM C__ARRAY_MEMBER_INT32 "+
		"WHERE C__ARRAY_ID IN (?, ?) ORDER BY C__ARRAY_ID, C__POSITION", members[0].SQL)
	assert.Equal(t, []any{int64(6)}, members[1].Args)
	assert.Equal(t, "DELETE FROM C__ARRAY_MEMBER_INT32 WHERE C__ARRAY_ID = ?", g.DeleteMembers("C__ARRAY_MEMBER_INT32"))
}

func TestRelation(t *testing.T) {
	sql, args := Columns(Column{Alias: "T0", Name: "C__ID"}, Column{Alias: "T1", Name: "C__REAL_ID"}).Render()
	assert.Equal(t, "T0.C__ID = T1.C__REAL_ID", sql)
	assert.Empty(t, args)

	sql, args = Literal(Column{Name: "C__REAL_CLASS"}, "Point").Render()
	assert.Equal(t, "C__REAL_CLASS = ?", sql)
	assert.Equal(t, []any{"Point"}, args)
}
