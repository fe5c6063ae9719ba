package adapter

import (
	"errors"
	"math"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-persist/pkg/dbcapabilities"
	"github.com/redbco/redb-persist/pkg/shape"
)

type dollarDialect struct {
	Base
}

func (dollarDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func TestRebind(t *testing.T) {
	d := dollarDialect{NewBase(dbcapabilities.PostgreSQL, Features{})}

	got := Rebind(d, "SELECT T0.C__ID FROM A T0 WHERE T0.X = ? AND T0.Y = '?' AND T0.Z IN (?, ?)")
	assert.Equal(t, "SELECT T0.C__ID FROM A T0 WHERE T0.X = $1 AND T0.Y = '?' AND T0.Z IN ($2, $3)", got)

	plain := NewBase(dbcapabilities.SQLite, Features{})
	assert.Equal(t, "X = ?", Rebind(plain, "X = ?"))
}

func TestBase_Paginate(t *testing.T) {
	limitOffset := NewBase(dbcapabilities.PostgreSQL, Features{NativePaging: true})
	unbounded := NewBase(dbcapabilities.SQLite, Features{NativePaging: true, UnboundedLimit: "-1"})
	fetch := NewBase(dbcapabilities.SQLServer, Features{NativePaging: true, Paging: OffsetFetch})

	tests := []struct {
		name          string
		base          Base
		limit, offset int64
		expected      string
	}{
		{"none", limitOffset, -1, 0, ""},
		{"limit", limitOffset, 10, 0, " LIMIT 10"},
		{"limit offset", limitOffset, 10, 20, " LIMIT 10 OFFSET 20"},
		{"bare offset", limitOffset, -1, 5, " OFFSET 5"},
		{"offset needs limit", unbounded, -1, 5, " LIMIT -1 OFFSET 5"},
		{"fetch limit", fetch, 10, 0, " OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY"},
		{"fetch offset", fetch, -1, 3, " OFFSET 3 ROWS"},
		{"zero limit", limitOffset, 0, 0, " LIMIT 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.base.Paginate(tt.limit, tt.offset))
		})
	}
}

func TestBase_RowNumberPaginate(t *testing.T) {
	b := NewBase(dbcapabilities.Oracle, Features{})

	got := b.RowNumberPaginate("T0.C__ID AS C__ID", "C__ID", "FROM A T0 WHERE T0.X = ?", "T0.C__ID ASC", 10, 20)
	assert.Equal(t, "SELECT C__ID FROM (SELECT T0.C__ID AS C__ID, ROW_NUMBER() OVER (ORDER BY T0.C__ID ASC) AS C__RN "+
		"FROM A T0 WHERE T0.X = ?) C__PAGE WHERE C__RN > 20 AND C__RN <= 30 ORDER BY C__RN", got)

	got = b.RowNumberPaginate("T0.C__ID AS C__ID", "C__ID", "FROM A T0", "T0.C__ID ASC", -1, 5)
	assert.Contains(t, got, "WHERE C__RN > 5 ORDER BY C__RN")
}

func TestBase_Insert(t *testing.T) {
	cols := []string{"C__REAL_CLASS", "C__REAL_ID", "X"}

	tests := []struct {
		mode     IDMode
		expected string
	}{
		{IDLastInsert, "INSERT INTO P (C__REAL_CLASS, C__REAL_ID, X) VALUES (?, ?, ?)"},
		{IDReturning, "INSERT INTO P (C__REAL_CLASS, C__REAL_ID, X) VALUES (?, ?, ?) RETURNING C__ID"},
		{IDOutput, "INSERT INTO P (C__REAL_CLASS, C__REAL_ID, X) OUTPUT INSERTED.C__ID VALUES (?, ?, ?)"},
		{IDSequence, "INSERT INTO P (C__REAL_CLASS, C__REAL_ID, X) VALUES (?, ?, ?)"},
	}
	for _, tt := range tests {
		b := NewBase(dbcapabilities.PostgreSQL, Features{IDMode: tt.mode})
		assert.Equal(t, tt.expected, b.Insert("P", cols, true))
	}

	b := NewBase(dbcapabilities.PostgreSQL, Features{IDMode: IDReturning})
	assert.Equal(t, "INSERT INTO P (C__ID) VALUES (?)", b.Insert("P", []string{"C__ID"}, false))
}

func TestBase_ColumnType(t *testing.T) {
	lob := NewBase(dbcapabilities.PostgreSQL, Features{Clob: true, Blob: true})
	noLob := NewBase(dbcapabilities.PostgreSQL, Features{})

	assert.Equal(t, "VARCHAR(255)", lob.ColumnType(shape.String, 0, false))
	assert.Equal(t, "VARCHAR(40)", lob.ColumnType(shape.Enum, 40, false))
	assert.Equal(t, "CLOB", lob.ColumnType(shape.String, 0, true))
	assert.Equal(t, "VARCHAR(255)", noLob.ColumnType(shape.String, 0, true))
	assert.Equal(t, "BLOB", lob.ColumnType(shape.Bytes, 0, true))
	assert.Equal(t, "BIGINT", lob.ColumnType(shape.Reference, 0, false))
	assert.Equal(t, "BIGINT", lob.ColumnType(shape.Array, 0, false))
	assert.Equal(t, "SMALLINT", lob.ColumnType(shape.Int8, 0, false))
}

func TestBase_Reserved(t *testing.T) {
	b := NewBase(dbcapabilities.MySQL, Features{}, "rank", "Range")

	assert.True(t, b.IsReserved("select"))
	assert.True(t, b.IsReserved("RANK"))
	assert.True(t, b.IsReserved("range"))
	assert.False(t, b.IsReserved("POINT"))
	assert.Equal(t, 1000, b.Features().MaxInValues)
	assert.Equal(t, "mysql", b.DriverName())
}

func TestEncode(t *testing.T) {
	quirky := Features{BoolAsInt: true, TimeAsText: true}
	ts := time.Date(2024, 3, 1, 12, 30, 0, 500, time.FixedZone("X", 3600))

	v, err := encode(quirky, shape.Bool, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	v, err = encode(Features{}, shape.Bool, false)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = encode(quirky, shape.Time, ts)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T11:30:00.0000005Z", v)

	v, err = encode(Features{}, shape.Int16, int16(7))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	v, err = encode(Features{}, shape.Float32, float32(1.5))
	require.NoError(t, err)
	assert.Equal(t, 1.5, v)

	v, err = encode(Features{}, shape.String, nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = encode(Features{}, shape.Bool, "yes")
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestDecode(t *testing.T) {
	ts := time.Date(2024, 3, 1, 11, 30, 0, 500, time.UTC)

	tests := []struct {
		name     string
		kind     shape.Kind
		in       any
		expected any
	}{
		{"bool from int", shape.Bool, int64(1), true},
		{"bool from text", shape.Bool, []byte("0"), false},
		{"int8 from int64", shape.Int8, int64(-3), int8(-3)},
		{"int16 from text", shape.Int16, "42", int16(42)},
		{"int32 from bytes", shape.Int32, []byte("7"), int32(7)},
		{"int64 from decimal text", shape.Int64, "12.0", int64(12)},
		{"float32 from float64", shape.Float32, float64(2.5), float32(2.5)},
		{"float64 from bytes", shape.Float64, []byte("3.25"), 3.25},
		{"string from bytes", shape.String, []byte("abc"), "abc"},
		{"enum", shape.Enum, "RED", "RED"},
		{"time from text", shape.Time, "2024-03-01T11:30:00.0000005Z", ts},
		{"time from mysql text", shape.Time, []byte("2024-03-01 11:30:00.0000005"), ts},
		{"bytes", shape.Bytes, []byte{1, 2}, []byte{1, 2}},
		{"reference", shape.Reference, int64(9), int64(9)},
		{"null", shape.String, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decode(tt.kind, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	_, err := decode(shape.Int32, "seven")
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestToFloat64(t *testing.T) {
	f, err := ToFloat64(nil)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f))

	f, err = ToFloat64([]byte("1.5"))
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	f, err = ToFloat64(int64(4))
	require.NoError(t, err)
	assert.Equal(t, 4.0, f)
}

func TestWrapError(t *testing.T) {
	cause := errors.New("boom")

	assert.Nil(t, WrapError(dbcapabilities.SQLite, "insert", nil))

	wrapped := WrapError(dbcapabilities.SQLite, "insert", cause)
	var dbErr *DatabaseError
	require.True(t, errors.As(wrapped, &dbErr))
	assert.Equal(t, "insert", dbErr.Operation)
	assert.True(t, errors.Is(wrapped, cause))
	assert.Equal(t, "[sqlite] insert: boom", wrapped.Error())

	again := WrapError(dbcapabilities.PostgreSQL, "select", wrapped)
	assert.Same(t, wrapped, again)

	ctxErr := NewDatabaseError(dbcapabilities.SQLite, "update", cause).WithContext("table", "P")
	assert.Contains(t, ctxErr.Error(), "context: map[table:P]")
}

func TestTypedErrors(t *testing.T) {
	assert.True(t, IsUnsupported(NewUnsupportedOperationError(dbcapabilities.Oracle, "rename", "")))
	assert.True(t, IsConfigurationError(NewConfigurationError(dbcapabilities.MySQL, "host", "required")))
	assert.False(t, IsUnsupported(errors.New("x")))

	_, err := NewBase(dbcapabilities.Redis, Features{}).DSN(nil)
	assert.True(t, IsUnsupported(err))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(dollarDialect{NewBase(dbcapabilities.PostgreSQL, Features{})})
	r.Register(NewBase(dbcapabilities.SQLite, Features{}))

	assert.True(t, r.IsRegistered(dbcapabilities.SQLite))
	assert.False(t, r.IsRegistered(dbcapabilities.MySQL))
	assert.Equal(t, []dbcapabilities.DatabaseID{dbcapabilities.PostgreSQL, dbcapabilities.SQLite}, r.ListRegistered())

	d, err := r.GetByName("postgresql")
	require.NoError(t, err)
	assert.Equal(t, "$2", d.Placeholder(2))

	_, err = r.Get(dbcapabilities.MySQL)
	assert.True(t, errors.Is(err, ErrDialectNotFound))

	_, err = r.GetByName("nosuchdb")
	assert.True(t, errors.Is(err, ErrDialectNotFound))

	_, _, _, err = r.Resolve("sqlite://:memory:")
	assert.True(t, IsUnsupported(err))
}
