package adapter

import (
	"context"
	"database/sql"
	"strings"

	"github.com/redbco/redb-persist/pkg/dbcapabilities"
	"github.com/redbco/redb-persist/pkg/shape"
)

// IDMode describes how the id of a freshly inserted row is obtained.
type IDMode int

const (
	// IDLastInsert reads sql.Result.LastInsertId.
	IDLastInsert IDMode = iota
	// IDReturning appends RETURNING C__ID and scans the result row.
	IDReturning
	// IDOutput uses OUTPUT INSERTED.C__ID between the column list and VALUES.
	IDOutput
	// IDSequence allocates ids before the insert and writes C__ID explicitly.
	IDSequence
)

// PagingStyle is the native LIMIT/OFFSET syntax of an engine.
type PagingStyle int

const (
	// LimitOffset renders "LIMIT n OFFSET m" after ORDER BY.
	LimitOffset PagingStyle = iota
	// OffsetFetch renders "OFFSET m ROWS FETCH NEXT n ROWS ONLY" and needs ORDER BY.
	OffsetFetch
)

// Features are the statement-level capability flags of a dialect.
type Features struct {
	// NativePaging is false when the generator must fall back to ROW_NUMBER.
	NativePaging bool
	Paging       PagingStyle

	// UnboundedLimit is the LIMIT value used when only an offset is given.
	// Empty means the engine accepts a bare OFFSET.
	UnboundedLimit string

	IDMode IDMode

	RenameColumn    bool
	AlterColumnType bool
	DropColumn      bool

	Clob bool
	Blob bool

	// DistinctWithLOB is true when SELECT DISTINCT is known to behave on
	// rows that carry large-object columns.
	DistinctWithLOB bool

	// MaxInValues bounds the number of values in one IN list.
	MaxInValues int

	// MaxNameLength bounds identifier length. Zero means unbounded.
	MaxNameLength int

	// CommitAfterDDL is true when DDL statements commit implicitly.
	CommitAfterDDL bool

	// CastAverage wraps AVG arguments in a floating point cast.
	CastAverage bool

	// Quirks normalized by Encode and Decode.
	BoolAsInt  bool
	TimeAsText bool
}

// ColumnDef is a column name with its rendered type.
type ColumnDef struct {
	Name string
	Type string
}

// Dialect is the per-engine capability interface. Statements are rendered
// with '?' placeholders and rebound through Placeholder before execution.
type Dialect interface {
	ID() dbcapabilities.DatabaseID
	DriverName() string
	DSN(details *dbcapabilities.ConnectionDetails) (string, error)
	Features() Features

	Placeholder(n int) string
	MaxNameLength() int
	IsReserved(word string) bool
	SupportsClob() bool
	SupportsBlob() bool

	// ColumnType returns the type keyword for a semantic kind. Reference and
	// array kinds map to the id column type.
	ColumnType(kind shape.Kind, maxLength int, large bool) string
	// IDColumn returns the C__ID column type, generated by the engine or
	// written explicitly by an allocator.
	IDColumn(generated bool) string

	CreateTable(table string, columns []ColumnDef) string
	AddColumn(table string, column ColumnDef) string
	DropColumn(table, column string) string
	RenameColumn(table, from, to string) string
	AlterColumnType(table string, column ColumnDef) string
	CreateIndex(name, table string, columns []string) string
	DropIndex(name, table string) string

	// Insert renders an insert. When returning is set the statement yields
	// the generated id according to Features().IDMode.
	Insert(table string, columns []string, returning bool) string
	// Paginate renders the native paging suffix. A negative limit means none.
	Paginate(limit, offset int64) string
	// RowNumberPaginate wraps a query with the ROW_NUMBER fallback. columns
	// is the aliased inner select list, names the outer one, body the
	// FROM/WHERE part.
	RowNumberPaginate(columns, names, body, orderBy string, limit, offset int64) string
	// CastDouble widens an expression to a floating point type.
	CastDouble(expr string) string

	// Encode converts a Go value of the given kind into a driver argument.
	Encode(kind shape.Kind, v any) (any, error)
	// Decode normalizes a scanned driver value into the Go value of a kind.
	Decode(kind shape.Kind, v any) (any, error)
}

// Executor is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// TxBeginner is implemented by executors that can open a transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Rebind replaces '?' placeholders with the dialect's placeholder syntax.
// Quoted literals are copied verbatim.
func Rebind(d Dialect, query string) string {
	if d.Placeholder(1) == "?" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	quoted := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			quoted = !quoted
			b.WriteByte(c)
		case c == '?' && !quoted:
			n++
			b.WriteString(d.Placeholder(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
