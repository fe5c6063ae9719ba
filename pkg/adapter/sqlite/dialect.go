package sqlite

import (
	"net/url"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/dbcapabilities"
	"github.com/redbco/redb-persist/pkg/shape"
)

var reserved = []string{
	"ABORT", "ATTACH", "AUTOINCREMENT", "DETACH", "EXCLUSIVE", "GLOB", "IF",
	"IGNORE", "ISNULL", "NOTNULL", "PRAGMA", "RAISE", "REGEXP", "REINDEX",
	"RENAME", "REPLACE", "VACUUM",
}

// Dialect implements adapter.Dialect for SQLite through modernc.org/sqlite.
// Booleans are stored as integers and times as RFC 3339 text.
type Dialect struct {
	adapter.Base
}

// New creates the SQLite dialect.
func New() *Dialect {
	return &Dialect{Base: adapter.NewBase(dbcapabilities.SQLite, adapter.Features{
		NativePaging:    true,
		Paging:          adapter.LimitOffset,
		UnboundedLimit:  "-1",
		IDMode:          adapter.IDLastInsert,
		RenameColumn:    true,
		AlterColumnType: false,
		DropColumn:      true,
		Clob:            true,
		Blob:            true,
		DistinctWithLOB: true,
		MaxInValues:     500,
		BoolAsInt:       true,
		TimeAsText:      true,
	}, reserved...)}
}

func (d *Dialect) ColumnType(kind shape.Kind, _ int, _ bool) string {
	switch kind {
	case shape.Float32, shape.Float64:
		return "REAL"
	case shape.String, shape.Enum, shape.Time:
		return "TEXT"
	case shape.Bytes:
		return "BLOB"
	case shape.Invalid:
		return ""
	}
	return "INTEGER"
}

func (d *Dialect) IDColumn(generated bool) string {
	if generated {
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return "INTEGER PRIMARY KEY"
}

func (d *Dialect) AlterColumnType(string, adapter.ColumnDef) string { return "" }

func (d *Dialect) CastDouble(expr string) string {
	return "CAST(" + expr + " AS REAL)"
}

// DSN returns the database file path with its connection parameters.
func (d *Dialect) DSN(details *dbcapabilities.ConnectionDetails) (string, error) {
	if details.Path == "" {
		return "", adapter.NewConfigurationError(d.ID(), "path", "path is required")
	}
	if len(details.Parameters) == 0 {
		return details.Path, nil
	}

	q := url.Values{}
	for k, v := range details.Parameters {
		q.Set(k, v)
	}
	return details.Path + "?" + q.Encode(), nil
}
