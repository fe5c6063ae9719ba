package oracle

import (
	"fmt"
	"strconv"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/dbcapabilities"
	"github.com/redbco/redb-persist/pkg/shape"
)

var reserved = []string{
	"ACCESS", "ADD", "AUDIT", "CLUSTER", "COMPRESS", "CONNECT", "EXCLUSIVE", "FILE",
	"IDENTIFIED", "IMMEDIATE", "INCREMENT", "INITIAL", "INTERSECT", "LEVEL", "LOCK",
	"LONG", "MAXEXTENTS", "MINUS", "MLSLABEL", "MODE", "MODIFY", "NOAUDIT",
	"NOCOMPRESS", "NOWAIT", "NUMBER", "OFFLINE", "ONLINE", "OPTION", "PCTFREE",
	"PRIOR", "PRIVILEGES", "PUBLIC", "RAW", "RENAME", "RESOURCE", "ROWID", "ROWNUM",
	"SESSION", "SHARE", "SIZE", "START", "SUCCESSFUL", "SYNONYM", "SYSDATE", "UID",
	"VALIDATE", "VARCHAR2", "WHENEVER",
}

// Dialect implements adapter.Dialect for Oracle Database. Paging uses the
// ROW_NUMBER fallback and ids come from an allocator.
type Dialect struct {
	adapter.Base
}

// New creates the Oracle dialect.
func New() *Dialect {
	return &Dialect{Base: adapter.NewBase(dbcapabilities.Oracle, adapter.Features{
		NativePaging:    false,
		IDMode:          adapter.IDSequence,
		RenameColumn:    true,
		AlterColumnType: true,
		DropColumn:      true,
		Clob:            true,
		Blob:            true,
		MaxInValues:     1000,
		MaxNameLength:   30,
		CommitAfterDDL:  true,
		BoolAsInt:       true,
	}, reserved...)}
}

func (d *Dialect) Placeholder(n int) string { return ":" + strconv.Itoa(n) }

func (d *Dialect) ColumnType(kind shape.Kind, maxLength int, large bool) string {
	switch kind {
	case shape.Bool:
		return "NUMBER(1)"
	case shape.Int8:
		return "NUMBER(3)"
	case shape.Int16:
		return "NUMBER(5)"
	case shape.Int32:
		return "NUMBER(10)"
	case shape.Int64, shape.Reference, shape.Array:
		return "NUMBER(19)"
	case shape.Float32:
		return "BINARY_FLOAT"
	case shape.Float64:
		return "BINARY_DOUBLE"
	case shape.String, shape.Enum:
		if large {
			return "CLOB"
		}
		if maxLength <= 0 {
			maxLength = adapter.DefaultVarcharLength
		}
		return "VARCHAR2(" + strconv.Itoa(maxLength) + " CHAR)"
	case shape.Time:
		return "TIMESTAMP(9)"
	case shape.Bytes:
		if large || maxLength > 2000 {
			return "BLOB"
		}
		if maxLength <= 0 {
			maxLength = 2000
		}
		return "RAW(" + strconv.Itoa(maxLength) + ")"
	}
	return d.Base.ColumnType(kind, maxLength, large)
}

func (d *Dialect) IDColumn(bool) string { return "NUMBER(19) PRIMARY KEY" }

func (d *Dialect) AddColumn(table string, column adapter.ColumnDef) string {
	return "ALTER TABLE " + table + " ADD (" + column.Name + " " + column.Type + ")"
}

func (d *Dialect) AlterColumnType(table string, column adapter.ColumnDef) string {
	return "ALTER TABLE " + table + " MODIFY (" + column.Name + " " + column.Type + ")"
}

func (d *Dialect) CastDouble(expr string) string {
	return "CAST(" + expr + " AS BINARY_DOUBLE)"
}

// DSN builds a godror logfmt connection string.
func (d *Dialect) DSN(details *dbcapabilities.ConnectionDetails) (string, error) {
	if details.Host == "" {
		return "", adapter.NewConfigurationError(d.ID(), "host", "host is required")
	}
	if details.DatabaseName == "" {
		return "", adapter.NewConfigurationError(d.ID(), "database", "service name is required")
	}

	connect := fmt.Sprintf("%s/%s", details.Address(), details.DatabaseName)
	return fmt.Sprintf("user=%q password=%q connectString=%q", details.Username, details.Password, connect), nil
}
