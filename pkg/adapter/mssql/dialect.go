package mssql

import (
	"net/url"
	"strconv"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/dbcapabilities"
	"github.com/redbco/redb-persist/pkg/shape"
)

var reserved = []string{
	"BACKUP", "BREAK", "BROWSE", "BULK", "CHECKPOINT", "CLUSTERED", "COMPUTE",
	"CONTAINS", "DATABASE", "DBCC", "DENY", "DISK", "DUMP", "ERRLVL", "EXEC",
	"EXECUTE", "EXIT", "FILE", "FILLFACTOR", "FREETEXT", "GOTO", "HOLDLOCK",
	"IDENTITY", "KILL", "LINENO", "LOAD", "MERGE", "NOCHECK", "NONCLUSTERED",
	"OPEN", "OVER", "PERCENT", "PIVOT", "PLAN", "PRINT", "PROC", "RAISERROR",
	"READ", "RECONFIGURE", "REPLICATION", "RESTORE", "REVERT", "ROWCOUNT", "RULE",
	"SAVE", "SCHEMA", "SHUTDOWN", "STATISTICS", "TOP", "TRAN", "TRUNCATE",
	"TSEQUAL", "UNPIVOT", "USE", "WAITFOR", "WHILE", "WRITETEXT",
}

// Dialect implements adapter.Dialect for Microsoft SQL Server.
type Dialect struct {
	adapter.Base
}

// New creates the SQL Server dialect.
func New() *Dialect {
	return &Dialect{Base: adapter.NewBase(dbcapabilities.SQLServer, adapter.Features{
		NativePaging:    true,
		Paging:          adapter.OffsetFetch,
		IDMode:          adapter.IDOutput,
		RenameColumn:    true,
		AlterColumnType: true,
		DropColumn:      true,
		Clob:            true,
		Blob:            true,
		MaxInValues:     2000,
		MaxNameLength:   128,
		CastAverage:     true,
	}, reserved...)}
}

func (d *Dialect) Placeholder(n int) string { return "@p" + strconv.Itoa(n) }

func (d *Dialect) ColumnType(kind shape.Kind, maxLength int, large bool) string {
	switch kind {
	case shape.Bool:
		return "BIT"
	case shape.Int32:
		return "INT"
	case shape.Float64:
		return "FLOAT"
	case shape.String, shape.Enum:
		if large {
			return "NVARCHAR(MAX)"
		}
		if maxLength <= 0 {
			maxLength = adapter.DefaultVarcharLength
		}
		return "NVARCHAR(" + strconv.Itoa(maxLength) + ")"
	case shape.Time:
		return "DATETIME2(7)"
	case shape.Bytes:
		if large {
			return "VARBINARY(MAX)"
		}
	}
	return d.Base.ColumnType(kind, maxLength, large)
}

func (d *Dialect) IDColumn(generated bool) string {
	if generated {
		return "BIGINT IDENTITY(1,1) PRIMARY KEY"
	}
	return "BIGINT PRIMARY KEY"
}

func (d *Dialect) AddColumn(table string, column adapter.ColumnDef) string {
	return "ALTER TABLE " + table + " ADD " + column.Name + " " + column.Type
}

func (d *Dialect) RenameColumn(table, from, to string) string {
	return "EXEC sp_rename '" + table + "." + from + "', '" + to + "', 'COLUMN'"
}

func (d *Dialect) AlterColumnType(table string, column adapter.ColumnDef) string {
	return "ALTER TABLE " + table + " ALTER COLUMN " + column.Name + " " + column.Type
}

func (d *Dialect) DropIndex(name, table string) string {
	return "DROP INDEX " + name + " ON " + table
}

func (d *Dialect) CastDouble(expr string) string {
	return "CAST(" + expr + " AS FLOAT)"
}

// DSN builds a sqlserver:// URL for go-mssqldb.
func (d *Dialect) DSN(details *dbcapabilities.ConnectionDetails) (string, error) {
	if details.Host == "" {
		return "", adapter.NewConfigurationError(d.ID(), "host", "host is required")
	}

	q := url.Values{}
	for k, v := range details.Parameters {
		q.Set(k, v)
	}
	if details.DatabaseName != "" {
		q.Set("database", details.DatabaseName)
	}
	switch {
	case details.SSL && details.SSLMode == "prefer":
		q.Set("encrypt", "true")
		q.Set("trustservercertificate", "true")
	case details.SSL:
		q.Set("encrypt", "true")
		q.Set("trustservercertificate", "false")
	default:
		q.Set("encrypt", "disable")
	}

	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(details.Username, details.Password),
		Host:     details.Address(),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}
