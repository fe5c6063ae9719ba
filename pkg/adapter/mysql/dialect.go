package mysql

import (
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/dbcapabilities"
	"github.com/redbco/redb-persist/pkg/shape"
)

var reserved = []string{
	"ACCESSIBLE", "ADD", "ANALYZE", "CHANGE", "CONDITION", "DATABASE", "DATABASES",
	"DIV", "DUAL", "ELSEIF", "EXPLAIN", "FLOAT", "INT", "INTEGER", "KEYS", "KILL",
	"LOAD", "LOCK", "LONG", "MATCH", "MOD", "OPTION", "OUTFILE", "RANGE", "RANK",
	"READ", "REGEXP", "RENAME", "REPLACE", "REQUIRE", "SCHEMA", "SHOW", "SIGNAL",
	"SPATIAL", "TINYINT", "USAGE", "USE", "WRITE", "XOR", "ZEROFILL",
}

// Dialect implements adapter.Dialect for MySQL and MariaDB.
type Dialect struct {
	adapter.Base
}

func features() adapter.Features {
	return adapter.Features{
		NativePaging:    true,
		Paging:          adapter.LimitOffset,
		UnboundedLimit:  "18446744073709551615",
		IDMode:          adapter.IDLastInsert,
		RenameColumn:    true,
		AlterColumnType: true,
		DropColumn:      true,
		Clob:            true,
		Blob:            true,
		DistinctWithLOB: true,
		MaxInValues:     1000,
		MaxNameLength:   64,
		CommitAfterDDL:  true,
		BoolAsInt:       true,
	}
}

// New creates the MySQL dialect.
func New() *Dialect {
	return &Dialect{Base: adapter.NewBase(dbcapabilities.MySQL, features(), reserved...)}
}

// NewMariaDB creates the MariaDB dialect.
func NewMariaDB() *Dialect {
	return &Dialect{Base: adapter.NewBase(dbcapabilities.MariaDB, features(), reserved...)}
}

func (d *Dialect) ColumnType(kind shape.Kind, maxLength int, large bool) string {
	switch kind {
	case shape.Bool:
		return "TINYINT(1)"
	case shape.Int8:
		return "TINYINT"
	case shape.Int32:
		return "INT"
	case shape.Float32:
		return "FLOAT"
	case shape.Float64:
		return "DOUBLE"
	case shape.String, shape.Enum:
		if large {
			return "LONGTEXT"
		}
	case shape.Bytes:
		if large {
			return "LONGBLOB"
		}
	case shape.Time:
		return "DATETIME(6)"
	}
	return d.Base.ColumnType(kind, maxLength, large)
}

func (d *Dialect) IDColumn(generated bool) string {
	if generated {
		return "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	}
	return "BIGINT NOT NULL PRIMARY KEY"
}

func (d *Dialect) AlterColumnType(table string, column adapter.ColumnDef) string {
	return "ALTER TABLE " + table + " MODIFY COLUMN " + column.Name + " " + column.Type
}

func (d *Dialect) DropIndex(name, table string) string {
	return "DROP INDEX " + name + " ON " + table
}

func (d *Dialect) CastDouble(expr string) string {
	return "CAST(" + expr + " AS DOUBLE)"
}

// DSN builds a go-sql-driver DSN. Times are parsed into time.Time in UTC.
func (d *Dialect) DSN(details *dbcapabilities.ConnectionDetails) (string, error) {
	if details.Host == "" {
		return "", adapter.NewConfigurationError(d.ID(), "host", "host is required")
	}

	cfg := mysql.NewConfig()
	cfg.User = details.Username
	cfg.Passwd = details.Password
	cfg.Net = "tcp"
	cfg.Addr = details.Address()
	cfg.DBName = details.DatabaseName
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	switch {
	case details.SSL && details.SSLMode == "prefer":
		cfg.TLSConfig = "skip-verify"
	case details.SSL:
		cfg.TLSConfig = "true"
	default:
		cfg.TLSConfig = "false"
	}

	for k, v := range details.Parameters {
		if k == "tls" {
			continue
		}
		if cfg.Params == nil {
			cfg.Params = make(map[string]string)
		}
		cfg.Params[k] = v
	}

	return cfg.FormatDSN(), nil
}
