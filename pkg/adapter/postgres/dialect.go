package postgres

import (
	"net/url"
	"strconv"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/dbcapabilities"
	"github.com/redbco/redb-persist/pkg/shape"
)

var reserved = []string{
	"ANALYSE", "ANALYZE", "ARRAY", "ASYMMETRIC", "BOTH", "COLLATE", "CURRENT_USER",
	"DO", "LATERAL", "LEADING", "ONLY", "PLACING", "RETURNING", "SYMMETRIC",
	"TRAILING", "VARIADIC", "WINDOW",
}

// Dialect implements adapter.Dialect for PostgreSQL and CockroachDB.
type Dialect struct {
	adapter.Base
	cockroach bool
}

func features() adapter.Features {
	return adapter.Features{
		NativePaging:    true,
		Paging:          adapter.LimitOffset,
		IDMode:          adapter.IDReturning,
		RenameColumn:    true,
		AlterColumnType: true,
		DropColumn:      true,
		Clob:            true,
		Blob:            true,
		DistinctWithLOB: true,
		MaxInValues:     1000,
		MaxNameLength:   63,
		CastAverage:     true,
	}
}

// New creates the PostgreSQL dialect.
func New() *Dialect {
	return &Dialect{Base: adapter.NewBase(dbcapabilities.PostgreSQL, features(), reserved...)}
}

// NewCockroach creates the CockroachDB dialect. It speaks the PostgreSQL
// wire protocol but generates ids with unique_rowid.
func NewCockroach() *Dialect {
	return &Dialect{
		Base:      adapter.NewBase(dbcapabilities.CockroachDB, features(), reserved...),
		cockroach: true,
	}
}

func (d *Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (d *Dialect) ColumnType(kind shape.Kind, maxLength int, large bool) string {
	switch kind {
	case shape.String, shape.Enum:
		if large {
			return "TEXT"
		}
	case shape.Bytes:
		return "BYTEA"
	case shape.Time:
		return "TIMESTAMPTZ"
	}
	return d.Base.ColumnType(kind, maxLength, large)
}

func (d *Dialect) IDColumn(generated bool) string {
	switch {
	case !generated:
		return "BIGINT PRIMARY KEY"
	case d.cockroach:
		return "INT8 DEFAULT unique_rowid() PRIMARY KEY"
	}
	return "BIGSERIAL PRIMARY KEY"
}

// DSN builds a postgres:// URL accepted by pgxpool.ParseConfig.
func (d *Dialect) DSN(details *dbcapabilities.ConnectionDetails) (string, error) {
	if details.Host == "" {
		return "", adapter.NewConfigurationError(d.ID(), "host", "host is required")
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   details.Address(),
		Path:   "/" + details.DatabaseName,
	}
	if details.Username != "" {
		u.User = url.UserPassword(details.Username, details.Password)
	}

	q := url.Values{}
	for k, v := range details.Parameters {
		q.Set(k, v)
	}
	sslMode := details.SSLMode
	if sslMode == "" || !details.SSL {
		sslMode = "disable"
	}
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()

	return u.String(), nil
}
