package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/dbcapabilities"
	"github.com/redbco/redb-persist/pkg/shape"
)

// migration is one versioned change to the system tables.
type migration struct {
	version int64
	up      func(ctx context.Context, tx *sql.Tx) error
}

func (c *Catalog) migrations() []migration {
	return []migration{
		{version: 1, up: c.createCoreTables},
		{version: 2, up: c.createIndexAndSequenceTables},
	}
}

func gooseDialect(id dbcapabilities.DatabaseID) (goose.Dialect, bool) {
	switch id {
	case dbcapabilities.PostgreSQL, dbcapabilities.CockroachDB:
		return goose.DialectPostgres, true
	case dbcapabilities.MySQL, dbcapabilities.MariaDB:
		return goose.DialectMySQL, true
	case dbcapabilities.SQLServer:
		return goose.DialectMSSQL, true
	case dbcapabilities.SQLite:
		return goose.DialectSQLite3, true
	}
	return "", false
}

// Bootstrap creates or upgrades the system tables. Engines goose has no
// dialect for run every migration once, guarded by the presence of the
// type table.
func (c *Catalog) Bootstrap(ctx context.Context, db *sql.DB) error {
	dialect, ok := gooseDialect(c.dialect.ID())
	if !ok {
		return c.bootstrapDirect(ctx, db)
	}

	var gms []*goose.Migration
	for _, m := range c.migrations() {
		gms = append(gms, goose.NewGoMigration(m.version, &goose.GoFunc{RunTx: m.up}, nil))
	}

	provider, err := goose.NewProvider(dialect, db, nil, goose.WithGoMigrations(gms...))
	if err != nil {
		return fmt.Errorf("failed to create catalog migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return adapter.WrapError(c.dialect.ID(), "bootstrap catalog", err)
	}
	for _, r := range results {
		c.log.Infof("Applied catalog migration %d in %s", r.Source.Version, r.Duration)
	}
	return nil
}

func (c *Catalog) bootstrapDirect(ctx context.Context, db *sql.DB) error {
	if c.exists(ctx, db, TypeTable) {
		if !c.exists(ctx, db, IndexTable) {
			return c.runDirect(ctx, db, c.migrations()[1:])
		}
		return nil
	}
	return c.runDirect(ctx, db, c.migrations())
}

func (c *Catalog) runDirect(ctx context.Context, db *sql.DB, ms []migration) error {
	for _, m := range ms {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return adapter.WrapError(c.dialect.ID(), "begin catalog migration", err)
		}
		if err := m.up(ctx, tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return adapter.WrapError(c.dialect.ID(), "commit catalog migration", err)
		}
		c.log.Infof("Applied catalog migration %d", m.version)
	}
	return nil
}

// exists probes a table with a query that reads no rows.
func (c *Catalog) exists(ctx context.Context, ex adapter.Executor, table string) bool {
	rows, err := ex.QueryContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE 1 = 0")
	if err != nil {
		return false
	}
	rows.Close()
	return true
}

func (c *Catalog) name() string  { return c.dialect.ColumnType(shape.String, nameLength, false) }
func (c *Catalog) class() string { return c.dialect.ColumnType(shape.String, classLength, false) }
func (c *Catalog) id() string    { return c.dialect.ColumnType(shape.Int64, 0, false) }

func (c *Catalog) createCoreTables(ctx context.Context, tx *sql.Tx) error {
	return c.run(ctx, tx,
		c.dialect.CreateTable(TypeTable, []adapter.ColumnDef{
			{Name: "OWNER_TABLE", Type: c.name()},
			{Name: "COLUMN_NAME", Type: c.name()},
			{Name: "COLUMN_CLASS", Type: c.class()},
		}),
		c.dialect.CreateIndex("IDX_C__TYPE_TABLE_OWNER", TypeTable, []string{"OWNER_TABLE"}),
		c.dialect.CreateTable(IsATable, []adapter.ColumnDef{
			{Name: "SUPERCLASS", Type: c.name()},
			{Name: "SUBCLASS", Type: c.name()},
		}),
		c.dialect.CreateTable(HasATable, []adapter.ColumnDef{
			{Name: "OWNER_TABLE", Type: c.name()},
			{Name: "OWNER_ID", Type: c.id()},
			{Name: "PROPERTY_TABLE", Type: c.name()},
			{Name: "PROPERTY_ID", Type: c.id()},
			{Name: "PROPERTY_CLASS", Type: c.class()},
		}),
		c.dialect.CreateIndex("IDX_C__HAS_A_PROPERTY", HasATable, []string{"PROPERTY_TABLE", "PROPERTY_ID"}),
		c.dialect.CreateIndex("IDX_C__HAS_A_OWNER", HasATable, []string{"OWNER_TABLE", "OWNER_ID"}),
	)
}

func (c *Catalog) createIndexAndSequenceTables(ctx context.Context, tx *sql.Tx) error {
	return c.run(ctx, tx,
		c.dialect.CreateTable(IndexTable, []adapter.ColumnDef{
			{Name: "OWNER_TABLE", Type: c.name()},
			{Name: "INDEX_NAME", Type: c.name()},
			{Name: "COLUMN_NAME", Type: c.name()},
		}),
		c.dialect.CreateTable(SequenceTable, []adapter.ColumnDef{
			{Name: "TABLE_NAME", Type: c.name()},
			{Name: "NEXT_ID", Type: c.id()},
		}),
		c.dialect.CreateIndex("IDX_C__SEQUENCE_TABLE", SequenceTable, []string{"TABLE_NAME"}),
	)
}

func (c *Catalog) run(ctx context.Context, tx *sql.Tx, statements ...string) error {
	for _, stmt := range statements {
		c.log.Debugf("Catalog DDL: %s", stmt)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return adapter.WrapError(c.dialect.ID(), "create catalog", err)
		}
	}
	return nil
}
