package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/config"
	"github.com/redbco/redb-persist/pkg/dbcapabilities"
)

// Options tune the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultOptions returns the pool settings used for server engines.
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DB is an open connection pool together with the dialect that speaks to it.
type DB struct {
	*sql.DB
	Dialect adapter.Dialect
	Details *dbcapabilities.ConnectionDetails

	pool *pgxpool.Pool
}

// Open resolves a connection URL to a registered dialect, opens a pool and
// pings it. The dialect package of the engine must be imported.
func Open(ctx context.Context, connectionString string, opts Options) (*DB, error) {
	d, details, dsn, err := adapter.Resolve(connectionString)
	if err != nil {
		return nil, err
	}

	db := &DB{Dialect: d, Details: details}

	switch details.DatabaseID {
	case dbcapabilities.PostgreSQL, dbcapabilities.CockroachDB:
		poolConfig, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection config: %w", err)
		}
		if opts.MaxOpenConns > 0 {
			poolConfig.MaxConns = int32(opts.MaxOpenConns)
		}
		if opts.ConnMaxLifetime > 0 {
			poolConfig.MaxConnLifetime = opts.ConnMaxLifetime
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		db.pool = pool
		db.DB = stdlib.OpenDBFromPool(pool)
	default:
		sqlDB, err := sql.Open(d.DriverName(), dsn)
		if err != nil {
			return nil, adapter.WrapError(d.ID(), "open", err)
		}
		db.DB = sqlDB
		applyOptions(sqlDB, details, opts)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, adapter.WrapError(d.ID(), "ping", err)
	}

	return db, nil
}

// OpenFromConfig opens the pool named by database.url.
func OpenFromConfig(ctx context.Context, cfg *config.Config) (*DB, error) {
	url := cfg.Get(config.KeyDatabaseURL)
	if url == "" {
		return nil, fmt.Errorf("%s is required", config.KeyDatabaseURL)
	}
	return Open(ctx, url, DefaultOptions())
}

func applyOptions(db *sql.DB, details *dbcapabilities.ConnectionDetails, opts Options) {
	if c, ok := dbcapabilities.Get(details.DatabaseID); ok && c.Embedded {
		// Each connection to :memory: is a separate database and SQLite
		// serializes writers anyway.
		db.SetMaxOpenConns(1)
		return
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
}

// Pool returns the pgx pool backing PostgreSQL connections, or nil.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the database connection
func (db *DB) Close() error {
	var err error
	if db.DB != nil {
		err = db.DB.Close()
	}
	if db.pool != nil {
		db.pool.Close()
	}
	return err
}
