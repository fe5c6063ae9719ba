package postgres

import (
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/redbco/redb-persist/pkg/adapter"
)

func init() {
	// Register the PostgreSQL and CockroachDB dialects with the global registry
	adapter.Register(New())
	adapter.Register(NewCockroach())
}
