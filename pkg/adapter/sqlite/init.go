package sqlite

import (
	_ "modernc.org/sqlite"

	"github.com/redbco/redb-persist/pkg/adapter"
)

func init() {
	// Register the SQLite dialect with the global registry
	adapter.Register(New())
}
