package mysql

import (
	"github.com/redbco/redb-persist/pkg/adapter"
)

func init() {
	// Register the MySQL and MariaDB dialects with the global registry
	adapter.Register(New())
	adapter.Register(NewMariaDB())
}
