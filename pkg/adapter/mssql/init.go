package mssql

import (
	_ "github.com/microsoft/go-mssqldb"

	"github.com/redbco/redb-persist/pkg/adapter"
)

func init() {
	// Register the SQL Server dialect with the global registry
	adapter.Register(New())
}
