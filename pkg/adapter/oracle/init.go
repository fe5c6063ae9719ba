package oracle

import (
	_ "github.com/godror/godror" // Oracle driver

	"github.com/redbco/redb-persist/pkg/adapter"
)

func init() {
	// Register the Oracle dialect with the global registry
	adapter.Register(New())
}
