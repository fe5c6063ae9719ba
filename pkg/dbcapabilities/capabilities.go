package dbcapabilities

import (
	"sort"
	"strings"
)

// DatabaseID is the canonical identifier for a supported engine.
type DatabaseID string

const (
	PostgreSQL  DatabaseID = "postgres"
	CockroachDB DatabaseID = "cockroach"
	MySQL       DatabaseID = "mysql"
	MariaDB     DatabaseID = "mariadb"
	SQLServer   DatabaseID = "mssql"
	Oracle      DatabaseID = "oracle"
	SQLite      DatabaseID = "sqlite"
	Redis       DatabaseID = "redis"
)

// Capability describes an engine at the connection level. Statement-level
// behaviour (keywords, paging, DDL support) lives in the dialect registered
// under the same ID in package adapter.
type Capability struct {
	// Human-friendly product name.
	Name string `json:"name"`

	// Canonical identifier.
	ID DatabaseID `json:"id"`

	// database/sql driver name used to open connections.
	Driver string `json:"driver"`

	// Default TCP port; zero for embedded engines.
	DefaultPort int `json:"defaultPort"`

	// Embedded engines address a file path instead of a host.
	Embedded bool `json:"embedded"`

	// Whether DDL statements participate in transactions.
	TransactionalDDL bool `json:"transactionalDDL"`

	// Whether the engine stores relational level tables. Key/value engines
	// are only used for id allocation.
	Relational bool `json:"relational"`

	// Whether the server has system-level databases.
	HasSystemDatabase bool `json:"hasSystemDatabase"`

	// Names of system databases, if any.
	SystemDatabases []string `json:"systemDatabases,omitempty"`

	// Alternative names and URL schemes.
	Aliases []string `json:"aliases,omitempty"`
}

// All is the registry of supported engines.
var All = map[DatabaseID]Capability{
	PostgreSQL: {
		Name:              "PostgreSQL",
		ID:                PostgreSQL,
		Driver:            "pgx",
		DefaultPort:       5432,
		TransactionalDDL:  true,
		Relational:        true,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"postgres"},
		Aliases:           []string{"postgresql", "pg", "pgx"},
	},
	CockroachDB: {
		Name:              "CockroachDB",
		ID:                CockroachDB,
		Driver:            "pgx",
		DefaultPort:       26257,
		TransactionalDDL:  true,
		Relational:        true,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"defaultdb", "system"},
		Aliases:           []string{"cockroachdb", "crdb"},
	},
	MySQL: {
		Name:              "MySQL",
		ID:                MySQL,
		Driver:            "mysql",
		DefaultPort:       3306,
		Relational:        true,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"mysql", "information_schema"},
	},
	MariaDB: {
		Name:              "MariaDB",
		ID:                MariaDB,
		Driver:            "mysql",
		DefaultPort:       3306,
		Relational:        true,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"mysql", "information_schema"},
	},
	SQLServer: {
		Name:              "Microsoft SQL Server",
		ID:                SQLServer,
		Driver:            "sqlserver",
		DefaultPort:       1433,
		TransactionalDDL:  true,
		Relational:        true,
		HasSystemDatabase: true,
		SystemDatabases:   []string{"master"},
		Aliases:           []string{"sqlserver", "mssql-server"},
	},
	Oracle: {
		Name:        "Oracle Database",
		ID:          Oracle,
		Driver:      "godror",
		DefaultPort: 1521,
		Relational:  true,
		Aliases:     []string{"oracledb", "godror"},
	},
	SQLite: {
		Name:             "SQLite",
		ID:               SQLite,
		Driver:           "sqlite",
		Embedded:         true,
		TransactionalDDL: true,
		Relational:       true,
		Aliases:          []string{"sqlite3", "file"},
	},
	Redis: {
		Name:        "Redis",
		ID:          Redis,
		DefaultPort: 6379,
		Aliases:     []string{"rediss"},
	},
}

// nameToID is a normalized lookup index from any known name/alias to the canonical DatabaseID.
var nameToID map[string]DatabaseID

func init() {
	nameToID = make(map[string]DatabaseID, len(All)*2)
	for id, cap := range All {
		nameToID[strings.ToLower(string(id))] = id
		if cap.Name != "" {
			nameToID[strings.ToLower(cap.Name)] = id
		}
		for _, a := range cap.Aliases {
			if a == "" {
				continue
			}
			nameToID[strings.ToLower(a)] = id
		}
	}
}

// ParseID attempts to resolve an arbitrary engine name (canonical id, alias, or product name)
// to a canonical DatabaseID. Returns false if unknown.
func ParseID(name string) (DatabaseID, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	id, ok := nameToID[n]
	return id, ok
}

// GetByName returns the Capability by looking up using a free-form name (id or alias).
func GetByName(name string) (Capability, bool) {
	if id, ok := ParseID(name); ok {
		return Get(id)
	}
	return Capability{}, false
}

// IDs returns the list of all known IDs in sorted order.
func IDs() []DatabaseID {
	out := make([]DatabaseID, 0, len(All))
	for id := range All {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Get returns capabilities for the given ID and a boolean indicating existence.
func Get(id DatabaseID) (Capability, bool) {
	c, ok := All[id]
	return c, ok
}

// MustGet returns capabilities for the given ID and panics if not found.
func MustGet(id DatabaseID) Capability {
	c, ok := Get(id)
	if !ok {
		panic("dbcapabilities: unknown database id: " + string(id))
	}
	return c
}

// IsRelational reports whether the engine can hold level tables.
func IsRelational(id DatabaseID) bool {
	c, ok := Get(id)
	return ok && c.Relational
}

// HasTransactionalDDL reports whether DDL can be rolled back on the engine.
func HasTransactionalDDL(id DatabaseID) bool {
	c, ok := Get(id)
	return ok && c.TransactionalDDL
}
