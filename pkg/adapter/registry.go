package adapter

import (
	"fmt"
	"slices"
	"sync"

	"github.com/redbco/redb-persist/pkg/dbcapabilities"
)

// Registry manages the registration and retrieval of dialects.
type Registry struct {
	dialects map[dbcapabilities.DatabaseID]Dialect
	mu       sync.RWMutex
}

// NewRegistry creates a new dialect registry.
func NewRegistry() *Registry {
	return &Registry{
		dialects: make(map[dbcapabilities.DatabaseID]Dialect),
	}
}

// Register registers a dialect.
// If a dialect for the same engine is already registered, it will be replaced.
func (r *Registry) Register(d Dialect) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dialects[d.ID()] = d
}

// Get retrieves a registered dialect by engine id.
// Returns ErrDialectNotFound if the dialect is not registered.
func (r *Registry) Get(id dbcapabilities.DatabaseID) (Dialect, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.dialects[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDialectNotFound, id)
	}

	return d, nil
}

// GetByName retrieves a registered dialect by engine name or alias.
func (r *Registry) GetByName(name string) (Dialect, error) {
	id, ok := dbcapabilities.ParseID(name)
	if !ok {
		return nil, fmt.Errorf("%w: unknown database type '%s'", ErrDialectNotFound, name)
	}

	return r.Get(id)
}

// IsRegistered checks if a dialect is registered for the given engine.
func (r *Registry) IsRegistered(id dbcapabilities.DatabaseID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.dialects[id]
	return exists
}

// ListRegistered returns the registered engine ids in sorted order.
func (r *Registry) ListRegistered() []dbcapabilities.DatabaseID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]dbcapabilities.DatabaseID, 0, len(r.dialects))
	for id := range r.dialects {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}

// Resolve parses a connection URL and returns the matching dialect with its
// driver DSN.
func (r *Registry) Resolve(connectionString string) (Dialect, *dbcapabilities.ConnectionDetails, string, error) {
	details, err := dbcapabilities.ParseConnectionString(connectionString)
	if err != nil {
		return nil, nil, "", err
	}

	d, err := r.Get(details.DatabaseID)
	if err != nil {
		return nil, nil, "", err
	}

	dsn, err := d.DSN(details)
	if err != nil {
		return nil, nil, "", err
	}

	return d, details, dsn, nil
}

// globalRegistry is the default global dialect registry.
var globalRegistry = NewRegistry()

// Register registers a dialect in the global registry.
func Register(d Dialect) {
	globalRegistry.Register(d)
}

// Get retrieves a dialect from the global registry.
func Get(id dbcapabilities.DatabaseID) (Dialect, error) {
	return globalRegistry.Get(id)
}

// GetByName retrieves a dialect from the global registry by name.
func GetByName(name string) (Dialect, error) {
	return globalRegistry.GetByName(name)
}

// Resolve resolves a connection URL against the global registry.
func Resolve(connectionString string) (Dialect, *dbcapabilities.ConnectionDetails, string, error) {
	return globalRegistry.Resolve(connectionString)
}

// ListRegistered returns all registered engine ids from the global registry.
func ListRegistered() []dbcapabilities.DatabaseID {
	return globalRegistry.ListRegistered()
}

// GlobalRegistry returns the global dialect registry.
func GlobalRegistry() *Registry {
	return globalRegistry
}
