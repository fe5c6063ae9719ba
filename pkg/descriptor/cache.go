package descriptor

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/shape"
)

// Cache derives each Type once per kernel and publishes it immutably.
// Concurrent first requests for the same type share one derivation.
type Cache struct {
	registry *shape.Registry
	dialect  Dialect

	group  singleflight.Group
	types  sync.Map // type name -> *Type
	tables sync.Map // table -> type name
}

// NewCache creates a descriptor cache over a registry.
func NewCache(registry *shape.Registry, d Dialect) *Cache {
	return &Cache{registry: registry, dialect: d}
}

// Registry returns the shape registry the cache derives from.
func (c *Cache) Registry() *shape.Registry { return c.registry }

// Dialect returns the naming dialect.
func (c *Cache) Dialect() Dialect { return c.dialect }

// Type returns the derived Type of a registered type name.
func (c *Cache) Type(name string) (*Type, error) {
	if v, ok := c.types.Load(name); ok {
		return v.(*Type), nil
	}

	v, err, _ := c.group.Do(name, func() (any, error) {
		if v, ok := c.types.Load(name); ok {
			return v, nil
		}

		s, err := c.lookup(name)
		if err != nil {
			return nil, err
		}
		t, err := Derive(s, c.dialect)
		if err != nil {
			return nil, err
		}

		if owner, loaded := c.tables.LoadOrStore(t.Table, t.Name); loaded && owner != t.Name {
			return nil, shape.NewShapeError(t.Name, "", fmt.Sprintf("table %s is already used by %s", t.Table, owner))
		}
		c.types.Store(name, t)
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Type), nil
}

func (c *Cache) lookup(name string) (shape.Shape, error) {
	if name == object.ArrayType {
		return shape.Shape{Name: object.ArrayType}, nil
	}
	return c.registry.Lookup(name)
}

// TypeOf returns the type name stored for a table, if the table has been
// derived by this cache.
func (c *Cache) TypeOf(table string) (string, bool) {
	v, ok := c.tables.Load(table)
	if !ok {
		return "", false
	}
	return v.(string), true
}
