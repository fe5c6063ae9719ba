package inheritance

import (
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/redbco/redb-persist/pkg/descriptor"
)

// Cache memoizes stacks per type name for the lifetime of a kernel.
type Cache struct {
	types  *descriptor.Cache
	group  singleflight.Group
	stacks sync.Map
}

// NewCache creates a stack cache over a descriptor cache.
func NewCache(types *descriptor.Cache) *Cache {
	return &Cache{types: types}
}

// Types returns the underlying descriptor cache.
func (c *Cache) Types() *descriptor.Cache { return c.types }

// Stack returns the stack of a type, building it once.
func (c *Cache) Stack(name string) (*Stack, error) {
	if v, ok := c.stacks.Load(name); ok {
		return v.(*Stack), nil
	}
	v, err, _ := c.group.Do(name, func() (any, error) {
		if v, ok := c.stacks.Load(name); ok {
			return v, nil
		}
		s, err := Build(c.types, name)
		if err != nil {
			return nil, err
		}
		c.stacks.Store(name, s)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Stack), nil
}
