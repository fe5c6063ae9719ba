// Package identity maps stored rows to live in-memory instances. Within one
// cache, every lookup of the same (table, id) yields the same pointer for as
// long as the instance is referenced elsewhere. Entries are held weakly and
// vanish once the instance is collected.
package identity

import (
	"runtime"
	"sync"
	"weak"
)

// Key identifies a stored row.
type Key struct {
	Table string
	ID    int64
}

// Cache is a weak identity map for instances of T.
type Cache[T any] struct {
	mu      sync.RWMutex
	entries map[Key]weak.Pointer[T]
	keys    map[weak.Pointer[T]]Key
	pending int // cleanups registered and not yet run
}

// New creates an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{
		entries: make(map[Key]weak.Pointer[T]),
		keys:    make(map[weak.Pointer[T]]Key),
	}
}

// Lookup returns the live instance stored for a row.
func (c *Cache[T]) Lookup(table string, id int64) (*T, bool) {
	c.mu.RLock()
	wp, ok := c.entries[Key{Table: table, ID: id}]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	v := wp.Value()
	return v, v != nil
}

// Store records obj as the instance of a row, replacing any previous
// instance of the row and any previous row of obj.
func (c *Cache[T]) Store(table string, obj *T, id int64) {
	if obj == nil {
		return
	}
	k := Key{Table: table, ID: id}
	wp := weak.Make(obj)

	c.mu.Lock()
	old, known := c.keys[wp]
	if known && old == k {
		c.mu.Unlock()
		return
	}
	if known {
		delete(c.entries, old)
	}
	if prev, ok := c.entries[k]; ok && prev != wp {
		delete(c.keys, prev)
	}
	c.entries[k] = wp
	c.keys[wp] = k
	c.pending++
	c.mu.Unlock()

	runtime.AddCleanup(obj, c.evict, entry[T]{key: k, ptr: wp})
}

type entry[T any] struct {
	key Key
	ptr weak.Pointer[T]
}

func (c *Cache[T]) evict(e entry[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--
	if cur, ok := c.entries[e.key]; ok && cur == e.ptr {
		delete(c.entries, e.key)
	}
	if k, ok := c.keys[e.ptr]; ok && k == e.key {
		delete(c.keys, e.ptr)
	}
}

// Key returns the row stored for a live instance.
func (c *Cache[T]) Key(obj *T) (Key, bool) {
	if obj == nil {
		return Key{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.keys[weak.Make(obj)]
	return k, ok
}

// ID returns the row id stored for a live instance.
func (c *Cache[T]) ID(obj *T) (int64, bool) {
	k, ok := c.Key(obj)
	return k.ID, ok
}

// Purge drops the entry of a row.
func (c *Cache[T]) Purge(table string, id int64) {
	k := Key{Table: table, ID: id}
	c.mu.Lock()
	defer c.mu.Unlock()
	if wp, ok := c.entries[k]; ok {
		delete(c.entries, k)
		delete(c.keys, wp)
	}
}

// Len returns the number of entries, including collected ones not yet
// evicted.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every entry.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	clear(c.keys)
}

// Sweep drops entries whose instance has been collected and returns how
// many were dropped.
func (c *Cache[T]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, wp := range c.entries {
		if wp.Value() == nil {
			delete(c.entries, k)
			delete(c.keys, wp)
			n++
		}
	}
	return n
}
