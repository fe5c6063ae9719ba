package identity

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	name string
	next *item
}

func TestCache_StoreLookup(t *testing.T) {
	c := New[item]()
	a := &item{name: "a"}

	c.Store("POINT", a, 1)

	got, ok := c.Lookup("POINT", 1)
	require.True(t, ok)
	assert.Same(t, a, got)

	again, _ := c.Lookup("POINT", 1)
	assert.Same(t, got, again)

	id, ok := c.ID(a)
	require.True(t, ok)
	assert.Equal(t, int64(1), id)

	_, ok = c.Lookup("POINT", 2)
	assert.False(t, ok)
	_, ok = c.Lookup("OTHER", 1)
	assert.False(t, ok)

	_, ok = c.ID(&item{})
	assert.False(t, ok)
	_, ok = c.ID(nil)
	assert.False(t, ok)

	runtime.KeepAlive(a)
}

func TestCache_Replace(t *testing.T) {
	c := New[item]()
	a, b := &item{name: "a"}, &item{name: "b"}

	c.Store("POINT", a, 1)
	c.Store("POINT", b, 1)

	got, ok := c.Lookup("POINT", 1)
	require.True(t, ok)
	assert.Same(t, b, got)
	_, ok = c.ID(a)
	assert.False(t, ok)

	// moving an instance to another row drops its old row
	c.Store("POINT", b, 2)
	_, ok = c.Lookup("POINT", 1)
	assert.False(t, ok)
	key, ok := c.Key(b)
	require.True(t, ok)
	assert.Equal(t, Key{Table: "POINT", ID: 2}, key)
	assert.Equal(t, 1, c.Len())

	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
}

func TestCache_PurgeClear(t *testing.T) {
	c := New[item]()
	a, b := &item{name: "a"}, &item{name: "b"}
	c.Store("POINT", a, 1)
	c.Store("POINT", b, 2)

	c.Purge("POINT", 1)
	_, ok := c.Lookup("POINT", 1)
	assert.False(t, ok)
	_, ok = c.ID(a)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Purge("POINT", 99)
	c.Clear()
	assert.Zero(t, c.Len())

	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
}

func TestCache_WeakRetention(t *testing.T) {
	c := New[item]()
	func() {
		c.Store("POINT", &item{name: "gone", next: &item{}}, 1)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		_, ok := c.Lookup("POINT", 1)
		return !ok
	}, 5*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		runtime.GC()
		c.Sweep()
		return c.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCache_RepeatedStore(t *testing.T) {
	c := New[item]()
	func() {
		a := &item{name: "a"}
		for range 5 {
			c.Store("POINT", a, 1)
		}
		c.mu.RLock()
		assert.Equal(t, 1, c.pending)
		c.mu.RUnlock()

		c.Store("POINT", a, 2)
		c.mu.RLock()
		assert.Equal(t, 2, c.pending)
		c.mu.RUnlock()

		got, ok := c.Lookup("POINT", 2)
		require.True(t, ok)
		assert.Same(t, a, got)
		_, ok = c.Lookup("POINT", 1)
		assert.False(t, ok)
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		c.mu.RLock()
		defer c.mu.RUnlock()
		return c.pending == 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, c.Len())
}

func TestCache_Concurrent(t *testing.T) {
	c := New[item]()
	objs := make([]*item, 50)
	for i := range objs {
		objs[i] = &item{}
	}

	var wg sync.WaitGroup
	for i, o := range objs {
		wg.Add(2)
		go func(i int, o *item) {
			defer wg.Done()
			c.Store("POINT", o, int64(i))
		}(i, o)
		go func(i int) {
			defer wg.Done()
			c.Lookup("POINT", int64(i))
		}(i)
	}
	wg.Wait()

	for i, o := range objs {
		got, ok := c.Lookup("POINT", int64(i))
		require.True(t, ok)
		assert.Same(t, o, got)
	}
	runtime.KeepAlive(objs)
}
