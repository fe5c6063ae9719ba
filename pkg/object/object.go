// Package object holds the dynamic instances the kernel persists. An Object
// is a named bag of property values typed by a registered shape; arrays are
// Objects too, tagged with ArrayType and carrying an element type.
package object

import (
	"slices"
	"sync"

	"github.com/redbco/redb-persist/pkg/shape"
)

// ArrayType is the type name stored for array rows.
const ArrayType = "C__ARRAY"

// Object is a persistable instance. Property values are Go values matching
// the declared kind: bool, int8..int64, float32, float64, string (also for
// enums), time.Time, []byte, or *Object for references and arrays. A missing
// property is unset and stored as NULL.
type Object struct {
	typeName string
	elem     *shape.TypeRef

	mu     sync.RWMutex
	values map[string]any
	items  []any
}

// New creates an empty instance of the named type.
func New(typeName string) *Object {
	return &Object{typeName: typeName, values: make(map[string]any)}
}

// NewArray creates an array of the given element type holding items.
func NewArray(elem shape.TypeRef, items ...any) *Object {
	e := elem
	return &Object{
		typeName: ArrayType,
		elem:     &e,
		values:   make(map[string]any),
		items:    append([]any(nil), items...),
	}
}

// Type returns the type name of the instance.
func (o *Object) Type() string { return o.typeName }

// IsArray reports whether the instance is an array.
func (o *Object) IsArray() bool { return o.typeName == ArrayType }

// Elem returns the element type of an array. It is the zero TypeRef for
// non-array objects.
func (o *Object) Elem() shape.TypeRef {
	if o.elem == nil {
		return shape.TypeRef{}
	}
	return *o.elem
}

// Get returns the value of a property and whether it is set.
func (o *Object) Get(name string) (any, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[name]
	return v, ok
}

// Value returns the value of a property or nil.
func (o *Object) Value(name string) any {
	v, _ := o.Get(name)
	return v
}

// Set assigns a property. Setting nil unsets it.
func (o *Object) Set(name string, value any) *Object {
	o.mu.Lock()
	defer o.mu.Unlock()
	if value == nil || isNilObject(value) {
		delete(o.values, name)
		return o
	}
	o.values[name] = value
	return o
}

// Unset clears a property.
func (o *Object) Unset(name string) {
	o.mu.Lock()
	delete(o.values, name)
	o.mu.Unlock()
}

// Has reports whether a property is set.
func (o *Object) Has(name string) bool {
	_, ok := o.Get(name)
	return ok
}

// Names lists the set property names in sorted order.
func (o *Object) Names() []string {
	o.mu.RLock()
	names := make([]string, 0, len(o.values))
	for n := range o.values {
		names = append(names, n)
	}
	o.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Replace overwrites all property values and array items with those of src.
// It is used by refresh to update an instance in place.
func (o *Object) Replace(src *Object) {
	if o == src {
		return
	}
	src.mu.RLock()
	values := make(map[string]any, len(src.values))
	for k, v := range src.values {
		values[k] = v
	}
	items := append([]any(nil), src.items...)
	src.mu.RUnlock()

	o.mu.Lock()
	o.values = values
	o.items = items
	o.mu.Unlock()
}

// Len returns the number of array items.
func (o *Object) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

// At returns the array item at position i.
func (o *Object) At(i int) any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.items[i]
}

// SetAt replaces the array item at position i.
func (o *Object) SetAt(i int, v any) {
	o.mu.Lock()
	o.items[i] = v
	o.mu.Unlock()
}

// Append adds items to the end of an array.
func (o *Object) Append(items ...any) *Object {
	o.mu.Lock()
	o.items = append(o.items, items...)
	o.mu.Unlock()
	return o
}

// Items returns a copy of the array items.
func (o *Object) Items() []any {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]any(nil), o.items...)
}

func isNilObject(v any) bool {
	p, ok := v.(*Object)
	return ok && p == nil
}
