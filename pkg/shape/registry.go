package shape

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maps stable type names to shapes. It replaces dynamic class
// loading: a stored type tag resolves through Lookup or fails with an
// UnknownTypeError. Registered shapes are immutable.
type Registry struct {
	mu     sync.RWMutex
	shapes map[string]Shape
	order  []string
}

// NewRegistry creates a registry holding only the universal root type.
func NewRegistry() *Registry {
	return &Registry{
		shapes: map[string]Shape{Root: {Name: Root}},
	}
}

// Register adds shapes to the registry. Parents may be registered later;
// they are resolved when a stack is built.
func (r *Registry) Register(shapes ...Shape) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range shapes {
		if err := validate(s); err != nil {
			return err
		}
		if _, exists := r.shapes[s.Name]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateType, s.Name)
		}
		s.Interfaces = append([]string(nil), s.Interfaces...)
		s.Accessors = append([]Accessor(nil), s.Accessors...)
		r.shapes[s.Name] = s
		r.order = append(r.order, s.Name)
	}
	return nil
}

// MustRegister registers shapes and panics on error.
func (r *Registry) MustRegister(shapes ...Shape) *Registry {
	if err := r.Register(shapes...); err != nil {
		panic(err)
	}
	return r
}

func validate(s Shape) error {
	switch {
	case strings.TrimSpace(s.Name) == "":
		return NewShapeError("<unnamed>", "", "type name is required")
	case strings.Contains(s.Name, "__"):
		return NewShapeError(s.Name, "", "type name must not contain \"__\"")
	case s.Interface && s.Super != "":
		return NewShapeError(s.Name, "", "interfaces cannot extend a class")
	case s.Super == s.Name:
		return NewShapeError(s.Name, "", "type cannot extend itself")
	}
	for _, i := range s.Interfaces {
		if i == s.Name {
			return NewShapeError(s.Name, "", "type cannot implement itself")
		}
	}
	return nil
}

// Lookup returns the shape registered under name.
func (r *Registry) Lookup(name string) (Shape, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.shapes[name]
	if !ok {
		return Shape{}, &UnknownTypeError{Name: name}
	}
	return s, nil
}

// Has reports whether a shape is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.shapes[name]
	return ok
}

// Names returns registered type names in registration order, excluding Root.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// IsAssignable reports whether values of type from may be stored where
// type to is declared. Every type is assignable to Root.
func (r *Registry) IsAssignable(from, to string) bool {
	if from == to || to == Root {
		return true
	}

	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		s, err := r.Lookup(name)
		if err != nil {
			continue
		}
		for _, p := range s.Parents() {
			if p == to {
				return true
			}
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false
}
