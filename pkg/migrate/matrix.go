package migrate

import (
	"github.com/redbco/redb-persist/pkg/shape"
)

// Outcome is what happens to stored values when a column changes type.
type Outcome int

const (
	// Cleared drops every stored value.
	Cleared Outcome = iota
	// Preserved converts every stored value.
	Preserved
	// PerRow decides per stored reference whether the referenced object
	// still fits the new type.
	PerRow
)

func (o Outcome) String() string {
	switch o {
	case Preserved:
		return "preserved"
	case PerRow:
		return "per-row"
	}
	return "cleared"
}

// Classify applies the data preservation matrix to a type change.
//
//	integer   -> larger integer                 preserved
//	float     -> larger float                   preserved
//	bool      -> integer                        preserved
//	enum      -> string                         preserved
//	reference -> superclass                     preserved, re-pointed
//	reference -> subclass or interface          per row
//	array     -> anything                       cleared
//
// Every other change, including all changes from string, time and bytes,
// clears the column.
func Classify(from, to shape.TypeRef, registry *shape.Registry) Outcome {
	switch {
	case from.Kind.IsInteger() && to.Kind.IsInteger():
		if to.Kind.Width() > from.Kind.Width() {
			return Preserved
		}
	case from.Kind.IsFloat() && to.Kind.IsFloat():
		if to.Kind.Width() > from.Kind.Width() {
			return Preserved
		}
	case from.Kind == shape.Bool && to.Kind.IsInteger():
		return Preserved
	case from.Kind == shape.Enum && to.Kind == shape.String:
		return Preserved
	case from.Kind == shape.Reference && to.Kind == shape.Reference:
		switch {
		case registry.IsAssignable(from.Name, to.Name):
			return Preserved
		case registry.IsAssignable(to.Name, from.Name):
			return PerRow
		case isInterface(registry, to.Name):
			return PerRow
		}
	}
	return Cleared
}

func isInterface(registry *shape.Registry, name string) bool {
	s, err := registry.Lookup(name)
	return err == nil && s.Interface
}
