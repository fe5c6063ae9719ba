// Package descriptor derives the relational shape of one type level: its
// table, and the columns, indices and large-object flags of the properties
// declared at that level.
package descriptor

import (
	"fmt"

	"github.com/redbco/redb-persist/pkg/shape"
)

// Dialect is the capability surface descriptor derivation needs.
type Dialect interface {
	Naming
	SupportsClob() bool
	SupportsBlob() bool
}

// Property describes one persisted property. Immutable once derived.
type Property struct {
	Name        string
	Column      string
	Type        shape.TypeRef
	Indexed     bool
	Groups      []string
	MaxLength   int
	LargeObject bool
	FormerName  string
}

// Kind returns the semantic kind of the property.
func (p Property) Kind() shape.Kind { return p.Type.Kind }

// IsObject reports whether the column holds the id of another row.
func (p Property) IsObject() bool { return p.Type.IsObject() }

// Type describes one level of a type: the properties declared at that level
// only. Inherited properties live in the ancestor's Type.
type Type struct {
	Name       string
	Table      string
	Interface  bool
	Parents    []string
	Properties []Property
}

// Property returns the property with the given name.
func (t *Type) Property(name string) (Property, bool) {
	for _, p := range t.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Columns lists the property columns in declaration order.
func (t *Type) Columns() []string {
	cols := make([]string, len(t.Properties))
	for i, p := range t.Properties {
		cols[i] = p.Column
	}
	return cols
}

// Derive builds the Type of a shape. Accessors without a setter are
// read-only and skipped, as are transient ones.
func Derive(s shape.Shape, d Dialect) (*Type, error) {
	table, err := TableName(s, d)
	if err != nil {
		return nil, err
	}

	t := &Type{
		Name:      s.Name,
		Table:     table,
		Interface: s.Interface,
		Parents:   s.Parents(),
	}

	names := make(map[string]bool)
	columns := make(map[string]string)
	for _, a := range s.Accessors {
		if a.Transient || a.Setter == "" {
			continue
		}

		name, ok := a.PropertyName()
		if !ok {
			return nil, shape.NewShapeError(s.Name, a.Getter, "getter must be named GetX, or IsX for booleans")
		}
		if a.Setter != "Set"+a.Getter[len(a.Getter)-len(name):] {
			return nil, shape.NewShapeError(s.Name, a.Getter, fmt.Sprintf("setter %s does not match getter", a.Setter))
		}
		if !a.Returns.Equal(a.Accepts) {
			return nil, shape.NewShapeError(s.Name, name,
				fmt.Sprintf("getter returns %s but setter accepts %s", a.Returns, a.Accepts))
		}
		if a.Returns.Kind == shape.Invalid {
			return nil, shape.NewShapeError(s.Name, name, "property type is required")
		}
		if names[name] {
			return nil, shape.NewShapeError(s.Name, name, "property declared twice")
		}
		names[name] = true

		column, err := ColumnName(s.Name, name, a.ColumnName, d)
		if err != nil {
			return nil, err
		}
		if other, dup := columns[column]; dup {
			return nil, shape.NewShapeError(s.Name, name, fmt.Sprintf("column %s already used by %s", column, other))
		}
		columns[column] = name

		t.Properties = append(t.Properties, Property{
			Name:        name,
			Column:      column,
			Type:        a.Returns,
			Indexed:     a.Indexed,
			Groups:      append([]string(nil), a.IndexGroups...),
			MaxLength:   a.MaxLength,
			LargeObject: largeObject(a, d),
			FormerName:  a.FormerName,
		})
	}

	return t, nil
}

// largeObject applies the flag to string and bytes properties on dialects
// that support it and ignores it elsewhere.
func largeObject(a shape.Accessor, d Dialect) bool {
	if !a.LargeObject {
		return false
	}
	switch a.Returns.Kind {
	case shape.String:
		return d.SupportsClob()
	case shape.Bytes:
		return d.SupportsBlob()
	}
	return false
}
