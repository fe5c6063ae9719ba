package shape

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Root is the universal root type every class ultimately extends.
const Root = "Object"

// Accessor is one getter/setter pair of a type together with its mapping
// annotations.
type Accessor struct {
	Getter  string
	Setter  string
	Returns TypeRef
	Accepts TypeRef

	Transient   bool
	Indexed     bool
	IndexGroups []string
	MaxLength   int
	LargeObject bool
	ColumnName  string
	FormerName  string
}

// PropertyName derives the property name from the getter: GetFirstName and
// IsActive give firstName and active. The Is prefix is only accepted for
// boolean getters.
func (a Accessor) PropertyName() (string, bool) {
	var rest string
	switch {
	case strings.HasPrefix(a.Getter, "Get") && len(a.Getter) > 3:
		rest = a.Getter[3:]
	case strings.HasPrefix(a.Getter, "Is") && len(a.Getter) > 2 && a.Returns.Kind == Bool:
		rest = a.Getter[2:]
	default:
		return "", false
	}
	r, size := utf8.DecodeRuneInString(rest)
	if !unicode.IsUpper(r) {
		return "", false
	}
	return string(unicode.ToLower(r)) + rest[size:], true
}

// Option configures an accessor built with Property.
type Option func(*Accessor)

// Property builds the canonical accessor pair for a property name.
func Property(name string, t TypeRef, opts ...Option) Accessor {
	exported := exportName(name)
	getter := "Get" + exported
	if t.Kind == Bool {
		getter = "Is" + exported
	}
	a := Accessor{
		Getter:  getter,
		Setter:  "Set" + exported,
		Returns: t,
		Accepts: t,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

func exportName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToUpper(r)) + name[size:]
}

// Transient excludes the property from persistence.
func Transient() Option { return func(a *Accessor) { a.Transient = true } }

// Indexed creates a single-column index on the property.
func Indexed() Option { return func(a *Accessor) { a.Indexed = true } }

// InGroup adds the property to a named multi-column index.
func InGroup(groups ...string) Option {
	return func(a *Accessor) { a.IndexGroups = append(a.IndexGroups, groups...) }
}

// MaxLength sets the varchar length of string properties.
func MaxLength(n int) Option { return func(a *Accessor) { a.MaxLength = n } }

// AsLargeObject stores string or bytes properties as CLOB/BLOB.
func AsLargeObject() Option { return func(a *Accessor) { a.LargeObject = true } }

// Column overrides the generated column name.
func Column(name string) Option { return func(a *Accessor) { a.ColumnName = name } }

// RenamedFrom records the previous property name so schema migration keeps
// the column data.
func RenamedFrom(name string) Option { return func(a *Accessor) { a.FormerName = name } }

// Shape describes a persistable type: its position in the type graph and
// its accessor pairs in declaration order.
type Shape struct {
	Name       string
	Super      string
	Interfaces []string
	Interface  bool
	TableName  string
	Accessors  []Accessor
}

// Class builds a class shape.
func Class(name, super string, accessors ...Accessor) Shape {
	return Shape{Name: name, Super: super, Accessors: accessors}
}

// InterfaceOf builds an interface shape extending the given interfaces.
func InterfaceOf(name string, extends []string, accessors ...Accessor) Shape {
	return Shape{Name: name, Interface: true, Interfaces: extends, Accessors: accessors}
}

// Implements returns a copy of the shape implementing the given interfaces.
func (s Shape) Implements(interfaces ...string) Shape {
	s.Interfaces = append(append([]string(nil), s.Interfaces...), interfaces...)
	return s
}

// WithTable returns a copy of the shape with an explicit table name.
func (s Shape) WithTable(table string) Shape {
	s.TableName = table
	return s
}

// Parents lists direct parents in resolution order: the main superclass
// first, then interfaces in declaration order. Classes without a declared
// superclass extend Root; interfaces and Root itself have no implicit parent.
func (s Shape) Parents() []string {
	var out []string
	if !s.Interface && s.Name != Root {
		super := s.Super
		if super == "" {
			super = Root
		}
		out = append(out, super)
	}
	return append(out, s.Interfaces...)
}
