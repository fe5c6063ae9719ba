package shape

import (
	"fmt"
	"strings"
)

// Kind is the semantic type of a property value.
type Kind int

const (
	Invalid Kind = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	String
	Enum
	Time
	Bytes
	Reference
	Array
)

var kindNames = map[Kind]string{
	Bool:    "bool",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
	Float32: "float32",
	Float64: "float64",
	String:  "string",
	Enum:    "enum",
	Time:    "time",
	Bytes:   "bytes",
}

var primitiveByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, n := range kindNames {
		if k != Enum {
			m[n] = k
		}
	}
	return m
}()

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	switch k {
	case Reference:
		return "reference"
	case Array:
		return "array"
	}
	return "invalid"
}

// IsInteger reports whether the kind is one of the signed integer kinds.
func (k Kind) IsInteger() bool {
	return k == Int8 || k == Int16 || k == Int32 || k == Int64
}

// IsFloat reports whether the kind is a floating point kind.
func (k Kind) IsFloat() bool {
	return k == Float32 || k == Float64
}

// IsNumeric reports whether the kind holds numbers.
func (k Kind) IsNumeric() bool {
	return k.IsInteger() || k.IsFloat()
}

// Width returns the storage size in bytes of numeric kinds, 0 otherwise.
func (k Kind) Width() int {
	switch k {
	case Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	}
	return 0
}

// TypeRef is a declared property type. Name carries the enum or referenced
// type name; Elem carries the element type of arrays.
type TypeRef struct {
	Kind Kind
	Name string
	Elem *TypeRef
}

// Of returns a TypeRef for a primitive kind.
func Of(k Kind) TypeRef { return TypeRef{Kind: k} }

// Ref returns a reference TypeRef to the named type.
func Ref(name string) TypeRef { return TypeRef{Kind: Reference, Name: name} }

// EnumOf returns an enum TypeRef for the named enum.
func EnumOf(name string) TypeRef { return TypeRef{Kind: Enum, Name: name} }

// ArrayOf returns an array TypeRef with the given element type.
func ArrayOf(elem TypeRef) TypeRef {
	e := elem
	return TypeRef{Kind: Array, Elem: &e}
}

// IsObject reports whether values of this type are stored as rows of their
// own and referenced by id.
func (t TypeRef) IsObject() bool {
	return t.Kind == Reference || t.Kind == Array
}

// Equal compares two type references structurally.
func (t TypeRef) Equal(o TypeRef) bool {
	if t.Kind != o.Kind || t.Name != o.Name {
		return false
	}
	if t.Elem == nil || o.Elem == nil {
		return t.Elem == nil && o.Elem == nil
	}
	return t.Elem.Equal(*o.Elem)
}

// String renders the stable name stored in the type catalog, e.g. "int32",
// "enum:Color", "ref:Person" or "[]ref:Person".
func (t TypeRef) String() string {
	switch t.Kind {
	case Enum:
		return "enum:" + t.Name
	case Reference:
		return "ref:" + t.Name
	case Array:
		if t.Elem == nil {
			return "[]invalid"
		}
		return "[]" + t.Elem.String()
	default:
		return t.Kind.String()
	}
}

// ParseTypeRef is the inverse of TypeRef.String. A bare name that is not a
// primitive kind is read as a reference to that type.
func ParseTypeRef(s string) (TypeRef, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return TypeRef{}, fmt.Errorf("empty type")
	case strings.HasPrefix(s, "[]"):
		elem, err := ParseTypeRef(s[2:])
		if err != nil {
			return TypeRef{}, err
		}
		return ArrayOf(elem), nil
	case strings.HasPrefix(s, "enum:"):
		name := strings.TrimPrefix(s, "enum:")
		if name == "" {
			return TypeRef{}, fmt.Errorf("enum type without name")
		}
		return EnumOf(name), nil
	case strings.HasPrefix(s, "ref:"):
		name := strings.TrimPrefix(s, "ref:")
		if name == "" {
			return TypeRef{}, fmt.Errorf("reference type without name")
		}
		return Ref(name), nil
	}
	if k, ok := primitiveByName[s]; ok {
		return Of(k), nil
	}
	return Ref(s), nil
}
