package descriptor

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/shape"
)

// Separator is the internal level separator. Generated names must not
// contain it; system tables and columns use it as a prefix.
const Separator = "__"

// System columns carried by every level table.
const (
	ColumnID        = "C__ID"
	ColumnRealClass = "C__REAL_CLASS"
	ColumnRealID    = "C__REAL_ID"
)

// Tables of the universal root and of arrays.
const (
	RootTable  = "C__OBJECT"
	ArrayTable = "C__ARRAY"
)

// Columns of the array table and of the array member tables. Members are
// stored in one table per storage kind, ordered by position.
const (
	ColumnComponentType = "C__COMPONENT_TYPE"
	ColumnLength        = "C__LENGTH"
	ColumnArrayID       = "C__ARRAY_ID"
	ColumnPosition      = "C__POSITION"
	ColumnValue         = "C__VALUE"
	ColumnClass         = "C__CLASS"

	MemberTablePrefix = "C__ARRAY_MEMBER_"
)

// MemberKind returns the kind of the value column holding array elements of
// type elem. Enums are stored as strings and objects by id.
func MemberKind(elem shape.TypeRef) shape.Kind {
	switch elem.Kind {
	case shape.Enum:
		return shape.String
	case shape.Reference, shape.Array:
		return shape.Reference
	}
	return elem.Kind
}

// MemberTable returns the member table of arrays with element type elem.
func MemberTable(elem shape.TypeRef) string {
	if MemberKind(elem) == shape.Reference {
		return MemberTablePrefix + "OBJECT"
	}
	return MemberTablePrefix + strings.ToUpper(MemberKind(elem).String())
}

// Naming is the part of a dialect that shapes identifiers.
type Naming interface {
	MaxNameLength() int
	IsReserved(word string) bool
}

// Sanitize upper-cases a name and replaces characters that are not letters,
// digits or underscores.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Identifier turns a sanitized name into a legal identifier for the
// dialect: reserved words get a trailing underscore and long names are
// shortened with a stable hash suffix.
func Identifier(name string, n Naming) string {
	if n.IsReserved(name) {
		name += "_"
	}
	return Shorten(name, n.MaxNameLength())
}

// Shorten truncates name to max characters, replacing the tail with an
// underscore and eight hex digits of its FNV-1a hash. max <= 0 disables it.
func Shorten(name string, max int) string {
	if max <= 0 || len(name) <= max {
		return name
	}
	h := fnv.New32a()
	h.Write([]byte(name))
	suffix := fmt.Sprintf("%08X", h.Sum32())

	keep := max - len(suffix) - 1
	if keep < 1 {
		return suffix[:max]
	}
	prefix := strings.TrimRight(name[:keep], "_")
	return prefix + "_" + suffix
}

// TableName returns the table of a shape.
func TableName(s shape.Shape, n Naming) (string, error) {
	switch s.Name {
	case shape.Root:
		return RootTable, nil
	case object.ArrayType:
		return ArrayTable, nil
	}

	name := s.TableName
	if name == "" {
		name = Identifier(Sanitize(s.Name), n)
	}
	if strings.Contains(name, Separator) {
		return "", shape.NewShapeError(s.Name, "", fmt.Sprintf("table name %s contains %q", name, Separator))
	}
	return name, nil
}

// ColumnName returns the column of a property.
func ColumnName(typeName, property, override string, n Naming) (string, error) {
	name := override
	if name == "" {
		name = Sanitize(property)
		if strings.Contains(name, Separator) {
			return "", shape.NewShapeError(typeName, property, fmt.Sprintf("column name %s contains %q", name, Separator))
		}
		name = Identifier(name, n)
	}
	if strings.Contains(name, Separator) {
		return "", shape.NewShapeError(typeName, property, fmt.Sprintf("column name %s contains %q", name, Separator))
	}
	return name, nil
}

// IndexName returns the name of a single-column index.
func IndexName(table, column string, n Naming) string {
	return Shorten("IDX_"+table+"_"+column, n.MaxNameLength())
}

// GroupIndexName returns the name of a multi-column index on one table.
func GroupIndexName(table, group string, n Naming) string {
	return Shorten("IDXG_"+table+"_"+Sanitize(group), n.MaxNameLength())
}
