// Package clause holds the predicate tree passed to searches, counts and
// aggregates. Clauses are plain values and stay unbound until a statement
// generator resolves their fields against a type.
package clause

import "github.com/redbco/redb-persist/pkg/object"

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLike
	OpIn
	OpIsNull
	OpNotNull
)

var opSQL = map[Op]string{
	OpEq:      "=",
	OpNe:      "<>",
	OpLt:      "<",
	OpLe:      "<=",
	OpGt:      ">",
	OpGe:      ">=",
	OpLike:    "LIKE",
	OpIn:      "IN",
	OpIsNull:  "IS NULL",
	OpNotNull: "IS NOT NULL",
}

// SQL returns the operator keyword.
func (o Op) SQL() string { return opSQL[o] }

// Clause is one node of the predicate tree.
type Clause interface {
	clause()
}

// Comparison compares a property with a literal, a list of literals or a
// subquery. Object values compare by stored identity.
type Comparison struct {
	Field  string
	Op     Op
	Value  any
	Values []any
	Sub    *Subquery
}

// Subquery selects ids of a referenced type.
type Subquery struct {
	Type    string
	Clauses []Clause
}

// Conjunction holds clauses that must all match.
type Conjunction []Clause

// Disjunction holds clauses of which one must match.
type Disjunction []Clause

// Negation inverts a clause.
type Negation struct {
	Clause Clause
}

// Order sorts results by a property.
type Order struct {
	Field string
	Desc  bool
}

// Limit caps the number of results.
type Limit int64

// Offset skips leading results.
type Offset int64

// Example matches objects whose set properties equal those of a prototype.
// Its type also narrows the search when it is more specific than the
// searched type.
type Example struct {
	Object *object.Object
}

func (Comparison) clause() {}
func (Conjunction) clause() {}
func (Disjunction) clause() {}
func (Negation) clause()    {}
func (Order) clause()       {}
func (Limit) clause()       {}
func (Offset) clause()      {}
func (Example) clause()     {}

func compare(field string, op Op, v any) Comparison {
	return Comparison{Field: field, Op: op, Value: v}
}

// Equal matches field = v. A nil v matches NULL.
func Equal(field string, v any) Clause {
	if v == nil {
		return IsNull(field)
	}
	return compare(field, OpEq, v)
}

// NotEqual matches field <> v. A nil v matches NOT NULL.
func NotEqual(field string, v any) Clause {
	if v == nil {
		return NotNull(field)
	}
	return compare(field, OpNe, v)
}

// Less matches field < v.
func Less(field string, v any) Clause { return compare(field, OpLt, v) }

// LessOrEqual matches field <= v.
func LessOrEqual(field string, v any) Clause { return compare(field, OpLe, v) }

// Greater matches field > v.
func Greater(field string, v any) Clause { return compare(field, OpGt, v) }

// GreaterOrEqual matches field >= v.
func GreaterOrEqual(field string, v any) Clause { return compare(field, OpGe, v) }

// Like matches field LIKE pattern.
func Like(field, pattern string) Clause { return compare(field, OpLike, pattern) }

// In matches field IN (values...). An empty list matches nothing.
func In(field string, values ...any) Clause {
	return Comparison{Field: field, Op: OpIn, Values: values}
}

// IsNull matches rows where field is NULL.
func IsNull(field string) Clause { return Comparison{Field: field, Op: OpIsNull} }

// NotNull matches rows where field is set.
func NotNull(field string) Clause { return Comparison{Field: field, Op: OpNotNull} }

// Sub matches rows whose reference property points at an object of the
// given type matching clauses.
func Sub(field, typeName string, clauses ...Clause) Clause {
	return Comparison{Field: field, Op: OpIn, Sub: &Subquery{Type: typeName, Clauses: clauses}}
}

// And joins clauses with AND.
func And(clauses ...Clause) Clause { return Conjunction(clauses) }

// Or joins clauses with OR.
func Or(clauses ...Clause) Clause { return Disjunction(clauses) }

// Not negates a clause.
func Not(c Clause) Clause { return Negation{Clause: c} }

// Asc orders ascending by field.
func Asc(field string) Clause { return Order{Field: field} }

// Desc orders descending by field.
func Desc(field string) Clause { return Order{Field: field, Desc: true} }

// ByExample matches objects by a prototype.
func ByExample(o *object.Object) Clause { return Example{Object: o} }

// Split separates predicates from ordering and paging. The last Limit and
// Offset win; a negative limit means none.
func Split(clauses []Clause) (where []Clause, orders []Order, limit, offset int64) {
	limit = -1
	for _, c := range clauses {
		switch c := c.(type) {
		case nil:
		case Order:
			orders = append(orders, c)
		case Limit:
			limit = int64(c)
		case Offset:
			offset = int64(c)
		default:
			where = append(where, c)
		}
	}
	return where, orders, limit, offset
}

// Fields returns the property names referenced by predicates and orders,
// including set example properties, in first-seen order. Subquery clauses
// belong to their own type and are not included.
func Fields(clauses []Clause) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(f string) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}

	var walk func(c Clause)
	walk = func(c Clause) {
		switch c := c.(type) {
		case Comparison:
			add(c.Field)
		case Conjunction:
			for _, x := range c {
				walk(x)
			}
		case Disjunction:
			for _, x := range c {
				walk(x)
			}
		case Negation:
			walk(c.Clause)
		case Order:
			add(c.Field)
		case Example:
			if c.Object != nil {
				for _, name := range c.Object.Names() {
					add(name)
				}
			}
		}
	}
	for _, c := range clauses {
		walk(c)
	}
	return out
}

// Examples returns the example clauses at any depth.
func Examples(clauses []Clause) []Example {
	var out []Example
	var walk func(c Clause)
	walk = func(c Clause) {
		switch c := c.(type) {
		case Example:
			out = append(out, c)
		case Conjunction:
			for _, x := range c {
				walk(x)
			}
		case Disjunction:
			for _, x := range c {
				walk(x)
			}
		case Negation:
			walk(c.Clause)
		}
	}
	for _, c := range clauses {
		walk(c)
	}
	return out
}
