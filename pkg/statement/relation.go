package statement

// Column is a column of an aliased table.
type Column struct {
	Alias string
	Name  string
}

func (c Column) String() string {
	if c.Alias == "" {
		return c.Name
	}
	return c.Alias + "." + c.Name
}

// Relation is one equality edge of a statement: a column equal to another
// column, or to a bound literal. It expresses inheritance links, type-tag
// predicates and has-a lookups alike.
type Relation struct {
	Left  Column
	Right *Column
	Value any
}

// Columns relates two columns.
func Columns(left, right Column) Relation {
	return Relation{Left: left, Right: &right}
}

// Literal relates a column to a bound value.
func Literal(left Column, v any) Relation {
	return Relation{Left: left, Value: v}
}

// Render returns the predicate with a '?' placeholder for literals.
func (r Relation) Render() (string, []any) {
	if r.Right != nil {
		return r.Left.String() + " = " + r.Right.String(), nil
	}
	return r.Left.String() + " = ?", []any{r.Value}
}
