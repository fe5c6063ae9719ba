package statement

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/clause"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/inheritance"
	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/shape"
)

// compiler renders one top-level statement. Nested subqueries share its
// alias counter and argument list so aliases stay unique and arguments stay
// in textual order.
type compiler struct {
	g    *Generator
	next int
	args []any
	seen map[*object.Object]bool
}

func (g *Generator) compiler() *compiler {
	return &compiler{g: g, seen: make(map[*object.Object]bool)}
}

func (c *compiler) statement(sql string) Statement {
	return Statement{SQL: adapter.Rebind(c.g.dialect, sql), Args: c.args}
}

// scope is one joined stack with its alias range.
type scope struct {
	stack *inheritance.Stack
	join  *inheritance.JoinSet
	base  int
}

func (s *scope) alias(n *inheritance.Node) string {
	i, _ := s.join.Index(n)
	return "T" + strconv.Itoa(s.base+i)
}

func (s *scope) column(field string) (Column, descriptor.Property, error) {
	n, p, ok := s.stack.Declaring(field)
	if !ok {
		return Column{}, descriptor.Property{}, fmt.Errorf("%w: %s has no property %q", ErrUnknownProperty, s.stack.Concrete().Name, field)
	}
	if !s.join.Contains(n) {
		return Column{}, descriptor.Property{}, fmt.Errorf("%w: level %s of %s is not joined", inheritance.ErrInconsistent, n.Name, field)
	}
	return Column{Alias: s.alias(n), Name: p.Column}, p, nil
}

// narrowest returns whichever of two types lies below the other.
func (c *compiler) narrowest(a, b string) (string, error) {
	if a == b || b == "" {
		return a, nil
	}
	sb, err := c.g.stacks.Stack(b)
	if err != nil {
		return "", err
	}
	if sb.Has(a) {
		return b, nil
	}
	sa, err := c.g.stacks.Stack(a)
	if err != nil {
		return "", err
	}
	if sa.Has(b) {
		return a, nil
	}
	return "", fmt.Errorf("%w: %s and %s", ErrIncompatibleType, a, b)
}

// prepare selects the stack and the joined levels for a selection type.
// The stack is built for the narrowest of the selection, narrow and example
// types. Levels are counted by the fields referenced in where and extra;
// force joins the concrete level when the stack is narrower than the
// selection.
func (c *compiler) prepare(selection, narrow string, where []clause.Clause, extra []string, force bool) (*scope, error) {
	stackType, err := c.narrowest(selection, narrow)
	if err != nil {
		return nil, err
	}
	for _, ex := range clause.Examples(where) {
		if ex.Object == nil {
			continue
		}
		if stackType, err = c.narrowest(stackType, ex.Object.Type()); err != nil {
			return nil, err
		}
	}

	stack, err := c.g.stacks.Stack(stackType)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	fields := append(clause.Fields(where), extra...)
	for _, f := range fields {
		n, _, ok := stack.Declaring(f)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no property %q", ErrUnknownProperty, stackType, f)
		}
		counts[n.Name]++
	}
	if force && stackType != selection {
		counts[stack.Concrete().Name]++
	}

	count := inheritance.CountMap(counts)
	paths := inheritance.PruneInheritance(inheritance.PrunePaths(stack.Paths(), count), selection, count)
	js, err := inheritance.Join(stack, paths, selection)
	if err != nil {
		return nil, err
	}

	sc := &scope{stack: stack, join: js, base: c.next}
	c.next += len(js.Nodes())
	return sc, nil
}

// body renders " FROM ... [WHERE ...]".
func (c *compiler) body(sc *scope, where []clause.Clause) (string, error) {
	var b strings.Builder
	b.WriteString(" FROM ")

	nodes := sc.join.Nodes()
	b.WriteString(nodes[0].Table + " " + sc.alias(nodes[0]))
	for i, l := range sc.join.Links() {
		n := nodes[i+1]
		b.WriteString(" INNER JOIN " + n.Table + " " + sc.alias(n) + " ON ")

		sub, super := sc.alias(l.Sub), sc.alias(l.Super)
		link, _ := Columns(Column{Alias: sub, Name: descriptor.ColumnID}, Column{Alias: super, Name: descriptor.ColumnRealID}).Render()
		tag, args := Literal(Column{Alias: super, Name: descriptor.ColumnRealClass}, l.Sub.Name).Render()
		b.WriteString(link + " AND " + tag)
		c.args = append(c.args, args...)
	}

	if len(where) > 0 {
		cond, err := c.predicate(sc, clause.Conjunction(where))
		if err != nil {
			return "", err
		}
		b.WriteString(" WHERE " + cond)
	}
	return b.String(), nil
}

func (c *compiler) predicate(sc *scope, cl clause.Clause) (string, error) {
	switch cl := cl.(type) {
	case clause.Comparison:
		return c.comparison(sc, cl)
	case clause.Conjunction:
		return c.junction(sc, cl, " AND ", "1 = 1")
	case clause.Disjunction:
		return c.junction(sc, cl, " OR ", "1 = 0")
	case clause.Negation:
		inner, err := c.predicate(sc, cl.Clause)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil
	case clause.Example:
		return c.example(sc, cl.Object)
	}
	return "", fmt.Errorf("%w: %T cannot be nested", ErrInvalidClause, cl)
}

func (c *compiler) junction(sc *scope, clauses []clause.Clause, sep, empty string) (string, error) {
	if len(clauses) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(clauses))
	for _, x := range clauses {
		p, err := c.predicate(sc, x)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (c *compiler) comparison(sc *scope, cmp clause.Comparison) (string, error) {
	col, prop, err := sc.column(cmp.Field)
	if err != nil {
		return "", err
	}

	if cmp.Sub != nil {
		return c.subquery(col, prop, cmp.Sub)
	}

	switch cmp.Op {
	case clause.OpIsNull, clause.OpNotNull:
		return col.String() + " " + cmp.Op.SQL(), nil
	case clause.OpIn:
		if len(cmp.Values) == 0 {
			return "1 = 0", nil
		}
		if prop.IsObject() {
			parts := make([]clause.Clause, len(cmp.Values))
			for i, v := range cmp.Values {
				parts[i] = clause.Comparison{Field: cmp.Field, Op: clause.OpEq, Value: v}
			}
			return c.junction(sc, parts, " OR ", "1 = 0")
		}
		for _, v := range cmp.Values {
			arg, err := c.g.dialect.Encode(prop.Kind(), v)
			if err != nil {
				return "", fmt.Errorf("failed to encode %s: %w", cmp.Field, err)
			}
			c.args = append(c.args, arg)
		}
		return col.String() + " IN (" + marks(len(cmp.Values)) + ")", nil
	}

	if prop.IsObject() {
		var o *object.Object
		if cmp.Value != nil {
			var ok bool
			if o, ok = cmp.Value.(*object.Object); !ok {
				return "", fmt.Errorf("%w: %s compares with %T, not an object", ErrInvalidClause, cmp.Field, cmp.Value)
			}
		}
		return c.identity(col, prop, cmp.Op, o)
	}

	kind := prop.Kind()
	if cmp.Op == clause.OpLike {
		kind = shape.String
	}
	arg, err := c.g.dialect.Encode(kind, cmp.Value)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", cmp.Field, err)
	}
	c.args = append(c.args, arg)
	return col.String() + " " + cmp.Op.SQL() + " ?", nil
}

// levelType is the type whose table ids a reference or array column holds.
func levelType(p descriptor.Property) string {
	if p.Kind() == shape.Array {
		return object.ArrayType
	}
	return p.Type.Name
}

// identity compares a reference column with a stored object. Objects whose
// type is narrower than the declared type are matched through a subquery
// mapping their concrete id to the declared level's id.
func (c *compiler) identity(col Column, prop descriptor.Property, op clause.Op, o *object.Object) (string, error) {
	if op != clause.OpEq && op != clause.OpNe {
		return "", fmt.Errorf("%w: objects only compare for equality", ErrInvalidClause)
	}
	if o == nil {
		if op == clause.OpEq {
			return col.String() + " IS NULL", nil
		}
		return col.String() + " IS NOT NULL", nil
	}

	id, ok := c.g.ids.ID(o)
	if !ok {
		if op == clause.OpEq {
			return "1 = 0", nil
		}
		return col.String() + " IS NOT NULL", nil
	}

	level := levelType(prop)
	if o.Type() == level {
		c.args = append(c.args, id)
		return col.String() + " " + op.SQL() + " ?", nil
	}

	sc, err := c.prepare(level, o.Type(), nil, nil, true)
	if err != nil {
		return "", err
	}
	body, err := c.body(sc, nil)
	if err != nil {
		return "", err
	}
	concrete := Column{Alias: sc.alias(sc.stack.Concrete()), Name: descriptor.ColumnID}
	c.args = append(c.args, id)

	in := " IN "
	if op == clause.OpNe {
		in = " NOT IN "
	}
	return col.String() + in + "(SELECT " + sc.alias(sc.join.Nodes()[0]) + "." + descriptor.ColumnID +
		body + " WHERE " + concrete.String() + " = ?)", nil
}

// subquery compiles a reference property against a clause set over the
// referenced type.
func (c *compiler) subquery(col Column, prop descriptor.Property, sub *clause.Subquery) (string, error) {
	if prop.Kind() != shape.Reference {
		return "", fmt.Errorf("%w: subquery on %s property", ErrInvalidClause, prop.Kind())
	}
	where, _, _, _ := clause.Split(sub.Clauses)
	return c.selectIn(col, levelType(prop), sub.Type, where, true)
}

func (c *compiler) selectIn(col Column, level, narrow string, where []clause.Clause, force bool) (string, error) {
	sc, err := c.prepare(level, narrow, where, nil, force)
	if err != nil {
		return "", err
	}
	body, err := c.body(sc, where)
	if err != nil {
		return "", err
	}
	return col.String() + " IN (SELECT " + sc.alias(sc.join.Nodes()[0]) + "." + descriptor.ColumnID + body + ")", nil
}

// example matches every set property of a prototype. Stored sub-objects
// compare by identity, unsaved ones recursively by example. A prototype
// met again further down is not expanded twice.
func (c *compiler) example(sc *scope, o *object.Object) (string, error) {
	if o == nil || c.seen[o] {
		return "1 = 1", nil
	}
	c.seen[o] = true
	defer delete(c.seen, o)

	var parts []string
	for _, name := range o.Names() {
		col, prop, err := sc.column(name)
		if err != nil {
			return "", err
		}
		v := o.Value(name)

		if !prop.IsObject() {
			arg, err := c.g.dialect.Encode(prop.Kind(), v)
			if err != nil {
				return "", fmt.Errorf("failed to encode %s: %w", name, err)
			}
			c.args = append(c.args, arg)
			parts = append(parts, col.String()+" = ?")
			continue
		}

		ref, ok := v.(*object.Object)
		if !ok {
			return "", fmt.Errorf("%w: %s holds %T, not an object", ErrInvalidClause, name, v)
		}
		if _, stored := c.g.ids.ID(ref); stored {
			p, err := c.identity(col, prop, clause.OpEq, ref)
			if err != nil {
				return "", err
			}
			parts = append(parts, p)
			continue
		}
		if ref.IsArray() || c.seen[ref] {
			continue
		}
		p, err := c.selectIn(col, levelType(prop), ref.Type(), []clause.Clause{clause.Example{Object: ref}}, false)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}

	if len(parts) == 0 {
		return "1 = 1", nil
	}
	return "(" + strings.Join(parts, " AND ") + ")", nil
}
