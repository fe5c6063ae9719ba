// Package migrate brings stored level tables in line with the current type
// shapes. A plan diffs the catalog against an inheritance stack, classifies
// every difference exactly once, and is applied in a fixed order that keeps
// as much stored data as the preservation matrix allows.
package migrate

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/catalog"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/inheritance"
	"github.com/redbco/redb-persist/pkg/logger"
	"github.com/redbco/redb-persist/pkg/navigate"
	"github.com/redbco/redb-persist/pkg/shape"
)

// Navigator resolves level rows for per-row reference conversion.
type Navigator interface {
	Concrete(ctx context.Context, ex adapter.Executor, typeName string, id int64) (navigate.Row, bool, error)
	Level(ctx context.Context, ex adapter.Executor, concrete navigate.Row, level string) (int64, bool, error)
}

// Releaser drops the ownership edge a stored reference or array value
// holds before the value is cleared or its column dropped. owner is the
// level row holding the value.
type Releaser interface {
	Release(ctx context.Context, ex adapter.Executor, owner navigate.Row, ref shape.TypeRef, value int64) error
}

// Migrator plans and applies schema changes through one dialect.
type Migrator struct {
	dialect  adapter.Dialect
	catalog  *catalog.Catalog
	registry *shape.Registry
	nav      Navigator
	log      *logger.Logger

	// generatedIDs selects engine generated C__ID columns for new tables.
	generatedIDs bool
}

// New creates a migrator. generatedIDs is false when ids are allocated
// before insert and written explicitly.
func New(d adapter.Dialect, c *catalog.Catalog, registry *shape.Registry, nav Navigator, generatedIDs bool, log *logger.Logger) *Migrator {
	if log == nil {
		log = logger.Discard()
	}
	return &Migrator{
		dialect:      d,
		catalog:      c,
		registry:     registry,
		nav:          nav,
		log:          log,
		generatedIDs: generatedIDs,
	}
}

// level is one existing table of a stack with its stored and current
// columns.
type level struct {
	node    *inheritance.Node
	stored  map[string]catalog.Column
	current map[string]descriptor.Property
}

// Plan diffs the stored tables of a stack against its current shapes.
func (m *Migrator) Plan(ctx context.Context, ex adapter.Executor, stack *inheritance.Stack) (*Plan, error) {
	p := &Plan{
		Type:           stack.Concrete().Name,
		RequiresCommit: m.dialect.Features().CommitAfterDDL,
		stack:          stack,
	}

	var levels []*level
	for _, node := range stack.Nodes() {
		owner, ok, err := m.catalog.TableType(ctx, ex, node.Table)
		if err != nil {
			return nil, err
		}
		if !ok {
			p.NewTables = append(p.NewTables, NewTable{Type: node.Name, Table: node.Table, Supers: parentTables(node)})
			continue
		}
		if owner != node.Name {
			return nil, &MigrationConflictError{Table: node.Table, Reason: fmt.Sprintf("table is stored for type %s, not %s", owner, node.Name)}
		}

		if err := m.planHierarchy(ctx, ex, p, node); err != nil {
			return nil, err
		}

		cols, err := m.catalog.Columns(ctx, ex, node.Table)
		if err != nil {
			return nil, err
		}
		l := &level{node: node, stored: make(map[string]catalog.Column), current: make(map[string]descriptor.Property)}
		for _, c := range cols {
			l.stored[c.Name] = c
		}
		for _, prop := range node.Properties {
			l.current[prop.Column] = prop
		}
		levels = append(levels, l)
	}

	removed := make(map[*level][]catalog.Column)
	added := make(map[*level][]descriptor.Property)
	for _, l := range levels {
		for _, name := range slices.Sorted(maps.Keys(l.stored)) {
			if _, ok := l.current[name]; !ok {
				removed[l] = append(removed[l], l.stored[name])
			}
		}
		for _, prop := range l.node.Properties {
			stored, ok := l.stored[prop.Column]
			if !ok {
				added[l] = append(added[l], prop)
				continue
			}
			if stored.Class != prop.Type.String() {
				change, err := m.typeChange(l.node, stored, prop)
				if err != nil {
					return nil, err
				}
				p.Changes = append(p.Changes, change)
			}
		}
	}

	m.planMoves(p, levels, removed, added)

	for _, l := range levels {
		if err := m.planRenames(p, l, removed, added); err != nil {
			return nil, err
		}
		for _, c := range removed[l] {
			ref, err := c.Type()
			if err != nil {
				ref = shape.TypeRef{}
			}
			p.Changes = append(p.Changes, Change{Kind: Deletion, Type: l.node.Name, Table: l.node.Table, From: c.Name, FromType: ref})
		}
		for _, prop := range added[l] {
			p.Changes = append(p.Changes, Change{Kind: Creation, Type: l.node.Name, Table: l.node.Table, To: prop.Column, ToType: prop.Type, Property: prop})
		}
	}

	if err := m.planIndexes(ctx, ex, p, stack, levels); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Migrator) typeChange(node *inheritance.Node, stored catalog.Column, prop descriptor.Property) (Change, error) {
	from, err := stored.Type()
	if err != nil {
		return Change{}, &MigrationConflictError{Table: node.Table, Reason: fmt.Sprintf("unreadable stored type %q of %s: %v", stored.Class, stored.Name, err)}
	}
	return Change{
		Kind:     TypeChange,
		Type:     node.Name,
		Table:    node.Table,
		From:     stored.Name,
		To:       prop.Column,
		FromType: from,
		ToType:   prop.Type,
		Property: prop,
		Outcome:  Classify(from, prop.Type, m.registry),
	}, nil
}

// planHierarchy compares the stored parent tables with the current ones.
// Empty tables are re-parented; populated ones cannot be.
func (m *Migrator) planHierarchy(ctx context.Context, ex adapter.Executor, p *Plan, node *inheritance.Node) error {
	stored, err := m.catalog.Supers(ctx, ex, node.Table)
	if err != nil {
		return err
	}
	current := parentTables(node)
	if slices.Equal(stored, current) {
		return nil
	}

	var n int64
	if err := ex.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+node.Table).Scan(&n); err != nil {
		return adapter.WrapError(m.dialect.ID(), "count rows", err)
	}
	if n > 0 {
		return &MigrationConflictError{
			Table:  node.Table,
			Reason: fmt.Sprintf("parents changed from %v to %v on a table holding %d rows", stored, current, n),
		}
	}
	if p.Supers == nil {
		p.Supers = make(map[string][]string)
	}
	p.Supers[node.Table] = current
	return nil
}

// planMoves pairs a column removed from one level with a column of the same
// name added to another.
func (m *Migrator) planMoves(p *Plan, levels []*level, removed map[*level][]catalog.Column, added map[*level][]descriptor.Property) {
	for _, from := range levels {
		kept := removed[from][:0:0]
		for _, c := range removed[from] {
			to, prop, ok := takeAdded(levels, from, c.Name, added)
			if !ok {
				kept = append(kept, c)
				continue
			}
			ref, _ := c.Type()
			p.Changes = append(p.Changes, Change{
				Kind:      Move,
				Type:      to.node.Name,
				Table:     to.node.Table,
				FromTable: from.node.Table,
				From:      c.Name,
				To:        prop.Column,
				FromType:  ref,
				ToType:    prop.Type,
				Property:  prop,
			})
		}
		removed[from] = kept
	}
}

func takeAdded(levels []*level, except *level, column string, added map[*level][]descriptor.Property) (*level, descriptor.Property, bool) {
	for _, l := range levels {
		if l == except {
			continue
		}
		for i, prop := range added[l] {
			if prop.Column == column {
				added[l] = slices.Delete(added[l], i, i+1)
				return l, prop, true
			}
		}
	}
	return nil, descriptor.Property{}, false
}

// planRenames pairs removed and added columns of one table: explicit former
// names first, then a unique removed/added pair of the same stored type.
func (m *Migrator) planRenames(p *Plan, l *level, removed map[*level][]catalog.Column, added map[*level][]descriptor.Property) error {
	rename := func(c catalog.Column, prop descriptor.Property) error {
		change := Change{
			Kind:     Rename,
			Type:     l.node.Name,
			Table:    l.node.Table,
			From:     c.Name,
			To:       prop.Column,
			FromType: prop.Type,
			ToType:   prop.Type,
			Property: prop,
			Outcome:  Preserved,
		}
		// A renamed column whose type also changed is converted as part
		// of the rename.
		if c.Class != prop.Type.String() {
			tc, err := m.typeChange(l.node, c, prop)
			if err != nil {
				return err
			}
			change.FromType = tc.FromType
			change.Outcome = tc.Outcome
		}
		p.Changes = append(p.Changes, change)
		return nil
	}

	for _, prop := range slices.Clone(added[l]) {
		if prop.FormerName == "" {
			continue
		}
		former, err := descriptor.ColumnName(l.node.Name, prop.FormerName, "", m.dialect)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(removed[l], func(c catalog.Column) bool { return c.Name == former })
		if i < 0 {
			continue
		}
		if err := rename(removed[l][i], prop); err != nil {
			return err
		}
		removed[l] = slices.Delete(removed[l], i, i+1)
		added[l] = slices.DeleteFunc(added[l], func(a descriptor.Property) bool { return a.Name == prop.Name })
	}

	byClass := make(map[string][]catalog.Column)
	for _, c := range removed[l] {
		byClass[c.Class] = append(byClass[c.Class], c)
	}
	for _, prop := range slices.Clone(added[l]) {
		class := prop.Type.String()
		gone := byClass[class]
		if len(gone) == 0 {
			continue
		}
		candidates := 0
		for _, a := range added[l] {
			if a.Type.String() == class {
				candidates++
			}
		}
		if len(gone) > 1 || candidates > 1 {
			return &MigrationConflictError{
				Table:  l.node.Table,
				Reason: fmt.Sprintf("ambiguous rename: %d removed and %d added columns of type %s", len(gone), candidates, class),
			}
		}
		if err := rename(gone[0], prop); err != nil {
			return err
		}
		delete(byClass, class)
		removed[l] = slices.DeleteFunc(removed[l], func(c catalog.Column) bool { return c.Name == gone[0].Name })
		added[l] = slices.DeleteFunc(added[l], func(a descriptor.Property) bool { return a.Name == prop.Name })
	}
	return nil
}

// planIndexes drops stored indices that are no longer wanted or that cover
// a column about to be dropped, renamed or converted, and creates wanted
// indices that are missing or were dropped.
func (m *Migrator) planIndexes(ctx context.Context, ex adapter.Executor, p *Plan, stack *inheritance.Stack, levels []*level) error {
	all := descriptor.Indexes(stack.Levels(), m.dialect)

	touched := make(map[string]map[string]bool)
	touch := func(table, column string) {
		if touched[table] == nil {
			touched[table] = make(map[string]bool)
		}
		touched[table][column] = true
	}
	for _, c := range p.Changes {
		switch c.Kind {
		case Deletion, Rename, TypeChange:
			touch(c.Table, c.From)
		case Move:
			touch(c.FromTable, c.From)
		}
	}

	for _, l := range levels {
		table := l.node.Table
		stored, err := m.catalog.Indexes(ctx, ex, table)
		if err != nil {
			return err
		}
		wanted := descriptor.TableIndexes(all, table)

		storedKeys := make(map[string]bool)
		for _, idx := range stored {
			storedKeys[indexKey(idx)] = true
		}
		wantedKeys := make(map[string]bool)
		for _, idx := range wanted {
			wantedKeys[indexKey(idx)] = true
		}

		dropped := make(map[string]bool)
		for _, idx := range stored {
			stale := !wantedKeys[indexKey(idx)] || slices.ContainsFunc(idx.Columns, func(c string) bool { return touched[table][c] })
			if stale {
				dropped[idx.Name] = true
				p.Changes = append(p.Changes, Change{Kind: IndexChange, Type: l.node.Name, Table: table, Index: idx, Drop: true})
			}
		}
		for _, idx := range wanted {
			if !storedKeys[indexKey(idx)] || dropped[idx.Name] {
				p.Changes = append(p.Changes, Change{Kind: IndexChange, Type: l.node.Name, Table: table, Index: idx})
			}
		}
	}
	return nil
}

// indexKey identifies an index by name and column set. Column order is not
// stored, so it does not take part.
func indexKey(idx descriptor.Index) string {
	cols := slices.Sorted(slices.Values(idx.Columns))
	key := idx.Name
	for _, c := range cols {
		key += "," + c
	}
	return key
}

func parentTables(node *inheritance.Node) []string {
	out := make([]string, len(node.Parents))
	for i, parent := range node.Parents {
		out[i] = parent.Table
	}
	slices.Sort(out)
	return out
}
