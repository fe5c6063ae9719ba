package migrate

import (
	"fmt"
	"maps"
	"slices"

	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/inheritance"
	"github.com/redbco/redb-persist/pkg/shape"
)

// ChangeKind classifies one difference between the stored and the current
// shape of a level table. Lower values win when a property could match more
// than one kind.
type ChangeKind int

const (
	Deletion ChangeKind = iota
	Creation
	Rename
	Move
	TypeChange
	IndexChange
)

func (k ChangeKind) String() string {
	switch k {
	case Deletion:
		return "deletion"
	case Creation:
		return "creation"
	case Rename:
		return "rename"
	case Move:
		return "move"
	case TypeChange:
		return "type-change"
	case IndexChange:
		return "index-change"
	}
	return "unknown"
}

// Change is one classified difference. For moves FromTable is the table
// the column leaves; for renames From is the stored column name. For index
// changes Drop tells whether the index is removed or created.
type Change struct {
	Kind      ChangeKind
	Type      string
	Table     string
	FromTable string
	From      string
	To        string
	FromType  shape.TypeRef
	ToType    shape.TypeRef
	Property  descriptor.Property
	Outcome   Outcome
	Index     descriptor.Index
	Drop      bool
}

func (c Change) String() string {
	switch c.Kind {
	case Deletion:
		return fmt.Sprintf("drop column %s.%s (%s)", c.Table, c.From, c.FromType)
	case Creation:
		return fmt.Sprintf("add column %s.%s (%s)", c.Table, c.To, c.ToType)
	case Rename:
		if !c.FromType.Equal(c.ToType) {
			return fmt.Sprintf("rename column %s.%s to %s, changing %s to %s (%s)", c.Table, c.From, c.To, c.FromType, c.ToType, c.Outcome)
		}
		return fmt.Sprintf("rename column %s.%s to %s", c.Table, c.From, c.To)
	case Move:
		return fmt.Sprintf("move column %s from %s to %s (data cleared)", c.To, c.FromTable, c.Table)
	case TypeChange:
		return fmt.Sprintf("change column %s.%s from %s to %s (%s)", c.Table, c.To, c.FromType, c.ToType, c.Outcome)
	case IndexChange:
		if c.Drop {
			return fmt.Sprintf("drop index %s on %s", c.Index.Name, c.Table)
		}
		return fmt.Sprintf("create index %s on %s", c.Index.Name, c.Table)
	}
	return "unknown change"
}

// NewTable is a level table that does not exist yet.
type NewTable struct {
	Type   string
	Table  string
	Supers []string
}

// Plan is the set of changes bringing the tables of one stack in line with
// the current shapes.
type Plan struct {
	Type      string
	NewTables []NewTable
	Changes   []Change

	// Supers holds the new parent tables of empty tables whose hierarchy
	// changed.
	Supers map[string][]string

	// RequiresCommit is set when the engine commits each DDL statement, so
	// a failing plan may leave earlier steps applied.
	RequiresCommit bool

	stack *inheritance.Stack
}

// Empty reports whether the plan changes nothing.
func (p *Plan) Empty() bool {
	return len(p.NewTables) == 0 && len(p.Changes) == 0 && len(p.Supers) == 0
}

// Alters reports whether the plan changes existing tables.
func (p *Plan) Alters() bool {
	return len(p.Changes) > 0 || len(p.Supers) > 0
}

// Of returns the changes of one kind in plan order.
func (p *Plan) Of(kind ChangeKind) []Change {
	var out []Change
	for _, c := range p.Changes {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Describe lists the plan's steps in apply order.
func (p *Plan) Describe() []string {
	var out []string
	for _, t := range p.NewTables {
		out = append(out, fmt.Sprintf("create table %s for %s", t.Table, t.Type))
	}
	for _, step := range p.steps() {
		out = append(out, step.String())
	}
	for _, table := range slices.Sorted(maps.Keys(p.Supers)) {
		out = append(out, fmt.Sprintf("set parents of %s to %v", table, p.Supers[table]))
	}
	return out
}

// steps orders the changes for application: dropped indices, deletions,
// moves, renames, type changes, creations, then created indices.
func (p *Plan) steps() []Change {
	var drops, creates []Change
	for _, c := range p.Of(IndexChange) {
		if c.Drop {
			drops = append(drops, c)
		} else {
			creates = append(creates, c)
		}
	}

	out := drops
	for _, kind := range []ChangeKind{Deletion, Move, Rename, TypeChange, Creation} {
		out = append(out, p.Of(kind)...)
	}
	return append(out, creates...)
}
