package descriptor

import (
	"slices"
)

// Index is a named index on one level table.
type Index struct {
	Name    string
	Table   string
	Columns []string
}

// Indexes returns the indices of a chain of levels. Single-column indices
// are emitted per property. Multi-index groups are collected over all
// levels first and then emitted once per level table holding members, with
// columns in level then declaration order.
func Indexes(levels []*Type, n Naming) []Index {
	var out []Index
	seen := make(map[string]bool)

	type member struct {
		table  string
		column string
	}
	groups := make(map[string][]member)
	var groupOrder []string

	for _, t := range levels {
		for _, p := range t.Properties {
			if p.Indexed {
				idx := Index{Name: IndexName(t.Table, p.Column, n), Table: t.Table, Columns: []string{p.Column}}
				if !seen[idx.Name] {
					seen[idx.Name] = true
					out = append(out, idx)
				}
			}
			for _, g := range p.Groups {
				if _, ok := groups[g]; !ok {
					groupOrder = append(groupOrder, g)
				}
				groups[g] = append(groups[g], member{table: t.Table, column: p.Column})
			}
		}
	}

	slices.Sort(groupOrder)
	for _, g := range groupOrder {
		byTable := make(map[string][]string)
		var tables []string
		for _, m := range groups[g] {
			if _, ok := byTable[m.table]; !ok {
				tables = append(tables, m.table)
			}
			byTable[m.table] = append(byTable[m.table], m.column)
		}
		for _, table := range tables {
			idx := Index{Name: GroupIndexName(table, g, n), Table: table, Columns: byTable[table]}
			if !seen[idx.Name] {
				seen[idx.Name] = true
				out = append(out, idx)
			}
		}
	}

	return out
}

// TableIndexes filters indices to one table.
func TableIndexes(indexes []Index, table string) []Index {
	var out []Index
	for _, idx := range indexes {
		if idx.Table == table {
			out = append(out, idx)
		}
	}
	return out
}
