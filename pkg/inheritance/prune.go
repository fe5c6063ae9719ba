package inheritance

import "github.com/redbco/redb-persist/pkg/shape"

// Counter returns the number of properties of a node that a statement
// references: clause fields, projected columns or set example values.
type Counter func(*Node) int

// CountMap returns a Counter backed by counts per type name.
func CountMap(counts map[string]int) Counter {
	return func(n *Node) int { return counts[n.Name] }
}

// PrunePaths trims trailing nodes without counted properties from each path,
// never trimming the universal root or the first node. A path left with one
// node is dropped while other paths remain.
func PrunePaths(paths []Path, count Counter) []Path {
	out := make([]Path, 0, len(paths))
	for _, p := range paths {
		p = append(Path(nil), p...)
		for t := len(p) - 1; t > 0; t-- {
			if count(p[t]) > 0 || p[t].Name == shape.Root {
				break
			}
			p = p[:t]
		}
		out = append(out, p)
	}

	for i := 0; i < len(out); i++ {
		if len(out[i]) <= 1 && len(out) > 1 {
			out = append(out[:i], out[i+1:]...)
			i--
		}
	}
	return out
}

// PruneInheritance removes leading nodes without counted properties that lie
// below the selection type, keeping the selection type itself. Paths left
// empty are dropped.
func PruneInheritance(paths []Path, selection string, count Counter) []Path {
	out := make([]Path, 0, len(paths))
	for _, p := range paths {
		start := 0
		for start < len(p) && count(p[start]) == 0 && p[start].Name != selection {
			start++
		}
		if start < len(p) {
			out = append(out, append(Path(nil), p[start:]...))
		}
	}
	return out
}
