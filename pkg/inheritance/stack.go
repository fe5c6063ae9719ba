// Package inheritance builds the type DAG of a concrete type, from the type
// itself up through its superclasses and interfaces to the universal root,
// and selects the level tables a statement has to join.
package inheritance

import (
	"errors"
	"fmt"

	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/shape"
)

// ErrInconsistent is returned when a class has no path to the universal root.
var ErrInconsistent = errors.New("inconsistent type graph")

// Node is one level of a stack. Child is the spanning-tree edge towards the
// concrete type: the row of this level points at the row of Child through
// C__REAL_CLASS and C__REAL_ID. Child is nil on the concrete node.
type Node struct {
	*descriptor.Type

	Parents  []*Node
	Child    *Node
	Children []*Node
	Depth    int
}

// Path is one chain of nodes from the concrete type upwards.
type Path []*Node

// Stack is the immutable type DAG of one concrete type.
type Stack struct {
	concrete *Node
	nodes    []*Node
	byName   map[string]*Node
}

// Build derives the stack of a type. Parents resolve in declaration order,
// the main superclass first, so the first reacher of a node in a main-first
// depth-first walk becomes its Child.
func Build(types *descriptor.Cache, name string) (*Stack, error) {
	s := &Stack{byName: make(map[string]*Node)}

	onPath := make(map[string]bool)
	var visit func(name string, child *Node) (*Node, error)
	visit = func(name string, child *Node) (*Node, error) {
		if onPath[name] {
			return nil, shape.NewShapeError(name, "", "inheritance cycle")
		}
		if n, ok := s.byName[name]; ok {
			return n, nil
		}

		t, err := types.Type(name)
		if err != nil {
			return nil, err
		}
		n := &Node{Type: t, Child: child}
		if child != nil {
			n.Depth = child.Depth + 1
			child.Children = append(child.Children, n)
		}
		s.byName[name] = n
		s.nodes = append(s.nodes, n)

		onPath[name] = true
		defer delete(onPath, name)

		for _, p := range t.Parents {
			parent, err := visit(p, n)
			if err != nil {
				return nil, err
			}
			n.Parents = append(n.Parents, parent)
		}
		return n, nil
	}

	root, err := visit(name, nil)
	if err != nil {
		return nil, err
	}
	s.concrete = root

	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

// check validates class/interface edges, unique property names across the
// stack, and that every class reaches the universal root through its main
// parent chain.
func (s *Stack) check() error {
	declared := make(map[string]string)
	for _, n := range s.nodes {
		for i, p := range n.Parents {
			switch {
			case n.Interface && !p.Interface:
				return shape.NewShapeError(n.Name, "", fmt.Sprintf("interface cannot extend class %s", p.Name))
			case !n.Interface && i == 0 && p.Interface:
				return shape.NewShapeError(n.Name, "", fmt.Sprintf("superclass %s is an interface", p.Name))
			case !n.Interface && i > 0 && !p.Interface:
				return shape.NewShapeError(n.Name, "", fmt.Sprintf("%s is a class, not an interface", p.Name))
			}
		}
		for _, prop := range n.Properties {
			if owner, ok := declared[prop.Name]; ok {
				return shape.NewShapeError(n.Name, prop.Name, fmt.Sprintf("property already declared by %s", owner))
			}
			declared[prop.Name] = n.Name
		}
	}

	for _, n := range s.nodes {
		if n.Interface {
			continue
		}
		cur := n
		for len(cur.Parents) > 0 {
			cur = cur.Parents[0]
		}
		if cur.Name != shape.Root {
			return fmt.Errorf("%w: %s has no path to %s", ErrInconsistent, n.Name, shape.Root)
		}
	}
	return nil
}

// Concrete returns the node of the type the stack was built for.
func (s *Stack) Concrete() *Node { return s.concrete }

// Nodes returns every node once, in spanning-tree discovery order. A node's
// Child always precedes it.
func (s *Stack) Nodes() []*Node { return append([]*Node(nil), s.nodes...) }

// Levels returns the descriptors of Nodes.
func (s *Stack) Levels() []*descriptor.Type {
	out := make([]*descriptor.Type, len(s.nodes))
	for i, n := range s.nodes {
		out[i] = n.Type
	}
	return out
}

// Node returns the node of a type name.
func (s *Stack) Node(name string) (*Node, bool) {
	n, ok := s.byName[name]
	return n, ok
}

// Has reports whether the stack contains the type, that is whether the
// concrete type is assignable to it.
func (s *Stack) Has(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Declaring returns the node declaring a property and its descriptor.
func (s *Stack) Declaring(property string) (*Node, descriptor.Property, bool) {
	for _, n := range s.nodes {
		if p, ok := n.Property(property); ok {
			return n, p, true
		}
	}
	return nil, descriptor.Property{}, false
}

// ChildChain returns n followed by its spanning-tree descendants down to the
// concrete node.
func (n *Node) ChildChain() []*Node {
	var out []*Node
	for cur := n; cur != nil; cur = cur.Child {
		out = append(out, cur)
	}
	return out
}

// Paths enumerates every path from the concrete node to a node without
// parents. The main parent extends the current path; every further parent
// clones it into a side path. The main path comes first.
func (s *Stack) Paths() []Path {
	first := Path{s.concrete}
	paths := []*Path{&first}

	var walk func(p *Path, n *Node)
	walk = func(p *Path, n *Node) {
		if len(n.Parents) == 0 {
			return
		}
		for _, parent := range n.Parents[1:] {
			side := append(append(Path(nil), *p...), parent)
			paths = append(paths, &side)
			walk(&side, parent)
		}
		*p = append(*p, n.Parents[0])
		walk(p, n.Parents[0])
	}
	walk(&first, s.concrete)

	out := make([]Path, len(paths))
	for i, p := range paths {
		out[i] = *p
	}
	return out
}

// Names returns the type names along the path.
func (p Path) Names() []string {
	out := make([]string, len(p))
	for i, n := range p {
		out[i] = n.Name
	}
	return out
}
