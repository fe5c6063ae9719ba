package inheritance

import (
	"fmt"
	"strconv"
)

// Link joins a level row to the row of its spanning-tree child:
// Sub.C__ID = Super.C__REAL_ID AND Super.C__REAL_CLASS = Sub's type name.
type Link struct {
	Super *Node
	Sub   *Node
}

// JoinSet is the set of level tables one statement joins, with aliases
// T0, T1, ... assigned breadth first from the selection node.
type JoinSet struct {
	nodes []*Node
	links []Link
	alias map[*Node]int
}

// Join selects the tables to join for the given pruned paths. The selection
// node is always joined as T0. Nodes are connected through their spanning
// tree edges only, adding the intermediate levels needed to reach the node
// where their child chains meet.
func Join(s *Stack, paths []Path, selection string) (*JoinSet, error) {
	sel, ok := s.Node(selection)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not in the stack of %s", ErrInconsistent, selection, s.Concrete().Name)
	}

	members := []*Node{sel}
	for _, p := range paths {
		members = append(members, p...)
	}

	meet := sel
	for _, n := range members[1:] {
		meet = lowestCommon(meet, n)
	}

	in := make(map[*Node]bool)
	for _, n := range members {
		for cur := n; ; cur = cur.Child {
			in[cur] = true
			if cur == meet {
				break
			}
		}
	}

	js := &JoinSet{alias: make(map[*Node]int)}
	js.add(sel)
	for i := 0; i < len(js.nodes); i++ {
		n := js.nodes[i]
		if c := n.Child; c != nil && in[c] && !js.has(c) {
			js.add(c)
			js.links = append(js.links, Link{Super: n, Sub: c})
		}
		for _, p := range n.Children {
			if in[p] && !js.has(p) {
				js.add(p)
				js.links = append(js.links, Link{Super: p, Sub: n})
			}
		}
	}
	return js, nil
}

// lowestCommon returns the first node on both child chains.
func lowestCommon(a, b *Node) *Node {
	for a != b {
		switch {
		case a.Depth > b.Depth:
			a = a.Child
		case b.Depth > a.Depth:
			b = b.Child
		default:
			a, b = a.Child, b.Child
		}
	}
	return a
}

func (js *JoinSet) add(n *Node) {
	js.alias[n] = len(js.nodes)
	js.nodes = append(js.nodes, n)
}

func (js *JoinSet) has(n *Node) bool {
	_, ok := js.alias[n]
	return ok
}

// Nodes returns the joined nodes in alias order.
func (js *JoinSet) Nodes() []*Node { return append([]*Node(nil), js.nodes...) }

// Links returns the join predicates in alias order of the discovered side.
func (js *JoinSet) Links() []Link { return append([]Link(nil), js.links...) }

// Alias returns the alias of a joined node.
func (js *JoinSet) Alias(n *Node) (string, bool) {
	i, ok := js.alias[n]
	if !ok {
		return "", false
	}
	return "T" + strconv.Itoa(i), true
}

// Index returns the alias number of a joined node.
func (js *JoinSet) Index(n *Node) (int, bool) {
	i, ok := js.alias[n]
	return i, ok
}

// Contains reports whether the node is joined.
func (js *JoinSet) Contains(n *Node) bool { return js.has(n) }
