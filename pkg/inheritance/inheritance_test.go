package inheritance

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-persist/pkg/adapter"
	"github.com/redbco/redb-persist/pkg/dbcapabilities"
	"github.com/redbco/redb-persist/pkg/descriptor"
	"github.com/redbco/redb-persist/pkg/shape"
)

func testTypes(t *testing.T, extra ...shape.Shape) *descriptor.Cache {
	t.Helper()
	reg := shape.NewRegistry()
	require.NoError(t, reg.Register(
		shape.InterfaceOf("Named", nil, shape.Property("name", shape.Of(shape.String))),
		shape.InterfaceOf("Marker", nil),
		shape.Class("Shape", "", shape.Property("color", shape.Of(shape.String))).Implements("Marker"),
		shape.Class("Circle", "Shape", shape.Property("radius", shape.Of(shape.Float64))).Implements("Named"),
	))
	require.NoError(t, reg.Register(extra...))
	return descriptor.NewCache(reg, adapter.NewBase(dbcapabilities.SQLite, adapter.Features{}))
}

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}

func pathNames(paths []Path) [][]string {
	out := make([][]string, len(paths))
	for i, p := range paths {
		out[i] = p.Names()
	}
	return out
}

func TestBuild(t *testing.T) {
	s, err := Build(testTypes(t), "Circle")
	require.NoError(t, err)

	assert.Equal(t, "Circle", s.Concrete().Name)
	assert.Equal(t, []string{"Circle", "Shape", shape.Root, "Marker", "Named"}, names(s.Nodes()))

	shapeNode, ok := s.Node("Shape")
	require.True(t, ok)
	assert.Equal(t, "Circle", shapeNode.Child.Name)
	assert.Equal(t, 1, shapeNode.Depth)

	marker, _ := s.Node("Marker")
	assert.Equal(t, "Shape", marker.Child.Name)
	assert.Equal(t, []string{"Marker", "Shape", "Circle"}, names(marker.ChildChain()))

	node, prop, ok := s.Declaring("color")
	require.True(t, ok)
	assert.Equal(t, "Shape", node.Name)
	assert.Equal(t, "COLOR", prop.Column)

	_, _, ok = s.Declaring("missing")
	assert.False(t, ok)

	assert.True(t, s.Has("Named"))
	assert.False(t, s.Has("Square"))
	assert.Len(t, s.Levels(), 5)
}

func TestBuild_Interface(t *testing.T) {
	s, err := Build(testTypes(t), "Named")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Named"}}, pathNames(s.Paths()))
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		extra shape.Shape
		check func(error) bool
	}{
		{"interface superclass", shape.Class("Bad", "Named"), shape.IsShapeError},
		{"class as interface", shape.Class("Bad", "").Implements("Shape"), shape.IsShapeError},
		{"interface extends class", shape.InterfaceOf("Bad", []string{"Shape"}), shape.IsShapeError},
		{"redeclared property", shape.Class("Bad", "Shape", shape.Property("color", shape.Of(shape.String))), shape.IsShapeError},
		{"unknown parent", shape.Class("Bad", "Missing"), shape.IsUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(testTypes(t, tt.extra), "Bad")
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}

	t.Run("cycle", func(t *testing.T) {
		types := testTypes(t, shape.Class("A", "B"), shape.Class("B", "A"))
		_, err := Build(types, "A")
		assert.True(t, shape.IsShapeError(err))
	})
}

func TestPaths(t *testing.T) {
	s, err := Build(testTypes(t), "Circle")
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"Circle", "Shape", shape.Root},
		{"Circle", "Named"},
		{"Circle", "Shape", "Marker"},
	}, pathNames(s.Paths()))
}

func TestPrunePaths(t *testing.T) {
	s, err := Build(testTypes(t), "Circle")
	require.NoError(t, err)

	tests := []struct {
		name     string
		counts   map[string]int
		expected [][]string
	}{
		{"no counts keeps root path", nil, [][]string{{"Circle", "Shape", shape.Root}}},
		{"interface with counts", map[string]int{"Named": 1}, [][]string{
			{"Circle", "Shape", shape.Root},
			{"Circle", "Named"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PrunePaths(s.Paths(), CountMap(tt.counts))
			assert.Equal(t, tt.expected, pathNames(got))
		})
	}

	// a single path is never dropped
	only := PrunePaths([]Path{{s.Concrete()}}, CountMap(nil))
	assert.Len(t, only, 1)
}

func TestPruneInheritance(t *testing.T) {
	s, err := Build(testTypes(t), "Circle")
	require.NoError(t, err)

	counts := CountMap(map[string]int{"Named": 1})
	paths := PruneInheritance(PrunePaths(s.Paths(), counts), "Shape", counts)
	assert.Equal(t, [][]string{{"Shape", shape.Root}, {"Named"}}, pathNames(paths))

	paths = PruneInheritance(PrunePaths(s.Paths(), CountMap(nil)), "Circle", CountMap(nil))
	assert.Equal(t, [][]string{{"Circle", "Shape", shape.Root}}, pathNames(paths))

	empty := PruneInheritance([]Path{{s.Concrete()}}, "Shape", CountMap(nil))
	assert.Empty(t, empty)
}

func TestJoin(t *testing.T) {
	s, err := Build(testTypes(t), "Circle")
	require.NoError(t, err)

	t.Run("main path", func(t *testing.T) {
		js, err := Join(s, PrunePaths(s.Paths(), CountMap(nil)), "Circle")
		require.NoError(t, err)
		assert.Equal(t, []string{"Circle", "Shape", shape.Root}, names(js.Nodes()))

		links := js.Links()
		require.Len(t, links, 2)
		assert.Equal(t, "Shape", links[0].Super.Name)
		assert.Equal(t, "Circle", links[0].Sub.Name)
		assert.Equal(t, shape.Root, links[1].Super.Name)
		assert.Equal(t, "Shape", links[1].Sub.Name)

		root, _ := s.Node(shape.Root)
		alias, ok := js.Alias(root)
		require.True(t, ok)
		assert.Equal(t, "T2", alias)
	})

	t.Run("selection above concrete", func(t *testing.T) {
		counts := CountMap(map[string]int{"Named": 1})
		paths := PruneInheritance(PrunePaths(s.Paths(), counts), "Shape", counts)
		js, err := Join(s, paths, "Shape")
		require.NoError(t, err)

		// Named hangs off Circle, so Circle joins to connect it.
		assert.Equal(t, []string{"Shape", "Circle", shape.Root, "Named"}, names(js.Nodes()))
		marker, _ := s.Node("Marker")
		assert.False(t, js.Contains(marker))
	})

	t.Run("selection only", func(t *testing.T) {
		js, err := Join(s, nil, "Shape")
		require.NoError(t, err)
		assert.Equal(t, []string{"Shape"}, names(js.Nodes()))
		assert.Empty(t, js.Links())
	})

	t.Run("unknown selection", func(t *testing.T) {
		_, err := Join(s, nil, "Square")
		assert.True(t, errors.Is(err, ErrInconsistent))
	})
}

func TestCache(t *testing.T) {
	c := NewCache(testTypes(t))

	a, err := c.Stack("Circle")
	require.NoError(t, err)
	b, err := c.Stack("Circle")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = c.Stack("Missing")
	assert.True(t, shape.IsUnknownType(err))
}
