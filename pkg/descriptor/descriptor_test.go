package descriptor

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-persist/pkg/object"
	"github.com/redbco/redb-persist/pkg/shape"
)

type testDialect struct {
	maxName  int
	lobs     bool
	reserved map[string]bool
}

func (d testDialect) MaxNameLength() int          { return d.maxName }
func (d testDialect) IsReserved(word string) bool { return d.reserved[word] }
func (d testDialect) SupportsClob() bool          { return d.lobs }
func (d testDialect) SupportsBlob() bool          { return d.lobs }

func newDialect() testDialect {
	return testDialect{lobs: true, reserved: map[string]bool{"ORDER": true, "USER": true}}
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "SHORT", Shorten("SHORT", 10))
	assert.Equal(t, "ANY_LENGTH_WITHOUT_LIMIT", Shorten("ANY_LENGTH_WITHOUT_LIMIT", 0))

	long := "A_VERY_LONG_TABLE_NAME_FOR_TESTING"
	got := Shorten(long, 20)
	assert.Len(t, got, 20)
	assert.Equal(t, got, Shorten(long, 20))
	assert.NotEqual(t, got, Shorten(long+"X", 20))
	assert.NotContains(t, got, Separator)

	// A prefix ending in '_' must not produce the separator.
	got = Shorten("ABCDEFGHIJ_KLMNOPQRSTUVWXYZ", 20)
	assert.NotContains(t, got, Separator)
}

func TestNaming(t *testing.T) {
	d := newDialect()

	assert.Equal(t, "FIRST_NAME", Sanitize("first-name"))
	assert.Equal(t, "ORDER_", Identifier("ORDER", d))

	table, err := TableName(shape.Class("Order", ""), d)
	require.NoError(t, err)
	assert.Equal(t, "ORDER_", table)

	table, err = TableName(shape.Class("Point", "").WithTable("PTS"), d)
	require.NoError(t, err)
	assert.Equal(t, "PTS", table)

	table, err = TableName(shape.Shape{Name: shape.Root}, d)
	require.NoError(t, err)
	assert.Equal(t, RootTable, table)

	_, err = TableName(shape.Class("Point", "").WithTable("P__T"), d)
	assert.True(t, shape.IsShapeError(err))

	col, err := ColumnName("Point", "user", "", d)
	require.NoError(t, err)
	assert.Equal(t, "USER_", col)

	_, err = ColumnName("Point", "a__b", "", d)
	assert.True(t, shape.IsShapeError(err))

	_, err = ColumnName("Point", "x", "C__X", d)
	assert.True(t, shape.IsShapeError(err))

	assert.Equal(t, "IDX_POINT_X", IndexName("POINT", "X", d))
	assert.Equal(t, "IDXG_POINT_BY_XY", GroupIndexName("POINT", "by-xy", d))
}

func TestMemberTable(t *testing.T) {
	tests := []struct {
		elem  shape.TypeRef
		table string
		kind  shape.Kind
	}{
		{shape.Of(shape.Int32), "C__ARRAY_MEMBER_INT32", shape.Int32},
		{shape.Of(shape.String), "C__ARRAY_MEMBER_STRING", shape.String},
		{shape.EnumOf("Color"), "C__ARRAY_MEMBER_STRING", shape.String},
		{shape.Ref("Person"), "C__ARRAY_MEMBER_OBJECT", shape.Reference},
		{shape.ArrayOf(shape.Of(shape.Bool)), "C__ARRAY_MEMBER_OBJECT", shape.Reference},
	}
	for _, tt := range tests {
		t.Run(tt.elem.String(), func(t *testing.T) {
			assert.Equal(t, tt.table, MemberTable(tt.elem))
			assert.Equal(t, tt.kind, MemberKind(tt.elem))
		})
	}
}

func TestDerive(t *testing.T) {
	d := newDialect()
	s := shape.Class("Person", "",
		shape.Property("name", shape.Of(shape.String), shape.Indexed(), shape.MaxLength(80)),
		shape.Property("active", shape.Of(shape.Bool)),
		shape.Property("bio", shape.Of(shape.String), shape.AsLargeObject()),
		shape.Property("age", shape.Of(shape.Int32), shape.AsLargeObject()),
		shape.Property("cache", shape.Of(shape.Int64), shape.Transient()),
		shape.Property("employer", shape.Ref("Company"), shape.Column("EMPLOYER_ID")),
		shape.Accessor{Getter: "GetComputed", Returns: shape.Of(shape.Int32)},
	).Implements("Named")

	typ, err := Derive(s, d)
	require.NoError(t, err)

	assert.Equal(t, "PERSON", typ.Table)
	assert.Equal(t, []string{shape.Root, "Named"}, typ.Parents)
	assert.Equal(t, []string{"NAME", "ACTIVE", "BIO", "AGE", "EMPLOYER_ID"}, typ.Columns())

	name, ok := typ.Property("name")
	require.True(t, ok)
	assert.True(t, name.Indexed)
	assert.Equal(t, 80, name.MaxLength)

	bio, _ := typ.Property("bio")
	assert.True(t, bio.LargeObject)

	age, _ := typ.Property("age")
	assert.False(t, age.LargeObject, "large object flag is ignored on non string kinds")

	employer, _ := typ.Property("employer")
	assert.True(t, employer.IsObject())
	assert.Equal(t, shape.Reference, employer.Kind())

	_, ok = typ.Property("cache")
	assert.False(t, ok)

	noLob := newDialect()
	noLob.lobs = false
	typ, err = Derive(s, noLob)
	require.NoError(t, err)
	bio, _ = typ.Property("bio")
	assert.False(t, bio.LargeObject)
}

func TestDerive_Invalid(t *testing.T) {
	d := newDialect()

	mismatch := shape.Property("x", shape.Of(shape.Int32))
	mismatch.Accepts = shape.Of(shape.Int64)

	badSetter := shape.Property("x", shape.Of(shape.Int32))
	badSetter.Setter = "SetY"

	badGetter := shape.Property("x", shape.Of(shape.Int32))
	badGetter.Getter = "Fetch"

	tests := []struct {
		name  string
		shape shape.Shape
	}{
		{"type mismatch", shape.Class("P", "", mismatch)},
		{"setter mismatch", shape.Class("P", "", badSetter)},
		{"getter naming", shape.Class("P", "", badGetter)},
		{"duplicate property", shape.Class("P", "",
			shape.Property("x", shape.Of(shape.Int32)), shape.Property("x", shape.Of(shape.Int64)))},
		{"duplicate column", shape.Class("P", "",
			shape.Property("x", shape.Of(shape.Int32)), shape.Property("y", shape.Of(shape.Int32), shape.Column("X")))},
		{"separator in column", shape.Class("P", "", shape.Property("x__y", shape.Of(shape.Int32)))},
		{"missing type", shape.Class("P", "", shape.Property("x", shape.TypeRef{}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Derive(tt.shape, d)
			assert.True(t, shape.IsShapeError(err), "got %v", err)
		})
	}
}

func TestIndexes(t *testing.T) {
	d := newDialect()

	child, err := Derive(shape.Class("Child", "Parent",
		shape.Property("a", shape.Of(shape.Int32), shape.InGroup("g1")),
		shape.Property("b", shape.Of(shape.Int32), shape.Indexed(), shape.InGroup("g1", "g2")),
	), d)
	require.NoError(t, err)

	parent, err := Derive(shape.Class("Parent", "",
		shape.Property("c", shape.Of(shape.Int32), shape.InGroup("g1")),
	), d)
	require.NoError(t, err)

	got := Indexes([]*Type{child, parent}, d)
	assert.Equal(t, []Index{
		{Name: "IDX_CHILD_B", Table: "CHILD", Columns: []string{"B"}},
		{Name: "IDXG_CHILD_G1", Table: "CHILD", Columns: []string{"A", "B"}},
		{Name: "IDXG_PARENT_G1", Table: "PARENT", Columns: []string{"C"}},
		{Name: "IDXG_CHILD_G2", Table: "CHILD", Columns: []string{"B"}},
	}, got)

	assert.Len(t, TableIndexes(got, "PARENT"), 1)
}

func TestCache(t *testing.T) {
	reg := shape.NewRegistry().MustRegister(
		shape.Class("Point", "", shape.Property("x", shape.Of(shape.Int32))),
		shape.Class("Other", "").WithTable("POINT"),
	)
	c := NewCache(reg, newDialect())

	var wg sync.WaitGroup
	results := make([]*Type, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Type("Point")
		}(i)
	}
	wg.Wait()
	for _, r := range results {
		assert.Same(t, results[0], r)
	}

	name, ok := c.TypeOf("POINT")
	require.True(t, ok)
	assert.Equal(t, "Point", name)

	_, err := c.Type("Other")
	assert.True(t, shape.IsShapeError(err))

	_, err = c.Type("Missing")
	assert.True(t, shape.IsUnknownType(err))

	arr, err := c.Type(object.ArrayType)
	require.NoError(t, err)
	assert.Equal(t, ArrayTable, arr.Table)
	assert.Equal(t, []string{shape.Root}, arr.Parents)

	root, err := c.Type(shape.Root)
	require.NoError(t, err)
	assert.Equal(t, RootTable, root.Table)
	assert.Empty(t, root.Parents)
}
