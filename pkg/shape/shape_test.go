package shape

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessor_PropertyName(t *testing.T) {
	tests := []struct {
		name     string
		accessor Accessor
		expected string
		ok       bool
	}{
		{"get prefix", Accessor{Getter: "GetFirstName", Returns: Of(String)}, "firstName", true},
		{"is prefix on bool", Accessor{Getter: "IsActive", Returns: Of(Bool)}, "active", true},
		{"is prefix on non bool", Accessor{Getter: "IsActive", Returns: Of(Int32)}, "", false},
		{"get prefix on bool", Accessor{Getter: "GetActive", Returns: Of(Bool)}, "active", true},
		{"bare get", Accessor{Getter: "Get", Returns: Of(String)}, "", false},
		{"lower case after prefix", Accessor{Getter: "Getter", Returns: Of(String)}, "", false},
		{"no prefix", Accessor{Getter: "Name", Returns: Of(String)}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, ok := tt.accessor.PropertyName()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestProperty(t *testing.T) {
	a := Property("active", Of(Bool), Indexed(), InGroup("flags"))
	assert.Equal(t, "IsActive", a.Getter)
	assert.Equal(t, "SetActive", a.Setter)
	assert.True(t, a.Indexed)
	assert.Equal(t, []string{"flags"}, a.IndexGroups)

	b := Property("owner", Ref("Person"), Column("OWNER_ID"), RenamedFrom("holder"))
	assert.Equal(t, "GetOwner", b.Getter)
	assert.Equal(t, "OWNER_ID", b.ColumnName)
	assert.Equal(t, "holder", b.FormerName)

	name, ok := b.PropertyName()
	require.True(t, ok)
	assert.Equal(t, "owner", name)
}

func TestParseTypeRef(t *testing.T) {
	tests := []struct {
		input    string
		expected TypeRef
	}{
		{"int32", Of(Int32)},
		{"bytes", Of(Bytes)},
		{"enum:Color", EnumOf("Color")},
		{"ref:Person", Ref("Person")},
		{"Person", Ref("Person")},
		{"[]float64", ArrayOf(Of(Float64))},
		{"[][]ref:Person", ArrayOf(ArrayOf(Ref("Person")))},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTypeRef(tt.input)
			require.NoError(t, err)
			assert.True(t, tt.expected.Equal(got), "got %s", got)

			again, err := ParseTypeRef(got.String())
			require.NoError(t, err)
			assert.True(t, got.Equal(again))
		})
	}

	for _, bad := range []string{"", "enum:", "ref:", "[]"} {
		_, err := ParseTypeRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestKind_Helpers(t *testing.T) {
	assert.True(t, Int16.IsInteger())
	assert.False(t, Float32.IsInteger())
	assert.True(t, Float32.IsNumeric())
	assert.False(t, String.IsNumeric())
	assert.Equal(t, 8, Int64.Width())
	assert.Equal(t, 0, Bool.Width())
	assert.True(t, Ref("X").IsObject())
	assert.True(t, ArrayOf(Of(Int8)).IsObject())
	assert.False(t, Of(Bytes).IsObject())
}

func TestShape_Parents(t *testing.T) {
	assert.Equal(t, []string{Root}, Class("Point", "").Parents())
	assert.Equal(t, []string{"Shape", "Named"}, Class("Circle", "Shape").Implements("Named").Parents())
	assert.Equal(t, []string{"Base"}, InterfaceOf("Named", []string{"Base"}).Parents())
	assert.Empty(t, InterfaceOf("Base", nil).Parents())
	assert.Empty(t, Shape{Name: Root}.Parents())
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Class("Point", "")))

	err := r.Register(Class("Point", ""))
	assert.True(t, errors.Is(err, ErrDuplicateType))

	err = r.Register(Class(Root, ""))
	assert.True(t, errors.Is(err, ErrDuplicateType))

	tests := []struct {
		name  string
		shape Shape
	}{
		{"empty name", Shape{}},
		{"separator in name", Class("Bad__Name", "")},
		{"interface with super", Shape{Name: "I", Interface: true, Super: "Point"}},
		{"extends itself", Class("Loop", "Loop")},
		{"implements itself", Class("Self", "").Implements("Self")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.shape)
			assert.True(t, IsShapeError(err), "got %v", err)
		})
	}

	assert.Equal(t, []string{"Point"}, r.Names())
	assert.True(t, r.Has(Root))
}

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry().MustRegister(Class("Point", ""))

	s, err := r.Lookup("Point")
	require.NoError(t, err)
	assert.Equal(t, "Point", s.Name)

	_, err = r.Lookup("Gone")
	var unknown *UnknownTypeError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Gone", unknown.Name)
	assert.True(t, IsUnknownType(err))
}

func TestRegistry_IsAssignable(t *testing.T) {
	r := NewRegistry().MustRegister(
		InterfaceOf("Named", nil),
		InterfaceOf("Titled", []string{"Named"}),
		Class("Person", ""),
		Class("Employee", "Person").Implements("Titled"),
		Class("Company", ""),
	)

	tests := []struct {
		from, to string
		expected bool
	}{
		{"Employee", "Employee", true},
		{"Employee", "Person", true},
		{"Employee", "Titled", true},
		{"Employee", "Named", true},
		{"Employee", Root, true},
		{"Person", "Employee", false},
		{"Company", "Person", false},
		{"Titled", "Named", true},
		{"Named", "Titled", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			assert.Equal(t, tt.expected, r.IsAssignable(tt.from, tt.to))
		})
	}
}

func TestParseYAML(t *testing.T) {
	shapes, err := ParseYAML([]byte(`
types:
  - name: Named
    interface: true
    properties:
      - {name: name, type: string, maxLength: 80, indexed: true}
  - name: Person
    interfaces: [Named]
    table: PEOPLE
    properties:
      - {name: age, type: int32, groups: [by_age]}
      - {name: active, type: bool}
      - {name: notes, type: string, largeObject: true}
      - {name: employer, type: ref:Company}
      - {name: scratch, type: int64, transient: true}
      - {name: nickname, type: string, formerName: alias, column: NICK}
`))
	require.NoError(t, err)
	require.Len(t, shapes, 2)

	named := shapes[0]
	assert.True(t, named.Interface)
	require.Len(t, named.Accessors, 1)
	assert.Equal(t, 80, named.Accessors[0].MaxLength)
	assert.True(t, named.Accessors[0].Indexed)

	person := shapes[1]
	assert.Equal(t, "PEOPLE", person.TableName)
	assert.Equal(t, []string{"Named"}, person.Interfaces)
	require.Len(t, person.Accessors, 6)
	assert.Equal(t, []string{"by_age"}, person.Accessors[0].IndexGroups)
	assert.Equal(t, "IsActive", person.Accessors[1].Getter)
	assert.True(t, person.Accessors[2].LargeObject)
	assert.True(t, Ref("Company").Equal(person.Accessors[3].Returns))
	assert.True(t, person.Accessors[4].Transient)
	assert.Equal(t, "alias", person.Accessors[5].FormerName)
	assert.Equal(t, "NICK", person.Accessors[5].ColumnName)

	_, err = ParseYAML([]byte("types:\n  - name: X\n    properties:\n      - {type: int32}\n"))
	assert.True(t, IsShapeError(err))

	_, err = ParseYAML([]byte("types: {"))
	assert.Error(t, err)
}
