package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redbco/redb-persist/pkg/shape"
)

func TestObject_Properties(t *testing.T) {
	p := New("Point").Set("x", int32(3)).Set("y", int32(4))

	assert.Equal(t, "Point", p.Type())
	assert.False(t, p.IsArray())
	assert.Equal(t, []string{"x", "y"}, p.Names())

	v, ok := p.Get("x")
	require.True(t, ok)
	assert.Equal(t, int32(3), v)
	assert.Nil(t, p.Value("z"))
	assert.False(t, p.Has("z"))

	p.Set("x", nil)
	assert.False(t, p.Has("x"))

	var ref *Object
	p.Set("next", ref)
	assert.False(t, p.Has("next"))

	p.Unset("y")
	assert.Empty(t, p.Names())
}

func TestObject_Array(t *testing.T) {
	a := NewArray(shape.Of(shape.Int64), int64(1), int64(2))

	assert.True(t, a.IsArray())
	assert.Equal(t, ArrayType, a.Type())
	assert.True(t, shape.Of(shape.Int64).Equal(a.Elem()))
	assert.Equal(t, 2, a.Len())

	a.Append(int64(3))
	a.SetAt(0, int64(10))
	assert.Equal(t, int64(10), a.At(0))
	assert.Equal(t, []any{int64(10), int64(2), int64(3)}, a.Items())

	items := a.Items()
	items[1] = int64(99)
	assert.Equal(t, int64(2), a.At(1))
}

func TestObject_Replace(t *testing.T) {
	dst := New("Point").Set("x", int32(1)).Set("z", "gone")
	src := New("Point").Set("x", int32(5)).Set("y", int32(6))

	dst.Replace(src)
	assert.Equal(t, []string{"x", "y"}, dst.Names())
	assert.Equal(t, int32(5), dst.Value("x"))

	src.Set("x", int32(7))
	assert.Equal(t, int32(5), dst.Value("x"))

	dst.Replace(dst)
	assert.Equal(t, int32(5), dst.Value("x"))
}
