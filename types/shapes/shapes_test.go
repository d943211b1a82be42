package shapes_test

import (
	"testing"

	"github.com/gomlx/collectives/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake(t *testing.T) {
	s := shapes.Make(dtypes.Float32, 2, 3)
	assert.Equal(t, 2, s.Rank())
	assert.Equal(t, 6, s.Size())
	assert.Equal(t, uintptr(24), s.Memory())
	assert.Equal(t, "(Float32)[2 3]", s.String())
	assert.True(t, s.Ok())
	assert.False(t, s.IsScalar())

	require.Panics(t, func() { shapes.Make(dtypes.Float32, 2, 0) })
	require.Panics(t, func() { shapes.Make(dtypes.Float32, -1) })
}

func TestScalar(t *testing.T) {
	s := shapes.Scalar[float64]()
	assert.Equal(t, dtypes.Float64, s.DType)
	assert.True(t, s.IsScalar())
	assert.Equal(t, 1, s.Size())
	assert.Equal(t, "(Float64)", s.String())
}

func TestEqual(t *testing.T) {
	a := shapes.Make(dtypes.Int64, 4)
	b := shapes.Make(dtypes.Int64, 4)
	c := shapes.Make(dtypes.Int32, 4)
	d := shapes.Make(dtypes.Int64, 4, 1)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(d))
	assert.True(t, shapes.Scalar[float32]().Equal(shapes.Make(dtypes.Float32)))
}

func TestClone(t *testing.T) {
	a := shapes.Make(dtypes.Uint8, 2, 2)
	b := a.Clone()
	require.True(t, a.Equal(b))
	b.Dimensions[0] = 7
	assert.Equal(t, 2, a.Dimensions[0])
}

func TestInvalid(t *testing.T) {
	assert.False(t, shapes.Invalid().Ok())
	assert.False(t, shapes.Shape{}.Ok())
}
