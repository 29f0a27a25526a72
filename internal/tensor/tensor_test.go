package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromData_ChecksSize(t *testing.T) {
	_, err := FromData(Shape{2, 2}, []float32{1, 2, 3})
	require.Error(t, err)

	tt, err := FromData(Shape{2, 2}, []float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, int64(4), tt.Shape.NumElements())
}

func TestView_SharesData(t *testing.T) {
	x := MustFromData(Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	v, err := x.View(Shape{6})
	require.NoError(t, err)

	v.Data[0] = 42
	assert.Equal(t, float32(42), x.Data[0])

	_, err = x.View(Shape{4})
	require.Error(t, err)
}

func TestClone_IsDeep(t *testing.T) {
	x := Full(Shape{3}, 1)
	c := x.Clone()
	c.Data[1] = 7
	assert.Equal(t, float32(1), x.Data[1])
	assert.False(t, x.Equal(c))
}

func TestAllClose(t *testing.T) {
	a := MustFromData(Shape{2}, []float32{1, 2})
	b := MustFromData(Shape{2}, []float32{1.000001, 2})
	assert.True(t, a.AllClose(b, 1e-5, 1e-6))
	assert.False(t, a.AllClose(MustFromData(Shape{2}, []float32{1.1, 2}), 1e-5, 1e-6))
}
