package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape_Complete(t *testing.T) {
	assert.False(t, Shape(nil).Complete())
	assert.True(t, Shape{}.Complete())
	assert.True(t, Shape{1, 3, 224, 224}.Complete())
	assert.False(t, Shape{1, Unknown}.Complete())
	assert.True(t, Shape{1, Unknown}.Known())
}

func TestShape_Strides(t *testing.T) {
	assert.Equal(t, []int64{150528, 50176, 224, 1}, Shape{1, 3, 224, 224}.Strides())
	assert.Equal(t, []int64{}, Shape{}.Strides())
}

func TestShape_CountOverflow(t *testing.T) {
	n, err := Shape{1, 3, 224, 224}.Count()
	require.NoError(t, err)
	assert.Equal(t, int64(150528), n)

	_, err = Shape{1 << 32, 1 << 32, 4}.Count()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more elements than fit in int64")
	assert.Equal(t, Unknown, Shape{1 << 32, 1 << 32, 4}.NumElements())

	_, err = Shape{1, Unknown}.Count()
	assert.Error(t, err)
}

func TestShape_ValidateRejectsOverflow(t *testing.T) {
	require.NoError(t, Shape{1 << 31, 1 << 31}.Validate())
	err := Shape{1 << 32, 1 << 32, 4}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more elements than fit in int64")
}

func TestMulExtents(t *testing.T) {
	p, ok := MulExtents(1<<31, 1<<31)
	assert.True(t, ok)
	assert.Equal(t, int64(1)<<62, p)

	_, ok = MulExtents(1<<32, 1<<32)
	assert.False(t, ok)

	p, ok = MulExtents(0, 1<<62)
	assert.True(t, ok)
	assert.Zero(t, p)
}

func TestShape_EqualDistinguishesUnknownFromScalar(t *testing.T) {
	assert.True(t, Shape(nil).Equal(nil))
	assert.False(t, Shape(nil).Equal(Shape{}))
	assert.False(t, Shape{2, 3}.Equal(Shape{3, 2}))
}

func TestShape_String(t *testing.T) {
	assert.Equal(t, "?", Shape(nil).String())
	assert.Equal(t, "[]", Shape{}.String())
	assert.Equal(t, "[1, ?]", Shape{1, Unknown}.String())
}

func TestBroadcast(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Shape
		want    Shape
		wantErr bool
	}{
		{"same", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}, false},
		{"column", Shape{3, 1}, Shape{3, 5}, Shape{3, 5}, false},
		{"rank extend", Shape{5}, Shape{2, 3, 5}, Shape{2, 3, 5}, false},
		{"scalar", Shape{}, Shape{4}, Shape{4}, false},
		{"unknown extent", Shape{Unknown, 5}, Shape{3, 5}, Shape{Unknown, 5}, false},
		{"incompatible", Shape{3, 4}, Shape{3, 5}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Broadcast(tt.a, tt.b)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBroadcast_UnknownRank(t *testing.T) {
	got, err := Broadcast(nil, Shape{2})
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBroadcastStrides(t *testing.T) {
	assert.Equal(t, []int64{0, 1}, BroadcastStrides(Shape{5}, Shape{3, 5}))
	assert.Equal(t, []int64{1, 0}, BroadcastStrides(Shape{3, 1}, Shape{3, 5}))
	assert.Equal(t, []int64{5, 1}, BroadcastStrides(Shape{3, 5}, Shape{3, 5}))
}
