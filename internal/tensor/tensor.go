package tensor

import (
	"fmt"
	"math"
	"slices"
)

// Tensor is a dense row-major float32 tensor. Views share Data.
type Tensor struct {
	Shape Shape
	Data  []float32
}

// New allocates a zero-filled tensor.
func New(shape Shape) *Tensor {
	if shape == nil {
		shape = Shape{}
	}
	return &Tensor{Shape: shape.Clone(), Data: make([]float32, shape.NumElements())}
}

// FromData wraps data without copying after checking it matches shape.
func FromData(shape Shape, data []float32) (*Tensor, error) {
	if !shape.Complete() {
		return nil, fmt.Errorf("tensor shape %v is not complete", shape)
	}
	if int64(len(data)) != shape.NumElements() {
		return nil, fmt.Errorf("tensor data has %d elements, shape %v needs %d", len(data), shape, shape.NumElements())
	}
	return &Tensor{Shape: shape.Clone(), Data: data}, nil
}

// MustFromData is like FromData but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFromData(shape Shape, data []float32) *Tensor {
	t, err := FromData(shape, data)
	if err != nil {
		panic(err)
	}
	return t
}

// Full returns a tensor with every element set to v.
func Full(shape Shape, v float32) *Tensor {
	t := New(shape)
	for i := range t.Data {
		t.Data[i] = v
	}
	return t
}

// Clone deep-copies the tensor.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{Shape: t.Shape.Clone(), Data: slices.Clone(t.Data)}
}

// View returns a tensor sharing t's data under a new shape.
func (t *Tensor) View(shape Shape) (*Tensor, error) {
	if shape.NumElements() != t.Shape.NumElements() {
		return nil, fmt.Errorf("cannot view %v as %v", t.Shape, shape)
	}
	return &Tensor{Shape: shape.Clone(), Data: t.Data}, nil
}

// Equal reports exact equality of shape and data.
func (t *Tensor) Equal(other *Tensor) bool {
	return t.Shape.Equal(other.Shape) && slices.Equal(t.Data, other.Data)
}

// AllClose reports whether shapes match and every element differs by at
// most atol + rtol*|other|.
func (t *Tensor) AllClose(other *Tensor, rtol, atol float64) bool {
	if !t.Shape.Equal(other.Shape) {
		return false
	}
	for i := range t.Data {
		a, b := float64(t.Data[i]), float64(other.Data[i])
		if math.Abs(a-b) > atol+rtol*math.Abs(b) {
			return false
		}
	}
	return true
}

// Bits returns the IEEE-754 bit patterns of the data, used wherever tensor
// contents feed a content hash.
func (t *Tensor) Bits() []uint32 {
	bits := make([]uint32, len(t.Data))
	for i, v := range t.Data {
		bits[i] = math.Float32bits(v)
	}
	return bits
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v", t.Shape)
}
