// Package tensor provides static shapes and dense float32 tensors.
package tensor

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Unknown marks an extent whose size is not known at compile time.
const Unknown int64 = -1

// Shape holds the extents of a tensor. A nil Shape is entirely unknown; an
// empty non-nil Shape is a scalar.
type Shape []int64

// Known reports whether the rank is known.
func (s Shape) Known() bool { return s != nil }

// Complete reports whether rank and every extent are known.
func (s Shape) Complete() bool {
	if s == nil {
		return false
	}
	for _, d := range s {
		if d < 0 {
			return false
		}
	}
	return true
}

// MulExtents multiplies two non-negative extents. ok is false when the
// product does not fit in an int64.
func MulExtents(a, b int64) (product int64, ok bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if a > math.MaxInt64/b {
		return 0, false
	}
	return a * b, true
}

// Count returns the element count of a complete shape, or an error when the
// count overflows int64.
func (s Shape) Count() (int64, error) {
	n := int64(1)
	for _, d := range s {
		if d < 0 {
			return 0, fmt.Errorf("shape %s is not complete", s)
		}
		var ok bool
		if n, ok = MulExtents(n, d); !ok {
			return 0, fmt.Errorf("shape %s has more elements than fit in int64", s)
		}
	}
	return n, nil
}

// NumElements returns the element count; scalars have one element. It
// returns Unknown for incomplete shapes and for counts that overflow int64.
func (s Shape) NumElements() int64 {
	n, err := s.Count()
	if err != nil {
		return Unknown
	}
	return n
}

// Validate checks that every extent is positive and that the element count
// fits in an int64.
func (s Shape) Validate() error {
	if s == nil {
		return fmt.Errorf("shape is unknown")
	}
	for i, d := range s {
		if d <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, d)
		}
	}
	_, err := s.Count()
	return err
}

// Equal reports whether two shapes match exactly. Two unknown shapes are
// equal; an unknown shape never equals a scalar.
func (s Shape) Equal(other Shape) bool {
	if (s == nil) != (other == nil) || len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that preserves nil-ness.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	out := make(Shape, len(s))
	copy(out, s)
	return out
}

// Strides returns row-major contiguous strides in elements.
func (s Shape) Strides() []int64 {
	strides := make([]int64, len(s))
	acc := int64(1)
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= s[i]
	}
	return strides
}

// Dims returns the extents as a plain slice.
func (s Shape) Dims() []int64 {
	return []int64(s.Clone())
}

// String renders the shape as "[1, 3, 224, 224]", "?" when unknown.
func (s Shape) String() string {
	if s == nil {
		return "?"
	}
	parts := make([]string, len(s))
	for i, d := range s {
		if d < 0 {
			parts[i] = "?"
		} else {
			parts[i] = strconv.FormatInt(d, 10)
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Broadcast implements NumPy broadcasting: extents are compared right to
// left and must be equal or 1. Unknown extents broadcast to unknown.
func Broadcast(a, b Shape) (Shape, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	n := max(len(a), len(b))
	out := make(Shape, n)
	for i := 0; i < n; i++ {
		ad, bd := int64(1), int64(1)
		if j := len(a) - 1 - i; j >= 0 {
			ad = a[j]
		}
		if j := len(b) - 1 - i; j >= 0 {
			bd = b[j]
		}
		switch {
		case ad == bd:
			out[n-1-i] = ad
		case ad == 1:
			out[n-1-i] = bd
		case bd == 1:
			out[n-1-i] = ad
		case ad < 0 || bd < 0:
			out[n-1-i] = Unknown
		default:
			return nil, fmt.Errorf("shapes not compatible for broadcasting: %v vs %v (dimension %d: %d vs %d)",
				a, b, n-1-i, ad, bd)
		}
	}
	return out, nil
}

// BroadcastStrides returns the strides with which a tensor of shape s is
// read when broadcast to out; broadcast dimensions get stride 0.
func BroadcastStrides(s, out Shape) []int64 {
	src := s.Strides()
	strides := make([]int64, len(out))
	offset := len(out) - len(s)
	for i := range out {
		j := i - offset
		if j < 0 || s[j] == 1 && out[i] != 1 {
			continue
		}
		strides[i] = src[j]
	}
	return strides
}
