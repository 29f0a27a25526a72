package kernel

import (
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ir"
	"github.com/roach88/aotc/internal/tensor"
)

// OpCopy is the synthetic step that copies one buffer into another.
const OpCopy = "aotc::copy"

// BufferKind says where a buffer's storage comes from.
type BufferKind int

const (
	BufferInput BufferKind = iota
	BufferOutput
	BufferConstant
	BufferTemp
)

func (k BufferKind) String() string {
	switch k {
	case BufferInput:
		return "in"
	case BufferOutput:
		return "out"
	case BufferConstant:
		return "const"
	case BufferTemp:
		return "tmp"
	}
	return "?"
}

// Buffer is one contiguous float32 allocation.
type Buffer struct {
	ID    int
	Kind  BufferKind
	Name  string
	Shape tensor.Shape
	// Arg is the calling-convention index for inputs and outputs, else -1.
	Arg int
	// Offset is the element offset into the constant pool for constants.
	Offset int64
}

// Len returns the number of elements.
func (b *Buffer) Len() int64 { return b.Shape.NumElements() }

// Operand is one argument of a step: either a tensor buffer viewed with a
// shape, or a compile-time literal.
type Operand struct {
	Buffer  int
	Shape   tensor.Shape
	Literal graph.Literal
}

// IsTensor reports whether the operand refers to a buffer.
func (o Operand) IsTensor() bool { return o.Buffer >= 0 }

func literalOperand(l graph.Literal) Operand {
	return Operand{Buffer: -1, Literal: l}
}

// Step is one operator application inside the fused kernel.
type Step struct {
	Op       string
	Position int
	Args     []Operand
	Out      Operand
}

// Plan is the backend-independent form of a fused kernel.
type Plan struct {
	Method     string
	Symbol     string
	Convention ir.CallingConvention
	Buffers    []*Buffer
	Steps      []Step
	// Constants holds every constant buffer back to back.
	Constants []float32
}

// Buffer returns the buffer with the given id.
func (p *Plan) Buffer(id int) *Buffer { return p.Buffers[id] }

// Temporaries lists scratch buffers in allocation order.
func (p *Plan) Temporaries() []*Buffer {
	var out []*Buffer
	for _, b := range p.Buffers {
		if b.Kind == BufferTemp {
			out = append(out, b)
		}
	}
	return out
}
