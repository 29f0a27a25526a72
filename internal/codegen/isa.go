package codegen

import (
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/kernel"
	"github.com/roach88/aotc/internal/ops"
)

// Opcode classifies instructions in the object's instruction stream.
type Opcode uint8

const (
	OpInvalid Opcode = iota
	OpUnary
	OpClamp
	OpBinary
	OpTranspose
	OpCopy
	OpCall
)

func (op Opcode) String() string {
	switch op {
	case OpUnary:
		return "unary"
	case OpClamp:
		return "clamp"
	case OpBinary:
		return "binary"
	case OpTranspose:
		return "transpose"
	case OpCopy:
		return "copy"
	case OpCall:
		return "call"
	}
	return "invalid"
}

type lowering struct {
	op Opcode
	// name is the vector mnemonic, or the runtime symbol for calls.
	name string
}

var lowerings = map[string]lowering{
	ops.Relu:              {OpUnary, "vrelu"},
	ops.Sigmoid:           {OpUnary, "vsigmoid"},
	ops.Tanh:              {OpUnary, "vtanh"},
	ops.Neg:               {OpUnary, "vneg"},
	ops.Exp:               {OpUnary, "vexp"},
	ops.Clamp:             {OpClamp, "vclamp"},
	ops.Add:               {OpBinary, "vadd"},
	ops.Sub:               {OpBinary, "vsub"},
	ops.Mul:               {OpBinary, "vmul"},
	ops.Div:               {OpBinary, "vdiv"},
	ops.Transpose:         {OpTranspose, "vtrans"},
	kernel.OpCopy:         {OpCopy, "vmov"},
	ops.Linear:            {OpCall, "nnc_aten_linear"},
	ops.Matmul:            {OpCall, "nnc_aten_matmul"},
	ops.Softmax:           {OpCall, "nnc_aten_softmax"},
	ops.Conv2d:            {OpCall, "nnc_aten_conv2d"},
	ops.BatchNorm:         {OpCall, "nnc_aten_batch_norm"},
	ops.AdaptiveAvgPool2d: {OpCall, "nnc_aten_adaptive_avg_pool2d"},
}

// Arg is one instruction operand: a buffer viewed with a shape, or a
// literal when Buffer is negative.
type Arg struct {
	Buffer int
	Shape  []int64
	Lit    graph.Literal
}

// IsBuffer reports whether the operand refers to a buffer.
func (a Arg) IsBuffer() bool { return a.Buffer >= 0 }

// Instr is one instruction of the kernel body.
type Instr struct {
	Op Opcode
	// Kind is the graph operator the instruction implements.
	Kind string
	// Name is the mnemonic or runtime symbol.
	Name     string
	Position int
	Out      Arg
	Args     []Arg
}

// BufferRecord describes a buffer in the object's buffer table.
type BufferRecord struct {
	ID     int
	Kind   kernel.BufferKind
	Name   string
	Arg    int
	Offset int64
	Shape  []int64
}

// Len returns the number of f32 elements.
func (b BufferRecord) Len() int64 {
	n := int64(1)
	for _, d := range b.Shape {
		n *= d
	}
	return n
}

// Object is the decoded form of a kernel object.
type Object struct {
	Backend     string
	Target      string
	Method      string
	Symbol      string
	VectorWidth int
	Buffers     []BufferRecord
	Instrs      []Instr
	Constants   []float32
}

// Runtime lists the runtime symbols the object calls, in first-use order.
func (o *Object) Runtime() []string {
	var out []string
	seen := make(map[string]bool)
	for _, in := range o.Instrs {
		if in.Op == OpCall && !seen[in.Name] {
			seen[in.Name] = true
			out = append(out, in.Name)
		}
	}
	return out
}
