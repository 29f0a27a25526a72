package ir

import "slices"

// ArgRole says whether a kernel argument is read or written.
type ArgRole string

const (
	RoleInput  ArgRole = "in"
	RoleOutput ArgRole = "out"
)

// DTypeF32 is the only element type kernels are specialized for.
const DTypeF32 = "f32"

// KernelArg is one positional buffer of a kernel's calling convention.
type KernelArg struct {
	Index   int     `json:"index"`
	Role    ArgRole `json:"role"`
	Name    string  `json:"name"`
	DType   string  `json:"dtype"`
	Sizes   []int64 `json:"sizes"`
	Strides []int64 `json:"strides"`
}

// CallingConvention lists tensor inputs then tensor outputs, each with fixed
// sizes and strides.
type CallingConvention struct {
	Args []KernelArg `json:"args"`
}

// Inputs returns the input arguments in order.
func (cc CallingConvention) Inputs() []KernelArg {
	return cc.byRole(RoleInput)
}

// Outputs returns the output arguments in order.
func (cc CallingConvention) Outputs() []KernelArg {
	return cc.byRole(RoleOutput)
}

func (cc CallingConvention) byRole(role ArgRole) []KernelArg {
	var out []KernelArg
	for _, a := range cc.Args {
		if a.Role == role {
			out = append(out, a)
		}
	}
	return out
}

// Canonical returns the convention as a canonical value.
func (cc CallingConvention) Canonical() Value {
	args := make(Array, len(cc.Args))
	for i, a := range cc.Args {
		args[i] = Object{
			"index":   Int(a.Index),
			"role":    String(a.Role),
			"name":    String(a.Name),
			"dtype":   String(a.DType),
			"sizes":   Ints(a.Sizes),
			"strides": Ints(a.Strides),
		}
	}
	return Object{"args": args}
}

// EntryBinding points a descriptor at native code.
type EntryBinding struct {
	Symbol       string `json:"symbol"`
	ObjectDigest string `json:"object_digest"`
}

// InvocationDescriptor is the runtime's recipe for calling one compiled
// method. It is immutable once built.
type InvocationDescriptor struct {
	Method      string       `json:"method"`
	KernelID    string       `json:"kernel_id"`
	InputSizes  [][]int64    `json:"input_sizes"`
	OutputSizes [][]int64    `json:"output_sizes"`
	Entry       EntryBinding `json:"entry"`
}

// Clone returns a deep copy.
func (d InvocationDescriptor) Clone() InvocationDescriptor {
	out := d
	out.InputSizes = cloneSizes(d.InputSizes)
	out.OutputSizes = cloneSizes(d.OutputSizes)
	return out
}

// Canonical returns the descriptor as a canonical value.
func (d InvocationDescriptor) Canonical() Value {
	return Object{
		"method":       String(d.Method),
		"kernel_id":    String(d.KernelID),
		"input_sizes":  sizesArray(d.InputSizes),
		"output_sizes": sizesArray(d.OutputSizes),
		"entry": Object{
			"symbol":        String(d.Entry.Symbol),
			"object_digest": String(d.Entry.ObjectDigest),
		},
	}
}

func sizesArray(sizes [][]int64) Array {
	arr := make(Array, len(sizes))
	for i, s := range sizes {
		arr[i] = Ints(s)
	}
	return arr
}

func cloneSizes(sizes [][]int64) [][]int64 {
	if sizes == nil {
		return nil
	}
	out := make([][]int64, len(sizes))
	for i, s := range sizes {
		out[i] = slices.Clone(s)
	}
	return out
}
