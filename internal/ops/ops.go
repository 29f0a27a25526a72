// Package ops describes the operators the compiler understands: their
// effects, aliasing behavior and shape-inference rules.
package ops

import (
	"fmt"
	"maps"
	"slices"

	"github.com/roach88/aotc/internal/graph"
)

// Structural operators.
const (
	Constant       = graph.KindConstant
	GetAttr        = "prim::GetAttr"
	SetAttr        = "prim::SetAttr"
	CallMethod     = "prim::CallMethod"
	ListConstruct  = "prim::ListConstruct"
	RaiseException = "prim::RaiseException"
	Print          = "prim::Print"
)

// Tensor and scalar operators.
const (
	Relu              = "aten::relu"
	Sigmoid           = "aten::sigmoid"
	Tanh              = "aten::tanh"
	Neg               = "aten::neg"
	Exp               = "aten::exp"
	Clamp             = "aten::clamp"
	Add               = "aten::add"
	Sub               = "aten::sub"
	Mul               = "aten::mul"
	Div               = "aten::div"
	FloorDiv          = "aten::floordiv"
	Linear            = "aten::linear"
	Matmul            = "aten::matmul"
	Transpose         = "aten::t"
	Flatten           = "aten::flatten"
	View              = "aten::view"
	Reshape           = "aten::reshape"
	Contiguous        = "aten::contiguous"
	Size              = "aten::size"
	Dim               = "aten::dim"
	Dropout           = "aten::dropout"
	Softmax           = "aten::softmax"
	Conv2d            = "aten::conv2d"
	BatchNorm         = "aten::batch_norm"
	AdaptiveAvgPool2d = "aten::adaptive_avg_pool2d"
)

// ShapeFn computes output types from a node's input types and constant
// inputs. Unknown inputs yield unknown outputs; only definite
// incompatibilities are errors.
type ShapeFn func(n *graph.Node) ([]graph.Type, error)

// Info describes one operator kind.
type Info struct {
	Kind string
	// Functional is the out-of-place equivalent of an in-place operator.
	Functional string
	// View operators return a value aliasing their first input's storage.
	View bool
	// SideEffects operators must never be removed or reordered.
	SideEffects bool
	Shape       ShapeFn
}

// InPlace reports whether the operator mutates its first input.
func (i *Info) InPlace() bool { return i.Functional != "" }

// Registry maps operator kinds to their descriptions.
type Registry struct {
	infos map[string]*Info
}

// NewRegistry returns a registry holding every built-in operator.
func NewRegistry() *Registry {
	r := &Registry{infos: make(map[string]*Info)}
	r.registerStructural()
	r.registerElementwise()
	r.registerLinearAlgebra()
	r.registerShapeOps()
	r.registerNN()
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the shared built-in registry. Treat it as read-only.
func Default() *Registry { return defaultRegistry }

// Register adds or replaces an operator description.
func (r *Registry) Register(info *Info) {
	r.infos[info.Kind] = info
}

// Lookup returns the description of kind.
func (r *Registry) Lookup(kind string) (*Info, bool) {
	info, ok := r.infos[kind]
	return info, ok
}

// Functional returns the out-of-place form of an in-place kind.
func (r *Registry) Functional(kind string) (string, bool) {
	info, ok := r.infos[kind]
	if !ok || !info.InPlace() {
		return "", false
	}
	return info.Functional, true
}

// IsView reports whether kind aliases its first input.
func (r *Registry) IsView(kind string) bool {
	info, ok := r.infos[kind]
	return ok && info.View
}

// HasSideEffects reports whether kind must be kept regardless of uses.
func (r *Registry) HasSideEffects(kind string) bool {
	info, ok := r.infos[kind]
	return ok && info.SideEffects
}

// Pure reports whether a node of this kind may be evaluated at compile
// time when all its inputs are constant.
func (r *Registry) Pure(kind string) bool {
	info, ok := r.infos[kind]
	if !ok || info.SideEffects || info.InPlace() {
		return false
	}
	switch kind {
	case Constant, GetAttr, SetAttr, CallMethod:
		return false
	}
	return true
}

// Kinds lists registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	return slices.Sorted(maps.Keys(r.infos))
}

func (r *Registry) registerStructural() {
	r.Register(&Info{Kind: Constant, Shape: keepDeclared})
	r.Register(&Info{Kind: GetAttr, Shape: keepDeclared})
	r.Register(&Info{Kind: SetAttr, SideEffects: true})
	r.Register(&Info{Kind: CallMethod, SideEffects: true, Shape: keepDeclared})
	r.Register(&Info{Kind: RaiseException, SideEffects: true})
	r.Register(&Info{Kind: Print, SideEffects: true})
	r.Register(&Info{Kind: ListConstruct, Shape: listConstructShape})
}

func (r *Registry) registerElementwise() {
	for _, kind := range []string{Relu, Sigmoid, Tanh, Neg, Exp, Clamp} {
		r.Register(&Info{Kind: kind, Shape: sameAsInput})
		r.Register(&Info{Kind: kind + "_", Functional: kind, Shape: sameAsInput})
	}
	for _, kind := range []string{Add, Sub, Mul, Div} {
		r.Register(&Info{Kind: kind, Shape: binaryShape(kind)})
		r.Register(&Info{Kind: kind + "_", Functional: kind, Shape: inPlaceBinaryShape})
	}
	r.Register(&Info{Kind: FloorDiv, Shape: binaryShape(FloorDiv)})
}

func (r *Registry) registerLinearAlgebra() {
	r.Register(&Info{Kind: Linear, Shape: linearShape})
	r.Register(&Info{Kind: Matmul, Shape: matmulShape})
	r.Register(&Info{Kind: Transpose, Shape: transposeShape})
}

func (r *Registry) registerShapeOps() {
	r.Register(&Info{Kind: Flatten, View: true, Shape: flattenShape})
	r.Register(&Info{Kind: View, View: true, Shape: reshapeShape})
	r.Register(&Info{Kind: Reshape, View: true, Shape: reshapeShape})
	r.Register(&Info{Kind: Contiguous, View: true, Shape: sameAsInput})
	r.Register(&Info{Kind: Size, Shape: sizeShape})
	r.Register(&Info{Kind: Dim, Shape: scalarOf(graph.IntType)})
}

func (r *Registry) registerNN() {
	r.Register(&Info{Kind: Dropout, Shape: sameAsInput})
	r.Register(&Info{Kind: Softmax, Shape: sameAsInput})
	r.Register(&Info{Kind: Conv2d, Shape: conv2dShape})
	r.Register(&Info{Kind: BatchNorm, Shape: batchNormShape})
	r.Register(&Info{Kind: AdaptiveAvgPool2d, Shape: adaptivePoolShape})
}

// ConstInput returns the literal feeding input i if it is a constant.
func ConstInput(n *graph.Node, i int) (graph.Literal, bool) {
	if i >= len(n.Inputs) {
		return graph.Literal{}, false
	}
	return graph.ConstantOf(n.Inputs[i])
}

// ConstInts returns input i as an int list, accepting a single int.
func ConstInts(n *graph.Node, i int) ([]int64, bool) {
	lit, ok := ConstInput(n, i)
	if !ok {
		return nil, false
	}
	switch lit.Kind {
	case graph.LitInts:
		return lit.Ints, true
	case graph.LitInt:
		return []int64{lit.Int}, true
	}
	return nil, false
}

// ConstInt returns input i as an int.
func ConstInt(n *graph.Node, i int) (int64, bool) {
	lit, ok := ConstInput(n, i)
	if !ok {
		return 0, false
	}
	return lit.AsInt()
}

func checkArity(n *graph.Node, want int) error {
	if len(n.Inputs) < want {
		return fmt.Errorf("%s expects at least %d inputs, got %d", n.Kind, want, len(n.Inputs))
	}
	return nil
}
