package eval

import (
	"fmt"
	"math"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
	"github.com/roach88/aotc/internal/tensor"
)

func init() {
	unary := map[string]func(float32) float32{
		ops.Relu: func(x float32) float32 {
			if x > 0 {
				return x
			}
			return 0
		},
		ops.Sigmoid: func(x float32) float32 { return float32(1 / (1 + math.Exp(-float64(x)))) },
		ops.Tanh:    func(x float32) float32 { return float32(math.Tanh(float64(x))) },
		ops.Neg:     func(x float32) float32 { return -x },
		ops.Exp:     func(x float32) float32 { return float32(math.Exp(float64(x))) },
	}
	for kind, f := range unary {
		k := unaryKernel(f)
		register(kind, k)
		register(kind+"_", inPlace(k))
	}
	register(ops.Clamp, clamp)
	register(ops.Clamp+"_", inPlace(clamp))

	for _, kind := range []string{ops.Add, ops.Sub, ops.Mul, ops.Div} {
		k := binaryKernel(kind)
		register(kind, k)
		register(kind+"_", inPlace(k))
	}
	register(ops.FloorDiv, binaryKernel(ops.FloorDiv))
}

func asTensor(l graph.Literal, what string) (*tensor.Tensor, error) {
	if l.Kind != graph.LitTensor || l.Tensor == nil {
		return nil, fmt.Errorf("%s must be a tensor", what)
	}
	return l.Tensor, nil
}

func unaryKernel(f func(float32) float32) Kernel {
	return func(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
		x, err := asTensor(args[0], "input")
		if err != nil {
			return graph.Literal{}, err
		}
		out := tensor.New(x.Shape)
		for i, v := range x.Data {
			out.Data[i] = f(v)
		}
		return graph.TensorLit(out), nil
	}
}

// inPlace wraps a functional kernel so the result is written back into the
// first argument's storage and that same tensor is returned.
func inPlace(k Kernel) Kernel {
	return func(n *graph.Node, args []graph.Literal) (graph.Literal, error) {
		dst, err := asTensor(args[0], "in-place destination")
		if err != nil {
			return graph.Literal{}, err
		}
		res, err := k(n, args)
		if err != nil {
			return graph.Literal{}, err
		}
		if !res.Tensor.Shape.Equal(dst.Shape) {
			return graph.Literal{}, fmt.Errorf("in-place result shape %v differs from destination %v", res.Tensor.Shape, dst.Shape)
		}
		copy(dst.Data, res.Tensor.Data)
		return args[0], nil
	}
}

func optionalScalar(l graph.Literal) (float64, bool) {
	if l.Kind == graph.LitNone {
		return 0, false
	}
	return l.AsFloat()
}

func clamp(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	x, err := asTensor(args[0], "input")
	if err != nil {
		return graph.Literal{}, err
	}
	lo, hasLo := math.Inf(-1), false
	hi, hasHi := math.Inf(1), false
	if len(args) > 1 {
		if v, ok := optionalScalar(args[1]); ok {
			lo, hasLo = v, true
		}
	}
	if len(args) > 2 {
		if v, ok := optionalScalar(args[2]); ok {
			hi, hasHi = v, true
		}
	}
	if !hasLo && !hasHi {
		return graph.Literal{}, fmt.Errorf("clamp needs at least one bound")
	}
	out := tensor.New(x.Shape)
	for i, v := range x.Data {
		out.Data[i] = float32(math.Min(math.Max(float64(v), lo), hi))
	}
	return graph.TensorLit(out), nil
}

func scalarOp(kind string, a, b graph.Literal, alpha float64) (graph.Literal, error) {
	ai, aInt := a.AsInt()
	bi, bInt := b.AsInt()
	if aInt && bInt && kind != ops.Div {
		ialpha := int64(alpha)
		switch kind {
		case ops.Add:
			return graph.IntLit(ai + ialpha*bi), nil
		case ops.Sub:
			return graph.IntLit(ai - ialpha*bi), nil
		case ops.Mul:
			return graph.IntLit(ai * bi), nil
		case ops.FloorDiv:
			if bi == 0 {
				return graph.Literal{}, fmt.Errorf("integer division by zero")
			}
			q := ai / bi
			if (ai%bi != 0) && ((ai < 0) != (bi < 0)) {
				q--
			}
			return graph.IntLit(q), nil
		}
	}
	af, ok1 := a.AsFloat()
	bf, ok2 := b.AsFloat()
	if !ok1 || !ok2 {
		return graph.Literal{}, fmt.Errorf("operands must be numbers")
	}
	switch kind {
	case ops.Add:
		return graph.FloatLit(af + alpha*bf), nil
	case ops.Sub:
		return graph.FloatLit(af - alpha*bf), nil
	case ops.Mul:
		return graph.FloatLit(af * bf), nil
	case ops.Div:
		return graph.FloatLit(af / bf), nil
	case ops.FloorDiv:
		return graph.FloatLit(math.Floor(af / bf)), nil
	}
	return graph.Literal{}, fmt.Errorf("unknown scalar operator %s", kind)
}

func scalarTensor(l graph.Literal) (*tensor.Tensor, error) {
	if l.Kind == graph.LitTensor {
		return l.Tensor, nil
	}
	f, ok := l.AsFloat()
	if !ok {
		return nil, fmt.Errorf("operand must be a tensor or a number")
	}
	return tensor.Full(tensor.Shape{}, float32(f)), nil
}

func binaryKernel(kind string) Kernel {
	return func(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
		if len(args) < 2 {
			return graph.Literal{}, fmt.Errorf("needs two operands")
		}
		alpha := 1.0
		if len(args) > 2 && (kind == ops.Add || kind == ops.Sub) {
			v, ok := args[2].AsFloat()
			if !ok {
				return graph.Literal{}, fmt.Errorf("alpha must be a number")
			}
			alpha = v
		}
		a, b := args[0], args[1]
		if a.Kind != graph.LitTensor && b.Kind != graph.LitTensor {
			return scalarOp(kind, a, b, alpha)
		}
		at, err := scalarTensor(a)
		if err != nil {
			return graph.Literal{}, err
		}
		bt, err := scalarTensor(b)
		if err != nil {
			return graph.Literal{}, err
		}
		var f func(x, y float32) float32
		switch kind {
		case ops.Add:
			f = func(x, y float32) float32 { return x + float32(alpha)*y }
		case ops.Sub:
			f = func(x, y float32) float32 { return x - float32(alpha)*y }
		case ops.Mul:
			f = func(x, y float32) float32 { return x * y }
		case ops.Div:
			f = func(x, y float32) float32 { return x / y }
		default:
			f = func(x, y float32) float32 { return float32(math.Floor(float64(x / y))) }
		}
		out, err := Broadcast(at, bt, f)
		if err != nil {
			return graph.Literal{}, err
		}
		return graph.TensorLit(out), nil
	}
}

// Broadcast applies f element-wise under NumPy broadcasting.
func Broadcast(a, b *tensor.Tensor, f func(x, y float32) float32) (*tensor.Tensor, error) {
	shape, err := tensor.Broadcast(a.Shape, b.Shape)
	if err != nil {
		return nil, err
	}
	out := tensor.New(shape)
	as := tensor.BroadcastStrides(a.Shape, shape)
	bs := tensor.BroadcastStrides(b.Shape, shape)
	idx := make([]int64, len(shape))
	for i := range out.Data {
		var ao, bo int64
		for d := range idx {
			ao += idx[d] * as[d]
			bo += idx[d] * bs[d]
		}
		out.Data[i] = f(a.Data[ao], b.Data[bo])
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}
