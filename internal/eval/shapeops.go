package eval

import (
	"fmt"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
	"github.com/roach88/aotc/internal/tensor"
)

func init() {
	register(ops.ListConstruct, listConstruct)
	register(ops.Size, size)
	register(ops.Dim, dim)
	register(ops.View, reshape)
	register(ops.Reshape, reshape)
	register(ops.Flatten, flatten)
	register(ops.Contiguous, identity)
	register(ops.Dropout, dropout)
	register(ops.Transpose, transpose)
}

func listConstruct(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	ints := make([]int64, 0, len(args))
	floats := make([]float64, 0, len(args))
	allInts := true
	for i, a := range args {
		switch a.Kind {
		case graph.LitInt:
			ints = append(ints, a.Int)
			floats = append(floats, float64(a.Int))
		case graph.LitFloat:
			allInts = false
			floats = append(floats, a.Float)
		default:
			return graph.Literal{}, fmt.Errorf("list element %d is not a number", i)
		}
	}
	if allInts {
		return graph.IntsLit(ints), nil
	}
	return graph.FloatsLit(floats), nil
}

func intArg(args []graph.Literal, i int, def int64) (int64, error) {
	if i >= len(args) {
		return def, nil
	}
	v, ok := args[i].AsInt()
	if !ok {
		return 0, fmt.Errorf("argument %d must be an int", i)
	}
	return v, nil
}

func wrapDim(d int64, rank int) (int, error) {
	if d < 0 {
		d += int64(rank)
	}
	if d < 0 || d >= int64(rank) {
		return 0, fmt.Errorf("dimension out of range for rank %d", rank)
	}
	return int(d), nil
}

func size(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	x, err := asTensor(args[0], "input")
	if err != nil {
		return graph.Literal{}, err
	}
	if len(args) == 1 {
		return graph.IntsLit(x.Shape), nil
	}
	d, err := intArg(args, 1, 0)
	if err != nil {
		return graph.Literal{}, err
	}
	i, err := wrapDim(d, len(x.Shape))
	if err != nil {
		return graph.Literal{}, err
	}
	return graph.IntLit(x.Shape[i]), nil
}

func dim(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	x, err := asTensor(args[0], "input")
	if err != nil {
		return graph.Literal{}, err
	}
	return graph.IntLit(int64(len(x.Shape))), nil
}

func reshape(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	x, err := asTensor(args[0], "input")
	if err != nil {
		return graph.Literal{}, err
	}
	if len(args) < 2 || args[1].Kind != graph.LitInts {
		return graph.Literal{}, fmt.Errorf("sizes must be an int list")
	}
	sizes := tensor.Shape(args[1].Ints).Clone()
	infer := -1
	known := int64(1)
	for i, d := range sizes {
		if d == -1 {
			if infer >= 0 {
				return graph.Literal{}, fmt.Errorf("only one dimension can be inferred")
			}
			infer = i
			continue
		}
		known *= d
	}
	if infer >= 0 {
		if known == 0 || x.Shape.NumElements()%known != 0 {
			return graph.Literal{}, fmt.Errorf("shape %v is invalid for input %v", args[1].Ints, x.Shape)
		}
		sizes[infer] = x.Shape.NumElements() / known
	}
	v, err := x.View(sizes)
	if err != nil {
		return graph.Literal{}, err
	}
	return graph.TensorLit(v), nil
}

func flatten(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	x, err := asTensor(args[0], "input")
	if err != nil {
		return graph.Literal{}, err
	}
	if len(x.Shape) == 0 {
		v, err := x.View(tensor.Shape{1})
		return graph.TensorLit(v), err
	}
	start, err := intArg(args, 1, 0)
	if err != nil {
		return graph.Literal{}, err
	}
	end, err := intArg(args, 2, -1)
	if err != nil {
		return graph.Literal{}, err
	}
	s, err := wrapDim(start, len(x.Shape))
	if err != nil {
		return graph.Literal{}, err
	}
	e, err := wrapDim(end, len(x.Shape))
	if err != nil {
		return graph.Literal{}, err
	}
	if s > e {
		return graph.Literal{}, fmt.Errorf("start dim after end dim")
	}
	shape := x.Shape[:s].Clone()
	shape = append(shape, x.Shape[s:e+1].NumElements())
	shape = append(shape, x.Shape[e+1:]...)
	v, err := x.View(shape)
	if err != nil {
		return graph.Literal{}, err
	}
	return graph.TensorLit(v), nil
}

func identity(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	if _, err := asTensor(args[0], "input"); err != nil {
		return graph.Literal{}, err
	}
	return args[0], nil
}

func dropout(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	if len(args) > 2 && args[2].Kind == graph.LitBool && args[2].Bool {
		return graph.Literal{}, fmt.Errorf("training-mode dropout is not deterministic")
	}
	return identity(nil, args)
}

func transpose(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	x, err := asTensor(args[0], "input")
	if err != nil {
		return graph.Literal{}, err
	}
	switch len(x.Shape) {
	case 0, 1:
		return graph.TensorLit(x.Clone()), nil
	case 2:
	default:
		return graph.Literal{}, fmt.Errorf("t expects at most 2 dimensions, got %v", x.Shape)
	}
	rows, cols := x.Shape[0], x.Shape[1]
	out := tensor.New(tensor.Shape{cols, rows})
	for r := int64(0); r < rows; r++ {
		for c := int64(0); c < cols; c++ {
			out.Data[c*rows+r] = x.Data[r*cols+c]
		}
	}
	return graph.TensorLit(out), nil
}
