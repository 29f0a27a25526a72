package ops

import (
	"fmt"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/tensor"
)

func tensorOut(s tensor.Shape) []graph.Type {
	return []graph.Type{graph.TensorType(s)}
}

func inputTensor(n *graph.Node, i int) (tensor.Shape, error) {
	if i >= len(n.Inputs) {
		return nil, fmt.Errorf("%s expects at least %d inputs, got %d", n.Kind, i+1, len(n.Inputs))
	}
	t := n.Inputs[i].Type
	if !t.IsTensor() {
		return nil, fmt.Errorf("%s input %d must be a Tensor, got %s", n.Kind, i, t)
	}
	return t.Shape, nil
}

func keepDeclared(n *graph.Node) ([]graph.Type, error) {
	types := make([]graph.Type, len(n.Outputs))
	for i, o := range n.Outputs {
		types[i] = o.Type
	}
	return types, nil
}

func scalarOf(t graph.Type) ShapeFn {
	return func(*graph.Node) ([]graph.Type, error) {
		return []graph.Type{t}, nil
	}
}

func sameAsInput(n *graph.Node) ([]graph.Type, error) {
	s, err := inputTensor(n, 0)
	if err != nil {
		return nil, err
	}
	return tensorOut(s), nil
}

func binaryShape(kind string) ShapeFn {
	return func(n *graph.Node) ([]graph.Type, error) {
		if err := checkArity(n, 2); err != nil {
			return nil, err
		}
		a, b := n.Inputs[0].Type, n.Inputs[1].Type
		if !a.IsTensor() && !b.IsTensor() {
			switch {
			case kind == Div:
				return []graph.Type{graph.FloatType}, nil
			case a.Kind == graph.KindInt && b.Kind == graph.KindInt:
				return []graph.Type{graph.IntType}, nil
			}
			return []graph.Type{graph.FloatType}, nil
		}
		switch {
		case a.IsTensor() && b.IsTensor():
			s, err := tensor.Broadcast(a.Shape, b.Shape)
			if err != nil {
				return nil, err
			}
			return tensorOut(s), nil
		case a.IsTensor():
			return tensorOut(a.Shape), nil
		}
		return tensorOut(b.Shape), nil
	}
}

func inPlaceBinaryShape(n *graph.Node) ([]graph.Type, error) {
	self, err := inputTensor(n, 0)
	if err != nil {
		return nil, err
	}
	if len(n.Inputs) > 1 && n.Inputs[1].Type.IsTensor() {
		out, err := tensor.Broadcast(self, n.Inputs[1].Type.Shape)
		if err != nil {
			return nil, err
		}
		if self.Complete() && out.Complete() && !out.Equal(self) {
			return nil, fmt.Errorf("in-place result shape %v differs from destination %v", out, self)
		}
	}
	return tensorOut(self), nil
}

func linearShape(n *graph.Node) ([]graph.Type, error) {
	x, err := inputTensor(n, 0)
	if err != nil {
		return nil, err
	}
	w, err := inputTensor(n, 1)
	if err != nil {
		return nil, err
	}
	if w != nil && len(w) != 2 {
		return nil, fmt.Errorf("linear weight must be 2-D, got %v", w)
	}
	if len(n.Inputs) > 2 && n.Inputs[2].Type.IsTensor() {
		b := n.Inputs[2].Type.Shape
		if b != nil && w != nil && len(b) == 1 && b[0] >= 0 && w[0] >= 0 && b[0] != w[0] {
			return nil, fmt.Errorf("linear bias %v does not match %d output features", b, w[0])
		}
	}
	if x == nil {
		return tensorOut(nil), nil
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("linear input must be at least 1-D")
	}
	outFeatures := tensor.Unknown
	if w != nil {
		in := x[len(x)-1]
		if in >= 0 && w[1] >= 0 && in != w[1] {
			return nil, fmt.Errorf("linear input features %d do not match weight %v", in, w)
		}
		outFeatures = w[0]
	}
	out := append(x[:len(x)-1].Clone(), outFeatures)
	return tensorOut(out), nil
}

func matmulShape(n *graph.Node) ([]graph.Type, error) {
	a, err := inputTensor(n, 0)
	if err != nil {
		return nil, err
	}
	b, err := inputTensor(n, 1)
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return tensorOut(nil), nil
	}
	if len(a) == 0 || len(b) == 0 {
		return nil, fmt.Errorf("matmul operands must be at least 1-D, got %v and %v", a, b)
	}
	aa, bb := a, b
	if len(a) == 1 {
		aa = tensor.Shape{1, a[0]}
	}
	if len(b) == 1 {
		bb = tensor.Shape{b[0], 1}
	}
	k1, k2 := aa[len(aa)-1], bb[len(bb)-2]
	if k1 >= 0 && k2 >= 0 && k1 != k2 {
		return nil, fmt.Errorf("matmul inner dimensions differ: %v x %v", a, b)
	}
	batch, err := tensor.Broadcast(aa[:len(aa)-2], bb[:len(bb)-2])
	if err != nil {
		return nil, err
	}
	out := batch.Clone()
	if out == nil {
		out = tensor.Shape{}
	}
	if len(a) > 1 {
		out = append(out, aa[len(aa)-2])
	}
	if len(b) > 1 {
		out = append(out, bb[len(bb)-1])
	}
	return tensorOut(out), nil
}

func transposeShape(n *graph.Node) ([]graph.Type, error) {
	x, err := inputTensor(n, 0)
	if err != nil || x == nil {
		return tensorOut(nil), err
	}
	switch len(x) {
	case 0, 1:
		return tensorOut(x), nil
	case 2:
		return tensorOut(tensor.Shape{x[1], x[0]}), nil
	}
	return nil, fmt.Errorf("t expects a tensor with at most 2 dimensions, got %v", x)
}

func normalizeDim(d int64, rank int) (int, error) {
	if d < 0 {
		d += int64(rank)
	}
	if d < 0 || d >= int64(rank) {
		return 0, fmt.Errorf("dimension %d out of range for rank %d", d, rank)
	}
	return int(d), nil
}

func flattenShape(n *graph.Node) ([]graph.Type, error) {
	x, err := inputTensor(n, 0)
	if err != nil {
		return nil, err
	}
	start, end := int64(0), int64(-1)
	if len(n.Inputs) > 1 {
		v, ok := ConstInt(n, 1)
		if !ok {
			return tensorOut(nil), nil
		}
		start = v
	}
	if len(n.Inputs) > 2 {
		v, ok := ConstInt(n, 2)
		if !ok {
			return tensorOut(nil), nil
		}
		end = v
	}
	if x == nil {
		return tensorOut(nil), nil
	}
	if len(x) == 0 {
		return tensorOut(tensor.Shape{1}), nil
	}
	s, err := normalizeDim(start, len(x))
	if err != nil {
		return nil, err
	}
	e, err := normalizeDim(end, len(x))
	if err != nil {
		return nil, err
	}
	if s > e {
		return nil, fmt.Errorf("flatten start dim %d is after end dim %d", s, e)
	}
	merged := int64(1)
	for _, d := range x[s : e+1] {
		if d < 0 {
			merged = tensor.Unknown
			break
		}
		var ok bool
		if merged, ok = tensor.MulExtents(merged, d); !ok {
			return nil, fmt.Errorf("flattening %v overflows int64", x)
		}
	}
	out := append(x[:s].Clone(), merged)
	out = append(out, x[e+1:]...)
	return tensorOut(out), nil
}

// reshapeTarget reads the requested sizes. Elements that are not constant
// are reported as unknown; the rank is known whenever the list length is.
func reshapeTarget(n *graph.Node) (dims []int64, known []bool, ok bool) {
	if vals, isConst := ConstInts(n, 1); isConst {
		known = make([]bool, len(vals))
		for i := range known {
			known[i] = true
		}
		return vals, known, true
	}
	if len(n.Inputs) < 2 || n.Inputs[1].Node == nil || n.Inputs[1].Node.Kind != ListConstruct {
		return nil, nil, false
	}
	elems := n.Inputs[1].Node.Inputs
	dims = make([]int64, len(elems))
	known = make([]bool, len(elems))
	for i, e := range elems {
		if lit, isConst := graph.ConstantOf(e); isConst {
			if v, isInt := lit.AsInt(); isInt {
				dims[i], known[i] = v, true
			}
		}
	}
	return dims, known, true
}

func reshapeShape(n *graph.Node) ([]graph.Type, error) {
	x, err := inputTensor(n, 0)
	if err != nil {
		return nil, err
	}
	dims, known, ok := reshapeTarget(n)
	if !ok {
		return tensorOut(nil), nil
	}
	out := make(tensor.Shape, len(dims))
	infer := -1
	product := int64(1)
	allKnown := true
	for i, d := range dims {
		switch {
		case !known[i]:
			out[i] = tensor.Unknown
			allKnown = false
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("only one dimension can be inferred in %v", dims)
			}
			infer = i
		case d < 0:
			return nil, fmt.Errorf("invalid size %d in %v", d, dims)
		default:
			out[i] = d
			var ok bool
			if product, ok = tensor.MulExtents(product, d); !ok {
				return nil, fmt.Errorf("shape %v overflows int64", dims)
			}
		}
	}
	complete := allKnown && x.Complete()
	var total int64
	if complete {
		if total, err = x.Count(); err != nil {
			return nil, err
		}
	}
	switch {
	case infer >= 0 && complete:
		if product == 0 || total%product != 0 {
			return nil, fmt.Errorf("shape %v is invalid for input %v", dims, x)
		}
		out[infer] = total / product
	case infer >= 0:
		out[infer] = tensor.Unknown
	case complete && product != total:
		return nil, fmt.Errorf("shape %v is invalid for input %v", dims, x)
	}
	return tensorOut(out), nil
}

func sizeShape(n *graph.Node) ([]graph.Type, error) {
	if _, err := inputTensor(n, 0); err != nil {
		return nil, err
	}
	if len(n.Inputs) > 1 {
		return []graph.Type{graph.IntType}, nil
	}
	return []graph.Type{graph.IntListType}, nil
}

func listConstructShape(n *graph.Node) ([]graph.Type, error) {
	floats := false
	for i, in := range n.Inputs {
		switch in.Type.Kind {
		case graph.KindInt:
		case graph.KindFloat:
			floats = true
		default:
			return nil, fmt.Errorf("list element %d has unsupported type %s", i, in.Type)
		}
	}
	if floats {
		return []graph.Type{graph.FloatListType}, nil
	}
	return []graph.Type{graph.IntListType}, nil
}

// pair expands a one- or two-element int list to two values.
func pair(vals []int64, name string) ([2]int64, error) {
	switch len(vals) {
	case 1:
		return [2]int64{vals[0], vals[0]}, nil
	case 2:
		return [2]int64{vals[0], vals[1]}, nil
	}
	return [2]int64{}, fmt.Errorf("%s must have 1 or 2 elements, got %v", name, vals)
}

// Conv2dParams are the static hyper-parameters of a conv2d node.
type Conv2dParams struct {
	Stride, Padding, Dilation [2]int64
	Groups                    int64
}

// Conv2dParamsOf reads stride, padding, dilation and groups, applying
// defaults for absent inputs. ok is false when any present input is not
// constant.
func Conv2dParamsOf(n *graph.Node) (p Conv2dParams, ok bool, err error) {
	p = Conv2dParams{Stride: [2]int64{1, 1}, Dilation: [2]int64{1, 1}, Groups: 1}
	lists := []struct {
		idx  int
		name string
		dst  *[2]int64
	}{{3, "stride", &p.Stride}, {4, "padding", &p.Padding}, {5, "dilation", &p.Dilation}}
	for _, l := range lists {
		if l.idx >= len(n.Inputs) {
			continue
		}
		vals, isConst := ConstInts(n, l.idx)
		if !isConst {
			return p, false, nil
		}
		v, err := pair(vals, l.name)
		if err != nil {
			return p, false, err
		}
		*l.dst = v
	}
	if len(n.Inputs) > 6 {
		g, isConst := ConstInt(n, 6)
		if !isConst {
			return p, false, nil
		}
		p.Groups = g
	}
	if p.Groups <= 0 {
		return p, false, fmt.Errorf("groups must be positive, got %d", p.Groups)
	}
	return p, true, nil
}

// ConvOutputExtent is the spatial output size of a convolution.
func ConvOutputExtent(in, kernel, stride, padding, dilation int64) int64 {
	return (in+2*padding-dilation*(kernel-1)-1)/stride + 1
}

func conv2dShape(n *graph.Node) ([]graph.Type, error) {
	x, err := inputTensor(n, 0)
	if err != nil {
		return nil, err
	}
	w, err := inputTensor(n, 1)
	if err != nil {
		return nil, err
	}
	if x != nil && len(x) != 4 {
		return nil, fmt.Errorf("conv2d input must be 4-D (N, C, H, W), got %v", x)
	}
	if w != nil && len(w) != 4 {
		return nil, fmt.Errorf("conv2d weight must be 4-D, got %v", w)
	}
	p, ok, err := Conv2dParamsOf(n)
	if err != nil {
		return nil, err
	}
	if x == nil || w == nil {
		return tensorOut(tensor.Shape{tensor.Unknown, tensor.Unknown, tensor.Unknown, tensor.Unknown}), nil
	}
	if ok && x[1] >= 0 && w[1] >= 0 && x[1] != w[1]*p.Groups {
		return nil, fmt.Errorf("conv2d input has %d channels, weight %v with %d groups expects %d", x[1], w, p.Groups, w[1]*p.Groups)
	}
	out := tensor.Shape{x[0], w[0], tensor.Unknown, tensor.Unknown}
	if !ok {
		return tensorOut(out), nil
	}
	for i := 0; i < 2; i++ {
		in, k := x[2+i], w[2+i]
		if in < 0 || k < 0 {
			continue
		}
		if p.Stride[i] <= 0 || p.Dilation[i] <= 0 || p.Padding[i] < 0 {
			return nil, fmt.Errorf("conv2d has invalid stride/padding/dilation %+v", p)
		}
		ext := ConvOutputExtent(in, k, p.Stride[i], p.Padding[i], p.Dilation[i])
		if ext <= 0 {
			return nil, fmt.Errorf("conv2d output would be empty for input %v and weight %v", x, w)
		}
		out[2+i] = ext
	}
	return tensorOut(out), nil
}

func batchNormShape(n *graph.Node) ([]graph.Type, error) {
	x, err := inputTensor(n, 0)
	if err != nil {
		return nil, err
	}
	if x != nil && len(x) < 2 {
		return nil, fmt.Errorf("batch_norm input must be at least 2-D, got %v", x)
	}
	if x != nil && len(n.Inputs) > 3 && n.Inputs[3].Type.IsTensor() {
		mean := n.Inputs[3].Type.Shape
		if len(mean) == 1 && mean[0] >= 0 && x[1] >= 0 && mean[0] != x[1] {
			return nil, fmt.Errorf("batch_norm statistics %v do not match %d channels", mean, x[1])
		}
	}
	return tensorOut(x), nil
}

func adaptivePoolShape(n *graph.Node) ([]graph.Type, error) {
	x, err := inputTensor(n, 0)
	if err != nil {
		return nil, err
	}
	if x == nil {
		return tensorOut(nil), nil
	}
	if len(x) != 3 && len(x) != 4 {
		return nil, fmt.Errorf("adaptive_avg_pool2d input must be 3-D or 4-D, got %v", x)
	}
	out := x[:len(x)-2].Clone()
	size, ok := ConstInts(n, 1)
	if !ok {
		return tensorOut(append(out, tensor.Unknown, tensor.Unknown)), nil
	}
	hw, err := pair(size, "output_size")
	if err != nil {
		return nil, err
	}
	if hw[0] <= 0 || hw[1] <= 0 {
		return nil, fmt.Errorf("adaptive_avg_pool2d output size must be positive, got %v", size)
	}
	return tensorOut(append(out, hw[0], hw[1])), nil
}
