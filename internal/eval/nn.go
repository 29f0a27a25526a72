package eval

import (
	"fmt"
	"math"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
	"github.com/roach88/aotc/internal/tensor"
)

func init() {
	register(ops.Linear, linear)
	register(ops.Matmul, matmul)
	register(ops.Softmax, softmax)
	register(ops.Conv2d, conv2d)
	register(ops.BatchNorm, batchNorm)
	register(ops.AdaptiveAvgPool2d, adaptiveAvgPool2d)
}

func optionalTensor(args []graph.Literal, i int) (*tensor.Tensor, error) {
	if i >= len(args) || args[i].Kind == graph.LitNone {
		return nil, nil
	}
	return asTensor(args[i], fmt.Sprintf("argument %d", i))
}

func linear(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	x, err := asTensor(args[0], "input")
	if err != nil {
		return graph.Literal{}, err
	}
	w, err := asTensor(args[1], "weight")
	if err != nil {
		return graph.Literal{}, err
	}
	b, err := optionalTensor(args, 2)
	if err != nil {
		return graph.Literal{}, err
	}
	if len(x.Shape) == 0 || len(w.Shape) != 2 || x.Shape[len(x.Shape)-1] != w.Shape[1] {
		return graph.Literal{}, fmt.Errorf("cannot apply weight %v to input %v", w.Shape, x.Shape)
	}
	in, outF := w.Shape[1], w.Shape[0]
	rows := x.Shape.NumElements() / in
	shape := append(x.Shape[:len(x.Shape)-1].Clone(), outF)
	out := tensor.New(shape)
	for r := int64(0); r < rows; r++ {
		for o := int64(0); o < outF; o++ {
			var acc float32
			for k := int64(0); k < in; k++ {
				acc += x.Data[r*in+k] * w.Data[o*in+k]
			}
			if b != nil {
				acc += b.Data[o]
			}
			out.Data[r*outF+o] = acc
		}
	}
	return graph.TensorLit(out), nil
}

func matmul(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	a, err := asTensor(args[0], "lhs")
	if err != nil {
		return graph.Literal{}, err
	}
	b, err := asTensor(args[1], "rhs")
	if err != nil {
		return graph.Literal{}, err
	}
	if len(a.Shape) == 0 || len(b.Shape) == 0 {
		return graph.Literal{}, fmt.Errorf("operands must be at least 1-D")
	}
	as, bs := a.Shape, b.Shape
	if len(as) == 1 {
		as = tensor.Shape{1, as[0]}
	}
	if len(bs) == 1 {
		bs = tensor.Shape{bs[0], 1}
	}
	n, k := as[len(as)-2], as[len(as)-1]
	k2, m := bs[len(bs)-2], bs[len(bs)-1]
	if k != k2 {
		return graph.Literal{}, fmt.Errorf("inner dimensions differ: %v x %v", a.Shape, b.Shape)
	}
	batch, err := tensor.Broadcast(as[:len(as)-2], bs[:len(bs)-2])
	if err != nil {
		return graph.Literal{}, err
	}
	full := append(batch.Clone(), n, m)
	out := tensor.New(full)

	aBatch := tensor.BroadcastStrides(as[:len(as)-2], batch)
	bBatch := tensor.BroadcastStrides(bs[:len(bs)-2], batch)
	idx := make([]int64, len(batch))
	for bi := int64(0); bi < batch.NumElements(); bi++ {
		var ao, bo int64
		for d := range idx {
			ao += idx[d] * aBatch[d]
			bo += idx[d] * bBatch[d]
		}
		ao *= n * k
		bo *= k * m
		base := bi * n * m
		for i := int64(0); i < n; i++ {
			for j := int64(0); j < m; j++ {
				var acc float32
				for p := int64(0); p < k; p++ {
					acc += a.Data[ao+i*k+p] * b.Data[bo+p*m+j]
				}
				out.Data[base+i*m+j] = acc
			}
		}
		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < batch[d] {
				break
			}
			idx[d] = 0
		}
	}

	shape := batch.Clone()
	if len(a.Shape) > 1 {
		shape = append(shape, n)
	}
	if len(b.Shape) > 1 {
		shape = append(shape, m)
	}
	v, err := out.View(shape)
	if err != nil {
		return graph.Literal{}, err
	}
	return graph.TensorLit(v), nil
}

func softmax(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	x, err := asTensor(args[0], "input")
	if err != nil {
		return graph.Literal{}, err
	}
	d, err := intArg(args, 1, -1)
	if err != nil {
		return graph.Literal{}, err
	}
	axis, err := wrapDim(d, len(x.Shape))
	if err != nil {
		return graph.Literal{}, err
	}
	out := tensor.New(x.Shape)
	extent := x.Shape[axis]
	inner := x.Shape[axis+1:].NumElements()
	outer := x.Shape[:axis].NumElements()
	for o := int64(0); o < outer; o++ {
		for in := int64(0); in < inner; in++ {
			base := o*extent*inner + in
			maxV := math.Inf(-1)
			for e := int64(0); e < extent; e++ {
				maxV = math.Max(maxV, float64(x.Data[base+e*inner]))
			}
			var sum float64
			for e := int64(0); e < extent; e++ {
				sum += math.Exp(float64(x.Data[base+e*inner]) - maxV)
			}
			for e := int64(0); e < extent; e++ {
				out.Data[base+e*inner] = float32(math.Exp(float64(x.Data[base+e*inner])-maxV) / sum)
			}
		}
	}
	return graph.TensorLit(out), nil
}

func conv2d(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	x, err := asTensor(args[0], "input")
	if err != nil {
		return graph.Literal{}, err
	}
	w, err := asTensor(args[1], "weight")
	if err != nil {
		return graph.Literal{}, err
	}
	b, err := optionalTensor(args, 2)
	if err != nil {
		return graph.Literal{}, err
	}
	if len(x.Shape) != 4 || len(w.Shape) != 4 {
		return graph.Literal{}, fmt.Errorf("conv2d needs 4-D input and weight, got %v and %v", x.Shape, w.Shape)
	}
	p, err := convParams(args)
	if err != nil {
		return graph.Literal{}, err
	}
	N, C, H, W := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3]
	OC, ICg, KH, KW := w.Shape[0], w.Shape[1], w.Shape[2], w.Shape[3]
	if C != ICg*p.Groups || OC%p.Groups != 0 {
		return graph.Literal{}, fmt.Errorf("conv2d channels %d do not match weight %v with %d groups", C, w.Shape, p.Groups)
	}
	OH := ops.ConvOutputExtent(H, KH, p.Stride[0], p.Padding[0], p.Dilation[0])
	OW := ops.ConvOutputExtent(W, KW, p.Stride[1], p.Padding[1], p.Dilation[1])
	if OH <= 0 || OW <= 0 {
		return graph.Literal{}, fmt.Errorf("conv2d output would be empty")
	}
	out := tensor.New(tensor.Shape{N, OC, OH, OW})
	ocPerGroup := OC / p.Groups
	for ni := int64(0); ni < N; ni++ {
		for oc := int64(0); oc < OC; oc++ {
			g := oc / ocPerGroup
			for oh := int64(0); oh < OH; oh++ {
				for ow := int64(0); ow < OW; ow++ {
					var acc float32
					if b != nil {
						acc = b.Data[oc]
					}
					for ic := int64(0); ic < ICg; ic++ {
						c := g*ICg + ic
						for kh := int64(0); kh < KH; kh++ {
							ih := oh*p.Stride[0] - p.Padding[0] + kh*p.Dilation[0]
							if ih < 0 || ih >= H {
								continue
							}
							for kw := int64(0); kw < KW; kw++ {
								iw := ow*p.Stride[1] - p.Padding[1] + kw*p.Dilation[1]
								if iw < 0 || iw >= W {
									continue
								}
								acc += x.Data[((ni*C+c)*H+ih)*W+iw] * w.Data[((oc*ICg+ic)*KH+kh)*KW+kw]
							}
						}
					}
					out.Data[((ni*OC+oc)*OH+oh)*OW+ow] = acc
				}
			}
		}
	}
	return graph.TensorLit(out), nil
}

func convParams(args []graph.Literal) (ops.Conv2dParams, error) {
	p := ops.Conv2dParams{Stride: [2]int64{1, 1}, Dilation: [2]int64{1, 1}, Groups: 1}
	lists := []*[2]int64{&p.Stride, &p.Padding, &p.Dilation}
	for i, dst := range lists {
		idx := 3 + i
		if idx >= len(args) {
			continue
		}
		a := args[idx]
		switch {
		case a.Kind == graph.LitInt:
			*dst = [2]int64{a.Int, a.Int}
		case a.Kind == graph.LitInts && len(a.Ints) == 1:
			*dst = [2]int64{a.Ints[0], a.Ints[0]}
		case a.Kind == graph.LitInts && len(a.Ints) == 2:
			*dst = [2]int64{a.Ints[0], a.Ints[1]}
		default:
			return p, fmt.Errorf("conv2d argument %d must be an int list of length 1 or 2", idx)
		}
	}
	g, err := intArg(args, 6, 1)
	if err != nil {
		return p, err
	}
	if g <= 0 {
		return p, fmt.Errorf("groups must be positive")
	}
	p.Groups = g
	return p, nil
}

func batchNorm(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	if len(args) < 5 {
		return graph.Literal{}, fmt.Errorf("batch_norm needs input, weight, bias, running mean and running var")
	}
	x, err := asTensor(args[0], "input")
	if err != nil {
		return graph.Literal{}, err
	}
	gamma, err := optionalTensor(args, 1)
	if err != nil {
		return graph.Literal{}, err
	}
	beta, err := optionalTensor(args, 2)
	if err != nil {
		return graph.Literal{}, err
	}
	mean, err := asTensor(args[3], "running mean")
	if err != nil {
		return graph.Literal{}, err
	}
	variance, err := asTensor(args[4], "running var")
	if err != nil {
		return graph.Literal{}, err
	}
	if len(args) > 5 && args[5].Kind == graph.LitBool && args[5].Bool {
		return graph.Literal{}, fmt.Errorf("training-mode batch_norm cannot be evaluated ahead of time")
	}
	eps := 1e-5
	if len(args) > 7 {
		if v, ok := args[7].AsFloat(); ok {
			eps = v
		}
	}
	scale, shift := BatchNormAffine(gamma, beta, mean, variance, eps)
	if len(x.Shape) < 2 || x.Shape[1] != int64(len(scale)) {
		return graph.Literal{}, fmt.Errorf("batch_norm statistics do not match input %v", x.Shape)
	}
	C := x.Shape[1]
	inner := x.Shape[2:].NumElements()
	out := tensor.New(x.Shape)
	for i, v := range x.Data {
		c := (int64(i) / inner) % C
		out.Data[i] = v*scale[c] + shift[c]
	}
	return graph.TensorLit(out), nil
}

// BatchNormAffine reduces inference-mode batch norm to a per-channel
// scale and shift.
func BatchNormAffine(gamma, beta, mean, variance *tensor.Tensor, eps float64) (scale, shift []float32) {
	C := len(mean.Data)
	scale = make([]float32, C)
	shift = make([]float32, C)
	for c := 0; c < C; c++ {
		g, b := float32(1), float32(0)
		if gamma != nil {
			g = gamma.Data[c]
		}
		if beta != nil {
			b = beta.Data[c]
		}
		s := g / float32(math.Sqrt(float64(variance.Data[c])+eps))
		scale[c] = s
		shift[c] = b - mean.Data[c]*s
	}
	return scale, shift
}

func adaptiveAvgPool2d(_ *graph.Node, args []graph.Literal) (graph.Literal, error) {
	x, err := asTensor(args[0], "input")
	if err != nil {
		return graph.Literal{}, err
	}
	if len(x.Shape) != 3 && len(x.Shape) != 4 {
		return graph.Literal{}, fmt.Errorf("adaptive_avg_pool2d needs 3-D or 4-D input, got %v", x.Shape)
	}
	if len(args) < 2 || (args[1].Kind != graph.LitInts && args[1].Kind != graph.LitInt) {
		return graph.Literal{}, fmt.Errorf("output size must be an int list")
	}
	size := args[1].Ints
	if args[1].Kind == graph.LitInt {
		size = []int64{args[1].Int}
	}
	if len(size) == 1 {
		size = []int64{size[0], size[0]}
	}
	OH, OW := size[0], size[1]
	rank := len(x.Shape)
	H, W := x.Shape[rank-2], x.Shape[rank-1]
	planes := x.Shape[:rank-2].NumElements()
	shape := append(x.Shape[:rank-2].Clone(), OH, OW)
	out := tensor.New(shape)
	for p := int64(0); p < planes; p++ {
		for oh := int64(0); oh < OH; oh++ {
			h0, h1 := oh*H/OH, ((oh+1)*H+OH-1)/OH
			for ow := int64(0); ow < OW; ow++ {
				w0, w1 := ow*W/OW, ((ow+1)*W+OW-1)/OW
				var sum float32
				for h := h0; h < h1; h++ {
					for w := w0; w < w1; w++ {
						sum += x.Data[(p*H+h)*W+w]
					}
				}
				out.Data[(p*OH+oh)*OW+ow] = sum / float32((h1-h0)*(w1-w0))
			}
		}
	}
	return graph.TensorLit(out), nil
}
