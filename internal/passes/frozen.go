package passes

import (
	"slices"

	"github.com/roach88/aotc/internal/eval"
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
	"github.com/roach88/aotc/internal/tensor"
)

// OptimizeFrozenGraph applies inference-only rewrites that need frozen
// parameters: eval-mode dropout is dropped, batch norm is folded into a
// preceding convolution, and constant bias additions are folded into
// linear layers. Dead nodes are removed afterwards.
func OptimizeFrozenGraph(g *graph.Graph) (*graph.Graph, bool) {
	changed := false
	for _, n := range slices.Clone(g.Nodes) {
		var folded bool
		switch n.Kind {
		case ops.Dropout:
			folded = dropEvalDropout(g, n)
		case ops.BatchNorm:
			folded = foldConvBatchNorm(g, n)
		case ops.Add:
			folded = foldLinearBias(g, n)
		}
		changed = changed || folded
	}
	g, removed := EliminateDeadCode(g)
	return g, changed || removed
}

func dropEvalDropout(g *graph.Graph, n *graph.Node) bool {
	train, ok := ops.ConstInput(n, 2)
	if !ok || train.Kind != graph.LitBool || train.Bool {
		return false
	}
	g.ReplaceAllUsesWith(n.Output(), n.Inputs[0])
	return true
}

func constTensor(v *graph.Value) (*tensor.Tensor, bool) {
	lit, ok := graph.ConstantOf(v)
	if !ok || lit.Kind != graph.LitTensor {
		return nil, false
	}
	return lit.Tensor, true
}

// optionalConstTensor accepts a constant tensor or None.
func optionalConstTensor(n *graph.Node, i int) (t *tensor.Tensor, ok bool) {
	if i >= len(n.Inputs) {
		return nil, true
	}
	lit, isConst := graph.ConstantOf(n.Inputs[i])
	switch {
	case !isConst:
		return nil, false
	case lit.Kind == graph.LitNone:
		return nil, true
	case lit.Kind == graph.LitTensor:
		return lit.Tensor, true
	}
	return nil, false
}

func soleUse(g *graph.Graph, v *graph.Value, by *graph.Node) bool {
	uses := g.Uses(v)
	return len(uses) == 1 && uses[0].Node == by && !g.Pinned(v)
}

func foldConvBatchNorm(g *graph.Graph, bn *graph.Node) bool {
	if len(bn.Inputs) < 5 {
		return false
	}
	conv := bn.Inputs[0].Node
	if conv == nil || conv.Kind != ops.Conv2d || len(conv.Inputs) < 2 || !soleUse(g, conv.Output(), bn) {
		return false
	}
	if len(bn.Inputs) > 5 {
		train, ok := ops.ConstInput(bn, 5)
		if !ok || train.Kind != graph.LitBool || train.Bool {
			return false
		}
	}
	w, ok := constTensor(conv.Inputs[1])
	if !ok || len(w.Shape) != 4 {
		return false
	}
	bias, ok := optionalConstTensor(conv, 2)
	if !ok {
		return false
	}
	gamma, okGamma := optionalConstTensor(bn, 1)
	beta, okBeta := optionalConstTensor(bn, 2)
	mean, okMean := constTensor(bn.Inputs[3])
	variance, okVar := constTensor(bn.Inputs[4])
	if !okGamma || !okBeta || !okMean || !okVar {
		return false
	}
	oc := int(w.Shape[0])
	for _, t := range []*tensor.Tensor{bias, gamma, beta, mean, variance} {
		if t != nil && len(t.Data) != oc {
			return false
		}
	}
	eps := 1e-5
	if lit, ok := ops.ConstInput(bn, 7); ok {
		if v, ok := lit.AsFloat(); ok {
			eps = v
		}
	}

	scale, shift := eval.BatchNormAffine(gamma, beta, mean, variance, eps)
	weight := w.Clone()
	per := len(weight.Data) / oc
	for o := 0; o < oc; o++ {
		for k := 0; k < per; k++ {
			weight.Data[o*per+k] *= scale[o]
		}
	}
	b := tensor.New(tensor.Shape{int64(oc)})
	for o := range b.Data {
		b.Data[o] = shift[o]
		if bias != nil {
			b.Data[o] += bias.Data[o] * scale[o]
		}
	}

	conv.Inputs[1] = g.InsertConstantBefore(conv, graph.TensorLit(weight))
	bv := g.InsertConstantBefore(conv, graph.TensorLit(b))
	if len(conv.Inputs) > 2 {
		conv.Inputs[2] = bv
	} else {
		conv.Inputs = append(conv.Inputs, bv)
	}
	g.ReplaceAllUsesWith(bn.Output(), conv.Output())
	return true
}

// foldLinearBias turns add(linear(x, w, None), b) into linear(x, w, b) when
// b is a constant vector matching the output features.
func foldLinearBias(g *graph.Graph, add *graph.Node) bool {
	if len(add.Inputs) < 2 {
		return false
	}
	if len(add.Inputs) > 2 {
		alpha, ok := ops.ConstInput(add, 2)
		if v, isNum := alpha.AsFloat(); !ok || !isNum || v != 1 {
			return false
		}
	}
	for i := range 2 {
		lin := add.Inputs[i].Node
		if lin == nil || lin.Kind != ops.Linear || len(lin.Inputs) < 2 || !soleUse(g, lin.Output(), add) {
			continue
		}
		if existing, ok := optionalConstTensor(lin, 2); !ok || existing != nil {
			continue
		}
		w, ok := constTensor(lin.Inputs[1])
		if !ok || len(w.Shape) != 2 {
			continue
		}
		b, ok := constTensor(add.Inputs[1-i])
		if !ok || !b.Shape.Equal(tensor.Shape{w.Shape[0]}) {
			continue
		}
		bv := g.InsertConstantBefore(lin, graph.TensorLit(b.Clone()))
		if len(lin.Inputs) > 2 {
			lin.Inputs[2] = bv
		} else {
			lin.Inputs = append(lin.Inputs, bv)
		}
		g.ReplaceAllUsesWith(add.Output(), lin.Output())
		return true
	}
	return false
}
