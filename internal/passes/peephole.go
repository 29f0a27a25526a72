package passes

import (
	"slices"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
)

type peepholeRule func(g *graph.Graph, n *graph.Node) bool

var peepholeRules = map[string]peepholeRule{
	ops.Size:       foldSize,
	ops.Dim:        foldDim,
	ops.Dropout:    dropEvalDropout,
	ops.Contiguous: forwardInput,
	ops.Add:        identityOperand(0),
	ops.Sub:        identityOperand(0),
	ops.Mul:        identityOperand(1),
	ops.Div:        identityOperand(1),
	ops.Relu:       collapseRepeated,
	ops.Transpose:  cancelTranspose,
	ops.View:       identityReshape,
	ops.Reshape:    identityReshape,
	ops.Flatten:    identityReshape,
}

// Peephole applies local algebraic simplifications. Bypassed nodes are left
// for dead code elimination.
func Peephole(g *graph.Graph) (*graph.Graph, bool) {
	changed := false
	for _, n := range slices.Clone(g.Nodes) {
		rule, ok := peepholeRules[n.Kind]
		if !ok || len(n.Inputs) == 0 || len(n.Outputs) != 1 || !g.HasUses(n.Output()) {
			continue
		}
		if rule(g, n) {
			changed = true
		}
	}
	return g, changed
}

func replaceWithConstant(g *graph.Graph, n *graph.Node, lit graph.Literal) bool {
	c := g.InsertConstantBefore(n, lit)
	g.ReplaceAllUsesWith(n.Output(), c)
	return true
}

func foldSize(g *graph.Graph, n *graph.Node) bool {
	s := n.Inputs[0].Type.Shape
	if !n.Inputs[0].Type.IsTensor() || !s.Known() {
		return false
	}
	if len(n.Inputs) == 1 {
		if !s.Complete() {
			return false
		}
		return replaceWithConstant(g, n, graph.IntsLit(s))
	}
	d, ok := ops.ConstInt(n, 1)
	if !ok {
		return false
	}
	if d < 0 {
		d += int64(len(s))
	}
	if d < 0 || d >= int64(len(s)) || s[d] < 0 {
		return false
	}
	return replaceWithConstant(g, n, graph.IntLit(s[d]))
}

func foldDim(g *graph.Graph, n *graph.Node) bool {
	s := n.Inputs[0].Type.Shape
	if !n.Inputs[0].Type.IsTensor() || !s.Known() {
		return false
	}
	return replaceWithConstant(g, n, graph.IntLit(int64(len(s))))
}

func forwardInput(g *graph.Graph, n *graph.Node) bool {
	g.ReplaceAllUsesWith(n.Output(), n.Inputs[0])
	return true
}

// identityOperand bypasses x+0, x-0, x*1 and x/1 on tensors.
func identityOperand(neutral float64) peepholeRule {
	return func(g *graph.Graph, n *graph.Node) bool {
		if len(n.Inputs) < 2 || !n.Inputs[0].Type.IsTensor() {
			return false
		}
		lit, ok := graph.ConstantOf(n.Inputs[1])
		if !ok || (lit.Kind != graph.LitInt && lit.Kind != graph.LitFloat) {
			return false
		}
		if v, _ := lit.AsFloat(); v != neutral {
			return false
		}
		return forwardInput(g, n)
	}
}

func collapseRepeated(g *graph.Graph, n *graph.Node) bool {
	prev := n.Inputs[0].Node
	if prev == nil || prev.Kind != n.Kind {
		return false
	}
	return forwardInput(g, n)
}

func cancelTranspose(g *graph.Graph, n *graph.Node) bool {
	prev := n.Inputs[0].Node
	if prev == nil || prev.Kind != ops.Transpose || len(prev.Inputs) == 0 {
		return false
	}
	g.ReplaceAllUsesWith(n.Output(), prev.Inputs[0])
	return true
}

func identityReshape(g *graph.Graph, n *graph.Node) bool {
	in, out := n.Inputs[0].Type, n.Output().Type
	if !in.IsTensor() || !in.Shape.Complete() || !in.Shape.Equal(out.Shape) {
		return false
	}
	return forwardInput(g, n)
}
