package passes

import (
	"slices"

	"github.com/roach88/aotc/internal/eval"
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
)

// ConstantPropagation evaluates pure nodes whose inputs are all constants
// and replaces them with prim::Constant, then removes dead code. Nodes that
// fail to evaluate are left for run time.
func ConstantPropagation(g *graph.Graph) (*graph.Graph, bool, error) {
	reg := ops.Default()
	changed := false
	for _, n := range slices.Clone(g.Nodes) {
		if len(n.Outputs) != 1 || !reg.Pure(n.Kind) || !eval.Supports(n.Kind) {
			continue
		}
		args, ok := constantArgs(n)
		if !ok {
			continue
		}
		results, err := eval.Node(n, args)
		if err != nil || len(results) != 1 {
			continue
		}
		c := g.InsertConstantBefore(n, results[0].Clone())
		g.ReplaceAllUsesWith(n.Output(), c)
		changed = true
	}
	g, removed := EliminateDeadCode(g)
	return g, changed || removed, nil
}

func constantArgs(n *graph.Node) ([]graph.Literal, bool) {
	args := make([]graph.Literal, len(n.Inputs))
	for i, in := range n.Inputs {
		lit, ok := graph.ConstantOf(in)
		if !ok {
			return nil, false
		}
		args[i] = lit
	}
	return args, true
}
