package passes

import (
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
)

// EliminateDeadCode removes nodes whose results can never be observed.
// Nodes with side effects, pinned outputs, or in-place writes into storage
// that is still read later are kept.
func EliminateDeadCode(g *graph.Graph) (*graph.Graph, bool) {
	reg := ops.Default()
	aliases := buildAliasSets(g, reg)

	live := make(map[*graph.Value]bool, len(g.Outputs))
	for _, out := range g.Outputs {
		live[out] = true
	}

	keep := make([]bool, len(g.Nodes))
	for i := len(g.Nodes) - 1; i >= 0; i-- {
		n := g.Nodes[i]
		needed := reg.HasSideEffects(n.Kind)
		for _, out := range n.Outputs {
			if live[out] || g.Pinned(out) {
				needed = true
			}
		}
		if !needed && len(n.Inputs) > 0 {
			if info, ok := reg.Lookup(n.Kind); ok && info.InPlace() {
				for _, m := range aliases.members(n.Inputs[0]) {
					if live[m] {
						needed = true
						break
					}
				}
			}
		}
		if !needed {
			continue
		}
		keep[i] = true
		for _, in := range n.Inputs {
			live[in] = true
		}
	}

	kept := g.Nodes[:0:0]
	for i, n := range g.Nodes {
		if keep[i] {
			kept = append(kept, n)
		}
	}
	changed := len(kept) != len(g.Nodes)
	g.Nodes = kept
	return g, changed
}
