package passes

import (
	"slices"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
)

// RemoveMutation rewrites in-place operators into their functional forms.
// Later readers of the mutated value are redirected to the new result, and
// views taken after the write follow it. Writes that an earlier view could
// observe, or that a later write through a view would have to see, are left
// alone.
func RemoveMutation(g *graph.Graph) (*graph.Graph, bool) {
	reg := ops.Default()
	aliases := buildAliasSets(g, reg)
	changed := false
	for _, n := range slices.Clone(g.Nodes) {
		fn, ok := reg.Functional(n.Kind)
		if !ok || len(n.Inputs) == 0 || len(n.Outputs) != 1 {
			continue
		}
		target := n.Inputs[0]
		if aliasedWrite(g, n, target, aliases, reg) {
			continue
		}
		n.Kind = fn
		g.ReplaceUsesAfter(n, target, n.Output())
		// Views redirected onto the new result now alias it instead.
		aliases = buildAliasSets(g, reg)
		changed = true
	}
	return g, changed
}

// aliasedWrite reports whether n's write to target is visible through another
// value: an alias defined before n, or one written in place after it.
func aliasedWrite(g *graph.Graph, n *graph.Node, target *graph.Value, aliases *aliasSets, reg *ops.Registry) bool {
	at := g.IndexOf(n)
	for _, m := range aliases.members(target) {
		if m == target {
			continue
		}
		if m.Node == nil || g.IndexOf(m.Node) < at {
			return true
		}
	}
	root := aliases.find(target)
	for _, later := range g.Nodes[at+1:] {
		if _, ok := reg.Functional(later.Kind); !ok || len(later.Inputs) == 0 {
			continue
		}
		if w := later.Inputs[0]; w != target && aliases.find(w) == root {
			return true
		}
	}
	return false
}
