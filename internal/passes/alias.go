package passes

import (
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
)

// aliasSets groups values that share storage through view operators.
type aliasSets struct {
	parent map[*graph.Value]*graph.Value
}

func buildAliasSets(g *graph.Graph, reg *ops.Registry) *aliasSets {
	a := &aliasSets{parent: make(map[*graph.Value]*graph.Value)}
	for _, n := range g.Nodes {
		if !reg.IsView(n.Kind) || len(n.Inputs) == 0 {
			continue
		}
		for _, out := range n.Outputs {
			a.union(n.Inputs[0], out)
		}
	}
	return a
}

func (a *aliasSets) find(v *graph.Value) *graph.Value {
	for {
		p, ok := a.parent[v]
		if !ok || p == v {
			return v
		}
		if gp, ok := a.parent[p]; ok {
			a.parent[v] = gp
		}
		v = p
	}
}

func (a *aliasSets) union(x, y *graph.Value) {
	rx, ry := a.find(x), a.find(y)
	if rx != ry {
		a.parent[ry] = rx
	}
}

// members returns every value sharing storage with v, v included.
func (a *aliasSets) members(v *graph.Value) []*graph.Value {
	root := a.find(v)
	out := []*graph.Value{v}
	for m := range a.parent {
		if m != v && a.find(m) == root {
			out = append(out, m)
		}
	}
	if root != v {
		out = append(out, root)
	}
	return out
}
