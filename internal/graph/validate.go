package graph

import (
	"fmt"
	"strings"
)

// ValidationError describes a structural defect in a graph.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Validation error codes.
const (
	ErrCodeCycle         = "G001"
	ErrCodeUseBeforeDef  = "G002"
	ErrCodeForeignValue  = "G003"
	ErrCodeProducerDrift = "G004"
)

// Validate checks that g is a well-formed DAG: no dependency cycles, every
// input defined before use, and producer links consistent.
func Validate(g *Graph) error {
	if cycle := findCycle(g); cycle != nil {
		parts := make([]string, len(cycle))
		for i, n := range cycle {
			parts[i] = n.Kind
		}
		return &ValidationError{Code: ErrCodeCycle, Message: "dependency cycle: " + strings.Join(parts, " -> ")}
	}

	owned := make(map[*Value]bool)
	for _, n := range g.Nodes {
		for _, o := range n.Outputs {
			owned[o] = true
		}
	}
	defined := make(map[*Value]bool, len(g.Inputs))
	for _, in := range g.Inputs {
		defined[in] = true
	}
	for i, n := range g.Nodes {
		for _, in := range n.Inputs {
			if defined[in] {
				continue
			}
			if owned[in] {
				return &ValidationError{Code: ErrCodeUseBeforeDef,
					Message: fmt.Sprintf("node %d (%s) uses %s before its definition", i, n.Kind, in)}
			}
			return &ValidationError{Code: ErrCodeForeignValue,
				Message: fmt.Sprintf("node %d (%s) uses %s which is not part of the graph", i, n.Kind, in)}
		}
		for _, o := range n.Outputs {
			if o.Node != n {
				return &ValidationError{Code: ErrCodeProducerDrift,
					Message: fmt.Sprintf("value %s is listed as an output of node %d (%s) but names another producer", o, i, n.Kind)}
			}
			defined[o] = true
		}
	}
	for _, o := range g.Outputs {
		if !defined[o] {
			return &ValidationError{Code: ErrCodeForeignValue, Message: fmt.Sprintf("graph output %s is never defined", o)}
		}
	}
	return nil
}

// findCycle runs Tarjan's algorithm over the node dependency graph and
// returns the nodes of the first strongly connected component that forms a
// cycle.
func findCycle(g *Graph) []*Node {
	producers := make(map[*Node]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		producers[n] = true
	}
	deps := func(n *Node) []*Node {
		var out []*Node
		for _, in := range n.Inputs {
			if in.Node != nil && producers[in.Node] {
				out = append(out, in.Node)
			}
		}
		return out
	}

	var (
		index   = 0
		stack   []*Node
		indices = make(map[*Node]int)
		lowlink = make(map[*Node]int)
		onStack = make(map[*Node]bool)
		found   []*Node
	)

	var strongConnect func(*Node)
	strongConnect = func(v *Node) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		selfLoop := false
		for _, w := range deps(v) {
			if w == v {
				selfLoop = true
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []*Node
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			if found == nil && (len(scc) > 1 || selfLoop) {
				found = scc
			}
		}
	}

	for _, n := range g.Nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return found
}
