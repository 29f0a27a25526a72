// Package eval interprets graphs on concrete tensors. The compiler uses it to
// fold constants, and tests use it to check that rewrites preserve
// behavior.
package eval

import (
	"fmt"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
)

// Kernel computes a node's single result from its evaluated inputs.
type Kernel func(n *graph.Node, args []graph.Literal) (graph.Literal, error)

var kernels = map[string]Kernel{}

func register(kind string, k Kernel) { kernels[kind] = k }

// Supports reports whether the interpreter can evaluate kind.
func Supports(kind string) bool {
	_, ok := kernels[kind]
	return ok
}

// Node evaluates a single node on already-evaluated inputs. It does not
// handle module calls; use Run for whole graphs.
func Node(n *graph.Node, args []graph.Literal) ([]graph.Literal, error) {
	k, ok := kernels[n.Kind]
	if !ok {
		return nil, fmt.Errorf("cannot evaluate operator %s", n.Kind)
	}
	out, err := k(n, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.Kind, err)
	}
	return []graph.Literal{out}, nil
}

// Run executes g. Tensor inputs are used in place, so in-place operators
// are observable through them exactly as they would be at run time.
func Run(g *graph.Graph, inputs []graph.Literal) ([]graph.Literal, error) {
	if len(inputs) != len(g.Inputs) {
		return nil, fmt.Errorf("graph takes %d inputs, got %d", len(g.Inputs), len(inputs))
	}
	env := make(map[*graph.Value]graph.Literal, len(g.Nodes)+len(inputs))
	for i, in := range g.Inputs {
		env[in] = inputs[i]
	}
	for idx, n := range g.Nodes {
		args := make([]graph.Literal, len(n.Inputs))
		for i, in := range n.Inputs {
			v, ok := env[in]
			if !ok {
				return nil, fmt.Errorf("node %d (%s): input %s is undefined", idx, n.Kind, in)
			}
			args[i] = v
		}
		outs, err := step(n, args)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", idx, err)
		}
		if len(outs) != len(n.Outputs) {
			return nil, fmt.Errorf("node %d (%s): produced %d values for %d outputs", idx, n.Kind, len(outs), len(n.Outputs))
		}
		for i, o := range n.Outputs {
			env[o] = outs[i]
		}
	}
	results := make([]graph.Literal, len(g.Outputs))
	for i, o := range g.Outputs {
		results[i] = env[o]
	}
	return results, nil
}

// RunMethod calls a method of m. When the method's first input is a module
// receiver, m is bound to it.
func RunMethod(m *graph.Module, name string, inputs []graph.Literal) ([]graph.Literal, error) {
	method, err := m.Method(name)
	if err != nil {
		return nil, err
	}
	g := method.Graph
	args := inputs
	if len(g.Inputs) > 0 && g.Inputs[0].Type.Kind == graph.KindModule {
		args = append([]graph.Literal{graph.ModuleLit(m)}, inputs...)
	}
	return Run(g, args)
}

func step(n *graph.Node, args []graph.Literal) ([]graph.Literal, error) {
	switch n.Kind {
	case ops.Constant:
		lit, ok := n.Attr("value")
		if !ok {
			return nil, fmt.Errorf("prim::Constant without value")
		}
		return []graph.Literal{lit.Clone()}, nil
	case ops.GetAttr:
		return getAttr(n, args)
	case ops.SetAttr:
		return nil, setAttr(n, args)
	case ops.CallMethod:
		return callMethod(n, args)
	case ops.Print:
		return nil, nil
	case ops.RaiseException:
		msg := "exception raised"
		if len(args) > 0 && args[0].Kind == graph.LitString {
			msg = args[0].Str
		}
		return nil, fmt.Errorf("prim::RaiseException: %s", msg)
	}
	return Node(n, args)
}

func receiver(n *graph.Node, args []graph.Literal) (*graph.Module, string, error) {
	if len(args) == 0 || args[0].Kind != graph.LitModule {
		return nil, "", fmt.Errorf("%s needs a module receiver", n.Kind)
	}
	name, ok := n.Attr("name")
	if !ok || name.Kind != graph.LitString {
		return nil, "", fmt.Errorf("%s needs a name attribute", n.Kind)
	}
	return args[0].Module, name.Str, nil
}

func getAttr(n *graph.Node, args []graph.Literal) ([]graph.Literal, error) {
	m, name, err := receiver(n, args)
	if err != nil {
		return nil, err
	}
	if name == "training" {
		return []graph.Literal{graph.BoolLit(m.Training)}, nil
	}
	a, ok := m.Attr(name)
	if !ok {
		return nil, fmt.Errorf("module %s has no attribute %q", m.Class, name)
	}
	if a.Kind == graph.AttrModule {
		return []graph.Literal{graph.ModuleLit(a.Module)}, nil
	}
	if a.Runtime {
		return nil, fmt.Errorf("attribute %q of %s has no value", name, m.Class)
	}
	return []graph.Literal{a.Value}, nil
}

func setAttr(n *graph.Node, args []graph.Literal) error {
	m, name, err := receiver(n, args)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return fmt.Errorf("prim::SetAttr needs a value")
	}
	a, ok := m.Attr(name)
	if !ok {
		return fmt.Errorf("module %s has no attribute %q", m.Class, name)
	}
	a.Value = args[1]
	return nil
}

func callMethod(n *graph.Node, args []graph.Literal) ([]graph.Literal, error) {
	m, name, err := receiver(n, args)
	if err != nil {
		return nil, err
	}
	return RunMethod(m, name, args[1:])
}
