package passes

import (
	"fmt"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
)

// maxInlinedCalls bounds method inlining so recursive modules fail instead
// of looping.
const maxInlinedCalls = 1024

// Freeze returns an inference-mode copy of m whose listed methods (all
// methods when none are listed) read no module state: submodule calls are
// inlined and attribute reads become constants. m itself is not modified.
func Freeze(m *graph.Module, methods ...string) (*graph.Module, error) {
	src := m.Clone()
	src.Eval()
	if len(methods) == 0 {
		methods = src.MethodNames()
	}

	frozen := &graph.Module{Class: src.Class, Frozen: true, Methods: make(map[string]*graph.Graph, len(methods))}
	for _, name := range methods {
		method, err := src.Method(name)
		if err != nil {
			return nil, &FreezeError{Method: name, Message: err.Error()}
		}
		g := method.Graph.Clone()
		if err := freezeGraph(src, name, g); err != nil {
			return nil, err
		}
		frozen.Methods[name] = g
	}
	return frozen, nil
}

func freezeGraph(root *graph.Module, method string, g *graph.Graph) error {
	mods := make(map[*graph.Value]*graph.Module)
	if len(g.Inputs) > 0 && g.Inputs[0].Type.Kind == graph.KindModule {
		mods[g.Inputs[0]] = root
	}
	fail := func(attr, format string, args ...any) error {
		return &FreezeError{Method: method, Attribute: attr, Message: fmt.Sprintf(format, args...)}
	}

	inlined := 0
	for i := 0; i < len(g.Nodes); i++ {
		n := g.Nodes[i]
		switch n.Kind {
		case ops.GetAttr:
			owner, name, err := resolveReceiver(n, mods)
			if err != nil {
				return fail("", "%v", err)
			}
			if name == "training" {
				toConstant(n, graph.BoolLit(owner.Training))
				continue
			}
			a, ok := owner.Attr(name)
			switch {
			case !ok:
				return fail(name, "not found on module %s", owner.Class)
			case a.Kind == graph.AttrModule:
				mods[n.Output()] = a.Module
			case a.Runtime:
				return fail(name, "is supplied at run time and cannot be frozen")
			default:
				toConstant(n, a.Value.Clone())
			}

		case ops.CallMethod:
			owner, name, err := resolveReceiver(n, mods)
			if err != nil {
				return fail("", "%v", err)
			}
			callee, ok := owner.Methods[name]
			if !ok {
				return fail("", "module %s has no method %q", owner.Class, name)
			}
			if inlined++; inlined > maxInlinedCalls {
				return fail("", "too many nested method calls; is %s.%s recursive?", owner.Class, name)
			}
			results, err := g.Inline(n, callee, n.Inputs)
			if err != nil {
				return fail("", "%v", err)
			}
			if len(results) != len(n.Outputs) {
				return fail("", "%s.%s returns %d values, call site expects %d", owner.Class, name, len(results), len(n.Outputs))
			}
			for j, out := range n.Outputs {
				g.ReplaceAllUsesWith(out, results[j])
			}
			g.RemoveNode(n)
			i--

		case ops.SetAttr:
			name, _ := n.Attr("name")
			return fail(name.Str, "is assigned inside the method; module state must be read-only to freeze")

		default:
			for _, in := range n.Inputs {
				if _, isModule := mods[in]; isModule {
					return fail("", "module value %s escapes into %s", in, n.Kind)
				}
			}
		}
	}

	for _, out := range g.Outputs {
		if _, isModule := mods[out]; isModule {
			return fail("", "method returns module value %s", out)
		}
	}

	for i := len(g.Nodes) - 1; i >= 0; i-- {
		n := g.Nodes[i]
		if _, isModule := mods[n.Output()]; isModule && n.Kind == ops.GetAttr && !g.HasUses(n.Output()) {
			g.RemoveNode(n)
		}
	}
	return nil
}

func resolveReceiver(n *graph.Node, mods map[*graph.Value]*graph.Module) (*graph.Module, string, error) {
	if len(n.Inputs) == 0 {
		return nil, "", fmt.Errorf("%s has no receiver", n.Kind)
	}
	owner, ok := mods[n.Inputs[0]]
	if !ok {
		return nil, "", fmt.Errorf("%s receiver %s is not a module reachable from self", n.Kind, n.Inputs[0])
	}
	name, ok := n.Attr("name")
	if !ok || name.Kind != graph.LitString {
		return nil, "", fmt.Errorf("%s has no name attribute", n.Kind)
	}
	return owner, name.Str, nil
}

// toConstant rewrites n in place into a prim::Constant holding lit.
func toConstant(n *graph.Node, lit graph.Literal) {
	n.Kind = ops.Constant
	n.Inputs = nil
	n.Attrs = map[string]graph.Literal{"value": lit}
	n.Output().Type = lit.Type()
}
