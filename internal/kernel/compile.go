package kernel

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ir"
	"github.com/roach88/aotc/internal/ops"
)

// Request names the method being compiled and the exported entry symbol.
type Request struct {
	Method string
	Symbol string
}

// Compile plans g as one fused kernel and lowers it with backend. The graph
// is read, not modified.
func Compile(g *graph.Graph, req Request, backend Backend) (*Artifact, error) {
	plan, err := BuildPlan(g, req, backend)
	if err != nil {
		return nil, err
	}
	art, err := backend.Lower(plan)
	if err != nil {
		return nil, fmt.Errorf("lower %s for %s: %w", req.Method, backend.Target(), err)
	}
	art.Method = req.Method
	art.Symbol = req.Symbol
	art.Backend = backend.Name()
	art.Target = backend.Target()
	art.Convention = plan.Convention
	return art, nil
}

// BuildPlan assigns buffers and orders steps without generating code.
func BuildPlan(g *graph.Graph, req Request, backend Backend) (*Plan, error) {
	if !validSymbol(req.Symbol) {
		return nil, fmt.Errorf("kernel: %q is not a valid entry symbol", req.Symbol)
	}
	for _, v := range g.Values() {
		if v.Type.IsTensor() && !v.Type.Shape.Complete() {
			return nil, &ShapeError{Value: v.String(), Shape: v.Type.Shape.String()}
		}
	}

	p := &planner{
		g:       g,
		backend: backend,
		reg:     ops.Default(),
		plan:    &Plan{Method: req.Method, Symbol: req.Symbol},
		tensors: make(map[*graph.Value]int),
		scalars: make(map[*graph.Value]graph.Literal),
	}
	if err := p.bindInputs(); err != nil {
		return nil, err
	}
	for i, n := range g.Nodes {
		if err := p.visit(i, n); err != nil {
			return nil, err
		}
	}
	if err := p.bindOutputs(); err != nil {
		return nil, err
	}
	p.plan.Convention = p.convention()
	return p.plan, nil
}

type planner struct {
	g       *graph.Graph
	backend Backend
	reg     *ops.Registry
	plan    *Plan
	tensors map[*graph.Value]int
	scalars map[*graph.Value]graph.Literal
}

func (p *planner) newBuffer(kind BufferKind, v *graph.Value) *Buffer {
	b := &Buffer{ID: len(p.plan.Buffers), Kind: kind, Name: v.Name, Shape: v.Type.Shape.Clone(), Arg: -1}
	p.plan.Buffers = append(p.plan.Buffers, b)
	return b
}

func (p *planner) unsupported(i int, n *graph.Node, format string, args ...any) error {
	return &UnsupportedOperatorError{Op: n.Kind, Position: i, Node: n.String(), Reason: fmt.Sprintf(format, args...)}
}

func (p *planner) bindInputs() error {
	for i, in := range p.g.Inputs {
		if !in.Type.IsTensor() {
			return fmt.Errorf("kernel: input %s has type %s; kernels take tensors only", in, in.Type)
		}
		b := p.newBuffer(BufferInput, in)
		b.Arg = i
		p.tensors[in] = b.ID
	}
	return nil
}

func (p *planner) visit(i int, n *graph.Node) error {
	switch {
	case n.Kind == ops.Constant:
		lit, _ := n.Attr("value")
		if lit.Kind != graph.LitTensor {
			p.scalars[n.Output()] = lit
			return nil
		}
		b := p.newBuffer(BufferConstant, n.Output())
		b.Offset = int64(len(p.plan.Constants))
		p.plan.Constants = append(p.plan.Constants, lit.Tensor.Data...)
		p.tensors[n.Output()] = b.ID
		return nil

	case n.Kind == ops.ListConstruct:
		lit, ok := p.listLiteral(n)
		if !ok {
			return p.unsupported(i, n, "list elements are not known at compile time")
		}
		p.scalars[n.Output()] = lit
		return nil

	case p.reg.IsView(n.Kind) && len(n.Inputs) > 0:
		src, ok := p.tensors[n.Inputs[0]]
		if !ok {
			return p.unsupported(i, n, "view of a non-tensor value")
		}
		for j, in := range n.Inputs[1:] {
			if _, known := p.scalars[in]; !known {
				return p.unsupported(i, n, "argument %d is not known at compile time", j+1)
			}
		}
		p.tensors[n.Output()] = src
		return nil
	}

	if info, known := p.reg.Lookup(n.Kind); known {
		switch {
		case info.InPlace():
			return p.unsupported(i, n, "in-place write through an aliased view")
		case info.SideEffects:
			return p.unsupported(i, n, "operator has side effects")
		}
	}
	if !p.backend.Supports(n.Kind) {
		return p.unsupported(i, n, "no lowering on %s for %s", p.backend.Name(), p.backend.Target())
	}
	if len(n.Outputs) != 1 || !n.Output().Type.IsTensor() {
		return p.unsupported(i, n, "kernels cannot produce non-tensor values at run time")
	}

	args := make([]Operand, len(n.Inputs))
	for j, in := range n.Inputs {
		if id, ok := p.tensors[in]; ok {
			args[j] = Operand{Buffer: id, Shape: in.Type.Shape.Clone()}
			continue
		}
		lit, ok := p.scalars[in]
		if !ok {
			return p.unsupported(i, n, "argument %d (%s) is not known at compile time", j, in)
		}
		args[j] = literalOperand(lit)
	}
	out := p.newBuffer(BufferTemp, n.Output())
	p.tensors[n.Output()] = out.ID
	p.plan.Steps = append(p.plan.Steps, Step{
		Op:       n.Kind,
		Position: i,
		Args:     args,
		Out:      Operand{Buffer: out.ID, Shape: out.Shape.Clone()},
	})
	return nil
}

func (p *planner) listLiteral(n *graph.Node) (graph.Literal, bool) {
	ints := make([]int64, 0, len(n.Inputs))
	floats := make([]float64, 0, len(n.Inputs))
	allInts := true
	for _, in := range n.Inputs {
		lit, ok := p.scalars[in]
		if !ok {
			return graph.Literal{}, false
		}
		switch lit.Kind {
		case graph.LitInt:
			ints = append(ints, lit.Int)
			floats = append(floats, float64(lit.Int))
		case graph.LitFloat:
			allInts = false
			floats = append(floats, lit.Float)
		default:
			return graph.Literal{}, false
		}
	}
	if allInts {
		return graph.IntsLit(ints), true
	}
	return graph.FloatsLit(floats), true
}

// bindOutputs writes results straight into output arguments. An output
// whose storage is an input, a constant, another output, or a view of a
// different size gets its own buffer and a copy.
func (p *planner) bindOutputs() error {
	claimed := make(map[int]bool)
	for j, out := range p.g.Outputs {
		id, ok := p.tensors[out]
		if !ok {
			return &UnsupportedOperatorError{
				Op:       "return",
				Position: len(p.g.Nodes),
				Reason:   fmt.Sprintf("output %d (%s) is a %s, not a tensor", j, out, out.Type),
			}
		}
		arg := len(p.g.Inputs) + j
		src := p.plan.Buffers[id]
		if src.Kind == BufferTemp && !claimed[id] && src.Len() == out.Type.Shape.NumElements() {
			src.Kind = BufferOutput
			src.Arg = arg
			src.Name = out.Name
			src.Shape = out.Type.Shape.Clone()
			claimed[id] = true
			continue
		}
		dst := p.newBuffer(BufferOutput, out)
		dst.Arg = arg
		p.plan.Steps = append(p.plan.Steps, Step{
			Op:       OpCopy,
			Position: -1,
			Args:     []Operand{{Buffer: id, Shape: out.Type.Shape.Clone()}},
			Out:      Operand{Buffer: dst.ID, Shape: dst.Shape.Clone()},
		})
	}
	return nil
}

func (p *planner) convention() ir.CallingConvention {
	var cc ir.CallingConvention
	add := func(b *Buffer, role ir.ArgRole) {
		cc.Args = append(cc.Args, ir.KernelArg{
			Index:   b.Arg,
			Role:    role,
			Name:    b.Name,
			DType:   ir.DTypeF32,
			Sizes:   b.Shape.Dims(),
			Strides: b.Shape.Strides(),
		})
	}
	var outputs []*Buffer
	for _, b := range p.plan.Buffers {
		switch b.Kind {
		case BufferInput:
			add(b, ir.RoleInput)
		case BufferOutput:
			outputs = append(outputs, b)
		}
	}
	slices.SortFunc(outputs, func(a, b *Buffer) int { return cmp.Compare(a.Arg, b.Arg) })
	for _, b := range outputs {
		add(b, ir.RoleOutput)
	}
	return cc
}

func validSymbol(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
