package codegen

import (
	"github.com/pkg/errors"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/kernel"
	"github.com/roach88/aotc/internal/ops"
)

// BackendName identifies code produced by this package.
const BackendName = "nnc"

// Backend lowers kernel plans for one target.
type Backend struct {
	target Target
}

var _ kernel.Backend = (*Backend)(nil)

// New returns a backend for triple; the empty string selects DefaultTriple.
func New(triple string) (*Backend, error) {
	t, err := LookupTarget(triple)
	if err != nil {
		return nil, err
	}
	return &Backend{target: t}, nil
}

func (b *Backend) Name() string { return BackendName }

func (b *Backend) Target() string { return b.target.Triple }

// Supports reports whether kind has a vector or runtime lowering.
func (b *Backend) Supports(kind string) bool {
	_, ok := lowerings[kind]
	return ok
}

// Lower encodes plan as an object and renders its listing.
func (b *Backend) Lower(plan *kernel.Plan) (*kernel.Artifact, error) {
	obj, err := b.lowerPlan(plan)
	if err != nil {
		return nil, err
	}
	data, err := EncodeObject(obj)
	if err != nil {
		return nil, err
	}
	return &kernel.Artifact{
		Method:     plan.Method,
		Symbol:     plan.Symbol,
		Backend:    BackendName,
		Target:     b.target.Triple,
		Object:     data,
		Assembly:   Listing(obj),
		Convention: plan.Convention,
	}, nil
}

func (b *Backend) lowerPlan(plan *kernel.Plan) (*Object, error) {
	obj := &Object{
		Backend:     BackendName,
		Target:      b.target.Triple,
		Method:      plan.Method,
		Symbol:      plan.Symbol,
		VectorWidth: b.target.VectorWidth,
		Constants:   plan.Constants,
	}
	for _, buf := range plan.Buffers {
		obj.Buffers = append(obj.Buffers, BufferRecord{
			ID:     buf.ID,
			Kind:   buf.Kind,
			Name:   buf.Name,
			Arg:    buf.Arg,
			Offset: buf.Offset,
			Shape:  buf.Shape.Dims(),
		})
	}
	for _, step := range plan.Steps {
		in, err := lowerStep(step)
		if err != nil {
			return nil, errors.Wrapf(err, "node %d (%s)", step.Position, step.Op)
		}
		obj.Instrs = append(obj.Instrs, in)
	}
	return obj, nil
}

func lowerStep(step kernel.Step) (Instr, error) {
	l, ok := lowerings[step.Op]
	if !ok {
		return Instr{}, errors.Errorf("no lowering for %s", step.Op)
	}
	in := Instr{
		Op:       l.op,
		Kind:     step.Op,
		Name:     l.name,
		Position: step.Position,
		Out:      Arg{Buffer: step.Out.Buffer, Shape: step.Out.Shape.Dims()},
	}
	for _, a := range step.Args {
		if a.IsTensor() {
			in.Args = append(in.Args, Arg{Buffer: a.Buffer, Shape: a.Shape.Dims()})
			continue
		}
		if a.Literal.Kind == graph.LitTensor || a.Literal.Kind == graph.LitModule {
			return Instr{}, errors.Errorf("literal of kind %d cannot be encoded as an immediate", a.Literal.Kind)
		}
		in.Args = append(in.Args, Arg{Buffer: -1, Lit: a.Literal.Clone()})
	}
	return in, checkOperands(in)
}

// checkOperands rejects operand combinations the runtime cannot execute.
func checkOperands(in Instr) error {
	if len(in.Args) == 0 {
		return errors.New("instruction has no operands")
	}
	switch in.Op {
	case OpUnary, OpClamp, OpTranspose, OpCopy:
		if !in.Args[0].IsBuffer() {
			return errors.Errorf("%s needs a tensor operand", in.Name)
		}
	case OpBinary:
		if len(in.Args) < 2 {
			return errors.Errorf("%s needs two operands", in.Name)
		}
		if !in.Args[0].IsBuffer() && !in.Args[1].IsBuffer() {
			return errors.Errorf("%s has no tensor operand", in.Name)
		}
		for _, a := range in.Args[:2] {
			if !a.IsBuffer() && a.Lit.Kind != graph.LitInt && a.Lit.Kind != graph.LitFloat {
				return errors.Errorf("%s scalar operand must be a number", in.Name)
			}
		}
	case OpCall:
		if in.Kind == ops.BatchNorm && len(in.Args) > 5 && in.Args[5].Lit.Kind == graph.LitBool && in.Args[5].Lit.Bool {
			return errors.New("batch_norm in training mode cannot be compiled")
		}
		if in.Kind == ops.Softmax && (len(in.Args) < 2 || in.Args[1].Lit.Kind != graph.LitInt) {
			return errors.New("softmax needs a constant dim")
		}
	}
	return nil
}
