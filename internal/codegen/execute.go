package codegen

import (
	"cmp"
	"slices"

	"github.com/pkg/errors"

	"github.com/roach88/aotc/internal/eval"
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/kernel"
	"github.com/roach88/aotc/internal/tensor"
)

// Execute runs a decoded object on the host using the reference operator
// implementations. It follows the calling convention exactly: inputs are
// read-only and every output is written into its own buffer.
func Execute(obj *Object, inputs []*tensor.Tensor) ([]*tensor.Tensor, error) {
	bufs := make([][]float32, len(obj.Buffers))
	var outputs []BufferRecord
	for _, b := range obj.Buffers {
		if b.ID < 0 || b.ID >= len(bufs) {
			return nil, errors.Errorf("buffer id %d out of range", b.ID)
		}
		n := b.Len()
		switch b.Kind {
		case kernel.BufferInput:
			if b.Arg < 0 || b.Arg >= len(inputs) {
				return nil, errors.Errorf("kernel expects input %d, got %d inputs", b.Arg, len(inputs))
			}
			in := inputs[b.Arg]
			if !in.Shape.Equal(b.Shape) {
				return nil, errors.Errorf("input %d has shape %s, kernel was compiled for %s", b.Arg, in.Shape, tensor.Shape(b.Shape))
			}
			bufs[b.ID] = slices.Clone(in.Data)
		case kernel.BufferConstant:
			if b.Offset+n > int64(len(obj.Constants)) {
				return nil, errors.Errorf("constant %s runs past the pool", b.Name)
			}
			bufs[b.ID] = obj.Constants[b.Offset : b.Offset+n]
		case kernel.BufferOutput:
			outputs = append(outputs, b)
			bufs[b.ID] = make([]float32, n)
		default:
			bufs[b.ID] = make([]float32, n)
		}
	}

	for i, in := range obj.Instrs {
		if err := executeInstr(in, bufs); err != nil {
			return nil, errors.Wrapf(err, "instruction %d (%s)", i, in.Name)
		}
	}

	slices.SortFunc(outputs, func(a, b BufferRecord) int { return cmp.Compare(a.Arg, b.Arg) })
	results := make([]*tensor.Tensor, len(outputs))
	for i, b := range outputs {
		results[i] = &tensor.Tensor{Shape: tensor.Shape(b.Shape).Clone(), Data: bufs[b.ID]}
	}
	return results, nil
}

func executeInstr(in Instr, bufs [][]float32) error {
	if !in.Out.IsBuffer() || in.Out.Buffer >= len(bufs) {
		return errors.New("instruction has no output buffer")
	}
	dst := bufs[in.Out.Buffer]
	if in.Op == OpCopy {
		copy(dst, bufs[in.Args[0].Buffer])
		return nil
	}

	args := make([]graph.Literal, len(in.Args))
	for j, a := range in.Args {
		if !a.IsBuffer() {
			args[j] = a.Lit
			continue
		}
		if a.Buffer >= len(bufs) {
			return errors.Errorf("operand %d refers to unknown buffer %d", j, a.Buffer)
		}
		args[j] = graph.TensorLit(&tensor.Tensor{Shape: tensor.Shape(a.Shape).Clone(), Data: bufs[a.Buffer]})
	}
	res, err := eval.Node(&graph.Node{Kind: in.Kind}, args)
	if err != nil {
		return err
	}
	if res[0].Kind != graph.LitTensor || len(res[0].Tensor.Data) != len(dst) {
		return errors.Errorf("result does not fit output buffer of %d elements", len(dst))
	}
	copy(dst, res[0].Tensor.Data)
	return nil
}
