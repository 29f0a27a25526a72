package unit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ir"
)

// TokenLen is the number of hex digits kept from the kernel digest.
const TokenLen = 16

// BuildToken derives the build token for a graph compiled for target.
func BuildToken(g *graph.Graph, target string) (string, error) {
	gd, err := GraphDigest(g)
	if err != nil {
		return "", err
	}
	d, err := ir.Digest(ir.DomainKernel, ir.Object{
		"graph":    ir.String(gd),
		"target":   ir.String(target),
		"compiler": ir.String(ir.CompilerVersion),
		"ir":       ir.String(ir.IRVersion),
	})
	if err != nil {
		return "", err
	}
	return d[:TokenLen], nil
}

// GraphDigest hashes the structure of g. Values are numbered by position,
// so debug names do not contribute; floats and tensor data are hashed by
// bit pattern.
func GraphDigest(g *graph.Graph) (string, error) {
	ids := make(map[*graph.Value]int)
	ref := func(v *graph.Value) (ir.Value, error) {
		id, ok := ids[v]
		if !ok {
			return nil, fmt.Errorf("graph digest: %s used before definition", v)
		}
		return ir.Int(id), nil
	}

	inputs := make(ir.Array, len(g.Inputs))
	for i, in := range g.Inputs {
		ids[in] = len(ids)
		inputs[i] = typeValue(in.Type)
	}

	nodes := make(ir.Array, len(g.Nodes))
	for i, n := range g.Nodes {
		args := make(ir.Array, len(n.Inputs))
		for j, in := range n.Inputs {
			v, err := ref(in)
			if err != nil {
				return "", err
			}
			args[j] = v
		}
		outs := make(ir.Array, len(n.Outputs))
		for j, out := range n.Outputs {
			ids[out] = len(ids)
			outs[j] = typeValue(out.Type)
		}
		attrs := make(ir.Object, len(n.Attrs))
		for k, l := range n.Attrs {
			v, err := literalValue(l)
			if err != nil {
				return "", fmt.Errorf("graph digest: node %d (%s) attribute %q: %w", i, n.Kind, k, err)
			}
			attrs[k] = v
		}
		nodes[i] = ir.Object{
			"kind":    ir.String(n.Kind),
			"inputs":  args,
			"outputs": outs,
			"attrs":   attrs,
		}
	}

	outputs := make(ir.Array, len(g.Outputs))
	for i, out := range g.Outputs {
		v, err := ref(out)
		if err != nil {
			return "", err
		}
		outputs[i] = v
	}

	return ir.Digest(ir.DomainGraph, ir.Object{
		"inputs":  inputs,
		"nodes":   nodes,
		"outputs": outputs,
	})
}

func typeValue(t graph.Type) ir.Value {
	obj := ir.Object{"kind": ir.String(t.Kind.String())}
	if t.Shape != nil {
		obj["shape"] = ir.Ints(t.Shape.Dims())
	}
	if t.Class != "" {
		obj["class"] = ir.String(t.Class)
	}
	return obj
}

func floatBits(f float64) ir.String {
	return ir.String(fmt.Sprintf("%016x", math.Float64bits(f)))
}

func literalValue(l graph.Literal) (ir.Value, error) {
	switch l.Kind {
	case graph.LitNone:
		return ir.Object{"kind": ir.String("none")}, nil
	case graph.LitInt:
		return ir.Object{"kind": ir.String("int"), "value": ir.Int(l.Int)}, nil
	case graph.LitFloat:
		return ir.Object{"kind": ir.String("float"), "value": floatBits(l.Float)}, nil
	case graph.LitBool:
		return ir.Object{"kind": ir.String("bool"), "value": ir.Bool(l.Bool)}, nil
	case graph.LitString:
		return ir.Object{"kind": ir.String("str"), "value": ir.String(l.Str)}, nil
	case graph.LitInts:
		return ir.Object{"kind": ir.String("ints"), "value": ir.Ints(l.Ints)}, nil
	case graph.LitFloats:
		vals := make(ir.Array, len(l.Floats))
		for i, f := range l.Floats {
			vals[i] = floatBits(f)
		}
		return ir.Object{"kind": ir.String("floats"), "value": vals}, nil
	case graph.LitTensor:
		if l.Tensor == nil {
			return nil, fmt.Errorf("nil tensor")
		}
		return ir.Object{
			"kind":  ir.String("tensor"),
			"shape": ir.Ints(l.Tensor.Shape.Dims()),
			"data":  ir.String(tensorDigest(l.Tensor.Data)),
		}, nil
	case graph.LitModule:
		return nil, fmt.Errorf("module values cannot be compiled")
	}
	return nil, fmt.Errorf("unknown literal kind %d", l.Kind)
}

// tensorDigest keeps large weights out of the canonical encoding.
func tensorDigest(data []float32) string {
	h := sha256.New()
	var buf [4]byte
	for _, f := range data {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
