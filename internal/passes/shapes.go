package passes

import (
	"fmt"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
)

// PropagateShapes runs every operator's shape rule in program order and
// merges the result into the declared output types. It reports whether any
// type became more precise.
func PropagateShapes(g *graph.Graph) (*graph.Graph, bool, error) {
	reg := ops.Default()
	changed := false
	for i, n := range g.Nodes {
		info, ok := reg.Lookup(n.Kind)
		if !ok || info.Shape == nil {
			continue
		}
		types, err := info.Shape(n)
		if err != nil {
			return nil, false, &ShapeError{Node: i, Op: n.Kind, Message: err.Error()}
		}
		for j, out := range n.Outputs {
			if j >= len(types) {
				break
			}
			inferred := types[j]
			if out.Type.Kind != inferred.Kind {
				return nil, false, &ShapeError{
					Node: i, Op: n.Kind, Value: out.String(),
					Message: fmt.Sprintf("declared %s but the operator produces %s", out.Type, inferred),
				}
			}
			if !inferred.IsTensor() {
				continue
			}
			merged, err := mergeShapes(out.Type.Shape, inferred.Shape)
			if err != nil {
				return nil, false, &ShapeError{Node: i, Op: n.Kind, Value: out.String(), Message: err.Error()}
			}
			if !merged.Equal(out.Type.Shape) {
				out.Type.Shape = merged
				changed = true
			}
		}
	}
	return g, changed, nil
}

// CheckShapes fails on the first tensor value whose shape is not fully
// static.
func CheckShapes(g *graph.Graph) error {
	for _, in := range g.Inputs {
		if in.Type.IsTensor() && !in.Type.Shape.Complete() {
			return &ShapeError{Node: -1, Value: in.String(), Message: fmt.Sprintf("graph input has incomplete shape %s", in.Type.Shape)}
		}
		if in.Type.IsTensor() {
			if _, err := in.Type.Shape.Count(); err != nil {
				return &ShapeError{Node: -1, Value: in.String(), Message: err.Error()}
			}
		}
	}
	for i, n := range g.Nodes {
		for _, out := range n.Outputs {
			if out.Type.IsTensor() && !out.Type.Shape.Complete() {
				return &ShapeError{
					Node: i, Op: n.Kind, Value: out.String(),
					Message: fmt.Sprintf("shape %s could not be inferred statically", out.Type.Shape),
				}
			}
			if out.Type.IsTensor() {
				if _, err := out.Type.Shape.Count(); err != nil {
					return &ShapeError{Node: i, Op: n.Kind, Value: out.String(), Message: err.Error()}
				}
			}
		}
	}
	return nil
}
