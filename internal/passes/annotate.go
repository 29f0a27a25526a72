package passes

import (
	"fmt"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/tensor"
)

// RemoveUnusedSelfArgument drops the module receiver from a frozen method
// signature. It fails when the body still reads the receiver.
func RemoveUnusedSelfArgument(g *graph.Graph) (*graph.Graph, error) {
	if len(g.Inputs) == 0 || g.Inputs[0].Type.Kind != graph.KindModule {
		return g, nil
	}
	self := g.Inputs[0]
	if uses := g.Uses(self); len(uses) > 0 {
		by := "graph output"
		if uses[0].Node != nil {
			by = uses[0].Node.Kind
		}
		return nil, &FreezeError{Message: fmt.Sprintf("receiver %s is still used by %s after freezing", self, by)}
	}
	g.RemoveInput(0)
	return g, nil
}

// AnnotateInputShapes sets the declared shape of every graph input and pins
// each input so its shape survives later rewrites. The number of shapes
// must match the number of inputs, and every input must be a tensor.
func AnnotateInputShapes(g *graph.Graph, shapes []tensor.Shape) (*graph.Graph, error) {
	merged, err := checkInputs(g.Inputs, shapes)
	if err != nil {
		return nil, err
	}
	for i, in := range g.Inputs {
		in.Type.Shape = merged[i]
		g.Pin(in)
	}
	return g, nil
}

// CheckInputShapes reports whether AnnotateInputShapes would accept shapes
// once the module receiver is removed. g is not modified.
func CheckInputShapes(g *graph.Graph, shapes []tensor.Shape) error {
	inputs := g.Inputs
	if len(inputs) > 0 && inputs[0].Type.Kind == graph.KindModule {
		inputs = inputs[1:]
	}
	_, err := checkInputs(inputs, shapes)
	return err
}

func checkInputs(inputs []*graph.Value, shapes []tensor.Shape) ([]tensor.Shape, error) {
	for i, in := range inputs {
		if !in.Type.IsTensor() {
			return nil, &ConfigError{Input: i, Message: fmt.Sprintf("%s has type %s; only tensor inputs can be compiled", in, in.Type)}
		}
	}
	if len(shapes) != len(inputs) {
		return nil, &ConfigError{Input: -1, Message: fmt.Sprintf("%d input shapes declared but the graph takes %d tensor inputs", len(shapes), len(inputs))}
	}
	merged := make([]tensor.Shape, len(inputs))
	for i, in := range inputs {
		s := shapes[i]
		if err := s.Validate(); err != nil {
			return nil, &ConfigError{Input: i, Message: err.Error()}
		}
		m, err := mergeShapes(in.Type.Shape, s)
		if err != nil {
			return nil, &ConfigError{Input: i, Message: fmt.Sprintf("declared %v conflicts with graph signature: %v", s, err)}
		}
		merged[i] = m
	}
	return merged, nil
}

// mergeShapes combines what is already known about a value with new
// information. Unknown ranks or extents are filled in; known extents that
// disagree are an error.
func mergeShapes(old, next tensor.Shape) (tensor.Shape, error) {
	if old == nil {
		return next.Clone(), nil
	}
	if next == nil {
		return old.Clone(), nil
	}
	if len(old) != len(next) {
		return nil, fmt.Errorf("rank %d does not match rank %d", len(next), len(old))
	}
	out := old.Clone()
	for i := range out {
		switch {
		case next[i] == tensor.Unknown:
		case out[i] == tensor.Unknown:
			out[i] = next[i]
		case out[i] != next[i]:
			return nil, fmt.Errorf("extent %d at dim %d does not match %d", next[i], i, out[i])
		}
	}
	return out, nil
}
