package testutil

import (
	"math"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/tensor"
)

// PlaceholderToken is the fixed build token golden fixtures are pinned to.
const PlaceholderToken = "VERTOKEN"

// ReluYAML describes ReluModule as a model file.
const ReluYAML = `class: Relu
methods:
  forward: |
    graph(%self : Relu, %x : Tensor):
      %y : Tensor = aten::relu(%x)
      return (%y)
`

// ReluModule returns a module whose forward applies relu to its input.
func ReluModule() *graph.Module {
	m := graph.NewModule("Relu")
	m.AddMethod("forward", graph.MustParse(`graph(%self : Relu, %x : Tensor):
  %y : Tensor = aten::relu(%x)
  return (%y)`))
	return m
}

// ResNetInput is the input size ResNetModule is compiled for.
var ResNetInput = []int64{1, 3, 224, 224}

// ResNetClasses is the width of ResNetModule's output.
const ResNetClasses = 10

// ResNetModule returns a small residual-style classifier: conv, batch norm,
// in-place relu, global pooling, flatten, a Linear submodule and dropout.
// In eval mode the batch norm folds into the conv and the dropout vanishes.
func ResNetModule() *graph.Module {
	fc := graph.NewModule("Linear")
	fc.SetAttr(param("weight", tensor.Shape{ResNetClasses, 4}, 0.25))
	fc.SetAttr(param("bias", tensor.Shape{ResNetClasses}, 0.1))
	fc.AddMethod("forward", graph.MustParse(`graph(%self : Linear, %x : Tensor):
  %w : Tensor = prim::GetAttr[name="weight"](%self)
  %b : Tensor = prim::GetAttr[name="bias"](%self)
  %y : Tensor = aten::linear(%x, %w, %b)
  return (%y)`))

	m := graph.NewModule("ResNet")
	m.SetAttr(param("conv_weight", tensor.Shape{4, 3, 3, 3}, 0.2))
	m.SetAttr(param("bn_weight", tensor.Shape{4}, 1))
	m.SetAttr(param("bn_bias", tensor.Shape{4}, 0.05))
	m.SetAttr(&graph.Attribute{Name: "running_mean", Kind: graph.AttrBuffer, Value: graph.TensorLit(tensor.Full(tensor.Shape{4}, 0.01))})
	m.SetAttr(&graph.Attribute{Name: "running_var", Kind: graph.AttrBuffer, Value: graph.TensorLit(tensor.Full(tensor.Shape{4}, 1.5))})
	m.SetAttr(&graph.Attribute{Name: "fc", Kind: graph.AttrModule, Module: fc})
	m.AddMethod("forward", graph.MustParse(`graph(%self : ResNet, %x : Tensor):
  %w : Tensor = prim::GetAttr[name="conv_weight"](%self)
  %none : None = prim::Constant()
  %one : int[] = prim::Constant[value=[1, 1]]()
  %groups : int = prim::Constant[value=1]()
  %c : Tensor = aten::conv2d(%x, %w, %none, %one, %one, %one, %groups)
  %gamma : Tensor = prim::GetAttr[name="bn_weight"](%self)
  %beta : Tensor = prim::GetAttr[name="bn_bias"](%self)
  %mean : Tensor = prim::GetAttr[name="running_mean"](%self)
  %var : Tensor = prim::GetAttr[name="running_var"](%self)
  %train : bool = prim::GetAttr[name="training"](%self)
  %mom : float = prim::Constant[value=0.1]()
  %eps : float = prim::Constant[value=1e-05]()
  %y : Tensor = aten::batch_norm(%c, %gamma, %beta, %mean, %var, %train, %mom, %eps)
  %r : Tensor = aten::relu_(%y)
  %p : Tensor = aten::adaptive_avg_pool2d(%y, %one)
  %start : int = prim::Constant[value=1]()
  %f : Tensor = aten::flatten(%p, %start)
  %fc : Linear = prim::GetAttr[name="fc"](%self)
  %o : Tensor = prim::CallMethod[name="forward"](%fc, %f)
  %pd : float = prim::Constant[value=0.5]()
  %d : Tensor = aten::dropout(%o, %pd, %train)
  return (%d)`))
	return m
}

// param builds a deterministic, non-constant parameter tensor.
func param(name string, shape tensor.Shape, scale float64) *graph.Attribute {
	n := shape.NumElements()
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(scale * math.Sin(float64(i)+1))
	}
	return &graph.Attribute{Name: name, Kind: graph.AttrParameter, Value: graph.TensorLit(tensor.MustFromData(shape, data))}
}

// Ramp returns a tensor of the given shape holding a repeating ramp in
// [-1, 1).
func Ramp(shape tensor.Shape) *tensor.Tensor {
	n := shape.NumElements()
	data := make([]float32, n)
	for i := range data {
		data[i] = float32(i%17)/8.5 - 1
	}
	return tensor.MustFromData(shape, data)
}
