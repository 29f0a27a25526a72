package passes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aotc/internal/eval"
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
	"github.com/roach88/aotc/internal/tensor"
)

func runGraph(t *testing.T, g *graph.Graph, inputs ...graph.Literal) []graph.Literal {
	t.Helper()
	args := make([]graph.Literal, len(inputs))
	for i, in := range inputs {
		args[i] = in.Clone()
	}
	out, err := eval.Run(g, args)
	require.NoError(t, err)
	return out
}

func TestRemoveMutation_PreservesSemantics(t *testing.T) {
	src := graph.MustParse(`graph(%x : Tensor):
  %one : int = prim::Constant[value=1]()
  %y : Tensor = aten::add_(%x, %x, %one)
  %z : Tensor = aten::relu_(%x)
  return (%x)`)
	x := tensorLit(tensor.Shape{3}, -1, 2, 0.5)
	want := runGraph(t, src, x)

	g, changed := RemoveMutation(src.Clone())
	require.True(t, changed)
	assert.Equal(t, []string{ops.Constant, ops.Add, ops.Relu}, kinds(g))
	assert.Same(t, g.Nodes[2].Output(), g.Outputs[0])
	require.NoError(t, graph.Validate(g))

	got := runGraph(t, g, x)
	assert.Equal(t, want[0].Tensor.Data, got[0].Tensor.Data)
	assert.Equal(t, []float32{0, 4, 1}, got[0].Tensor.Data)
}

func TestRemoveMutation_LeavesAliasedWrites(t *testing.T) {
	g := graph.MustParse(`graph(%x : Tensor):
  %s : int[] = prim::Constant[value=[-1]]()
  %v : Tensor = aten::view(%x, %s)
  %r : Tensor = aten::relu_(%v)
  return (%x)`)

	g, changed := RemoveMutation(g)
	assert.False(t, changed)
	assert.Equal(t, "aten::relu_", g.Nodes[2].Kind)
}

func TestRemoveMutation_ViewTakenAfterWrite(t *testing.T) {
	src := graph.MustParse(`graph(%x : Tensor(2, 2)):
  %h : Tensor = aten::neg(%x)
  %r : Tensor = aten::relu_(%h)
  %s : int[] = prim::Constant[value=[-1]]()
  %v : Tensor = aten::view(%h, %s)
  return (%v)`)
	x := tensorLit(tensor.Shape{2, 2}, 1, -2, 3, -4)
	want := runGraph(t, src, x)

	g, changed := RemoveMutation(src.Clone())
	require.True(t, changed)
	assert.Equal(t, []string{ops.Neg, ops.Relu, ops.Constant, ops.View}, kinds(g))
	assert.Same(t, g.Nodes[1].Output(), g.Nodes[3].Inputs[0])
	require.NoError(t, graph.Validate(g))

	got := runGraph(t, g, x)
	assert.Equal(t, want[0].Tensor.Data, got[0].Tensor.Data)
	assert.Equal(t, []float32{0, 2, 0, 4}, got[0].Tensor.Data)
}

func TestRemoveMutation_LeavesWritesThroughLaterViews(t *testing.T) {
	g := graph.MustParse(`graph(%x : Tensor):
  %r : Tensor = aten::relu_(%x)
  %s : int[] = prim::Constant[value=[-1]]()
  %v : Tensor = aten::view(%x, %s)
  %w : Tensor = aten::neg_(%v)
  return (%x)`)

	g, changed := RemoveMutation(g)
	assert.False(t, changed)
	assert.Equal(t, []string{"aten::relu_", ops.Constant, ops.View, "aten::neg_"}, kinds(g))
}

func TestEliminateDeadCode(t *testing.T) {
	g := graph.MustParse(`graph(%x : Tensor):
  %a : Tensor = aten::relu(%x)
  %b : Tensor = aten::neg(%x)
  prim::Print(%b)
  %c : Tensor = aten::exp(%x)
  %d : Tensor = aten::sigmoid(%c)
  return (%a)`)

	g, changed := EliminateDeadCode(g)
	assert.True(t, changed)
	assert.Equal(t, []string{ops.Relu, ops.Neg, ops.Print}, kinds(g))

	g, changed = EliminateDeadCode(g)
	assert.False(t, changed, "second run must be a no-op")
	assert.Len(t, g.Nodes, 3)
}

func TestEliminateDeadCode_KeepsLiveMutationAndPins(t *testing.T) {
	g := graph.MustParse(`graph(%x : Tensor):
  %s : int[] = prim::Constant[value=[-1]]()
  %v : Tensor = aten::view(%x, %s)
  %r : Tensor = aten::relu_(%v)
  %p : Tensor = aten::tanh(%x)
  return (%x)`)
	g.Pin(g.Nodes[3].Output())

	g, changed := EliminateDeadCode(g)
	assert.False(t, changed)
	assert.Len(t, g.Nodes, 4)
}

func TestAnnotateInputShapes(t *testing.T) {
	g := graph.MustParse(`graph(%x : Tensor(1, -1)):
  %y : Tensor = aten::relu(%x)
  return (%y)`)

	g, err := AnnotateInputShapes(g, []tensor.Shape{{1, 4}})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{1, 4}, g.Inputs[0].Type.Shape)
	assert.True(t, g.Pinned(g.Inputs[0]))
}

func TestAnnotateInputShapes_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		shapes []tensor.Shape
		want   string
	}{
		{"count mismatch", `graph(%x : Tensor):
  return (%x)`, []tensor.Shape{{1}, {2}}, "2 input shapes declared but the graph takes 1"},
		{"non tensor input", `graph(%x : int):
  return (%x)`, []tensor.Shape{{1}}, "only tensor inputs"},
		{"non positive extent", `graph(%x : Tensor):
  return (%x)`, []tensor.Shape{{1, 0}}, "must be > 0"},
		{"conflicts with signature", `graph(%x : Tensor(1, 3)):
  return (%x)`, []tensor.Shape{{1, 4}}, "conflicts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AnnotateInputShapes(graph.MustParse(tt.src), tt.shapes)
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCheckInputShapes_IgnoresReceiverAndLeavesGraphAlone(t *testing.T) {
	g := graph.MustParse(`graph(%self : Net, %x : Tensor):
  %y : Tensor = aten::relu(%x)
  return (%y)`)

	require.NoError(t, CheckInputShapes(g, []tensor.Shape{{1, 4}}))
	assert.Nil(t, g.Inputs[1].Type.Shape)
	assert.False(t, g.Pinned(g.Inputs[1]))

	err := CheckInputShapes(g, []tensor.Shape{{1, 4}, {2}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 input shapes declared but the graph takes 1 tensor inputs")
}

func TestOptimizeFrozenGraph_FoldsBatchNormIntoConv(t *testing.T) {
	src := graph.MustParse(`graph(%x : Tensor):
  %w : Tensor(2, 1, 1, 1) = prim::Constant[value=[2, 3]]()
  %none : None = prim::Constant()
  %one : int[] = prim::Constant[value=[1, 1]]()
  %zero : int[] = prim::Constant[value=[0, 0]]()
  %groups : int = prim::Constant[value=1]()
  %c : Tensor = aten::conv2d(%x, %w, %none, %one, %zero, %one, %groups)
  %gamma : Tensor(2) = prim::Constant[value=[1, 2]]()
  %beta : Tensor(2) = prim::Constant[value=[0.5, -1]]()
  %mean : Tensor(2) = prim::Constant[value=[1, 0]]()
  %var : Tensor(2) = prim::Constant[value=[4, 1]]()
  %train : bool = prim::Constant[value=false]()
  %mom : float = prim::Constant[value=0.1]()
  %eps : float = prim::Constant[value=0.0]()
  %y : Tensor = aten::batch_norm(%c, %gamma, %beta, %mean, %var, %train, %mom, %eps)
  return (%y)`)
	x := tensorLit(tensor.Shape{1, 1, 2, 2}, 1, -2, 3, 0.5)
	want := runGraph(t, src, x)

	g, changed := OptimizeFrozenGraph(src.Clone())
	require.True(t, changed)
	assert.NotContains(t, kinds(g), ops.BatchNorm)
	require.NoError(t, graph.Validate(g))

	got := runGraph(t, g, x)
	assert.InDeltaSlice(t, want[0].Tensor.Data, got[0].Tensor.Data, 1e-5)
}

func TestOptimizeFrozenGraph_FoldsLinearBiasAndDropout(t *testing.T) {
	src := graph.MustParse(`graph(%x : Tensor):
  %w : Tensor(2, 2) = prim::Constant[value=[1, 2, 3, 4]]()
  %none : None = prim::Constant()
  %y : Tensor = aten::linear(%x, %w, %none)
  %b : Tensor(2) = prim::Constant[value=[10, 20]]()
  %one : int = prim::Constant[value=1]()
  %z : Tensor = aten::add(%y, %b, %one)
  %p : float = prim::Constant[value=0.5]()
  %train : bool = prim::Constant[value=false]()
  %d : Tensor = aten::dropout(%z, %p, %train)
  return (%d)`)
	x := tensorLit(tensor.Shape{1, 2}, 1, -1)
	want := runGraph(t, src, x)

	g, changed := OptimizeFrozenGraph(src.Clone())
	require.True(t, changed)
	assert.Equal(t, []string{ops.Constant, ops.Constant, ops.Linear}, kinds(g))
	require.NoError(t, graph.Validate(g))

	got := runGraph(t, g, x)
	assert.Equal(t, want[0].Tensor.Data, got[0].Tensor.Data)
	assert.Equal(t, []float32{9, 19}, got[0].Tensor.Data)
}

func TestPropagateShapes(t *testing.T) {
	g := graph.MustParse(`graph(%x : Tensor(2, 3)):
  %w : Tensor(4, 3) = prim::Constant[value=[1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1]]()
  %none : None = prim::Constant()
  %y : Tensor = aten::linear(%x, %w, %none)
  %z : Tensor = aten::t(%y)
  return (%z)`)

	g, changed, err := PropagateShapes(g)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, tensor.Shape{4, 2}, g.Outputs[0].Type.Shape)
	require.NoError(t, CheckShapes(g))

	_, changed, err = PropagateShapes(g)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestPropagateShapes_Incompatible(t *testing.T) {
	g := graph.MustParse(`graph(%x : Tensor(2, 3), %y : Tensor(4, 5)):
  %z : Tensor = aten::matmul(%x, %y)
  return (%z)`)

	_, _, err := PropagateShapes(g)
	require.Error(t, err)
	assert.True(t, IsShapeError(err))
	assert.Contains(t, err.Error(), "aten::matmul")
}

func TestCheckShapes_UnknownOperator(t *testing.T) {
	g := graph.MustParse(`graph(%x : Tensor(2)):
  %y : Tensor = custom::mystery(%x)
  return (%y)`)
	g, _, err := PropagateShapes(g)
	require.NoError(t, err)

	err = CheckShapes(g)
	require.Error(t, err)
	assert.True(t, IsShapeError(err))
	assert.Contains(t, err.Error(), "custom::mystery")
	assert.Contains(t, err.Error(), "%y")
}

func TestCheckShapes_RejectsElementCountOverflow(t *testing.T) {
	g := graph.MustParse(`graph(%a : Tensor(4294967296, 1), %b : Tensor(1, 4294967296)):
  %y : Tensor = aten::mul(%a, %b)
  return (%y)`)
	g, _, err := PropagateShapes(g)
	require.NoError(t, err)

	err = CheckShapes(g)
	require.Error(t, err)
	assert.True(t, IsShapeError(err))
	assert.Contains(t, err.Error(), "aten::mul")
	assert.Contains(t, err.Error(), "more elements than fit in int64")
}

func TestPeephole(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"add zero", `graph(%x : Tensor(2)):
  %c : int = prim::Constant[value=0]()
  %one : int = prim::Constant[value=1]()
  %y : Tensor = aten::add(%x, %c, %one)
  return (%y)`},
		{"mul one", `graph(%x : Tensor(2)):
  %c : float = prim::Constant[value=1.0]()
  %y : Tensor = aten::mul(%x, %c)
  return (%y)`},
		{"div one", `graph(%x : Tensor(2)):
  %c : int = prim::Constant[value=1]()
  %y : Tensor = aten::div(%x, %c)
  return (%y)`},
		{"contiguous", `graph(%x : Tensor(2)):
  %y : Tensor = aten::contiguous(%x)
  return (%y)`},
		{"double transpose", `graph(%x : Tensor(2, 3)):
  %a : Tensor(3, 2) = aten::t(%x)
  %y : Tensor(2, 3) = aten::t(%a)
  return (%y)`},
		{"identity view", `graph(%x : Tensor(2, 3)):
  %s : int[] = prim::Constant[value=[2, 3]]()
  %y : Tensor(2, 3) = aten::view(%x, %s)
  return (%y)`},
		{"eval dropout", `graph(%x : Tensor(2)):
  %p : float = prim::Constant[value=0.1]()
  %f : bool = prim::Constant[value=false]()
  %y : Tensor = aten::dropout(%x, %p, %f)
  return (%y)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph.MustParse(tt.src)
			g, changed := Peephole(g)
			require.True(t, changed)
			assert.Same(t, g.Inputs[0], g.Outputs[0])
		})
	}
}

func TestPeephole_CollapsesReluAndFoldsSizes(t *testing.T) {
	g := graph.MustParse(`graph(%x : Tensor(2, 5)):
  %a : Tensor = aten::relu(%x)
  %b : Tensor = aten::relu(%a)
  %one : int = prim::Constant[value=1]()
  %n : int = aten::size(%x, %one)
  %r : int = aten::dim(%x)
  return (%b, %n, %r)`)

	g, changed := Peephole(g)
	require.True(t, changed)
	assert.Same(t, g.Nodes[0].Output(), g.Outputs[0])

	n, ok := graph.ConstantOf(g.Outputs[1])
	require.True(t, ok)
	assert.Equal(t, graph.IntLit(5), n)
	r, ok := graph.ConstantOf(g.Outputs[2])
	require.True(t, ok)
	assert.Equal(t, graph.IntLit(2), r)
}

func TestConstantPropagation(t *testing.T) {
	g := graph.MustParse(`graph(%x : Tensor(2)):
  %a : int = prim::Constant[value=2]()
  %b : int = prim::Constant[value=3]()
  %c : int = aten::mul(%a, %b)
  %y : Tensor = aten::mul(%x, %c)
  return (%y)`)

	g, changed, err := ConstantPropagation(g)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, []string{ops.Constant, ops.Mul}, kinds(g))

	c, ok := graph.ConstantOf(g.Nodes[1].Inputs[1])
	require.True(t, ok)
	assert.Equal(t, graph.IntLit(6), c)
}

const sizeViewChain = `graph(%x : Tensor(2, 3, 4)):
  %zero : int = prim::Constant[value=0]()
  %n : int = aten::size(%x, %zero)
  %neg : int = prim::Constant[value=-1]()
  %dims : int[] = prim::ListConstruct(%n, %neg)
  %y : Tensor = aten::view(%x, %dims)
  %z : Tensor = aten::relu(%y)
  return (%z)`

func TestOptimizer_SizeViewChainNeedsTwoRounds(t *testing.T) {
	one := &Optimizer{MaxRounds: 1}
	g, stats, err := one.Run(context.Background(), graph.MustParse(sizeViewChain))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Rounds)
	assert.False(t, stats.Converged)
	require.Error(t, CheckShapes(g))

	def := &Optimizer{}
	g, stats, err = def.Run(context.Background(), graph.MustParse(sizeViewChain))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Rounds)
	require.NoError(t, CheckShapes(g))
	assert.Equal(t, tensor.Shape{2, 12}, g.Outputs[0].Type.Shape)
}

func TestOptimizer_StopsWhenConverged(t *testing.T) {
	opt := &Optimizer{MaxRounds: 5}
	_, stats, err := opt.Run(context.Background(), graph.MustParse(sizeViewChain))
	require.NoError(t, err)
	assert.True(t, stats.Converged)
	assert.Equal(t, 3, stats.Rounds)
	assert.Equal(t, 2, stats.Changes["propagate-shapes"])
}

func TestOptimizer_PropagatesErrorsAndCancellation(t *testing.T) {
	opt := &Optimizer{}
	_, _, err := opt.Run(context.Background(), graph.MustParse(`graph(%x : Tensor(2, 3), %y : Tensor(4, 5)):
  %z : Tensor = aten::matmul(%x, %y)
  return (%z)`))
	require.True(t, IsShapeError(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = opt.Run(ctx, graph.MustParse(sizeViewChain))
	require.ErrorIs(t, err, context.Canceled)
}
