package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aotc/internal/eval"
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ops"
	"github.com/roach88/aotc/internal/tensor"
)

func tensorLit(shape tensor.Shape, data ...float32) graph.Literal {
	return graph.TensorLit(tensor.MustFromData(shape, data))
}

func kinds(g *graph.Graph) []string {
	out := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		out[i] = n.Kind
	}
	return out
}

// netModule builds Net(fc: Linear(3 -> 2)) whose forward is relu(fc(x)).
func netModule() *graph.Module {
	fc := graph.NewModule("Linear")
	fc.SetAttr(&graph.Attribute{Name: "weight", Kind: graph.AttrParameter, Value: tensorLit(tensor.Shape{2, 3}, 1, 0, -1, 0.5, 0.5, 0.5)})
	fc.SetAttr(&graph.Attribute{Name: "bias", Kind: graph.AttrParameter, Value: tensorLit(tensor.Shape{2}, 0.25, -4)})
	fc.AddMethod("forward", graph.MustParse(`graph(%self : Linear, %x : Tensor):
  %w : Tensor = prim::GetAttr[name="weight"](%self)
  %b : Tensor = prim::GetAttr[name="bias"](%self)
  %y : Tensor = aten::linear(%x, %w, %b)
  return (%y)`))

	net := graph.NewModule("Net")
	net.SetAttr(&graph.Attribute{Name: "fc", Kind: graph.AttrModule, Module: fc})
	net.AddMethod("forward", graph.MustParse(`graph(%self : Net, %x : Tensor):
  %fc : Linear = prim::GetAttr[name="fc"](%self)
  %y : Tensor = prim::CallMethod[name="forward"](%fc, %x)
  %r : Tensor = aten::relu(%y)
  return (%r)`))
	return net
}

func TestFreeze_InlinesSubmodulesAndPreservesResults(t *testing.T) {
	net := netModule()
	x := tensorLit(tensor.Shape{1, 3}, 2, 4, 6)

	want, err := eval.RunMethod(net, "forward", []graph.Literal{x})
	require.NoError(t, err)

	frozen, err := Freeze(net, "forward")
	require.NoError(t, err)
	assert.True(t, frozen.Frozen)
	assert.False(t, frozen.Training)
	assert.Empty(t, frozen.Attributes)
	assert.True(t, net.Training, "source module must not change")

	g := frozen.Methods["forward"]
	for _, n := range g.Nodes {
		assert.NotEqual(t, ops.GetAttr, n.Kind)
		assert.NotEqual(t, ops.CallMethod, n.Kind)
	}
	g, err = RemoveUnusedSelfArgument(g)
	require.NoError(t, err)
	require.Len(t, g.Inputs, 1)
	require.NoError(t, graph.Validate(g))

	got, err := eval.Run(g, []graph.Literal{x})
	require.NoError(t, err)
	assert.InDeltaSlice(t, want[0].Tensor.Data, got[0].Tensor.Data, 1e-6)
}

func TestFreeze_TrainingFlagBecomesConstant(t *testing.T) {
	m := graph.NewModule("M")
	m.AddMethod("forward", graph.MustParse(`graph(%self : M, %x : Tensor):
  %t : bool = prim::GetAttr[name="training"](%self)
  %p : float = prim::Constant[value=0.5]()
  %y : Tensor = aten::dropout(%x, %p, %t)
  return (%y)`))

	frozen, err := Freeze(m)
	require.NoError(t, err)

	train, ok := graph.ConstantOf(frozen.Methods["forward"].Nodes[0].Output())
	require.True(t, ok)
	assert.Equal(t, graph.BoolLit(false), train)
}

func TestFreeze_Errors(t *testing.T) {
	tests := []struct {
		name   string
		attrs  []*graph.Attribute
		src    string
		method string
		want   string
	}{
		{
			name: "missing attribute",
			src: `graph(%self : M, %x : Tensor):
  %w : Tensor = prim::GetAttr[name="weight"](%self)
  return (%w)`,
			want: `attribute "weight": not found`,
		},
		{
			name:  "runtime attribute",
			attrs: []*graph.Attribute{{Name: "state", Kind: graph.AttrBuffer, Runtime: true}},
			src: `graph(%self : M, %x : Tensor):
  %s : Tensor = prim::GetAttr[name="state"](%self)
  return (%s)`,
			want: "supplied at run time",
		},
		{
			name:  "mutated state",
			attrs: []*graph.Attribute{{Name: "state", Kind: graph.AttrBuffer, Value: tensorLit(tensor.Shape{1}, 0)}},
			src: `graph(%self : M, %x : Tensor):
  prim::SetAttr[name="state"](%self, %x)
  return (%x)`,
			want: "assigned inside the method",
		},
		{
			name: "escaping module",
			src: `graph(%self : M, %x : Tensor):
  return (%self)`,
			want: "returns module value",
		},
		{
			name:   "unknown method",
			src:    `graph(%self : M, %x : Tensor):
  return (%x)`,
			method: "predict",
			want:   "no method",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := graph.NewModule("M")
			m.Attributes = tt.attrs
			m.AddMethod("forward", graph.MustParse(tt.src))
			method := tt.method
			if method == "" {
				method = "forward"
			}

			_, err := Freeze(m, method)
			require.Error(t, err)
			assert.True(t, IsFreezeError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFreeze_RecursiveMethodFails(t *testing.T) {
	m := graph.NewModule("Loop")
	m.AddMethod("forward", graph.MustParse(`graph(%self : Loop, %x : Tensor):
  %y : Tensor = prim::CallMethod[name="forward"](%self, %x)
  return (%y)`))

	_, err := Freeze(m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recursive")
}

func TestRemoveUnusedSelfArgument(t *testing.T) {
	g := graph.MustParse(`graph(%self : M, %x : Tensor):
  %y : Tensor = aten::relu(%x)
  return (%y)`)
	g, err := RemoveUnusedSelfArgument(g)
	require.NoError(t, err)
	require.Len(t, g.Inputs, 1)
	assert.Equal(t, "x", g.Inputs[0].Name)

	used := graph.MustParse(`graph(%self : M, %x : Tensor):
  %w : Tensor = prim::GetAttr[name="w"](%self)
  return (%w)`)
	_, err = RemoveUnusedSelfArgument(used)
	require.Error(t, err)
	assert.True(t, IsFreezeError(err))
}
