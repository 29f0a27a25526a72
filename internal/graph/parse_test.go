package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aotc/internal/tensor"
)

const linearSrc = `graph(%self : __torch__.Net, %x.1 : Tensor):
  # weights come from module state
  %w : Tensor = prim::GetAttr[name="weight"](%self)
  %b : Tensor = prim::GetAttr[name="bias"](%self)
  %y : Tensor = aten::linear(%x.1, %w, %b)
  %p : float = prim::Constant[value=0.5]()
  %train : bool = prim::Constant[value=false]()
  %z : Tensor = aten::dropout(%y, %p, %train)
  return (%z)
`

func TestParse_Linear(t *testing.T) {
	g, err := Parse("net.graph", linearSrc)
	require.NoError(t, err)

	require.Len(t, g.Inputs, 2)
	assert.Equal(t, ModuleType("__torch__.Net"), g.Inputs[0].Type)
	assert.Equal(t, "x.1", g.Inputs[1].Name)
	require.Len(t, g.Nodes, 6)
	assert.Equal(t, "prim::GetAttr", g.Nodes[0].Kind)
	assert.Equal(t, StringLit("weight"), g.Nodes[0].Attrs["name"])

	p, ok := ConstantOf(g.Nodes[3].Output())
	require.True(t, ok)
	assert.Equal(t, FloatLit(0.5), p)

	train, ok := ConstantOf(g.Nodes[4].Output())
	require.True(t, ok)
	assert.Equal(t, BoolLit(false), train)

	require.Len(t, g.Outputs, 1)
	assert.Equal(t, "z", g.Outputs[0].Name)
	require.NoError(t, Validate(g))
}

func TestParse_Types(t *testing.T) {
	g, err := Parse("", `graph(%a : Tensor(1, 3, -1), %b : int[], %c : float[], %d : Tensor()):
  %n : None = prim::Constant()
  return (%a, %n)
`)
	require.NoError(t, err)

	assert.Equal(t, tensor.Shape{1, 3, -1}, g.Inputs[0].Type.Shape)
	assert.Equal(t, IntListType, g.Inputs[1].Type)
	assert.Equal(t, FloatListType, g.Inputs[2].Type)
	assert.Equal(t, tensor.Shape{}, g.Inputs[3].Type.Shape)
	lit, ok := ConstantOf(g.Nodes[0].Output())
	require.True(t, ok)
	assert.Equal(t, LitNone, lit.Kind)
}

func TestParse_TensorConstant(t *testing.T) {
	g, err := Parse("", `graph():
  %c : Tensor(2, 2) = prim::Constant[value=[1, 2.5, -3, 4e-1]]()
  %s : float[] = prim::Constant[value=[1, 2]]()
  return (%c, %s)
`)
	require.NoError(t, err)

	c, ok := ConstantOf(g.Outputs[0])
	require.True(t, ok)
	require.Equal(t, LitTensor, c.Kind)
	assert.Equal(t, []float32{1, 2.5, -3, 0.4}, c.Tensor.Data)

	s, ok := ConstantOf(g.Outputs[1])
	require.True(t, ok)
	assert.Equal(t, FloatsLit([]float64{1, 2}), s)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"undefined input", "graph(%x : Tensor):\n  %y : Tensor = aten::relu(%q)\n  return (%y)\n", "undefined value %q"},
		{"redefinition", "graph(%x : Tensor):\n  %x : Tensor = aten::relu(%x)\n  return (%x)\n", "defined twice"},
		{"undefined return", "graph(%x : Tensor):\n  return (%nope)\n", "undefined return value"},
		{"syntax", "graph(%x : Tensor)\n  return (%x)\n", "2:3"},
		{"bad tensor constant", "graph():\n  %c : Tensor(3) = prim::Constant[value=[1, 2]]()\n  return (%c)\n", "prim::Constant"},
		{"dims on int", "graph(%x : int(3)):\n  return (%x)\n", "only Tensor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("", tt.src)
			require.Error(t, err)
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_UndefinedReturnPosition(t *testing.T) {
	_, err := Parse("p", "graph(%x : Tensor):\n  %y : Tensor = aten::relu(%x)\n  return (%y, %nope)\n")
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "p", pe.Filename)
	assert.Equal(t, 3, pe.Line)
	assert.Equal(t, 15, pe.Column)
	assert.Equal(t, "p:3:15: undefined return value %nope", err.Error())
}

func TestPrint_RoundTrip(t *testing.T) {
	g, err := Parse("", linearSrc)
	require.NoError(t, err)

	printed := Print(g)
	again, err := Parse("", printed)
	require.NoError(t, err)
	assert.Equal(t, printed, Print(again))
}

func TestPrint_Format(t *testing.T) {
	g := New()
	x := g.AddInput("x", TensorType(tensor.Shape{1, 4}))
	y := g.Append("aten::relu", []*Value{x}, nil, TensorType(tensor.Shape{1, 4})).Output()
	g.Rename(y, "y")
	g.Outputs = []*Value{y}

	expected := "graph(%x : Tensor(1, 4)):\n" +
		"  %y : Tensor(1, 4) = aten::relu(%x)\n" +
		"  return (%y)\n"
	assert.Equal(t, expected, Print(g))
}
