package loader

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aotc/internal/eval"
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/tensor"
)

func TestLoad_Formats(t *testing.T) {
	x := graph.TensorLit(tensor.MustFromData(tensor.Shape{1, 3}, []float32{2, 4, 6}))

	for _, file := range []string{"testdata/net.yaml", "testdata/net.cue"} {
		t.Run(filepath.Ext(file), func(t *testing.T) {
			m, err := Load(file)
			require.NoError(t, err)

			assert.Equal(t, "Net", m.Class)
			assert.True(t, m.Training)
			assert.Equal(t, []string{"forward"}, m.MethodNames())

			fc, ok := m.Attr("fc")
			require.True(t, ok)
			assert.Equal(t, graph.AttrModule, fc.Kind)
			require.NotNil(t, fc.Module)
			assert.Equal(t, "Linear", fc.Module.Class)

			scale, ok := m.Attr("scale")
			require.True(t, ok)
			assert.Equal(t, graph.FloatLit(2), scale.Value)

			running, ok := m.Attr("running")
			require.True(t, ok)
			assert.Equal(t, []float32{1, 1}, running.Value.Tensor.Data)

			out, err := eval.RunMethod(m, "forward", []graph.Literal{x})
			require.NoError(t, err)
			require.Len(t, out, 1)
			assert.Equal(t, tensor.Shape{1, 2}, out[0].Tensor.Shape)
			assert.Equal(t, []float32{0, 4}, out[0].Tensor.Data)
		})
	}
}

func TestLoadBytes_Constants(t *testing.T) {
	src := `class: C
attributes:
  - {name: n, kind: constant, value: 3}
  - {name: f, kind: constant, value: 3.5}
  - {name: b, kind: constant, value: true}
  - {name: s, kind: constant, value: mean}
  - {name: dims, kind: constant, value: [1, 2]}
  - {name: mix, kind: constant, value: [1, 2.5]}
  - {name: none, kind: constant}
  - {name: t, kind: constant, shape: [2], data: [1, 2]}
methods:
  forward: |
    graph(%self : C, %x : Tensor):
      return (%x)
`
	m, err := LoadBytes("c.yaml", []byte(src), FormatYAML)
	require.NoError(t, err)

	want := map[string]graph.Literal{
		"n":    graph.IntLit(3),
		"f":    graph.FloatLit(3.5),
		"b":    graph.BoolLit(true),
		"s":    graph.StringLit("mean"),
		"dims": graph.IntsLit([]int64{1, 2}),
		"mix":  graph.FloatsLit([]float64{1, 2.5}),
		"none": graph.NoneLit(),
	}
	for name, lit := range want {
		a, ok := m.Attr(name)
		require.True(t, ok, name)
		assert.True(t, lit.Equal(a.Value), "%s: got %v", name, a.Value)
	}
	tt, ok := m.Attr("t")
	require.True(t, ok)
	assert.Equal(t, graph.LitTensor, tt.Value.Kind)
}

func TestLoadBytes_CUEConstants(t *testing.T) {
	src := `class: "C"
training: false
attributes: [
	{name: "n", kind: "constant", value: 3},
	{name: "f", kind: "constant", value: 3.0},
	{name: "h", kind: "parameter", shape: [1], runtime: true},
]
methods: forward: "graph(%self : C, %x : Tensor):\n  return (%x)"
`
	m, err := LoadBytes("c.cue", []byte(src), FormatCUE)
	require.NoError(t, err)
	assert.False(t, m.Training)

	n, _ := m.Attr("n")
	assert.Equal(t, graph.IntLit(3), n.Value)
	f, _ := m.Attr("f")
	assert.Equal(t, graph.FloatLit(3), f.Value)
	h, _ := m.Attr("h")
	assert.True(t, h.Runtime)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		src    string
		want   string
	}{
		{"yaml unknown field", FormatYAML, "class: C\nweights: 1\n", "field weights not found"},
		{"yaml missing class", FormatYAML, "methods: {forward: 'graph(%x : Tensor):\n  return (%x)'}\n", "class is required"},
		{"yaml no methods", FormatYAML, "class: C\n", "at least one method is required"},
		{"yaml bad kind", FormatYAML, "class: C\nattributes: [{name: a, kind: weights}]\nmethods: {forward: 'graph():\n  return ()'}\n", `unknown attribute kind "weights"`},
		{"yaml data length", FormatYAML, "class: C\nattributes: [{name: a, kind: parameter, shape: [3], data: [1, 2]}]\nmethods: {forward: 'graph():\n  return ()'}\n", "C.attributes[0]"},
		{"yaml bad shape", FormatYAML, "class: C\nattributes: [{name: a, kind: buffer, shape: [0]}]\nmethods: {forward: 'graph():\n  return ()'}\n", "invalid dimension"},
		{"yaml data and fill", FormatYAML, "class: C\nattributes: [{name: a, kind: buffer, shape: [1], data: [1], fill: 1}]\nmethods: {forward: 'graph():\n  return ()'}\n", "not both"},
		{"yaml duplicate", FormatYAML, "class: C\nattributes: [{name: a, kind: constant, value: 1}, {name: a, kind: constant, value: 2}]\nmethods: {forward: 'graph():\n  return ()'}\n", `duplicate attribute "a"`},
		{"yaml module without body", FormatYAML, "class: C\nattributes: [{name: a, kind: module}]\nmethods: {forward: 'graph():\n  return ()'}\n", "needs a module body"},
		{"yaml bad graph", FormatYAML, "class: C\nmethods: {forward: 'graph(%x : Tensor)'}\n", "C.methods.forward"},
		{"cue schema violation", FormatCUE, `class: "C", attributes: [{name: "a", kind: "weights"}]`, "kind"},
		{"cue unknown field", FormatCUE, `class: "C", weights: 1`, "weights"},
		{"cue syntax", FormatCUE, `class: `, "c.cue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes("c."+string(tt.format), []byte(tt.src), tt.format)
			require.Error(t, err)
			assert.True(t, IsLoadError(err), "%T: %v", err, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_FileErrors(t *testing.T) {
	_, err := Load("model.onnx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown model format")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, IsLoadError(err))
	assert.Contains(t, err.Error(), "missing.yaml")
}
