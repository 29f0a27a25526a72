package loader

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/tensor"
)

// Description is the decoded form of a model file.
type Description struct {
	Class      string            `yaml:"class" json:"class"`
	Training   *bool             `yaml:"training,omitempty" json:"training,omitempty"`
	Attributes []AttributeDesc   `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Methods    map[string]string `yaml:"methods,omitempty" json:"methods,omitempty"`
}

// AttributeDesc describes one attribute. Tensors take a shape plus either
// data (row-major, one value per element) or a fill value; scalar and list
// constants take a value.
type AttributeDesc struct {
	Name    string       `yaml:"name" json:"name"`
	Kind    string       `yaml:"kind" json:"kind"`
	Shape   []int64      `yaml:"shape,omitempty" json:"shape,omitempty"`
	Data    []float64    `yaml:"data,omitempty" json:"data,omitempty"`
	Fill    *float64     `yaml:"fill,omitempty" json:"fill,omitempty"`
	Value   any          `yaml:"value,omitempty" json:"value,omitempty"`
	Runtime bool         `yaml:"runtime,omitempty" json:"runtime,omitempty"`
	Module  *Description `yaml:"module,omitempty" json:"module,omitempty"`
}

// Build converts d into a module. file names the source in errors.
func (d *Description) Build(file string) (*graph.Module, error) {
	m, err := d.build(file, d.Class)
	if err != nil {
		return nil, err
	}
	if len(m.Methods) == 0 {
		return nil, &LoadError{Path: file, Field: "methods", Message: "at least one method is required"}
	}
	return m, nil
}

func (d *Description) build(file, path string) (*graph.Module, error) {
	if strings.TrimSpace(d.Class) == "" {
		return nil, &LoadError{Path: file, Field: path + ".class", Message: "class is required"}
	}
	m := graph.NewModule(d.Class)
	if d.Training != nil {
		m.Training = *d.Training
	}

	for i, a := range d.Attributes {
		field := fmt.Sprintf("%s.attributes[%d]", path, i)
		if a.Name == "" {
			return nil, &LoadError{Path: file, Field: field, Message: "name is required"}
		}
		if _, dup := m.Attr(a.Name); dup {
			return nil, &LoadError{Path: file, Field: field, Message: fmt.Sprintf("duplicate attribute %q", a.Name)}
		}
		attr, err := a.build(file, field, path+"."+a.Name)
		if err != nil {
			return nil, err
		}
		m.SetAttr(attr)
	}

	for name, src := range d.Methods {
		g, err := graph.Parse(file+":"+path+"."+name, src)
		if err != nil {
			return nil, &LoadError{Path: file, Field: path + ".methods." + name, Message: err.Error()}
		}
		m.AddMethod(name, g)
	}
	return m, nil
}

func (a *AttributeDesc) build(file, field, modPath string) (*graph.Attribute, error) {
	fail := func(format string, args ...any) error {
		return &LoadError{Path: file, Field: field, Message: fmt.Sprintf(format, args...)}
	}
	attr := &graph.Attribute{Name: a.Name, Kind: graph.AttrKind(a.Kind), Runtime: a.Runtime}

	switch attr.Kind {
	case graph.AttrModule:
		if a.Module == nil {
			return nil, fail("module attribute %q needs a module body", a.Name)
		}
		sub, err := a.Module.build(file, modPath)
		if err != nil {
			return nil, err
		}
		attr.Module = sub
		return attr, nil
	case graph.AttrParameter, graph.AttrBuffer, graph.AttrConstant:
	default:
		return nil, fail("unknown attribute kind %q", a.Kind)
	}

	if a.Runtime {
		if a.Data != nil || a.Fill != nil || a.Value != nil {
			return nil, fail("runtime attribute %q cannot have a value", a.Name)
		}
		if a.Shape != nil {
			if err := tensor.Shape(a.Shape).Validate(); err != nil {
				return nil, fail("%v", err)
			}
		}
		return attr, nil
	}

	if a.Shape != nil || attr.Kind != graph.AttrConstant {
		t, err := a.tensor()
		if err != nil {
			return nil, fail("%v", err)
		}
		attr.Value = graph.TensorLit(t)
		return attr, nil
	}

	lit, err := literalOf(a.Value)
	if err != nil {
		return nil, fail("%v", err)
	}
	attr.Value = lit
	return attr, nil
}

func (a *AttributeDesc) tensor() (*tensor.Tensor, error) {
	shape := tensor.Shape(a.Shape)
	if shape == nil {
		return nil, fmt.Errorf("tensor attribute %q needs a shape", a.Name)
	}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	switch {
	case a.Data != nil && a.Fill != nil:
		return nil, fmt.Errorf("give data or fill, not both")
	case a.Fill != nil:
		return tensor.Full(shape, float32(*a.Fill)), nil
	case a.Data != nil:
		data := make([]float32, len(a.Data))
		for i, v := range a.Data {
			data[i] = float32(v)
		}
		return tensor.FromData(shape, data)
	}
	return tensor.New(shape), nil
}

// literalOf converts a decoded YAML or JSON scalar into a literal.
func literalOf(v any) (graph.Literal, error) {
	switch x := v.(type) {
	case nil:
		return graph.NoneLit(), nil
	case bool:
		return graph.BoolLit(x), nil
	case int:
		return graph.IntLit(int64(x)), nil
	case int64:
		return graph.IntLit(x), nil
	case float64:
		return graph.FloatLit(x), nil
	case json.Number:
		if strings.ContainsAny(string(x), ".eE") {
			f, err := x.Float64()
			return graph.FloatLit(f), err
		}
		i, err := x.Int64()
		return graph.IntLit(i), err
	case string:
		return graph.StringLit(x), nil
	case []any:
		return listLiteral(x)
	}
	return graph.Literal{}, fmt.Errorf("unsupported constant value %v (%T)", v, v)
}

func listLiteral(items []any) (graph.Literal, error) {
	ints := make([]int64, 0, len(items))
	floats := make([]float64, 0, len(items))
	isFloat := false
	for _, item := range items {
		lit, err := literalOf(item)
		if err != nil {
			return graph.Literal{}, err
		}
		switch lit.Kind {
		case graph.LitInt:
			ints = append(ints, lit.Int)
			floats = append(floats, float64(lit.Int))
		case graph.LitFloat:
			isFloat = true
			floats = append(floats, lit.Float)
		default:
			return graph.Literal{}, fmt.Errorf("list constants hold numbers only, got %v", item)
		}
	}
	if isFloat {
		return graph.FloatsLit(floats), nil
	}
	return graph.IntsLit(ints), nil
}
