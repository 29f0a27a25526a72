package graph

import (
	"fmt"
	"maps"
	"slices"
)

// AttrKind classifies module state.
type AttrKind string

const (
	AttrParameter AttrKind = "parameter"
	AttrBuffer    AttrKind = "buffer"
	AttrConstant  AttrKind = "constant"
	AttrModule    AttrKind = "module"
)

// Attribute is one named slot of module state. Runtime attributes have no
// compile-time value and block freezing.
type Attribute struct {
	Name    string
	Kind    AttrKind
	Value   Literal
	Module  *Module
	Runtime bool
}

// Module is a stateful model: attributes, submodules, and named methods.
type Module struct {
	Class      string
	Training   bool
	Frozen     bool
	Attributes []*Attribute
	Methods    map[string]*Graph
}

// Method binds a method name to its graph. Calling it goes through the
// interpreter in package eval.
type Method struct {
	Name   string
	Graph  *Graph
	Module *Module
}

// NewModule returns an empty module in training mode.
func NewModule(class string) *Module {
	return &Module{Class: class, Training: true, Methods: make(map[string]*Graph)}
}

// Attr looks up a direct attribute by name.
func (m *Module) Attr(name string) (*Attribute, bool) {
	for _, a := range m.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// SetAttr adds a or replaces the attribute with the same name.
func (m *Module) SetAttr(a *Attribute) {
	for i, existing := range m.Attributes {
		if existing.Name == a.Name {
			m.Attributes[i] = a
			return
		}
	}
	m.Attributes = append(m.Attributes, a)
}

// AddMethod registers a method body.
func (m *Module) AddMethod(name string, g *Graph) {
	if m.Methods == nil {
		m.Methods = make(map[string]*Graph)
	}
	m.Methods[name] = g
}

// Method returns the named method.
func (m *Module) Method(name string) (*Method, error) {
	g, ok := m.Methods[name]
	if !ok {
		return nil, fmt.Errorf("module %s has no method %q (have %v)", m.Class, name, m.MethodNames())
	}
	return &Method{Name: name, Graph: g, Module: m}, nil
}

// MethodNames lists methods in sorted order.
func (m *Module) MethodNames() []string {
	return slices.Sorted(maps.Keys(m.Methods))
}

// Eval switches the module tree to inference mode.
func (m *Module) Eval() {
	m.Training = false
	for _, a := range m.Attributes {
		if a.Kind == AttrModule && a.Module != nil {
			a.Module.Eval()
		}
	}
}

// Clone deep-copies the module tree, its state and its method graphs.
func (m *Module) Clone() *Module {
	out := &Module{
		Class:    m.Class,
		Training: m.Training,
		Frozen:   m.Frozen,
		Methods:  make(map[string]*Graph, len(m.Methods)),
	}
	for _, a := range m.Attributes {
		ca := &Attribute{Name: a.Name, Kind: a.Kind, Value: a.Value.Clone(), Runtime: a.Runtime}
		if a.Module != nil {
			ca.Module = a.Module.Clone()
		}
		out.Attributes = append(out.Attributes, ca)
	}
	for name, g := range m.Methods {
		out.Methods[name] = g.Clone()
	}
	return out
}
