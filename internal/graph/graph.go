// Package graph is the dataflow representation of model methods: typed SSA
// values produced by operator nodes kept in topological order.
package graph

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Kinds the graph package itself needs to understand.
const (
	KindConstant = "prim::Constant"
)

// Value is an SSA value. Node is nil for graph inputs.
type Value struct {
	ID   int
	Name string
	Type Type
	Node *Node
}

func (v *Value) String() string { return "%" + v.Name }

// Node is one operator application.
type Node struct {
	Kind    string
	Inputs  []*Value
	Outputs []*Value
	Attrs   map[string]Literal
}

// Output returns the first output, or nil.
func (n *Node) Output() *Value {
	if len(n.Outputs) == 0 {
		return nil
	}
	return n.Outputs[0]
}

// Attr looks up an attribute.
func (n *Node) Attr(name string) (Literal, bool) {
	l, ok := n.Attrs[name]
	return l, ok
}

// String renders the node in graph text form without indentation.
func (n *Node) String() string {
	var b strings.Builder
	for i, out := range n.Outputs {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s : %s", out, out.Type)
	}
	if len(n.Outputs) > 0 {
		b.WriteString(" = ")
	}
	b.WriteString(n.Kind)
	if len(n.Attrs) > 0 {
		keys := slices.Sorted(maps.Keys(n.Attrs))
		b.WriteByte('[')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k + "=" + n.Attrs[k].String())
		}
		b.WriteByte(']')
	}
	b.WriteByte('(')
	for i, in := range n.Inputs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(in.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Use is one consumer of a value. Node is nil when the use is graph output
// Index.
type Use struct {
	Node  *Node
	Index int
}

// Graph is a method body. Nodes are kept in topological order.
type Graph struct {
	Inputs  []*Value
	Nodes   []*Node
	Outputs []*Value

	nextID int
	names  map[string]bool
	pinned map[*Value]bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{names: make(map[string]bool), pinned: make(map[*Value]bool)}
}

func (g *Graph) newValue(name string, t Type) *Value {
	id := g.nextID
	g.nextID++
	if name == "" {
		name = strconv.Itoa(id)
	}
	v := &Value{ID: id, Name: g.uniqueName(name), Type: t}
	return v
}

func (g *Graph) uniqueName(name string) string {
	if g.names == nil {
		g.names = make(map[string]bool)
	}
	candidate := name
	for i := 1; g.names[candidate]; i++ {
		candidate = name + "." + strconv.Itoa(i)
	}
	g.names[candidate] = true
	return candidate
}

// Rename gives v a new debug name, uniquified within g.
func (g *Graph) Rename(v *Value, name string) {
	delete(g.names, v.Name)
	v.Name = g.uniqueName(name)
}

// AddInput appends a graph input.
func (g *Graph) AddInput(name string, t Type) *Value {
	v := g.newValue(name, t)
	g.Inputs = append(g.Inputs, v)
	return v
}

// RemoveInput deletes input i. The caller guarantees it has no uses.
func (g *Graph) RemoveInput(i int) {
	delete(g.pinned, g.Inputs[i])
	g.Inputs = slices.Delete(g.Inputs, i, i+1)
}

// NewNode creates a detached node with one output per type.
func (g *Graph) NewNode(kind string, inputs []*Value, attrs map[string]Literal, outs ...Type) *Node {
	n := &Node{Kind: kind, Inputs: slices.Clone(inputs), Attrs: attrs}
	if n.Attrs == nil {
		n.Attrs = map[string]Literal{}
	}
	for _, t := range outs {
		v := g.newValue("", t)
		v.Node = n
		n.Outputs = append(n.Outputs, v)
	}
	return n
}

// Append creates a node at the end of the graph.
func (g *Graph) Append(kind string, inputs []*Value, attrs map[string]Literal, outs ...Type) *Node {
	n := g.NewNode(kind, inputs, attrs, outs...)
	g.Nodes = append(g.Nodes, n)
	return n
}

// InsertBefore creates a node placed immediately before at.
func (g *Graph) InsertBefore(at *Node, kind string, inputs []*Value, attrs map[string]Literal, outs ...Type) *Node {
	n := g.NewNode(kind, inputs, attrs, outs...)
	i := g.IndexOf(at)
	if i < 0 {
		i = len(g.Nodes)
	}
	g.Nodes = slices.Insert(g.Nodes, i, n)
	return n
}

// InsertConstantBefore materializes lit as a prim::Constant placed before
// at and returns its value.
func (g *Graph) InsertConstantBefore(at *Node, lit Literal) *Value {
	n := g.InsertBefore(at, KindConstant, nil, map[string]Literal{"value": lit}, lit.Type())
	return n.Output()
}

// AppendConstant materializes lit at the end of the graph.
func (g *Graph) AppendConstant(lit Literal) *Value {
	return g.Append(KindConstant, nil, map[string]Literal{"value": lit}, lit.Type()).Output()
}

// IndexOf returns the position of n, or -1.
func (g *Graph) IndexOf(n *Node) int {
	return slices.Index(g.Nodes, n)
}

// RemoveNode deletes n. Its outputs must already be unused.
func (g *Graph) RemoveNode(n *Node) {
	if i := g.IndexOf(n); i >= 0 {
		g.Nodes = slices.Delete(g.Nodes, i, i+1)
	}
	for _, out := range n.Outputs {
		delete(g.pinned, out)
	}
}

// Uses lists every consumer of v in node order, then graph outputs.
func (g *Graph) Uses(v *Value) []Use {
	var uses []Use
	for _, n := range g.Nodes {
		for i, in := range n.Inputs {
			if in == v {
				uses = append(uses, Use{Node: n, Index: i})
			}
		}
	}
	for i, out := range g.Outputs {
		if out == v {
			uses = append(uses, Use{Index: i})
		}
	}
	return uses
}

// HasUses reports whether anything consumes v.
func (g *Graph) HasUses(v *Value) bool {
	for _, n := range g.Nodes {
		if slices.Contains(n.Inputs, v) {
			return true
		}
	}
	return slices.Contains(g.Outputs, v)
}

// ReplaceAllUsesWith redirects every consumer of old to repl.
func (g *Graph) ReplaceAllUsesWith(old, repl *Value) {
	for _, n := range g.Nodes {
		replaceIn(n.Inputs, old, repl)
	}
	replaceIn(g.Outputs, old, repl)
}

// ReplaceUsesAfter redirects consumers of old that come after n, and graph
// outputs, to repl.
func (g *Graph) ReplaceUsesAfter(n *Node, old, repl *Value) {
	i := g.IndexOf(n)
	for _, later := range g.Nodes[i+1:] {
		replaceIn(later.Inputs, old, repl)
	}
	replaceIn(g.Outputs, old, repl)
}

func replaceIn(vals []*Value, old, repl *Value) {
	for i, v := range vals {
		if v == old {
			vals[i] = repl
		}
	}
}

// ConstantOf returns the literal of a value produced by prim::Constant.
func ConstantOf(v *Value) (Literal, bool) {
	if v.Node == nil || v.Node.Kind != KindConstant {
		return Literal{}, false
	}
	return v.Node.Attr("value")
}

// Pin marks v as a forced-shape marker: dead code elimination keeps its
// producer even when nothing consumes it.
func (g *Graph) Pin(v *Value) {
	if g.pinned == nil {
		g.pinned = make(map[*Value]bool)
	}
	g.pinned[v] = true
}

// Pinned reports whether v was pinned.
func (g *Graph) Pinned(v *Value) bool { return g.pinned[v] }

// Values lists graph inputs then node outputs in order.
func (g *Graph) Values() []*Value {
	vals := slices.Clone(g.Inputs)
	for _, n := range g.Nodes {
		vals = append(vals, n.Outputs...)
	}
	return vals
}

// Clone deep-copies the graph, including literal payloads.
func (g *Graph) Clone() *Graph {
	out, _ := g.cloneWithMap()
	return out
}

func (g *Graph) cloneWithMap() (*Graph, map[*Value]*Value) {
	out := &Graph{
		nextID: g.nextID,
		names:  maps.Clone(g.names),
		pinned: make(map[*Value]bool, len(g.pinned)),
	}
	if out.names == nil {
		out.names = make(map[string]bool)
	}
	vmap := make(map[*Value]*Value)
	copyValue := func(v *Value, producer *Node) *Value {
		nv := &Value{ID: v.ID, Name: v.Name, Type: cloneType(v.Type), Node: producer}
		vmap[v] = nv
		return nv
	}
	for _, in := range g.Inputs {
		out.Inputs = append(out.Inputs, copyValue(in, nil))
	}
	for _, n := range g.Nodes {
		nn := &Node{Kind: n.Kind, Attrs: cloneAttrs(n.Attrs)}
		for _, in := range n.Inputs {
			nn.Inputs = append(nn.Inputs, vmap[in])
		}
		for _, o := range n.Outputs {
			nn.Outputs = append(nn.Outputs, copyValue(o, nn))
		}
		out.Nodes = append(out.Nodes, nn)
	}
	for _, o := range g.Outputs {
		out.Outputs = append(out.Outputs, vmap[o])
	}
	for v := range g.pinned {
		if nv, ok := vmap[v]; ok {
			out.pinned[nv] = true
		}
	}
	return out, vmap
}

// Inline splices a copy of callee's body before at, binding callee inputs
// to args, and returns the values corresponding to callee outputs.
func (g *Graph) Inline(at *Node, callee *Graph, args []*Value) ([]*Value, error) {
	if len(args) != len(callee.Inputs) {
		return nil, fmt.Errorf("inline: callee takes %d inputs, got %d", len(callee.Inputs), len(args))
	}
	env := make(map[*Value]*Value, len(callee.Inputs))
	for i, in := range callee.Inputs {
		env[in] = args[i]
	}
	for _, n := range callee.Nodes {
		inputs := make([]*Value, len(n.Inputs))
		for i, in := range n.Inputs {
			inputs[i] = env[in]
		}
		types := make([]Type, len(n.Outputs))
		for i, o := range n.Outputs {
			types[i] = cloneType(o.Type)
		}
		nn := g.InsertBefore(at, n.Kind, inputs, cloneAttrs(n.Attrs), types...)
		for i, o := range n.Outputs {
			g.Rename(nn.Outputs[i], o.Name)
			env[o] = nn.Outputs[i]
		}
	}
	results := make([]*Value, len(callee.Outputs))
	for i, o := range callee.Outputs {
		results[i] = env[o]
	}
	return results, nil
}

func cloneType(t Type) Type {
	t.Shape = t.Shape.Clone()
	return t
}

func cloneAttrs(attrs map[string]Literal) map[string]Literal {
	out := make(map[string]Literal, len(attrs))
	for k, v := range attrs {
		out[k] = v.Clone()
	}
	return out
}
