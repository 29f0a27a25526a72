package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/roach88/aotc/internal/tensor"
)

var graphLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Value", Pattern: `%[A-Za-z0-9_.]+`},
	{Name: "Op", Pattern: `[A-Za-z_][A-Za-z0-9_]*::[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Float", Pattern: `[-+]?(\d+\.\d*([eE][-+]?\d+)?|\d+[eE][-+]?\d+)`},
	{Name: "Int", Pattern: `[-+]?\d+`},
	{Name: "String", Pattern: `"(\\.|[^"\\])*"`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_.]*`},
	{Name: "Punct", Pattern: `[(),:=\[\]]`},
})

type graphAST struct {
	Params  []*paramAST  `"graph" "(" ( @@ ( "," @@ )* )? ")" ":"`
	Nodes   []*nodeAST   `@@*`
	Returns []*returnAST `"return" "(" ( @@ ( "," @@ )* )? ")"`
}

type returnAST struct {
	Pos  lexer.Position
	Name string `@Value`
}

type paramAST struct {
	Pos  lexer.Position
	Name string   `@Value`
	Type *typeAST `":" @@`
}

type typeAST struct {
	Name string   `@Ident`
	List bool     `@( "[" "]" )?`
	Dims *dimsAST `@@?`
}

type dimsAST struct {
	Open bool    `@"("`
	Dims []int64 `( @Int ( "," @Int )* )? ")"`
}

type nodeAST struct {
	Pos     lexer.Position
	Outputs []*paramAST `( @@ ( "," @@ )* "=" )?`
	Op      string      `@Op`
	Attrs   []*attrAST  `( "[" ( @@ ( "," @@ )* )? "]" )?`
	Inputs  []string    `"(" ( @Value ( "," @Value )* )? ")"`
}

type attrAST struct {
	Key   string      `@Ident "="`
	Value *literalAST `@@`
}

type literalAST struct {
	Str   *string  `  @String`
	Float *float64 `| @Float`
	Int   *int64   `| @Int`
	Bool  *string  `| @( "true" | "false" )`
	None  bool     `| @"None"`
	List  *listAST `| @@`
}

type listAST struct {
	Open  bool          `@"["`
	Items []*literalAST `( @@ ( "," @@ )* )? "]"`
}

var graphParser = participle.MustBuild[graphAST](
	participle.Lexer(graphLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.Unquote("String"),
	participle.UseLookahead(3),
)

// ParseError reports a malformed graph with its source position.
type ParseError struct {
	Filename string
	Line     int
	Column   int
	Message  string
}

func (e *ParseError) Error() string {
	if e.Filename != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.Filename, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

func errorAt(pos lexer.Position, format string, args ...any) *ParseError {
	return &ParseError{Filename: pos.Filename, Line: pos.Line, Column: pos.Column, Message: fmt.Sprintf(format, args...)}
}

// Parse reads a graph in text form. filename is used only in errors.
func Parse(filename, src string) (*Graph, error) {
	ast, err := graphParser.ParseString(filename, src)
	if err != nil {
		var pe participle.Error
		if errors.As(err, &pe) {
			return nil, errorAt(pe.Position(), "%s", pe.Message())
		}
		return nil, err
	}

	g := New()
	env := make(map[string]*Value)
	define := func(p *paramAST, v *Value) error {
		name := strings.TrimPrefix(p.Name, "%")
		if _, dup := env[name]; dup {
			return errorAt(p.Pos, "value %%%s defined twice", name)
		}
		env[name] = v
		g.Rename(v, name)
		return nil
	}

	for _, p := range ast.Params {
		t, err := p.Type.toType()
		if err != nil {
			return nil, errorAt(p.Pos, "%v", err)
		}
		if err := define(p, g.AddInput("", t)); err != nil {
			return nil, err
		}
	}

	for _, n := range ast.Nodes {
		inputs := make([]*Value, len(n.Inputs))
		for i, name := range n.Inputs {
			v, ok := env[strings.TrimPrefix(name, "%")]
			if !ok {
				return nil, errorAt(n.Pos, "undefined value %s in %s", name, n.Op)
			}
			inputs[i] = v
		}
		types := make([]Type, len(n.Outputs))
		for i, out := range n.Outputs {
			t, err := out.Type.toType()
			if err != nil {
				return nil, errorAt(out.Pos, "%v", err)
			}
			types[i] = t
		}
		attrs := make(map[string]Literal, len(n.Attrs))
		for _, a := range n.Attrs {
			var want *Type
			if n.Op == KindConstant && a.Key == "value" && len(types) == 1 {
				want = &types[0]
			}
			lit, err := a.Value.toLiteral(want)
			if err != nil {
				return nil, errorAt(n.Pos, "%s attribute %s: %v", n.Op, a.Key, err)
			}
			attrs[a.Key] = lit
		}
		if _, ok := attrs["value"]; !ok && n.Op == KindConstant && len(types) == 1 && types[0].Kind == KindNone {
			attrs["value"] = NoneLit()
		}
		node := g.Append(n.Op, inputs, attrs, types...)
		for i, out := range n.Outputs {
			if err := define(out, node.Outputs[i]); err != nil {
				return nil, err
			}
		}
	}

	for _, r := range ast.Returns {
		v, ok := env[strings.TrimPrefix(r.Name, "%")]
		if !ok {
			return nil, errorAt(r.Pos, "undefined return value %s", r.Name)
		}
		g.Outputs = append(g.Outputs, v)
	}
	return g, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustParse(src string) *Graph {
	g, err := Parse("", src)
	if err != nil {
		panic(err)
	}
	return g
}

func (t *typeAST) toType() (Type, error) {
	if t.List {
		switch t.Name {
		case "int":
			return IntListType, nil
		case "float":
			return FloatListType, nil
		}
		return Type{}, fmt.Errorf("unsupported list type %s[]", t.Name)
	}
	if t.Dims != nil && t.Name != "Tensor" {
		return Type{}, fmt.Errorf("only Tensor types take dimensions, got %s(...)", t.Name)
	}
	switch t.Name {
	case "Tensor":
		if t.Dims == nil {
			return TensorType(nil), nil
		}
		return TensorType(append(tensor.Shape{}, t.Dims.Dims...)), nil
	case "int":
		return IntType, nil
	case "float":
		return FloatType, nil
	case "bool":
		return BoolType, nil
	case "str":
		return StringType, nil
	case "None", "NoneType":
		return NoneType, nil
	case "Module":
		return ModuleType(""), nil
	}
	return ModuleType(t.Name), nil
}

// toLiteral converts an attribute literal. When want is set the literal is
// coerced to that type, which is how tensor constants are spelled.
func (l *literalAST) toLiteral(want *Type) (Literal, error) {
	lit, err := l.natural()
	if err != nil || want == nil {
		return lit, err
	}
	switch want.Kind {
	case KindTensor:
		vals, ok := numbers(lit)
		if !ok {
			return Literal{}, fmt.Errorf("tensor constant needs numeric data, got %s", lit)
		}
		if !want.Shape.Complete() {
			return Literal{}, fmt.Errorf("tensor constant needs a complete shape, got %s", want)
		}
		data := make([]float32, len(vals))
		for i, v := range vals {
			data[i] = float32(v)
		}
		t, err := tensor.FromData(want.Shape, data)
		if err != nil {
			return Literal{}, err
		}
		return TensorLit(t), nil
	case KindFloat:
		if lit.Kind == LitInt || lit.Kind == LitFloat {
			f, _ := lit.AsFloat()
			return FloatLit(f), nil
		}
	case KindFloatList:
		if lit.Kind == LitInts || lit.Kind == LitFloats {
			vals, _ := numbers(lit)
			return FloatsLit(vals), nil
		}
	default:
		if lit.Type().Kind == want.Kind {
			return lit, nil
		}
	}
	return Literal{}, fmt.Errorf("literal %s does not match type %s", lit, want)
}

func (l *literalAST) natural() (Literal, error) {
	switch {
	case l.Str != nil:
		return StringLit(*l.Str), nil
	case l.Float != nil:
		return FloatLit(*l.Float), nil
	case l.Int != nil:
		return IntLit(*l.Int), nil
	case l.Bool != nil:
		return BoolLit(*l.Bool == "true"), nil
	case l.None:
		return NoneLit(), nil
	case l.List != nil:
		return listLiteral(l.List.Items)
	}
	return Literal{}, fmt.Errorf("empty literal")
}

func listLiteral(items []*literalAST) (Literal, error) {
	ints := make([]int64, 0, len(items))
	floats := make([]float64, 0, len(items))
	allInts := true
	for _, item := range items {
		switch {
		case item.Int != nil:
			ints = append(ints, *item.Int)
			floats = append(floats, float64(*item.Int))
		case item.Float != nil:
			allInts = false
			floats = append(floats, *item.Float)
		default:
			return Literal{}, fmt.Errorf("lists may only hold numbers")
		}
	}
	if allInts {
		return IntsLit(ints), nil
	}
	return FloatsLit(floats), nil
}

func numbers(l Literal) ([]float64, bool) {
	switch l.Kind {
	case LitInts:
		out := make([]float64, len(l.Ints))
		for i, v := range l.Ints {
			out[i] = float64(v)
		}
		return out, true
	case LitFloats:
		return l.Floats, true
	case LitInt, LitFloat:
		f, _ := l.AsFloat()
		return []float64{f}, true
	}
	return nil, false
}
