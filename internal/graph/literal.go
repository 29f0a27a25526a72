package graph

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/aotc/internal/tensor"
)

// LiteralKind tags the payload of a Literal.
type LiteralKind int

const (
	LitNone LiteralKind = iota
	LitInt
	LitFloat
	LitBool
	LitString
	LitInts
	LitFloats
	LitTensor
	LitModule
)

// Literal is a compile-time constant: a node attribute, a frozen parameter,
// or a runtime value inside the interpreter.
type Literal struct {
	Kind   LiteralKind
	Int    int64
	Float  float64
	Bool   bool
	Str    string
	Ints   []int64
	Floats []float64
	Tensor *tensor.Tensor
	Module *Module
}

func NoneLit() Literal { return Literal{Kind: LitNone} }
func IntLit(v int64) Literal { return Literal{Kind: LitInt, Int: v} }
func FloatLit(v float64) Literal { return Literal{Kind: LitFloat, Float: v} }
func BoolLit(v bool) Literal { return Literal{Kind: LitBool, Bool: v} }
func StringLit(v string) Literal { return Literal{Kind: LitString, Str: v} }
func IntsLit(v []int64) Literal { return Literal{Kind: LitInts, Ints: slices.Clone(v)} }
func FloatsLit(v []float64) Literal { return Literal{Kind: LitFloats, Floats: slices.Clone(v)} }
func TensorLit(t *tensor.Tensor) Literal { return Literal{Kind: LitTensor, Tensor: t} }
func ModuleLit(m *Module) Literal { return Literal{Kind: LitModule, Module: m} }

// Type returns the static type a value holding this literal has.
func (l Literal) Type() Type {
	switch l.Kind {
	case LitInt:
		return IntType
	case LitFloat:
		return FloatType
	case LitBool:
		return BoolType
	case LitString:
		return StringType
	case LitInts:
		return IntListType
	case LitFloats:
		return FloatListType
	case LitTensor:
		return TensorType(l.Tensor.Shape)
	case LitModule:
		return ModuleType(l.Module.Class)
	}
	return NoneType
}

// Clone deep-copies list and tensor payloads. Modules are shared.
func (l Literal) Clone() Literal {
	out := l
	out.Ints = slices.Clone(l.Ints)
	out.Floats = slices.Clone(l.Floats)
	if l.Tensor != nil {
		out.Tensor = l.Tensor.Clone()
	}
	return out
}

// Equal compares payloads exactly; tensors compare by shape and data.
func (l Literal) Equal(o Literal) bool {
	if l.Kind != o.Kind {
		return false
	}
	switch l.Kind {
	case LitInt:
		return l.Int == o.Int
	case LitFloat:
		return l.Float == o.Float
	case LitBool:
		return l.Bool == o.Bool
	case LitString:
		return l.Str == o.Str
	case LitInts:
		return slices.Equal(l.Ints, o.Ints)
	case LitFloats:
		return slices.Equal(l.Floats, o.Floats)
	case LitTensor:
		return l.Tensor.Equal(o.Tensor)
	case LitModule:
		return l.Module == o.Module
	}
	return true
}

// AsFloat returns numeric scalars as float64.
func (l Literal) AsFloat() (float64, bool) {
	switch l.Kind {
	case LitInt:
		return float64(l.Int), true
	case LitFloat:
		return l.Float, true
	case LitBool:
		if l.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// AsInt returns integer scalars.
func (l Literal) AsInt() (int64, bool) {
	switch l.Kind {
	case LitInt:
		return l.Int, true
	case LitBool:
		if l.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// maxPrintedElements bounds how much tensor data String prints in full.
const maxPrintedElements = 16

// String renders the literal in graph text form.
func (l Literal) String() string {
	switch l.Kind {
	case LitInt:
		return strconv.FormatInt(l.Int, 10)
	case LitFloat:
		return formatFloat(l.Float)
	case LitBool:
		return strconv.FormatBool(l.Bool)
	case LitString:
		return strconv.Quote(l.Str)
	case LitInts:
		parts := make([]string, len(l.Ints))
		for i, v := range l.Ints {
			parts[i] = strconv.FormatInt(v, 10)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case LitFloats:
		return "[" + joinFloats(l.Floats) + "]"
	case LitTensor:
		if int64(len(l.Tensor.Data)) > maxPrintedElements {
			return strconv.Quote(fmt.Sprintf("<Tensor%v>", l.Tensor.Shape))
		}
		vals := make([]float64, len(l.Tensor.Data))
		for i, v := range l.Tensor.Data {
			vals[i] = float64(v)
		}
		return "[" + joinFloats(vals) + "]"
	case LitModule:
		return strconv.Quote("<" + l.Module.Class + ">")
	}
	return "None"
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatFloat(v)
	}
	return strings.Join(parts, ", ")
}

// formatFloat always yields a float token, never one that lexes as an int.
func formatFloat(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}
