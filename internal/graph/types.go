package graph

import (
	"strconv"
	"strings"

	"github.com/roach88/aotc/internal/tensor"
)

// TypeKind classifies the values flowing through a graph.
type TypeKind int

const (
	KindTensor TypeKind = iota
	KindInt
	KindFloat
	KindBool
	KindString
	KindNone
	KindIntList
	KindFloatList
	KindModule
)

var kindNames = map[TypeKind]string{
	KindTensor:    "Tensor",
	KindInt:       "int",
	KindFloat:     "float",
	KindBool:      "bool",
	KindString:    "str",
	KindNone:      "None",
	KindIntList:   "int[]",
	KindFloatList: "float[]",
	KindModule:    "Module",
}

func (k TypeKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "TypeKind(" + strconv.Itoa(int(k)) + ")"
}

// Type is the static type of a value. Shape is only meaningful for
// tensors; Class only for modules.
type Type struct {
	Kind  TypeKind
	Shape tensor.Shape
	Class string
}

var (
	IntType       = Type{Kind: KindInt}
	FloatType     = Type{Kind: KindFloat}
	BoolType      = Type{Kind: KindBool}
	StringType    = Type{Kind: KindString}
	NoneType      = Type{Kind: KindNone}
	IntListType   = Type{Kind: KindIntList}
	FloatListType = Type{Kind: KindFloatList}
)

// TensorType returns a tensor type; a nil shape means unknown.
func TensorType(shape tensor.Shape) Type {
	return Type{Kind: KindTensor, Shape: shape.Clone()}
}

// ModuleType returns the type of a module receiver.
func ModuleType(class string) Type {
	return Type{Kind: KindModule, Class: class}
}

func (t Type) IsTensor() bool { return t.Kind == KindTensor }

// Equal compares kind, shape and class.
func (t Type) Equal(o Type) bool {
	return t.Kind == o.Kind && t.Shape.Equal(o.Shape) && t.Class == o.Class
}

// String renders the type in graph text form, e.g. "Tensor(1, 3)".
func (t Type) String() string {
	switch t.Kind {
	case KindTensor:
		if t.Shape == nil {
			return "Tensor"
		}
		dims := make([]string, len(t.Shape))
		for i, d := range t.Shape {
			dims[i] = strconv.FormatInt(d, 10)
		}
		return "Tensor(" + strings.Join(dims, ", ") + ")"
	case KindModule:
		if t.Class != "" {
			return t.Class
		}
	}
	return t.Kind.String()
}
