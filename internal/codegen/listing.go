package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ir"
	"github.com/roach88/aotc/internal/kernel"
	"github.com/roach88/aotc/internal/tensor"
)

// Listing renders obj as assembly text. The output depends only on the
// object contents, so identical objects give identical listings.
func Listing(obj *Object) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; aotc %s %s kernel listing\n", ir.CompilerVersion, obj.Backend)
	fmt.Fprintf(&sb, "; method %s\n", obj.Method)
	fmt.Fprintf(&sb, ".target %s\n", obj.Target)
	fmt.Fprintf(&sb, ".vector f32x%d\n", obj.VectorWidth)
	fmt.Fprintf(&sb, ".globl %s\n", obj.Symbol)
	for _, fn := range obj.Runtime() {
		fmt.Fprintf(&sb, ".extern %s\n", fn)
	}
	fmt.Fprintf(&sb, ".const_pool %d floats\n", len(obj.Constants))

	scratch := scratchLayout(obj)
	fmt.Fprintf(&sb, ".scratch %d bytes\n", scratch.size)
	sb.WriteString("\n")

	fmt.Fprintf(&sb, "%s:\n", obj.Symbol)
	regs := make(map[int]string, len(obj.Buffers))
	for _, b := range obj.Buffers {
		regs[b.ID] = register(b)
	}
	for _, b := range obj.Buffers {
		where := ""
		switch b.Kind {
		case kernel.BufferConstant:
			where = fmt.Sprintf(" @pool+%d", b.Offset)
		case kernel.BufferTemp:
			where = fmt.Sprintf(" @scratch+%d", scratch.offsets[b.ID])
		}
		fmt.Fprintf(&sb, "  ; %s %s %s f32%s%s\n", regs[b.ID], b.Kind, b.Name, tensor.Shape(b.Shape), where)
	}

	for _, in := range obj.Instrs {
		if in.Position >= 0 {
			fmt.Fprintf(&sb, "  ; node %d: %s\n", in.Position, in.Kind)
		} else {
			sb.WriteString("  ; output copy\n")
		}
		fmt.Fprintf(&sb, "  %s\n", instruction(obj, in, regs))
	}
	sb.WriteString("  ret\n")
	return sb.String()
}

func register(b BufferRecord) string {
	switch b.Kind {
	case kernel.BufferInput, kernel.BufferOutput:
		return fmt.Sprintf("%%a%d", b.Arg)
	case kernel.BufferConstant:
		return fmt.Sprintf("%%c%d", b.ID)
	}
	return fmt.Sprintf("%%t%d", b.ID)
}

type scratch struct {
	size    int64
	offsets map[int]int64
}

// scratchLayout places temporaries back to back, each 64-byte aligned.
func scratchLayout(obj *Object) scratch {
	s := scratch{offsets: make(map[int]int64)}
	for _, b := range obj.Buffers {
		if b.Kind != kernel.BufferTemp {
			continue
		}
		s.offsets[b.ID] = s.size
		s.size += (b.Len()*4 + sectionAlign - 1) &^ (sectionAlign - 1)
	}
	return s
}

func instruction(obj *Object, in Instr, regs map[int]string) string {
	operands := []string{operand(obj, in.Out, regs)}
	for _, a := range in.Args {
		operands = append(operands, operand(obj, a, regs))
	}
	switch in.Op {
	case OpCall:
		return fmt.Sprintf("call %s %s", in.Name, strings.Join(operands, ", "))
	case OpTranspose:
		return fmt.Sprintf("%s.f32 %s", in.Name, strings.Join(operands, ", "))
	}
	mnemonic := fmt.Sprintf("%s.f32x%d", in.Name, obj.VectorWidth)
	if in.Op == OpBinary && broadcasts(in) {
		mnemonic += ".bcast"
	}
	return mnemonic + " " + strings.Join(operands, ", ")
}

func broadcasts(in Instr) bool {
	for _, a := range in.Args {
		if a.IsBuffer() && !tensor.Shape(a.Shape).Equal(in.Out.Shape) {
			return true
		}
	}
	return false
}

func operand(obj *Object, a Arg, regs map[int]string) string {
	if !a.IsBuffer() {
		return immediate(a.Lit)
	}
	reg := regs[a.Buffer]
	if a.Buffer < len(obj.Buffers) && !tensor.Shape(obj.Buffers[a.Buffer].Shape).Equal(a.Shape) {
		reg += tensor.Shape(a.Shape).String()
	}
	return reg
}

func immediate(l graph.Literal) string {
	switch l.Kind {
	case graph.LitNone:
		return "none"
	case graph.LitInt:
		return "#" + strconv.FormatInt(l.Int, 10)
	case graph.LitFloat:
		return "#" + strconv.FormatFloat(l.Float, 'g', -1, 64)
	case graph.LitBool:
		return "#" + strconv.FormatBool(l.Bool)
	case graph.LitString:
		return strconv.Quote(l.Str)
	case graph.LitInts:
		parts := make([]string, len(l.Ints))
		for i, v := range l.Ints {
			parts[i] = strconv.FormatInt(v, 10)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case graph.LitFloats:
		parts := make([]string, len(l.Floats))
		for i, v := range l.Floats {
			parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "?"
}
