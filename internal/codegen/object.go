package codegen

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/kernel"
)

// Object layout. Every section starts on a 64-byte boundary.
//
//	[0, 64)            fixed header
//	[64, 64+meta)      metadata record (buffer table, symbol, target)
//	[instrOff, ...)    instruction stream
//	[constOff, ...)    constant pool, little-endian f32
const (
	objectMagic   = "AOTCOBJ\x00"
	objectVersion = 1
	headerSize    = 64
	sectionAlign  = 64
)

func align(n int) int {
	return (n + sectionAlign - 1) &^ (sectionAlign - 1)
}

// EncodeObject serializes obj into the binary object format.
func EncodeObject(obj *Object) ([]byte, error) {
	meta := encodeMeta(obj)
	var stream []byte
	for i, in := range obj.Instrs {
		rec, err := encodeInstr(in)
		if err != nil {
			return nil, errors.Wrapf(err, "encode instruction %d", i)
		}
		stream = appendMessage(stream, 1, rec)
	}

	instrOff := align(headerSize + len(meta))
	constOff := align(instrOff + len(stream))
	out := make([]byte, constOff+4*len(obj.Constants))

	le := binary.LittleEndian
	copy(out, objectMagic)
	le.PutUint32(out[8:], objectVersion)
	le.PutUint32(out[12:], uint32(len(meta)))
	le.PutUint64(out[16:], uint64(instrOff))
	le.PutUint64(out[24:], uint64(len(stream)))
	le.PutUint64(out[32:], uint64(constOff))
	le.PutUint64(out[40:], uint64(len(obj.Constants)))
	copy(out[headerSize:], meta)
	copy(out[instrOff:], stream)
	for i, f := range obj.Constants {
		le.PutUint32(out[constOff+4*i:], math.Float32bits(f))
	}
	return out, nil
}

// DecodeObject parses bytes produced by EncodeObject.
func DecodeObject(data []byte) (*Object, error) {
	if len(data) < headerSize || string(data[:8]) != objectMagic {
		return nil, errors.New("not an nnc object: bad magic")
	}
	le := binary.LittleEndian
	if v := le.Uint32(data[8:]); v != objectVersion {
		return nil, errors.Errorf("unsupported object version %d", v)
	}
	metaLen := uint64(le.Uint32(data[12:]))
	instrOff, instrLen := le.Uint64(data[16:]), le.Uint64(data[24:])
	constOff, constCount := le.Uint64(data[32:]), le.Uint64(data[40:])
	size := uint64(len(data))
	switch {
	case headerSize+metaLen > size:
		return nil, errors.New("metadata runs past end of object")
	case instrOff%sectionAlign != 0 || constOff%sectionAlign != 0:
		return nil, errors.New("section is not 64-byte aligned")
	case instrOff < headerSize+metaLen || instrOff+instrLen > size:
		return nil, errors.New("instruction section out of bounds")
	case constOff > size || constOff < instrOff+instrLen || constCount > (size-constOff)/4:
		return nil, errors.New("constant pool out of bounds")
	}

	obj := &Object{}
	if err := decodeMeta(obj, data[headerSize:headerSize+metaLen]); err != nil {
		return nil, errors.Wrap(err, "metadata")
	}
	err := forEachField(data[instrOff:instrOff+instrLen], func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		rec, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		in, err := decodeInstr(rec)
		if err != nil {
			return 0, errors.Wrapf(err, "instruction %d", len(obj.Instrs))
		}
		obj.Instrs = append(obj.Instrs, in)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	if constCount > 0 {
		obj.Constants = make([]float32, constCount)
		for i := range obj.Constants {
			obj.Constants[i] = math.Float32frombits(le.Uint32(data[constOff+4*uint64(i):]))
		}
	}
	return obj, nil
}

func encodeMeta(obj *Object) []byte {
	var b []byte
	b = appendString(b, 1, obj.Backend)
	b = appendString(b, 2, obj.Target)
	b = appendString(b, 3, obj.Method)
	b = appendString(b, 4, obj.Symbol)
	b = appendVarint(b, 5, uint64(obj.VectorWidth))
	for _, buf := range obj.Buffers {
		var rec []byte
		rec = appendVarint(rec, 1, uint64(buf.ID))
		rec = appendVarint(rec, 2, uint64(buf.Kind))
		rec = appendString(rec, 3, buf.Name)
		rec = appendZigZag(rec, 4, int64(buf.Arg))
		rec = appendVarint(rec, 5, uint64(buf.Offset))
		rec = appendPackedInts(rec, 6, buf.Shape)
		b = appendMessage(b, 6, rec)
	}
	return b
}

func decodeMeta(obj *Object, data []byte) error {
	return forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1, 2, 3, 4:
			s, n := protowire.ConsumeString(b)
			switch num {
			case 1:
				obj.Backend = s
			case 2:
				obj.Target = s
			case 3:
				obj.Method = s
			case 4:
				obj.Symbol = s
			}
			return n, nil
		case 5:
			v, n := protowire.ConsumeVarint(b)
			obj.VectorWidth = int(v)
			return n, nil
		case 6:
			rec, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			buf, err := decodeBuffer(rec)
			if err != nil {
				return 0, err
			}
			obj.Buffers = append(obj.Buffers, buf)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

func decodeBuffer(data []byte) (BufferRecord, error) {
	var buf BufferRecord
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1, 2, 5:
			v, n := protowire.ConsumeVarint(b)
			switch num {
			case 1:
				buf.ID = int(v)
			case 2:
				buf.Kind = kernel.BufferKind(v)
			case 5:
				buf.Offset = int64(v)
			}
			return n, nil
		case 3:
			s, n := protowire.ConsumeString(b)
			buf.Name = s
			return n, nil
		case 4:
			v, n := protowire.ConsumeVarint(b)
			buf.Arg = int(protowire.DecodeZigZag(v))
			return n, nil
		case 6:
			vals, n, err := consumePackedInts(b)
			buf.Shape = vals
			return n, err
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return buf, err
}

func encodeInstr(in Instr) ([]byte, error) {
	var b []byte
	b = appendVarint(b, 1, uint64(in.Op))
	b = appendString(b, 2, in.Kind)
	b = appendString(b, 3, in.Name)
	b = appendZigZag(b, 4, int64(in.Position))
	out, err := encodeArg(in.Out)
	if err != nil {
		return nil, err
	}
	b = appendMessage(b, 5, out)
	for _, a := range in.Args {
		rec, err := encodeArg(a)
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 6, rec)
	}
	return b, nil
}

func decodeInstr(data []byte) (Instr, error) {
	var in Instr
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			v, n := protowire.ConsumeVarint(b)
			in.Op = Opcode(v)
			return n, nil
		case 2, 3:
			s, n := protowire.ConsumeString(b)
			if num == 2 {
				in.Kind = s
			} else {
				in.Name = s
			}
			return n, nil
		case 4:
			v, n := protowire.ConsumeVarint(b)
			in.Position = int(protowire.DecodeZigZag(v))
			return n, nil
		case 5, 6:
			rec, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			a, err := decodeArg(rec)
			if err != nil {
				return 0, err
			}
			if num == 5 {
				in.Out = a
			} else {
				in.Args = append(in.Args, a)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err == nil && in.Op == OpInvalid {
		err = errors.New("missing opcode")
	}
	return in, err
}

func encodeArg(a Arg) ([]byte, error) {
	var b []byte
	b = appendZigZag(b, 1, int64(a.Buffer))
	if a.IsBuffer() {
		return appendPackedInts(b, 2, a.Shape), nil
	}
	l := a.Lit
	b = appendVarint(b, 3, uint64(l.Kind))
	switch l.Kind {
	case graph.LitNone:
	case graph.LitInt:
		b = appendZigZag(b, 4, l.Int)
	case graph.LitFloat:
		b = protowire.AppendTag(b, 5, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(l.Float))
	case graph.LitBool:
		b = appendVarint(b, 6, protowire.EncodeBool(l.Bool))
	case graph.LitInts:
		b = appendPackedInts(b, 7, l.Ints)
	case graph.LitFloats:
		var packed []byte
		for _, f := range l.Floats {
			packed = protowire.AppendFixed64(packed, math.Float64bits(f))
		}
		b = appendMessage(b, 8, packed)
	case graph.LitString:
		b = appendString(b, 9, l.Str)
	default:
		return nil, errors.Errorf("literal kind %d has no immediate encoding", l.Kind)
	}
	return b, nil
}

func decodeArg(data []byte) (Arg, error) {
	var a Arg
	err := forEachField(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1, 4:
			v, n := protowire.ConsumeVarint(b)
			if num == 1 {
				a.Buffer = int(protowire.DecodeZigZag(v))
			} else {
				a.Lit.Int = protowire.DecodeZigZag(v)
			}
			return n, nil
		case 2, 7:
			vals, n, err := consumePackedInts(b)
			if num == 2 {
				a.Shape = vals
			} else {
				a.Lit.Ints = vals
			}
			return n, err
		case 3:
			v, n := protowire.ConsumeVarint(b)
			a.Lit.Kind = graph.LiteralKind(v)
			return n, nil
		case 5:
			v, n := protowire.ConsumeFixed64(b)
			a.Lit.Float = math.Float64frombits(v)
			return n, nil
		case 6:
			v, n := protowire.ConsumeVarint(b)
			a.Lit.Bool = protowire.DecodeBool(v)
			return n, nil
		case 8:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			a.Lit.Floats = []float64{}
			for len(packed) > 0 {
				v, m := protowire.ConsumeFixed64(packed)
				if m < 0 {
					return m, nil
				}
				a.Lit.Floats = append(a.Lit.Floats, math.Float64frombits(v))
				packed = packed[m:]
			}
			return n, nil
		case 9:
			s, n := protowire.ConsumeString(b)
			a.Lit.Str = s
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return a, err
}

// forEachField walks the top-level fields of a protowire record. visit
// consumes the field value and returns its length, or a negative
// protowire error code.
func forEachField(data []byte, visit func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]
		m, err := visit(num, typ, data)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		data = data[m:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendZigZag(b []byte, num protowire.Number, v int64) []byte {
	return appendVarint(b, num, protowire.EncodeZigZag(v))
}

func appendPackedInts(b []byte, num protowire.Number, vals []int64) []byte {
	var packed []byte
	for _, v := range vals {
		packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(v))
	}
	return appendMessage(b, num, packed)
}

func consumePackedInts(b []byte) ([]int64, int, error) {
	packed, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, n, nil
	}
	vals := []int64{}
	for len(packed) > 0 {
		v, m := protowire.ConsumeVarint(packed)
		if m < 0 {
			return nil, 0, protowire.ParseError(m)
		}
		vals = append(vals, protowire.DecodeZigZag(v))
		packed = packed[m:]
	}
	return vals, n, nil
}
