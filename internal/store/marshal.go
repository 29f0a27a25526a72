package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/aotc/internal/bundle"
	"github.com/roach88/aotc/internal/ir"
)

// marshalConvention converts a calling convention to canonical JSON TEXT.
func marshalConvention(cc ir.CallingConvention) (string, error) {
	data, err := ir.MarshalCanonical(cc.Canonical())
	if err != nil {
		return "", fmt.Errorf("marshal convention: %w", err)
	}
	return string(data), nil
}

func unmarshalConvention(data string) (ir.CallingConvention, error) {
	var cc ir.CallingConvention
	if err := json.Unmarshal([]byte(data), &cc); err != nil {
		return ir.CallingConvention{}, fmt.Errorf("unmarshal convention: %w", err)
	}
	return cc, nil
}

// marshalSpec converts a compile spec to canonical JSON TEXT.
func marshalSpec(spec ir.CompileSpec) (string, error) {
	data, err := ir.MarshalCanonical(spec.Canonical())
	if err != nil {
		return "", fmt.Errorf("marshal spec: %w", err)
	}
	return string(data), nil
}

func unmarshalSpec(data string) (ir.CompileSpec, error) {
	var spec ir.CompileSpec
	if err := json.Unmarshal([]byte(data), &spec); err != nil {
		return ir.CompileSpec{}, fmt.Errorf("unmarshal spec: %w", err)
	}
	return spec, nil
}

// marshalMetadata converts module metadata to canonical JSON TEXT.
func marshalMetadata(md bundle.Metadata) (string, error) {
	data, err := ir.MarshalCanonical(ir.Object{
		"class":            ir.String(md.Class),
		"source_methods":   ir.Strings(md.SourceMethods),
		"compiler_version": ir.String(md.CompilerVersion),
		"ir_version":       ir.String(md.IRVersion),
	})
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(data string) (bundle.Metadata, error) {
	var md bundle.Metadata
	if err := json.Unmarshal([]byte(data), &md); err != nil {
		return bundle.Metadata{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return md, nil
}
