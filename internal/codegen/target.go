package codegen

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// DefaultTriple is used when no target is requested.
const DefaultTriple = "x86_64-unknown-linux-gnu"

// Target describes one code generation target.
type Target struct {
	Triple string
	Arch   string
	// VectorWidth is the number of f32 lanes per vector instruction.
	VectorWidth int
	// SymbolPrefix is prepended to exported symbols by the platform ABI.
	SymbolPrefix string
}

var targets = map[string]Target{
	"x86_64-unknown-linux-gnu": {Triple: "x86_64-unknown-linux-gnu", Arch: "x86_64", VectorWidth: 8},
	"aarch64-linux-android":    {Triple: "aarch64-linux-android", Arch: "aarch64", VectorWidth: 4},
	"arm64-apple-ios":          {Triple: "arm64-apple-ios", Arch: "arm64", VectorWidth: 4, SymbolPrefix: "_"},
}

// TargetError reports a target triple the backend cannot generate code for.
type TargetError struct {
	Triple string
}

func (e *TargetError) Error() string {
	return fmt.Sprintf("unknown target %q (supported: %s)", e.Triple, strings.Join(Triples(), ", "))
}

// LookupTarget resolves a triple. The empty string selects DefaultTriple.
func LookupTarget(triple string) (Target, error) {
	if triple == "" {
		triple = DefaultTriple
	}
	t, ok := targets[triple]
	if !ok {
		return Target{}, &TargetError{Triple: triple}
	}
	return t, nil
}

// Triples lists the supported target triples in sorted order.
func Triples() []string {
	return slices.Sorted(maps.Keys(targets))
}
