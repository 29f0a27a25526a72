package ir

import (
	"fmt"
	"math"
	"slices"
)

// Current version limits of the compile spec. Exceeding them is rejected
// during validation, never truncated.
const (
	MaxMethods         = 1
	MaxInputsPerMethod = 1
	DefaultMethod      = "forward"
)

// MethodSpec declares the static input sizes a method is compiled for, one
// size list per tensor input, in positional order.
type MethodSpec struct {
	Name       string    `json:"name"`
	InputSizes [][]int64 `json:"sizes"`
}

// CompileSpec maps method names to their shape specialization.
type CompileSpec struct {
	Methods []MethodSpec `json:"methods"`
}

// NewCompileSpec builds the single-method spec the pipeline compiles.
func NewCompileSpec(method string, sizes ...[]int64) CompileSpec {
	ms := MethodSpec{Name: method}
	for _, s := range sizes {
		ms.InputSizes = append(ms.InputSizes, slices.Clone(s))
	}
	return CompileSpec{Methods: []MethodSpec{ms}}
}

// Method returns the spec for name.
func (s CompileSpec) Method(name string) (MethodSpec, bool) {
	for _, m := range s.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodSpec{}, false
}

// MethodNames lists the spec's methods in declaration order.
func (s CompileSpec) MethodNames() []string {
	names := make([]string, len(s.Methods))
	for i, m := range s.Methods {
		names[i] = m.Name
	}
	return names
}

// Validate enforces the version limits and basic well-formedness.
func (s CompileSpec) Validate() error {
	if len(s.Methods) == 0 {
		return fmt.Errorf("compile spec: no methods")
	}
	if len(s.Methods) > MaxMethods {
		return fmt.Errorf("compile spec: %d methods requested, at most %d supported", len(s.Methods), MaxMethods)
	}
	seen := make(map[string]bool, len(s.Methods))
	for _, m := range s.Methods {
		if m.Name == "" {
			return fmt.Errorf("compile spec: empty method name")
		}
		if seen[m.Name] {
			return fmt.Errorf("compile spec: duplicate method %q", m.Name)
		}
		seen[m.Name] = true
		if len(m.InputSizes) == 0 {
			return fmt.Errorf("compile spec: method %q declares no input sizes", m.Name)
		}
		if len(m.InputSizes) > MaxInputsPerMethod {
			return fmt.Errorf("compile spec: method %q declares %d inputs, at most %d supported",
				m.Name, len(m.InputSizes), MaxInputsPerMethod)
		}
		for i, sizes := range m.InputSizes {
			if len(sizes) == 0 {
				return fmt.Errorf("compile spec: method %q input %d has no dimensions", m.Name, i)
			}
			count := int64(1)
			for _, d := range sizes {
				if d <= 0 {
					return fmt.Errorf("compile spec: method %q input %d has non-positive extent %d", m.Name, i, d)
				}
				if count > math.MaxInt64/d {
					return fmt.Errorf("compile spec: method %q input %d sizes %v overflow int64 elements", m.Name, i, sizes)
				}
				count *= d
			}
		}
	}
	return nil
}

// Canonical returns the spec as a canonical value. Methods keep their
// declaration order.
func (s CompileSpec) Canonical() Value {
	methods := make(Array, len(s.Methods))
	for i, m := range s.Methods {
		sizes := make(Array, len(m.InputSizes))
		for j, dims := range m.InputSizes {
			sizes[j] = Ints(dims)
		}
		methods[i] = Object{"name": String(m.Name), "sizes": sizes}
	}
	return Object{"methods": methods}
}
