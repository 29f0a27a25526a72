package unit

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/aotc/internal/ir"
)

// SerializationError reports a unit that could not be encoded or decoded.
type SerializationError struct {
	Op  string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("unit %s: %v", e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// IsSerializationError reports whether err is a *SerializationError.
func IsSerializationError(err error) bool {
	var se *SerializationError
	return errors.As(err, &se)
}

// CompilationUnit is an ordered set of invocation descriptors, one per
// compiled method.
type CompilationUnit struct {
	functions []ir.InvocationDescriptor
	byMethod  map[string]int
}

// NewCompilationUnit returns an empty unit.
func NewCompilationUnit() *CompilationUnit {
	return &CompilationUnit{byMethod: make(map[string]int)}
}

// Register appends a descriptor. The unit keeps its own copy.
func (u *CompilationUnit) Register(d ir.InvocationDescriptor) error {
	if d.KernelID == "" {
		return fmt.Errorf("register: empty kernel id")
	}
	if d.Method == "" {
		return fmt.Errorf("register %s: empty method name", d.KernelID)
	}
	if _, dup := u.byMethod[d.Method]; dup {
		return fmt.Errorf("register %s: method %q already registered", d.KernelID, d.Method)
	}
	u.byMethod[d.Method] = len(u.functions)
	u.functions = append(u.functions, d.Clone())
	return nil
}

// Len returns the number of descriptors.
func (u *CompilationUnit) Len() int { return len(u.functions) }

// Descriptors returns copies of the descriptors in registration order.
func (u *CompilationUnit) Descriptors() []ir.InvocationDescriptor {
	out := make([]ir.InvocationDescriptor, len(u.functions))
	for i, d := range u.functions {
		out[i] = d.Clone()
	}
	return out
}

// Lookup returns the descriptor registered for method.
func (u *CompilationUnit) Lookup(method string) (ir.InvocationDescriptor, bool) {
	i, ok := u.byMethod[method]
	if !ok {
		return ir.InvocationDescriptor{}, false
	}
	return u.functions[i].Clone(), true
}

// Canonical returns the unit as a canonical value.
func (u *CompilationUnit) Canonical() ir.Value {
	fns := make(ir.Array, len(u.functions))
	for i, d := range u.functions {
		fns[i] = d.Canonical()
	}
	return ir.Object{
		"format":    ir.String(ir.UnitFormat),
		"version":   ir.String(ir.IRVersion),
		"functions": fns,
	}
}

// Serialize encodes the unit as canonical JSON.
func (u *CompilationUnit) Serialize() ([]byte, error) {
	if len(u.functions) == 0 {
		return nil, &SerializationError{Op: "serialize", Err: errors.New("no functions registered")}
	}
	data, err := ir.MarshalCanonical(u.Canonical())
	if err != nil {
		return nil, &SerializationError{Op: "serialize", Err: err}
	}
	return data, nil
}

type wireUnit struct {
	Format    string                    `json:"format"`
	Version   string                    `json:"version"`
	Functions []ir.InvocationDescriptor `json:"functions"`
}

// Deserialize decodes a unit written by Serialize.
func Deserialize(data []byte) (*CompilationUnit, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var w wireUnit
	if err := dec.Decode(&w); err != nil {
		return nil, &SerializationError{Op: "deserialize", Err: err}
	}
	if dec.More() {
		return nil, &SerializationError{Op: "deserialize", Err: errors.New("trailing data after unit")}
	}
	if w.Format != ir.UnitFormat {
		return nil, &SerializationError{Op: "deserialize", Err: fmt.Errorf("format %q, want %q", w.Format, ir.UnitFormat)}
	}
	if w.Version != ir.IRVersion {
		return nil, &SerializationError{Op: "deserialize", Err: fmt.Errorf("unsupported version %q", w.Version)}
	}
	u := NewCompilationUnit()
	for _, d := range w.Functions {
		if err := u.Register(d); err != nil {
			return nil, &SerializationError{Op: "deserialize", Err: err}
		}
	}
	return u, nil
}
