package bundle

import (
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ir"
	"github.com/roach88/aotc/internal/kernel"
	"github.com/roach88/aotc/internal/unit"
)

// BackendName is the key the unit is attached under.
const BackendName = "nnc"

// unitNamespace scopes UUIDv5 unit ids.
var unitNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/roach88/aotc/unit"))

// UnitID derives the deterministic id of a serialized unit.
func UnitID(unitBytes []byte) uuid.UUID {
	return uuid.NewSHA1(unitNamespace, unitBytes)
}

// PackageError reports why a compiled module could not be assembled.
type PackageError struct {
	Method string
	Reason string
	Err    error
}

func (e *PackageError) Error() string {
	msg := "package"
	if e.Method != "" {
		msg += fmt.Sprintf(" method %q", e.Method)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *PackageError) Unwrap() error { return e.Err }

// IsPackageError reports whether err is a *PackageError.
func IsPackageError(err error) bool {
	var pe *PackageError
	return errors.As(err, &pe)
}

// Metadata describes the frozen module the kernels were compiled from.
type Metadata struct {
	Class           string   `json:"class"`
	SourceMethods   []string `json:"source_methods"`
	CompilerVersion string   `json:"compiler_version"`
	IRVersion       string   `json:"ir_version"`
}

// CompiledModule is self-contained: a runtime can load it without the
// source graph or the optimizer.
type CompiledModule struct {
	Backend      string
	ModelName    string
	ModelVersion string
	UnitID       uuid.UUID
	Spec         ir.CompileSpec
	Unit         []byte
	Descriptors  []ir.InvocationDescriptor
	Artifacts    []*kernel.Artifact
	Metadata     Metadata
}

// Methods returns the compiled methods in compile-spec order.
func (cm *CompiledModule) Methods() []string {
	return cm.Spec.MethodNames()
}

// Descriptor returns the descriptor for method.
func (cm *CompiledModule) Descriptor(method string) (ir.InvocationDescriptor, bool) {
	for _, d := range cm.Descriptors {
		if d.Method == method {
			return d.Clone(), true
		}
	}
	return ir.InvocationDescriptor{}, false
}

// Artifact returns the kernel bound to symbol.
func (cm *CompiledModule) Artifact(symbol string) (*kernel.Artifact, bool) {
	for _, a := range cm.Artifacts {
		if a.Symbol == symbol {
			return a, true
		}
	}
	return nil, false
}

// Package checks that unitBytes, artifacts and spec agree with each other
// and with the frozen module, and wraps them into a CompiledModule.
func Package(frozen *graph.Module, spec ir.CompileSpec, unitBytes []byte, artifacts []*kernel.Artifact) (*CompiledModule, error) {
	if frozen == nil || !frozen.Frozen {
		return nil, &PackageError{Reason: "module is not frozen"}
	}
	if err := spec.Validate(); err != nil {
		return nil, &PackageError{Reason: "invalid compile spec", Err: err}
	}
	for _, name := range spec.MethodNames() {
		if _, ok := frozen.Methods[name]; !ok {
			return nil, &PackageError{Method: name, Reason: "not present in the frozen module"}
		}
	}

	u, err := unit.Deserialize(unitBytes)
	if err != nil {
		return nil, &PackageError{Reason: "unreadable compilation unit", Err: err}
	}

	bySymbol := make(map[string]*kernel.Artifact, len(artifacts))
	for _, a := range artifacts {
		bySymbol[a.Symbol] = a
	}

	cm := &CompiledModule{
		Backend: BackendName,
		UnitID:  UnitID(unitBytes),
		Spec:    spec,
		Unit:    slices.Clone(unitBytes),
		Metadata: Metadata{
			Class:           frozen.Class,
			SourceMethods:   frozen.MethodNames(),
			CompilerVersion: ir.CompilerVersion,
			IRVersion:       ir.IRVersion,
		},
	}

	for _, d := range u.Descriptors() {
		ms, ok := spec.Method(d.Method)
		if !ok {
			return nil, &PackageError{Method: d.Method, Reason: "descriptor has no entry in the compile spec"}
		}
		if !sizesEqual(ms.InputSizes, d.InputSizes) {
			return nil, &PackageError{Method: d.Method, Reason: fmt.Sprintf("descriptor input sizes %v differ from compile spec %v", d.InputSizes, ms.InputSizes)}
		}
		art, ok := bySymbol[d.Entry.Symbol]
		if !ok {
			return nil, &PackageError{Method: d.Method, Reason: fmt.Sprintf("no artifact for entry symbol %s", d.Entry.Symbol)}
		}
		if art.Digest() != d.Entry.ObjectDigest {
			return nil, &PackageError{Method: d.Method, Reason: fmt.Sprintf("artifact %s does not match the descriptor's object digest", d.Entry.Symbol)}
		}
		name, version, _, _, err := unit.ParseKernelID(d.KernelID)
		if err != nil {
			return nil, &PackageError{Method: d.Method, Reason: "bad kernel id", Err: err}
		}
		if cm.ModelName == "" {
			cm.ModelName, cm.ModelVersion = name, version
		} else if name != cm.ModelName || version != cm.ModelVersion {
			return nil, &PackageError{Method: d.Method, Reason: fmt.Sprintf("kernel id %s belongs to another model", d.KernelID)}
		}
		cm.Descriptors = append(cm.Descriptors, d)
		cm.Artifacts = append(cm.Artifacts, art)
	}

	for _, name := range spec.MethodNames() {
		if _, ok := u.Lookup(name); !ok {
			return nil, &PackageError{Method: name, Reason: "no descriptor in the compilation unit"}
		}
	}
	return cm, nil
}

func sizesEqual(a, b [][]int64) bool {
	return slices.EqualFunc(a, b, func(x, y []int64) bool { return slices.Equal(x, y) })
}
