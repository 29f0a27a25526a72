package kernel

import "github.com/roach88/aotc/internal/ir"

// Backend lowers a kernel plan to native code for one target.
type Backend interface {
	// Name identifies the backend in compiled-model containers.
	Name() string
	// Target is the target triple code is generated for.
	Target() string
	// Supports reports whether the backend can lower an operator kind.
	Supports(kind string) bool
	// Lower produces the artifact for plan.
	Lower(plan *Plan) (*Artifact, error)
}

// Artifact is the native code produced for one method.
type Artifact struct {
	Method     string
	Symbol     string
	Backend    string
	Target     string
	Object     []byte
	Assembly   string
	Convention ir.CallingConvention
}

// Digest fingerprints the object bytes.
func (a *Artifact) Digest() string {
	return ir.ObjectDigest(a.Object)
}
