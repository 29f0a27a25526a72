package unit

import (
	"fmt"

	"github.com/roach88/aotc/internal/ir"
	"github.com/roach88/aotc/internal/kernel"
)

// BuildDescriptor records how the runtime invokes art under kernelID. The
// artifact must have been compiled for EntrySymbol(kernelID).
func BuildDescriptor(kernelID string, art *kernel.Artifact) (ir.InvocationDescriptor, error) {
	if _, _, _, _, err := ParseKernelID(kernelID); err != nil {
		return ir.InvocationDescriptor{}, err
	}
	if art == nil {
		return ir.InvocationDescriptor{}, fmt.Errorf("descriptor %s: no artifact", kernelID)
	}
	if want := EntrySymbol(kernelID); art.Symbol != want {
		return ir.InvocationDescriptor{}, fmt.Errorf("descriptor %s: artifact symbol %q, want %q", kernelID, art.Symbol, want)
	}
	if len(art.Object) == 0 {
		return ir.InvocationDescriptor{}, fmt.Errorf("descriptor %s: empty object", kernelID)
	}

	d := ir.InvocationDescriptor{
		Method:   art.Method,
		KernelID: kernelID,
		Entry: ir.EntryBinding{
			Symbol:       art.Symbol,
			ObjectDigest: art.Digest(),
		},
	}
	for _, a := range art.Convention.Inputs() {
		d.InputSizes = append(d.InputSizes, a.Sizes)
	}
	for _, a := range art.Convention.Outputs() {
		d.OutputSizes = append(d.OutputSizes, a.Sizes)
	}
	if len(d.OutputSizes) == 0 {
		return ir.InvocationDescriptor{}, fmt.Errorf("descriptor %s: kernel has no outputs", kernelID)
	}
	return d.Clone(), nil
}
