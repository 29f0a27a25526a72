package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/spf13/cobra"

	"github.com/roach88/aotc/internal/bundle"
	"github.com/roach88/aotc/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	ShowAsm bool
}

// KernelSummary describes one packaged kernel.
type KernelSummary struct {
	Method       string    `json:"method"`
	KernelID     string    `json:"kernel_id"`
	Symbol       string    `json:"symbol"`
	Target       string    `json:"target"`
	InputSizes   [][]int64 `json:"input_sizes"`
	OutputSizes  [][]int64 `json:"output_sizes"`
	ObjectDigest string    `json:"object_digest"`
	ObjectBytes  int       `json:"object_bytes"`
	Assembly     string    `json:"assembly,omitempty"`
}

// InspectSummary describes a compiled model file.
type InspectSummary struct {
	Backend         string          `json:"backend"`
	Model           string          `json:"model"`
	Version         string          `json:"version"`
	UnitID          string          `json:"unit_id"`
	Class           string          `json:"class"`
	CompilerVersion string          `json:"compiler_version"`
	Kernels         []KernelSummary `json:"kernels"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <compiled-model>",
		Short: "Describe a compiled model",
		Long: `Read a compiled model file, verify it and print its descriptors.

Every kernel object is checked against the digest its descriptor records.

Examples:
  aotc inspect resnet.aotm
  aotc inspect resnet.aotm --asm
  aotc inspect resnet.aotm --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd.Context(), opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.ShowAsm, "asm", false, "include kernel listings")

	return cmd
}

func runInspect(ctx context.Context, opts *InspectOptions, path string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	formatter.VerboseLog("Reading compiled model: %s", path)
	cm, err := store.ReadModule(ctx, path)
	if err != nil {
		code := ErrCodeReadFailed
		if errors.Is(err, fs.ErrNotExist) {
			code = ErrCodeNotFound
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, code, err)
	}

	summary := summarizeModule(cm, opts.ShowAsm)
	if opts.Format == "json" {
		return formatter.Success(summary)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%s %s (%s)\n", summary.Model, summary.Version, summary.Backend)
	fmt.Fprintf(w, "  unit:     %s\n", summary.UnitID)
	fmt.Fprintf(w, "  class:    %s\n", summary.Class)
	fmt.Fprintf(w, "  compiler: %s\n", summary.CompilerVersion)
	for _, k := range summary.Kernels {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s\n", k.Method)
		fmt.Fprintf(w, "  kernel:  %s\n", k.KernelID)
		fmt.Fprintf(w, "  symbol:  %s\n", k.Symbol)
		fmt.Fprintf(w, "  target:  %s\n", k.Target)
		fmt.Fprintf(w, "  inputs:  %v\n", k.InputSizes)
		fmt.Fprintf(w, "  outputs: %v\n", k.OutputSizes)
		fmt.Fprintf(w, "  object:  %d bytes, digest %s\n", k.ObjectBytes, k.ObjectDigest)
		if k.Assembly != "" {
			fmt.Fprintln(w)
			fmt.Fprint(w, k.Assembly)
		}
	}
	return nil
}

func summarizeModule(cm *bundle.CompiledModule, withAsm bool) InspectSummary {
	s := InspectSummary{
		Backend:         cm.Backend,
		Model:           cm.ModelName,
		Version:         cm.ModelVersion,
		UnitID:          cm.UnitID.String(),
		Class:           cm.Metadata.Class,
		CompilerVersion: cm.Metadata.CompilerVersion,
		Kernels:         []KernelSummary{},
	}
	for _, method := range cm.Methods() {
		d, ok := cm.Descriptor(method)
		if !ok {
			continue
		}
		k := KernelSummary{
			Method:       method,
			KernelID:     d.KernelID,
			Symbol:       d.Entry.Symbol,
			InputSizes:   d.InputSizes,
			OutputSizes:  d.OutputSizes,
			ObjectDigest: d.Entry.ObjectDigest,
		}
		if art, ok := cm.Artifact(d.Entry.Symbol); ok {
			k.Target = art.Target
			k.ObjectBytes = len(art.Object)
			if withAsm {
				k.Assembly = art.Assembly
			}
		}
		s.Kernels = append(s.Kernels, k)
	}
	return s
}
