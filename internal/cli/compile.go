package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/roach88/aotc/internal/aot"
	"github.com/roach88/aotc/internal/config"
	"github.com/roach88/aotc/internal/loader"
	"github.com/roach88/aotc/internal/store"
	"github.com/roach88/aotc/internal/unit"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	ConfigFile string // optional YAML config file
	config.Options
}

// CompileSummary is the JSON payload of a successful compile.
type CompileSummary struct {
	Model       string          `json:"model"`
	Version     string          `json:"version"`
	Target      string          `json:"target"`
	UnitID      string          `json:"unit_id"`
	Methods     []MethodSummary `json:"methods"`
	OutputAsm   string          `json:"output_asm"`
	OutputModel string          `json:"output_model"`
}

// MethodSummary describes one compiled method.
type MethodSummary struct {
	Method      string    `json:"method"`
	KernelID    string    `json:"kernel_id"`
	Symbol      string    `json:"symbol"`
	InputSizes  [][]int64 `json:"input_sizes"`
	OutputSizes [][]int64 `json:"output_sizes"`
	Rounds      int       `json:"optimizer_rounds"`
	CacheHit    bool      `json:"cache_hit"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a model's forward method to a native kernel",
		Long: `Compile a model for fixed input sizes.

The model is frozen, its forward graph optimized for the sizes given with
--input-dims, and the result lowered to a kernel. Two files are written:
the assembly listing and the compiled model container. Nothing is written
if any stage fails.

Examples:
  aotc compile --model resnet.yaml --model-name resnet --model-version 1.0 \
    --input-dims 1,3,224,224
  aotc compile --config aotc.yaml --build-token VERTOKEN --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd.Context(), opts, cmd)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ModelPath, "model", "", "model file (.yaml, .yml or .cue)")
	f.StringVar(&opts.ModelName, "model-name", "", "model name used in kernel ids")
	f.StringVar(&opts.ModelVersion, "model-version", "", "model version used in kernel ids")
	f.StringVar(&opts.Method, "method", "", "method to compile (default forward)")
	f.StringVar(&opts.InputDims, "input-dims", "", `input sizes: "," between dimensions, ";" between inputs`)
	f.StringVar(&opts.OutputAsm, "output-asm", "", "assembly output path (default <model>"+config.AsmSuffix+")")
	f.StringVar(&opts.OutputModel, "output-model", "", "compiled model output path (default <model>"+config.ModelSuffix+")")
	f.StringVar(&opts.Target, "target", "", "target triple (default host)")
	f.IntVar(&opts.MaxRounds, "max-rounds", 0, "optimizer round limit")
	f.StringVar(&opts.BuildToken, "build-token", "", "fixed build token (default derived from the graph)")
	f.StringVar(&opts.CachePath, "cache", "", "kernel cache database")
	f.StringVar(&opts.ConfigFile, "config", "", "YAML config file; flags override it")

	return cmd
}

func runCompile(ctx context.Context, opts *CompileOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	var file *config.File
	if opts.ConfigFile != "" {
		f, err := config.ReadFile(opts.ConfigFile)
		if err != nil {
			return outputCompileError(formatter, ErrCodeConfiguration, err.Error(), nil)
		}
		file = f
	}
	cfg, err := config.Build(opts.Options, file)
	if err != nil {
		return outputCompileError(formatter, ErrCodeConfiguration, err.Error(), nil)
	}

	if _, err := os.Stat(cfg.ModelPath); errors.Is(err, os.ErrNotExist) {
		return outputCompileError(formatter, ErrCodeNotFound, fmt.Sprintf("model file not found: %s", cfg.ModelPath), nil)
	}
	formatter.VerboseLog("Loading model %s", cfg.ModelPath)
	m, err := loader.Load(cfg.ModelPath)
	if err != nil {
		return outputCompileError(formatter, ErrCodeLoadFailed, err.Error(), nil)
	}

	compiler := aot.Compiler{Logger: logrus.NewEntry(newLogger(formatter.GetErrWriter(), opts.RootOptions))}
	if cfg.CachePath != "" {
		cache, err := store.Open(cfg.CachePath)
		if err != nil {
			return outputCompileError(formatter, ErrCodeGeneric, fmt.Sprintf("opening kernel cache: %v", err), nil)
		}
		defer cache.Close()
		compiler.Cache = cache
		formatter.VerboseLog("Using kernel cache %s", cfg.CachePath)
	}

	res, err := compiler.Compile(ctx, m, cfg)
	if err != nil {
		var ce *aot.CompileError
		if errors.As(err, &ce) {
			return outputCompileError(formatter, MapKindToErrorCode(ce.Kind), err.Error(), map[string]string{
				"kind":   string(ce.Kind),
				"stage":  ce.Stage,
				"method": ce.Method,
			})
		}
		return outputCompileError(formatter, ErrCodeGeneric, err.Error(), nil)
	}

	if err := writeOutputs(ctx, cfg, res); err != nil {
		return outputCompileError(formatter, ErrCodeWriteFailed, err.Error(), nil)
	}

	return outputCompileSuccess(formatter, summarize(cfg, res))
}

// writeOutputs writes the assembly listing and the compiled model. If the
// model cannot be written the listing is removed again.
func writeOutputs(ctx context.Context, cfg config.Config, res *aot.Result) error {
	if err := writeFileAtomic(cfg.OutputAsm, []byte(res.Assembly())); err != nil {
		return fmt.Errorf("writing assembly: %w", err)
	}
	if err := store.WriteModule(ctx, cfg.OutputModel, res.Module); err != nil {
		os.Remove(cfg.OutputAsm)
		return fmt.Errorf("writing compiled model: %w", err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place.
func writeFileAtomic(path string, data []byte) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// summarize builds the success payload from the compile result.
func summarize(cfg config.Config, res *aot.Result) CompileSummary {
	s := CompileSummary{
		Model:       res.Module.ModelName,
		Version:     res.Module.ModelVersion,
		Target:      cfg.Target,
		UnitID:      res.Module.UnitID.String(),
		OutputAsm:   cfg.OutputAsm,
		OutputModel: cfg.OutputModel,
	}
	for _, mr := range res.Methods {
		ms := MethodSummary{
			Method:   mr.Name,
			KernelID: mr.KernelID,
			Symbol:   unit.EntrySymbol(mr.KernelID),
			Rounds:   mr.Stats.Rounds,
			CacheHit: mr.CacheHit,
		}
		if d, ok := res.Module.Descriptor(mr.Name); ok {
			ms.InputSizes = d.InputSizes
			ms.OutputSizes = d.OutputSizes
		}
		s.Methods = append(s.Methods, ms)
	}
	return s
}

// outputCompileSuccess outputs a successful compile.
func outputCompileSuccess(formatter *OutputFormatter, s CompileSummary) error {
	if formatter.Format == "json" {
		return formatter.Success(s)
	}

	w := formatter.Writer
	fmt.Fprintln(w, formatter.Pass(fmt.Sprintf("Compiled %s %s for %s", s.Model, s.Version, s.Target)))
	fmt.Fprintln(w)
	for _, m := range s.Methods {
		hit := ""
		if m.CacheHit {
			hit = " (cached)"
		}
		fmt.Fprintf(w, "  %s: %s%s\n", m.Method, m.KernelID, hit)
		fmt.Fprintf(w, "    inputs:  %v\n", m.InputSizes)
		fmt.Fprintf(w, "    outputs: %v\n", m.OutputSizes)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Wrote assembly to %s\n", s.OutputAsm)
	fmt.Fprintf(w, "Wrote compiled model to %s\n", s.OutputModel)
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}
