package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/aotc/internal/codegen"
	"github.com/roach88/aotc/internal/ir"
	"github.com/roach88/aotc/internal/passes"
	"github.com/roach88/aotc/internal/tensor"
)

// Output file suffixes used when no path is given.
const (
	AsmSuffix   = ".compiled.ll"
	ModelSuffix = ".compiled.aotm"
)

var (
	namePattern  = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	tokenPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// ConfigError reports an invalid or missing setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsConfigError reports whether err is a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// Config is the resolved configuration of one run.
type Config struct {
	ModelPath    string
	ModelName    string
	ModelVersion string
	Method       string
	InputDims    [][]int64
	Target       string
	MaxRounds    int
	BuildToken   string // empty derives the token from the graph
	OutputAsm    string
	OutputModel  string
	CachePath    string // empty disables the kernel cache
}

// Options are raw settings as given on the command line. Zero values mean
// "not set".
type Options struct {
	ModelPath    string
	ModelName    string
	ModelVersion string
	Method       string
	InputDims    string
	Target       string
	MaxRounds    int
	BuildToken   string
	OutputAsm    string
	OutputModel  string
	CachePath    string
}

// Build merges opts over file (which may be nil), applies defaults and
// validates the result.
func Build(opts Options, file *File) (Config, error) {
	if file != nil {
		opts = file.under(opts)
	}

	cfg := Config{
		ModelPath:    opts.ModelPath,
		ModelName:    opts.ModelName,
		ModelVersion: opts.ModelVersion,
		Method:       or(opts.Method, ir.DefaultMethod),
		Target:       or(opts.Target, codegen.DefaultTriple),
		MaxRounds:    opts.MaxRounds,
		BuildToken:   opts.BuildToken,
		OutputAsm:    opts.OutputAsm,
		OutputModel:  opts.OutputModel,
		CachePath:    opts.CachePath,
	}
	if cfg.MaxRounds == 0 {
		cfg.MaxRounds = passes.DefaultMaxRounds
	}

	if cfg.ModelPath == "" {
		return Config{}, &ConfigError{Field: "model", Message: "a model file is required"}
	}
	dims, err := ParseInputDims(opts.InputDims)
	if err != nil {
		return Config{}, err
	}
	cfg.InputDims = dims

	asm, model := DefaultOutputs(cfg.ModelPath)
	cfg.OutputAsm = or(cfg.OutputAsm, asm)
	cfg.OutputModel = or(cfg.OutputModel, model)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field of a resolved Config.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return &ConfigError{Field: "model", Message: "a model file is required"}
	}
	if err := checkName("model-name", c.ModelName); err != nil {
		return err
	}
	if err := checkName("model-version", c.ModelVersion); err != nil {
		return err
	}
	if c.Method == "" {
		return &ConfigError{Field: "method", Message: "must not be empty"}
	}
	if len(c.InputDims) == 0 {
		return &ConfigError{Field: "input-dims", Message: "input dims must be specified"}
	}
	for i, dims := range c.InputDims {
		if err := tensor.Shape(dims).Validate(); err != nil {
			return &ConfigError{Field: "input-dims", Message: fmt.Sprintf("input %d: %v", i, err)}
		}
	}
	if _, err := codegen.LookupTarget(c.Target); err != nil {
		return &ConfigError{Field: "target", Message: err.Error()}
	}
	if c.MaxRounds < 1 {
		return &ConfigError{Field: "max-rounds", Message: fmt.Sprintf("must be at least 1, got %d", c.MaxRounds)}
	}
	if c.BuildToken != "" && !tokenPattern.MatchString(c.BuildToken) {
		return &ConfigError{Field: "build-token", Message: fmt.Sprintf("%q must match %s", c.BuildToken, tokenPattern)}
	}
	if c.OutputAsm == c.OutputModel {
		return &ConfigError{Field: "output-model", Message: "assembly and model outputs must differ"}
	}
	return nil
}

func checkName(field, v string) error {
	if v == "" {
		return &ConfigError{Field: field, Message: "is required"}
	}
	if !namePattern.MatchString(v) {
		return &ConfigError{Field: field, Message: fmt.Sprintf("%q must match %s", v, namePattern)}
	}
	return nil
}

// CompileSpec returns the compile spec for the configured method.
func (c Config) CompileSpec() ir.CompileSpec {
	return ir.NewCompileSpec(c.Method, c.InputDims...)
}

// Dims returns a copy of the input dims.
func (c Config) Dims() [][]int64 {
	out := make([][]int64, len(c.InputDims))
	for i, d := range c.InputDims {
		out[i] = slices.Clone(d)
	}
	return out
}

// ParseInputDims parses "1,3,224,224;1,10": ';' separates inputs and ','
// separates dimensions. Empty pieces are skipped.
func ParseInputDims(s string) ([][]int64, error) {
	var inputs [][]int64
	for _, item := range strings.Split(s, ";") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		var dims []int64
		for _, piece := range strings.Split(item, ",") {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			d, err := strconv.ParseInt(piece, 10, 64)
			if err != nil {
				return nil, &ConfigError{Field: "input-dims", Message: fmt.Sprintf("%q is not an integer", piece)}
			}
			if d <= 0 {
				return nil, &ConfigError{Field: "input-dims", Message: fmt.Sprintf("dimension %d must be positive", d)}
			}
			dims = append(dims, d)
		}
		inputs = append(inputs, dims)
	}
	if len(inputs) == 0 {
		return nil, &ConfigError{Field: "input-dims", Message: "input dims must be specified"}
	}
	return inputs, nil
}

// DefaultOutputs derives the assembly and model paths from the model path:
// the base name up to its first dot, plus the output suffix, in the model's
// directory.
func DefaultOutputs(modelPath string) (asm, model string) {
	dir, base := filepath.Split(modelPath)
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return filepath.Join(dir, base+AsmSuffix), filepath.Join(dir, base+ModelSuffix)
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
