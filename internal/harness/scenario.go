package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/aotc/internal/aot"
)

// Scenario defines one conformance check.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Model is the model file, relative to the scenario file.
	Model string `yaml:"model"`

	ModelName    string `yaml:"model_name"`
	ModelVersion string `yaml:"model_version"`
	Method       string `yaml:"method,omitempty"`
	InputDims    string `yaml:"input_dims"`
	Target       string `yaml:"target,omitempty"`
	MaxRounds    int    `yaml:"max_rounds,omitempty"`

	// BuildToken pins the kernel id. Empty derives it from the graph.
	BuildToken string `yaml:"build_token,omitempty"`

	// Expect states the expected compile outcome.
	Expect *ExpectClause `yaml:"expect,omitempty"`

	// Runs execute the compiled kernel.
	Runs []RunStep `yaml:"runs,omitempty"`

	// Assertions validate the optimized graph, descriptors and listing.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ExpectClause specifies the expected compile outcome.
type ExpectClause struct {
	// Error is the expected error kind. Empty means compilation succeeds.
	Error string `yaml:"error,omitempty"`

	// KernelID is the expected kernel id of the first method.
	KernelID string `yaml:"kernel_id,omitempty"`
}

// RunStep executes the kernel on one input. Input is in row-major order
// for the first declared input shape.
type RunStep struct {
	Input     []float32 `yaml:"input"`
	Output    []float32 `yaml:"output"`
	Tolerance float64   `yaml:"tolerance,omitempty"`
}

// Assertion validates one property of a successful compile.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Op is the node kind (op_absent, op_count).
	Op string `yaml:"op,omitempty"`

	// Count is the expected number of nodes (op_count).
	Count int `yaml:"count,omitempty"`

	// Sizes are the expected output sizes (output_sizes).
	Sizes [][]int64 `yaml:"sizes,omitempty"`

	// Text must appear in the listing (listing_contains).
	Text string `yaml:"text,omitempty"`

	// Tolerance bounds the difference from the interpreter
	// (matches_reference).
	Tolerance float64 `yaml:"tolerance,omitempty"`
}

// Assertion type constants.
const (
	AssertOpAbsent        = "op_absent"
	AssertOpCount         = "op_count"
	AssertOutputSizes     = "output_sizes"
	AssertListingContains = "listing_contains"
	AssertMatchesRef      = "matches_reference"
)

// DefaultTolerance bounds float differences when a scenario gives none.
const DefaultTolerance = 1e-5

var errorKinds = []string{
	string(aot.KindConfiguration),
	string(aot.KindFreezing),
	string(aot.KindShapeInference),
	string(aot.KindUnsupportedOperator),
	string(aot.KindSerialization),
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and the model path is resolved against the scenario's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Model != "" && !filepath.IsAbs(scenario.Model) {
		scenario.Model = filepath.Join(filepath.Dir(path), scenario.Model)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Model == "" {
		return fmt.Errorf("model is required")
	}
	if _, err := os.Stat(s.Model); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.Model)
	}
	if s.InputDims == "" {
		return fmt.Errorf("input_dims is required")
	}

	if s.Expect != nil && s.Expect.Error != "" {
		if !slices.Contains(errorKinds, s.Expect.Error) {
			return fmt.Errorf("expect.error: unknown error kind %q (want one of %v)", s.Expect.Error, errorKinds)
		}
		if len(s.Runs) > 0 || len(s.Assertions) > 0 {
			return fmt.Errorf("a scenario that expects an error cannot have runs or assertions")
		}
		return nil
	}
	if len(s.Runs) == 0 && len(s.Assertions) == 0 && (s.Expect == nil || s.Expect.KernelID == "") {
		return fmt.Errorf("scenario checks nothing: give expect, runs or assertions")
	}

	for i, run := range s.Runs {
		if len(run.Input) == 0 {
			return fmt.Errorf("runs[%d]: input is required", i)
		}
		if len(run.Output) == 0 {
			return fmt.Errorf("runs[%d]: output is required", i)
		}
		if run.Tolerance < 0 {
			return fmt.Errorf("runs[%d]: tolerance must be non-negative", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOpAbsent:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for op_absent", index)
		}
	case AssertOpCount:
		if a.Op == "" {
			return fmt.Errorf("assertions[%d]: op is required for op_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for op_count", index)
		}
	case AssertOutputSizes:
		if len(a.Sizes) == 0 {
			return fmt.Errorf("assertions[%d]: sizes is required for output_sizes", index)
		}
	case AssertListingContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for listing_contains", index)
		}
	case AssertMatchesRef:
		if a.Tolerance < 0 {
			return fmt.Errorf("assertions[%d]: tolerance must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
