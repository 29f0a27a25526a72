package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aotc/internal/aot"
)

func loadScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			s, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRunWithGolden_Relu(t *testing.T) {
	s := loadScenario(t, "relu")
	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []string{"relu:1.0:forward:VERTOKEN"}, result.KernelIDs)
	require.Len(t, result.Runs, 1)
	assert.Equal(t, []float32{0, 2, 0, 4}, result.Runs[0].Output)
}

func TestRun_ExpectedErrorKind(t *testing.T) {
	result, err := Run(context.Background(), loadScenario(t, "dropout"))
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Equal(t, aot.KindUnsupportedOperator, result.ErrorKind)
	assert.Empty(t, result.KernelIDs)
}

func TestRun_ReportsFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Scenario)
		want   string
	}{
		{
			name:   "wrong kernel id",
			mutate: func(s *Scenario) { s.Expect.KernelID = "relu:1.0:forward:OTHER" },
			want:   "kernel id: expected relu:1.0:forward:OTHER",
		},
		{
			name:   "wrong output",
			mutate: func(s *Scenario) { s.Runs[0].Output = []float32{1, 2, 3, 4} },
			want:   "runs[0]: output differs at element 0",
		},
		{
			name:   "wrong input length",
			mutate: func(s *Scenario) { s.Runs[0].Input = []float32{1, 2} },
			want:   "runs[0]:",
		},
		{
			name:   "unexpected success",
			mutate: func(s *Scenario) { s.Expect = &ExpectClause{Error: "SHAPE_INFERENCE"} },
			want:   "expected SHAPE_INFERENCE error, compile succeeded",
		},
		{
			name: "op still present",
			mutate: func(s *Scenario) {
				s.Assertions = append(s.Assertions, Assertion{Type: AssertOpAbsent, Op: "aten::relu"})
			},
			want: "Assertion failed: op_absent",
		},
		{
			name: "listing text missing",
			mutate: func(s *Scenario) {
				s.Assertions = append(s.Assertions, Assertion{Type: AssertListingContains, Text: "vsigmoid"})
			},
			want: `listing containing "vsigmoid"`,
		},
		{
			name: "output sizes differ",
			mutate: func(s *Scenario) {
				s.Assertions = append(s.Assertions, Assertion{Type: AssertOutputSizes, Sizes: [][]int64{{4}}})
			},
			want: "Expected: [[4]]",
		},
		{
			name:   "compile fails unexpectedly",
			mutate: func(s *Scenario) { s.Target = "riscv64-unknown-elf" },
			want:   "compile failed: CONFIGURATION",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := loadScenario(t, "relu")
			tt.mutate(s)
			result, err := Run(context.Background(), s)
			require.NoError(t, err)
			assert.False(t, result.Pass)
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, result.Errors[len(result.Errors)-1], tt.want)
		})
	}
}

func TestRun_WrongErrorKind(t *testing.T) {
	s := loadScenario(t, "dropout")
	s.Expect.Error = "FREEZING"
	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected FREEZING error, got UNSUPPORTED_OPERATOR")
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, loadScenario(t, "relu"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadScenario_Errors(t *testing.T) {
	const model = "model: ../models/relu.yaml\n"
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: d\n" + model + "input_dims: \"4\"\nflow: []\n", "field flow not found"},
		{"no name", "description: d\n" + model + "input_dims: \"4\"\n", "name is required"},
		{"no description", "name: x\n" + model + "input_dims: \"4\"\n", "description is required"},
		{"no model", "name: x\ndescription: d\ninput_dims: \"4\"\n", "model is required"},
		{"missing model", "name: x\ndescription: d\nmodel: nope.yaml\ninput_dims: \"4\"\n", "model file not found"},
		{"no dims", "name: x\ndescription: d\n" + model, "input_dims is required"},
		{"checks nothing", "name: x\ndescription: d\n" + model + "input_dims: \"4\"\n", "checks nothing"},
		{"unknown kind", "name: x\ndescription: d\n" + model + "input_dims: \"4\"\nexpect:\n  error: OOPS\n", "unknown error kind"},
		{"error with runs", "name: x\ndescription: d\n" + model + "input_dims: \"4\"\nexpect:\n  error: FREEZING\nruns:\n  - input: [1]\n    output: [1]\n", "cannot have runs or assertions"},
		{"run without output", "name: x\ndescription: d\n" + model + "input_dims: \"4\"\nruns:\n  - input: [1]\n", "runs[0]: output is required"},
		{"assertion without type", "name: x\ndescription: d\n" + model + "input_dims: \"4\"\nassertions:\n  - op: aten::relu\n", "assertions[0]: type is required"},
		{"unknown assertion", "name: x\ndescription: d\n" + model + "input_dims: \"4\"\nassertions:\n  - type: trace_order\n", "unknown assertion type"},
		{"op_count without op", "name: x\ndescription: d\n" + model + "input_dims: \"4\"\nassertions:\n  - type: op_count\n    count: 1\n", "op is required for op_count"},
		{"listing without text", "name: x\ndescription: d\n" + model + "input_dims: \"4\"\nassertions:\n  - type: listing_contains\n", "text is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "scenarios")
			require.NoError(t, os.MkdirAll(dir, 0o755))
			models := filepath.Join(filepath.Dir(dir), "models")
			require.NoError(t, os.MkdirAll(models, 0o755))
			relu, err := os.ReadFile(filepath.Join("testdata", "models", "relu.yaml"))
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(filepath.Join(models, "relu.yaml"), relu, 0o644))

			path := filepath.Join(dir, "s.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err = LoadScenario(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenario_ResolvesModelPath(t *testing.T) {
	s := loadScenario(t, "net")
	assert.Equal(t, filepath.Join("testdata", "models", "net.yaml"), s.Model)
}
