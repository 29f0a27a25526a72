package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aotc/internal/store"
	"github.com/roach88/aotc/internal/testutil"
)

type compileResponse struct {
	Status string         `json:"status"`
	Data   CompileSummary `json:"data"`
	Error  *CLIError      `json:"error"`
}

func reluArgs(model string, extra ...string) []string {
	args := []string{"compile", "--model", model, "--model-name", "relu", "--model-version", "1.0", "--input-dims", "1,4"}
	return append(args, extra...)
}

func TestCompile_WritesOutputs(t *testing.T) {
	model := writeRelu(t)
	dir := filepath.Dir(model)

	stdout, _, err := execute(t, reluArgs(model, "--build-token", testutil.PlaceholderToken)...)
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Compiled relu 1.0 for")
	assert.Contains(t, stdout, "forward: relu:1.0:forward:VERTOKEN")
	assert.Contains(t, stdout, "Wrote assembly to "+filepath.Join(dir, "relu.compiled.ll"))

	asm, err := os.ReadFile(filepath.Join(dir, "relu.compiled.ll"))
	require.NoError(t, err)
	assert.Equal(t, reluListing(t), string(asm))

	cm, err := store.ReadModule(context.Background(), filepath.Join(dir, "relu.compiled.aotm"))
	require.NoError(t, err)
	assert.Equal(t, "relu", cm.ModelName)
	d, ok := cm.Descriptor("forward")
	require.True(t, ok)
	assert.Equal(t, "nnc_relu_1_0_forward_VERTOKEN", d.Entry.Symbol)
	assert.Equal(t, [][]int64{{1, 4}}, d.OutputSizes)
}

func TestCompile_JSON(t *testing.T) {
	model := writeRelu(t)
	asmPath := filepath.Join(t.TempDir(), "out.ll")
	modelPath := filepath.Join(t.TempDir(), "out.aotm")

	stdout, _, err := execute(t, reluArgs(model, "--format", "json", "--output-asm", asmPath, "--output-model", modelPath)...)
	require.NoError(t, err)

	var resp compileResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Methods, 1)
	m := resp.Data.Methods[0]
	assert.Equal(t, "forward", m.Method)
	assert.Regexp(t, `^relu:1\.0:forward:[0-9a-f]{16}$`, m.KernelID)
	assert.Equal(t, [][]int64{{1, 4}}, m.InputSizes)
	assert.Equal(t, [][]int64{{1, 4}}, m.OutputSizes)
	assert.False(t, m.CacheHit)
	assert.Equal(t, asmPath, resp.Data.OutputAsm)
	assert.FileExists(t, asmPath)
	assert.FileExists(t, modelPath)
}

func TestCompile_MissingModel(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")

	stdout, _, err := execute(t, reluArgs(missing)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, stdout, "model file not found")
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name     string
		yaml     string
		extra    []string
		wantCode string
	}{
		{
			name:     "bad input dims",
			yaml:     testutil.ReluYAML,
			extra:    []string{"--input-dims", "1,x"},
			wantCode: ErrCodeConfiguration,
		},
		{
			name:     "too many shapes",
			yaml:     testutil.ReluYAML,
			extra:    []string{"--input-dims", "1,4;1,4"},
			wantCode: ErrCodeConfiguration,
		},
		{
			name: "training dropout",
			yaml: `class: Noisy
methods:
  forward: |
    graph(%self : Noisy, %x : Tensor):
      %p : float = prim::Constant[value=0.5]()
      %t : bool = prim::Constant[value=true]()
      %y : Tensor = aten::dropout(%x, %p, %t)
      return (%y)
`,
			wantCode: ErrCodeUnsupportedOperator,
		},
		{
			name: "unknown operator",
			yaml: `class: Mystery
methods:
  forward: |
    graph(%self : Mystery, %x : Tensor):
      %y : Tensor = custom::mystery(%x)
      return (%y)
`,
			wantCode: ErrCodeShapeInference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := writeModel(t, "model.yaml", tt.yaml)
			dir := filepath.Dir(model)

			stdout, _, err := execute(t, reluArgs(model, tt.extra...)...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantCode)
			assert.Contains(t, stdout, "Error ["+tt.wantCode+"]")

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "nothing but the model should be left behind")
		})
	}
}

func TestCompile_ErrorJSON(t *testing.T) {
	model := writeRelu(t)

	stdout, _, err := execute(t, reluArgs(model, "--format", "json", "--target", "riscv64-unknown-linux-gnu")...)
	require.Error(t, err)

	var resp compileResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfiguration, resp.Error.Code)
}

func TestCompile_ConfigFile(t *testing.T) {
	model := writeRelu(t)
	dir := filepath.Dir(model)
	cfgPath := filepath.Join(dir, "aotc.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`model: relu.yaml
model_name: relu
model_version: "2.0"
input_dims: "1,4"
build_token: VERTOKEN
output_asm: build/relu.ll
output_model: build/relu.aotm
`), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "build"), 0755))

	stdout, _, err := execute(t, "compile", "--config", cfgPath, "--model-version", "3.0")
	require.NoError(t, err)
	assert.Contains(t, stdout, "relu:3.0:forward:VERTOKEN")
	assert.FileExists(t, filepath.Join(dir, "build", "relu.ll"))
	assert.FileExists(t, filepath.Join(dir, "build", "relu.aotm"))
}

func TestCompile_UnknownConfigKey(t *testing.T) {
	cfgPath := writeModel(t, "aotc.yaml", "modle: relu.yaml\n")

	_, _, err := execute(t, "compile", "--config", cfgPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeConfiguration)
}

func TestCompile_Cache(t *testing.T) {
	model := writeRelu(t)
	cache := filepath.Join(t.TempDir(), "kernels.db")

	first, _, err := execute(t, reluArgs(model, "--cache", cache, "--format", "json")...)
	require.NoError(t, err)
	second, _, err := execute(t, reluArgs(model, "--cache", cache, "--format", "json")...)
	require.NoError(t, err)

	var a, b compileResponse
	require.NoError(t, json.Unmarshal([]byte(first), &a))
	require.NoError(t, json.Unmarshal([]byte(second), &b))
	assert.False(t, a.Data.Methods[0].CacheHit)
	assert.True(t, b.Data.Methods[0].CacheHit)
	assert.Equal(t, a.Data.Methods[0].KernelID, b.Data.Methods[0].KernelID)
}

func TestCompile_VerboseLogsStages(t *testing.T) {
	model := writeRelu(t)

	_, stderr, err := execute(t, reluArgs(model, "--verbose")...)
	require.NoError(t, err)
	assert.Contains(t, stderr, "stage=freeze")
	assert.Contains(t, stderr, "stage=compile-kernel")
	assert.Contains(t, stderr, "graph after optimize")
}
