package cli

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessTestdata = filepath.Join("..", "harness", "testdata")

// copyTestdata copies the harness scenarios and models into a temp dir and
// returns the scenarios directory.
func copyTestdata(t *testing.T) string {
	t.Helper()
	dst := t.TempDir()
	err := filepath.WalkDir(harnessTestdata, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(harnessTestdata, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0644)
	})
	require.NoError(t, err)
	return filepath.Join(dst, "scenarios")
}

func TestTestCommand_AllPass(t *testing.T) {
	stdout, _, err := execute(t, "test", filepath.Join(harnessTestdata, "scenarios"))
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ relu")
	assert.Contains(t, stdout, "✓ training_dropout")
	assert.Contains(t, stdout, "Test Summary: 6 passed, 0 failed, 6 total")
	assert.Contains(t, stdout, "✓ All scenarios passed")
}

func TestTestCommand_Filter(t *testing.T) {
	stdout, _, err := execute(t, "test", filepath.Join(harnessTestdata, "scenarios"), "--filter", "rel*")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommand_JSON(t *testing.T) {
	stdout, _, err := execute(t, "test", filepath.Join(harnessTestdata, "scenarios"), "--filter", "relu", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Scenarios, 1)
	sc := resp.Data.Scenarios[0]
	assert.Equal(t, "relu", sc.Name)
	assert.True(t, sc.Pass)
	assert.Equal(t, []string{"relu:1.0:forward:VERTOKEN"}, sc.KernelIDs)
}

func TestTestCommand_GoldenMismatchAndUpdate(t *testing.T) {
	dir := copyTestdata(t)
	golden := filepath.Join(dir, "golden", "relu.golden")
	require.NoError(t, os.WriteFile(golden, []byte("stale listing\n"), 0644))

	stdout, _, err := execute(t, "test", dir, "--filter", "relu")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ relu")
	assert.Contains(t, stdout, "listing does not match golden file")

	_, _, err = execute(t, "test", dir, "--filter", "relu", "--update")
	require.NoError(t, err)
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Equal(t, reluListing(t), string(data))

	_, _, err = execute(t, "test", dir, "--filter", "relu")
	require.NoError(t, err)
}

func TestTestCommand_UpdateSkipsFailedCompiles(t *testing.T) {
	dir := copyTestdata(t)

	_, _, err := execute(t, "test", dir, "--filter", "dropout", "--update")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "golden", "dropout.golden"))
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := copyTestdata(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`name: wrong_output
description: "relu output is checked against the wrong values"
model: ../models/relu.yaml
model_name: relu
model_version: "1.0"
input_dims: "1,4"
runs:
  - input: [-1, 2, -3, 4]
    output: [1, 2, 3, 4]
`), 0644))

	stdout, _, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 7, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)
	for _, sc := range resp.Data.Scenarios {
		if sc.Name == "wrong_output" {
			assert.False(t, sc.Pass)
			require.NotEmpty(t, sc.Errors)
			assert.Contains(t, sc.Errors[0], "output differs at element 0")
		}
	}
}

func TestTestCommand_InvalidScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.yaml"), []byte("name: empty\n"), 0644))

	stdout, _, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ empty.yaml")
	assert.Contains(t, stdout, "failed to load scenario")
}

func TestTestCommand_Directories(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "absent"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "scenarios directory not found")
	})

	t.Run("empty", func(t *testing.T) {
		stdout, _, err := execute(t, "test", t.TempDir())
		require.NoError(t, err)
		assert.Contains(t, stdout, "No scenarios found.")
	})
}
