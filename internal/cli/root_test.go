package cli

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "aotc", cmd.Use)
	assert.Contains(t, cmd.Long, "native kernels")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "inspect", "validate", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compileCmd, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)

	for _, name := range []string{"model", "model-name", "model-version", "method", "input-dims",
		"output-asm", "output-model", "target", "max-rounds", "build-token", "cache", "config"} {
		assert.NotNil(t, compileCmd.Flags().Lookup(name), "flag --%s", name)
	}
	assert.Equal(t, "0", compileCmd.Flags().Lookup("max-rounds").DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "validate", "model.yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}

	quiet := newLogger(buf, &RootOptions{Format: "text"})
	assert.Equal(t, logrus.WarnLevel, quiet.GetLevel())
	quiet.Info("hidden")
	assert.Empty(t, buf.String())

	verbose := newLogger(buf, &RootOptions{Format: "text", Verbose: true})
	assert.Equal(t, logrus.DebugLevel, verbose.GetLevel())

	js := newLogger(buf, &RootOptions{Format: "json", Verbose: true})
	js.WithField("stage", "freeze").Info("running stage")
	assert.Contains(t, buf.String(), `"stage":"freeze"`)
}
