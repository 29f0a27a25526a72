package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aotc/internal/aot"
	"github.com/roach88/aotc/internal/bundle"
	"github.com/roach88/aotc/internal/config"
	"github.com/roach88/aotc/internal/testutil"
)

// createTestStore creates a new kernel cache in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// compileRelu compiles the relu test model with the placeholder token.
func compileRelu(t *testing.T) (*aot.Result, *bundle.CompiledModule) {
	t.Helper()
	cfg, err := config.Build(config.Options{
		ModelPath:    "relu.yaml",
		ModelName:    "relu",
		ModelVersion: "1.0",
		InputDims:    "1,4",
		BuildToken:   testutil.PlaceholderToken,
	}, nil)
	require.NoError(t, err)

	logger, _ := logtest.NewNullLogger()
	c := aot.Compiler{Logger: logrus.NewEntry(logger)}
	res, err := c.Compile(context.Background(), testutil.ReluModule(), cfg)
	require.NoError(t, err)
	return res, res.Module
}
