package bundle

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aotc/internal/codegen"
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ir"
	"github.com/roach88/aotc/internal/kernel"
	"github.com/roach88/aotc/internal/unit"
)

const reluSrc = `graph(%x : Tensor(1, 4)):
  %y : Tensor(1, 4) = aten::relu(%x)
  return (%y)`

type fixture struct {
	frozen    *graph.Module
	spec      ir.CompileSpec
	unitBytes []byte
	artifacts []*kernel.Artifact
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	g := graph.MustParse(reluSrc)
	m := graph.NewModule("Relu")
	m.Frozen = true
	m.Training = false
	m.AddMethod("forward", g)

	id := unit.KernelID("relu", "1.0", "forward", "VERTOKEN")
	backend, err := codegen.New(codegen.DefaultTriple)
	require.NoError(t, err)
	art, err := kernel.Compile(g.Clone(), kernel.Request{Method: "forward", Symbol: unit.EntrySymbol(id)}, backend)
	require.NoError(t, err)
	d, err := unit.BuildDescriptor(id, art)
	require.NoError(t, err)

	u := unit.NewCompilationUnit()
	require.NoError(t, u.Register(d))
	data, err := u.Serialize()
	require.NoError(t, err)

	return fixture{
		frozen:    m,
		spec:      ir.NewCompileSpec("forward", []int64{1, 4}),
		unitBytes: data,
		artifacts: []*kernel.Artifact{art},
	}
}

func TestPackage(t *testing.T) {
	f := newFixture(t)

	cm, err := Package(f.frozen, f.spec, f.unitBytes, f.artifacts)
	require.NoError(t, err)

	assert.Equal(t, "nnc", cm.Backend)
	assert.Equal(t, "relu", cm.ModelName)
	assert.Equal(t, "1.0", cm.ModelVersion)
	assert.Equal(t, []string{"forward"}, cm.Methods())
	assert.Equal(t, f.unitBytes, cm.Unit)
	assert.Equal(t, uuid.Version(5), cm.UnitID.Version())
	assert.Equal(t, UnitID(f.unitBytes), cm.UnitID)
	assert.Equal(t, Metadata{
		Class:           "Relu",
		SourceMethods:   []string{"forward"},
		CompilerVersion: ir.CompilerVersion,
		IRVersion:       ir.IRVersion,
	}, cm.Metadata)

	d, ok := cm.Descriptor("forward")
	require.True(t, ok)
	art, ok := cm.Artifact(d.Entry.Symbol)
	require.True(t, ok)
	assert.Equal(t, "nnc_relu_1_0_forward_VERTOKEN", art.Symbol)
}

func TestUnitID_Deterministic(t *testing.T) {
	assert.Equal(t, UnitID([]byte("a")), UnitID([]byte("a")))
	assert.NotEqual(t, UnitID([]byte("a")), UnitID([]byte("b")))
}

func TestPackage_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *fixture)
		want   string
	}{
		{"not frozen", func(f *fixture) { f.frozen.Frozen = false }, "not frozen"},
		{"unknown method", func(f *fixture) {
			f.spec = ir.NewCompileSpec("predict", []int64{1, 4})
		}, `method "predict": not present in the frozen module`},
		{"garbage unit", func(f *fixture) { f.unitBytes = []byte("nope") }, "unreadable compilation unit"},
		{"missing artifact", func(f *fixture) { f.artifacts = nil }, "no artifact for entry symbol"},
		{"other sizes", func(f *fixture) {
			f.spec = ir.NewCompileSpec("forward", []int64{2, 4})
		}, "differ from compile spec"},
		{"stale artifact", func(f *fixture) {
			stale := *f.artifacts[0]
			stale.Object = append([]byte(nil), stale.Object...)
			stale.Object[len(stale.Object)-1] ^= 0xff
			f.artifacts = []*kernel.Artifact{&stale}
		}, "object digest"},
		{"descriptor outside compile spec", func(f *fixture) {
			f.unitBytes = mustSerializeOther(t, unit.NewCompilationUnit())
		}, `method "other": descriptor has no entry in the compile spec`},
		{"empty unit", func(f *fixture) {
			f.unitBytes = []byte(`{"format":"aotc/unit","functions":[],"version":"1"}`)
		}, `method "forward": no descriptor in the compilation unit`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.mutate(&f)
			_, err := Package(f.frozen, f.spec, f.unitBytes, f.artifacts)
			require.Error(t, err)
			assert.True(t, IsPackageError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// mustSerializeOther serializes a unit holding a single descriptor for a
// method named "other".
func mustSerializeOther(t *testing.T, u *unit.CompilationUnit) []byte {
	t.Helper()
	id := unit.KernelID("relu", "1.0", "other", "VERTOKEN")
	require.NoError(t, u.Register(ir.InvocationDescriptor{
		Method:      "other",
		KernelID:    id,
		InputSizes:  [][]int64{{1, 4}},
		OutputSizes: [][]int64{{1, 4}},
		Entry:       ir.EntryBinding{Symbol: unit.EntrySymbol(id)},
	}))
	data, err := u.Serialize()
	require.NoError(t, err)
	return data
}
