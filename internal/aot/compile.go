package aot

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/roach88/aotc/internal/bundle"
	"github.com/roach88/aotc/internal/codegen"
	"github.com/roach88/aotc/internal/config"
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/ir"
	"github.com/roach88/aotc/internal/kernel"
	"github.com/roach88/aotc/internal/passes"
	"github.com/roach88/aotc/internal/tensor"
	"github.com/roach88/aotc/internal/unit"
)

// Stage names used in errors and logs.
const (
	StageConfigure = "configure"
	StageFreeze    = "freeze"
	StagePrepare   = "prepare"
	StageOptimize  = "optimize"
	StageCheck     = "check-shapes"
	StageToken     = "build-token"
	StageKernel    = "compile-kernel"
	StageDescribe  = "describe"
	StagePackage   = "package"
)

// KernelCache stores compiled kernels by kernel id. *store.Store
// implements it.
type KernelCache interface {
	GetKernel(ctx context.Context, kernelID string) (*kernel.Artifact, bool, error)
	PutKernel(ctx context.Context, kernelID string, art *kernel.Artifact) error
}

// Compiler runs the pipeline. The zero value compiles with the codegen
// backend for the configured target, no cache and the standard logger.
type Compiler struct {
	// Backend overrides the backend chosen from Config.Target.
	Backend kernel.Backend

	// Cache, when set, is consulted before compiling each kernel.
	Cache KernelCache

	Logger *logrus.Entry
}

// MethodResult describes one compiled method.
type MethodResult struct {
	Name     string
	KernelID string
	Graph    *graph.Graph
	Stats    passes.OptimizeStats
	Artifact *kernel.Artifact
	CacheHit bool
}

// Result is the output of a successful run.
type Result struct {
	Module  *bundle.CompiledModule
	Methods []MethodResult
}

// Assembly returns the listings of all compiled methods.
func (r *Result) Assembly() string {
	parts := make([]string, len(r.Methods))
	for i, m := range r.Methods {
		parts[i] = m.Artifact.Assembly
	}
	return strings.Join(parts, "\n")
}

// Compile runs the pipeline with a zero Compiler.
func Compile(ctx context.Context, m *graph.Module, cfg config.Config) (*Result, error) {
	var c Compiler
	return c.Compile(ctx, m, cfg)
}

// Compile freezes m, compiles every method of cfg's compile spec and
// packages the result. m is not modified.
func (c *Compiler) Compile(ctx context.Context, m *graph.Module, cfg config.Config) (*Result, error) {
	log := c.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{"model": cfg.ModelName, "version": cfg.ModelVersion})

	spec, backend, err := c.configure(m, cfg)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"backend": backend.Name(), "target": backend.Target()}).Info("compiling model")

	if err := ctx.Err(); err != nil {
		return nil, stageError(StageFreeze, "", KindFreezing, err)
	}
	log.WithField("stage", StageFreeze).Info("running stage")
	frozen, err := passes.Freeze(m, spec.MethodNames()...)
	if err != nil {
		return nil, stageError(StageFreeze, "", KindFreezing, err)
	}

	res := &Result{}
	u := unit.NewCompilationUnit()
	var arts []*kernel.Artifact
	for _, ms := range spec.Methods {
		mr, err := c.compileMethod(ctx, log.WithField("method", ms.Name), frozen, ms, cfg, backend)
		if err != nil {
			return nil, err
		}
		d, err := unit.BuildDescriptor(mr.KernelID, mr.Artifact)
		if err != nil {
			return nil, stageError(StageDescribe, ms.Name, KindSerialization, err)
		}
		if err := u.Register(d); err != nil {
			return nil, stageError(StageDescribe, ms.Name, KindSerialization, err)
		}
		res.Methods = append(res.Methods, mr)
		arts = append(arts, mr.Artifact)
	}

	log.WithField("stage", StagePackage).Info("running stage")
	data, err := u.Serialize()
	if err != nil {
		return nil, stageError(StagePackage, "", KindSerialization, err)
	}
	cm, err := bundle.Package(frozen, spec, data, arts)
	if err != nil {
		return nil, stageError(StagePackage, "", KindSerialization, err)
	}
	res.Module = cm
	log.WithField("unit", cm.UnitID).Info("compiled model")
	return res, nil
}

// configure validates everything that can be checked without running a
// pass: the spec, the methods it names and their signatures, and the
// target.
func (c *Compiler) configure(m *graph.Module, cfg config.Config) (ir.CompileSpec, kernel.Backend, error) {
	fail := func(method string, err error) (ir.CompileSpec, kernel.Backend, error) {
		return ir.CompileSpec{}, nil, stageError(StageConfigure, method, KindConfiguration, err)
	}
	if err := cfg.Validate(); err != nil {
		return fail("", err)
	}
	spec := cfg.CompileSpec()
	if err := spec.Validate(); err != nil {
		return fail("", &config.ConfigError{Field: "input-dims", Message: err.Error()})
	}
	for _, ms := range spec.Methods {
		method, err := m.Method(ms.Name)
		if err != nil {
			return fail(ms.Name, &config.ConfigError{Field: "method", Message: err.Error()})
		}
		if err := passes.CheckInputShapes(method.Graph, shapesOf(ms)); err != nil {
			return fail(ms.Name, err)
		}
	}

	backend := c.Backend
	if backend == nil {
		b, err := codegen.New(cfg.Target)
		if err != nil {
			return fail("", err)
		}
		backend = b
	}
	return spec, backend, nil
}

func (c *Compiler) compileMethod(ctx context.Context, log *logrus.Entry, frozen *graph.Module, ms ir.MethodSpec, cfg config.Config, backend kernel.Backend) (MethodResult, error) {
	mr := MethodResult{Name: ms.Name}
	fail := func(stage string, kind ErrorKind, err error) (MethodResult, error) {
		return MethodResult{}, stageError(stage, ms.Name, kind, err)
	}
	dump := func(stage string, g *graph.Graph) {
		if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			log.Debugf("graph after %s:\n%s", stage, graph.Print(g))
		}
	}

	log.WithField("stage", StagePrepare).Info("running stage")
	g := frozen.Methods[ms.Name].Clone()
	g, _ = passes.RemoveMutation(g)
	g, _ = passes.EliminateDeadCode(g)
	g, err := passes.RemoveUnusedSelfArgument(g)
	if err != nil {
		return fail(StagePrepare, KindFreezing, err)
	}
	if g, err = passes.AnnotateInputShapes(g, shapesOf(ms)); err != nil {
		return fail(StagePrepare, KindConfiguration, err)
	}
	dump(StagePrepare, g)

	log.WithField("stage", StageOptimize).Info("running stage")
	g, _ = passes.OptimizeFrozenGraph(g)
	opt := passes.Optimizer{MaxRounds: cfg.MaxRounds, Logger: log}
	g, stats, err := opt.Run(ctx, g)
	if err != nil {
		return fail(StageOptimize, KindShapeInference, err)
	}
	log.WithFields(logrus.Fields{"rounds": stats.Rounds, "converged": stats.Converged}).Info("optimized graph")
	dump(StageOptimize, g)

	if err := passes.CheckShapes(g); err != nil {
		return fail(StageCheck, KindShapeInference, err)
	}
	mr.Graph = g
	mr.Stats = stats

	token := cfg.BuildToken
	if token == "" {
		if token, err = unit.BuildToken(g, backend.Target()); err != nil {
			return fail(StageToken, KindSerialization, err)
		}
	}
	mr.KernelID = unit.KernelID(cfg.ModelName, cfg.ModelVersion, ms.Name, token)
	symbol := unit.EntrySymbol(mr.KernelID)
	log = log.WithField("kernel", mr.KernelID)

	// A fixed token says nothing about the graph, so a cached kernel under
	// it may be stale.
	useCache := c.Cache != nil && cfg.BuildToken == ""
	if useCache {
		art, ok, err := c.Cache.GetKernel(ctx, mr.KernelID)
		if err != nil {
			log.WithError(err).Warn("kernel cache lookup failed")
		} else if ok && art.Symbol == symbol && art.Backend == backend.Name() && art.Target == backend.Target() {
			log.Info("kernel cache hit")
			mr.Artifact = art
			mr.CacheHit = true
			return mr, nil
		}
	}

	if err := ctx.Err(); err != nil {
		return fail(StageKernel, KindUnsupportedOperator, err)
	}
	log.WithField("stage", StageKernel).Info("running stage")
	art, err := kernel.Compile(g, kernel.Request{Method: ms.Name, Symbol: symbol}, backend)
	if err != nil {
		return fail(StageKernel, KindUnsupportedOperator, err)
	}
	mr.Artifact = art

	if useCache {
		if err := c.Cache.PutKernel(ctx, mr.KernelID, art); err != nil {
			log.WithError(err).Warn("kernel cache store failed")
		}
	}
	return mr, nil
}

func shapesOf(ms ir.MethodSpec) []tensor.Shape {
	shapes := make([]tensor.Shape, len(ms.InputSizes))
	for i, s := range ms.InputSizes {
		shapes[i] = tensor.Shape(s).Clone()
	}
	return shapes
}
