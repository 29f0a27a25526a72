package harness

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/roach88/aotc/internal/aot"
	"github.com/roach88/aotc/internal/codegen"
	"github.com/roach88/aotc/internal/config"
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/loader"
	"github.com/roach88/aotc/internal/tensor"
)

// Harness holds what one scenario run needs after compilation.
type Harness struct {
	module *graph.Module
	cfg    config.Config
	object *codegen.Object
}

// Run compiles the scenario's model and checks every expectation. An error
// is returned only when the scenario cannot be run at all; failed
// expectations are reported in the result.
//
// Execution flow:
// 1. Load the model file
// 2. Resolve the compile settings
// 3. Compile with logging discarded and compare the outcome with expect
// 4. Execute the kernel for each run step
// 5. Evaluate the assertions
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	m, err := loader.Load(scenario.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	result := NewResult()
	cfg, err := config.Build(config.Options{
		ModelPath:    scenario.Model,
		ModelName:    scenario.ModelName,
		ModelVersion: scenario.ModelVersion,
		Method:       scenario.Method,
		InputDims:    scenario.InputDims,
		Target:       scenario.Target,
		MaxRounds:    scenario.MaxRounds,
		BuildToken:   scenario.BuildToken,
	}, nil)

	var res *aot.Result
	if err == nil {
		c := aot.Compiler{Logger: logrus.NewEntry(quietLogger())}
		res, err = c.Compile(ctx, m, cfg)
	} else {
		err = &aot.CompileError{Kind: aot.KindConfiguration, Stage: aot.StageConfigure, Err: err}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if !checkOutcome(result, scenario.Expect, err) {
		return result, nil
	}

	result.compiled = res
	result.Listing = res.Assembly()
	for _, mr := range res.Methods {
		result.KernelIDs = append(result.KernelIDs, mr.KernelID)
	}
	if scenario.Expect != nil && scenario.Expect.KernelID != "" && result.KernelIDs[0] != scenario.Expect.KernelID {
		result.AddError(fmt.Sprintf("kernel id: expected %s, got %s", scenario.Expect.KernelID, result.KernelIDs[0]))
	}

	obj, err := codegen.DecodeObject(res.Methods[0].Artifact.Object)
	if err != nil {
		return nil, fmt.Errorf("failed to decode object: %w", err)
	}
	h := &Harness{module: m, cfg: cfg, object: obj}

	for i, step := range scenario.Runs {
		h.executeRun(i, step, result)
	}

	actx := &AssertionContext{Module: m, Config: cfg, Object: obj}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

// checkOutcome compares the compile error with the expected one and
// reports whether compilation succeeded.
func checkOutcome(result *Result, expect *ExpectClause, err error) bool {
	want := ""
	if expect != nil {
		want = expect.Error
	}
	if err != nil {
		result.ErrorKind = aot.KindOf(err)
		if want == "" {
			result.AddError(fmt.Sprintf("compile failed: %v", err))
		} else if string(result.ErrorKind) != want {
			result.AddError(fmt.Sprintf("expected %s error, got %v", want, err))
		}
		return false
	}
	if want != "" {
		result.AddError(fmt.Sprintf("expected %s error, compile succeeded", want))
		return false
	}
	return true
}

func (h *Harness) executeRun(index int, step RunStep, result *Result) {
	shape := tensor.Shape(h.cfg.Dims()[0])
	x, err := tensor.FromData(shape, step.Input)
	if err != nil {
		result.AddError(fmt.Sprintf("runs[%d]: %v", index, err))
		return
	}
	out, err := codegen.Execute(h.object, []*tensor.Tensor{x})
	if err != nil {
		result.AddError(fmt.Sprintf("runs[%d]: execute: %v", index, err))
		return
	}
	result.Runs = append(result.Runs, RunOutcome{Input: step.Input, Output: out[0].Data})

	tol := step.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	if i, ok := closeTo(out[0].Data, step.Output, tol); !ok {
		result.AddError(fmt.Sprintf("runs[%d]: output differs at element %d: expected %v, got %v", index, i, step.Output, out[0].Data))
	}
}

// closeTo compares element-wise and returns the first mismatch index.
func closeTo(got, want []float32, tol float64) (int, bool) {
	if len(got) != len(want) {
		return min(len(got), len(want)), false
	}
	for i := range got {
		if math.Abs(float64(got[i])-float64(want[i])) > tol {
			return i, false
		}
	}
	return -1, true
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
