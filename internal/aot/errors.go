package aot

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/aotc/internal/bundle"
	"github.com/roach88/aotc/internal/codegen"
	"github.com/roach88/aotc/internal/config"
	"github.com/roach88/aotc/internal/kernel"
	"github.com/roach88/aotc/internal/passes"
	"github.com/roach88/aotc/internal/unit"
)

// ErrorKind categorizes compile failures.
type ErrorKind string

const (
	// KindConfiguration covers bad settings and signature mismatches. These
	// are reported before any optimization pass runs.
	KindConfiguration ErrorKind = "CONFIGURATION"

	// KindFreezing indicates the module could not be frozen.
	KindFreezing ErrorKind = "FREEZING"

	// KindShapeInference indicates a value's shape could not be inferred.
	KindShapeInference ErrorKind = "SHAPE_INFERENCE"

	// KindUnsupportedOperator indicates the backend cannot lower an op.
	KindUnsupportedOperator ErrorKind = "UNSUPPORTED_OPERATOR"

	// KindSerialization indicates the unit or module could not be packaged.
	KindSerialization ErrorKind = "SERIALIZATION"
)

// CompileError is returned for every failure of Compile except
// cancellation, which surfaces as a *CanceledError.
type CompileError struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Stage names the pipeline stage that failed.
	Stage string

	// Method is the method being compiled, if any.
	Method string

	// Err is the stage's own error.
	Err error
}

func (e *CompileError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("%s: %s (method=%s): %v", e.Kind, e.Stage, e.Method, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *CompileError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// KindOf returns the kind of a *CompileError, or "" for other errors.
func KindOf(err error) ErrorKind {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// classify picks the kind from the typed error when there is one and
// falls back to the stage's kind otherwise.
func classify(err error, fallback ErrorKind) ErrorKind {
	var (
		target *codegen.TargetError
		kshape *kernel.ShapeError
	)
	switch {
	case config.IsConfigError(err), passes.IsConfigError(err), errors.As(err, &target):
		return KindConfiguration
	case passes.IsFreezeError(err):
		return KindFreezing
	case passes.IsShapeError(err), errors.As(err, &kshape):
		return KindShapeInference
	case kernel.IsUnsupportedOperator(err):
		return KindUnsupportedOperator
	case bundle.IsPackageError(err), unit.IsSerializationError(err):
		return KindSerialization
	}
	return fallback
}

// CanceledError reports that the context ended the run. It carries no
// ErrorKind; errors.Is matches the context's error.
type CanceledError struct {
	Stage  string
	Method string
	Err    error
}

func (e *CanceledError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("canceled before %s (method=%s): %v", e.Stage, e.Method, e.Err)
	}
	return fmt.Sprintf("canceled before %s: %v", e.Stage, e.Err)
}

func (e *CanceledError) Unwrap() error { return e.Err }

func stageError(stage, method string, fallback ErrorKind, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &CanceledError{Stage: stage, Method: method, Err: err}
	}
	return &CompileError{Kind: classify(err, fallback), Stage: stage, Method: method, Err: err}
}
