package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/aotc/internal/codegen"
	"github.com/roach88/aotc/internal/config"
	"github.com/roach88/aotc/internal/eval"
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/tensor"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Graph    string // Optimized graph for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if e.Graph != "" {
		fmt.Fprintf(&buf, "\nOptimized graph:\n%s", e.Graph)
	}
	return buf.String()
}

// AssertionContext carries what assertions need beyond the result.
type AssertionContext struct {
	Module *graph.Module
	Config config.Config
	Object *codegen.Object
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	if result.compiled == nil || len(result.compiled.Methods) == 0 {
		return &AssertionError{Type: a.Type, Expected: "a compiled method", Actual: "nothing was compiled"}
	}
	mr := result.compiled.Methods[0]
	switch a.Type {
	case AssertOpAbsent:
		return assertOpCount(mr.Graph, a.Op, 0, a.Type)
	case AssertOpCount:
		return assertOpCount(mr.Graph, a.Op, a.Count, a.Type)
	case AssertOutputSizes:
		d, ok := result.compiled.Module.Descriptor(mr.Name)
		if !ok {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("descriptor for %s", mr.Name), Actual: "none"}
		}
		if !slices.EqualFunc(d.OutputSizes, a.Sizes, func(x, y []int64) bool { return slices.Equal(x, y) }) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprint(a.Sizes), Actual: fmt.Sprint(d.OutputSizes)}
		}
	case AssertListingContains:
		if !strings.Contains(result.Listing, a.Text) {
			return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("listing containing %q", a.Text), Actual: "not found", Graph: graph.Print(mr.Graph)}
		}
	case AssertMatchesRef:
		return assertMatchesReference(a, actx)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
	return nil
}

func assertOpCount(g *graph.Graph, op string, want int, typ string) error {
	count := 0
	for _, n := range g.Nodes {
		if n.Kind == op {
			count++
		}
	}
	if count != want {
		return &AssertionError{
			Type:     typ,
			Expected: fmt.Sprintf("%d %s node(s)", want, op),
			Actual:   fmt.Sprintf("%d", count),
			Graph:    graph.Print(g),
		}
	}
	return nil
}

// assertMatchesReference runs the source module in the interpreter and the
// compiled kernel on the same ramp input.
func assertMatchesReference(a Assertion, actx *AssertionContext) error {
	x := ramp(tensor.Shape(actx.Config.Dims()[0]))

	ref := actx.Module.Clone()
	ref.Eval()
	want, err := eval.RunMethod(ref, actx.Config.Method, []graph.Literal{graph.TensorLit(x.Clone())})
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: "interpreter result", Actual: err.Error()}
	}
	got, err := codegen.Execute(actx.Object, []*tensor.Tensor{x})
	if err != nil {
		return &AssertionError{Type: a.Type, Expected: "kernel result", Actual: err.Error()}
	}
	if len(got) != len(want) {
		return &AssertionError{Type: a.Type, Expected: fmt.Sprintf("%d outputs", len(want)), Actual: fmt.Sprintf("%d", len(got))}
	}

	tol := a.Tolerance
	if tol == 0 {
		tol = DefaultTolerance
	}
	for i := range got {
		if want[i].Kind != graph.LitTensor {
			return &AssertionError{Type: a.Type, Expected: "tensor outputs", Actual: want[i].String()}
		}
		if j, ok := closeTo(got[i].Data, want[i].Tensor.Data, tol); !ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("output %d within %g of the interpreter", i, tol),
				Actual:   fmt.Sprintf("element %d differs", j),
			}
		}
	}
	return nil
}

// ramp fills shape with a repeating sequence in [-1, 1).
func ramp(shape tensor.Shape) *tensor.Tensor {
	t := tensor.New(shape)
	for i := range t.Data {
		t.Data[i] = float32(i%17)/8.5 - 1
	}
	return t
}
