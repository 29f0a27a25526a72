package harness

import (
	"github.com/roach88/aotc/internal/aot"
)

// RunOutcome records one kernel execution.
type RunOutcome struct {
	Input  []float32 `json:"input"`
	Output []float32 `json:"output"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// ErrorKind is the kind of the compile error, if compilation failed.
	ErrorKind aot.ErrorKind `json:"error_kind,omitempty"`

	KernelIDs []string     `json:"kernel_ids,omitempty"`
	Runs      []RunOutcome `json:"runs,omitempty"`

	// Listing is the assembly of every compiled method.
	Listing string `json:"-"`

	// Errors contains failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	compiled *aot.Result
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Errors: []string{}}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
