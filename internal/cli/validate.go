package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/aotc/internal/config"
	"github.com/roach88/aotc/internal/graph"
	"github.com/roach88/aotc/internal/loader"
	"github.com/roach88/aotc/internal/passes"
	"github.com/roach88/aotc/internal/tensor"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Method    string
	InputDims string
}

// ValidationError is one problem found in a model.
type ValidationError struct {
	Code    string `json:"code"`
	Method  string `json:"method,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// MethodSignature lists a method's parameter types.
type MethodSignature struct {
	Name   string   `json:"name"`
	Inputs []string `json:"inputs"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Class   string            `json:"class,omitempty"`
	Methods []MethodSignature `json:"methods,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <model>",
		Short: "Check a model without compiling it",
		Long: `Check that a model file loads, that every method graph is well formed
and that the model can be frozen. With --input-dims the declared sizes are
also checked against the method signature.

No optimization pass runs and nothing is written.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Method, "method", "forward", "method the input dims apply to")
	cmd.Flags().StringVar(&opts.InputDims, "input-dims", "", "input sizes to check against the method signature")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("model file not found: %s", path), nil)
	}
	m, err := loader.Load(path)
	if err != nil {
		var le *loader.LoadError
		if errors.As(err, &le) && le.Pos.IsValid() {
			return outputValidationErrors(formatter, ValidationResult{}, []ValidationError{{
				Code: ErrCodeLoadFailed, Message: le.Message, Line: le.Pos.Line(),
			}})
		}
		return outputValidateError(formatter, ErrCodeLoadFailed, err.Error(), nil)
	}

	result := ValidationResult{Class: m.Class}
	for _, name := range m.MethodNames() {
		formatter.VerboseLog("Validating method: %s", name)
		g := m.Methods[name]
		result.Methods = append(result.Methods, signatureOf(name, g))
		if err := graph.Validate(g); err != nil {
			result.Errors = append(result.Errors, validationErrorOf(name, err))
		}
	}

	if opts.InputDims != "" {
		if err := checkSignature(m, opts.Method, opts.InputDims); err != nil {
			result.Errors = append(result.Errors, ValidationError{Code: ErrCodeConfiguration, Method: opts.Method, Message: err.Error()})
		}
	}

	if len(result.Errors) == 0 {
		formatter.VerboseLog("Freezing %s", m.Class)
		if _, err := passes.Freeze(m); err != nil {
			result.Errors = append(result.Errors, ValidationError{Code: ErrCodeFreezing, Message: err.Error()})
		}
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result, result.Errors)
	}
	result.Valid = true
	return outputValidateSuccess(formatter, result)
}

func signatureOf(name string, g *graph.Graph) MethodSignature {
	sig := MethodSignature{Name: name, Inputs: []string{}}
	for _, in := range g.Inputs {
		sig.Inputs = append(sig.Inputs, fmt.Sprintf("%s : %s", in, in.Type))
	}
	return sig
}

func validationErrorOf(method string, err error) ValidationError {
	var ve *graph.ValidationError
	if errors.As(err, &ve) {
		return ValidationError{Code: ve.Code, Method: method, Message: ve.Message}
	}
	return ValidationError{Code: ErrCodeGeneric, Method: method, Message: err.Error()}
}

// checkSignature checks declared input dims against a method signature.
func checkSignature(m *graph.Module, method, dims string) error {
	sizes, err := config.ParseInputDims(dims)
	if err != nil {
		return err
	}
	meth, err := m.Method(method)
	if err != nil {
		return err
	}
	shapes := make([]tensor.Shape, len(sizes))
	for i, s := range sizes {
		shapes[i] = tensor.Shape(s)
	}
	return passes.CheckInputShapes(meth.Graph, shapes)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintln(formatter.Writer, formatter.Pass(fmt.Sprintf("%s is valid", result.Class)))
	for _, sig := range result.Methods {
		fmt.Fprintf(formatter.Writer, "  %s(%s)\n", sig.Name, strings.Join(sig.Inputs, ", "))
	}
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details interface{}) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult, errs []ValidationError) error {
	result.Valid = false
	result.Errors = errs
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, formatter.Fail("Validation failed"))
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		if err.Method != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Method, err.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
		}
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
