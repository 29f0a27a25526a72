package passes

import (
	"errors"
	"fmt"
)

// FreezeError reports module state that cannot be inlined as constants.
type FreezeError struct {
	Method    string
	Attribute string
	Message   string
}

func (e *FreezeError) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("freeze %s: attribute %q: %s", e.Method, e.Attribute, e.Message)
	}
	return fmt.Sprintf("freeze %s: %s", e.Method, e.Message)
}

// ConfigError reports declared input shapes that do not fit the graph.
type ConfigError struct {
	Input   int
	Message string
}

func (e *ConfigError) Error() string {
	if e.Input >= 0 {
		return fmt.Sprintf("input %d: %s", e.Input, e.Message)
	}
	return e.Message
}

// ShapeError reports a value whose shape is inconsistent or could not be
// inferred statically.
type ShapeError struct {
	Node    int
	Op      string
	Value   string
	Message string
}

func (e *ShapeError) Error() string {
	switch {
	case e.Node >= 0 && e.Value != "":
		return fmt.Sprintf("shape inference: %s (node %d, %s): %s", e.Value, e.Node, e.Op, e.Message)
	case e.Node >= 0:
		return fmt.Sprintf("shape inference: node %d (%s): %s", e.Node, e.Op, e.Message)
	}
	return fmt.Sprintf("shape inference: %s: %s", e.Value, e.Message)
}

// IsFreezeError reports whether err wraps a FreezeError.
func IsFreezeError(err error) bool {
	var fe *FreezeError
	return errors.As(err, &fe)
}

// IsShapeError reports whether err wraps a ShapeError.
func IsShapeError(err error) bool {
	var se *ShapeError
	return errors.As(err, &se)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
