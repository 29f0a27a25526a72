package kernel

import (
	"errors"
	"fmt"
)

// UnsupportedOperatorError names the first node no backend instruction can
// implement.
type UnsupportedOperatorError struct {
	Op       string
	Position int
	Node     string
	Reason   string
}

func (e *UnsupportedOperatorError) Error() string {
	msg := fmt.Sprintf("unsupported operator %s at node %d", e.Op, e.Position)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Node != "" {
		msg += "\n  " + e.Node
	}
	return msg
}

// IsUnsupportedOperator reports whether err wraps an UnsupportedOperatorError.
func IsUnsupportedOperator(err error) bool {
	var ue *UnsupportedOperatorError
	return errors.As(err, &ue)
}

// ShapeError reports a value reaching the kernel compiler without a
// complete static shape.
type ShapeError struct {
	Value string
	Shape string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("kernel: %s has incomplete shape %s", e.Value, e.Shape)
}
