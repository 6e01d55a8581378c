package stepflow

import (
	"errors"
	"fmt"
)

// Sentinel errors for flow execution.
var (
	// ErrNoHandler indicates no handler is registered for a step's type.
	ErrNoHandler = errors.New("no handler registered for step type")

	// ErrFlowInvalid indicates a Runner was given a flow that fails
	// validation.
	ErrFlowInvalid = errors.New("flow failed validation")
)

// StepError wraps an error with step context. The underlying error is
// preserved unchanged for errors.Is/As so drivers can decide how to
// proceed.
type StepError struct {
	// StepID is the identifier of the step that failed.
	StepID string
	// Err is the underlying error from the step's handler.
	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.StepID, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StepError) Unwrap() error {
	return e.Err
}
