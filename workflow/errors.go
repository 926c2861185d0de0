package workflow

import "fmt"

// ValidationError reports a graph configuration problem detected before any
// node executes: an unknown state reference, a join dependency that can never
// arrive, a malformed condition, or a structurally invalid definition.
type ValidationError struct {
	msg string
}

func newValidationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return "workflow validation: " + e.msg
}

// InvalidTransitionError reports that a condition or caller referenced a
// state that has not produced any output yet. This is a configuration error,
// not a "not ready" signal, and it aborts the current run.
type InvalidTransitionError struct {
	State  string
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: state %q: %s", e.State, e.Reason)
}

// WorkflowErrorKind classifies a WorkflowError.
type WorkflowErrorKind string

const (
	// ErrKindNodeExecution indicates the node's executor returned an error.
	ErrKindNodeExecution WorkflowErrorKind = "node_execution"
	// ErrKindShapeMismatch indicates a batch call returned a result count
	// different from the input count.
	ErrKindShapeMismatch WorkflowErrorKind = "shape_mismatch"
)

// WorkflowError reports a runtime failure during node execution. The run is
// aborted, but the partial results and run log accumulated up to the failure
// point remain inspectable by the caller.
type WorkflowError struct {
	State string
	Kind  WorkflowErrorKind
	Err   error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow: state %q: %s: %v", e.State, e.Kind, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}
