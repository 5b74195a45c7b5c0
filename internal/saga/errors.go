package saga

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a workflow or service identifier is unknown.
var ErrNotFound = errors.New("not found")

// ErrNoFailedWorkflow is returned by remediation rollback when a service
// has no failed, not-yet-rolled-back workflow to remediate.
var ErrNoFailedWorkflow = errors.New("no failed workflow eligible for rollback")

// ValidationError reports malformed or inconsistent workflow input. It is
// surfaced before any workflow state is created.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid workflow input: %v", e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StepExecutionError reports a critical step handler failure. By the time
// the caller sees it, compensation has already run and the instance is
// persisted as failed.
type StepExecutionError struct {
	Workflow string
	Step     string
	Err      error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("workflow %s: step %s: %v", e.Workflow, e.Step, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// CompensationError reports a single compensator failure. It is logged and
// aggregated, never escalated to the caller.
type CompensationError struct {
	Step string
	Err  error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensate step %s: %v", e.Step, e.Err)
}

func (e *CompensationError) Unwrap() error { return e.Err }

// RetryExhaustedError is returned when retry is requested on a workflow
// whose retry budget is spent. The instance is not mutated.
type RetryExhaustedError struct {
	WorkflowID string
	RetryCount int
	MaxRetries int
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("workflow %s: retry count %d reached max retries %d",
		e.WorkflowID, e.RetryCount, e.MaxRetries)
}

// InvalidStateTransitionError is returned when an operation is requested
// against a workflow whose current status does not permit it.
type InvalidStateTransitionError struct {
	WorkflowID string
	Status     string
	Operation  string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("workflow %s: cannot %s in status %s",
		e.WorkflowID, e.Operation, e.Status)
}
