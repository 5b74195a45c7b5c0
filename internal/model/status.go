package model

// Workflow status constants. A workflow only ever moves along the graph
// pending -> running -> {completed, failed}, running -> rolling_back ->
// cancelled, failed -> running (retry) and failed -> rolled_back
// (remediation). completed, cancelled and rolled_back are terminal.
const (
	WorkflowPending     = "pending"
	WorkflowRunning     = "running"
	WorkflowCompleted   = "completed"
	WorkflowFailed      = "failed"
	WorkflowRollingBack = "rolling_back"
	WorkflowRolledBack  = "rolled_back"
	WorkflowCancelled   = "cancelled"
)

// Provisioned service status constants.
const (
	ServicePending    = "pending"
	ServiceActive     = "active"
	ServiceFailed     = "failed"
	ServiceRolledBack = "rolled_back"
	ServiceDeleted    = "deleted"
)

// Step record status constants.
const (
	StepCompleted   = "completed"
	StepCompensated = "compensated"
)

// IsTerminalWorkflowStatus reports whether a workflow in the given status
// can never transition again.
func IsTerminalWorkflowStatus(status string) bool {
	switch status {
	case WorkflowCompleted, WorkflowCancelled, WorkflowRolledBack:
		return true
	}
	return false
}
