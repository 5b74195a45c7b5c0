package model

import "time"

// Workflow type constants. Definitions are registered once at process
// start; there is no dynamic lookup by arbitrary name at runtime.
const (
	WorkflowTypeProvisionSubscriber   = "provision-subscriber"
	WorkflowTypeDeprovisionSubscriber = "deprovision-subscriber"
)

// InputData is the caller-supplied workflow configuration. It is immutable
// after the workflow instance is created.
type InputData map[string]any

// WorkflowInstance is the persisted record of a single saga execution.
// During execution it is owned exclusively by the coordinator; afterwards
// it is read-shared with the facade.
type WorkflowInstance struct {
	ID              string       `json:"id"`
	TenantID        string       `json:"tenant_id"`
	ServiceID       string       `json:"service_id,omitempty"`
	Type            string       `json:"workflow_type"`
	Status          string       `json:"status"`
	InputData       InputData    `json:"input_data"`
	Context         Context      `json:"context"`
	Steps           []StepRecord `json:"steps"`
	RetryCount      int          `json:"retry_count"`
	MaxRetries      int          `json:"max_retries"`
	Initiator       string       `json:"initiator"`
	ErrorMessage    *string      `json:"error_message,omitempty"`
	CancelRequested bool         `json:"cancel_requested"`
	CreatedAt       time.Time    `json:"created_at"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// StepRecord is one completed step of a workflow instance. CompensationData
// is opaque to the coordinator; only the matching compensator interprets it.
// Empty compensation data means there is nothing to undo.
type StepRecord struct {
	Name             string         `json:"name"`
	Status           string         `json:"status"`
	OutputData       map[string]any `json:"output_data,omitempty"`
	CompensationData map[string]any `json:"compensation_data,omitempty"`
	CompletedAt      time.Time      `json:"completed_at"`
}
