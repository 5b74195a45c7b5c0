package saga

import (
	"context"

	"github.com/edvin/provisioning/internal/model"
)

// ListFilter narrows and pages List results. Cursor is the id of the last
// workflow of the previous page.
type ListFilter struct {
	Status   string
	TenantID string
	Cursor   string
	Limit    int
}

// Store persists workflow instances and provisioned service records.
// Implementations must honour single-writer discipline per instance: only
// the coordinator (or, exclusively, remediation) mutates a record, while
// readers may observe any valid intermediate state.
type Store interface {
	CreateWorkflow(ctx context.Context, wf *model.WorkflowInstance) error
	GetWorkflow(ctx context.Context, id string) (*model.WorkflowInstance, error)
	UpdateWorkflow(ctx context.Context, wf *model.WorkflowInstance) error
	ListWorkflows(ctx context.Context, filter ListFilter) ([]model.WorkflowInstance, bool, error)
	CountWorkflowsByStatus(ctx context.Context) (map[string]int, error)

	// RequestCancel marks a cancellation request without touching any other
	// field, so it is safe against a concurrently executing coordinator.
	// UpdateWorkflow never clears the flag; only ClearCancelRequest does,
	// when a retry restarts the instance.
	RequestCancel(ctx context.Context, id string) error
	ClearCancelRequest(ctx context.Context, id string) error
	CancelRequested(ctx context.Context, id string) (bool, error)

	CreateService(ctx context.Context, svc *model.ProvisionedService) error
	GetService(ctx context.Context, id string) (*model.ProvisionedService, error)
	UpdateService(ctx context.Context, svc *model.ProvisionedService) error

	// LatestFailedWorkflowForService returns the most recent failed,
	// not-yet-rolled-back workflow bound to the service, or ErrNotFound.
	LatestFailedWorkflowForService(ctx context.Context, serviceID string) (*model.WorkflowInstance, error)
}
