// Package core exposes the orchestration operations used by the
// surrounding application: submit, inspect, retry, cancel and remediate
// workflows.
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/platform"
	"github.com/edvin/provisioning/internal/remediation"
	"github.com/edvin/provisioning/internal/saga"
)

// WorkflowService is the orchestration facade. Execution failures are both
// recorded on the persisted instance and returned to the caller, so a
// failed submit is observed synchronously while the instance stays
// inspectable and retryable afterwards.
type WorkflowService struct {
	store             saga.Store
	registry          *saga.Registry
	coordinator       *saga.Coordinator
	remediator        *remediation.Remediator
	logger            zerolog.Logger
	defaultMaxRetries int
}

func NewWorkflowService(store saga.Store, registry *saga.Registry, coordinator *saga.Coordinator, remediator *remediation.Remediator, logger zerolog.Logger, defaultMaxRetries int) *WorkflowService {
	if defaultMaxRetries <= 0 {
		defaultMaxRetries = 3
	}
	return &WorkflowService{
		store:             store,
		registry:          registry,
		coordinator:       coordinator,
		remediator:        remediator,
		logger:            logger.With().Str("component", "workflow-service").Logger(),
		defaultMaxRetries: defaultMaxRetries,
	}
}

// Submit validates input, persists a new workflow instance and executes it
// to completion. Validation failures surface before any workflow state is
// created. The returned instance is always populated when an id was
// assigned, even on execution failure.
func (s *WorkflowService) Submit(ctx context.Context, tenantID, workflowType string, input model.InputData, initiator string) (*model.WorkflowInstance, error) {
	def, err := s.registry.Resolve(workflowType)
	if err != nil {
		return nil, &saga.ValidationError{Err: err}
	}
	if def.ValidateInput != nil {
		if verr := def.ValidateInput(input); verr != nil {
			return nil, &saga.ValidationError{Err: verr}
		}
	}

	serviceID := ""
	if def.Prepare != nil {
		serviceID, err = def.Prepare(ctx, tenantID, input)
		if err != nil {
			return nil, fmt.Errorf("prepare workflow: %w", err)
		}
	}

	wfInput := make(model.InputData, len(input)+1)
	for k, v := range input {
		wfInput[k] = v
	}
	if serviceID != "" {
		wfInput["service_id"] = serviceID
	}

	now := time.Now().UTC()
	wf := &model.WorkflowInstance{
		ID:         platform.NewID(),
		TenantID:   tenantID,
		ServiceID:  serviceID,
		Type:       workflowType,
		Status:     model.WorkflowPending,
		InputData:  wfInput,
		Context:    model.Context{},
		MaxRetries: s.defaultMaxRetries,
		Initiator:  initiator,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}

	execErr := s.coordinator.Execute(ctx, wf)
	s.finalizeService(ctx, wf)
	return wf, execErr
}

// Get returns a workflow instance by id.
func (s *WorkflowService) Get(ctx context.Context, id string) (*model.WorkflowInstance, error) {
	return s.store.GetWorkflow(ctx, id)
}

// GetService returns a provisioned service record by id.
func (s *WorkflowService) GetService(ctx context.Context, id string) (*model.ProvisionedService, error) {
	return s.store.GetService(ctx, id)
}

// List returns workflow instances matching the filter plus a has-more
// flag for cursor pagination.
func (s *WorkflowService) List(ctx context.Context, filter saga.ListFilter) ([]model.WorkflowInstance, bool, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return s.store.ListWorkflows(ctx, filter)
}

// Retry re-executes a failed workflow's entire step sequence from the
// start. At the retry limit it fails with RetryExhaustedError without
// mutating the instance.
func (s *WorkflowService) Retry(ctx context.Context, id string) (*model.WorkflowInstance, error) {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if wf.Status != model.WorkflowFailed {
		return nil, &saga.InvalidStateTransitionError{WorkflowID: id, Status: wf.Status, Operation: "retry"}
	}
	if wf.RetryCount >= wf.MaxRetries {
		return nil, &saga.RetryExhaustedError{WorkflowID: id, RetryCount: wf.RetryCount, MaxRetries: wf.MaxRetries}
	}

	now := time.Now().UTC()
	wf.RetryCount++
	wf.Status = model.WorkflowRunning
	wf.Steps = nil
	wf.Context = model.Context{}
	wf.ErrorMessage = nil
	wf.CancelRequested = false
	wf.StartedAt = &now
	wf.CompletedAt = nil
	wf.UpdatedAt = now
	if err := s.store.ClearCancelRequest(ctx, id); err != nil {
		return nil, fmt.Errorf("reset cancel flag of workflow %s: %w", id, err)
	}
	if err := s.store.UpdateWorkflow(ctx, wf); err != nil {
		return nil, fmt.Errorf("persist retry of workflow %s: %w", id, err)
	}

	s.logger.Info().Str("workflow_id", id).Int("retry_count", wf.RetryCount).Msg("workflow retry")
	execErr := s.coordinator.Execute(ctx, wf)
	s.finalizeService(ctx, wf)
	return wf, execErr
}

// Cancel requests cancellation. A pending instance is cancelled outright;
// a running one has the request recorded for the coordinator to observe
// after the current step returns. Anything else is an invalid transition.
func (s *WorkflowService) Cancel(ctx context.Context, id string) error {
	wf, err := s.store.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}

	switch wf.Status {
	case model.WorkflowPending:
		now := time.Now().UTC()
		wf.Status = model.WorkflowCancelled
		wf.CompletedAt = &now
		wf.UpdatedAt = now
		if err := s.store.UpdateWorkflow(ctx, wf); err != nil {
			return fmt.Errorf("persist cancel of workflow %s: %w", id, err)
		}
		return nil
	case model.WorkflowRunning:
		if err := s.store.RequestCancel(ctx, id); err != nil {
			return fmt.Errorf("request cancel of workflow %s: %w", id, err)
		}
		return nil
	default:
		return &saga.InvalidStateTransitionError{WorkflowID: id, Status: wf.Status, Operation: "cancel"}
	}
}

// ResumePending executes workflow instances left pending by a previous
// process. IDs are collected up front so that pagination is not disturbed
// by instances changing status mid-scan.
func (s *WorkflowService) ResumePending(ctx context.Context) error {
	var ids []string
	var cursor string
	for {
		page, hasMore, err := s.store.ListWorkflows(ctx, saga.ListFilter{Status: model.WorkflowPending, Cursor: cursor, Limit: 100})
		if err != nil {
			return fmt.Errorf("list pending workflows: %w", err)
		}
		for _, wf := range page {
			ids = append(ids, wf.ID)
		}
		if !hasMore || len(page) == 0 {
			break
		}
		cursor = page[len(page)-1].ID
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wf, err := s.store.GetWorkflow(ctx, id)
		if err != nil {
			s.logger.Warn().Err(err).Str("workflow_id", id).Msg("resume: load")
			continue
		}
		if wf.Status != model.WorkflowPending {
			continue
		}
		s.logger.Info().Str("workflow_id", id).Str("type", wf.Type).Msg("resuming pending workflow")
		if err := s.coordinator.Execute(ctx, wf); err != nil {
			s.logger.Error().Err(err).Str("workflow_id", id).Msg("resumed workflow failed")
		}
		s.finalizeService(ctx, wf)
	}
	return nil
}

// Statistics returns workflow counts by status.
func (s *WorkflowService) Statistics(ctx context.Context) (map[string]int, error) {
	return s.store.CountWorkflowsByStatus(ctx)
}

// Rollback remediates a service whose provisioning already terminated as
// failed, releasing whatever resources are still attached.
func (s *WorkflowService) Rollback(ctx context.Context, tenantID, serviceID, reason string) (*remediation.Result, error) {
	return s.remediator.Rollback(ctx, serviceID, tenantID, reason)
}

// finalizeService moves the bound service record to its final status once
// the workflow has terminated. Best-effort: the workflow outcome already
// carries the authoritative result.
func (s *WorkflowService) finalizeService(ctx context.Context, wf *model.WorkflowInstance) {
	if wf.ServiceID == "" {
		return
	}
	svc, err := s.store.GetService(ctx, wf.ServiceID)
	if err != nil {
		s.logger.Warn().Err(err).Str("service_id", wf.ServiceID).Msg("finalize service: load")
		return
	}

	switch {
	case wf.Status == model.WorkflowCompleted && wf.Type == model.WorkflowTypeProvisionSubscriber:
		svc.Status = model.ServiceActive
	case wf.Status == model.WorkflowCompleted && wf.Type == model.WorkflowTypeDeprovisionSubscriber:
		svc.Status = model.ServiceDeleted
	case wf.Status == model.WorkflowFailed, wf.Status == model.WorkflowCancelled:
		svc.Status = model.ServiceFailed
	default:
		return
	}

	svc.UpdatedAt = time.Now().UTC()
	if err := s.store.UpdateService(ctx, svc); err != nil {
		s.logger.Warn().Err(err).Str("service_id", wf.ServiceID).Msg("finalize service: update")
	}
}
