// Package store provides the persistence implementations of the workflow
// store contract: postgres for production, memory for tests and
// single-node development.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/saga"
)

// MemoryStore is a mutex-guarded in-memory saga.Store. Records are copied
// on the way in and out so callers never share mutable state with the
// store.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]*model.WorkflowInstance
	services  map[string]*model.ProvisionedService
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*model.WorkflowInstance),
		services:  make(map[string]*model.ProvisionedService),
	}
}

func (s *MemoryStore) CreateWorkflow(ctx context.Context, wf *model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.workflows[wf.ID]; exists {
		return fmt.Errorf("workflow %s already exists", wf.ID)
	}
	s.workflows[wf.ID] = cloneWorkflow(wf)
	return nil
}

func (s *MemoryStore) GetWorkflow(ctx context.Context, id string) (*model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", id, saga.ErrNotFound)
	}
	return cloneWorkflow(wf), nil
}

func (s *MemoryStore) UpdateWorkflow(ctx context.Context, wf *model.WorkflowInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.workflows[wf.ID]
	if !ok {
		return fmt.Errorf("workflow %s: %w", wf.ID, saga.ErrNotFound)
	}
	clone := cloneWorkflow(wf)
	// The cancel flag is owned by RequestCancel; a stale in-memory copy
	// held by the coordinator must not clear it.
	clone.CancelRequested = clone.CancelRequested || stored.CancelRequested
	s.workflows[wf.ID] = clone
	return nil
}

func (s *MemoryStore) ListWorkflows(ctx context.Context, filter saga.ListFilter) ([]model.WorkflowInstance, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*model.WorkflowInstance
	for _, wf := range s.workflows {
		if filter.Status != "" && wf.Status != filter.Status {
			continue
		}
		if filter.TenantID != "" && wf.TenantID != filter.TenantID {
			continue
		}
		all = append(all, wf)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	start := 0
	if filter.Cursor != "" {
		for i, wf := range all {
			if wf.ID == filter.Cursor {
				start = i + 1
				break
			}
		}
	}
	all = all[start:]

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}

	out := make([]model.WorkflowInstance, 0, len(all))
	for _, wf := range all {
		out = append(out, *cloneWorkflow(wf))
	}
	return out, hasMore, nil
}

func (s *MemoryStore) CountWorkflowsByStatus(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, wf := range s.workflows {
		counts[wf.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) RequestCancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return fmt.Errorf("workflow %s: %w", id, saga.ErrNotFound)
	}
	wf.CancelRequested = true
	return nil
}

func (s *MemoryStore) ClearCancelRequest(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[id]
	if !ok {
		return fmt.Errorf("workflow %s: %w", id, saga.ErrNotFound)
	}
	wf.CancelRequested = false
	return nil
}

func (s *MemoryStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return false, fmt.Errorf("workflow %s: %w", id, saga.ErrNotFound)
	}
	return wf.CancelRequested, nil
}

func (s *MemoryStore) CreateService(ctx context.Context, svc *model.ProvisionedService) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.services[svc.ID]; exists {
		return fmt.Errorf("service %s already exists", svc.ID)
	}
	s.services[svc.ID] = cloneService(svc)
	return nil
}

func (s *MemoryStore) GetService(ctx context.Context, id string) (*model.ProvisionedService, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, fmt.Errorf("service %s: %w", id, saga.ErrNotFound)
	}
	return cloneService(svc), nil
}

func (s *MemoryStore) UpdateService(ctx context.Context, svc *model.ProvisionedService) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[svc.ID]; !ok {
		return fmt.Errorf("service %s: %w", svc.ID, saga.ErrNotFound)
	}
	s.services[svc.ID] = cloneService(svc)
	return nil
}

func (s *MemoryStore) LatestFailedWorkflowForService(ctx context.Context, serviceID string) (*model.WorkflowInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *model.WorkflowInstance
	for _, wf := range s.workflows {
		if wf.ServiceID != serviceID || wf.Status != model.WorkflowFailed {
			continue
		}
		if latest == nil || wf.CreatedAt.After(latest.CreatedAt) {
			latest = wf
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("no failed workflow for service %s: %w", serviceID, saga.ErrNotFound)
	}
	return cloneWorkflow(latest), nil
}

func cloneWorkflow(wf *model.WorkflowInstance) *model.WorkflowInstance {
	out := *wf
	out.InputData = cloneMap(wf.InputData)
	out.Context = cloneMap(wf.Context)
	if wf.Steps != nil {
		out.Steps = make([]model.StepRecord, len(wf.Steps))
		for i, step := range wf.Steps {
			out.Steps[i] = step
			out.Steps[i].OutputData = cloneMap(step.OutputData)
			out.Steps[i].CompensationData = cloneMap(step.CompensationData)
		}
	}
	out.ErrorMessage = clonePtr(wf.ErrorMessage)
	out.StartedAt = clonePtr(wf.StartedAt)
	out.CompletedAt = clonePtr(wf.CompletedAt)
	return &out
}

func cloneService(svc *model.ProvisionedService) *model.ProvisionedService {
	out := *svc
	out.IPv4Address = clonePtr(svc.IPv4Address)
	out.IPv6Address = clonePtr(svc.IPv6Address)
	out.DelegatedPrefix = clonePtr(svc.DelegatedPrefix)
	out.IPv4LeaseID = clonePtr(svc.IPv4LeaseID)
	out.IPv6LeaseID = clonePtr(svc.IPv6LeaseID)
	out.IPv6PDLeaseID = clonePtr(svc.IPv6PDLeaseID)
	out.VLANID = clonePtr(svc.VLANID)
	out.InnerVLANID = clonePtr(svc.InnerVLANID)
	out.PONDeviceRef = clonePtr(svc.PONDeviceRef)
	out.Username = clonePtr(svc.Username)
	out.CredentialHash = clonePtr(svc.CredentialHash)
	out.ExternalDeviceID = clonePtr(svc.ExternalDeviceID)
	out.RollbackReason = clonePtr(svc.RollbackReason)
	out.RolledBackAt = clonePtr(svc.RolledBackAt)
	if svc.EquipmentRefs != nil {
		out.EquipmentRefs = append([]string(nil), svc.EquipmentRefs...)
	}
	if svc.RollbackSteps != nil {
		out.RollbackSteps = append([]string(nil), svc.RollbackSteps...)
	}
	return &out
}

func cloneMap[M ~map[string]any](m M) M {
	if m == nil {
		return nil
	}
	out := make(M, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
