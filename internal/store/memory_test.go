package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/saga"
)

func newWorkflow(id string, createdAt time.Time) *model.WorkflowInstance {
	return &model.WorkflowInstance{
		ID:        id,
		TenantID:  "tenant-1",
		Type:      model.WorkflowTypeProvisionSubscriber,
		Status:    model.WorkflowPending,
		InputData: model.InputData{},
		Context:   model.Context{},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestMemoryStore_WorkflowCRUD(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	wf := newWorkflow("wf-1", time.Now().UTC())

	require.NoError(t, s.CreateWorkflow(ctx, wf))
	assert.Error(t, s.CreateWorkflow(ctx, wf))

	got, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, wf.ID, got.ID)

	got.Status = model.WorkflowRunning
	require.NoError(t, s.UpdateWorkflow(ctx, got))
	updated, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowRunning, updated.Status)

	_, err = s.GetWorkflow(ctx, "wf-missing")
	assert.True(t, errors.Is(err, saga.ErrNotFound))
	assert.True(t, errors.Is(s.UpdateWorkflow(ctx, newWorkflow("wf-missing", time.Now())), saga.ErrNotFound))
}

func TestMemoryStore_GetWorkflow_ReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	wf := newWorkflow("wf-1", time.Now().UTC())
	wf.Context["k"] = "v"
	require.NoError(t, s.CreateWorkflow(ctx, wf))

	got, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	got.Context["k"] = "mutated"
	got.Steps = append(got.Steps, model.StepRecord{Name: "rogue"})

	again, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Context["k"])
	assert.Empty(t, again.Steps)
}

func TestMemoryStore_CancelFlagSurvivesStaleUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	wf := newWorkflow("wf-1", time.Now().UTC())
	require.NoError(t, s.CreateWorkflow(ctx, wf))

	// The coordinator holds a copy from before the cancel request.
	stale, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)

	require.NoError(t, s.RequestCancel(ctx, "wf-1"))

	stale.Status = model.WorkflowRunning
	require.NoError(t, s.UpdateWorkflow(ctx, stale))

	requested, err := s.CancelRequested(ctx, "wf-1")
	require.NoError(t, err)
	assert.True(t, requested)
}

func TestMemoryStore_ClearCancelRequest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateWorkflow(ctx, newWorkflow("wf-1", time.Now().UTC())))
	require.NoError(t, s.RequestCancel(ctx, "wf-1"))

	require.NoError(t, s.ClearCancelRequest(ctx, "wf-1"))

	requested, err := s.CancelRequested(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, requested)
}

func TestMemoryStore_ListWorkflows_FilterAndPagination(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		wf := newWorkflow(fmt.Sprintf("wf-%d", i), base.Add(time.Duration(i)*time.Second))
		if i%2 == 1 {
			wf.Status = model.WorkflowCompleted
		}
		require.NoError(t, s.CreateWorkflow(ctx, wf))
	}

	pending, hasMore, err := s.ListWorkflows(ctx, saga.ListFilter{Status: model.WorkflowPending})
	require.NoError(t, err)
	assert.False(t, hasMore)
	assert.Len(t, pending, 3)

	page1, hasMore, err := s.ListWorkflows(ctx, saga.ListFilter{Limit: 2})
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, page1, 2)
	assert.Equal(t, "wf-0", page1[0].ID)
	assert.Equal(t, "wf-1", page1[1].ID)

	page2, hasMore, err := s.ListWorkflows(ctx, saga.ListFilter{Limit: 2, Cursor: page1[1].ID})
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, page2, 2)
	assert.Equal(t, "wf-2", page2[0].ID)

	page3, hasMore, err := s.ListWorkflows(ctx, saga.ListFilter{Limit: 2, Cursor: page2[1].ID})
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, page3, 1)
	assert.Equal(t, "wf-4", page3[0].ID)
}

func TestMemoryStore_ListWorkflows_TenantFilter(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	wf := newWorkflow("wf-1", time.Now().UTC())
	require.NoError(t, s.CreateWorkflow(ctx, wf))
	other := newWorkflow("wf-2", time.Now().UTC())
	other.TenantID = "tenant-2"
	require.NoError(t, s.CreateWorkflow(ctx, other))

	got, _, err := s.ListWorkflows(ctx, saga.ListFilter{TenantID: "tenant-2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "wf-2", got[0].ID)
}

func TestMemoryStore_CountWorkflowsByStatus(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i, status := range []string{model.WorkflowPending, model.WorkflowPending, model.WorkflowFailed} {
		wf := newWorkflow(fmt.Sprintf("wf-%d", i), time.Now().UTC())
		wf.Status = status
		require.NoError(t, s.CreateWorkflow(ctx, wf))
	}

	counts, err := s.CountWorkflowsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		model.WorkflowPending: 2,
		model.WorkflowFailed:  1,
	}, counts)
}

func TestMemoryStore_ServiceCRUD(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()
	svc := &model.ProvisionedService{
		ID:        "svc-1",
		TenantID:  "tenant-1",
		Status:    model.ServicePending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	require.NoError(t, s.CreateService(ctx, svc))
	assert.Error(t, s.CreateService(ctx, svc))

	got, err := s.GetService(ctx, "svc-1")
	require.NoError(t, err)

	addr := "198.51.100.10/31"
	got.IPv4Address = &addr
	require.NoError(t, s.UpdateService(ctx, got))

	// Mutating the caller's pointer must not leak into the store.
	*got.IPv4Address = "tampered"
	stored, err := s.GetService(ctx, "svc-1")
	require.NoError(t, err)
	require.NotNil(t, stored.IPv4Address)
	assert.Equal(t, "198.51.100.10/31", *stored.IPv4Address)

	_, err = s.GetService(ctx, "svc-missing")
	assert.True(t, errors.Is(err, saga.ErrNotFound))
}

func TestMemoryStore_LatestFailedWorkflowForService(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()

	older := newWorkflow("wf-old", base.Add(-time.Hour))
	older.ServiceID = "svc-1"
	older.Status = model.WorkflowFailed
	require.NoError(t, s.CreateWorkflow(ctx, older))

	newer := newWorkflow("wf-new", base)
	newer.ServiceID = "svc-1"
	newer.Status = model.WorkflowFailed
	require.NoError(t, s.CreateWorkflow(ctx, newer))

	unrelated := newWorkflow("wf-other", base)
	unrelated.ServiceID = "svc-2"
	unrelated.Status = model.WorkflowFailed
	require.NoError(t, s.CreateWorkflow(ctx, unrelated))

	got, err := s.LatestFailedWorkflowForService(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-new", got.ID)

	// Once remediated, nothing is eligible any more.
	got.Status = model.WorkflowRolledBack
	require.NoError(t, s.UpdateWorkflow(ctx, got))
	newer2, err := s.LatestFailedWorkflowForService(ctx, "svc-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-old", newer2.ID)
}
