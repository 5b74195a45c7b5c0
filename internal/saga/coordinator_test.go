package saga_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/provisioning/internal/model"
	"github.com/edvin/provisioning/internal/saga"
	"github.com/edvin/provisioning/internal/store"
)

// fakeHandler records invocations and returns a canned result or error.
type fakeHandler struct {
	name   string
	err    error
	result *saga.StepResult
	calls  *[]string
	onCall func(ctx context.Context)
}

func (h *fakeHandler) Execute(ctx context.Context, input model.InputData, wfctx model.Context) (*saga.StepResult, error) {
	if h.calls != nil {
		*h.calls = append(*h.calls, "exec:"+h.name)
	}
	if h.onCall != nil {
		h.onCall(ctx)
	}
	if h.err != nil {
		return nil, h.err
	}
	if h.result != nil {
		return h.result, nil
	}
	return &saga.StepResult{}, nil
}

// fakeCompensator records invocations in a shared call log.
type fakeCompensator struct {
	name  string
	err   error
	calls *[]string
	data  []map[string]any
}

func (c *fakeCompensator) Compensate(ctx context.Context, data map[string]any) error {
	if c.calls != nil {
		*c.calls = append(*c.calls, "comp:"+c.name)
	}
	c.data = append(c.data, data)
	return c.err
}

func newTestWorkflow(t *testing.T, st saga.Store, workflowType string) *model.WorkflowInstance {
	t.Helper()
	now := time.Now().UTC()
	wf := &model.WorkflowInstance{
		ID:         "wf-" + t.Name(),
		TenantID:   "tenant-1",
		Type:       workflowType,
		Status:     model.WorkflowPending,
		InputData:  model.InputData{},
		Context:    model.Context{},
		MaxRetries: 3,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, st.CreateWorkflow(context.Background(), wf))
	return wf
}

func TestCoordinator_Execute_Completes(t *testing.T) {
	st := store.NewMemoryStore()
	var calls []string

	registry := saga.NewRegistry()
	registry.Register(&saga.Definition{
		Type: "two-step",
		Steps: []saga.StepSpec{
			{
				Name:     "first",
				Critical: true,
				Handler: &fakeHandler{name: "first", calls: &calls, result: &saga.StepResult{
					Output:           map[string]any{"ref": "r1"},
					ContextUpdates:   map[string]any{"ref": "r1"},
					CompensationData: map[string]any{"undo": "r1"},
				}},
				Compensator: &fakeCompensator{name: "first", calls: &calls},
			},
			{
				Name:     "second",
				Critical: true,
				Handler: &fakeHandler{name: "second", calls: &calls, result: &saga.StepResult{
					ContextUpdates: map[string]any{"ref2": "r2"},
				}},
			},
		},
	})
	c := saga.NewCoordinator(st, registry, zerolog.Nop(), 4)
	wf := newTestWorkflow(t, st, "two-step")

	err := c.Execute(context.Background(), wf)
	require.NoError(t, err)

	assert.Equal(t, []string{"exec:first", "exec:second"}, calls)

	stored, err := st.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowCompleted, stored.Status)
	require.NotNil(t, stored.StartedAt)
	require.NotNil(t, stored.CompletedAt)
	require.Len(t, stored.Steps, 2)
	assert.Equal(t, "first", stored.Steps[0].Name)
	assert.Equal(t, model.StepCompleted, stored.Steps[0].Status)
	assert.Equal(t, map[string]any{"undo": "r1"}, stored.Steps[0].CompensationData)
	assert.Equal(t, "r1", stored.Context["ref"])
	assert.Equal(t, "r2", stored.Context["ref2"])
}

func TestCoordinator_Execute_CriticalFailureCompensatesInReverse(t *testing.T) {
	st := store.NewMemoryStore()
	var calls []string
	boom := errors.New("pon controller unreachable")

	registry := saga.NewRegistry()
	registry.Register(&saga.Definition{
		Type: "three-step",
		Steps: []saga.StepSpec{
			{
				Name:     "first",
				Critical: true,
				Handler: &fakeHandler{name: "first", calls: &calls, result: &saga.StepResult{
					CompensationData: map[string]any{"lease": "l1"},
				}},
				Compensator: &fakeCompensator{name: "first", calls: &calls},
			},
			{
				Name:        "second",
				Critical:    true,
				Handler:     &fakeHandler{name: "second", calls: &calls, result: &saga.StepResult{}},
				Compensator: &fakeCompensator{name: "second", calls: &calls},
			},
			{
				Name:        "third",
				Critical:    true,
				Handler:     &fakeHandler{name: "third", calls: &calls, err: boom},
				Compensator: &fakeCompensator{name: "third", calls: &calls},
			},
		},
	})
	c := saga.NewCoordinator(st, registry, zerolog.Nop(), 4)
	wf := newTestWorkflow(t, st, "three-step")

	err := c.Execute(context.Background(), wf)
	require.Error(t, err)

	var stepErr *saga.StepExecutionError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "third", stepErr.Step)
	assert.Equal(t, wf.ID, stepErr.Workflow)

	// Completed steps unwind newest first; the failed step never ran to
	// completion and is not compensated.
	assert.Equal(t, []string{"exec:first", "exec:second", "exec:third", "comp:second", "comp:first"}, calls)

	stored, err := st.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "unreachable")
	require.Len(t, stored.Steps, 2)
	assert.Equal(t, model.StepCompensated, stored.Steps[0].Status)
	assert.Equal(t, model.StepCompensated, stored.Steps[1].Status)
}

func TestCoordinator_Execute_BestEffortFailureContinues(t *testing.T) {
	st := store.NewMemoryStore()
	var calls []string

	registry := saga.NewRegistry()
	registry.Register(&saga.Definition{
		Type: "with-best-effort",
		Steps: []saga.StepSpec{
			{
				Name:     "critical",
				Critical: true,
				Handler:  &fakeHandler{name: "critical", calls: &calls, result: &saga.StepResult{}},
			},
			{
				Name:    "optional",
				Handler: &fakeHandler{name: "optional", calls: &calls, err: errors.New("archive down")},
			},
			{
				Name:     "last",
				Critical: true,
				Handler:  &fakeHandler{name: "last", calls: &calls, result: &saga.StepResult{}},
			},
		},
	})
	c := saga.NewCoordinator(st, registry, zerolog.Nop(), 4)
	wf := newTestWorkflow(t, st, "with-best-effort")

	err := c.Execute(context.Background(), wf)
	require.NoError(t, err)

	assert.Equal(t, []string{"exec:critical", "exec:optional", "exec:last"}, calls)

	stored, err := st.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowCompleted, stored.Status)
	assert.Equal(t, "archive down", stored.Context["warning_optional"])

	// The failed best-effort step leaves no step record.
	require.Len(t, stored.Steps, 2)
	assert.Equal(t, "critical", stored.Steps[0].Name)
	assert.Equal(t, "last", stored.Steps[1].Name)
}

func TestCoordinator_Execute_ContextFirstWriteWins(t *testing.T) {
	st := store.NewMemoryStore()

	registry := saga.NewRegistry()
	registry.Register(&saga.Definition{
		Type: "conflicting-writes",
		Steps: []saga.StepSpec{
			{
				Name:     "first",
				Critical: true,
				Handler: &fakeHandler{name: "first", result: &saga.StepResult{
					ContextUpdates: map[string]any{"shared": "original"},
				}},
			},
			{
				Name:     "second",
				Critical: true,
				Handler: &fakeHandler{name: "second", result: &saga.StepResult{
					ContextUpdates: map[string]any{"shared": "usurper", "own": "v"},
				}},
			},
		},
	})
	c := saga.NewCoordinator(st, registry, zerolog.Nop(), 4)
	wf := newTestWorkflow(t, st, "conflicting-writes")

	require.NoError(t, c.Execute(context.Background(), wf))

	stored, err := st.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", stored.Context["shared"])
	assert.Equal(t, "v", stored.Context["own"])
}

func TestCoordinator_Execute_CancelObservedBetweenSteps(t *testing.T) {
	st := store.NewMemoryStore()
	var calls []string

	registry := saga.NewRegistry()
	var wfID string
	registry.Register(&saga.Definition{
		Type: "cancellable",
		Steps: []saga.StepSpec{
			{
				Name:     "first",
				Critical: true,
				Handler: &fakeHandler{
					name:  "first",
					calls: &calls,
					result: &saga.StepResult{
						CompensationData: map[string]any{"lease": "l1"},
					},
					onCall: func(ctx context.Context) {
						// Operator cancels while the first step is in flight.
						require.NoError(t, st.RequestCancel(ctx, wfID))
					},
				},
				Compensator: &fakeCompensator{name: "first", calls: &calls},
			},
			{
				Name:     "second",
				Critical: true,
				Handler:  &fakeHandler{name: "second", calls: &calls, result: &saga.StepResult{}},
			},
		},
	})
	c := saga.NewCoordinator(st, registry, zerolog.Nop(), 4)
	wf := newTestWorkflow(t, st, "cancellable")
	wfID = wf.ID

	err := c.Execute(context.Background(), wf)
	require.NoError(t, err)

	// The in-flight step ran to completion, was compensated, and the
	// second step never started.
	assert.Equal(t, []string{"exec:first", "comp:first"}, calls)

	stored, err := st.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowCancelled, stored.Status)
	require.NotNil(t, stored.CompletedAt)
	require.Len(t, stored.Steps, 1)
	assert.Equal(t, model.StepCompensated, stored.Steps[0].Status)
}

func TestCoordinator_Execute_CancelBeforeFirstStep(t *testing.T) {
	st := store.NewMemoryStore()
	var calls []string

	registry := saga.NewRegistry()
	registry.Register(&saga.Definition{
		Type: "cancel-early",
		Steps: []saga.StepSpec{
			{
				Name:     "first",
				Critical: true,
				Handler:  &fakeHandler{name: "first", calls: &calls, result: &saga.StepResult{}},
			},
		},
	})
	c := saga.NewCoordinator(st, registry, zerolog.Nop(), 4)
	wf := newTestWorkflow(t, st, "cancel-early")
	require.NoError(t, st.RequestCancel(context.Background(), wf.ID))

	require.NoError(t, c.Execute(context.Background(), wf))

	assert.Empty(t, calls)
	stored, err := st.GetWorkflow(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, model.WorkflowCancelled, stored.Status)
	assert.Empty(t, stored.Steps)
}

func TestCoordinator_Execute_TerminalStatusRejected(t *testing.T) {
	st := store.NewMemoryStore()

	registry := saga.NewRegistry()
	registry.Register(&saga.Definition{
		Type: "simple",
		Steps: []saga.StepSpec{
			{Name: "first", Critical: true, Handler: &fakeHandler{name: "first"}},
		},
	})
	c := saga.NewCoordinator(st, registry, zerolog.Nop(), 4)
	wf := newTestWorkflow(t, st, "simple")
	wf.Status = model.WorkflowCompleted
	require.NoError(t, st.UpdateWorkflow(context.Background(), wf))

	err := c.Execute(context.Background(), wf)

	var transErr *saga.InvalidStateTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, "execute", transErr.Operation)
}

func TestCoordinator_Execute_UnknownTypeRejected(t *testing.T) {
	st := store.NewMemoryStore()
	c := saga.NewCoordinator(st, saga.NewRegistry(), zerolog.Nop(), 4)
	wf := newTestWorkflow(t, st, "never-registered")

	err := c.Execute(context.Background(), wf)
	assert.True(t, errors.Is(err, saga.ErrNotFound))
}
