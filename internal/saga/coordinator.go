package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/edvin/provisioning/internal/metrics"
	"github.com/edvin/provisioning/internal/model"
)

// Coordinator executes workflow definitions against persisted instances.
// Steps run strictly sequentially; each step's input may depend on context
// written by an earlier step. Distinct instances are independent and may
// execute concurrently, capped by the semaphore.
type Coordinator struct {
	store    Store
	registry *Registry
	comp     *CompensationManager
	logger   zerolog.Logger
	sem      *semaphore.Weighted
}

func NewCoordinator(store Store, registry *Registry, logger zerolog.Logger, maxConcurrent int64) *Coordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = 16
	}
	return &Coordinator{
		store:    store,
		registry: registry,
		comp:     NewCompensationManager(logger),
		logger:   logger.With().Str("component", "coordinator").Logger(),
		sem:      semaphore.NewWeighted(maxConcurrent),
	}
}

// Execute runs the instance's full step sequence. The instance must be
// pending, or running when re-entered via retry. Critical step failures
// compensate completed steps in reverse order, persist the instance as
// failed and are returned to the caller. Cancellation is cooperative and
// observed between steps.
func (c *Coordinator) Execute(ctx context.Context, wf *model.WorkflowInstance) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire execution slot: %w", err)
	}
	defer c.sem.Release(1)

	def, err := c.registry.Resolve(wf.Type)
	if err != nil {
		return err
	}

	switch wf.Status {
	case model.WorkflowPending:
		now := time.Now().UTC()
		wf.Status = model.WorkflowRunning
		wf.StartedAt = &now
	case model.WorkflowRunning:
		// Retry path: the facade already moved the instance back to running.
	default:
		return &InvalidStateTransitionError{WorkflowID: wf.ID, Status: wf.Status, Operation: "execute"}
	}
	if err := c.persist(ctx, wf); err != nil {
		return err
	}

	logger := c.logger.With().
		Str("workflow_id", wf.ID).
		Str("workflow_type", wf.Type).
		Logger()
	logger.Info().Int("retry_count", wf.RetryCount).Msg("workflow execution started")
	metrics.WorkflowsStarted.WithLabelValues(wf.Type).Inc()
	start := time.Now()

	for _, spec := range def.Steps {
		cancelled, err := c.store.CancelRequested(ctx, wf.ID)
		if err != nil {
			logger.Warn().Err(err).Msg("cancel check failed, continuing")
		} else if cancelled {
			return c.cancelRunning(ctx, def, wf, logger)
		}

		res, err := spec.Handler.Execute(ctx, wf.InputData, wf.Context)
		if err != nil {
			if !spec.Critical {
				logger.Warn().Err(err).Str("step", spec.Name).Msg("best-effort step failed")
				wf.Context["warning_"+spec.Name] = err.Error()
				if perr := c.persist(ctx, wf); perr != nil {
					return perr
				}
				continue
			}
			return c.fail(ctx, def, wf, spec.Name, err, logger)
		}

		if skipped := wf.Context.Merge(res.ContextUpdates); len(skipped) > 0 {
			logger.Warn().Strs("keys", skipped).Str("step", spec.Name).
				Msg("step output ignored for existing context keys")
		}
		wf.Steps = append(wf.Steps, model.StepRecord{
			Name:             spec.Name,
			Status:           model.StepCompleted,
			OutputData:       res.Output,
			CompensationData: res.CompensationData,
			CompletedAt:      time.Now().UTC(),
		})
		if err := c.persist(ctx, wf); err != nil {
			return err
		}
		logger.Info().Str("step", spec.Name).Msg("step completed")
	}

	now := time.Now().UTC()
	wf.Status = model.WorkflowCompleted
	wf.CompletedAt = &now
	if err := c.persist(ctx, wf); err != nil {
		return err
	}

	metrics.WorkflowsFinished.WithLabelValues(wf.Type, wf.Status).Inc()
	metrics.WorkflowDuration.WithLabelValues(wf.Type).Observe(time.Since(start).Seconds())
	logger.Info().Msg("workflow completed")
	return nil
}

// fail compensates every completed step in reverse order, persists the
// instance as failed and returns the step failure to the caller.
func (c *Coordinator) fail(ctx context.Context, def *Definition, wf *model.WorkflowInstance, step string, stepErr error, logger zerolog.Logger) error {
	logger.Error().Err(stepErr).Str("step", step).Msg("critical step failed, compensating")

	if cerr := c.comp.Run(ctx, def, wf); cerr != nil {
		logger.Error().Err(cerr).Msg("compensation finished with errors")
	}

	now := time.Now().UTC()
	msg := stepErr.Error()
	wf.Status = model.WorkflowFailed
	wf.ErrorMessage = &msg
	wf.CompletedAt = &now
	if err := c.persist(ctx, wf); err != nil {
		logger.Error().Err(err).Msg("persisting failed workflow")
	}

	metrics.WorkflowsFinished.WithLabelValues(wf.Type, wf.Status).Inc()
	return &StepExecutionError{Workflow: wf.ID, Step: step, Err: stepErr}
}

// cancelRunning honours a cancellation observed between steps: completed
// steps are compensated, then the instance lands in cancelled.
func (c *Coordinator) cancelRunning(ctx context.Context, def *Definition, wf *model.WorkflowInstance, logger zerolog.Logger) error {
	logger.Info().Msg("cancellation observed, rolling back")

	wf.Status = model.WorkflowRollingBack
	if err := c.persist(ctx, wf); err != nil {
		return err
	}

	if cerr := c.comp.Run(ctx, def, wf); cerr != nil {
		logger.Error().Err(cerr).Msg("compensation finished with errors")
	}

	now := time.Now().UTC()
	wf.Status = model.WorkflowCancelled
	wf.CompletedAt = &now
	if err := c.persist(ctx, wf); err != nil {
		return err
	}

	metrics.WorkflowsFinished.WithLabelValues(wf.Type, wf.Status).Inc()
	logger.Info().Msg("workflow cancelled")
	return nil
}

func (c *Coordinator) persist(ctx context.Context, wf *model.WorkflowInstance) error {
	wf.UpdatedAt = time.Now().UTC()
	if err := c.store.UpdateWorkflow(ctx, wf); err != nil {
		return fmt.Errorf("persist workflow %s: %w", wf.ID, err)
	}
	return nil
}
