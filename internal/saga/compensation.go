package saga

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/edvin/provisioning/internal/metrics"
	"github.com/edvin/provisioning/internal/model"
)

// CompensationManager replays compensators for a workflow's completed
// steps in reverse order. Cleanup is best-effort: a failing compensator is
// logged and the remaining passes still run. The aggregated error is
// returned for logging only and is never escalated to the caller.
type CompensationManager struct {
	logger zerolog.Logger
}

func NewCompensationManager(logger zerolog.Logger) *CompensationManager {
	return &CompensationManager{
		logger: logger.With().Str("component", "compensation").Logger(),
	}
}

func (m *CompensationManager) Run(ctx context.Context, def *Definition, wf *model.WorkflowInstance) error {
	var result *multierror.Error

	for i := len(wf.Steps) - 1; i >= 0; i-- {
		rec := &wf.Steps[i]
		if rec.Status != model.StepCompleted {
			continue
		}
		spec, ok := def.step(rec.Name)
		if !ok || spec.Compensator == nil {
			continue
		}

		metrics.CompensationSteps.Inc()
		if err := spec.Compensator.Compensate(ctx, rec.CompensationData); err != nil {
			cerr := &CompensationError{Step: rec.Name, Err: err}
			m.logger.Error().Err(err).
				Str("workflow_id", wf.ID).
				Str("step", rec.Name).
				Msg("compensation failed, continuing")
			result = multierror.Append(result, cerr)
			continue
		}

		rec.Status = model.StepCompensated
		m.logger.Info().
			Str("workflow_id", wf.ID).
			Str("step", rec.Name).
			Msg("step compensated")
	}

	return result.ErrorOrNil()
}
