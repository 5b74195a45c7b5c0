package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// WorkflowsStarted counts workflow executions, including retries.
	WorkflowsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioning_workflows_started_total",
		Help: "Workflow executions started, by workflow type",
	}, []string{"type"})

	// WorkflowsFinished counts terminal and failed outcomes.
	WorkflowsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioning_workflows_finished_total",
		Help: "Workflow executions finished, by workflow type and status",
	}, []string{"type", "status"})

	// WorkflowDuration observes wall-clock execution time of a single run.
	WorkflowDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provisioning_workflow_duration_seconds",
		Help:    "Workflow execution duration in seconds, by workflow type",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"type"})

	// CompensationSteps counts compensator invocations.
	CompensationSteps = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "provisioning_compensation_steps_total",
		Help: "Compensator invocations across all workflows",
	})

	// RemediationRollbacks counts remediation rollback runs by outcome.
	RemediationRollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provisioning_remediation_rollbacks_total",
		Help: "Remediation rollback runs, by outcome",
	}, []string{"outcome"})
)

// RegisterWorkflowMetrics registers the workflow collectors with the
// default registry. Call once at startup.
func RegisterWorkflowMetrics() {
	prometheus.MustRegister(
		WorkflowsStarted,
		WorkflowsFinished,
		WorkflowDuration,
		CompensationSteps,
		RemediationRollbacks,
	)
}
