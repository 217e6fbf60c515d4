package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ValidationMetrics contains Prometheus metrics for the clinical
// validation workflow.
type ValidationMetrics struct {
	TasksTotal     *prometheus.CounterVec
	ClaimConflicts prometheus.Counter
	ClaimsExpired  prometheus.Counter
	Escalations    prometheus.Counter
	OpenTasks      prometheus.Gauge

	registry *prometheus.Registry
}

// NewValidationMetrics creates a new instance of ValidationMetrics and
// registers it with the given registry.
func NewValidationMetrics(registry *prometheus.Registry) (*ValidationMetrics, error) {
	m := &ValidationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register validation metrics: %w", err)
	}
	return m, nil
}

func (m *ValidationMetrics) initMetrics() {
	m.TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medai_validation_tasks_total",
			Help: "Validation tasks reaching a terminal outcome, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
	m.ClaimConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medai_validation_claim_conflicts_total",
			Help: "Claim attempts rejected because the task was already assigned.",
		},
	)
	m.ClaimsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medai_validation_claims_expired_total",
			Help: "Claims released by the SLA sweeper.",
		},
	)
	m.Escalations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medai_validation_escalations_total",
			Help: "Tasks escalated after exhausting the re-offer budget.",
		},
	)
	m.OpenTasks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "medai_validation_open_tasks",
			Help: "Tasks currently awaiting a reviewer decision.",
		},
	)
}

// Describe implements the prometheus.Collector interface.
func (m *ValidationMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.TasksTotal.Describe(ch)
	m.ClaimConflicts.Describe(ch)
	m.ClaimsExpired.Describe(ch)
	m.Escalations.Describe(ch)
	m.OpenTasks.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ValidationMetrics) Collect(ch chan<- prometheus.Metric) {
	m.TasksTotal.Collect(ch)
	m.ClaimConflicts.Collect(ch)
	m.ClaimsExpired.Collect(ch)
	m.Escalations.Collect(ch)
	m.OpenTasks.Collect(ch)
}
