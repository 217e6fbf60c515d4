// Package metrics provides custom Prometheus metrics for the MedAI ECG
// analysis service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains all Prometheus metrics related to the
// analysis pipeline.
type PipelineMetrics struct {
	AnalysesTotal     *prometheus.CounterVec
	AnalysisDuration  *prometheus.HistogramVec
	StageDuration     *prometheus.HistogramVec
	QualityGateFailed prometheus.Counter
	QualityScore      prometheus.Histogram
	ClassifierErrors  *prometheus.CounterVec
	ActiveAnalyses    prometheus.Gauge
	UrgencyTier       *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPipelineMetrics creates a new instance of PipelineMetrics and
// registers it with the given registry.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() error {
	m.AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medai_analyses_total",
			Help: "Total number of analyses partitioned by terminal status and failure reason.",
		},
		[]string{"status", "reason"},
	)
	m.AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medai_analysis_duration_seconds",
			Help:    "End-to-end pipeline duration per analysis.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	m.StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medai_stage_duration_seconds",
			Help:    "Per-stage processing duration.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"stage"},
	)
	m.QualityGateFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medai_quality_gate_failures_total",
			Help: "Analyses rejected by the signal quality floor.",
		},
	)
	m.QualityScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medai_quality_score",
			Help:    "Distribution of aggregate signal quality scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
	m.ClassifierErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medai_classifier_errors_total",
			Help: "Classifier failures partitioned by kind (error, timeout).",
		},
		[]string{"kind"},
	)
	m.ActiveAnalyses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "medai_active_analyses",
			Help: "Number of analyses currently processing.",
		},
	)
	m.UrgencyTier = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medai_urgency_tier_total",
			Help: "Completed analyses partitioned by urgency tier.",
		},
		[]string{"tier"},
	)
	return nil
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.AnalysesTotal.Describe(ch)
	m.AnalysisDuration.Describe(ch)
	m.StageDuration.Describe(ch)
	m.QualityGateFailed.Describe(ch)
	m.QualityScore.Describe(ch)
	m.ClassifierErrors.Describe(ch)
	m.ActiveAnalyses.Describe(ch)
	m.UrgencyTier.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.AnalysesTotal.Collect(ch)
	m.AnalysisDuration.Collect(ch)
	m.StageDuration.Collect(ch)
	m.QualityGateFailed.Collect(ch)
	m.QualityScore.Collect(ch)
	m.ClassifierErrors.Collect(ch)
	m.ActiveAnalyses.Collect(ch)
	m.UrgencyTier.Collect(ch)
}
