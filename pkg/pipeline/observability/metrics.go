// Package observability holds the Prometheus metrics for the processing
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds all Prometheus metrics for the pipeline.
type PipelineMetrics struct {
	// Job metrics
	JobsSubmittedTotal *prometheus.CounterVec
	JobsCompletedTotal *prometheus.CounterVec
	StateTransitions   *prometheus.CounterVec
	StaleResultsTotal  *prometheus.CounterVec
	DeadlineExpiries   *prometheus.CounterVec

	// Stage metrics
	StageSeconds *prometheus.HistogramVec

	// Queue metrics
	QueueItemsTotal *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	DLQItemsTotal   *prometheus.CounterVec

	// LLM metrics
	LLMCallsTotal     *prometheus.CounterVec
	LLMLatencySeconds *prometheus.HistogramVec
	LLMTokensTotal    *prometheus.CounterVec
}

// DefaultPipelineMetrics creates metrics on the default registerer.
func DefaultPipelineMetrics() *PipelineMetrics {
	return NewPipelineMetrics(prometheus.DefaultRegisterer)
}

// NewPipelineMetrics creates a new set of pipeline metrics.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(reg)

	return &PipelineMetrics{
		JobsSubmittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbrief_jobs_submitted_total",
				Help: "Total jobs submitted",
			},
			[]string{"mode"},
		),
		JobsCompletedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbrief_jobs_finished_total",
				Help: "Total jobs reaching a terminal or parked state",
			},
			[]string{"status"},
		),
		StateTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbrief_state_transitions_total",
				Help: "Total job state transitions",
			},
			[]string{"from", "to"},
		),
		StaleResultsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbrief_stale_results_total",
				Help: "Worker results dropped because the job version moved on",
			},
			[]string{"stage"},
		),
		DeadlineExpiries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbrief_deadline_expiries_total",
				Help: "Stage attempts failed by the deadline watchdog",
			},
			[]string{"stage"},
		),
		StageSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meetbrief_stage_seconds",
				Help:    "Wall-clock duration per pipeline stage",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"stage", "status"},
		),
		QueueItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbrief_queue_items_total",
				Help: "Total items entering each queue",
			},
			[]string{"queue", "priority"},
		),
		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "meetbrief_queue_depth",
				Help: "Current queue depth",
			},
			[]string{"queue"},
		),
		DLQItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbrief_dlq_items_total",
				Help: "Total items moved to the dead letter queue",
			},
			[]string{"queue", "error_type"},
		),
		LLMCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbrief_llm_calls_total",
				Help: "Total LLM completions",
			},
			[]string{"operation", "model", "status"},
		),
		LLMLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "meetbrief_llm_latency_seconds",
				Help:    "LLM completion latency",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30, 60, 120},
			},
			[]string{"operation", "model"},
		),
		LLMTokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "meetbrief_llm_tokens_total",
				Help: "Total tokens consumed by LLM calls",
			},
			[]string{"direction", "model"},
		),
	}
}

// RecordSubmitted records a newly submitted job.
func (m *PipelineMetrics) RecordSubmitted(mode string) {
	m.JobsSubmittedTotal.WithLabelValues(mode).Inc()
}

// RecordFinished records a job reaching ready, completed, or error.
func (m *PipelineMetrics) RecordFinished(status string) {
	m.JobsCompletedTotal.WithLabelValues(status).Inc()
}

// RecordTransition records a state transition.
func (m *PipelineMetrics) RecordTransition(from, to string) {
	m.StateTransitions.WithLabelValues(from, to).Inc()
}

// RecordStaleResult records a dropped stale worker result.
func (m *PipelineMetrics) RecordStaleResult(stage string) {
	m.StaleResultsTotal.WithLabelValues(stage).Inc()
}

// RecordDeadlineExpiry records a stage failed by the watchdog.
func (m *PipelineMetrics) RecordDeadlineExpiry(stage string) {
	m.DeadlineExpiries.WithLabelValues(stage).Inc()
}

// RecordStageDuration records how long a stage attempt took.
func (m *PipelineMetrics) RecordStageDuration(stage, status string, seconds float64) {
	m.StageSeconds.WithLabelValues(stage, status).Observe(seconds)
}

// RecordEnqueue records an item entering a queue.
func (m *PipelineMetrics) RecordEnqueue(queue, priority string) {
	m.QueueItemsTotal.WithLabelValues(queue, priority).Inc()
}

// SetQueueDepth sets the current depth of a queue.
func (m *PipelineMetrics) SetQueueDepth(queue string, depth float64) {
	m.QueueDepth.WithLabelValues(queue).Set(depth)
}

// RecordDLQItem records an item moved to the dead letter queue.
func (m *PipelineMetrics) RecordDLQItem(queue, errorType string) {
	m.DLQItemsTotal.WithLabelValues(queue, errorType).Inc()
}

// RecordLLMCall records one LLM completion with its latency and usage.
func (m *PipelineMetrics) RecordLLMCall(operation, model, status string, latencySeconds float64, inputTokens, outputTokens int) {
	m.LLMCallsTotal.WithLabelValues(operation, model, status).Inc()
	m.LLMLatencySeconds.WithLabelValues(operation, model).Observe(latencySeconds)
	m.LLMTokensTotal.WithLabelValues("input", model).Add(float64(inputTokens))
	m.LLMTokensTotal.WithLabelValues("output", model).Add(float64(outputTokens))
}
