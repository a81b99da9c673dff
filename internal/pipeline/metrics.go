package pipeline

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides Prometheus-compatible metrics for pipeline runs.
//
// Metrics exposed (all namespaced with "repoatlas_"):
//
//   - stage_latency_ms (histogram): stage attempt duration in milliseconds,
//     labeled by stage_id and status (success/error).
//   - stage_retries_total (counter): re-attempts, labeled by stage_id and
//     reason (error, gate_rejected).
//   - gate_rejections_total (counter): gate verdicts that failed, labeled
//     by gate_id.
//   - provider_failures_total (counter): generation backend failures,
//     labeled by provider and code.
//
// Thread-safe.
type Metrics struct {
	stageLatency     *prometheus.HistogramVec
	stageRetries     *prometheus.CounterVec
	gateRejections   *prometheus.CounterVec
	providerFailures *prometheus.CounterVec

	mu      sync.RWMutex
	enabled bool
}

// NewMetrics creates and registers the pipeline metrics with the provided
// registry. A nil registry uses the global default registerer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	m := &Metrics{enabled: true}

	m.stageLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "repoatlas",
		Name:      "stage_latency_ms",
		Help:      "Stage attempt duration in milliseconds",
		Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000, 60000},
	}, []string{"stage_id", "status"})

	m.stageRetries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repoatlas",
		Name:      "stage_retries_total",
		Help:      "Cumulative count of stage re-attempts",
	}, []string{"stage_id", "reason"})

	m.gateRejections = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repoatlas",
		Name:      "gate_rejections_total",
		Help:      "Cumulative count of failed gate verdicts",
	}, []string{"gate_id"})

	m.providerFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "repoatlas",
		Name:      "provider_failures_total",
		Help:      "Cumulative count of generation backend failures",
	}, []string{"provider", "code"})

	return m
}

// RecordStageLatency records the duration of one stage attempt.
// Status is "success" or "error".
func (m *Metrics) RecordStageLatency(stageID string, latency time.Duration, status string) {
	if !m.isEnabled() {
		return
	}
	m.stageLatency.WithLabelValues(stageID, status).Observe(float64(latency.Milliseconds()))
}

// IncrementRetries counts a stage re-attempt.
// Reason is "error" or "gate_rejected".
func (m *Metrics) IncrementRetries(stageID, reason string) {
	if !m.isEnabled() {
		return
	}
	m.stageRetries.WithLabelValues(stageID, reason).Inc()
}

// IncrementGateRejections counts a failed gate verdict.
func (m *Metrics) IncrementGateRejections(gateID string) {
	if !m.isEnabled() {
		return
	}
	m.gateRejections.WithLabelValues(gateID).Inc()
}

// IncrementProviderFailures counts a generation backend failure.
func (m *Metrics) IncrementProviderFailures(provider, code string) {
	if !m.isEnabled() {
		return
	}
	m.providerFailures.WithLabelValues(provider, code).Inc()
}

func (m *Metrics) isEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.enabled
}

// Disable temporarily disables metric recording (useful for testing).
func (m *Metrics) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
}

// Enable re-enables metric recording after Disable.
func (m *Metrics) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}
