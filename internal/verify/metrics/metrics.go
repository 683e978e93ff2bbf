// Package metrics provides Prometheus metrics for the verification pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all verification pipeline metrics.
type Metrics struct {
	VerificationsTotal *prometheus.CounterVec // Pipeline outcomes by result (verified, rejected, error)
	RejectionsTotal    *prometheus.CounterVec // Rejections by the gate that stopped the request

	GateDurationSeconds   *prometheus.HistogramVec // Per-gate evaluation latency
	VerifyDurationSeconds prometheus.Histogram     // End-to-end pipeline latency

	ActiveBlinkSessions prometheus.Gauge   // Blink sessions currently held by the store
	EnrollmentsTotal    prometheus.Counter // Successful enrolments
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	return &Metrics{
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_verifications_total",
			Help: "Total verification requests by outcome",
		}, []string{"outcome"}),

		RejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_rejections_total",
			Help: "Total rejected verifications by gate",
		}, []string{"gate"}),

		GateDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "presence_gate_duration_seconds",
			Help:    "Duration of individual gate evaluations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"gate"}),

		VerifyDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "presence_verify_duration_seconds",
			Help:    "End-to-end verification pipeline duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),

		ActiveBlinkSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "presence_active_blink_sessions",
			Help: "Blink challenge sessions currently held by the store",
		}),

		EnrollmentsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "presence_enrollments_total",
			Help: "Total successful subject enrolments",
		}),
	}
}

// RecordOutcome records a pipeline outcome.
func (m *Metrics) RecordOutcome(outcome string) {
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
}

// RecordRejection records which gate rejected a request.
func (m *Metrics) RecordRejection(gate string) {
	m.RejectionsTotal.WithLabelValues(gate).Inc()
}

// ObserveGateDuration records the duration of one gate evaluation.
func (m *Metrics) ObserveGateDuration(gate string, seconds float64) {
	m.GateDurationSeconds.WithLabelValues(gate).Observe(seconds)
}

// ObserveVerifyDuration records the end-to-end pipeline duration.
func (m *Metrics) ObserveVerifyDuration(seconds float64) {
	m.VerifyDurationSeconds.Observe(seconds)
}
