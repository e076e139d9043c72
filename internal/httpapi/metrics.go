package httpapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/boshu2/cuti-queue/internal/queue"
)

// Metrics backs GET /metrics: queue depth, processed/failed/rate-limited
// counters, and executor invocation duration, per SPEC_FULL's domain-stack
// wiring for prometheus/client_golang.
type Metrics struct {
	registry *prometheus.Registry

	queueDepth       prometheus.Gauge
	enqueued         prometheus.Counter
	processed        prometheus.Counter
	failed           prometheus.Counter
	rateLimited      prometheus.Counter
	executionSeconds prometheus.Histogram
}

// NewMetrics builds a fresh registry and registers the queue's metrics
// against it.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cuti_queue_depth",
			Help: "Number of prompts currently tracked by the queue.",
		}),
		enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cuti_queue_enqueued_total",
			Help: "Total prompts enqueued.",
		}),
		processed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cuti_queue_processed_total",
			Help: "Total prompts completed successfully.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cuti_queue_failed_total",
			Help: "Total prompts that reached a failed transition.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cuti_queue_rate_limited_total",
			Help: "Total rate-limited executions.",
		}),
		executionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cuti_queue_execution_duration_seconds",
			Help:    "Executor invocation wall-clock duration.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.queueDepth, m.enqueued, m.processed, m.failed, m.rateLimited, m.executionSeconds)
	return m
}

// RecordExecution implements queue.MetricsHook, incrementing the outcome
// counter matching status and observing the executor's wall-clock duration.
func (m *Metrics) RecordExecution(status queue.Status, duration time.Duration) {
	switch status {
	case queue.StatusCompleted:
		m.processed.Inc()
	case queue.StatusFailed:
		m.failed.Inc()
	case queue.StatusRateLimited:
		m.rateLimited.Inc()
	}
	m.executionSeconds.Observe(duration.Seconds())
}
