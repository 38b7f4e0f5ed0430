// Package prometheus implements the engine's metrics collector.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/linkfabric/swagent/pkg/orch"
)

// Collector implements orch.MetricsCollector using Prometheus.
type Collector struct {
	tasksProcessed *prometheus.CounterVec
	pendingTasks   *prometheus.GaugeVec
	ringDepth      prometheus.Gauge
	ringFull       prometheus.Counter
	bakeRows       *prometheus.CounterVec
	drainDuration  *prometheus.HistogramVec
}

// NewCollector creates and registers the collector.
func NewCollector() *Collector {
	return &Collector{
		tasksProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swagent_tasks_processed_total",
				Help: "Total number of pending tasks processed, by outcome",
			},
			[]string{"table", "status"},
		),
		pendingTasks: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "swagent_pending_tasks",
				Help: "Current number of pending tasks per table",
			},
			[]string{"table"},
		),
		ringDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "swagent_ring_depth",
				Help: "Current number of deferred tasks queued in the ring buffer",
			},
		),
		ringFull: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "swagent_ring_full_total",
				Help: "Total number of rejected pushes against a full ring buffer",
			},
		),
		bakeRows: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swagent_bake_rows_total",
				Help: "Rows seeded from durable state at warm restart",
			},
			[]string{"table"},
		),
		drainDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swagent_drain_duration_seconds",
				Help:    "Duration of one drain pass over a table's pending tasks",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"table"},
		),
	}
}

// RecordTaskProcessed implements orch.MetricsCollector.
func (c *Collector) RecordTaskProcessed(table string, status orch.TaskStatus) {
	c.tasksProcessed.WithLabelValues(table, status.String()).Inc()
}

// SetPendingTasks implements orch.MetricsCollector.
func (c *Collector) SetPendingTasks(table string, n int) {
	c.pendingTasks.WithLabelValues(table).Set(float64(n))
}

// SetRingDepth implements orch.MetricsCollector.
func (c *Collector) SetRingDepth(n int) {
	c.ringDepth.Set(float64(n))
}

// RecordRingFull implements orch.MetricsCollector.
func (c *Collector) RecordRingFull() {
	c.ringFull.Inc()
}

// RecordBakeRows implements orch.MetricsCollector.
func (c *Collector) RecordBakeRows(table string, n int) {
	c.bakeRows.WithLabelValues(table).Add(float64(n))
}

// ObserveDrainPass implements orch.MetricsCollector.
func (c *Collector) ObserveDrainPass(table string, seconds float64) {
	c.drainDuration.WithLabelValues(table).Observe(seconds)
}
