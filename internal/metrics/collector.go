package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the Prometheus instruments for batch execution.
type Collector struct {
	runsTotal    *prometheus.CounterVec
	batchesTotal *prometheus.CounterVec
	retriesTotal prometheus.Counter
	itemsTotal   *prometheus.CounterVec

	batchDuration      *prometheus.HistogramVec
	checkpointDuration prometheus.Histogram
	lockWaitDuration   prometheus.Histogram
}

// NewCollector registers the instruments with reg under the given
// namespace. A nil reg uses the default registerer; tests pass a
// fresh registry to avoid duplicate-registration panics.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of runs by outcome",
			},
			[]string{"mode", "status"}, // status: completed, aborted
		),
		batchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of executed batches by outcome",
			},
			[]string{"mode", "status"},
		),
		retriesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_retries_total",
				Help:      "Total number of batch re-attempts",
			},
		),
		itemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_processed_total",
				Help:      "Total number of successfully processed items",
			},
			[]string{"mode"},
		),
		batchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Batch execution duration in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"mode"},
		),
		checkpointDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "checkpoint_write_duration_seconds",
				Help:      "Checkpoint persistence duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		lockWaitDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lock_wait_duration_seconds",
				Help:      "Time spent waiting for the run lock in seconds",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 60},
			},
		),
	}
}

// RecordRun counts a finished run.
func (c *Collector) RecordRun(mode, status string) {
	c.runsTotal.WithLabelValues(mode, status).Inc()
}

// RecordBatch counts an executed batch and observes its duration.
func (c *Collector) RecordBatch(mode, status string, d time.Duration) {
	c.batchesTotal.WithLabelValues(mode, status).Inc()
	c.batchDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordRetry counts one batch re-attempt.
func (c *Collector) RecordRetry() {
	c.retriesTotal.Inc()
}

// RecordItems counts successfully processed items.
func (c *Collector) RecordItems(mode string, n int) {
	c.itemsTotal.WithLabelValues(mode).Add(float64(n))
}

// ObserveCheckpointWrite observes one checkpoint persistence.
func (c *Collector) ObserveCheckpointWrite(d time.Duration) {
	c.checkpointDuration.Observe(d.Seconds())
}

// ObserveLockWait observes the wait for the run lock.
func (c *Collector) ObserveLockWait(d time.Duration) {
	c.lockWaitDuration.Observe(d.Seconds())
}
