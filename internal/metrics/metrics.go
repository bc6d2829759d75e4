// Package metrics exposes Prometheus instrumentation for the pipeline. All
// Collector methods are safe on a nil receiver so callers that run without an
// exporter (tests, one-shot CLI runs) skip instrumentation without guards.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the pipeline's Prometheus instruments.
type Collector struct {
	jobsSubmitted prometheus.Counter
	jobsFinished  *prometheus.CounterVec
	jobsActive    prometheus.Gauge
	jobsReclaimed prometheus.Counter

	stageDuration *prometheus.HistogramVec
	stageFailures *prometheus.CounterVec
	stageRetries  *prometheus.CounterVec

	breakerTransitions *prometheus.CounterVec
}

// New registers the pipeline instruments on the given registerer.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reelsmith",
			Name:      "jobs_submitted_total",
			Help:      "Jobs accepted into the queue.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelsmith",
			Name:      "jobs_finished_total",
			Help:      "Jobs that reached a terminal status.",
		}, []string{"status"}),
		jobsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "reelsmith",
			Name:      "jobs_active",
			Help:      "Jobs currently executing.",
		}),
		jobsReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reelsmith",
			Name:      "jobs_reclaimed_total",
			Help:      "Stale running jobs returned to the queue.",
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "reelsmith",
			Name:      "stage_duration_seconds",
			Help:      "Wall-clock duration of stage executions, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"stage", "outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelsmith",
			Name:      "stage_failures_total",
			Help:      "Stage attempts that ended in an error, by ledger code.",
		}, []string{"stage", "code"}),
		stageRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelsmith",
			Name:      "stage_retries_total",
			Help:      "Retry attempts scheduled after a stage failure.",
		}, []string{"stage"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reelsmith",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state transitions per dependency.",
		}, []string{"dependency", "state"}),
	}
	reg.MustRegister(
		c.jobsSubmitted,
		c.jobsFinished,
		c.jobsActive,
		c.jobsReclaimed,
		c.stageDuration,
		c.stageFailures,
		c.stageRetries,
		c.breakerTransitions,
	)
	return c
}

// JobSubmitted counts a newly queued job.
func (c *Collector) JobSubmitted() {
	if c == nil {
		return
	}
	c.jobsSubmitted.Inc()
}

// JobStarted marks a job as actively executing.
func (c *Collector) JobStarted() {
	if c == nil {
		return
	}
	c.jobsActive.Inc()
}

// JobDone marks an executing job as no longer active, terminal or not.
func (c *Collector) JobDone() {
	if c == nil {
		return
	}
	c.jobsActive.Dec()
}

// JobFinished counts a job reaching a terminal status.
func (c *Collector) JobFinished(status string) {
	if c == nil {
		return
	}
	c.jobsFinished.WithLabelValues(status).Inc()
}

// JobsReclaimed counts stale jobs returned to the queue.
func (c *Collector) JobsReclaimed(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.jobsReclaimed.Add(float64(n))
}

// ObserveStage records the duration of a stage execution.
func (c *Collector) ObserveStage(stage string, d time.Duration, ok bool) {
	if c == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	c.stageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// StageFailed counts a failed stage attempt by ledger code.
func (c *Collector) StageFailed(stage, code string) {
	if c == nil {
		return
	}
	c.stageFailures.WithLabelValues(stage, code).Inc()
}

// StageRetried counts a scheduled retry.
func (c *Collector) StageRetried(stage string) {
	if c == nil {
		return
	}
	c.stageRetries.WithLabelValues(stage).Inc()
}

// BreakerTransition counts a circuit state change for a dependency.
func (c *Collector) BreakerTransition(dependency, state string) {
	if c == nil {
		return
	}
	c.breakerTransitions.WithLabelValues(dependency, state).Inc()
}
