// Package observability holds the Prometheus metrics the dispatcher
// and provisioning orchestrator update. Grounded in the teacher's
// control_plane/observability/metrics.go: promauto-registered
// vectors, one per scheduling decision or transition kind.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth tracks waiting-list length per tier.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatcher_queue_depth",
		Help: "Current number of waiting jobs per priority tier",
	}, []string{"tier"})

	// QueueRunning tracks the running-set size per tier.
	QueueRunning = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatcher_queue_running",
		Help: "Current number of running jobs per priority tier",
	}, []string{"tier"})

	// SchedulingDecisions counts dispatcher tick decisions by kind.
	SchedulingDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_scheduling_decisions_total",
		Help: "Total scheduling decisions made by the dispatcher",
	}, []string{"decision", "tier"})

	// TickDuration tracks how long one tick() call takes.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatcher_tick_duration_seconds",
		Help:    "Duration of one dispatcher tick",
		Buckets: prometheus.DefBuckets,
	})

	// JobWaitSeconds tracks time spent waiting before being scheduled.
	JobWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatcher_job_wait_seconds",
		Help:    "Time a job spent waiting before being scheduled",
		Buckets: prometheus.DefBuckets,
	})

	// JobRuntimeSeconds tracks grading job execution time.
	JobRuntimeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatcher_job_runtime_seconds",
		Help:    "Grading job execution time, including container startup",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	// JobTimeouts counts jobs that hit the per-deliverable timeout.
	JobTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_job_timeouts_total",
		Help: "Grading jobs forcibly terminated due to timeout",
	}, []string{"deliv_id"})

	// ProvisioningOutcomes counts provisioning attempts by deliverable and outcome.
	ProvisioningOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatcher_provisioning_outcomes_total",
		Help: "Provisioning attempts by deliverable and outcome",
	}, []string{"deliv_id", "outcome"})

	// ProgressionStatus counts progression recomputations by the status
	// they produced. It is only ever incremented, so a person recomputed
	// twice is counted twice.
	ProgressionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatcher_progression_status",
		Help: "Number of progression recomputations that produced each status",
	}, []string{"status"})
)
