package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counters
	JobsSubmittedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelmine_jobs_submitted_total",
			Help: "Total number of jobs accepted by the scheduler",
		},
	)

	JobsFinishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelmine_jobs_finished_total",
			Help: "Total number of jobs that reached a terminal status",
		},
		[]string{"status"}, // COMPLETED, FAILED
	)

	TokensMovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelmine_tokens_moved_total",
			Help: "Tokens moved by the token ledger",
		},
		[]string{"kind"}, // escrowed, refunded, rewarded, granted
	)

	LedgerConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelmine_ledger_write_conflicts_total",
			Help: "Ledger appends rejected because another block took the head. Any non-zero value is an alarm",
		},
	)

	BroadcastDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelmine_broadcast_dropped_total",
			Help: "Progress events dropped because a subscriber buffer was full",
		},
	)

	// Gauges
	RunningJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelmine_running_jobs",
			Help: "Current number of jobs being executed by this replica",
		},
	)

	ActiveNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelmine_active_nodes",
			Help: "Nodes passing the liveness check",
		},
	)

	LedgerHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelmine_ledger_height",
			Help: "Number of blocks in the audit ledger",
		},
	)

	// Buckets: 100ms to ~27min
	JobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelmine_job_duration_seconds",
			Help:    "Job execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 15),
		},
		[]string{"status"},
	)
)

// Token movement kinds
const (
	TokensEscrowed = "escrowed"
	TokensRefunded = "refunded"
	TokensRewarded = "rewarded"
	TokensGranted  = "granted"
)
