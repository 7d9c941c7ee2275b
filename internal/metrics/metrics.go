// Package metrics exposes Prometheus instrumentation for the bill
// pipeline. Collectors are registered on the default registry; the
// server mounts promhttp at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SnapshotsApplied counts store snapshots reconciled into the view.
	SnapshotsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billboard_snapshots_applied_total",
		Help: "Number of store snapshots reconciled into the active view.",
	})

	// MalformedRecords counts records dropped during normalization.
	MalformedRecords = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billboard_malformed_records_total",
		Help: "Number of records dropped because they failed normalization.",
	})

	// ActiveBills is the size of the current active view.
	ActiveBills = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "billboard_active_bills",
		Help: "Number of bills currently in the active view.",
	})

	// RetireAttempts counts retire requests by outcome.
	RetireAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billboard_retire_attempts_total",
		Help: "Number of retire requests, by outcome.",
	}, []string{"outcome"})

	// PrintJobs counts print workflow runs by outcome.
	PrintJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billboard_print_jobs_total",
		Help: "Number of print workflow runs, by outcome.",
	}, []string{"outcome"})
)

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeBusy     = "busy"
	OutcomeTimeout  = "timeout"
)
