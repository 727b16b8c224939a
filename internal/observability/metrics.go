// README: Prometheus metrics for the dispatch engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "dispatch_cycles_total",
		Help: "Dispatch cycles run",
	})
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ridepool", Name: "dispatch_cycle_duration_seconds",
		Help:    "Dispatch cycle wall time",
		Buckets: prometheus.DefBuckets,
	})
	RidersAssigned = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "riders_assigned_total",
		Help: "Passengers committed to a driver",
	})
	CarpoolGroups = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "carpool_groups_total",
		Help: "Carpool pairs formed by the detector",
	})
	CommitConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "commit_conflicts_total",
		Help: "Plans aborted because a concurrent process claimed the passenger or driver",
	})
	Unschedulable = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "unschedulable_total",
		Help: "Passengers left unassigned after a cycle, by reason",
	}, []string{"reason"})
	OracleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ridepool", Name: "oracle_errors_total",
		Help: "Route oracle lookups that failed and were treated as infeasible",
	})
)
