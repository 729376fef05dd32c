package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration records latency for every API request, labeled by
// method, route pattern, and status code.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "controlplane",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

var JobsSubmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "lifecycle",
		Name:      "jobs_submitted_total",
		Help:      "Total number of train/deploy/retrain jobs submitted to the cluster driver.",
	},
	[]string{"job_type"},
)

var JobsFailedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "lifecycle",
		Name:      "jobs_failed_total",
		Help:      "Total number of train/deploy/retrain jobs that reported failure.",
	},
	[]string{"job_type"},
)

var SweeperReconciledTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "sweeper",
		Name:      "reconciled_total",
		Help:      "Total number of stale in-progress models reconciled by the sweeper.",
	},
)

var SweeperRunDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "controlplane",
		Subsystem: "sweeper",
		Name:      "run_duration_seconds",
		Help:      "Duration of a single sweeper pass.",
		Buckets:   prometheus.DefBuckets,
	},
)

var ReportLeasesClaimedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "reportqueue",
		Name:      "leases_claimed_total",
		Help:      "Total number of report queue rows leased by a worker.",
	},
)

var ReportAttemptsExhaustedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "reportqueue",
		Name:      "attempts_exhausted_total",
		Help:      "Total number of report rows that exceeded their attempt bound.",
	},
)

var PermissionCacheHitsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "permcache",
		Name:      "lookups_total",
		Help:      "Total permission cache lookups, labeled by outcome.",
	},
	[]string{"outcome"},
)

var InferenceRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "inference",
		Name:      "requests_total",
		Help:      "Total number of requests served by deployed model runtimes.",
	},
	[]string{"deployment_id", "status"},
)

var SyntheticSamplesGeneratedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "controlplane",
		Subsystem: "syntheticdata",
		Name:      "samples_generated_total",
		Help:      "Total number of synthetic training samples generated, labeled by generator.",
	},
	[]string{"generator"},
)

// All returns every control-plane-specific metric for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		JobsSubmittedTotal,
		JobsFailedTotal,
		SweeperReconciledTotal,
		SweeperRunDuration,
		ReportLeasesClaimedTotal,
		ReportAttemptsExhaustedTotal,
		PermissionCacheHitsTotal,
		InferenceRequestsTotal,
		SyntheticSamplesGeneratedTotal,
	}
}

// NewMetricsRegistry builds a Prometheus registry seeded with Go/process
// collectors, the HTTP request histogram, and any extra collectors supplied.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
