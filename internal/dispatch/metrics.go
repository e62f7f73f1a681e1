package dispatch

import (
	"github.com/ironsheep/image-fetch/internal/metrics"
)

const component = "dispatcher"

// Label names.
const (
	KindLabel   = "kind"
	ReasonLabel = "reason"
)

// Failure reasons.
const (
	ReasonUnrecoverable     = "unrecoverable"
	ReasonRetriesExhausted  = "retries_exhausted"
	ReasonContractViolation = "contract_violation"
	ReasonStopped           = "stopped"
)

var (
	cacheHitsTotal = metrics.MustRegisterCounter(component, "cache_hits_total",
		"Number of requests served from the memory cache.")
	cacheMissesTotal = metrics.MustRegisterCounter(component, "cache_misses_total",
		"Number of requests that missed the memory cache and started a task.")
	joinedTotal = metrics.MustRegisterCounter(component, "joined_requests_total",
		"Number of requests that joined an in-flight task.")
	retriesTotal = metrics.MustRegisterCounter(component, "retries_total",
		"Number of task retries scheduled after a recoverable failure.")
	failuresTotal = metrics.MustRegisterCounterVec(component, "failures_total",
		"Number of tasks that failed terminally.", ReasonLabel)
	cancelledSkippedTotal = metrics.MustRegisterCounter(component, "cancelled_skipped_total",
		"Number of cancelled requests skipped at delivery.")
	tasksInFlight = metrics.MustRegisterGauge(component, "tasks_in_flight",
		"Number of tasks currently in the in-flight table.")
	workQueueSize = metrics.MustRegisterGauge(component, "work_queue_size",
		"Number of task attempts waiting for a worker.")
	fetchDuration = metrics.MustRegisterHistogramVec(component, "fetch_duration_seconds",
		"Duration of fetch, decode and transform attempts in seconds.",
		metrics.DurationBuckets, KindLabel)
)
