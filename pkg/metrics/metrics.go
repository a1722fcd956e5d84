package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skynet_tasks_total",
			Help: "Total number of tasks by status",
		},
		[]string{"status"},
	)

	TasksEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skynet_tasks_enqueued_total",
			Help: "Total number of tasks enqueued",
		},
	)

	TasksClaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skynet_tasks_claimed_total",
			Help: "Total number of successful task claims",
		},
	)

	ClaimConflictsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skynet_claim_conflicts_total",
			Help: "Total number of file-ownership conflicts encountered during claim",
		},
	)

	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skynet_tasks_completed_total",
			Help: "Total number of terminal task transitions by outcome",
		},
		[]string{"outcome"},
	)

	// Registry metrics
	GatewaysTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skynet_gateways_total",
			Help: "Total number of registered gateways by status",
		},
		[]string{"status"},
	)

	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skynet_workers_total",
			Help: "Total number of registered workers by status",
		},
		[]string{"status"},
	)

	// Scheduler metrics
	SchedulerCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skynet_scheduler_cycle_duration_seconds",
			Help:    "Time taken per scheduler loop iteration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	DispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skynet_dispatch_duration_seconds",
			Help:    "Time taken to dispatch a task to a gateway in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 130, 300},
		},
	)

	// Reaper metrics
	ReaperCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "skynet_reaper_cycle_duration_seconds",
			Help:    "Time taken for a stale-lock reaper cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StaleLocksReleasedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skynet_stale_locks_released_total",
			Help: "Total number of stale locks released back to the ready pool",
		},
	)

	StaleLocksFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skynet_stale_locks_failed_total",
			Help: "Total number of stale locks marked failed_timeout",
		},
	)

	// Gateway client metrics
	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skynet_gateway_request_duration_seconds",
			Help:    "Gateway HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skynet_gateway_requests_total",
			Help: "Total number of gateway HTTP requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "skynet_circuit_breaker_state",
			Help: "Current circuit breaker state per gateway (0=closed, 1=half-open, 2=open)",
		},
		[]string{"gateway_id"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skynet_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skynet_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skynet_rate_limited_total",
			Help: "Total number of requests rejected by the per-IP rate limiter",
		},
	)
)

func init() {
	prometheus.MustRegister(
		TasksTotal,
		TasksEnqueuedTotal,
		TasksClaimedTotal,
		ClaimConflictsTotal,
		TasksCompletedTotal,
		GatewaysTotal,
		WorkersTotal,
		SchedulerCycleDuration,
		DispatchDuration,
		ReaperCycleDuration,
		StaleLocksReleasedTotal,
		StaleLocksFailedTotal,
		GatewayRequestDuration,
		GatewayRequestsTotal,
		CircuitBreakerState,
		APIRequestsTotal,
		APIRequestDuration,
		RateLimitedTotal,
	)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
