package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics
	QueuePendingChecks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "discoverer_queue_pending_checks",
			Help: "Current value of pending_checks_count",
		},
	)

	QueueReadyJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "discoverer_queue_ready_jobs",
			Help: "Number of jobs currently ready to be popped by a worker",
		},
	)

	QueueErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "discoverer_queue_errors_total",
			Help: "Total number of RuleErrors appended to the queue's error sideband",
		},
	)

	// Worker metrics
	WorkerBusyFraction = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "discoverer_worker_busy_fraction",
			Help: "Fraction of the last reporting interval each worker spent busy (0..1)",
		},
		[]string{"worker_id"},
	)

	WorkersRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "discoverer_workers_registered",
			Help: "Number of workers registered with the queue",
		},
	)

	ChecksDispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discoverer_checks_dispatched_total",
			Help: "Total number of checks dispatched by check type",
		},
		[]string{"check_type"},
	)

	ChecksFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discoverer_checks_failed_total",
			Help: "Total number of checks that returned a batch error by check type",
		},
		[]string{"check_type"},
	)

	TaskDispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "discoverer_task_dispatch_duration_seconds",
			Help:    "Time taken for a Checker to dispatch a task's batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Scheduler metrics
	SchedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "discoverer_scheduler_tick_duration_seconds",
			Help:    "Time taken for one scheduler tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	RulesExpandedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "discoverer_rules_expanded_total",
			Help: "Total number of due rules expanded into jobs",
		},
	)

	RulesSkippedQueueFullTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "discoverer_rules_skipped_queue_full_total",
			Help: "Total number of rule expansions skipped because the queue was full",
		},
	)

	ResultsFlushedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "discoverer_results_flushed_total",
			Help: "Total number of Result rows flushed to persistence",
		},
	)

	HostmapRevision = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "discoverer_hostmap_revision",
			Help: "Current hostmap_revision per proxy group",
		},
		[]string{"proxy_groupid"},
	)

	// ProxyGroupCache / IPC metrics
	ProxiesOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "discoverer_proxies_online",
			Help: "Number of proxies currently in ONLINE state",
		},
	)

	IPCRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "discoverer_ipc_requests_total",
			Help: "Total number of IPC requests handled by message code",
		},
		[]string{"code"},
	)

	ResultStorePendingKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "discoverer_resultstore_pending_keys",
			Help: "Number of (druleid, ip) keys with a nonzero outstanding-check counter",
		},
	)
)

func init() {
	prometheus.MustRegister(
		QueuePendingChecks,
		QueueReadyJobs,
		QueueErrorsTotal,
		WorkerBusyFraction,
		WorkersRegistered,
		ChecksDispatchedTotal,
		ChecksFailedTotal,
		TaskDispatchDuration,
		SchedulerTickDuration,
		RulesExpandedTotal,
		RulesSkippedQueueFullTotal,
		ResultsFlushedTotal,
		HostmapRevision,
		ProxiesOnline,
		IPCRequestsTotal,
		ResultStorePendingKeys,
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
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
