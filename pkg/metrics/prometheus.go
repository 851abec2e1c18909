// Package metrics provides Prometheus metrics for the flags game scoring engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Submission pipeline
	submissions      *prometheus.CounterVec
	rejections       *prometheus.CounterVec
	scoreMismatches  prometheus.Counter
	suspiciousScores *prometheus.CounterVec
	duplicates       prometheus.Counter

	// Best records and ledger
	bestImprovements *prometheus.CounterVec
	writeConflicts   *prometheus.CounterVec
	ledgerAppends    prometheus.Counter
	recomputeLatency prometheus.Histogram

	// Reads
	leaderboardQueries *prometheus.CounterVec
	leaderboardLatency *prometheus.HistogramVec

	// Repository
	repositoryLatency *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Rebuild jobs
	rebuildJobs   *prometheus.CounterVec
	queueSize     prometheus.Gauge
	queueCapacity prometheus.Gauge
	workersActive prometheus.Gauge

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps the default Go collectors out of /metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "banderas",
		subsystem:        "engine",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels}
}

func (m *Manager) histogramOpts(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
		ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.submissions = auto.NewCounterVec(m.counterOpts("submissions_total",
		"Submissions handled, by kind (stage|score) and outcome (persisted|noop|rejected|duplicate|failed)"),
		[]string{"kind", "outcome"})
	m.rejections = auto.NewCounterVec(m.counterOpts("rejections_total",
		"Submissions rejected by the plausibility guard, by error kind and rule"),
		[]string{"kind", "rule"})
	m.scoreMismatches = auto.NewCounter(m.counterOpts("score_mismatches_total",
		"Career submissions whose client score differed from the computed score"))
	m.suspiciousScores = auto.NewCounterVec(m.counterOpts("suspicious_scores_total",
		"Submissions flagged but not rejected, by signal"),
		[]string{"signal"})
	m.duplicates = auto.NewCounter(m.counterOpts("duplicate_submissions_total",
		"Submissions skipped because their submission id was already seen"))

	m.bestImprovements = auto.NewCounterVec(m.counterOpts("best_improvements_total",
		"Best records inserted or improved, by record kind"),
		[]string{"record"})
	m.writeConflicts = auto.NewCounterVec(m.counterOpts("write_conflicts_total",
		"Unique constraint races on first insert, by record kind and result (retried|exhausted)"),
		[]string{"record", "result"})
	m.ledgerAppends = auto.NewCounter(m.counterOpts("ledger_appends_total",
		"Stage attempts appended to the run ledger"))
	m.recomputeLatency = auto.NewHistogram(m.histogramOpts("stats_recompute_latency_ms",
		"Career summary recompute latency in milliseconds"))

	m.leaderboardQueries = auto.NewCounterVec(m.counterOpts("leaderboard_queries_total",
		"Leaderboard and rank queries, by board and operation"),
		[]string{"board", "op"})
	m.leaderboardLatency = auto.NewHistogramVec(m.histogramOpts("leaderboard_query_latency_ms",
		"Leaderboard and rank query latency in milliseconds"),
		[]string{"board", "op"})

	m.repositoryLatency = auto.NewHistogramVec(m.histogramOpts("repository_latency_ms",
		"Repository operation latency in milliseconds"),
		[]string{"op"})

	m.httpRequests = auto.NewCounterVec(m.counterOpts("http_requests_total",
		"HTTP requests by endpoint, method and status code"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.constLabels,
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.rebuildJobs = auto.NewCounterVec(m.counterOpts("rebuild_jobs_total",
		"Ledger replay jobs by result"),
		[]string{"result"})
	m.queueSize = auto.NewGauge(m.gaugeOpts("rebuild_queue_size", "Queued rebuild jobs"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("rebuild_queue_capacity", "Rebuild queue capacity"))
	m.workersActive = auto.NewGauge(m.gaugeOpts("rebuild_workers_active", "Rebuild workers currently running a job"))

	m.errorsByComponent = auto.NewCounterVec(m.counterOpts("errors_total",
		"Errors by component and type"),
		[]string{"component", "type"})

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_bytes", "Heap memory in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutines", "Number of goroutines"))
}

// RecordSubmission counts a handled submission.
func RecordSubmission(kind, outcome string) {
	globalManager.submissions.WithLabelValues(kind, outcome).Inc()
}

// RecordRejection counts a guard rejection.
func RecordRejection(kind, rule string) {
	globalManager.rejections.WithLabelValues(kind, rule).Inc()
}

func RecordScoreMismatch() { globalManager.scoreMismatches.Inc() }

// RecordSuspiciousScore counts a flagged, accepted submission.
func RecordSuspiciousScore(signal string) {
	globalManager.suspiciousScores.WithLabelValues(signal).Inc()
}

func RecordDuplicateSubmission() { globalManager.duplicates.Inc() }

// RecordBestImprovement counts an inserted or improved best record.
func RecordBestImprovement(record string) {
	globalManager.bestImprovements.WithLabelValues(record).Inc()
}

// RecordWriteConflict counts a first-insert race and how it ended.
func RecordWriteConflict(record, result string) {
	globalManager.writeConflicts.WithLabelValues(record, result).Inc()
}

func RecordLedgerAppend() { globalManager.ledgerAppends.Inc() }

func RecordRecomputeLatency(latencyMs float64) {
	globalManager.recomputeLatency.Observe(latencyMs)
}

// RecordLeaderboardQuery counts a read and observes its latency.
func RecordLeaderboardQuery(board, op string, latencyMs float64) {
	globalManager.leaderboardQueries.WithLabelValues(board, op).Inc()
	globalManager.leaderboardLatency.WithLabelValues(board, op).Observe(latencyMs)
}

func RecordRepositoryLatency(op string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(op).Observe(latencyMs)
}

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, seconds float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(seconds)
}

func RecordRebuildJob(result string) { globalManager.rebuildJobs.WithLabelValues(result).Inc() }

func UpdateQueueSize(size int)         { globalManager.queueSize.Set(float64(size)) }
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }
func AddActiveWorkers(delta int)       { globalManager.workersActive.Add(float64(delta)) }

// RecordErrorByComponent counts an error raised by a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// GetRegistry returns the registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
