// Package metrics provides Prometheus metrics for the vsrank service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Settlement outcome labels.
const (
	OutcomeSettled   = "settled"
	OutcomeVoid      = "void"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Settlement
	settlementsTotal    *prometheus.CounterVec
	settlementDuration  *prometheus.HistogramVec
	activeSettlements   prometheus.Gauge
	pollRoundsTotal     prometheus.Counter
	pollRoundsDiscarded prometheus.Counter
	scoreQueriesTotal   prometheus.Counter
	scoreQueryErrors    prometheus.Counter

	// Score source
	scoreCacheHits     prometheus.Counter
	scoreCacheMisses   prometheus.Counter
	scoreSourceLatency prometheus.Histogram

	// Ratings
	ratingUpdates           *prometheus.CounterVec
	ratingDryRuns           *prometheus.CounterVec
	ratingInitializations   *prometheus.CounterVec
	ratingPersistenceErrors *prometheus.CounterVec
	ratedParticipants       *prometheus.GaugeVec

	// Ranked index
	repositoryRecordsTotal  prometheus.Gauge
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Storage
	storageLatency *prometheus.HistogramVec
	storageErrors  *prometheus.CounterVec

	// Queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueTotal  prometheus.Counter
	queueDequeueTotal  prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerActiveCount       prometheus.Gauge
	workerBusyCount         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // custom registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "vsrank",
		subsystem:        "",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}
	// Disabled managers still hand out working collectors; nothing is
	// registered where it could be scraped.
	if !m.enabled {
		m.registry = prometheus.NewRegistry()
	}

	m.initializeMetrics()
	return m
}

// RefreshInterval is how often polled gauges such as the system metrics
// should be refreshed.
func RefreshInterval() time.Duration { return globalManager.refreshInterval }

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.customLabels)
	secondsBuckets := []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200}

	m.settlementsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("settlements_total"),
		Help: "Settlements finished, by mode and outcome",
	}, []string{"mode", "outcome"})

	m.settlementDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("settlement_duration_seconds"),
		Help:    "Wall time from settlement start to outcome",
		Buckets: secondsBuckets,
	}, []string{"outcome"})

	m.activeSettlements = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("settlements_active"),
		Help: "Settlements currently polling",
	})

	m.pollRoundsTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("poll_rounds_total"),
		Help: "Score polling rounds started",
	})

	m.pollRoundsDiscarded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("poll_rounds_discarded_total"),
		Help: "Score polling rounds cancelled because they outlived the cadence",
	})

	m.scoreQueriesTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("score_queries_total"),
		Help: "Per-participant score lookups issued by the poller",
	})

	m.scoreQueryErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("score_query_errors_total"),
		Help: "Per-participant score lookups that failed and were scored 0",
	})

	m.scoreCacheHits = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("score_cache_hits_total"),
		Help: "Score source cache hits",
	})

	m.scoreCacheMisses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("score_cache_misses_total"),
		Help: "Score source cache misses",
	})

	m.scoreSourceLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("score_source_latency_milliseconds"),
		Help:    "Upstream score source call latency in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.ratingUpdates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("rating_updates_total"),
		Help: "Matches applied to the rating model",
	}, []string{"mode"})

	m.ratingDryRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("rating_dry_runs_total"),
		Help: "Dry-run rating computations",
	}, []string{"mode"})

	m.ratingInitializations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("rating_initializations_total"),
		Help: "Ratings created at model defaults",
	}, []string{"mode"})

	m.ratingPersistenceErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("rating_persistence_errors_total"),
		Help: "Rating writes that failed to reach the store",
	}, []string{"mode"})

	m.ratedParticipants = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("rated_participants"),
		Help: "Participants with an initialized rating",
	}, []string{"mode"})

	m.repositoryRecordsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("repository_records_total"),
		Help: "Entries across all ranked indexes",
	})

	m.repositoryUpdateLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("repository_update_latency_milliseconds"),
		Help:    "Ranked index update latency in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.repositoryQueryLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("repository_query_latency_milliseconds"),
		Help:    "Ranked index query latency in milliseconds",
		Buckets: m.histogramBuckets,
	})

	m.storageLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("storage_latency_milliseconds"),
		Help:    "Rating store operation latency in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"backend", "op"})

	m.storageErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("storage_errors_total"),
		Help: "Rating store operation errors",
	}, []string{"backend", "op"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_size"),
		Help: "Match jobs waiting for a worker",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_capacity"),
		Help: "Maximum queue capacity",
	})

	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_utilization_ratio"),
		Help: "Queue utilization ratio (current size / capacity)",
	})

	m.queueEnqueueTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_enqueue_total"),
		Help: "Match jobs enqueued",
	})

	m.queueDequeueTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_dequeue_total"),
		Help: "Match jobs handed to workers",
	})

	m.queueEnqueueErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("queue_enqueue_errors_total"),
		Help: "Match jobs rejected by the queue",
	})

	m.workerActiveCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("worker_active_count"),
		Help: "Workers in the pool",
	})

	m.workerBusyCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("worker_busy_count"),
		Help: "Workers currently settling a match",
	})

	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("worker_processing_seconds"),
		Help:    "Time a worker spends on one match job",
		Buckets: secondsBuckets,
	})

	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("worker_errors_total"),
		Help: "Match jobs that ended in an error",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("http_requests_total"),
		Help: "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "HTTP request duration in milliseconds",
		Buckets: m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("errors_by_component_total"),
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})

	m.errorsByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("errors_by_endpoint_total"),
		Help: "HTTP errors by endpoint, method and type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("system_memory_bytes"),
		Help: "Heap bytes allocated",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: m.name("system_goroutines"),
		Help: "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    m.name("system_gc_pause_milliseconds"),
		Help:    "Average GC pause in milliseconds",
		Buckets: m.histogramBuckets,
	})
}

// Settlement.

func RecordSettlement(mode, outcome string, duration time.Duration) {
	globalManager.settlementsTotal.WithLabelValues(mode, outcome).Inc()
	globalManager.settlementDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func IncActiveSettlements() { globalManager.activeSettlements.Inc() }
func DecActiveSettlements() { globalManager.activeSettlements.Dec() }

func RecordPollRound()          { globalManager.pollRoundsTotal.Inc() }
func RecordPollRoundDiscarded() { globalManager.pollRoundsDiscarded.Inc() }
func RecordScoreQuery()         { globalManager.scoreQueriesTotal.Inc() }
func RecordScoreQueryError()    { globalManager.scoreQueryErrors.Inc() }

// Score source.

func RecordScoreCacheHit()  { globalManager.scoreCacheHits.Inc() }
func RecordScoreCacheMiss() { globalManager.scoreCacheMisses.Inc() }

func RecordScoreSourceLatency(latencyMs float64) {
	globalManager.scoreSourceLatency.Observe(latencyMs)
}

// Ratings.

func RecordRatingUpdate(mode string)         { globalManager.ratingUpdates.WithLabelValues(mode).Inc() }
func RecordRatingDryRun(mode string)         { globalManager.ratingDryRuns.WithLabelValues(mode).Inc() }
func RecordRatingInitialization(mode string) { globalManager.ratingInitializations.WithLabelValues(mode).Inc() }

func RecordRatingPersistenceError(mode string) {
	globalManager.ratingPersistenceErrors.WithLabelValues(mode).Inc()
	RecordErrorByComponent("rating", "persistence")
}

func UpdateRatedParticipants(mode string, count int) {
	globalManager.ratedParticipants.WithLabelValues(mode).Set(float64(count))
}

// Ranked index.

func UpdateRepositoryRecordsTotal(count int) {
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

func AddRepositoryRecords(delta int) {
	globalManager.repositoryRecordsTotal.Add(float64(delta))
}

func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Storage.

func RecordStorageLatency(backend, op string, latencyMs float64) {
	globalManager.storageLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

func RecordStorageError(backend, op string) {
	globalManager.storageErrors.WithLabelValues(backend, op).Inc()
}

// Queue.

func UpdateQueueSize(size int)            { globalManager.queueSize.Set(float64(size)) }
func UpdateQueueCapacity(capacity int)    { globalManager.queueCapacity.Set(float64(capacity)) }
func UpdateQueueUtilization(u float64)    { globalManager.queueUtilization.Set(u) }
func RecordQueueEnqueue()                 { globalManager.queueEnqueueTotal.Inc() }
func RecordQueueDequeue()                 { globalManager.queueDequeueTotal.Inc() }
func RecordQueueEnqueueError()            { globalManager.queueEnqueueErrors.Inc() }
func UpdateWorkerActiveCount(count int)   { globalManager.workerActiveCount.Set(float64(count)) }
func IncWorkerBusy()                      { globalManager.workerBusyCount.Inc() }
func DecWorkerBusy()                      { globalManager.workerBusyCount.Dec() }
func RecordWorkerError()                  { globalManager.workerErrors.Inc() }

func RecordWorkerProcessing(d time.Duration) {
	globalManager.workerProcessingLatency.Observe(d.Seconds())
}

// HTTP.

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Errors.

func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

func UpdateSystemMemoryUsage(bytes uint64)  { globalManager.systemMemoryUsage.Set(float64(bytes)) }
func UpdateSystemGoroutineCount(count int)  { globalManager.systemGoroutineCount.Set(float64(count)) }
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the registry that backs the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
