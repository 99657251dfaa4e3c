// Package metrics provides Prometheus metrics for the gaitlog ingestion service.
package metrics

import (
	"maps"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the gaitlog service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	metricPrefix     string
	registry         prometheus.Registerer

	// Ingestion
	batchesIngested  *prometheus.CounterVec
	samplesIngested  prometheus.Counter
	batchesDuplicate prometheus.Counter
	batchSize        prometheus.Histogram
	mergeConflicts   prometheus.Counter
	mergeRetries     prometheus.Histogram
	validationErrors prometheus.Counter
	sessionsDeleted  prometheus.Counter
	sessionsTotal    prometheus.Gauge

	// Analysis
	analysisDuration prometheus.Histogram
	analysisFailures prometheus.Counter

	// Store
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec
	blobBytes    *prometheus.HistogramVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// Transport
	mqttMessages   *prometheus.CounterVec
	queueSize      prometheus.Gauge
	queueEnqueues  *prometheus.CounterVec
	workerLatency  prometheus.Histogram
	workerFailures prometheus.Counter

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gaitlog",
		subsystem:        "ingest",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      prometheus.Labels{},
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := maps.Clone(m.constLabels)

	m.batchesIngested = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("batches_total"),
		Help:        "Total number of batches merged into sessions, by outcome (created, appended)",
		ConstLabels: constLabels,
	}, []string{"outcome"})

	m.samplesIngested = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("samples_total"),
		Help:        "Total number of converted samples appended to sessions",
		ConstLabels: constLabels,
	})

	m.batchesDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("batches_duplicate_total"),
		Help:        "Total number of batches skipped because their sequence number was already applied",
		ConstLabels: constLabels,
	})

	m.batchSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("batch_size_samples"),
		Help:        "Number of samples per ingested batch",
		Buckets:     []float64{1, 10, 50, 100, 250, 500, 1000, 5000},
		ConstLabels: constLabels,
	})

	m.mergeConflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("merge_conflicts_total"),
		Help:        "Total number of conditional writes rejected because the session changed underneath",
		ConstLabels: constLabels,
	})

	m.mergeRetries = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("merge_attempts"),
		Help:        "Read-merge-write attempts needed per successful ingest",
		Buckets:     []float64{1, 2, 3, 4, 5, 8},
		ConstLabels: constLabels,
	})

	m.validationErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("validation_errors_total"),
		Help:        "Total number of rejected ingest requests",
		ConstLabels: constLabels,
	})

	m.sessionsDeleted = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("sessions_deleted_total"),
		Help:        "Total number of delete requests served",
		ConstLabels: constLabels,
	})

	m.sessionsTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("sessions"),
		Help:        "Number of sessions currently stored",
		ConstLabels: constLabels,
	})

	m.analysisDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("analysis_duration_milliseconds"),
		Help:        "Step analysis duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})

	m.analysisFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("analysis_failures_total"),
		Help:        "Total number of sessions for which no steps could be extracted",
		ConstLabels: constLabels,
	})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("store_latency_milliseconds"),
		Help:        "Session store operation latency in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"driver", "op"})

	m.storeErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("store_errors_total"),
		Help:        "Total number of session store errors",
		ConstLabels: constLabels,
	}, []string{"driver", "op"})

	m.blobBytes = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("blob_bytes"),
		Help:        "Encoded sample history size in bytes",
		Buckets:     prometheus.ExponentialBuckets(1024, 4, 8),
		ConstLabels: constLabels,
	}, []string{"codec"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_requests_total"),
		Help:        "Total number of HTTP requests by endpoint and method",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("errors_by_endpoint_total"),
		Help:        "Total number of errors by endpoint",
		ConstLabels: constLabels,
	}, []string{"endpoint", "method", "error_type"})

	m.mqttMessages = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("mqtt_messages_total"),
		Help:        "Total number of MQTT ingest messages by result",
		ConstLabels: constLabels,
	}, []string{"result"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("queue_size"),
		Help:        "Messages waiting in the ingest queue",
		ConstLabels: constLabels,
	})

	m.queueEnqueues = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("queue_enqueues_total"),
		Help:        "Enqueue attempts by result (accepted, full, closed)",
		ConstLabels: constLabels,
	}, []string{"result"})

	m.workerLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("worker_latency_milliseconds"),
		Help:        "Time a worker spent handling one queued message",
		Buckets:     m.histogramBuckets,
		ConstLabels: constLabels,
	})

	m.workerFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("worker_failures_total"),
		Help:        "Queued messages whose handler returned an error",
		ConstLabels: constLabels,
	})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "System memory usage in bytes",
		ConstLabels: constLabels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Number of goroutines",
		ConstLabels: constLabels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_time_milliseconds"),
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: constLabels,
	})
}

// RecordBatchIngested counts a merged batch. outcome is "created" or "appended".
func RecordBatchIngested(outcome string, samples int) {
	globalManager.batchesIngested.WithLabelValues(outcome).Inc()
	globalManager.samplesIngested.Add(float64(samples))
	globalManager.batchSize.Observe(float64(samples))
}

// RecordBatchDuplicate increments the duplicate batches counter.
func RecordBatchDuplicate() {
	globalManager.batchesDuplicate.Inc()
}

// RecordMergeConflict increments the optimistic-concurrency conflict counter.
func RecordMergeConflict() {
	globalManager.mergeConflicts.Inc()
}

// RecordMergeAttempts records how many attempts an ingest needed.
func RecordMergeAttempts(attempts int) {
	globalManager.mergeRetries.Observe(float64(attempts))
}

// RecordValidationError increments the rejected request counter.
func RecordValidationError() {
	globalManager.validationErrors.Inc()
}

// RecordSessionDeleted increments the delete counter.
func RecordSessionDeleted() {
	globalManager.sessionsDeleted.Inc()
}

// UpdateSessionsTotal sets the stored sessions gauge.
func UpdateSessionsTotal(count int) {
	globalManager.sessionsTotal.Set(float64(count))
}

// RecordAnalysisDuration records step analysis latency.
func RecordAnalysisDuration(latencyMs float64) {
	globalManager.analysisDuration.Observe(latencyMs)
}

// RecordAnalysisFailure increments the failed analysis counter.
func RecordAnalysisFailure() {
	globalManager.analysisFailures.Inc()
}

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(driver, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(driver, op).Observe(latencyMs)
}

// RecordStoreError increments the store error counter.
func RecordStoreError(driver, op string) {
	globalManager.storeErrors.WithLabelValues(driver, op).Inc()
}

// RecordBlobBytes records the encoded sample history size.
func RecordBlobBytes(codec string, size int) {
	globalManager.blobBytes.WithLabelValues(codec).Observe(float64(size))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordMQTTMessage counts an MQTT ingest message by result
// ("ok", "duplicate", "invalid", "error", "rejected").
func RecordMQTTMessage(result string) {
	globalManager.mqttMessages.WithLabelValues(result).Inc()
}

// UpdateQueueSize sets the number of queued messages.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue counts an enqueue attempt by result.
func RecordQueueEnqueue(result string) {
	globalManager.queueEnqueues.WithLabelValues(result).Inc()
}

// RecordWorkerLatency records how long a worker spent on one message.
func RecordWorkerLatency(ms float64) {
	globalManager.workerLatency.Observe(ms)
}

// RecordWorkerFailure counts a message whose handler failed.
func RecordWorkerFailure() {
	globalManager.workerFailures.Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
