// Package metrics provides Prometheus metrics for the playstack analytics service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
	defaultNamespace       = "playstack"
	defaultSubsystem       = "analytics"
)

// latencyBuckets covers 0.25ms to about 4s for the millisecond histograms.
var latencyBuckets = prometheus.ExponentialBuckets(0.25, 2, 15) //nolint:gochecknoglobals // read-only bucket layout

// Outcome label values shared by several collectors.
const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"

	NotificationSubmitted = "submitted"
	NotificationDuplicate = "duplicate"
	NotificationRejected  = "rejected"
	NotificationInvalid   = "invalid"
)

// Manager manages all Prometheus metrics for the playstack service.
type Manager struct {
	namespace       string
	subsystem       string
	enabled         bool
	refreshInterval time.Duration
	constLabels     map[string]string
	registry        prometheus.Registerer

	// Aggregation pipeline
	aggregations        *prometheus.CounterVec
	aggregationLatency  prometheus.Histogram
	aggregationPlays    prometheus.Histogram
	dataGaps            *prometheus.CounterVec
	preferenceFallbacks *prometheus.CounterVec
	cacheEntries        prometheus.Gauge

	// Rate limiter
	limiterDecisions   *prometheus.CounterVec
	limiterStoreErrors prometheus.Counter
	limiterBuckets     prometheus.Gauge

	// Freshness
	freshnessStates *prometheus.CounterVec

	// Recompute queue and workers
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueRejected      prometheus.Counter
	recomputeLatency   prometheus.Histogram
	recomputeErrors    prometheus.Counter
	workerCount        prometheus.Gauge
	notifications      *prometheus.CounterVec
	notificationsDedup prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       defaultNamespace,
		subsystem:       defaultSubsystem,
		enabled:         true,
		refreshInterval: defaultRefreshInterval,
		registry:        prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	constLabels := prometheus.Labels(m.constLabels)

	m.aggregations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "aggregations_total",
		Help: "Aggregation pipeline calls by cache outcome",
	}, []string{"cache"})

	m.aggregationLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "aggregation_latency_milliseconds",
		Help:    "Time spent building stacks for one tenant",
		Buckets: latencyBuckets,
	})

	m.aggregationPlays = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "aggregation_plays",
		Help:    "Number of contributing plays per aggregation",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	m.dataGaps = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "data_gaps_total",
		Help: "Plays whose derived metrics were degraded, by kind",
	}, []string{"kind"})

	m.preferenceFallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "preference_fallbacks_total",
		Help: "Rejected tenant thresholds replaced by defaults",
	}, []string{"field"})

	m.cacheEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "cache_entries",
		Help: "Tenants with a cached aggregate",
	})

	m.limiterDecisions = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "rate_limit_decisions_total",
		Help: "Rate limiter decisions by outcome",
	}, []string{"outcome"})

	m.limiterStoreErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "rate_limit_store_errors_total",
		Help: "Rate limiter bucket store failures",
	})

	m.limiterBuckets = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "rate_limit_buckets",
		Help: "Buckets held by the in-memory limiter store",
	})

	m.freshnessStates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "freshness_evaluations_total",
		Help: "Freshness evaluations by resulting state",
	}, []string{"state"})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "recompute_queue_size",
		Help: "Pending recompute notifications",
	})

	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "recompute_queue_capacity",
		Help: "Maximum pending recompute notifications",
	})

	m.queueRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "recompute_queue_rejected_total",
		Help: "Notifications dropped because the queue was full or closed",
	})

	m.recomputeLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "recompute_latency_milliseconds",
		Help:    "Load plus aggregation time for one recompute",
		Buckets: latencyBuckets,
	})

	m.recomputeErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "recompute_errors_total",
		Help: "Recomputes that failed to load or aggregate",
	})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "worker_count",
		Help: "Recompute workers running",
	})

	m.notifications = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "notifications_total",
		Help: "Update notifications consumed, by result",
	}, []string{"result"})

	m.notificationsDedup = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "notification_dedupe_size",
		Help: "Notification IDs remembered for deduplication",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "http_requests_total",
		Help: "Total number of HTTP requests by endpoint and method",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name:    "http_request_duration_milliseconds",
		Help:    "HTTP request duration in milliseconds",
		Buckets: latencyBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorRateByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "errors_by_endpoint_total",
		Help: "Total number of errors by endpoint",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "system_memory_usage_bytes",
		Help: "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: constLabels,
		Name: "system_goroutine_count",
		Help: "Number of goroutines",
	})
}

// Aggregation pipeline.

// RecordAggregation counts one pipeline call and its latency.
func RecordAggregation(cacheHit bool, latencyMs float64, plays int) {
	if !globalManager.enabled {
		return
	}
	outcome := OutcomeMiss
	if cacheHit {
		outcome = OutcomeHit
	}
	globalManager.aggregations.WithLabelValues(outcome).Inc()
	globalManager.aggregationLatency.Observe(latencyMs)
	globalManager.aggregationPlays.Observe(float64(plays))
}

// RecordDataGaps adds n degraded plays of the given kind.
func RecordDataGaps(kind string, n int) {
	if !globalManager.enabled || n <= 0 {
		return
	}
	globalManager.dataGaps.WithLabelValues(kind).Add(float64(n))
}

// RecordPreferenceFallback counts a rejected tenant threshold.
func RecordPreferenceFallback(field string) {
	if !globalManager.enabled {
		return
	}
	globalManager.preferenceFallbacks.WithLabelValues(field).Inc()
}

// UpdateCacheEntries sets the number of cached tenants.
func UpdateCacheEntries(n int) {
	globalManager.cacheEntries.Set(float64(n))
}

// Rate limiter.

// RecordLimiterDecision counts an allow or deny.
func RecordLimiterDecision(allowed bool) {
	if !globalManager.enabled {
		return
	}
	outcome := OutcomeDenied
	if allowed {
		outcome = OutcomeAllowed
	}
	globalManager.limiterDecisions.WithLabelValues(outcome).Inc()
}

// RecordLimiterStoreError counts a bucket store failure.
func RecordLimiterStoreError() {
	globalManager.limiterStoreErrors.Inc()
}

// UpdateLimiterBuckets sets the number of in-memory buckets.
func UpdateLimiterBuckets(n int) {
	globalManager.limiterBuckets.Set(float64(n))
}

// Freshness.

// RecordFreshness counts an evaluation outcome.
func RecordFreshness(state string) {
	if !globalManager.enabled {
		return
	}
	globalManager.freshnessStates.WithLabelValues(state).Inc()
}

// Recompute queue and workers.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts a notification that could not be queued.
func RecordQueueRejected() {
	globalManager.queueRejected.Inc()
}

// RecordRecompute records one recompute's latency and whether it failed.
func RecordRecompute(latencyMs float64, err error) {
	globalManager.recomputeLatency.Observe(latencyMs)
	if err != nil {
		globalManager.recomputeErrors.Inc()
	}
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordNotification counts a consumed notification by result
// (submitted, duplicate, rejected, invalid).
func RecordNotification(result string) {
	globalManager.notifications.WithLabelValues(result).Inc()
}

// UpdateNotificationDedupeSize sets the dedupe set size.
func UpdateNotificationDedupeSize(n int64) {
	globalManager.notificationsDedup.Set(float64(n))
}

// HTTP.

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

// System.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// Init replaces the global manager with one built from opts on a fresh
// registry. Call it once at startup, before anything records metrics and
// before the /metrics handler is built.
func Init(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// Enabled reports whether Record* helpers are collecting.
func Enabled() bool {
	return globalManager.enabled
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
