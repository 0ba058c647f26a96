// Package metrics provides Prometheus metrics for the tourney matchmaking service.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metric naming.
const (
	DefaultNamespace = "tourney"
	DefaultSubsystem = "matchmaking"
)

var (
	// pairingSizeBuckets covers candidate sets and search steps, which grow
	// combinatorially with the field size.
	pairingSizeBuckets = prometheus.ExponentialBuckets(1, 4, 12)
	unitBuckets        = prometheus.LinearBuckets(0, 0.1, 11)
)

// Manager owns every metric the service exports.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer
	auto             promauto.Factory

	// Pairing
	roundsGenerated      prometheus.Counter
	pairingSetsEvaluated prometheus.Histogram
	pairingSearchSteps   prometheus.Histogram
	pairingDuration      *prometheus.HistogramVec
	pairingFailures      *prometheus.CounterVec
	pairingQuality       prometheus.Histogram

	// Ratings
	ratingUpdates       prometheus.Counter
	ratingUpdateErrors  prometheus.Counter
	ratingUpdateRetries prometheus.Counter
	ratingDeadLetters   prometheus.Gauge
	surpriseFactor      prometheus.Histogram

	// Results and players
	resultsReported  prometheus.Counter
	resultsDuplicate prometheus.Counter
	playersRated     prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Repository
	repositoryRecordsTotal  prometheus.Gauge
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton used by the package-level recorders

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // served at /metrics

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its metrics.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        DefaultNamespace,
		subsystem:        DefaultSubsystem,
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.auto = promauto.With(m.registry)
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return m.auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return m.auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return m.auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return m.auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return m.auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: buckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric definition
	latency := m.histogramBuckets

	m.roundsGenerated = m.counter("rounds_generated_total", "Rounds paired and committed")
	m.pairingSetsEvaluated = m.histogram("pairing_sets_evaluated", "Complete pairing sets scored per round", pairingSizeBuckets)
	m.pairingSearchSteps = m.histogram("pairing_search_steps", "Search steps spent per round", pairingSizeBuckets)
	m.pairingDuration = m.histogramVec("pairing_duration_milliseconds", "Round pairing time in milliseconds", latency, "strategy")
	m.pairingFailures = m.counterVec("pairing_failures_total", "Rounds that could not be paired", "reason")
	m.pairingQuality = m.histogram("pairing_quality_score", "Score of the selected pairing set", unitBuckets)

	m.ratingUpdates = m.counter("rating_updates_total", "Matches whose ratings were applied")
	m.ratingUpdateErrors = m.counter("rating_update_errors_total", "Failed rating update attempts")
	m.ratingUpdateRetries = m.counter("rating_update_retries_total", "Rating update attempts that were retried")
	m.ratingDeadLetters = m.gauge("rating_dead_letters", "Rating jobs that exhausted their attempts")
	m.surpriseFactor = m.histogram("surprise_factor", "Distance between predicted and actual match outcome", unitBuckets)

	m.resultsReported = m.counter("results_reported_total", "Match results accepted")
	m.resultsDuplicate = m.counter("results_duplicate_total", "Match results ignored as duplicates")
	m.playersRated = m.gauge("players_rated", "Players with a rating profile")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", latency,
		"endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Rating jobs waiting in the queue")
	m.queueCapacity = m.gauge("queue_capacity", "Rating queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Rating queue size over capacity")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Rating jobs enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Rating jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Rating jobs rejected by the queue")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Enqueue latency in milliseconds", latency)

	m.workerCount = m.gauge("worker_count", "Configured rating workers")
	m.workerActiveCount = m.gauge("worker_active_count", "Rating workers currently running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Rating job latency in milliseconds", latency)
	m.workerErrors = m.counter("worker_errors_total", "Rating jobs that failed in a worker")

	m.repositoryRecordsTotal = m.gauge("repository_records_total", "Players on the conservative rating ladder")
	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds", "Store write latency in milliseconds", latency)
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds", "Store read latency in milliseconds", latency)

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorsByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "HTTP errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Running goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Recent GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100})
}

// Register adds extra collectors, such as database pool stats, to the
// service registry.
func Register(collectors ...prometheus.Collector) error {
	for _, c := range collectors {
		if err := customRegistry.Register(c); err != nil {
			return fmt.Errorf("%w: %w", ErrRegisterFailed, err)
		}
	}
	return nil
}

// Unregister removes collectors added with Register.
func Unregister(collectors ...prometheus.Collector) {
	for _, c := range collectors {
		customRegistry.Unregister(c)
	}
}

// GetRegistry returns the registry served at /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
