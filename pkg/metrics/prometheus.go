// Package metrics provides Prometheus metrics for the SLA risk service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Ingestion
	eventsIngested  *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	eventsDuplicate prometheus.Counter
	tasksFinalized  prometheus.Counter

	// Feature store
	storeEntries      prometheus.Gauge
	storeUpdates      *prometheus.CounterVec
	storeStaleFields  prometheus.Counter
	storeEvictions    *prometheus.CounterVec
	storeOpLatencyMs  *prometheus.HistogramVec
	trackerOpenTasks  prometheus.Gauge

	// Scoring and decisions
	predictions         prometheus.Counter
	predictionErrors    *prometheus.CounterVec
	predictionLatencyMs prometheus.Histogram
	decisions           *prometheus.CounterVec

	// Training
	trainingRuns      *prometheus.CounterVec
	trainingAUC       prometheus.Gauge
	trainingRows      *prometheus.GaugeVec
	trainingPosWeight prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue and workers
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueRejected     *prometheus.CounterVec
	workerCount       prometheus.Gauge
	workerLatencyMs   prometheus.Histogram
	workerErrors      prometheus.Counter
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "slarisk",
		subsystem:        "",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
		constLabels:      prometheus.Labels{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.eventsIngested = m.counterVec("events_ingested_total", "Raw delivery events accepted, by event type", "event_type")
	m.eventsDropped = m.counterVec("events_dropped_total", "Raw events dropped at the aggregation boundary, by reason", "reason")
	m.eventsDuplicate = m.counter("events_duplicate_total", "Events rejected by event-id deduplication")
	m.tasksFinalized = m.counter("tasks_finalized_total", "Tasks finalized by a delivered milestone")

	m.storeEntries = m.gauge("feature_store_entries", "Tasks currently held by the online feature store")
	m.storeUpdates = m.counterVec("feature_store_updates_total", "Feature store mutations, by backend", "backend")
	m.storeStaleFields = m.counter("feature_store_stale_fields_total", "Field updates ignored because a newer event time was already recorded")
	m.storeEvictions = m.counterVec("feature_store_evictions_total", "Feature store evictions, by reason", "reason")
	m.storeOpLatencyMs = m.histogramVec("feature_store_op_latency_milliseconds", "Feature store operation latency", "op")
	m.trackerOpenTasks = m.gauge("tracker_open_tasks", "Tasks with an open (non-finalized) aggregation record")

	m.predictions = m.counter("predictions_total", "Successful probability predictions")
	m.predictionErrors = m.counterVec("prediction_errors_total", "Failed predictions, by error kind", "kind")
	m.predictionLatencyMs = m.histogram("prediction_latency_milliseconds", "Single prediction latency")
	m.decisions = m.counterVec("decisions_total", "Decisions issued, by risk band", "band")

	m.trainingRuns = m.counterVec("training_runs_total", "Training runs, by outcome", "outcome")
	m.trainingAUC = m.gauge("training_validation_auc", "Validation AUC of the last training run")
	m.trainingRows = m.gaugeVec("training_rows", "Rows in the last training run, by partition", "partition")
	m.trainingPosWeight = m.gauge("training_positive_weight", "Positive class weight of the last training run")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Current size of the event queue")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of the event queue")
	m.queueRejected = m.counterVec("queue_rejected_total", "Enqueue rejections, by reason", "reason")
	m.workerCount = m.gauge("worker_count", "Number of event workers")
	m.workerLatencyMs = m.histogram("worker_processing_latency_milliseconds", "Per-event worker processing latency")
	m.workerErrors = m.counter("worker_errors_total", "Events a worker failed to apply")
}

// Ingestion.

// RecordEventIngested counts an accepted raw event.
func RecordEventIngested(eventType string) {
	globalManager.eventsIngested.WithLabelValues(eventType).Inc()
}

// RecordEventsDropped counts n events dropped for reason.
func RecordEventsDropped(reason string, n int) {
	if n > 0 {
		globalManager.eventsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

// RecordEventDuplicate counts an event rejected by deduplication.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordTaskFinalized counts a finalized task.
func RecordTaskFinalized() {
	globalManager.tasksFinalized.Inc()
}

// Feature store.

// UpdateStoreEntries sets the number of tasks held by the feature store.
func UpdateStoreEntries(n int) {
	globalManager.storeEntries.Set(float64(n))
}

// RecordStoreUpdate counts a store mutation on backend.
func RecordStoreUpdate(backend string) {
	globalManager.storeUpdates.WithLabelValues(backend).Inc()
}

// RecordStaleFields counts field updates ignored for being older than the stored value.
func RecordStaleFields(n int) {
	if n > 0 {
		globalManager.storeStaleFields.Add(float64(n))
	}
}

// RecordStoreEviction counts an eviction.
func RecordStoreEviction(reason string) {
	globalManager.storeEvictions.WithLabelValues(reason).Inc()
}

// RecordStoreLatency observes a store operation latency.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeOpLatencyMs.WithLabelValues(op).Observe(latencyMs)
}

// UpdateTrackerOpenTasks sets the number of open aggregation records.
func UpdateTrackerOpenTasks(n int) {
	globalManager.trackerOpenTasks.Set(float64(n))
}

// Scoring and decisions.

// RecordPrediction observes a successful prediction.
func RecordPrediction(latencyMs float64) {
	globalManager.predictions.Inc()
	globalManager.predictionLatencyMs.Observe(latencyMs)
}

// RecordPredictionError counts a failed prediction.
func RecordPredictionError(kind string) {
	globalManager.predictionErrors.WithLabelValues(kind).Inc()
}

// RecordDecision counts a decision for band.
func RecordDecision(band string) {
	globalManager.decisions.WithLabelValues(band).Inc()
}

// Training.

// RecordTrainingRun counts a training run with outcome "success" or "failure".
func RecordTrainingRun(outcome string) {
	globalManager.trainingRuns.WithLabelValues(outcome).Inc()
}

// UpdateTrainingResult publishes the figures of a finished training run.
func UpdateTrainingResult(auc float64, trainRows, validationRows int, posWeight float64) {
	globalManager.trainingAUC.Set(auc)
	globalManager.trainingRows.WithLabelValues("train").Set(float64(trainRows))
	globalManager.trainingRows.WithLabelValues("validation").Set(float64(validationRows))
	globalManager.trainingPosWeight.Set(posWeight)
}

// HTTP.

// RecordHTTPRequest counts and times an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Queue and workers.

// UpdateQueueSize sets the current queue length.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// RecordQueueRejected counts an enqueue rejection.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// UpdateWorkerCount sets the number of event workers.
func UpdateWorkerCount(n int) {
	globalManager.workerCount.Set(float64(n))
}

// RecordWorkerLatency observes a per-event processing latency.
func RecordWorkerLatency(latencyMs float64) {
	globalManager.workerLatencyMs.Observe(latencyMs)
}

// RecordWorkerError counts an event a worker failed to apply.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
