package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ingest/internal/ingest"
)

// Registry encapsulates all metrics and provides a clean interface
// for recording metrics without global state
type Registry struct {
	registry *prometheus.Registry

	// Batch metrics
	batchTotal    *prometheus.CounterVec
	batchDuration prometheus.Histogram
	batchSize     prometheus.Histogram
	itemTotal     *prometheus.CounterVec

	validationFailures *prometheus.CounterVec

	// Log appender metrics
	publishTotal    *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	rateLimitWait   prometheus.Histogram

	// Validator registry
	validators prometheus.Gauge

	// Controller/Database metrics
	databaseOperationTotal    *prometheus.CounterVec
	databaseOperationDuration *prometheus.HistogramVec

	// System health metrics
	systemInfo *prometheus.GaugeVec
	startTime  prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		batchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_batch_total",
				Help: "Total number of processed batches",
			},
			[]string{"status"}, // all_success, partial_success, all_failed, aborted, error
		),

		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_batch_duration_seconds",
				Help:    "Time spent processing a batch end to end",
				Buckets: prometheus.DefBuckets,
			},
		),

		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_batch_size",
				Help:    "Number of events in submitted batches",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),

		itemTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_item_total",
				Help: "Total number of batch items by final step and status",
			},
			[]string{"step", "status", "kind"},
		),

		validationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_validation_failure_total",
				Help: "Total number of validator rejections",
			},
			[]string{"event_type", "strategy"},
		),

		publishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_publish_total",
				Help: "Total number of log append operations",
			},
			[]string{"event_type", "status"}, // success, transient, permanent
		),

		publishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_publish_duration_seconds",
				Help:    "Time spent appending a single event to the log",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"event_type"},
		),

		rateLimitWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_rate_limit_wait_seconds",
				Help:    "Time publishes spent waiting for the rate limiter",
				Buckets: []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),

		validators: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_validators",
				Help: "Number of event types with a published validator",
			},
		),

		databaseOperationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_database_operation_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"}, // operation: get_event_type, list_event_types, append_record
		),

		databaseOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingest_database_operation_duration_seconds",
				Help:    "Time spent on database operations",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"operation"},
		),

		systemInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingest_system_info",
				Help: "System information (value is always 1, labels contain info)",
			},
			[]string{"version", "log_backend"},
		),

		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_start_time_seconds",
				Help: "Unix timestamp when the application started",
			},
		),
	}

	// add default Go metrics (memory, GC, goroutines, etc.)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(
		r.batchTotal,
		r.batchDuration,
		r.batchSize,
		r.itemTotal,
		r.validationFailures,
		r.publishTotal,
		r.publishDuration,
		r.rateLimitWait,
		r.validators,
		r.databaseOperationTotal,
		r.databaseOperationDuration,
		r.systemInfo,
		r.startTime,
	)

	r.startTime.SetToCurrentTime()

	return r
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordBatch records the outcome of one ProcessBatch call. A batch-level
// error is counted under status "error" and its items are not recorded.
func (r *Registry) RecordBatch(size int, result ingest.BatchResult, duration time.Duration, err error) {
	r.batchSize.Observe(float64(size))
	r.batchDuration.Observe(duration.Seconds())

	if err != nil {
		r.batchTotal.WithLabelValues("error").Inc()
		return
	}

	r.batchTotal.WithLabelValues(string(result.Status)).Inc()
	for _, it := range result.Items {
		r.itemTotal.WithLabelValues(it.Step.String(), it.Status.String(), string(it.Kind)).Inc()
	}
}

// RecordValidationFailure counts one validator rejecting one event.
func (r *Registry) RecordValidationFailure(eventType, strategy string) {
	r.validationFailures.WithLabelValues(eventType, strategy).Inc()
}

// RecordPublish records a single log append.
func (r *Registry) RecordPublish(eventType string, duration time.Duration, err error) {
	status := "success"
	switch {
	case err == nil:
	case ingest.IsRetryable(err):
		status = "transient"
	default:
		status = "permanent"
	}

	r.publishTotal.WithLabelValues(eventType, status).Inc()
	r.publishDuration.WithLabelValues(eventType).Observe(duration.Seconds())
}

// RecordRateLimitWait records how long a publish was held back.
func (r *Registry) RecordRateLimitWait(wait time.Duration) {
	r.rateLimitWait.Observe(wait.Seconds())
}

// SetValidatorCount updates the published validator gauge.
func (r *Registry) SetValidatorCount(n int) {
	r.validators.Set(float64(n))
}

// RecordDatabaseOperation records a database operation
func (r *Registry) RecordDatabaseOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.databaseOperationTotal.WithLabelValues(operation, status).Inc()
	r.databaseOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetSystemInfo sets system information metrics
func (r *Registry) SetSystemInfo(version, logBackend string) {
	r.systemInfo.WithLabelValues(version, logBackend).Set(1)
}
