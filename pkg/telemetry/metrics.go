package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the storage engine and handle pool.
// A disabled Metrics is a valid no-op.
type Metrics struct {
	config MetricsConfig

	// Engine operation metrics
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Record metrics
	recordsInserted *prometheus.CounterVec
	recordsDeleted  *prometheus.CounterVec
	recordsLoaded   *prometheus.CounterVec
	blobBytes       *prometheus.HistogramVec

	// Error metrics
	errorsByKind *prometheus.CounterVec

	// Pool metrics
	engineInits        prometheus.Counter
	handleCheckouts    *prometheus.CounterVec
	handlesOutstanding prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of storage engine operations",
			},
			[]string{"operation", "type", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of storage engine operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation", "type"},
		),

		recordsInserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_inserted_total",
				Help:      "Total number of records committed by batch inserts",
			},
			[]string{"type"},
		),
		recordsDeleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_deleted_total",
				Help:      "Total number of records removed",
			},
			[]string{"type"},
		),
		recordsLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_loaded_total",
				Help:      "Total number of records produced by queries",
			},
			[]string{"type"},
		),
		blobBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "blob_bytes",
				Help:      "Size of binary payloads in bytes",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
			},
			[]string{"type", "direction"},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors by error kind",
			},
			[]string{"kind"},
		),

		engineInits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "engine_initializations_total",
				Help:      "Number of times the storage engine was initialized",
			},
		),
		handleCheckouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handle_checkouts_total",
				Help:      "Total number of handle checkouts by outcome",
			},
			[]string{"outcome"},
		),
		handlesOutstanding: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "handles_outstanding",
				Help:      "Current number of checked-out handles",
			},
		),
	}

	registry.MustRegister(
		m.operations,
		m.operationDuration,
		m.recordsInserted,
		m.recordsDeleted,
		m.recordsLoaded,
		m.blobBytes,
		m.errorsByKind,
		m.engineInits,
		m.handleCheckouts,
		m.handlesOutstanding,
	)

	return m, nil
}

// RecordOperation records an engine operation with its outcome and duration.
func (m *Metrics) RecordOperation(operation, typeName string, err error, duration time.Duration) {
	if m.operations == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operations.WithLabelValues(operation, typeName, status).Inc()
	m.operationDuration.WithLabelValues(operation, typeName).Observe(duration.Seconds())
}

// RecordInserted adds committed inserts for a type.
func (m *Metrics) RecordInserted(typeName string, n int) {
	if m.recordsInserted == nil {
		return
	}
	m.recordsInserted.WithLabelValues(typeName).Add(float64(n))
}

// RecordDeleted adds removed records for a type.
func (m *Metrics) RecordDeleted(typeName string, n int64) {
	if m.recordsDeleted == nil {
		return
	}
	m.recordsDeleted.WithLabelValues(typeName).Add(float64(n))
}

// RecordLoaded counts one record produced by a query.
func (m *Metrics) RecordLoaded(typeName string) {
	if m.recordsLoaded == nil {
		return
	}
	m.recordsLoaded.WithLabelValues(typeName).Inc()
}

// ObserveBlob records a payload size. direction is "write" or "read".
func (m *Metrics) ObserveBlob(typeName, direction string, size int) {
	if m.blobBytes == nil {
		return
	}
	m.blobBytes.WithLabelValues(typeName, direction).Observe(float64(size))
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m.errorsByKind == nil || kind == "" {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// RecordEngineInit counts a storage engine initialization.
func (m *Metrics) RecordEngineInit() {
	if m.engineInits == nil {
		return
	}
	m.engineInits.Inc()
}

// RecordCheckout records a checkout attempt. outcome is "ok" or an error kind.
func (m *Metrics) RecordCheckout(outcome string) {
	if m.handleCheckouts == nil {
		return
	}
	m.handleCheckouts.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.handlesOutstanding.Inc()
	}
}

// RecordCheckin records a handle being released.
func (m *Metrics) RecordCheckin() {
	if m.handlesOutstanding == nil {
		return
	}
	m.handlesOutstanding.Dec()
}

// Registry returns the underlying registry, or nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. It returns the
// server so callers can shut it down; nil when metrics are disabled.
func (m *Metrics) StartMetricsServer(logger *Logger) *http.Server {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Metrics are best effort; the application keeps running.
			logger.WithError(err).Error(fmt.Sprintf("metrics server on %s stopped", m.config.ListenAddress))
		}
	}()

	return server
}
