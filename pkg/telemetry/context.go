package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/SoftwareTree/JDXAndroidImagesExample/pkg/ormerr"
)

// Telemetry bundles logging, tracing, and metrics for the persistence layer.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// Nop returns telemetry that records nothing. Components use it when the
// caller supplies none.
func Nop() *Telemetry {
	cfg := DefaultConfig()
	m, _ := NewMetrics(MetricsConfig{})
	return &Telemetry{
		Logger:  NopLogger(),
		Tracer:  NopTracer(),
		Metrics: m,
		Config:  cfg,
	}
}

// OrNop returns t, or Nop() when t is nil.
func OrNop(t *Telemetry) *Telemetry {
	if t == nil {
		return Nop()
	}
	return t
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context,
// or nil if none is attached.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes and stops the tracer.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.Tracer.Shutdown(ctx)
}

// Flush forces all pending telemetry data to be exported.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// InstrumentedContext carries the span, logger, and timer of one engine operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger

	tel       *Telemetry
	timer     *Timer
	operation string
	typeName  string
}

// StartOperation begins an instrumented engine operation on a record type.
// typeName may be empty for engine-wide operations.
func (t *Telemetry) StartOperation(ctx context.Context, operation, typeName string, attrs ...attribute.KeyValue) *InstrumentedContext {
	spanCtx, span := t.Tracer.StartOperationSpan(ctx, operation, typeName, attrs...)

	logger := t.Logger.WithField("operation", operation)
	if typeName != "" {
		logger = logger.WithType(typeName)
	}
	if span.SpanContext().IsValid() {
		logger = logger.WithField("trace_id", span.SpanContext().TraceID().String())
	}

	return &InstrumentedContext{
		Ctx:       spanCtx,
		Span:      span,
		Logger:    logger,
		tel:       t,
		timer:     NewTimer(),
		operation: operation,
		typeName:  typeName,
	}
}

// End finishes the operation, recording duration, outcome, and error kind.
func (ic *InstrumentedContext) End(err error) {
	d := ic.timer.Duration()
	ic.tel.Metrics.RecordOperation(ic.operation, ic.typeName, err, d)

	if err != nil {
		kind := string(ormerr.KindOf(err))
		ic.tel.Metrics.RecordError(kind)
		if kind != "" {
			ic.Span.SetAttributes(AttrErrorKind.String(kind))
		}
		RecordError(ic.Span, err)
		ic.Logger.WithError(err).Debugf("%s failed after %s", ic.operation, d)
	} else {
		RecordSuccess(ic.Span)
		ic.Logger.Debugf("%s completed in %s", ic.operation, d)
	}
	ic.Span.End()
}
