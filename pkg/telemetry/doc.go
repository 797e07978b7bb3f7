// Package telemetry provides the observability instrumentation of the
// persistence layer: structured logging with zerolog, OpenTelemetry tracing,
// and Prometheus metrics.
//
// # Usage
//
// Build telemetry once at startup and hand it to the storage engine and the
// handle pool:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	store, err := stores.NewSQLiteStore(stores.Config{
//	    Path:      "images.db",
//	    Registry:  reg,
//	    Telemetry: tel,
//	})
//
// Components that receive no telemetry fall back to Nop, which discards logs,
// never samples spans, and keeps no metrics.
//
// # Operations
//
// Every engine operation is wrapped with StartOperation and End:
//
//	op := tel.StartOperation(ctx, "insert_batch", "model.Person")
//	ids, err := insert(op.Ctx)
//	op.End(err)
//
// End records the orm_operations_total and orm_operation_duration_seconds
// series, counts classified failures in orm_errors_total by error kind, and
// closes the span.
//
// # Metrics
//
// When metrics are enabled the registry is exposed over HTTP by
// StartMetricsServer. Besides the operation series the pool reports
// orm_handles_outstanding, orm_handle_checkouts_total and
// orm_engine_initializations_total, and the engine reports records inserted,
// deleted and loaded per type, plus blob payload sizes.
package telemetry
