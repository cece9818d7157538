// Package otel provides OpenTelemetry metric exporter bindings for ward
// counters and the VerifyAccess latency histogram.
//
// [NewOTelExporter] registers Int64ObservableCounter instruments for each ward
// metric and Int64ObservableGauge per histogram bucket. A single callback
// reads [ward.Engine.Metrics] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider — callers supply the Meter.
//   - Mutate engine state.
package otel
