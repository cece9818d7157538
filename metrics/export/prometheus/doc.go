// Package prometheus provides Prometheus collectors for ward metrics.
//
// [NewPrometheusExporter] accepts a [ward.Engine] and exposes an [http.Handler]
// that renders all ward counters and the VerifyAccess latency histogram in
// Prometheus text exposition format. Counter names are prefixed ward_*_total;
// the histogram is ward_verify_access_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the Handler.
//   - Mutate engine state.
package prometheus
