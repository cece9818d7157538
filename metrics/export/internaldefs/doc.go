// Package internaldefs exposes stable metric name and label definitions shared by
// exporter implementations.
//
// Counter help strings and histogram bucket boundaries live here so that both
// the Prometheus and OTel exporters expose identical series. Changes to
// definitions in this package affect all exporters simultaneously; the bucket
// boundary lists must track the engine's histogram layout.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
