// Package otel provides OpenTelemetry metric exporter bindings for Issuer counters and
// latency histograms.
//
// [NewOTelExporter] registers an Int64ObservableCounter for each counter and an
// Int64ObservableGauge per histogram bucket. A single callback reads
// [jwt.Issuer.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate Issuer state.
package otel
