// Package prometheus exposes Issuer metrics to Prometheus.
//
// [NewPrometheusExporter] serves an [http.Handler] rendering every counter and latency
// histogram in text exposition format without any registry. [NewCollector] instead
// returns a client_golang Collector for callers that already run a registry.
// Counter names are jwt_*_total; histograms are jwt_*_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry; callers mount the Handler or
//     register the Collector themselves.
//   - Mutate Issuer state.
package prometheus
