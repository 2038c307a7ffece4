// Package prometheus exposes goSession engine metrics as a
// prometheus.Collector.
//
// [NewExporter] reads [goSession.Engine.MetricsSnapshot] on each scrape.
// Counter names are gosession_*_total; the single histogram is
// gosession_login_latency_seconds. Register the exporter in your own
// registry or mount [Exporter.Handler].
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
