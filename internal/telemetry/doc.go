// Package telemetry exposes the engine's own Prometheus metrics: health
// gauges, anomaly and sample counters, and HTTP request instrumentation.
package telemetry
