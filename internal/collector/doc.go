// Package collector produces the per-category health bundles the engine
// samples. System reads the local host through gopsutil; Prometheus scrapes a
// node_exporter endpoint and derives the same bundles from its exposition.
package collector
