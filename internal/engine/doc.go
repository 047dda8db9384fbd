// Package engine runs the sampling loop and answers on-demand queries.
//
// Each tick collects every category through a Collector, records the flattened
// metric values as samples (in memory and through a Persistence backend), runs
// anomaly detection on them, scores system health and publishes the result as
// an immutable Report. Queries such as Anomalies, Trends and Correlations are
// recomputed from stored samples on every call; anomalies are never persisted.
//
// Baselines are computed only on request: EstablishBaseline samples a metric
// for a fixed duration, RecomputeBaseline uses recorded history, and
// ImportBaselines installs previously exported ones.
package engine
