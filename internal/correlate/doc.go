// Package correlate turns scored health and detected anomalies into
// higher-level findings: groups of anomalies that co-occur in time, ranked
// recommendations, per-metric trends and the CPU and memory pressure of a
// single reading.
//
// Everything here is a pure function over its inputs. Callers own storage
// and timing.
package correlate
