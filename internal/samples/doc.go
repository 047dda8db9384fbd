// Package samples holds the in-memory record of metric observations.
//
// Store keeps one time-ordered series per metric name. Out-of-order inserts
// are placed in timestamp order, so Query always returns samples
// time-ascending regardless of how they arrived.
//
// Retention is enforced lazily: each Record and Query first drops samples
// older than now minus the retention window. There is no background sweep.
// An optional per-metric capacity bound drops the oldest samples first.
package samples
