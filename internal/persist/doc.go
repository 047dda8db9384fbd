// Package persist provides storage backends for baselines and samples:
// an in-process Memory backend, Redis, and a gorm-backed SQL store for
// PostgreSQL that also keeps an alert history.
//
// Every backend satisfies engine.Persistence.
package persist
