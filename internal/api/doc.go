// Package api serves the sysmind REST API under /api/v1: current health,
// anomalies and their correlations, recommendations, baselines, trends,
// sample ingestion and alerts. /readyz reports storage reachability.
package api
