package api

import (
	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
	"github.com/Suraj-creation/Sysmind-CLI/internal/correlate"
	"github.com/Suraj-creation/Sysmind-CLI/internal/samples"
)

// AnomaliesResponse is the payload for GET /api/v1/anomalies.
type AnomaliesResponse struct {
	Period    string            `json:"period"`
	Count     int               `json:"count"`
	Anomalies []anomaly.Anomaly `json:"anomalies"`
}

// SummaryResponse is the payload for GET /api/v1/anomalies/summary.
type SummaryResponse struct {
	Period string `json:"period"`
	anomaly.Summary
}

// CorrelationsResponse is the payload for GET /api/v1/correlations.
type CorrelationsResponse struct {
	Period string            `json:"period"`
	Window string            `json:"window"`
	Events []correlate.Event `json:"events"`
}

// RecommendationsResponse is the payload for GET /api/v1/recommendations.
type RecommendationsResponse struct {
	Recommendations []correlate.Recommendation `json:"recommendations"`
	Summary         correlate.Summary          `json:"summary"`
}

// TrendsResponse is the payload for GET /api/v1/trends.
type TrendsResponse struct {
	Period string            `json:"period"`
	Trends []correlate.Trend `json:"trends"`
	Spikes []correlate.Spike `json:"spikes"`
}

// IngestRequest is the body of POST /api/v1/samples.
type IngestRequest struct {
	Samples []samples.Sample `json:"samples"`
}

// IngestResponse is the reply to POST /api/v1/samples.
type IngestResponse struct {
	Accepted  int               `json:"accepted"`
	Anomalies []anomaly.Anomaly `json:"anomalies"`
}

type errorResponse struct {
	Error string `json:"error"`
}
