// Package anomaly classifies metric samples by z-score.
//
// anomaly.go holds the pure pieces: ZScore, the severity tiers
// (info >= 1.5, warning >= 2.0, critical >= 2.5 by default), Classify and
// the deterministic Sort used for reporting.
//
// detector.go provides the stateful Detector: a baseline per metric, or a
// fixed-capacity rolling window per metric when no baseline exists yet.
package anomaly
