package engine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
	"github.com/Suraj-creation/Sysmind-CLI/internal/correlate"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
	"github.com/Suraj-creation/Sysmind-CLI/internal/samples"
)

// Anomalies regenerates the anomalies of the last period from stored
// samples, ordered by severity, |z| and timestamp.
//
// Metrics with a baseline are classified against it. Other metrics are
// replayed through a fresh rolling window over their whole retained history,
// so a metric without enough history yields nothing.
func (e *Engine) Anomalies(period time.Duration) []anomaly.Anomaly {
	r := samples.Since(e.now(), period)
	th := e.detector.Thresholds()
	out := make([]anomaly.Anomaly, 0)

	for _, m := range e.store.Metrics() {
		if bl, ok := e.detector.Baseline(m); ok {
			for _, s := range e.store.Query(m, r) {
				if a := anomaly.Classify(m, s.Timestamp, s.Value, bl.Mean, bl.StdDev, th); a != nil {
					out = append(out, *a)
				}
			}
			continue
		}

		replay := anomaly.NewDetector(e.opts.WindowSize, th)
		for _, s := range e.store.Query(m, samples.Range{To: r.To}) {
			a := replay.Detect(m, s.Timestamp, s.Value)
			if a != nil && r.Contains(s.Timestamp) {
				out = append(out, *a)
			}
		}
	}
	anomaly.Sort(out)
	return out
}

// Correlations groups the anomalies of the last period that co-occur within
// window. A non-positive window uses the configured correlation window.
func (e *Engine) Correlations(period, window time.Duration) []correlate.Event {
	if window <= 0 {
		window = e.opts.CorrelationWindow
	}
	return correlate.Correlate(e.Anomalies(period), window)
}

// Recommendations ranks the suggestions derived from the current health and
// the anomalies of the report period.
func (e *Engine) Recommendations(ctx context.Context) []correlate.Recommendation {
	h := e.Health(ctx)
	as := e.Anomalies(e.opts.ReportPeriod)
	return correlate.Recommend(h, as, correlate.Correlate(as, e.opts.CorrelationWindow))
}

// CurrentState relates CPU and memory usage in the latest report, sampling
// once first if nothing has been published. ok is false when the report
// lacks either reading.
func (e *Engine) CurrentState(ctx context.Context) (correlate.State, bool) {
	rep, ok := e.Latest()
	if !ok {
		rep = e.Tick(ctx)
	}
	if rep.Metrics.CPU == nil || rep.Metrics.Memory == nil {
		return correlate.State{}, false
	}
	return correlate.CurrentState(rep.Metrics.CPU.UsagePercent, rep.Metrics.Memory.UsagePercent), true
}

// Trends summarises every stored metric over the last period.
func (e *Engine) Trends(period time.Duration) []correlate.Trend {
	return correlate.Trends(e.store, samples.Since(e.now(), period))
}

// Spikes reports CPU and memory usage spikes over the last period.
func (e *Engine) Spikes(period time.Duration) []correlate.Spike {
	r := samples.Since(e.now(), period)
	out := make([]correlate.Spike, 0)
	for _, m := range []string{health.MetricCPUUsage, health.MetricMemoryUsage} {
		out = append(out, correlate.Spikes(m, e.store.Query(m, r))...)
	}
	return out
}

// Ingest records externally collected samples and runs detection on them.
// A zero timestamp is replaced with the current time. The batch is
// validated before anything is recorded.
func (e *Engine) Ingest(ctx context.Context, batch []samples.Sample) ([]anomaly.Anomaly, error) {
	now := e.now()
	for i, s := range batch {
		if s.Metric == "" {
			return nil, fmt.Errorf("engine: sample %d: metric name is required", i)
		}
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			return nil, fmt.Errorf("engine: sample %d (%s): value must be finite", i, s.Metric)
		}
	}

	found := make([]anomaly.Anomaly, 0)
	for _, s := range batch {
		if s.Timestamp.IsZero() {
			s.Timestamp = now
		}
		if a := e.record(ctx, s); a != nil {
			found = append(found, *a)
		}
	}
	anomaly.Sort(found)
	return found, nil
}
