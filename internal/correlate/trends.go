package correlate

import (
	"fmt"
	"sort"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
	"github.com/Suraj-creation/Sysmind-CLI/internal/samples"
)

// Trend directions.
const (
	Increasing = "increasing"
	Decreasing = "decreasing"
	Stable     = "stable"
)

// trendBand is how far the last value must move from the first before a
// series counts as increasing or decreasing.
const trendBand = 10.0

// Trend summarises one metric over a period.
type Trend struct {
	Metric    string  `json:"metric"`
	Current   float64 `json:"current"`
	Avg       float64 `json:"avg"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Change    float64 `json:"change"`
	Direction string  `json:"direction"`
	Samples   int     `json:"samples"`
}

// ComputeTrend summarises series, which must be in timestamp order. ok is
// false when series holds fewer than two samples.
func ComputeTrend(metric string, series []samples.Sample) (t Trend, ok bool) {
	if len(series) < 2 {
		return Trend{}, false
	}
	t = Trend{
		Metric:  metric,
		Current: series[len(series)-1].Value,
		Min:     series[0].Value,
		Max:     series[0].Value,
		Samples: len(series),
	}
	var sum float64
	for _, s := range series {
		sum += s.Value
		if s.Value < t.Min {
			t.Min = s.Value
		}
		if s.Value > t.Max {
			t.Max = s.Value
		}
	}
	t.Avg = sum / float64(len(series))
	t.Change = t.Current - series[0].Value
	switch {
	case t.Change > trendBand:
		t.Direction = Increasing
	case t.Change < -trendBand:
		t.Direction = Decreasing
	default:
		t.Direction = Stable
	}
	return t, true
}

// Trends summarises every metric in store over r, sorted by metric name.
// Metrics with fewer than two samples in r are left out.
func Trends(store *samples.Store, r samples.Range) []Trend {
	out := make([]Trend, 0)
	for _, m := range store.Metrics() {
		if t, ok := ComputeTrend(m, store.Query(m, r)); ok {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}

// Spike is a sudden jump between two consecutive samples.
type Spike struct {
	Metric    string    `json:"metric"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	Jump      float64   `json:"jump"`
	Message   string    `json:"message"`
}

type spikeRule struct {
	above, jump float64
	label       string
}

var spikeRules = map[string]spikeRule{
	health.MetricCPUUsage:    {above: 80, jump: 20, label: "CPU"},
	health.MetricMemoryUsage: {above: 85, jump: 10, label: "Memory"},
}

// Spikes reports, for CPU and memory usage, every sample that is above the
// metric's ceiling and jumped past the metric's step from the sample before.
func Spikes(metric string, series []samples.Sample) []Spike {
	out := make([]Spike, 0)
	rule, ok := spikeRules[metric]
	if !ok {
		return out
	}
	for i := 1; i < len(series); i++ {
		cur, prev := series[i], series[i-1]
		jump := cur.Value - prev.Value
		if cur.Value > rule.above && jump > rule.jump {
			out = append(out, Spike{
				Metric:    metric,
				Timestamp: cur.Timestamp,
				Value:     cur.Value,
				Jump:      jump,
				Message:   fmt.Sprintf("%s spike: %.1f%% (+%.1f)", rule.label, cur.Value, jump),
			})
		}
	}
	return out
}
