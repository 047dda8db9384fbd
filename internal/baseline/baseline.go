package baseline

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// MinSamples is the smallest sample set a Baseline may be computed from.
const MinSamples = 10

// iqrFactor widens the interquartile range to form the outlier fences.
const iqrFactor = 1.5

// ErrInsufficientSamples is returned when fewer than MinSamples values are
// available. Callers can retry once more data has been collected.
var ErrInsufficientSamples = errors.New("insufficient samples")

// Baseline is the statistical profile of a metric's normal behaviour.
// Mean, StdDev, Min, Max and P95 describe the outlier-filtered set;
// SampleCount is the size of the set before filtering.
type Baseline struct {
	Metric      string    `json:"metric_name"`
	Mean        float64   `json:"mean"`
	StdDev      float64   `json:"std_dev"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	P95         float64   `json:"p95"`
	SampleCount int       `json:"sample_count"`
	ComputedAt  time.Time `json:"computed_at"`
}

// Compute builds a Baseline for metric from values.
//
// Values outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR] are discarded before the mean,
// sample standard deviation, min, max and nearest-rank p95 are taken.
// values is not modified.
func Compute(metric string, values []float64, now time.Time) (Baseline, error) {
	if len(values) < MinSamples {
		return Baseline{}, fmt.Errorf("baseline %q: %w: have %d, need %d",
			metric, ErrInsufficientSamples, len(values), MinSamples)
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	kept := FilterOutliers(sorted)

	mean, std := MeanStdDev(kept)
	return Baseline{
		Metric:      metric,
		Mean:        mean,
		StdDev:      std,
		Min:         kept[0],
		Max:         kept[len(kept)-1],
		P95:         kept[int(math.Floor(0.95*float64(len(kept))))],
		SampleCount: len(values),
		ComputedAt:  now,
	}, nil
}

// FilterOutliers applies the interquartile range rule to an ascending slice
// and returns the retained values, still ascending. Q1 and Q3 are the values
// at indices n/4 and 3n/4. The result is never empty for non-empty input
// since Q1 and Q3 themselves always fall inside the fences.
func FilterOutliers(sorted []float64) []float64 {
	n := len(sorted)
	if n == 0 {
		return nil
	}
	q1 := sorted[n/4]
	q3 := sorted[(3*n)/4]
	iqr := q3 - q1
	lo, hi := q1-iqrFactor*iqr, q3+iqrFactor*iqr

	out := make([]float64, 0, n)
	for _, v := range sorted {
		if v >= lo && v <= hi {
			out = append(out, v)
		}
	}
	return out
}

// MeanStdDev returns the arithmetic mean and the Bessel-corrected standard
// deviation of values. The deviation is 0 for fewer than two values.
func MeanStdDev(values []float64) (mean, std float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(n)
	if n < 2 {
		return mean, 0
	}
	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(n-1))
}

// ZScore returns how many standard deviations v lies from the mean.
// A zero deviation yields 0 whatever v is.
func (b Baseline) ZScore(v float64) float64 {
	if b.StdDev == 0 {
		return 0
	}
	return (v - b.Mean) / b.StdDev
}

// Validate checks the invariants a Baseline must hold before it is used,
// e.g. after being imported from a file.
func (b Baseline) Validate() error {
	if b.Metric == "" {
		return errors.New("metric_name is required")
	}
	if b.SampleCount < MinSamples {
		return fmt.Errorf("%q: %w: sample_count %d", b.Metric, ErrInsufficientSamples, b.SampleCount)
	}
	if b.StdDev < 0 || math.IsNaN(b.StdDev) {
		return fmt.Errorf("%q: std_dev must be >= 0", b.Metric)
	}
	if math.IsNaN(b.Mean) || math.IsInf(b.Mean, 0) {
		return fmt.Errorf("%q: mean must be finite", b.Metric)
	}
	return nil
}
