package anomaly

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Severity tiers an anomaly by the magnitude of its z-score.
type Severity int

const (
	SeverityNone Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	default:
		return "none"
	}
}

// ParseSeverity is the inverse of Severity.String.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return SeverityNone, nil
	case "info":
		return SeverityInfo, nil
	case "warning":
		return SeverityWarning, nil
	case "critical":
		return SeverityCritical, nil
	}
	return SeverityNone, fmt.Errorf("anomaly: unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Thresholds are the |z| lower bounds of each severity tier.
type Thresholds struct {
	Info     float64 `yaml:"info" json:"info"`
	Warning  float64 `yaml:"warning" json:"warning"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// DefaultThresholds are the tier bounds used unless configuration overrides them.
var DefaultThresholds = Thresholds{Info: 1.5, Warning: 2.0, Critical: 2.5}

// Classify maps a z-score to its severity tier.
func (t Thresholds) Classify(z float64) Severity {
	a := math.Abs(z)
	switch {
	case a >= t.Critical:
		return SeverityCritical
	case a >= t.Warning:
		return SeverityWarning
	case a >= t.Info:
		return SeverityInfo
	default:
		return SeverityNone
	}
}

// Validate requires 0 < info < warning < critical.
func (t Thresholds) Validate() error {
	if !(t.Info > 0 && t.Info < t.Warning && t.Warning < t.Critical) {
		return fmt.Errorf("thresholds must satisfy 0 < info < warning < critical, got %v/%v/%v",
			t.Info, t.Warning, t.Critical)
	}
	return nil
}

// Anomaly is one sample that deviates from its metric's baseline.
type Anomaly struct {
	Timestamp    time.Time `json:"timestamp"`
	Metric       string    `json:"metric_name"`
	Value        float64   `json:"value"`
	BaselineMean float64   `json:"baseline_mean"`
	ZScore       float64   `json:"z_score"`
	Severity     Severity  `json:"severity"`
}

// Direction reports whether the value sits above or below the baseline mean.
func (a Anomaly) Direction() string {
	if a.Value < a.BaselineMean {
		return "below"
	}
	return "above"
}

// ZScore returns (value-mean)/std, or 0 when std is 0.
func ZScore(value, mean, std float64) float64 {
	if std == 0 {
		return 0
	}
	return (value - mean) / std
}

// Classify is the pure classification step: it returns nil when value is
// within the normal band of (mean, std).
func Classify(metric string, ts time.Time, value, mean, std float64, th Thresholds) *Anomaly {
	z := ZScore(value, mean, std)
	sev := th.Classify(z)
	if sev == SeverityNone {
		return nil
	}
	return &Anomaly{
		Timestamp:    ts,
		Metric:       metric,
		Value:        value,
		BaselineMean: mean,
		ZScore:       z,
		Severity:     sev,
	}
}

// Sort orders anomalies by severity descending, then |z| descending, then
// timestamp ascending. Remaining ties keep their input order.
func Sort(as []Anomaly) {
	sort.SliceStable(as, func(i, j int) bool {
		a, b := as[i], as[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		za, zb := math.Abs(a.ZScore), math.Abs(b.ZScore)
		if za != zb {
			return za > zb
		}
		return a.Timestamp.Before(b.Timestamp)
	})
}

// Summary counts anomalies by severity and by metric.
type Summary struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByMetric   map[string]int `json:"by_metric"`
}

// Summarize builds a Summary over as.
func Summarize(as []Anomaly) Summary {
	s := Summary{
		Total:      len(as),
		BySeverity: map[string]int{"info": 0, "warning": 0, "critical": 0},
		ByMetric:   make(map[string]int),
	}
	for _, a := range as {
		s.BySeverity[a.Severity.String()]++
		s.ByMetric[a.Metric]++
	}
	return s
}
