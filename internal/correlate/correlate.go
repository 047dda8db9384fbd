package correlate

import (
	"sort"
	"strings"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
)

// Event is a group of anomalies on two or more metrics that occurred within
// one correlation window of each other.
type Event struct {
	// Label is the sorted, comma-joined set of involved metric names.
	Label     string            `json:"label"`
	Metrics   []string          `json:"metrics"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	Severity  anomaly.Severity  `json:"severity"`
	Anomalies []anomaly.Anomaly `json:"anomalies"`
}

// Correlate groups anomalies that co-occur in time.
//
// Anomalies are scanned in timestamp order. A group opens at its earliest
// anomaly and takes every following anomaly no later than window after it,
// so all members of a group are within window of each other. A group that
// involves two or more distinct metrics becomes an Event and the scan resumes
// after its last member. Otherwise the scan moves on to the next anomaly, so
// a later metric can still pair with the tail of a single-metric run. Every
// anomaly belongs to at most one Event. The input slice is not modified.
func Correlate(as []anomaly.Anomaly, window time.Duration) []Event {
	out := make([]Event, 0)
	if window <= 0 || len(as) < 2 {
		return out
	}

	sorted := append([]anomaly.Anomaly(nil), as...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	for i := 0; i < len(sorted); {
		start := sorted[i].Timestamp
		j := i + 1
		for j < len(sorted) && sorted[j].Timestamp.Sub(start) <= window {
			j++
		}
		ev, ok := newEvent(sorted[i:j])
		if !ok {
			i++
			continue
		}
		out = append(out, ev)
		i = j
	}
	return out
}

func newEvent(group []anomaly.Anomaly) (Event, bool) {
	set := make(map[string]struct{})
	var sev anomaly.Severity
	for _, a := range group {
		set[a.Metric] = struct{}{}
		if a.Severity > sev {
			sev = a.Severity
		}
	}
	if len(set) < 2 {
		return Event{}, false
	}
	metrics := make([]string, 0, len(set))
	for m := range set {
		metrics = append(metrics, m)
	}
	sort.Strings(metrics)

	members := append([]anomaly.Anomaly(nil), group...)
	return Event{
		Label:     strings.Join(metrics, ","),
		Metrics:   metrics,
		Start:     group[0].Timestamp,
		End:       group[len(group)-1].Timestamp,
		Severity:  sev,
		Anomalies: members,
	}, true
}
