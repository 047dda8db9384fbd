package correlate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
)

// Thresholds for CurrentState, in percent.
const (
	pressureHigh     = 80.0
	pressureWarning  = 70.0
	pressureCritical = 90.0
)

// State relates CPU and memory pressure at one point in time.
type State struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	// Strength is 1 when both usages are equal and falls linearly to 0 when
	// one is at 0% and the other at 100%.
	Strength        float64          `json:"correlation_strength"`
	Severity        anomaly.Severity `json:"severity"`
	Summary         string           `json:"summary"`
	Recommendations []string         `json:"recommendations"`
}

// CurrentState classifies a CPU and memory reading. Either usage above 90%
// is critical and above 70% a warning.
func CurrentState(cpu, memory float64) State {
	st := State{
		CPUPercent:      cpu,
		MemoryPercent:   memory,
		Strength:        1 - math.Abs(cpu-memory)/100,
		Severity:        anomaly.SeverityInfo,
		Recommendations: make([]string, 0),
	}
	switch {
	case cpu > pressureCritical || memory > pressureCritical:
		st.Severity = anomaly.SeverityCritical
	case cpu > pressureWarning || memory > pressureWarning:
		st.Severity = anomaly.SeverityWarning
	}

	var parts []string
	if cpu > pressureHigh {
		parts = append(parts, fmt.Sprintf("High CPU usage (%.1f%%)", cpu))
		st.Recommendations = append(st.Recommendations, "Consider closing CPU-intensive applications")
	}
	if memory > pressureHigh {
		parts = append(parts, fmt.Sprintf("High memory usage (%.1f%%)", memory))
		st.Recommendations = append(st.Recommendations, "Consider closing memory-intensive applications")
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("System running normally (CPU: %.1f%%, Memory: %.1f%%)", cpu, memory))
	}
	st.Summary = strings.Join(parts, " | ")
	return st
}

// Hog limits.
const (
	hogCPUPercent = 50.0
	hogRSSBytes   = 500 << 20
)

// ProcessUsage is one process's resource use as read by a collector.
type ProcessUsage struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Hog is a process using more than 50% CPU or 500 MiB of resident memory.
type Hog struct {
	ProcessUsage
	MemoryMB  float64 `json:"memory_mb"`
	CPUHog    bool    `json:"is_cpu_hog"`
	MemoryHog bool    `json:"is_memory_hog"`
}

// FindHogs returns the hogs among ps, heaviest first. Weight is CPU percent
// plus resident megabytes over 100.
func FindHogs(ps []ProcessUsage) []Hog {
	out := make([]Hog, 0)
	for _, p := range ps {
		h := Hog{
			ProcessUsage: p,
			MemoryMB:     float64(p.RSSBytes) / (1 << 20),
			CPUHog:       p.CPUPercent > hogCPUPercent,
			MemoryHog:    p.RSSBytes > hogRSSBytes,
		}
		if h.CPUHog || h.MemoryHog {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].weight() > out[j].weight()
	})
	return out
}

func (h Hog) weight() float64 { return h.CPUPercent + h.MemoryMB/100 }
