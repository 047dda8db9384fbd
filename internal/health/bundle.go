package health

import (
	"fmt"
	"math"
	"strings"
)

// Category names one scored resource component.
type Category string

const (
	CPU     Category = "cpu"
	Memory  Category = "memory"
	Disk    Category = "disk"
	Network Category = "network"
	Process Category = "process"
)

// Categories lists every component in evaluation order.
var Categories = []Category{CPU, Memory, Disk, Network, Process}

// ParseCategory returns the Category named s.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("health: unknown category %q", s)
}

// Metric names derived from bundles. The prefix before the first dot is the
// category.
const (
	MetricCPUUsage       = "cpu.usage_percent"
	MetricCPULoad        = "cpu.load_per_core"
	MetricMemoryUsage    = "memory.usage_percent"
	MetricSwapUsage      = "memory.swap_percent"
	MetricDiskUsage      = "disk.usage_percent"
	MetricDiskTemp       = "disk.temp_bytes"
	MetricDiskDuplicate  = "disk.duplicate_bytes"
	MetricNetLatency     = "network.latency_ms"
	MetricNetPacketLoss  = "network.packet_loss_pct"
	MetricNetErrors      = "network.interface_errors"
	MetricProcessCount   = "process.count"
	MetricProcessZombies = "process.zombies"
	MetricProcessStartup = "process.startup_count"
)

// MetricNames lists every metric Metrics.Values can produce.
var MetricNames = []string{
	MetricCPUUsage, MetricCPULoad,
	MetricMemoryUsage, MetricSwapUsage,
	MetricDiskUsage, MetricDiskTemp, MetricDiskDuplicate,
	MetricNetLatency, MetricNetPacketLoss, MetricNetErrors,
	MetricProcessCount, MetricProcessZombies, MetricProcessStartup,
}

var knownMetrics = func() map[string]bool {
	m := make(map[string]bool, len(MetricNames))
	for _, n := range MetricNames {
		m[n] = true
	}
	return m
}()

// IsKnownMetric reports whether metric is one of MetricNames, i.e. a value a
// collector produces.
func IsKnownMetric(metric string) bool { return knownMetrics[metric] }

// CategoryOf returns the category a metric name belongs to. It looks only at
// the prefix, so externally ingested metrics are categorised too.
func CategoryOf(metric string) (Category, bool) {
	prefix, _, ok := strings.Cut(metric, ".")
	if !ok {
		return "", false
	}
	c, err := ParseCategory(prefix)
	return c, err == nil
}

// Bundle is the raw input for one category. Implementations are the
// per-category structs below; optional fields are pointers and nil means
// "not measured".
type Bundle interface {
	Category() Category
	Validate() error
}

// CPUBundle is the CPU input.
type CPUBundle struct {
	UsagePercent float64 `json:"usage_percent"`
	// BaselineDeviation is the z-score of UsagePercent against the CPU baseline.
	BaselineDeviation *float64 `json:"baseline_deviation,omitempty"`
	// LoadPerCore is the 1-minute load average divided by the logical core count.
	LoadPerCore *float64 `json:"load_per_core,omitempty"`
}

// MemoryBundle is the memory input.
type MemoryBundle struct {
	UsagePercent float64  `json:"usage_percent"`
	SwapPercent  *float64 `json:"swap_percent,omitempty"`
}

// DiskBundle is the disk input for one mount point.
type DiskBundle struct {
	Mountpoint     string  `json:"mountpoint,omitempty"`
	UsagePercent   float64 `json:"usage_percent"`
	DuplicateBytes *uint64 `json:"duplicate_bytes,omitempty"`
	TempBytes      *uint64 `json:"temp_bytes,omitempty"`
}

// NetworkBundle is the network input. When Connected is false the other
// fields are ignored.
type NetworkBundle struct {
	Connected       bool     `json:"connected"`
	LatencyMs       *float64 `json:"latency_ms,omitempty"`
	PacketLossPct   *float64 `json:"packet_loss_pct,omitempty"`
	InterfaceErrors *uint64  `json:"interface_errors,omitempty"`
}

// ProcessBundle is the process input.
type ProcessBundle struct {
	ProcessCount *int `json:"process_count,omitempty"`
	ZombieCount  *int `json:"zombie_count,omitempty"`
	StartupCount *int `json:"startup_count,omitempty"`
	// MemoryHogs counts processes with more than 1 GiB resident memory.
	MemoryHogs *int `json:"memory_hogs,omitempty"`
}

func (*CPUBundle) Category() Category     { return CPU }
func (*MemoryBundle) Category() Category  { return Memory }
func (*DiskBundle) Category() Category    { return Disk }
func (*NetworkBundle) Category() Category { return Network }
func (*ProcessBundle) Category() Category { return Process }

func (b *CPUBundle) Validate() error {
	if err := percent("usage_percent", b.UsagePercent); err != nil {
		return err
	}
	if b.BaselineDeviation != nil && !finite(*b.BaselineDeviation) {
		return fmt.Errorf("cpu: baseline_deviation must be finite")
	}
	if b.LoadPerCore != nil && (*b.LoadPerCore < 0 || !finite(*b.LoadPerCore)) {
		return fmt.Errorf("cpu: load_per_core must be >= 0")
	}
	return nil
}

func (b *MemoryBundle) Validate() error {
	if err := percent("usage_percent", b.UsagePercent); err != nil {
		return err
	}
	if b.SwapPercent != nil {
		return percent("swap_percent", *b.SwapPercent)
	}
	return nil
}

func (b *DiskBundle) Validate() error {
	return percent("usage_percent", b.UsagePercent)
}

func (b *NetworkBundle) Validate() error {
	if b.LatencyMs != nil && (*b.LatencyMs < 0 || !finite(*b.LatencyMs)) {
		return fmt.Errorf("network: latency_ms must be >= 0")
	}
	if b.PacketLossPct != nil {
		return percent("packet_loss_pct", *b.PacketLossPct)
	}
	return nil
}

func (b *ProcessBundle) Validate() error {
	for name, v := range map[string]*int{
		"process_count": b.ProcessCount,
		"zombie_count":  b.ZombieCount,
		"startup_count": b.StartupCount,
		"memory_hogs":   b.MemoryHogs,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("process: %s must be >= 0", name)
		}
	}
	return nil
}

// Metrics holds one bundle per category. A nil field is a category with no
// data; it scores as healthy.
type Metrics struct {
	CPU     *CPUBundle     `json:"cpu,omitempty"`
	Memory  *MemoryBundle  `json:"memory,omitempty"`
	Disk    *DiskBundle    `json:"disk,omitempty"`
	Network *NetworkBundle `json:"network,omitempty"`
	Process *ProcessBundle `json:"process,omitempty"`
}

// Set stores b in the field matching its category.
func (m *Metrics) Set(b Bundle) {
	switch v := b.(type) {
	case *CPUBundle:
		m.CPU = v
	case *MemoryBundle:
		m.Memory = v
	case *DiskBundle:
		m.Disk = v
	case *NetworkBundle:
		m.Network = v
	case *ProcessBundle:
		m.Process = v
	}
}

// Values flattens the measured fields into named metric values. Derived
// fields such as the CPU baseline deviation are not included.
func (m Metrics) Values() map[string]float64 {
	out := make(map[string]float64)
	if b := m.CPU; b != nil {
		out[MetricCPUUsage] = b.UsagePercent
		putFloat(out, MetricCPULoad, b.LoadPerCore)
	}
	if b := m.Memory; b != nil {
		out[MetricMemoryUsage] = b.UsagePercent
		putFloat(out, MetricSwapUsage, b.SwapPercent)
	}
	if b := m.Disk; b != nil {
		out[MetricDiskUsage] = b.UsagePercent
		putUint(out, MetricDiskTemp, b.TempBytes)
		putUint(out, MetricDiskDuplicate, b.DuplicateBytes)
	}
	if b := m.Network; b != nil && b.Connected {
		putFloat(out, MetricNetLatency, b.LatencyMs)
		putFloat(out, MetricNetPacketLoss, b.PacketLossPct)
		putUint(out, MetricNetErrors, b.InterfaceErrors)
	}
	if b := m.Process; b != nil {
		putInt(out, MetricProcessCount, b.ProcessCount)
		putInt(out, MetricProcessZombies, b.ZombieCount)
		putInt(out, MetricProcessStartup, b.StartupCount)
	}
	return out
}

// Float returns a pointer to v, for optional bundle fields.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Uint returns a pointer to v.
func Uint(v uint64) *uint64 { return &v }

func putFloat(m map[string]float64, k string, v *float64) {
	if v != nil {
		m[k] = *v
	}
}

func putUint(m map[string]float64, k string, v *uint64) {
	if v != nil {
		m[k] = float64(*v)
	}
}

func putInt(m map[string]float64, k string, v *int) {
	if v != nil {
		m[k] = float64(*v)
	}
}

func percent(name string, v float64) error {
	if !finite(v) || v < 0 || v > 100 {
		return fmt.Errorf("%s must be within [0, 100], got %v", name, v)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
