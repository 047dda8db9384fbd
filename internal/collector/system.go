package collector

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/Suraj-creation/Sysmind-CLI/internal/config"
	"github.com/Suraj-creation/Sysmind-CLI/internal/correlate"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
)

const (
	cpuSampleWindow = 500 * time.Millisecond
	memoryHogBytes  = 1 << 30
)

// System collects bundles from the local host.
type System struct {
	cfg   config.CollectorConfig
	probe *Prober
}

// NewSystem returns a host collector for cfg.
func NewSystem(cfg config.CollectorConfig) *System {
	return &System{
		cfg:   cfg,
		probe: NewProber(cfg.Probe.Hosts, cfg.Probe.Timeout, cfg.Probe.Attempts),
	}
}

// Collect reads one category from the host.
func (s *System) Collect(ctx context.Context, c health.Category) (health.Bundle, error) {
	switch c {
	case health.CPU:
		return s.cpu(ctx)
	case health.Memory:
		return s.memory(ctx)
	case health.Disk:
		return s.disk(ctx)
	case health.Network:
		return s.network(ctx)
	case health.Process:
		return s.process(ctx)
	default:
		return nil, fmt.Errorf("collector: unknown category %q", c)
	}
}

func (s *System) cpu(ctx context.Context) (health.Bundle, error) {
	pct, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return nil, fmt.Errorf("cpu percent: %w", err)
	}
	if len(pct) == 0 {
		return nil, fmt.Errorf("cpu percent: no data")
	}
	b := &health.CPUBundle{UsagePercent: clampPercent(pct[0])}

	// Load averages are not available everywhere; leave LoadPerCore unset.
	if avg, err := load.AvgWithContext(ctx); err == nil {
		if cores, err := cpu.CountsWithContext(ctx, true); err == nil && cores > 0 {
			b.LoadPerCore = health.Float(avg.Load1 / float64(cores))
		}
	}
	return b, nil
}

func (s *System) memory(ctx context.Context) (health.Bundle, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("virtual memory: %w", err)
	}
	b := &health.MemoryBundle{UsagePercent: clampPercent(vm.UsedPercent)}
	if sw, err := mem.SwapMemoryWithContext(ctx); err == nil && sw.Total > 0 {
		b.SwapPercent = health.Float(clampPercent(sw.UsedPercent))
	}
	return b, nil
}

func (s *System) disk(ctx context.Context) (health.Bundle, error) {
	u, err := disk.UsageWithContext(ctx, s.cfg.DiskPath)
	if err != nil {
		return nil, fmt.Errorf("disk usage %s: %w", s.cfg.DiskPath, err)
	}
	b := &health.DiskBundle{
		Mountpoint:   s.cfg.DiskPath,
		UsagePercent: clampPercent(u.UsedPercent),
	}
	if len(s.cfg.TempDirs) > 0 {
		var total uint64
		for _, dir := range s.cfg.TempDirs {
			total += dirSize(ctx, dir)
		}
		b.TempBytes = health.Uint(total)
	}
	return b, nil
}

func (s *System) network(ctx context.Context) (health.Bundle, error) {
	b := &health.NetworkBundle{}
	if r := s.probe.Probe(ctx); r.Connected {
		b.Connected = true
		b.LatencyMs = health.Float(r.LatencyMs)
		b.PacketLossPct = health.Float(r.PacketLossPct)
	}
	if counters, err := psnet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		c := counters[0]
		b.InterfaceErrors = health.Uint(c.Errin + c.Errout + c.Dropin + c.Dropout)
	}
	return b, nil
}

func (s *System) process(ctx context.Context) (health.Bundle, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var zombies, hogs int
	for _, p := range procs {
		// Processes exit between listing and inspection; skip them.
		if st, err := p.StatusWithContext(ctx); err == nil {
			for _, v := range st {
				if v == process.Zombie {
					zombies++
					break
				}
			}
		}
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi.RSS > memoryHogBytes {
			hogs++
		}
	}
	b := &health.ProcessBundle{
		ProcessCount: health.Int(len(procs)),
		ZombieCount:  health.Int(zombies),
		MemoryHogs:   health.Int(hogs),
	}
	if len(s.cfg.AutostartDirs) > 0 {
		var n int
		for _, dir := range s.cfg.AutostartDirs {
			n += countEntries(dir)
		}
		b.StartupCount = health.Int(n)
	}
	return b, nil
}

// Processes lists the CPU and resident memory of every running process.
// Processes that exit while being read are skipped.
func (s *System) Processes(ctx context.Context) ([]correlate.ProcessUsage, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	out := make([]correlate.ProcessUsage, 0, len(procs))
	for _, p := range procs {
		mi, err := p.MemoryInfoWithContext(ctx)
		if err != nil {
			continue
		}
		u := correlate.ProcessUsage{PID: p.Pid, RSSBytes: mi.RSS}
		if name, err := p.NameWithContext(ctx); err == nil {
			u.Name = name
		}
		if pct, err := p.CPUPercentWithContext(ctx); err == nil {
			u.CPUPercent = pct
		}
		out = append(out, u)
	}
	return out, nil
}

// dirSize sums the sizes of regular files under root. Unreadable entries are
// skipped; a missing root counts as empty.
func dirSize(ctx context.Context, root string) uint64 {
	var total uint64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		slog.Debug("collector: temp dir walk stopped", "dir", root, "err", err)
	}
	return total
}

// countEntries counts the non-directory entries directly inside dir.
func countEntries(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var n int
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n
}

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
