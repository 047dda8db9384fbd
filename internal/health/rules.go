package health

import "fmt"

const (
	gib = 1 << 30
	mib = 1 << 20
)

// Recommendation texts. They double as dedup keys, so each is written once.
const (
	RecReduceCPU        = "Identify and stop CPU-intensive processes"
	RecReviewCPU        = "Review running applications for unusual CPU activity"
	RecInvestigateCPU   = "CPU usage is well above its baseline; check for new or runaway workloads"
	RecReduceLoad       = "Reduce concurrent workloads or add CPU capacity"
	RecFreeMemory       = "Close memory-intensive applications"
	RecReviewMemory     = "Review memory usage of long-running processes"
	RecReduceSwap       = "Reduce swap pressure by freeing memory or adding RAM"
	RecFreeDisk         = "Free disk space immediately: remove large or unused files"
	RecCleanDisk        = "Clean up disk space before it runs out"
	RecRemoveDuplicates = "Remove duplicate files to reclaim space"
	RecCleanTemp        = "Clean temporary files"
	RecCheckConnection  = "Check network adapter, cables and router connectivity"
	RecCheckLatency     = "Investigate network latency: check Wi-Fi signal and bandwidth-heavy applications"
	RecCheckPacketLoss  = "Investigate packet loss on the network path"
	RecCheckInterfaces  = "Inspect network interfaces for hardware or driver errors"
	RecReduceStartup    = "Disable unnecessary startup programs"
	RecReapZombies      = "Restart parent processes of zombie processes"
	RecReviewProcesses  = "Review and stop unneeded background processes"
	RecReviewHogs       = "Review processes using more than 1 GB of memory"
)

// rule is one penalty band. Rules that share a dimension form mutually
// exclusive bands and must be listed highest threshold first: the first
// matching band of a dimension applies and the rest are skipped. Rules of
// different dimensions accumulate.
type rule[T any] struct {
	dimension      string
	when           func(T) bool
	penalty        int
	issue          func(T) string
	recommendation string
}

// apply evaluates rules in order against b and returns the total penalty with
// the issues and recommendations of every matching band.
func apply[T any](b T, rules []rule[T]) (penalty int, issues, recs []string) {
	matched := make(map[string]bool)
	for _, r := range rules {
		if matched[r.dimension] || !r.when(b) {
			continue
		}
		matched[r.dimension] = true
		penalty += r.penalty
		issues = append(issues, r.issue(b))
		if r.recommendation != "" {
			recs = append(recs, r.recommendation)
		}
	}
	return penalty, issues, recs
}

func cpuUsageAtLeast(v float64) func(*CPUBundle) bool {
	return func(b *CPUBundle) bool { return b.UsagePercent >= v }
}

func cpuUsageIssue(label string) func(*CPUBundle) string {
	return func(b *CPUBundle) string { return fmt.Sprintf("%s CPU usage: %.1f%%", label, b.UsagePercent) }
}

var cpuRules = []rule[*CPUBundle]{
	{"usage", cpuUsageAtLeast(90), 40, cpuUsageIssue("Critical"), RecReduceCPU},
	{"usage", cpuUsageAtLeast(80), 25, cpuUsageIssue("High"), RecReduceCPU},
	{"usage", cpuUsageAtLeast(70), 10, cpuUsageIssue("Elevated"), RecReviewCPU},

	{"deviation", deviationAtLeast(3), 20, deviationIssue, RecInvestigateCPU},
	{"deviation", deviationAtLeast(2), 10, deviationIssue, RecInvestigateCPU},

	{"load", loadAbove(2), 15, loadIssue, RecReduceLoad},
	{"load", loadAbove(1), 5, loadIssue, RecReduceLoad},
}

func deviationAtLeast(sigma float64) func(*CPUBundle) bool {
	return func(b *CPUBundle) bool { return b.BaselineDeviation != nil && *b.BaselineDeviation >= sigma }
}

func deviationIssue(b *CPUBundle) string {
	return fmt.Sprintf("CPU usage %.1f standard deviations above baseline", *b.BaselineDeviation)
}

func loadAbove(v float64) func(*CPUBundle) bool {
	return func(b *CPUBundle) bool { return b.LoadPerCore != nil && *b.LoadPerCore > v }
}

func loadIssue(b *CPUBundle) string {
	return fmt.Sprintf("High load average: %.2f per core", *b.LoadPerCore)
}

func memUsageAtLeast(v float64) func(*MemoryBundle) bool {
	return func(b *MemoryBundle) bool { return b.UsagePercent >= v }
}

func memUsageIssue(label string) func(*MemoryBundle) string {
	return func(b *MemoryBundle) string { return fmt.Sprintf("%s memory usage: %.1f%%", label, b.UsagePercent) }
}

var memoryRules = []rule[*MemoryBundle]{
	{"usage", memUsageAtLeast(90), 50, memUsageIssue("Critical"), RecFreeMemory},
	{"usage", memUsageAtLeast(80), 30, memUsageIssue("High"), RecFreeMemory},
	{"usage", memUsageAtLeast(70), 15, memUsageIssue("Elevated"), RecReviewMemory},

	{"swap", func(b *MemoryBundle) bool { return b.SwapPercent != nil && *b.SwapPercent > 50 }, 10,
		func(b *MemoryBundle) string { return fmt.Sprintf("High swap usage: %.1f%%", *b.SwapPercent) },
		RecReduceSwap},
}

func diskUsageAtLeast(v float64) func(*DiskBundle) bool {
	return func(b *DiskBundle) bool { return b.UsagePercent >= v }
}

func diskUsageIssue(label string) func(*DiskBundle) string {
	return func(b *DiskBundle) string {
		mp := b.Mountpoint
		if mp == "" {
			mp = "disk"
		}
		return fmt.Sprintf("%s disk space: %s is %.1f%% full", label, mp, b.UsagePercent)
	}
}

func bytesAtLeast(field func(*DiskBundle) *uint64, n uint64) func(*DiskBundle) bool {
	return func(b *DiskBundle) bool {
		v := field(b)
		return v != nil && *v >= n
	}
}

func tempBytes(b *DiskBundle) *uint64      { return b.TempBytes }
func duplicateBytes(b *DiskBundle) *uint64 { return b.DuplicateBytes }

var diskRules = []rule[*DiskBundle]{
	{"usage", diskUsageAtLeast(90), 60, diskUsageIssue("Critical"), RecFreeDisk},
	{"usage", diskUsageAtLeast(80), 30, diskUsageIssue("Low"), RecCleanDisk},
	{"usage", diskUsageAtLeast(70), 15, diskUsageIssue("Shrinking"), RecCleanDisk},

	{"duplicates", bytesAtLeast(duplicateBytes, gib), 10,
		func(b *DiskBundle) string { return fmt.Sprintf("%s in duplicate files", FormatBytes(*b.DuplicateBytes)) },
		RecRemoveDuplicates},

	{"temp", bytesAtLeast(tempBytes, gib), 10, tempIssue, RecCleanTemp},
	{"temp", bytesAtLeast(tempBytes, 500*mib), 5, tempIssue, RecCleanTemp},
}

func tempIssue(b *DiskBundle) string {
	return fmt.Sprintf("%s of temporary files", FormatBytes(*b.TempBytes))
}

func latencyAtLeast(v float64) func(*NetworkBundle) bool {
	return func(b *NetworkBundle) bool { return b.LatencyMs != nil && *b.LatencyMs >= v }
}

func latencyIssue(label string) func(*NetworkBundle) string {
	return func(b *NetworkBundle) string { return fmt.Sprintf("%s network latency: %.0f ms", label, *b.LatencyMs) }
}

func lossAtLeast(v float64) func(*NetworkBundle) bool {
	return func(b *NetworkBundle) bool { return b.PacketLossPct != nil && *b.PacketLossPct >= v }
}

func lossIssue(b *NetworkBundle) string {
	return fmt.Sprintf("Packet loss: %.1f%%", *b.PacketLossPct)
}

// networkRules apply only while connected; see scoreNetwork.
var networkRules = []rule[*NetworkBundle]{
	{"latency", latencyAtLeast(500), 40, latencyIssue("Very high"), RecCheckLatency},
	{"latency", latencyAtLeast(200), 25, latencyIssue("High"), RecCheckLatency},
	{"latency", latencyAtLeast(100), 10, latencyIssue("Elevated"), RecCheckLatency},

	{"loss", lossAtLeast(10), 40, lossIssue, RecCheckPacketLoss},
	{"loss", lossAtLeast(5), 20, lossIssue, RecCheckPacketLoss},
	{"loss", lossAtLeast(1), 10, lossIssue, RecCheckPacketLoss},

	{"errors", func(b *NetworkBundle) bool { return b.InterfaceErrors != nil && *b.InterfaceErrors > 1000 }, 10,
		func(b *NetworkBundle) string { return fmt.Sprintf("High interface error count: %d", *b.InterfaceErrors) },
		RecCheckInterfaces},
}

func countAtLeast(field func(*ProcessBundle) *int, n int) func(*ProcessBundle) bool {
	return func(b *ProcessBundle) bool {
		v := field(b)
		return v != nil && *v >= n
	}
}

func startupCount(b *ProcessBundle) *int { return b.StartupCount }
func zombieCount(b *ProcessBundle) *int  { return b.ZombieCount }
func processCount(b *ProcessBundle) *int { return b.ProcessCount }
func memoryHogs(b *ProcessBundle) *int   { return b.MemoryHogs }

func startupIssue(b *ProcessBundle) string {
	return fmt.Sprintf("%d startup programs", *b.StartupCount)
}

func zombieIssue(b *ProcessBundle) string {
	return fmt.Sprintf("%d zombie processes", *b.ZombieCount)
}

func processIssue(b *ProcessBundle) string {
	return fmt.Sprintf("High process count: %d", *b.ProcessCount)
}

var processRules = []rule[*ProcessBundle]{
	{"startup", countAtLeast(startupCount, 30), 30, startupIssue, RecReduceStartup},
	{"startup", countAtLeast(startupCount, 20), 20, startupIssue, RecReduceStartup},
	{"startup", countAtLeast(startupCount, 15), 10, startupIssue, RecReduceStartup},

	{"zombies", countAtLeast(zombieCount, 10), 20, zombieIssue, RecReapZombies},
	{"zombies", countAtLeast(zombieCount, 1), 5, zombieIssue, RecReapZombies},

	{"count", countAtLeast(processCount, 1001), 20, processIssue, RecReviewProcesses},
	{"count", countAtLeast(processCount, 501), 10, processIssue, RecReviewProcesses},

	{"hogs", countAtLeast(memoryHogs, 6), 10,
		func(b *ProcessBundle) string { return fmt.Sprintf("%d processes using more than 1 GB of memory", *b.MemoryHogs) },
		RecReviewHogs},
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
