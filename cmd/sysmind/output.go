package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
	"github.com/Suraj-creation/Sysmind-CLI/internal/baseline"
	"github.com/Suraj-creation/Sysmind-CLI/internal/correlate"
	"github.com/Suraj-creation/Sysmind-CLI/internal/engine"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func writeReport(w io.Writer, rep *engine.Report) error {
	fmt.Fprintf(w, "Overall: %d (%s)  at %s\n\n", rep.OverallScore, rep.Status, rep.GeneratedAt.Format(time.RFC3339))

	tw := newTable(w)
	fmt.Fprintln(tw, "COMPONENT\tSCORE\tSTATUS\tISSUES")
	for _, c := range health.Categories {
		ch := rep.Components[c]
		issues := strings.Join(ch.Issues, "; ")
		if msg, failed := rep.Errors[c]; failed {
			issues = "collect failed: " + msg
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", c, ch.Score, ch.Status, issues)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	writeList(w, "Critical issues", rep.CriticalIssues)
	writeList(w, "Warnings", rep.Warnings)
	writeList(w, "Recommendations", rep.Recommendations)
	if len(rep.Anomalies) > 0 {
		fmt.Fprintln(w)
		return writeAnomalies(w, rep.Anomalies)
	}
	return nil
}

func writeComponent(w io.Writer, ch health.ComponentHealth) error {
	fmt.Fprintf(w, "%s: %d (%s)\n", ch.Component, ch.Score, ch.Status)
	writeList(w, "Issues", ch.Issues)
	writeList(w, "Recommendations", ch.Recommendations)
	return nil
}

func writeList(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func writeAnomalies(w io.Writer, as []anomaly.Anomaly) error {
	if len(as) == 0 {
		fmt.Fprintln(w, "no anomalies")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "TIME\tMETRIC\tVALUE\tMEAN\tZ\tSEVERITY")
	for _, a := range as {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\t%.2f\t%+.2f\t%s\n",
			a.Timestamp.Format(time.RFC3339), a.Metric, a.Value, a.BaselineMean, a.ZScore, a.Severity)
	}
	return tw.Flush()
}

func writeAnomalySummary(w io.Writer, s anomaly.Summary) error {
	fmt.Fprintf(w, "Total: %d  critical: %d  warning: %d  info: %d\n",
		s.Total, s.BySeverity["critical"], s.BySeverity["warning"], s.BySeverity["info"])
	if len(s.ByMetric) == 0 {
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "METRIC\tCOUNT")
	for _, m := range sortedMetricKeys(s.ByMetric) {
		fmt.Fprintf(tw, "%s\t%d\n", m, s.ByMetric[m])
	}
	return tw.Flush()
}

func sortedMetricKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeBaselines(w io.Writer, bs []baseline.Baseline) error {
	if len(bs) == 0 {
		fmt.Fprintln(w, "no baselines")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "METRIC\tMEAN\tSTD\tMIN\tMAX\tP95\tSAMPLES\tCOMPUTED")
	for _, b := range bs {
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%d\t%s\n",
			b.Metric, b.Mean, b.StdDev, b.Min, b.Max, b.P95, b.SampleCount, b.ComputedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func writeRecommendations(w io.Writer, recs []correlate.Recommendation) error {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no recommendations")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "PRIORITY\tCATEGORY\tTITLE\tACTION\tAUTO\tRISK")
	for _, r := range recs {
		auto := "no"
		if r.Automated {
			auto = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Priority, r.Category, r.Title, r.Action, auto, r.Risk)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	s := correlate.Summarize(recs)
	fmt.Fprintf(w, "\n%d recommendations, %d quick wins\n", s.Total, s.QuickWins)
	return nil
}

func writeTrends(w io.Writer, trends []correlate.Trend, spikes []correlate.Spike, state *correlate.State) error {
	if len(trends) == 0 {
		fmt.Fprintln(w, "not enough samples for trends")
	} else {
		tw := newTable(w)
		fmt.Fprintln(tw, "METRIC\tCURRENT\tAVG\tMIN\tMAX\tCHANGE\tDIRECTION")
		for _, t := range trends {
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%.2f\t%+.2f\t%s\n",
				t.Metric, t.Current, t.Avg, t.Min, t.Max, t.Change, t.Direction)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(spikes) > 0 {
		fmt.Fprintln(w, "\nSpikes:")
		for _, s := range spikes {
			fmt.Fprintf(w, "  %s  %s\n", s.Timestamp.Format(time.RFC3339), s.Message)
		}
	}

	if state != nil {
		fmt.Fprintf(w, "\nCPU/memory correlation %.2f (%s): %s\n", state.Strength, state.Severity, state.Summary)
		for _, r := range state.Recommendations {
			fmt.Fprintf(w, "  - %s\n", r)
		}
	}
	return nil
}

func writeHogs(w io.Writer, hogs []correlate.Hog) error {
	if len(hogs) == 0 {
		fmt.Fprintln(w, "no resource hogs")
		return nil
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "PID\tNAME\tCPU%\tMEMORY\tFLAGS")
	for _, h := range hogs {
		var flags []string
		if h.CPUHog {
			flags = append(flags, "cpu")
		}
		if h.MemoryHog {
			flags = append(flags, "memory")
		}
		fmt.Fprintf(tw, "%d\t%s\t%.1f\t%.0f MB\t%s\n", h.PID, h.Name, h.CPUPercent, h.MemoryMB, strings.Join(flags, ","))
	}
	return tw.Flush()
}
