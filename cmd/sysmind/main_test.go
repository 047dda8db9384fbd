package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
	"github.com/Suraj-creation/Sysmind-CLI/internal/baseline"
	"github.com/Suraj-creation/Sysmind-CLI/internal/correlate"
	"github.com/Suraj-creation/Sysmind-CLI/internal/engine"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSuggestion(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"insufficient samples", fmt.Errorf("engine: establish: %w", baseline.ErrInsufficientSamples), "collect more samples first"},
		{"unknown metric", fmt.Errorf("%w: %q", engine.ErrUnknownMetric, "gpu"), "cpu_usage"},
		{"cancelled", context.Canceled, "interrupted"},
		{"other", errors.New("boom"), ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := suggestion(tc.err)
			if tc.want == "" {
				if got != "" {
					t.Errorf("got %q, want no suggestion", got)
				}
				return
			}
			if !strings.Contains(got, tc.want) {
				t.Errorf("suggestion %q does not mention %q", got, tc.want)
			}
		})
	}
}

func TestSplitArg(t *testing.T) {
	tests := []struct {
		args     []string
		wantArg  string
		wantRest int
	}{
		{[]string{"cpu_usage", "-json"}, "cpu_usage", 1},
		{[]string{"-json", "cpu_usage"}, "", 2},
		{nil, "", 0},
	}
	for _, tc := range tests {
		arg, rest := splitArg(tc.args)
		if arg != tc.wantArg || len(rest) != tc.wantRest {
			t.Errorf("splitArg(%v) = %q, %v", tc.args, arg, rest)
		}
	}
}

func TestFilterSeverity(t *testing.T) {
	as := []anomaly.Anomaly{
		{Metric: "a", Severity: anomaly.SeverityInfo},
		{Metric: "b", Severity: anomaly.SeverityWarning},
		{Metric: "c", Severity: anomaly.SeverityCritical},
	}
	if got := filterSeverity(as, anomaly.SeverityWarning); len(got) != 2 {
		t.Errorf("warning floor: got %d anomalies, want 2", len(got))
	}
	if got := filterSeverity(as, anomaly.SeverityNone); len(got) != 3 {
		t.Errorf("no floor: got %d anomalies, want 3", len(got))
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), "defrag", nil, &out)
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("got %v, want unknown command error", err)
	}
}

func TestRun_BaselineArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no subcommand", nil, "usage"},
		{"unknown subcommand", []string{"rebuild"}, "unknown baseline command"},
		{"show without metric", []string{"show"}, "metric name is required"},
		{"establish without metric", []string{"establish", "-duration", "1s"}, "metric name is required"},
		{"import without file", []string{"import"}, "file path is required"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(context.Background(), "baseline", tc.args, &out)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("got %v, want error mentioning %q", err, tc.wantErr)
			}
		})
	}
}

func TestBaseline_ImportListExportWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := fmt.Sprintf("storage:\n  backend: redis\n  redis:\n    addr: %q\nlog:\n  level: error\n", mr.Addr())
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	var doc bytes.Buffer
	bs := []baseline.Baseline{
		{Metric: "cpu_usage", Mean: 30, StdDev: 5, Min: 20, Max: 45, P95: 40, SampleCount: 60, ComputedAt: t0},
		{Metric: "memory_usage", Mean: 55, StdDev: 8, Min: 40, Max: 70, P95: 68, SampleCount: 60, ComputedAt: t0},
	}
	if err := baseline.Export(&doc, bs, t0); err != nil {
		t.Fatal(err)
	}
	importPath := filepath.Join(dir, "baselines.json")
	if err := os.WriteFile(importPath, doc.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	var out bytes.Buffer
	if err := run(ctx, "baseline", []string{"import", importPath, "-config", cfgPath}, &out); err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out.String(), "imported 2 baselines") {
		t.Errorf("import output: %q", out.String())
	}

	out.Reset()
	if err := run(ctx, "baseline", []string{"list", "-json", "-config", cfgPath}, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	var listed []baseline.Baseline
	if err := json.Unmarshal(out.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out.String())
	}
	if len(listed) != 2 || listed[0].Metric != "cpu_usage" {
		t.Errorf("listed: %+v", listed)
	}

	out.Reset()
	if err := run(ctx, "baseline", []string{"delete", "cpu_usage", "-config", cfgPath}, &out); err != nil {
		t.Fatalf("delete: %v", err)
	}

	exportPath := filepath.Join(dir, "export.json")
	if err := run(ctx, "baseline", []string{"export", "-o", exportPath, "-config", cfgPath}, &out); err != nil {
		t.Fatalf("export: %v", err)
	}
	f, err := os.Open(exportPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	exported, err := baseline.Import(f)
	if err != nil {
		t.Fatalf("re-import exported file: %v", err)
	}
	if len(exported) != 1 || exported[0].Metric != "memory_usage" {
		t.Errorf("exported after delete: %+v", exported)
	}

	err = run(ctx, "baseline", []string{"show", "cpu_usage", "-config", cfgPath}, &out)
	if err == nil || !strings.Contains(err.Error(), "no baseline") {
		t.Errorf("show deleted baseline: got %v", err)
	}
}

func TestWriteAnomalies(t *testing.T) {
	var buf bytes.Buffer
	as := []anomaly.Anomaly{{
		Timestamp: t0, Metric: "memory_usage", Value: 92.5,
		BaselineMean: 55, ZScore: 3.1, Severity: anomaly.SeverityCritical,
	}}
	if err := writeAnomalies(&buf, as); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"METRIC", "memory_usage", "92.50", "+3.10", "critical"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("table missing %q:\n%s", want, buf.String())
		}
	}

	buf.Reset()
	if err := writeAnomalies(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "no anomalies" {
		t.Errorf("empty output: %q", buf.String())
	}
}

func TestWriteRecommendations(t *testing.T) {
	var buf bytes.Buffer
	recs := []correlate.Recommendation{
		{Category: "disk", Priority: "high", Title: "Clean temp files", Action: "cleanup", Automated: true, Risk: "low"},
	}
	if err := writeRecommendations(&buf, recs); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Clean temp files") || !strings.Contains(out, "1 recommendations, 1 quick wins") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestWriteTrends_NotEnoughSamples(t *testing.T) {
	var buf bytes.Buffer
	if err := writeTrends(&buf, nil, nil, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "not enough samples") {
		t.Errorf("got %q", buf.String())
	}
}

func TestRecommendationActions_NameRealCommands(t *testing.T) {
	for _, text := range correlate.ActionTexts() {
		fields := strings.Fields(text)
		if len(fields) < 2 || fields[0] != "sysmind" {
			continue
		}
		t.Run(text, func(t *testing.T) {
			args := append(fields[2:len(fields):len(fields)], "-h")
			err := run(context.Background(), fields[1], args, io.Discard)
			if !errors.Is(err, flag.ErrHelp) {
				t.Fatalf("command or flags not accepted: %v", err)
			}
			for i, a := range args {
				if a == "-component" && i+1 < len(args) {
					if _, err := health.ParseCategory(args[i+1]); err != nil {
						t.Error(err)
					}
				}
			}
		})
	}
}

func TestWriteTrends_CurrentState(t *testing.T) {
	var buf bytes.Buffer
	st := correlate.CurrentState(95, 35)
	if err := writeTrends(&buf, nil, nil, &st); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "CPU/memory correlation 0.40 (critical)") || !strings.Contains(out, "CPU-intensive") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestWriteHogs(t *testing.T) {
	var buf bytes.Buffer
	hogs := correlate.FindHogs([]correlate.ProcessUsage{
		{PID: 42, Name: "encoder", CPUPercent: 180, RSSBytes: 2 << 30},
		{PID: 7, Name: "sshd", CPUPercent: 0.1, RSSBytes: 4 << 20},
	})
	if err := writeHogs(&buf, hogs); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "encoder") || !strings.Contains(out, "cpu,memory") || strings.Contains(out, "sshd") {
		t.Errorf("unexpected output:\n%s", out)
	}

	buf.Reset()
	if err := writeHogs(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "no resource hogs" {
		t.Errorf("empty output: %q", buf.String())
	}
}
