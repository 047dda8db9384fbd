package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
	"github.com/Suraj-creation/Sysmind-CLI/internal/baseline"
	"github.com/Suraj-creation/Sysmind-CLI/internal/correlate"
	"github.com/Suraj-creation/Sysmind-CLI/internal/engine"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
)

// commonFlags are accepted by every one-shot command.
type commonFlags struct {
	config string
	json   bool
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c := &commonFlags{}
	fs.StringVar(&c.config, "config", "", "path to config file (defaults when empty)")
	fs.BoolVar(&c.json, "json", false, "print JSON instead of a table")
	return fs, c
}

// open loads the config, logs to stderr and restores engine state.
func (c *commonFlags) open(ctx context.Context) (*session, error) {
	cfg, err := loadConfig(c.config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	lc := cfg.Log
	lc.Format = "text"
	setupLogging(lc, os.Stderr)
	return openSession(ctx, cfg, nil)
}

// splitArg takes a leading positional argument off args so flags may follow
// it, as in "baseline show cpu_usage -json".
func splitArg(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

// processLister is implemented by collectors that can read per-process usage.
type processLister interface {
	Processes(ctx context.Context) ([]correlate.ProcessUsage, error)
}

func runHealth(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("health")
	component := fs.String("component", "", "show a single component (cpu, memory, disk, network, process)")
	hogs := fs.Bool("hogs", false, "list processes above 50% CPU or 500 MiB resident memory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var only health.Category
	if *component != "" {
		cat, err := health.ParseCategory(*component)
		if err != nil {
			return err
		}
		only = cat
	}

	sess, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	if *hogs {
		lister, ok := sess.source.(processLister)
		if !ok {
			return fmt.Errorf("the %s collector cannot list processes", sess.cfg.Collector.Type)
		}
		ps, err := lister.Processes(ctx)
		if err != nil {
			return err
		}
		found := correlate.FindHogs(ps)
		if c.json {
			return writeJSON(out, found)
		}
		return writeHogs(out, found)
	}

	rep := sess.engine.Tick(ctx)
	if only != "" {
		ch := rep.Components[only]
		if c.json {
			return writeJSON(out, ch)
		}
		return writeComponent(out, ch)
	}
	if c.json {
		return writeJSON(out, rep)
	}
	return writeReport(out, rep)
}

func runAnomalies(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("anomalies")
	period := fs.Duration("period", time.Hour, "lookback period")
	severity := fs.String("severity", "", "minimum severity (info, warning, critical)")
	summary := fs.Bool("summary", false, "print counts instead of individual anomalies")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var floor anomaly.Severity
	if *severity != "" {
		s, err := anomaly.ParseSeverity(*severity)
		if err != nil {
			return err
		}
		floor = s
	}

	sess, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.engine.Tick(ctx)
	as := filterSeverity(sess.engine.Anomalies(*period), floor)

	if *summary {
		s := anomaly.Summarize(as)
		if c.json {
			return writeJSON(out, s)
		}
		return writeAnomalySummary(out, s)
	}
	if c.json {
		return writeJSON(out, as)
	}
	return writeAnomalies(out, as)
}

func filterSeverity(as []anomaly.Anomaly, floor anomaly.Severity) []anomaly.Anomaly {
	out := make([]anomaly.Anomaly, 0, len(as))
	for _, a := range as {
		if a.Severity >= floor {
			out = append(out, a)
		}
	}
	return out
}

func runRecommend(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("recommend")
	quick := fs.Bool("quick", false, "only automated, low-risk, high-impact actions")
	category := fs.String("category", "", "only recommendations for this category")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.engine.Tick(ctx)
	recs := sess.engine.Recommendations(ctx)
	if *category != "" {
		recs = correlate.FilterCategory(recs, *category)
	}
	if *quick {
		recs = correlate.QuickWins(recs)
	}
	if c.json {
		return writeJSON(out, struct {
			Recommendations []correlate.Recommendation `json:"recommendations"`
			Summary         correlate.Summary          `json:"summary"`
		}{recs, correlate.Summarize(recs)})
	}
	return writeRecommendations(out, recs)
}

func runTrends(ctx context.Context, args []string, out io.Writer) error {
	fs, c := newFlagSet("trends")
	period := fs.Duration("period", 24*time.Hour, "lookback period")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.engine.Tick(ctx)
	trends := sess.engine.Trends(*period)
	spikes := sess.engine.Spikes(*period)
	var state *correlate.State
	if st, ok := sess.engine.CurrentState(ctx); ok {
		state = &st
	}
	if c.json {
		return writeJSON(out, struct {
			Trends []correlate.Trend `json:"trends"`
			Spikes []correlate.Spike `json:"spikes"`
			State  *correlate.State  `json:"current_state,omitempty"`
		}{trends, spikes, state})
	}
	return writeTrends(out, trends, spikes, state)
}

const baselineUsage = `usage: sysmind baseline <establish|recompute|show|list|delete|export|import> [args] [flags]`

func runBaseline(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(baselineUsage)
	}
	sub, args := args[0], args[1:]
	fs, c := newFlagSet("baseline " + sub)

	switch sub {
	case "establish":
		duration := fs.Duration("duration", time.Hour, "how long to sample")
		interval := fs.Duration("interval", time.Minute, "time between samples")
		metric, rest := splitArg(args)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if metric == "" {
			metric = fs.Arg(0)
		}
		if metric == "" {
			return errors.New("baseline establish: metric name is required")
		}
		sess, err := c.open(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()
		b, err := sess.engine.EstablishBaseline(ctx, metric, *duration, *interval)
		if err != nil {
			return err
		}
		return writeBaselineResult(out, c.json, b)

	case "recompute":
		window := fs.Duration("window", 24*time.Hour, "history window to compute from")
		metric, rest := splitArg(args)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if metric == "" {
			metric = fs.Arg(0)
		}
		if metric == "" {
			return errors.New("baseline recompute: metric name is required")
		}
		sess, err := c.open(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()
		b, err := sess.engine.RecomputeBaseline(ctx, metric, *window)
		if err != nil {
			return err
		}
		return writeBaselineResult(out, c.json, b)

	case "show":
		metric, rest := splitArg(args)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if metric == "" {
			metric = fs.Arg(0)
		}
		if metric == "" {
			return errors.New("baseline show: metric name is required")
		}
		sess, err := c.open(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()
		b, ok, err := sess.engine.Baseline(ctx, metric)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no baseline for %q", metric)
		}
		return writeBaselineResult(out, c.json, b)

	case "list":
		if err := fs.Parse(args); err != nil {
			return err
		}
		sess, err := c.open(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()
		bs, err := sess.engine.Baselines(ctx)
		if err != nil {
			return err
		}
		if c.json {
			return writeJSON(out, bs)
		}
		return writeBaselines(out, bs)

	case "delete":
		metric, rest := splitArg(args)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if metric == "" {
			metric = fs.Arg(0)
		}
		if metric == "" {
			return errors.New("baseline delete: metric name is required")
		}
		sess, err := c.open(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()
		if err := sess.engine.DeleteBaseline(ctx, metric); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted baseline %s\n", metric)
		return nil

	case "export":
		output := fs.String("o", "", "write to this file instead of stdout")
		if err := fs.Parse(args); err != nil {
			return err
		}
		sess, err := c.open(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()
		bs, err := sess.engine.Baselines(ctx)
		if err != nil {
			return err
		}
		return exportBaselines(*output, out, bs, time.Now())

	case "import":
		path, rest := splitArg(args)
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if path == "" {
			path = fs.Arg(0)
		}
		if path == "" {
			return errors.New("baseline import: file path is required")
		}
		bs, err := readBaselines(path)
		if err != nil {
			return err
		}
		sess, err := c.open(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()
		if err := sess.engine.ImportBaselines(ctx, bs); err != nil {
			return err
		}
		fmt.Fprintf(out, "imported %d baselines from %s\n", len(bs), path)
		return nil

	default:
		return fmt.Errorf("unknown baseline command %q\n%s", sub, baselineUsage)
	}
}

func writeBaselineResult(out io.Writer, asJSON bool, b baseline.Baseline) error {
	if asJSON {
		return writeJSON(out, b)
	}
	return writeBaselines(out, []baseline.Baseline{b})
}

func exportBaselines(path string, stdout io.Writer, bs []baseline.Baseline, now time.Time) error {
	if path == "" {
		return baseline.Export(stdout, bs, now)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export baselines: %w", err)
	}
	if err := baseline.Export(f, bs, now); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return f.Close()
}

func readBaselines(path string) ([]baseline.Baseline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("import baselines: %w", err)
	}
	defer f.Close()
	return baseline.Import(f)
}

// suggestion maps known failures to a next step for the user.
func suggestion(err error) string {
	switch {
	case errors.Is(err, baseline.ErrInsufficientSamples):
		return fmt.Sprintf("collect more samples first (at least %d), e.g. a longer -duration or a shorter -interval", baseline.MinSamples)
	case errors.Is(err, engine.ErrUnknownMetric):
		return "known metrics: " + strings.Join(health.MetricNames, ", ")
	case errors.Is(err, context.Canceled):
		return "interrupted before completion"
	}
	return ""
}
