package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
	"github.com/Suraj-creation/Sysmind-CLI/internal/baseline"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
	"github.com/Suraj-creation/Sysmind-CLI/internal/samples"
)

// DefaultRetention is how long samples are kept when Options.Retention is
// unset.
const DefaultRetention = 30 * 24 * time.Hour

// ErrUnknownMetric is returned by operations that require a metric the
// engine knows how to collect.
var ErrUnknownMetric = errors.New("engine: unknown metric")

// Collector gathers the raw input bundle for one category.
type Collector interface {
	Collect(ctx context.Context, c health.Category) (health.Bundle, error)
}

// Persistence stores baselines and samples across restarts.
type Persistence interface {
	SaveBaseline(ctx context.Context, b baseline.Baseline) error
	LoadBaseline(ctx context.Context, metric string) (baseline.Baseline, bool, error)
	ListBaselines(ctx context.Context) ([]baseline.Baseline, error)
	DeleteBaseline(ctx context.Context, metric string) error
	AppendSample(ctx context.Context, s samples.Sample) error
	QuerySamples(ctx context.Context, metric string, r samples.Range) ([]samples.Sample, error)
	// Prune drops samples recorded before the given time.
	Prune(ctx context.Context, before time.Time) error
}

// Observer is notified of engine activity. Implementations must not block.
type Observer interface {
	Sampled(metric string)
	Detected(a anomaly.Anomaly)
	CollectFailed(c health.Category, err error)
	Published(r *Report)
}

type nopObserver struct{}

func (nopObserver) Sampled(string)                       {}
func (nopObserver) Detected(anomaly.Anomaly)             {}
func (nopObserver) CollectFailed(health.Category, error) {}
func (nopObserver) Published(*Report)                    {}

// Options tunes an Engine. Zero fields take the defaults noted.
type Options struct {
	Interval          time.Duration      // sampling period, default 5m
	Retention         time.Duration      // sample retention, default DefaultRetention
	Capacity          int                // per-metric sample cap, default unbounded
	WindowSize        int                // fallback window, default anomaly.DefaultWindowSize
	Thresholds        anomaly.Thresholds // default anomaly.DefaultThresholds
	CorrelationWindow time.Duration      // default 5m
	ReportPeriod      time.Duration      // anomaly lookback for recommendations, default 1h

	Observer Observer
	Now      func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.WindowSize <= 0 {
		o.WindowSize = anomaly.DefaultWindowSize
	}
	if o.Thresholds == (anomaly.Thresholds{}) {
		o.Thresholds = anomaly.DefaultThresholds
	}
	if o.CorrelationWindow <= 0 {
		o.CorrelationWindow = 5 * time.Minute
	}
	if o.ReportPeriod <= 0 {
		o.ReportPeriod = time.Hour
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Report is one published sampling pass: the scored health, the metrics it
// was scored from and the anomalies detected in that pass.
type Report struct {
	health.SystemHealth
	GeneratedAt time.Time                  `json:"generated_at"`
	Metrics     health.Metrics             `json:"metrics"`
	Anomalies   []anomaly.Anomaly          `json:"anomalies"`
	Errors      map[health.Category]string `json:"errors,omitempty"`
}

// Engine ties the sample store, the anomaly detector and the health scorer
// to a collector and a persistence backend.
//
// A Report is built completely before it is published, so readers never
// see a partial pass. All exported methods are safe for concurrent use.
type Engine struct {
	collector Collector
	persist   Persistence
	opts      Options
	obs       Observer
	now       func() time.Time

	store    *samples.Store
	detector *anomaly.Detector

	latest atomic.Pointer[Report]

	subMu sync.Mutex
	subs  map[chan *Report]struct{}
}

// New returns an Engine. c and p must not be nil.
func New(c Collector, p Persistence, opts Options) *Engine {
	opts.applyDefaults()
	storeOpts := []samples.Option{samples.WithClock(opts.Now)}
	if opts.Capacity > 0 {
		storeOpts = append(storeOpts, samples.WithCapacity(opts.Capacity))
	}
	return &Engine{
		collector: c,
		persist:   p,
		opts:      opts,
		obs:       opts.Observer,
		now:       opts.Now,
		store:     samples.New(opts.Retention, storeOpts...),
		detector:  anomaly.NewDetector(opts.WindowSize, opts.Thresholds),
		subs:      make(map[chan *Report]struct{}),
	}
}

// Store exposes the in-memory sample store.
func (e *Engine) Store() *samples.Store { return e.store }

// Load installs every persisted baseline and restores retained samples into
// memory. Metrics without a baseline get their rolling windows refilled from
// the restored history.
func (e *Engine) Load(ctx context.Context) error {
	bs, err := e.persist.ListBaselines(ctx)
	if err != nil {
		return fmt.Errorf("engine: load baselines: %w", err)
	}
	metrics := make(map[string]bool, len(health.MetricNames)+len(bs))
	for _, b := range bs {
		e.detector.SetBaseline(b)
		metrics[b.Metric] = true
	}
	for _, m := range health.MetricNames {
		metrics[m] = true
	}

	r := samples.Since(e.now(), e.opts.Retention)
	var restored int
	for _, m := range sortedKeys(metrics) {
		ss, err := e.persist.QuerySamples(ctx, m, r)
		if err != nil {
			return fmt.Errorf("engine: restore %s: %w", m, err)
		}
		_, hasBaseline := e.detector.Baseline(m)
		for _, s := range ss {
			e.store.Record(s)
			if !hasBaseline {
				e.detector.Detect(s.Metric, s.Timestamp, s.Value)
			}
		}
		restored += len(ss)
	}
	slog.Info("engine: state loaded", "baselines", len(bs), "samples", restored)
	return nil
}

// Run samples immediately and then every Interval until ctx is cancelled.
// A tick that has started always runs to completion; no tick starts once ctx
// is done, even if the ticker fired while the previous tick was running.
func (e *Engine) Run(ctx context.Context) {
	t := time.NewTicker(e.opts.Interval)
	defer t.Stop()

	for {
		if ctx.Err() != nil {
			slog.Info("engine: sampling loop stopped")
			return
		}
		e.Tick(context.WithoutCancel(ctx))

		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
}

// Tick performs one sampling pass and publishes its Report.
//
// A category whose collection fails is left out of the pass and scores as
// healthy; the failure is listed in Report.Errors.
func (e *Engine) Tick(ctx context.Context) *Report {
	now := e.now()
	var (
		m    health.Metrics
		errs map[health.Category]string
	)
	for _, c := range health.Categories {
		b, err := e.collect(ctx, c)
		if err != nil {
			slog.Warn("engine: collect failed", "category", c, "err", err)
			e.obs.CollectFailed(c, err)
			if errs == nil {
				errs = make(map[health.Category]string)
			}
			errs[c] = err.Error()
			continue
		}
		if b != nil {
			m.Set(b)
		}
	}

	if m.CPU != nil {
		if bl, ok := e.detector.Baseline(health.MetricCPUUsage); ok {
			cpu := *m.CPU
			z := bl.ZScore(cpu.UsagePercent)
			cpu.BaselineDeviation = &z
			m.CPU = &cpu
		}
	}

	values := m.Values()
	found := make([]anomaly.Anomaly, 0)
	for _, name := range sortedKeys(values) {
		if a := e.record(ctx, samples.Sample{Metric: name, Timestamp: now, Value: values[name]}); a != nil {
			found = append(found, *a)
		}
	}
	anomaly.Sort(found)

	rep := &Report{
		SystemHealth: health.Calculate(m),
		GeneratedAt:  now,
		Metrics:      m,
		Anomalies:    found,
		Errors:       errs,
	}
	e.publish(rep)

	if err := e.persist.Prune(ctx, now.Add(-e.opts.Retention)); err != nil {
		slog.Warn("engine: prune failed", "err", err)
	}

	slog.Debug("engine: tick complete",
		"score", rep.OverallScore,
		"status", rep.Status,
		"samples", len(values),
		"anomalies", len(found),
	)
	return rep
}

func (e *Engine) collect(ctx context.Context, c health.Category) (health.Bundle, error) {
	b, err := e.collector.Collect(ctx, c)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	if b.Category() != c {
		return nil, fmt.Errorf("collector returned %s bundle for %s", b.Category(), c)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bundle: %w", err)
	}
	return b, nil
}

// record stores s in memory and in persistence, then runs detection on it.
func (e *Engine) record(ctx context.Context, s samples.Sample) *anomaly.Anomaly {
	e.store.Record(s)
	if err := e.persist.AppendSample(ctx, s); err != nil {
		slog.Warn("engine: persist sample failed", "metric", s.Metric, "err", err)
	}
	e.obs.Sampled(s.Metric)

	a := e.detector.Detect(s.Metric, s.Timestamp, s.Value)
	if a != nil {
		e.obs.Detected(*a)
		slog.Info("engine: anomaly detected",
			"metric", a.Metric,
			"value", a.Value,
			"z", a.ZScore,
			"severity", a.Severity.String(),
		)
	}
	return a
}

func (e *Engine) publish(rep *Report) {
	e.latest.Store(rep)
	e.obs.Published(rep)

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for ch := range e.subs {
		select {
		case ch <- rep:
		default:
			slog.Debug("engine: subscriber slow, report dropped")
		}
	}
}

// Latest returns the most recently published Report, if any.
func (e *Engine) Latest() (*Report, bool) {
	rep := e.latest.Load()
	return rep, rep != nil
}

// Health returns the health of the latest Report, sampling once first if
// nothing has been published yet.
func (e *Engine) Health(ctx context.Context) health.SystemHealth {
	if rep, ok := e.Latest(); ok {
		return rep.SystemHealth
	}
	return e.Tick(ctx).SystemHealth
}

// Subscribe returns a channel that receives every Report published after
// the call. Reports are dropped for a subscriber whose buffer is full. The
// returned func unsubscribes and closes the channel.
func (e *Engine) Subscribe(buf int) (<-chan *Report, func()) {
	ch := make(chan *Report, buf)
	e.subMu.Lock()
	e.subs[ch] = struct{}{}
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			delete(e.subs, ch)
			close(ch)
			e.subMu.Unlock()
		})
	}
}

// SetThresholds replaces the anomaly severity bounds.
func (e *Engine) SetThresholds(th anomaly.Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	e.detector.SetThresholds(th)
	return nil
}

// Thresholds returns the anomaly severity bounds in use.
func (e *Engine) Thresholds() anomaly.Thresholds { return e.detector.Thresholds() }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
