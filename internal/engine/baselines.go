package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/baseline"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
	"github.com/Suraj-creation/Sysmind-CLI/internal/samples"
)

// Baseline returns the baseline for metric. A baseline found only in
// persistence is installed into the detector on the way out.
func (e *Engine) Baseline(ctx context.Context, metric string) (baseline.Baseline, bool, error) {
	if b, ok := e.detector.Baseline(metric); ok {
		return b, true, nil
	}
	b, ok, err := e.persist.LoadBaseline(ctx, metric)
	if err != nil {
		return baseline.Baseline{}, false, fmt.Errorf("engine: load baseline %s: %w", metric, err)
	}
	if ok {
		e.detector.SetBaseline(b)
	}
	return b, ok, nil
}

// Baselines lists every persisted baseline.
func (e *Engine) Baselines(ctx context.Context) ([]baseline.Baseline, error) {
	bs, err := e.persist.ListBaselines(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: list baselines: %w", err)
	}
	return bs, nil
}

// EstablishBaseline samples metric every interval for duration, then computes
// and installs a baseline from the collected values. It blocks for the whole
// duration. Values are also recorded as ordinary samples.
//
// It fails with ErrUnknownMetric, before collecting anything, when metric is
// not one of health.MetricNames, and with baseline.ErrInsufficientSamples when fewer than
// baseline.MinSamples values could be collected.
func (e *Engine) EstablishBaseline(ctx context.Context, metric string, duration, interval time.Duration) (baseline.Baseline, error) {
	cat, ok := health.CategoryOf(metric)
	if !ok || !health.IsKnownMetric(metric) {
		return baseline.Baseline{}, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
	if interval <= 0 {
		return baseline.Baseline{}, fmt.Errorf("engine: sample interval must be > 0")
	}
	n := int(duration / interval)
	if n < 1 {
		n = 1
	}

	slog.Info("engine: establishing baseline",
		"metric", metric, "duration", duration, "interval", interval, "samples", n)

	values := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 {
			if err := sleep(ctx, interval); err != nil {
				return baseline.Baseline{}, fmt.Errorf("engine: establish baseline %s: %w", metric, err)
			}
		}
		b, err := e.collect(ctx, cat)
		if err != nil {
			slog.Warn("engine: baseline sample failed", "metric", metric, "err", err)
			continue
		}
		if b == nil {
			continue
		}
		var m health.Metrics
		m.Set(b)
		v, ok := m.Values()[metric]
		if !ok {
			continue
		}
		values = append(values, v)
		e.record(ctx, samples.Sample{Metric: metric, Timestamp: e.now(), Value: v})
	}

	bl, err := baseline.Compute(metric, values, e.now())
	if err != nil {
		return baseline.Baseline{}, fmt.Errorf("engine: establish baseline %s: %w", metric, err)
	}
	if err := e.install(ctx, bl); err != nil {
		return baseline.Baseline{}, err
	}
	return bl, nil
}

// RecomputeBaseline computes a baseline from the samples of metric recorded
// within the last window. Samples come from memory, or from persistence when
// memory holds none.
func (e *Engine) RecomputeBaseline(ctx context.Context, metric string, window time.Duration) (baseline.Baseline, error) {
	r := samples.Since(e.now(), window)
	ss := e.store.Query(metric, r)
	if len(ss) == 0 {
		var err error
		ss, err = e.persist.QuerySamples(ctx, metric, r)
		if err != nil {
			return baseline.Baseline{}, fmt.Errorf("engine: query %s: %w", metric, err)
		}
	}
	values := make([]float64, len(ss))
	for i, s := range ss {
		values[i] = s.Value
	}
	bl, err := baseline.Compute(metric, values, e.now())
	if err != nil {
		return baseline.Baseline{}, fmt.Errorf("engine: recompute baseline %s: %w", metric, err)
	}
	if err := e.install(ctx, bl); err != nil {
		return baseline.Baseline{}, err
	}
	return bl, nil
}

// DeleteBaseline removes the baseline for metric. Detection for that metric
// falls back to a rolling window.
func (e *Engine) DeleteBaseline(ctx context.Context, metric string) error {
	if err := e.persist.DeleteBaseline(ctx, metric); err != nil {
		return fmt.Errorf("engine: delete baseline %s: %w", metric, err)
	}
	e.detector.RemoveBaseline(metric)
	slog.Info("engine: baseline deleted", "metric", metric)
	return nil
}

// ImportBaselines validates and installs bs. Nothing is installed if any
// baseline is invalid.
func (e *Engine) ImportBaselines(ctx context.Context, bs []baseline.Baseline) error {
	for _, b := range bs {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("engine: import %s: %w", b.Metric, err)
		}
	}
	for _, b := range bs {
		if err := e.install(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// install persists b, then makes it visible to detection.
func (e *Engine) install(ctx context.Context, b baseline.Baseline) error {
	if err := e.persist.SaveBaseline(ctx, b); err != nil {
		return fmt.Errorf("engine: save baseline %s: %w", b.Metric, err)
	}
	e.detector.SetBaseline(b)
	slog.Info("engine: baseline installed",
		"metric", b.Metric,
		"mean", b.Mean,
		"std_dev", b.StdDev,
		"samples", b.SampleCount,
	)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
