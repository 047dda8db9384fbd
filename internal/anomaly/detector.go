package anomaly

import (
	"sync"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/baseline"
)

// DefaultWindowSize is the rolling window capacity used for metrics that
// have no baseline. It matches the minimum sample count of a baseline.
const DefaultWindowSize = baseline.MinSamples

// Point is one (metric, timestamp, value) observation fed to DetectBatch.
type Point struct {
	Metric    string
	Timestamp time.Time
	Value     float64
}

// Detector classifies live samples against per-metric baselines.
//
// Metrics without a baseline fall back to a fixed-capacity rolling window of
// their most recent values; nothing is flagged until that window holds at
// least baseline.MinSamples values. Each Detector owns its windows, so
// independent instances never share state.
//
// All exported methods are safe for concurrent use. Windows are locked per
// metric, so different metrics never contend.
type Detector struct {
	mu         sync.RWMutex
	baselines  map[string]baseline.Baseline
	windows    map[string]*window
	thresholds Thresholds
	size       int
}

// NewDetector returns a Detector with the given window capacity. Sizes below
// baseline.MinSamples are raised to it, since a smaller window could never
// signal.
func NewDetector(size int, th Thresholds) *Detector {
	if size < baseline.MinSamples {
		size = baseline.MinSamples
	}
	return &Detector{
		baselines:  make(map[string]baseline.Baseline),
		windows:    make(map[string]*window),
		thresholds: th,
		size:       size,
	}
}

// SetBaseline installs b as the baseline for b.Metric, replacing any previous
// one. The fallback window for that metric is discarded.
func (d *Detector) SetBaseline(b baseline.Baseline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baselines[b.Metric] = b
	delete(d.windows, b.Metric)
}

// RemoveBaseline drops the baseline for metric; detection falls back to a
// fresh rolling window.
func (d *Detector) RemoveBaseline(metric string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.baselines, metric)
}

// Baseline returns the baseline installed for metric.
func (d *Detector) Baseline(metric string) (baseline.Baseline, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.baselines[metric]
	return b, ok
}

// SetThresholds replaces the severity bounds used by subsequent detections.
func (d *Detector) SetThresholds(th Thresholds) {
	d.mu.Lock()
	d.thresholds = th
	d.mu.Unlock()
}

// Thresholds returns the severity bounds currently in use.
func (d *Detector) Thresholds() Thresholds {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.thresholds
}

// WindowLen returns how many values the fallback window of metric holds.
func (d *Detector) WindowLen(metric string) int {
	d.mu.RLock()
	w, ok := d.windows[metric]
	d.mu.RUnlock()
	if !ok {
		return 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.len()
}

// Detect classifies one observation. It returns nil for normal values and
// for metrics without a baseline whose window is still warming up.
//
// Without a baseline the value is scored against the window contents that
// precede it and is then appended, evicting the oldest value once full.
func (d *Detector) Detect(metric string, ts time.Time, value float64) *Anomaly {
	d.mu.RLock()
	b, ok := d.baselines[metric]
	th := d.thresholds
	d.mu.RUnlock()

	if ok {
		return Classify(metric, ts, value, b.Mean, b.StdDev, th)
	}

	w := d.windowFor(metric)
	w.mu.Lock()
	defer w.mu.Unlock()

	var out *Anomaly
	if w.len() >= baseline.MinSamples {
		mean, std := baseline.MeanStdDev(w.values())
		out = Classify(metric, ts, value, mean, std, th)
	}
	w.push(value)
	return out
}

// DetectBatch runs Detect over points in order and returns the anomalies
// sorted by severity, |z| and timestamp (see Sort).
func (d *Detector) DetectBatch(points []Point) []Anomaly {
	out := make([]Anomaly, 0)
	for _, p := range points {
		if a := d.Detect(p.Metric, p.Timestamp, p.Value); a != nil {
			out = append(out, *a)
		}
	}
	Sort(out)
	return out
}

func (d *Detector) windowFor(metric string) *window {
	d.mu.RLock()
	w, ok := d.windows[metric]
	d.mu.RUnlock()
	if ok {
		return w
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if w, ok = d.windows[metric]; ok {
		return w
	}
	w = newWindow(d.size)
	d.windows[metric] = w
	return w
}

// window is a fixed-capacity FIFO ring of recent values.
type window struct {
	mu   sync.Mutex
	buf  []float64
	next int
	full bool
}

func newWindow(size int) *window {
	return &window{buf: make([]float64, size)}
}

func (w *window) push(v float64) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
	if w.next == 0 {
		w.full = true
	}
}

func (w *window) len() int {
	if w.full {
		return len(w.buf)
	}
	return w.next
}

// values returns the contents oldest first.
func (w *window) values() []float64 {
	if !w.full {
		return append([]float64(nil), w.buf[:w.next]...)
	}
	out := make([]float64, 0, len(w.buf))
	out = append(out, w.buf[w.next:]...)
	return append(out, w.buf[:w.next]...)
}
