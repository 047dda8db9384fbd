package persist

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/baseline"
	"github.com/Suraj-creation/Sysmind-CLI/internal/samples"
)

// Memory keeps everything in process memory. It is the backend used when no
// external store is configured, and in tests.
type Memory struct {
	mu        sync.RWMutex
	baselines map[string]baseline.Baseline
	samples   *samples.Store
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		baselines: make(map[string]baseline.Baseline),
		samples:   samples.New(0),
	}
}

func (m *Memory) SaveBaseline(_ context.Context, b baseline.Baseline) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baselines[b.Metric] = b
	return nil
}

func (m *Memory) LoadBaseline(_ context.Context, metric string) (baseline.Baseline, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.baselines[metric]
	return b, ok, nil
}

// ListBaselines returns all baselines sorted by metric name.
func (m *Memory) ListBaselines(_ context.Context) ([]baseline.Baseline, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]baseline.Baseline, 0, len(m.baselines))
	for _, b := range m.baselines {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out, nil
}

func (m *Memory) DeleteBaseline(_ context.Context, metric string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.baselines, metric)
	return nil
}

func (m *Memory) AppendSample(_ context.Context, s samples.Sample) error {
	m.samples.Record(s)
	return nil
}

func (m *Memory) QuerySamples(_ context.Context, metric string, r samples.Range) ([]samples.Sample, error) {
	return m.samples.Query(metric, r), nil
}

func (m *Memory) Prune(_ context.Context, before time.Time) error {
	m.samples.DropBefore(before)
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
