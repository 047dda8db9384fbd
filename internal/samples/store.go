package samples

import (
	"sort"
	"sync"
	"time"
)

// Sample is one observation of a named metric. It is immutable once recorded.
type Sample struct {
	Metric    string    `json:"metric"`
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Range is an inclusive time interval. A zero From or To leaves that side open.
type Range struct {
	From time.Time
	To   time.Time
}

// Since returns the range [now-d, now].
func Since(now time.Time, d time.Duration) Range {
	return Range{From: now.Add(-d), To: now}
}

// Contains reports whether t falls inside r.
func (r Range) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Store is a thread-safe, retention-bounded sample store keyed by metric name.
// Each metric has its own lock, so writers to different metrics never contend.
type Store struct {
	mu     sync.RWMutex
	series map[string]*series

	retention time.Duration // 0 keeps samples forever
	capacity  int           // 0 means unbounded per metric
	now       func() time.Time
}

type series struct {
	mu      sync.Mutex
	samples []Sample // time-ascending
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity bounds the number of samples kept per metric.
func WithCapacity(n int) Option {
	return func(s *Store) { s.capacity = n }
}

// WithClock overrides the clock used for retention decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store that drops samples older than retention.
func New(retention time.Duration, opts ...Option) *Store {
	s := &Store{
		series:    make(map[string]*series),
		retention: retention,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Record inserts smp into its metric's series in timestamp order.
// Samples with equal timestamps keep their insertion order.
func (s *Store) Record(smp Sample) {
	sr := s.seriesFor(smp.Metric, true)

	sr.mu.Lock()
	defer sr.mu.Unlock()

	i := sort.Search(len(sr.samples), func(i int) bool {
		return sr.samples[i].Timestamp.After(smp.Timestamp)
	})
	sr.samples = append(sr.samples, Sample{})
	copy(sr.samples[i+1:], sr.samples[i:])
	sr.samples[i] = smp

	sr.prune(s.cutoff())
	if s.capacity > 0 && len(sr.samples) > s.capacity {
		sr.samples = append([]Sample(nil), sr.samples[len(sr.samples)-s.capacity:]...)
	}
}

// Query returns the samples of metric inside r, time-ascending.
// The returned slice is a copy owned by the caller. An unknown metric yields
// an empty slice.
func (s *Store) Query(metric string, r Range) []Sample {
	sr := s.seriesFor(metric, false)
	if sr == nil {
		return []Sample{}
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.prune(s.cutoff())

	lo := 0
	if !r.From.IsZero() {
		lo = sort.Search(len(sr.samples), func(i int) bool {
			return !sr.samples[i].Timestamp.Before(r.From)
		})
	}
	hi := len(sr.samples)
	if !r.To.IsZero() {
		hi = sort.Search(len(sr.samples), func(i int) bool {
			return sr.samples[i].Timestamp.After(r.To)
		})
	}
	if lo >= hi {
		return []Sample{}
	}
	out := make([]Sample, hi-lo)
	copy(out, sr.samples[lo:hi])
	return out
}

// Latest returns the most recent retained sample for metric.
func (s *Store) Latest(metric string) (Sample, bool) {
	sr := s.seriesFor(metric, false)
	if sr == nil {
		return Sample{}, false
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.prune(s.cutoff())
	if len(sr.samples) == 0 {
		return Sample{}, false
	}
	return sr.samples[len(sr.samples)-1], true
}

// Len returns the number of retained samples for metric.
func (s *Store) Len(metric string) int {
	sr := s.seriesFor(metric, false)
	if sr == nil {
		return 0
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	sr.prune(s.cutoff())
	return len(sr.samples)
}

// Metrics returns the names of all metrics that have ever been recorded, sorted.
func (s *Store) Metrics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.series))
	for name := range s.series {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DropBefore removes every sample older than t from all series and returns
// how many were removed.
func (s *Store) DropBefore(t time.Time) int {
	s.mu.RLock()
	all := make([]*series, 0, len(s.series))
	for _, sr := range s.series {
		all = append(all, sr)
	}
	s.mu.RUnlock()

	var n int
	for _, sr := range all {
		sr.mu.Lock()
		before := len(sr.samples)
		sr.prune(t)
		n += before - len(sr.samples)
		sr.mu.Unlock()
	}
	return n
}

func (s *Store) seriesFor(metric string, create bool) *series {
	s.mu.RLock()
	sr, ok := s.series[metric]
	s.mu.RUnlock()
	if ok || !create {
		return sr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok = s.series[metric]; ok {
		return sr
	}
	sr = &series{}
	s.series[metric] = sr
	return sr
}

// cutoff returns the oldest timestamp still inside the retention window,
// or the zero time when retention is disabled.
func (s *Store) cutoff() time.Time {
	if s.retention <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.retention)
}

// prune drops samples older than cutoff. Callers must hold sr.mu.
func (sr *series) prune(cutoff time.Time) {
	if cutoff.IsZero() || len(sr.samples) == 0 {
		return
	}
	i := sort.Search(len(sr.samples), func(i int) bool {
		return !sr.samples[i].Timestamp.Before(cutoff)
	})
	if i == 0 {
		return
	}
	sr.samples = append([]Sample(nil), sr.samples[i:]...)
}
