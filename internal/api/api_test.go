package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/alerts"
	"github.com/Suraj-creation/Sysmind-CLI/internal/api"
	"github.com/Suraj-creation/Sysmind-CLI/internal/baseline"
	"github.com/Suraj-creation/Sysmind-CLI/internal/config"
	"github.com/Suraj-creation/Sysmind-CLI/internal/engine"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
	"github.com/Suraj-creation/Sysmind-CLI/internal/persist"
	"github.com/Suraj-creation/Sysmind-CLI/internal/samples"
	"github.com/Suraj-creation/Sysmind-CLI/internal/telemetry"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// --- test helpers -----------------------------------------------------------

// fixedCollector serves the same bundles on every call.
type fixedCollector struct {
	calls atomic.Int32
}

func (f *fixedCollector) Collect(_ context.Context, c health.Category) (health.Bundle, error) {
	f.calls.Add(1)
	switch c {
	case health.CPU:
		return &health.CPUBundle{UsagePercent: 30}, nil
	case health.Memory:
		return &health.MemoryBundle{UsagePercent: 50}, nil
	case health.Disk:
		return &health.DiskBundle{Mountpoint: "/", UsagePercent: 95}, nil
	}
	return nil, nil
}

type fixedAlerts []alerts.Alert

func (f fixedAlerts) Active() []alerts.Alert { return f }

// storedAlerts serves a fixed alert history and records the requested limit.
type storedAlerts struct {
	all   []alerts.Alert
	err   error
	limit int
}

func (s *storedAlerts) Alerts(_ context.Context, limit int) ([]alerts.Alert, error) {
	s.limit = limit
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.all) {
		return s.all[:limit], nil
	}
	return s.all, nil
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func newEngine(t *testing.T) (*engine.Engine, *fixedCollector) {
	t.Helper()
	fc := &fixedCollector{}
	e := engine.New(fc, persist.NewMemory(), engine.Options{
		Retention: 24 * time.Hour,
		Now:       func() time.Time { return t0 },
	})
	return e, fc
}

func newHandler(t *testing.T) (http.Handler, *engine.Engine, *fixedCollector) {
	t.Helper()
	e, fc := newEngine(t)
	return api.New(e, api.Options{}), e, fc
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, bytes.NewReader(body)))
	return rr
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodGet, path, nil)
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

// seedMemoryAnomalies installs a memory baseline (mean 40, std 10) and posts
// one critical, one warning and one normal sample.
func seedMemoryAnomalies(t *testing.T, h http.Handler, e *engine.Engine) {
	t.Helper()
	err := e.ImportBaselines(context.Background(), []baseline.Baseline{{
		Metric: health.MetricMemoryUsage, Mean: 40, StdDev: 10, SampleCount: 10, ComputedAt: t0,
	}})
	if err != nil {
		t.Fatal(err)
	}
	body, _ := json.Marshal(api.IngestRequest{Samples: []samples.Sample{
		{Metric: health.MetricMemoryUsage, Timestamp: t0.Add(-3 * time.Minute), Value: 65},
		{Metric: health.MetricMemoryUsage, Timestamp: t0.Add(-2 * time.Minute), Value: 60},
		{Metric: health.MetricMemoryUsage, Timestamp: t0.Add(-time.Minute), Value: 45},
	}})
	rr := do(t, h, http.MethodPost, "/api/v1/samples", body)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("ingest: status %d: %s", rr.Code, rr.Body.String())
	}
	var resp api.IngestResponse
	decode(t, rr, &resp)
	if resp.Accepted != 3 || len(resp.Anomalies) != 2 {
		t.Fatalf("ingest response: %+v", resp)
	}
}

// --- /api/v1/health ---------------------------------------------------------

func TestHealth_TicksOnFirstRequest(t *testing.T) {
	h, _, fc := newHandler(t)
	rr := get(t, h, "/api/v1/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var rep engine.Report
	decode(t, rr, &rep)
	if rep.Components[health.Disk].Score != 40 {
		t.Errorf("disk score: got %d, want 40", rep.Components[health.Disk].Score)
	}
	if rep.Status == "" || rep.Metrics.CPU == nil {
		t.Errorf("report incomplete: %+v", rep)
	}

	calls := fc.calls.Load()
	get(t, h, "/api/v1/health")
	if fc.calls.Load() != calls {
		t.Error("second request sampled again instead of serving the latest report")
	}
}

func TestComponent(t *testing.T) {
	h, _, _ := newHandler(t)

	rr := get(t, h, "/api/v1/health/components/disk")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var c health.ComponentHealth
	decode(t, rr, &c)
	if c.Component != health.Disk || c.Score != 40 {
		t.Errorf("got %+v", c)
	}

	if rr := get(t, h, "/api/v1/health/components/gpu"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown component: got %d, want 404", rr.Code)
	}
}

// --- anomalies --------------------------------------------------------------

func TestAnomalies(t *testing.T) {
	h, e, _ := newHandler(t)
	seedMemoryAnomalies(t, h, e)

	var resp api.AnomaliesResponse
	decode(t, get(t, h, "/api/v1/anomalies?period=1h"), &resp)
	if resp.Count != 2 || resp.Period != "1h0m0s" {
		t.Fatalf("got %+v", resp)
	}
	if resp.Anomalies[0].Value != 65 {
		t.Errorf("critical first: got %+v", resp.Anomalies[0])
	}

	decode(t, get(t, h, "/api/v1/anomalies?severity=critical"), &resp)
	if resp.Count != 1 {
		t.Errorf("severity filter: got %d, want 1", resp.Count)
	}

	decode(t, get(t, h, "/api/v1/anomalies?period=90s"), &resp)
	if resp.Count != 0 {
		t.Errorf("short period: got %d, want 0", resp.Count)
	}
}

func TestAnomalySummary(t *testing.T) {
	h, e, _ := newHandler(t)
	seedMemoryAnomalies(t, h, e)

	var resp api.SummaryResponse
	decode(t, get(t, h, "/api/v1/anomalies/summary"), &resp)
	if resp.Total != 2 || resp.BySeverity["critical"] != 1 || resp.BySeverity["warning"] != 1 {
		t.Errorf("got %+v", resp)
	}
	if resp.ByMetric[health.MetricMemoryUsage] != 2 {
		t.Errorf("by metric: %v", resp.ByMetric)
	}
}

func TestBadQueryParams(t *testing.T) {
	h, _, _ := newHandler(t)
	for _, path := range []string{
		"/api/v1/anomalies?period=soon",
		"/api/v1/anomalies?period=-1h",
		"/api/v1/anomalies?severity=extreme",
		"/api/v1/correlations?window=x",
		"/api/v1/recommendations?quick=maybe",
		"/api/v1/trends?period=0s",
	} {
		if rr := get(t, h, path); rr.Code != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", path, rr.Code)
		}
	}
}

func TestCorrelations(t *testing.T) {
	h, e, _ := newHandler(t)
	seedMemoryAnomalies(t, h, e)

	var resp api.CorrelationsResponse
	decode(t, get(t, h, "/api/v1/correlations?period=1h&window=5m"), &resp)
	if resp.Window != "5m0s" {
		t.Errorf("window: %q", resp.Window)
	}
	// Both anomalies are on one metric; an event needs two distinct metrics.
	if len(resp.Events) != 0 {
		t.Errorf("events: %+v", resp.Events)
	}
}

// --- recommendations --------------------------------------------------------

func TestRecommendations(t *testing.T) {
	h, _, _ := newHandler(t)

	var resp api.RecommendationsResponse
	decode(t, get(t, h, "/api/v1/recommendations"), &resp)
	if len(resp.Recommendations) == 0 {
		t.Fatal("want recommendations for a 95% full disk")
	}
	if resp.Summary.Total != len(resp.Recommendations) {
		t.Errorf("summary total %d != %d", resp.Summary.Total, len(resp.Recommendations))
	}

	decode(t, get(t, h, "/api/v1/recommendations?category=disk"), &resp)
	for _, r := range resp.Recommendations {
		if r.Category != "disk" {
			t.Errorf("category filter leaked %+v", r)
		}
	}

	decode(t, get(t, h, "/api/v1/recommendations?quick=true"), &resp)
	for _, r := range resp.Recommendations {
		if !r.Automated || r.Risk != "low" {
			t.Errorf("quick win is not automated and low risk: %+v", r)
		}
	}
}

// --- baselines --------------------------------------------------------------

func TestBaselines_CRUD(t *testing.T) {
	h, e, _ := newHandler(t)

	var list []baseline.Baseline
	decode(t, get(t, h, "/api/v1/baselines"), &list)
	if len(list) != 0 {
		t.Fatalf("want empty list, got %+v", list)
	}
	if rr := get(t, h, "/api/v1/baselines/app.latency_ms"); rr.Code != http.StatusNotFound {
		t.Errorf("missing baseline: got %d, want 404", rr.Code)
	}

	// Too little history.
	if rr := do(t, h, http.MethodPost, "/api/v1/baselines/app.latency_ms", nil); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("recompute without history: got %d, want 422", rr.Code)
	}

	batch := make([]samples.Sample, 12)
	for i := range batch {
		batch[i] = samples.Sample{Metric: "app.latency_ms", Timestamp: t0.Add(-time.Duration(i+1) * time.Minute), Value: 100}
	}
	if _, err := e.Ingest(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	rr := do(t, h, http.MethodPost, "/api/v1/baselines/app.latency_ms?window=1h", nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("recompute: got %d: %s", rr.Code, rr.Body.String())
	}
	var b baseline.Baseline
	decode(t, rr, &b)
	if b.Mean != 100 || b.SampleCount != 12 {
		t.Errorf("baseline: %+v", b)
	}

	decode(t, get(t, h, "/api/v1/baselines"), &list)
	if len(list) != 1 {
		t.Errorf("list after recompute: %+v", list)
	}
	if rr := get(t, h, "/api/v1/baselines/app.latency_ms"); rr.Code != http.StatusOK {
		t.Errorf("get after recompute: %d", rr.Code)
	}

	if rr := do(t, h, http.MethodDelete, "/api/v1/baselines/app.latency_ms", nil); rr.Code != http.StatusNoContent {
		t.Errorf("delete: got %d, want 204", rr.Code)
	}
	if rr := get(t, h, "/api/v1/baselines/app.latency_ms"); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want 404", rr.Code)
	}
}

// --- trends -----------------------------------------------------------------

func TestTrends(t *testing.T) {
	h, e, _ := newHandler(t)
	_, err := e.Ingest(context.Background(), []samples.Sample{
		{Metric: health.MetricCPUUsage, Timestamp: t0.Add(-20 * time.Minute), Value: 20},
		{Metric: health.MetricCPUUsage, Timestamp: t0.Add(-10 * time.Minute), Value: 50},
		{Metric: health.MetricCPUUsage, Timestamp: t0.Add(-5 * time.Minute), Value: 85},
	})
	if err != nil {
		t.Fatal(err)
	}

	var resp api.TrendsResponse
	decode(t, get(t, h, "/api/v1/trends?period=1h"), &resp)
	if len(resp.Trends) != 1 || resp.Trends[0].Direction != "increasing" {
		t.Fatalf("trends: %+v", resp.Trends)
	}
	if len(resp.Spikes) != 1 || resp.Spikes[0].Value != 85 {
		t.Errorf("spikes: %+v", resp.Spikes)
	}
}

// --- ingest -----------------------------------------------------------------

func TestIngest_Rejects(t *testing.T) {
	h, _, _ := newHandler(t)
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{"},
		{"unknown field", `{"points":[]}`},
		{"empty", `{"samples":[]}`},
		{"missing metric", `{"samples":[{"value":1}]}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/api/v1/samples", []byte(tc.body))
			if rr.Code != http.StatusBadRequest {
				t.Errorf("got %d, want 400", rr.Code)
			}
			var e map[string]string
			decode(t, rr, &e)
			if e["error"] == "" {
				t.Error("error message missing")
			}
		})
	}
}

// --- alerts -----------------------------------------------------------------

func TestAlerts(t *testing.T) {
	e, _ := newEngine(t)

	var got []alerts.Alert
	decode(t, get(t, api.New(e, api.Options{}), "/api/v1/alerts"), &got)
	if len(got) != 0 {
		t.Errorf("without an alert source: %+v", got)
	}

	src := fixedAlerts{{ID: "a1", RuleName: "low-overall", State: alerts.StateFiring}}
	decode(t, get(t, api.New(e, api.Options{Alerts: src}), "/api/v1/alerts"), &got)
	if len(got) != 1 || got[0].ID != "a1" {
		t.Errorf("got %+v", got)
	}
}

func TestAlertHistory(t *testing.T) {
	e, _ := newEngine(t)

	if rr := get(t, api.New(e, api.Options{}), "/api/v1/alerts/history"); rr.Code != http.StatusNotImplemented {
		t.Errorf("without history: status %d", rr.Code)
	}

	hist := &storedAlerts{all: []alerts.Alert{
		{ID: "a2", RuleName: "low-overall", State: alerts.StateResolved},
		{ID: "a1", RuleName: "low-overall", State: alerts.StateFiring},
	}}
	h := api.New(e, api.Options{History: hist})

	var got []alerts.Alert
	decode(t, get(t, h, "/api/v1/alerts/history"), &got)
	if len(got) != 2 || hist.limit != 100 {
		t.Errorf("default limit: got %d alerts, limit %d", len(got), hist.limit)
	}
	decode(t, get(t, h, "/api/v1/alerts/history?limit=1"), &got)
	if len(got) != 1 || got[0].ID != "a2" || hist.limit != 1 {
		t.Errorf("limit=1: got %+v, limit %d", got, hist.limit)
	}

	for _, q := range []string{"0", "-1", "x", "1001"} {
		if rr := get(t, h, "/api/v1/alerts/history?limit="+q); rr.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status %d", q, rr.Code)
		}
	}

	hist.err = errors.New("connection reset")
	if rr := get(t, h, "/api/v1/alerts/history"); rr.Code != http.StatusInternalServerError {
		t.Errorf("storage error: status %d", rr.Code)
	}
}

func TestReadyz(t *testing.T) {
	e, _ := newEngine(t)
	tests := []struct {
		name    string
		storage api.Pinger
		want    int
	}{
		{"no storage", nil, http.StatusOK},
		{"memory", persist.NewMemory(), http.StatusOK},
		{"unreachable", pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }), http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// /readyz answers without credentials.
			t.Setenv("SYSMIND_READYZ_KEY", "k")
			h := api.New(e, api.Options{
				Storage: tc.storage,
				Auth:    config.AuthConfig{Mode: "apikey", KeyEnv: "SYSMIND_READYZ_KEY"},
			})
			if rr := get(t, h, "/readyz"); rr.Code != tc.want {
				t.Errorf("status: got %d, want %d (body %s)", rr.Code, tc.want, rr.Body.String())
			}
		})
	}
}

func TestCurrentState(t *testing.T) {
	h, _, _ := newHandler(t)

	var st struct {
		CPU      float64 `json:"cpu_percent"`
		Memory   float64 `json:"memory_percent"`
		Strength float64 `json:"correlation_strength"`
		Severity string  `json:"severity"`
	}
	rr := get(t, h, "/api/v1/correlations/current")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	decode(t, rr, &st)
	if st.CPU != 30 || st.Memory != 50 || st.Severity != "info" {
		t.Errorf("got %+v", st)
	}
	if st.Strength < 0.79 || st.Strength > 0.81 {
		t.Errorf("strength: got %v, want 0.8", st.Strength)
	}
}

// --- routing and middleware -------------------------------------------------

func TestRouting(t *testing.T) {
	h, _, _ := newHandler(t)
	if rr := get(t, h, "/api/v1/nope"); rr.Code != http.StatusNotFound {
		t.Errorf("unknown route: got %d, want 404", rr.Code)
	}
	if rr := do(t, h, http.MethodPut, "/api/v1/health", nil); rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method: got %d, want 405", rr.Code)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	t.Setenv("SYSMIND_TEST_API_KEY", "s3cret")
	e, _ := newEngine(t)
	h := api.New(e, api.Options{
		Auth: config.AuthConfig{Mode: "apikey", KeyEnv: "SYSMIND_TEST_API_KEY"},
	})

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong", "nope", "", http.StatusUnauthorized},
		{"header", "s3cret", "", http.StatusOK},
		{"query", "", "?api_key=s3cret", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/baselines"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("X-API-Key", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Errorf("got %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	e, _ := newEngine(t)
	h := api.New(e, api.Options{RateLimit: config.RateLimitConfig{RPS: 0.001, Burst: 2}})

	for i := 0; i < 2; i++ {
		if rr := get(t, h, "/api/v1/baselines"); rr.Code != http.StatusOK {
			t.Fatalf("request %d: got %d", i, rr.Code)
		}
	}
	rr := get(t, h, "/api/v1/baselines")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: got %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After missing")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Setenv("SYSMIND_TEST_API_KEY", "s3cret")
	e, _ := newEngine(t)
	h := api.New(e, api.Options{
		Auth:      config.AuthConfig{Mode: "apikey", KeyEnv: "SYSMIND_TEST_API_KEY"},
		Telemetry: telemetry.New(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/baselines", nil)
	req.Header.Set("X-API-Key", "s3cret")
	h.ServeHTTP(httptest.NewRecorder(), req)

	rr := get(t, h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics: got %d, want 200 without a key", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `sysmind_http_requests_total{method="GET",route="/api/v1/baselines",status="200"} 1`) {
		t.Errorf("request metric missing:\n%s", rr.Body.String())
	}
}
