package collector

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/Suraj-creation/Sysmind-CLI/internal/config"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
)

const defaultScrapeTimeout = 10 * time.Second

// node_exporter metric names we read.
const (
	nodeCPUSeconds     = "node_cpu_seconds_total"
	nodeLoad1          = "node_load1"
	nodeMemAvailable   = "node_memory_MemAvailable_bytes"
	nodeMemTotal       = "node_memory_MemTotal_bytes"
	nodeSwapTotal      = "node_memory_SwapTotal_bytes"
	nodeSwapFree       = "node_memory_SwapFree_bytes"
	nodeFSAvail        = "node_filesystem_avail_bytes"
	nodeFSSize         = "node_filesystem_size_bytes"
	nodeNetUp          = "node_network_up"
	nodeNetRecvErrs    = "node_network_receive_errs_total"
	nodeNetSendErrs    = "node_network_transmit_errs_total"
	nodeNetRecvDrop    = "node_network_receive_drop_total"
	nodeNetSendDrop    = "node_network_transmit_drop_total"
	nodeProcsRunning   = "node_procs_running"
	nodeProcsBlocked   = "node_procs_blocked"
	nodeProcessesPIDs  = "node_processes_pids"
	nodeProcessesState = "node_processes_state"
)

// cpuTimes is one reading of the summed CPU counters.
type cpuTimes struct {
	idle, total float64
}

// Prometheus derives bundles from a node_exporter text exposition.
//
// CPU usage is computed from the change in node_cpu_seconds_total between
// consecutive scrapes; the first scrape reports the average since boot.
type Prometheus struct {
	cfg    config.PrometheusConfig
	client *http.Client

	mu      sync.Mutex
	prevCPU *cpuTimes
}

// NewPrometheus returns a collector for the configured endpoint. The HTTP
// client is built once and reused across scrapes.
func NewPrometheus(cfg config.PrometheusConfig) (*Prometheus, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("prometheus: endpoint is required")
	}
	if cfg.Mountpoint == "" {
		cfg.Mountpoint = "/"
	}
	return &Prometheus{cfg: cfg, client: buildHTTPClient(cfg)}, nil
}

// Collect scrapes the endpoint and builds the bundle for c.
func (p *Prometheus) Collect(ctx context.Context, c health.Category) (health.Bundle, error) {
	mfs, err := fetchMetrics(ctx, p.client, p.cfg.Endpoint)
	if err != nil {
		slog.Warn("collector: node_exporter fetch failed", "endpoint", p.cfg.Endpoint, "err", err)
		return nil, fmt.Errorf("prometheus scrape: %w", err)
	}
	switch c {
	case health.CPU:
		return p.cpu(mfs)
	case health.Memory:
		return memoryFrom(mfs)
	case health.Disk:
		return diskFrom(mfs, p.cfg.Mountpoint)
	case health.Network:
		return networkFrom(mfs), nil
	case health.Process:
		return processFrom(mfs), nil
	default:
		return nil, fmt.Errorf("collector: unknown category %q", c)
	}
}

func (p *Prometheus) cpu(mfs map[string]*dto.MetricFamily) (health.Bundle, error) {
	mf := mfs[nodeCPUSeconds]
	if mf == nil {
		return nil, fmt.Errorf("%s not exposed", nodeCPUSeconds)
	}
	cur := cpuTimes{
		idle:  sumWhere(mf, func(m *dto.Metric) bool { return labelValue(m, "mode") == "idle" }),
		total: sumFamily(mf),
	}

	p.mu.Lock()
	usage := deltaOf(p.prevCPU, cur)
	p.prevCPU = &cur
	p.mu.Unlock()

	b := &health.CPUBundle{UsagePercent: clampPercent(usage)}
	if load := mfs[nodeLoad1]; load != nil {
		if cores := distinctLabels(mf, "cpu"); cores > 0 {
			b.LoadPerCore = health.Float(sumFamily(load) / float64(cores))
		}
	}
	return b, nil
}

// deltaOf returns the busy share of CPU time between prev and cur. Without a
// previous reading, or after a counter reset, cur alone is used.
func deltaOf(prev *cpuTimes, cur cpuTimes) float64 {
	idle, total := cur.idle, cur.total
	if prev != nil && cur.total > prev.total && cur.idle >= prev.idle {
		idle, total = cur.idle-prev.idle, cur.total-prev.total
	}
	if total <= 0 {
		return 0
	}
	return (1 - idle/total) * 100
}

func memoryFrom(mfs map[string]*dto.MetricFamily) (health.Bundle, error) {
	total := sumFamily(mfs[nodeMemTotal])
	if total <= 0 {
		return nil, fmt.Errorf("%s not exposed", nodeMemTotal)
	}
	avail := sumFamily(mfs[nodeMemAvailable])
	b := &health.MemoryBundle{UsagePercent: clampPercent((1 - avail/total) * 100)}
	if swapTotal := sumFamily(mfs[nodeSwapTotal]); swapTotal > 0 {
		free := sumFamily(mfs[nodeSwapFree])
		b.SwapPercent = health.Float(clampPercent((1 - free/swapTotal) * 100))
	}
	return b, nil
}

func diskFrom(mfs map[string]*dto.MetricFamily, mountpoint string) (health.Bundle, error) {
	onMount := func(m *dto.Metric) bool { return labelValue(m, "mountpoint") == mountpoint }
	size := sumWhere(mfs[nodeFSSize], onMount)
	if size <= 0 {
		return nil, fmt.Errorf("no filesystem size for mountpoint %q", mountpoint)
	}
	avail := sumWhere(mfs[nodeFSAvail], onMount)
	return &health.DiskBundle{
		Mountpoint:   mountpoint,
		UsagePercent: clampPercent((1 - avail/size) * 100),
	}, nil
}

func networkFrom(mfs map[string]*dto.MetricFamily) health.Bundle {
	notLoopback := func(m *dto.Metric) bool { return labelValue(m, "device") != "lo" }
	b := &health.NetworkBundle{
		Connected: sumWhere(mfs[nodeNetUp], notLoopback) > 0,
	}
	var errs float64
	for _, name := range []string{nodeNetRecvErrs, nodeNetSendErrs, nodeNetRecvDrop, nodeNetSendDrop} {
		errs += sumWhere(mfs[name], notLoopback)
	}
	if mfs[nodeNetRecvErrs] != nil || mfs[nodeNetSendErrs] != nil {
		b.InterfaceErrors = health.Uint(uint64(errs))
	}
	return b
}

func processFrom(mfs map[string]*dto.MetricFamily) health.Bundle {
	b := &health.ProcessBundle{}
	switch {
	case mfs[nodeProcessesPIDs] != nil:
		b.ProcessCount = health.Int(int(sumFamily(mfs[nodeProcessesPIDs])))
	case mfs[nodeProcsRunning] != nil:
		b.ProcessCount = health.Int(int(sumFamily(mfs[nodeProcsRunning]) + sumFamily(mfs[nodeProcsBlocked])))
	}
	if st := mfs[nodeProcessesState]; st != nil {
		z := sumWhere(st, func(m *dto.Metric) bool { return labelValue(m, "state") == "Z" })
		b.ZombieCount = health.Int(int(z))
	}
	return b
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the endpoint's auth and TLS settings.
func buildHTTPClient(cfg config.PrometheusConfig) *http.Client {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg},
			auth: cfg.Auth,
		},
		Timeout: defaultScrapeTimeout,
	}
}

// fetchMetrics performs an HTTP GET to url and returns parsed metric families.
func fetchMetrics(ctx context.Context, client *http.Client, url string) (map[string]*dto.MetricFamily, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", string(expfmt.NewFormat(expfmt.TypeTextPlain)))

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return parseMetrics(resp.Body)
}

// parseMetrics decodes a Prometheus text exposition from r into metric families.
// A partial result with a non-fatal parse warning is still returned successfully.
func parseMetrics(r io.Reader) (map[string]*dto.MetricFamily, error) {
	var parser expfmt.TextParser
	mfs, err := parser.TextToMetricFamilies(r)
	if err != nil && len(mfs) == 0 {
		return nil, fmt.Errorf("parse prometheus text: %w", err)
	}
	return mfs, nil
}

// sumFamily adds up all counter, gauge, or untyped values in a MetricFamily.
// Returns 0 if mf is nil (metric not present in the scrape).
func sumFamily(mf *dto.MetricFamily) float64 {
	return sumWhere(mf, func(*dto.Metric) bool { return true })
}

// sumWhere is sumFamily restricted to the series keep accepts.
func sumWhere(mf *dto.MetricFamily, keep func(*dto.Metric) bool) float64 {
	if mf == nil {
		return 0
	}
	var total float64
	for _, m := range mf.GetMetric() {
		if !keep(m) {
			continue
		}
		switch {
		case m.Counter != nil:
			total += m.Counter.GetValue()
		case m.Gauge != nil:
			total += m.Gauge.GetValue()
		case m.Untyped != nil:
			total += m.Untyped.GetValue()
		}
	}
	return total
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

func distinctLabels(mf *dto.MetricFamily, name string) int {
	seen := make(map[string]struct{})
	for _, m := range mf.GetMetric() {
		if v := labelValue(m, name); v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}
