package collector

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/config"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// nodeMetrics renders a node_exporter exposition with the given per-CPU
// idle and user seconds for cpu0 and cpu1.
func nodeMetrics(idle0, user0, idle1, user1 float64) string {
	return fmt.Sprintf(`
# HELP node_cpu_seconds_total Seconds the CPUs spent in each mode.
# TYPE node_cpu_seconds_total counter
node_cpu_seconds_total{cpu="0",mode="idle"} %g
node_cpu_seconds_total{cpu="0",mode="user"} %g
node_cpu_seconds_total{cpu="1",mode="idle"} %g
node_cpu_seconds_total{cpu="1",mode="user"} %g
# TYPE node_load1 gauge
node_load1 1
# TYPE node_memory_MemTotal_bytes gauge
node_memory_MemTotal_bytes 1000
# TYPE node_memory_MemAvailable_bytes gauge
node_memory_MemAvailable_bytes 250
# TYPE node_memory_SwapTotal_bytes gauge
node_memory_SwapTotal_bytes 100
# TYPE node_memory_SwapFree_bytes gauge
node_memory_SwapFree_bytes 100
# TYPE node_filesystem_size_bytes gauge
node_filesystem_size_bytes{device="/dev/sda1",mountpoint="/"} 1000
node_filesystem_size_bytes{device="/dev/sda2",mountpoint="/boot"} 100
# TYPE node_filesystem_avail_bytes gauge
node_filesystem_avail_bytes{device="/dev/sda1",mountpoint="/"} 100
node_filesystem_avail_bytes{device="/dev/sda2",mountpoint="/boot"} 100
# TYPE node_network_up gauge
node_network_up{device="eth0"} 1
node_network_up{device="lo"} 1
# TYPE node_network_receive_errs_total counter
node_network_receive_errs_total{device="eth0"} 3
node_network_receive_errs_total{device="lo"} 100
# TYPE node_network_transmit_errs_total counter
node_network_transmit_errs_total{device="eth0"} 2
# TYPE node_network_receive_drop_total counter
node_network_receive_drop_total{device="eth0"} 1
# TYPE node_procs_running gauge
node_procs_running 3
# TYPE node_procs_blocked gauge
node_procs_blocked 1
# TYPE node_processes_state gauge
node_processes_state{state="R"} 3
node_processes_state{state="Z"} 2
`, idle0, user0, idle1, user1)
}

func newNodeServer(t *testing.T, bodies ...string) *httptest.Server {
	t.Helper()
	var n atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		i := int(n.Add(1)) - 1
		if i >= len(bodies) {
			i = len(bodies) - 1
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(bodies[i]))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPrometheus_Categories(t *testing.T) {
	srv := newNodeServer(t, nodeMetrics(80, 20, 70, 30))
	p, err := NewPrometheus(config.PrometheusConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	b, err := p.Collect(ctx, health.CPU)
	if err != nil {
		t.Fatalf("cpu: %v", err)
	}
	cpu := b.(*health.CPUBundle)
	if !almostEqual(cpu.UsagePercent, 25) {
		t.Errorf("cpu usage: got %v, want 25", cpu.UsagePercent)
	}
	if cpu.LoadPerCore == nil || !almostEqual(*cpu.LoadPerCore, 0.5) {
		t.Errorf("load per core: got %v, want 0.5", cpu.LoadPerCore)
	}

	b, err = p.Collect(ctx, health.Memory)
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	m := b.(*health.MemoryBundle)
	if !almostEqual(m.UsagePercent, 75) || m.SwapPercent == nil || *m.SwapPercent != 0 {
		t.Errorf("memory: got %+v", m)
	}

	b, err = p.Collect(ctx, health.Disk)
	if err != nil {
		t.Fatalf("disk: %v", err)
	}
	if d := b.(*health.DiskBundle); !almostEqual(d.UsagePercent, 90) || d.Mountpoint != "/" {
		t.Errorf("disk: got %+v", d)
	}

	b, err = p.Collect(ctx, health.Network)
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	n := b.(*health.NetworkBundle)
	if !n.Connected || n.InterfaceErrors == nil || *n.InterfaceErrors != 6 {
		t.Errorf("network: got %+v", n)
	}

	b, err = p.Collect(ctx, health.Process)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	pr := b.(*health.ProcessBundle)
	if pr.ProcessCount == nil || *pr.ProcessCount != 4 || pr.ZombieCount == nil || *pr.ZombieCount != 2 {
		t.Errorf("process: got %+v", pr)
	}
}

func TestPrometheus_CPUDelta(t *testing.T) {
	srv := newNodeServer(t,
		nodeMetrics(80, 20, 70, 30),
		nodeMetrics(90, 30, 80, 40),
	)
	p, err := NewPrometheus(config.PrometheusConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	first, err := p.Collect(context.Background(), health.CPU)
	if err != nil {
		t.Fatal(err)
	}
	second, err := p.Collect(context.Background(), health.CPU)
	if err != nil {
		t.Fatal(err)
	}
	if got := first.(*health.CPUBundle).UsagePercent; !almostEqual(got, 25) {
		t.Errorf("first scrape: got %v, want 25 (since boot)", got)
	}
	// idle +20 of total +40 between scrapes
	if got := second.(*health.CPUBundle).UsagePercent; !almostEqual(got, 50) {
		t.Errorf("second scrape: got %v, want 50", got)
	}
}

func TestDeltaOf(t *testing.T) {
	tests := []struct {
		name string
		prev *cpuTimes
		cur  cpuTimes
		want float64
	}{
		{"no previous", nil, cpuTimes{idle: 75, total: 100}, 25},
		{"delta", &cpuTimes{idle: 75, total: 100}, cpuTimes{idle: 85, total: 200}, 90},
		{"counter reset", &cpuTimes{idle: 75, total: 100}, cpuTimes{idle: 5, total: 10}, 50},
		{"no change", &cpuTimes{idle: 75, total: 100}, cpuTimes{idle: 75, total: 100}, 25},
		{"empty", nil, cpuTimes{}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := deltaOf(tc.prev, tc.cur); !almostEqual(got, tc.want) {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPrometheus_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		cat     health.Category
		cfg     func(*config.PrometheusConfig)
	}{
		{
			name:    "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusInternalServerError) },
			cat:     health.CPU,
		},
		{
			name:    "cpu family missing",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("node_load1 1\n")) },
			cat:     health.CPU,
		},
		{
			name:    "memory family missing",
			handler: func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("node_load1 1\n")) },
			cat:     health.Memory,
		},
		{
			name: "unknown mountpoint",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(nodeMetrics(1, 1, 1, 1)))
			},
			cat: health.Disk,
			cfg: func(c *config.PrometheusConfig) { c.Mountpoint = "/data" },
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			cfg := config.PrometheusConfig{Endpoint: srv.URL}
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}
			p, err := NewPrometheus(cfg)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := p.Collect(context.Background(), tc.cat); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPrometheus_Auth(t *testing.T) {
	t.Setenv("NODE_KEY", "k1")
	t.Setenv("NODE_TOKEN", "t1")
	t.Setenv("NODE_PASS", "p1")

	tests := []struct {
		name  string
		auth  config.AuthConfig
		check func(r *http.Request) bool
	}{
		{"apikey", config.AuthConfig{Mode: "apikey", Header: "X-Node-Key", KeyEnv: "NODE_KEY"},
			func(r *http.Request) bool { return r.Header.Get("X-Node-Key") == "k1" }},
		{"bearer", config.AuthConfig{Mode: "bearer", TokenEnv: "NODE_TOKEN"},
			func(r *http.Request) bool { return r.Header.Get("Authorization") == "Bearer t1" }},
		{"basic", config.AuthConfig{Mode: "basic", Username: "u", PasswordEnv: "NODE_PASS"},
			func(r *http.Request) bool { u, p, ok := r.BasicAuth(); return ok && u == "u" && p == "p1" }},
		{"none", config.AuthConfig{Mode: "none"},
			func(r *http.Request) bool { return r.Header.Get("Authorization") == "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !tc.check(r) {
					w.WriteHeader(http.StatusUnauthorized)
					return
				}
				_, _ = w.Write([]byte(nodeMetrics(80, 20, 70, 30)))
			}))
			defer srv.Close()

			p, err := NewPrometheus(config.PrometheusConfig{Endpoint: srv.URL, Auth: tc.auth})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := p.Collect(context.Background(), health.Memory); err != nil {
				t.Errorf("collect: %v", err)
			}
		})
	}
}

func TestNew(t *testing.T) {
	if _, err := New(config.CollectorConfig{Type: "system"}); err != nil {
		t.Errorf("system: %v", err)
	}
	if _, err := New(config.CollectorConfig{Type: "prometheus"}); err == nil {
		t.Error("prometheus without endpoint: expected error")
	}
	if _, err := New(config.CollectorConfig{Type: "wmi"}); err == nil {
		t.Error("unknown type: expected error")
	}
}

func TestProber(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	// A closed listener gives a refused port for the first target.
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	deadAddr := dead.Addr().String()
	dead.Close()

	p := NewProber([]string{deadAddr, ln.Addr().String()}, time.Second, 3)
	r := p.Probe(context.Background())
	if !r.Connected || r.Host != ln.Addr().String() {
		t.Fatalf("got %+v, want connection to the live listener", r)
	}
	if r.PacketLossPct != 0 || r.LatencyMs < 0 {
		t.Errorf("got %+v", r)
	}

	if r := NewProber([]string{deadAddr}, time.Second, 2).Probe(context.Background()); r.Connected {
		t.Errorf("dead target reported connected: %+v", r)
	}
}

func TestProber_PartialLoss(t *testing.T) {
	var calls int
	p := NewProber([]string{"host:1"}, time.Second, 4)
	p.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		calls++
		if calls%2 == 0 {
			return nil, fmt.Errorf("timeout")
		}
		c1, c2 := net.Pipe()
		c2.Close()
		return c1, nil
	}
	r := p.Probe(context.Background())
	if !r.Connected || !almostEqual(r.PacketLossPct, 50) {
		t.Errorf("got %+v, want 50%% loss", r)
	}
}

func TestDirSizeAndEntries(t *testing.T) {
	root := t.TempDir()
	write := func(rel string, n int) {
		t.Helper()
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(strings.Repeat("x", n)), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	write("a.tmp", 100)
	write("sub/b.tmp", 50)
	write("sub/deeper/c.tmp", 25)

	if got := dirSize(context.Background(), root); got != 175 {
		t.Errorf("dirSize: got %d, want 175", got)
	}
	if got := dirSize(context.Background(), filepath.Join(root, "missing")); got != 0 {
		t.Errorf("missing dir: got %d, want 0", got)
	}
	if got := countEntries(root); got != 1 {
		t.Errorf("countEntries: got %d, want 1 (directories excluded)", got)
	}
	if got := countEntries(filepath.Join(root, "missing")); got != 0 {
		t.Errorf("countEntries missing: got %d", got)
	}
}

func TestSystem_Disk(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x"), make([]byte, 64), 0o600); err != nil {
		t.Fatal(err)
	}
	s := NewSystem(config.CollectorConfig{DiskPath: dir, TempDirs: []string{dir}})
	b, err := s.Collect(context.Background(), health.Disk)
	if err != nil {
		t.Skipf("disk usage unavailable here: %v", err)
	}
	d := b.(*health.DiskBundle)
	if err := d.Validate(); err != nil {
		t.Errorf("invalid bundle: %v", err)
	}
	if d.TempBytes == nil || *d.TempBytes != 64 {
		t.Errorf("temp bytes: got %v, want 64", d.TempBytes)
	}
}

func TestSystem_UnknownCategory(t *testing.T) {
	s := NewSystem(config.CollectorConfig{})
	if _, err := s.Collect(context.Background(), health.Category("gpu")); err == nil {
		t.Error("expected error")
	}
}

func TestSystem_ProcessesIncludesSelf(t *testing.T) {
	ps, err := NewSystem(config.CollectorConfig{}).Processes(context.Background())
	if err != nil {
		t.Skipf("process listing unavailable here: %v", err)
	}
	self := int32(os.Getpid())
	for _, p := range ps {
		if p.PID == self {
			if p.RSSBytes == 0 {
				t.Errorf("own RSS reported as zero: %+v", p)
			}
			return
		}
	}
	t.Errorf("pid %d missing from %d processes", self, len(ps))
}
