package collector

import (
	"context"
	"net"
	"time"
)

// ProbeResult summarises one connectivity probe.
type ProbeResult struct {
	Connected     bool
	Host          string
	LatencyMs     float64
	PacketLossPct float64
}

// Prober measures reachability by dialling TCP targets. Hosts are tried in
// order and the first one that answers at least once is reported.
type Prober struct {
	Hosts    []string
	Timeout  time.Duration
	Attempts int

	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewProber returns a Prober with the given targets. A non-positive timeout
// or attempt count falls back to 2s and 4.
func NewProber(hosts []string, timeout time.Duration, attempts int) *Prober {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if attempts <= 0 {
		attempts = 4
	}
	return &Prober{
		Hosts:    hosts,
		Timeout:  timeout,
		Attempts: attempts,
		dial:     (&net.Dialer{}).DialContext,
	}
}

// Probe dials each host Attempts times. Loss is the share of failed dials and
// latency the mean time of the successful ones.
func (p *Prober) Probe(ctx context.Context) ProbeResult {
	for _, host := range p.Hosts {
		var (
			ok    int
			total time.Duration
		)
		for i := 0; i < p.Attempts; i++ {
			if ctx.Err() != nil {
				return ProbeResult{}
			}
			if d, err := p.once(ctx, host); err == nil {
				ok++
				total += d
			}
		}
		if ok == 0 {
			continue
		}
		return ProbeResult{
			Connected:     true,
			Host:          host,
			LatencyMs:     float64(total.Microseconds()) / float64(ok) / 1000,
			PacketLossPct: float64(p.Attempts-ok) / float64(p.Attempts) * 100,
		}
	}
	return ProbeResult{}
}

func (p *Prober) once(ctx context.Context, host string) (time.Duration, error) {
	dialCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dial(dialCtx, "tcp", host)
	if err != nil {
		return 0, err
	}
	d := time.Since(start)
	conn.Close()
	return d, nil
}
