package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
	"github.com/Suraj-creation/Sysmind-CLI/internal/config"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
)

const (
	defaultCooldown   = 15 * time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert lifecycle states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

// Recorder mirrors alert transitions to durable storage.
type Recorder interface {
	RecordAlert(ctx context.Context, a Alert) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

// WithRecorder mirrors every fired and resolved alert to r.
func WithRecorder(r Recorder) Option { return func(e *Engine) { e.recorder = r } }

// WithHTTPClient replaces the webhook HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(e *Engine) { e.client = c } }

// WithRetry sets the webhook delivery attempts and the first backoff delay,
// which doubles after each failed attempt.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		e.attempts = attempts
		e.backoff = backoff
	}
}

// Engine evaluates alert rules against published health reports and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	client   *http.Client
	recorder Recorder
	now      func() time.Time
	attempts int
	backoff  time.Duration

	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts

	inflight sync.WaitGroup
}

// New creates an Engine from the alert configuration.
// An Engine with no rules is valid; Evaluate becomes a no-op.
func New(cfg config.AlertsConfig, opts ...Option) *Engine {
	e := &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
		attempts: 3,
		backoff:  time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	if e.attempts < 1 {
		e.attempts = 1
	}
	return e
}

// Reconfigure swaps the rules and webhooks. Firing alerts whose rule no
// longer exists are dropped without a resolve notification.
func (e *Engine) Reconfigure(cfg config.AlertsConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = cfg.Rules
	e.webhooks = cfg.Webhooks

	keep := make(map[string]bool, len(cfg.Rules))
	for _, r := range cfg.Rules {
		keep[r.Name] = true
	}
	for name := range e.active {
		if !keep[name] {
			delete(e.active, name)
			delete(e.lastFire, name)
		}
	}
	slog.Info("alerts: rules reloaded", "rules", len(cfg.Rules), "webhooks", len(cfg.Webhooks))
}

// Evaluate tests all configured rules against one report.
// Alerts that fire are stored and delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(h health.SystemHealth, as []anomaly.Anomaly) {
	now := e.now()

	e.mu.Lock()
	var (
		changed  []Alert
		webhooks = e.webhooks
	)
	for _, rule := range e.rules {
		fires, value := evalCondition(rule.Condition, h, as)
		if fires {
			if a := e.fire(rule, value, now); a != nil {
				changed = append(changed, *a)
			}
			continue
		}
		if a := e.resolve(rule.Name, now); a != nil {
			changed = append(changed, *a)
		}
	}
	e.mu.Unlock()

	for _, a := range changed {
		if a.State == StateFiring {
			slog.Warn("alerts: alert fired",
				"rule", a.RuleName,
				"value", a.Value,
				"severity", a.Severity,
			)
		} else {
			slog.Info("alerts: alert resolved", "rule", a.RuleName)
		}
		e.inflight.Add(1)
		go func(a Alert) {
			defer e.inflight.Done()
			e.dispatch(context.Background(), webhooks, &a)
		}(a)
	}
}

// fire records a new firing alert unless the rule is cooling down or already
// firing. Callers hold e.mu.
func (e *Engine) fire(rule config.AlertRule, value float64, now time.Time) *Alert {
	if _, firing := e.active[rule.Name]; firing {
		return nil
	}
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if last, ok := e.lastFire[rule.Name]; ok && now.Sub(last) < cooldown {
		return nil
	}
	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:       uuid.NewString(),
		RuleName: rule.Name,
		Severity: sev,
		Value:    value,
		Message:  fmt.Sprintf("[%s] %s fired: %s (value %.2f)", sev, rule.Name, rule.Condition, value),
		FiredAt:  now,
		State:    StateFiring,
	}
	e.active[rule.Name] = a
	e.lastFire[rule.Name] = now
	return a
}

// resolve moves a firing alert to history. Callers hold e.mu.
func (e *Engine) resolve(name string, now time.Time) *Alert {
	a, ok := e.active[name]
	if !ok {
		return nil
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, name)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	return a
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, sorted newest first.
func (e *Engine) Active() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]Alert, 0, len(e.active))
	for _, a := range e.active {
		out = append(out, *a)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			out = append(out, *a)
		}
	}
	sortNewest(out)
	return out
}

// History returns copies of every retained resolved alert, newest first.
func (e *Engine) History() []Alert {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Alert, len(e.history))
	for i, a := range e.history {
		out[i] = *a
	}
	sortNewest(out)
	return out
}

// Wait blocks until every in-flight delivery has finished.
func (e *Engine) Wait() { e.inflight.Wait() }

func sortNewest(as []Alert) {
	sort.SliceStable(as, func(i, j int) bool { return as[i].FiredAt.After(as[j].FiredAt) })
}
