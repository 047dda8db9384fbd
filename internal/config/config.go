package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultInterval          = 5 * time.Minute
	DefaultRetention         = 30 * 24 * time.Hour
	DefaultWindowSize        = anomaly.DefaultWindowSize
	DefaultCorrelationWindow = 5 * time.Minute
	DefaultReportPeriod      = time.Hour
	DefaultProbeTimeout      = 2 * time.Second
	DefaultProbeAttempts     = 4
	DefaultListen            = ":8080"
	DefaultBroadcast         = 5 * time.Second
	DefaultRateLimit         = 10
	DefaultRateBurst         = 20
	DefaultAlertCooldown     = 15 * time.Minute
	DefaultRedisPrefix       = "sysmind:"
)

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Collector CollectorConfig `yaml:"collector"`
	Storage   StorageConfig   `yaml:"storage"`
	API       APIConfig       `yaml:"api"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Log       LogConfig       `yaml:"log"`
}

// EngineConfig controls sampling, retention and detection.
type EngineConfig struct {
	// Interval is the time between sampling passes.
	Interval time.Duration `yaml:"interval"`

	// Retention is how long samples are kept, in memory and in storage.
	Retention time.Duration `yaml:"retention"`

	// Capacity bounds the in-memory samples per metric. 0 means unbounded.
	Capacity int `yaml:"capacity"`

	// WindowSize is the rolling window used for metrics without a baseline.
	WindowSize int `yaml:"window_size"`

	Thresholds anomaly.Thresholds `yaml:"thresholds"`

	// CorrelationWindow is how close in time anomalies must be to be grouped.
	CorrelationWindow time.Duration `yaml:"correlation_window"`

	// ReportPeriod is the anomaly lookback used for recommendations.
	ReportPeriod time.Duration `yaml:"report_period"`
}

// CollectorConfig selects and configures the metric source.
type CollectorConfig struct {
	// Type is one of: system | prometheus.
	Type string `yaml:"type"`

	// DiskPath is the filesystem path whose usage is reported.
	DiskPath string `yaml:"disk_path"`

	// TempDirs are summed into the temporary-files measurement.
	TempDirs []string `yaml:"temp_dirs"`

	// AutostartDirs are counted for the startup-programs measurement.
	AutostartDirs []string `yaml:"autostart_dirs"`

	Probe ProbeConfig `yaml:"probe"`

	Prometheus PrometheusConfig `yaml:"prometheus"`
}

// ProbeConfig controls the TCP connectivity probe used for network health.
type ProbeConfig struct {
	// Hosts are host:port targets dialled in order.
	Hosts    []string      `yaml:"hosts"`
	Timeout  time.Duration `yaml:"timeout"`
	Attempts int           `yaml:"attempts"`
}

// PrometheusConfig points the collector at a node_exporter endpoint.
type PrometheusConfig struct {
	Endpoint   string     `yaml:"endpoint"`
	Mountpoint string     `yaml:"mountpoint"`
	Auth       AuthConfig `yaml:"auth"`
	TLS        TLSConfig  `yaml:"tls"`
}

// AuthConfig specifies how to authenticate to an HTTP endpoint.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// Header is the HTTP header that carries the API key.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv is the name of the environment variable that holds the bearer token.
	TokenEnv string `yaml:"token_env"`

	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
func (a AuthConfig) Key() string { return env(a.KeyEnv) }

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string { return env(a.TokenEnv) }

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string { return env(a.PasswordEnv) }

// EffectiveHeader returns the configured header name, or the default "X-API-Key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "X-API-Key"
}

// TLSConfig holds TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is one of: memory | redis | postgres.
	Backend  string         `yaml:"backend"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	Prefix      string `yaml:"prefix"`
}

// Password returns the Redis password resolved from the environment.
func (r RedisConfig) Password() string { return env(r.PasswordEnv) }

type PostgresConfig struct {
	// DSNEnv is the name of the environment variable that holds the DSN.
	DSNEnv string `yaml:"dsn_env"`
}

// DSN returns the connection string resolved from the environment.
func (p PostgresConfig) DSN() string { return env(p.DSNEnv) }

// APIConfig controls the HTTP API and live stream.
type APIConfig struct {
	// Listen is the address the HTTP server binds. Empty disables the API.
	Listen string `yaml:"listen"`

	Auth AuthConfig `yaml:"auth"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// BroadcastInterval is how often the websocket hub pushes the latest report.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// RateLimitConfig bounds request throughput. RPS 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition.
type AlertRule struct {
	// Name is the alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "overall_score < 50", "cpu_score < 60",
	// "critical_anomalies > 0", "status == critical".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string { return env(w.URLEnv) }

// LogConfig controls the default slog handler.
type LogConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`
	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// SlogLevel returns the configured level, or info if unset.
func (l LogConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config { return defaults() }

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			Interval:          DefaultInterval,
			Retention:         DefaultRetention,
			WindowSize:        DefaultWindowSize,
			Thresholds:        anomaly.DefaultThresholds,
			CorrelationWindow: DefaultCorrelationWindow,
			ReportPeriod:      DefaultReportPeriod,
		},
		Collector: CollectorConfig{
			Type:     "system",
			DiskPath: "/",
			TempDirs: []string{os.TempDir()},
			Probe: ProbeConfig{
				Hosts:    []string{"1.1.1.1:53", "8.8.8.8:53"},
				Timeout:  DefaultProbeTimeout,
				Attempts: DefaultProbeAttempts,
			},
			Prometheus: PrometheusConfig{Mountpoint: "/"},
		},
		Storage: StorageConfig{
			Backend: "memory",
			Redis:   RedisConfig{Addr: "localhost:6379", Prefix: DefaultRedisPrefix},
		},
		API: APIConfig{
			Listen:            DefaultListen,
			RateLimit:         RateLimitConfig{RPS: DefaultRateLimit, Burst: DefaultRateBurst},
			BroadcastInterval: DefaultBroadcast,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	e := cfg.Engine
	if e.Interval <= 0 {
		return fmt.Errorf("engine.interval must be positive")
	}
	if e.Retention <= 0 {
		return fmt.Errorf("engine.retention must be positive")
	}
	if e.Capacity < 0 {
		return fmt.Errorf("engine.capacity must not be negative")
	}
	if e.WindowSize < anomaly.DefaultWindowSize {
		return fmt.Errorf("engine.window_size must be at least %d", anomaly.DefaultWindowSize)
	}
	if err := e.Thresholds.Validate(); err != nil {
		return fmt.Errorf("engine.thresholds: %w", err)
	}
	if e.CorrelationWindow <= 0 {
		return fmt.Errorf("engine.correlation_window must be positive")
	}

	c := cfg.Collector
	switch c.Type {
	case "system":
	case "prometheus":
		if c.Prometheus.Endpoint == "" {
			return fmt.Errorf("collector.prometheus.endpoint is required")
		}
		if err := validateAuth("collector.prometheus.auth", c.Prometheus.Auth, false); err != nil {
			return err
		}
	default:
		return fmt.Errorf("collector.type %q unknown: want system|prometheus", c.Type)
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("collector.probe.timeout must be positive")
	}
	if c.Probe.Attempts <= 0 {
		return fmt.Errorf("collector.probe.attempts must be positive")
	}

	switch cfg.Storage.Backend {
	case "memory":
	case "redis":
		if cfg.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required")
		}
	case "postgres":
		if cfg.Storage.Postgres.DSNEnv == "" {
			return fmt.Errorf("storage.postgres.dsn_env is required")
		}
	default:
		return fmt.Errorf("storage.backend %q unknown: want memory|redis|postgres", cfg.Storage.Backend)
	}

	if err := validateAuth("api.auth", cfg.API.Auth, true); err != nil {
		return err
	}
	if cfg.API.RateLimit.RPS < 0 || cfg.API.RateLimit.Burst < 0 {
		return fmt.Errorf("api.rate_limit must not be negative")
	}
	if cfg.API.BroadcastInterval <= 0 {
		return fmt.Errorf("api.broadcast_interval must be positive")
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("alerts.rules[%d] %q: condition must be \"field op value\"", i, r.Name)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}

	switch cfg.Log.Format {
	case "json", "text", "":
	default:
		return fmt.Errorf("log.format %q unknown: want json|text", cfg.Log.Format)
	}
	return nil
}

// validateAuth checks an auth block. The API side accepts only apikey and none.
func validateAuth(field string, a AuthConfig, server bool) error {
	switch a.Mode {
	case "apikey", "none", "":
		return nil
	case "bearer", "basic":
		if !server {
			return nil
		}
	}
	return fmt.Errorf("%s.mode %q unknown", field, a.Mode)
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
