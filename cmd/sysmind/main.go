package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Suraj-creation/Sysmind-CLI/internal/collector"
	"github.com/Suraj-creation/Sysmind-CLI/internal/config"
	"github.com/Suraj-creation/Sysmind-CLI/internal/engine"
	"github.com/Suraj-creation/Sysmind-CLI/internal/persist"
)

const usage = `usage: sysmind <command> [flags]

commands:
  agent       run the sampling loop, HTTP API, live stream and alerting
  health      sample once and print the health report
  anomalies   list anomalies found in recorded samples
  baseline    establish | show | list | delete | export | import
  recommend   print ranked recommendations
  trends      print per-metric trends and spikes

Run 'sysmind <command> -h' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		if hint := suggestion(err); hint != "" {
			fmt.Fprintln(os.Stderr, "hint:", hint)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "agent":
		return runAgent(ctx, args)
	case "health":
		return runHealth(ctx, args, out)
	case "anomalies":
		return runAnomalies(ctx, args, out)
	case "baseline":
		return runBaseline(ctx, args, out)
	case "recommend":
		return runRecommend(ctx, args, out)
	case "trends":
		return runTrends(ctx, args, out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}

// levelVar is shared by the default handler so config reloads can change
// the level in place.
var levelVar = new(slog.LevelVar)

func setupLogging(cfg config.LogConfig, w io.Writer) {
	levelVar.Set(cfg.SlogLevel())
	opts := &slog.HandlerOptions{Level: levelVar}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// loadConfig reads path, or falls back to defaults when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// storage is a Persistence backend that holds a connection.
type storage interface {
	engine.Persistence
	Ping(ctx context.Context) error
	Close() error
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage, error) {
	switch cfg.Backend {
	case "memory", "":
		return persist.NewMemory(), nil
	case "redis":
		r, err := persist.NewRedis(ctx, persist.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password(),
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		return r, nil
	case "postgres":
		s, err := persist.OpenPostgres(cfg.Postgres.DSN())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func engineOptions(cfg config.EngineConfig, obs engine.Observer) engine.Options {
	return engine.Options{
		Interval:          cfg.Interval,
		Retention:         cfg.Retention,
		Capacity:          cfg.Capacity,
		WindowSize:        cfg.WindowSize,
		Thresholds:        cfg.Thresholds,
		CorrelationWindow: cfg.CorrelationWindow,
		ReportPeriod:      cfg.ReportPeriod,
		Observer:          obs,
	}
}

// session is the collector, storage and engine shared by every command.
type session struct {
	cfg    *config.Config
	source collector.Source
	store  storage
	engine *engine.Engine
}

// openSession builds the engine from cfg and restores persisted state.
func openSession(ctx context.Context, cfg *config.Config, obs engine.Observer) (*session, error) {
	src, err := collector.New(cfg.Collector)
	if err != nil {
		return nil, err
	}
	st, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	e := engine.New(src, st, engineOptions(cfg.Engine, obs))
	if err := e.Load(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return &session{cfg: cfg, source: src, store: st, engine: e}, nil
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Warn("storage close failed", "err", err)
	}
}
