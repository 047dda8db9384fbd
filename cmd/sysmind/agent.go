package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/alerts"
	"github.com/Suraj-creation/Sysmind-CLI/internal/api"
	"github.com/Suraj-creation/Sysmind-CLI/internal/config"
	"github.com/Suraj-creation/Sysmind-CLI/internal/telemetry"
	"github.com/Suraj-creation/Sysmind-CLI/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func runAgent(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("agent", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.Log, os.Stdout)

	slog.Info("sysmind-agent starting", "config", *configPath)
	slog.Info("config loaded",
		"collector", cfg.Collector.Type,
		"storage", cfg.Storage.Backend,
		"interval", cfg.Engine.Interval,
		"listen", cfg.API.Listen,
		"alert_rules", len(cfg.Alerts.Rules),
	)

	metrics := telemetry.New()
	sess, err := openSession(ctx, cfg, metrics)
	if err != nil {
		return err
	}
	defer sess.Close()
	eng := sess.engine

	// Alerts are persisted only when the backend keeps an alert history.
	var alertOpts []alerts.Option
	if rec, ok := sess.store.(alerts.Recorder); ok {
		alertOpts = append(alertOpts, alerts.WithRecorder(rec))
	}
	alertEngine := alerts.New(cfg.Alerts, alertOpts...)

	pipe := startPipeline(ctx, eng, alertEngine)

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := config.Watch(ctx, *configPath, func(updated *config.Config) {
			levelVar.Set(updated.Log.SlogLevel())
			if err := eng.SetThresholds(updated.Engine.Thresholds); err != nil {
				slog.Warn("thresholds not applied", "err", err)
			}
			alertEngine.Reconfigure(updated.Alerts)
			slog.Info("config hot-reloaded",
				"level", updated.Log.Level,
				"alert_rules", len(updated.Alerts.Rules),
			)
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	var httpSrv *http.Server
	hubDone := make(chan struct{})
	if cfg.API.Listen != "" {
		hub := ws.New(eng, cfg.API.BroadcastInterval)
		go func() {
			defer close(hubDone)
			hub.Run(ctx)
		}()

		apiOpts := api.Options{
			Auth:      cfg.API.Auth,
			RateLimit: cfg.API.RateLimit,
			Alerts:    alertEngine,
			Storage:   sess.store,
			Telemetry: metrics,
			Stream:    hub,
		}
		if hist, ok := sess.store.(api.AlertHistory); ok {
			apiOpts.History = hist
		}
		httpSrv = &http.Server{
			Addr:              cfg.API.Listen,
			Handler:           api.New(eng, apiOpts),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP server listening", "addr", cfg.API.Listen)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
	} else {
		close(hubDone)
		slog.Warn("api.listen is empty, HTTP API disabled")
	}

	<-ctx.Done()
	slog.Info("sysmind-agent shutting down")

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown incomplete", "err", err)
		}
	}

	// Everything that writes to storage returns before the deferred
	// sess.Close.
	pipe.wait()
	<-watchDone
	<-hubDone
	alertEngine.Wait()
	slog.Info("sysmind-agent stopped")
	return nil
}
