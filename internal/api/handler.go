package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Suraj-creation/Sysmind-CLI/internal/alerts"
	"github.com/Suraj-creation/Sysmind-CLI/internal/anomaly"
	"github.com/Suraj-creation/Sysmind-CLI/internal/baseline"
	"github.com/Suraj-creation/Sysmind-CLI/internal/config"
	"github.com/Suraj-creation/Sysmind-CLI/internal/correlate"
	"github.com/Suraj-creation/Sysmind-CLI/internal/engine"
	"github.com/Suraj-creation/Sysmind-CLI/internal/health"
	"github.com/Suraj-creation/Sysmind-CLI/internal/telemetry"
)

const (
	defaultPeriod         = time.Hour
	defaultBaselineWindow = 24 * time.Hour
	maxIngestBody         = 1 << 20
	defaultHistoryLimit   = 100
	maxHistoryLimit       = 1000
	readyTimeout          = 2 * time.Second
)

// AlertSource lists the alerts to report on GET /api/v1/alerts.
type AlertSource interface {
	Active() []alerts.Alert
}

// AlertHistory lists stored alerts, most recently fired first.
type AlertHistory interface {
	Alerts(ctx context.Context, limit int) ([]alerts.Alert, error)
}

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options wires the optional parts of the API.
type Options struct {
	Auth      config.AuthConfig
	RateLimit config.RateLimitConfig

	// Alerts may be nil; /alerts then returns an empty list.
	Alerts AlertSource
	// History serves /alerts/history. When nil the route answers 501.
	History AlertHistory
	// Storage, when set, is checked by /readyz.
	Storage Pinger
	// Telemetry, when set, instruments every route and serves /metrics.
	Telemetry *telemetry.Metrics
	// Stream, when set, is mounted at /ws/stream behind the auth middleware.
	Stream http.Handler
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	engine  *engine.Engine
	alerts  AlertSource
	history AlertHistory
	storage Pinger
	router  *mux.Router
}

// New creates a Handler wired to e and registers all routes.
func New(e *engine.Engine, opts Options) http.Handler {
	h := &Handler{
		engine:  e,
		alerts:  opts.Alerts,
		history: opts.History,
		storage: opts.Storage,
		router:  mux.NewRouter(),
	}

	if opts.Telemetry != nil {
		h.router.Use(opts.Telemetry.Middleware)
		h.router.Handle("/metrics", opts.Telemetry.Handler()).Methods(http.MethodGet)
	}
	h.router.HandleFunc("/readyz", h.ready).Methods(http.MethodGet)

	guarded := h.router.NewRoute().Subrouter()
	guarded.Use(rateLimit(opts.RateLimit), apiKeyAuth(opts.Auth))
	if opts.Stream != nil {
		guarded.Handle("/ws/stream", opts.Stream)
	}

	v1 := guarded.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/health", h.health).Methods(http.MethodGet)
	v1.HandleFunc("/health/components/{name}", h.component).Methods(http.MethodGet)
	v1.HandleFunc("/anomalies", h.anomalies).Methods(http.MethodGet)
	v1.HandleFunc("/anomalies/summary", h.anomalySummary).Methods(http.MethodGet)
	v1.HandleFunc("/correlations", h.correlations).Methods(http.MethodGet)
	v1.HandleFunc("/correlations/current", h.currentState).Methods(http.MethodGet)
	v1.HandleFunc("/recommendations", h.recommendations).Methods(http.MethodGet)
	v1.HandleFunc("/baselines", h.listBaselines).Methods(http.MethodGet)
	v1.HandleFunc("/baselines/{metric}", h.getBaseline).Methods(http.MethodGet)
	v1.HandleFunc("/baselines/{metric}", h.recomputeBaseline).Methods(http.MethodPost)
	v1.HandleFunc("/baselines/{metric}", h.deleteBaseline).Methods(http.MethodDelete)
	v1.HandleFunc("/trends", h.trends).Methods(http.MethodGet)
	v1.HandleFunc("/samples", h.ingest).Methods(http.MethodPost)
	v1.HandleFunc("/alerts", h.listAlerts).Methods(http.MethodGet)
	v1.HandleFunc("/alerts/history", h.alertHistory).Methods(http.MethodGet)

	h.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	h.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// health returns GET /api/v1/health, the latest report. The first request
// before any sampling pass triggers one.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.engine.Latest()
	if !ok {
		h.engine.Health(r.Context())
		rep, _ = h.engine.Latest()
	}
	jsonResp(w, http.StatusOK, rep)
}

// component returns GET /api/v1/health/components/{name}.
func (h *Handler) component(w http.ResponseWriter, r *http.Request) {
	c, err := health.ParseCategory(mux.Vars(r)["name"])
	if err != nil {
		jsonErr(w, http.StatusNotFound, err.Error())
		return
	}
	sh := h.engine.Health(r.Context())
	jsonResp(w, http.StatusOK, sh.Components[c])
}

// anomalies returns GET /api/v1/anomalies?period=1h&severity=warning.
// severity, when given, is the minimum severity reported.
func (h *Handler) anomalies(w http.ResponseWriter, r *http.Request) {
	period, ok := durationParam(w, r, "period", defaultPeriod)
	if !ok {
		return
	}
	as := h.engine.Anomalies(period)
	if s := r.URL.Query().Get("severity"); s != "" {
		floor, err := anomaly.ParseSeverity(s)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, err.Error())
			return
		}
		kept := make([]anomaly.Anomaly, 0, len(as))
		for _, a := range as {
			if a.Severity >= floor {
				kept = append(kept, a)
			}
		}
		as = kept
	}
	jsonResp(w, http.StatusOK, AnomaliesResponse{
		Period:    period.String(),
		Count:     len(as),
		Anomalies: as,
	})
}

// anomalySummary returns GET /api/v1/anomalies/summary?period=1h.
func (h *Handler) anomalySummary(w http.ResponseWriter, r *http.Request) {
	period, ok := durationParam(w, r, "period", defaultPeriod)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, SummaryResponse{
		Period:  period.String(),
		Summary: anomaly.Summarize(h.engine.Anomalies(period)),
	})
}

// correlations returns GET /api/v1/correlations?period=1h&window=5m.
func (h *Handler) correlations(w http.ResponseWriter, r *http.Request) {
	period, ok := durationParam(w, r, "period", defaultPeriod)
	if !ok {
		return
	}
	window, ok := durationParam(w, r, "window", 0)
	if !ok {
		return
	}
	events := h.engine.Correlations(period, window)
	resp := CorrelationsResponse{Period: period.String(), Events: events}
	if window > 0 {
		resp.Window = window.String()
	}
	jsonResp(w, http.StatusOK, resp)
}

// currentState returns GET /api/v1/correlations/current, the CPU and memory
// pressure of the latest report.
func (h *Handler) currentState(w http.ResponseWriter, r *http.Request) {
	st, ok := h.engine.CurrentState(r.Context())
	if !ok {
		jsonErr(w, http.StatusServiceUnavailable, "no cpu and memory reading yet")
		return
	}
	jsonResp(w, http.StatusOK, st)
}

// recommendations returns GET /api/v1/recommendations?category=disk&quick=true.
func (h *Handler) recommendations(w http.ResponseWriter, r *http.Request) {
	recs := h.engine.Recommendations(r.Context())
	q := r.URL.Query()
	if c := q.Get("category"); c != "" {
		recs = correlate.FilterCategory(recs, c)
	}
	if v := q.Get("quick"); v != "" {
		quick, err := strconv.ParseBool(v)
		if err != nil {
			jsonErr(w, http.StatusBadRequest, "quick must be a boolean")
			return
		}
		if quick {
			recs = correlate.QuickWins(recs)
		}
	}
	jsonResp(w, http.StatusOK, RecommendationsResponse{
		Recommendations: recs,
		Summary:         correlate.Summarize(recs),
	})
}

// listBaselines returns GET /api/v1/baselines.
func (h *Handler) listBaselines(w http.ResponseWriter, r *http.Request) {
	bs, err := h.engine.Baselines(r.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if bs == nil {
		bs = []baseline.Baseline{}
	}
	jsonResp(w, http.StatusOK, bs)
}

// getBaseline returns GET /api/v1/baselines/{metric}.
func (h *Handler) getBaseline(w http.ResponseWriter, r *http.Request) {
	metric := mux.Vars(r)["metric"]
	b, ok, err := h.engine.Baseline(r.Context(), metric)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		jsonErr(w, http.StatusNotFound, fmt.Sprintf("no baseline for %q", metric))
		return
	}
	jsonResp(w, http.StatusOK, b)
}

// recomputeBaseline handles POST /api/v1/baselines/{metric}?window=24h by
// computing a baseline from the recorded history.
func (h *Handler) recomputeBaseline(w http.ResponseWriter, r *http.Request) {
	window, ok := durationParam(w, r, "window", defaultBaselineWindow)
	if !ok {
		return
	}
	b, err := h.engine.RecomputeBaseline(r.Context(), mux.Vars(r)["metric"], window)
	switch {
	case errors.Is(err, baseline.ErrInsufficientSamples):
		jsonErr(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusCreated, b)
}

// deleteBaseline handles DELETE /api/v1/baselines/{metric}.
func (h *Handler) deleteBaseline(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DeleteBaseline(r.Context(), mux.Vars(r)["metric"]); err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// trends returns GET /api/v1/trends?period=1h with the spikes of the period.
func (h *Handler) trends(w http.ResponseWriter, r *http.Request) {
	period, ok := durationParam(w, r, "period", defaultPeriod)
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, TrendsResponse{
		Period: period.String(),
		Trends: h.engine.Trends(period),
		Spikes: h.engine.Spikes(period),
	})
}

// ingest handles POST /api/v1/samples.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	if len(req.Samples) == 0 {
		jsonErr(w, http.StatusBadRequest, "samples must not be empty")
		return
	}
	found, err := h.engine.Ingest(r.Context(), req.Samples)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResp(w, http.StatusAccepted, IngestResponse{Accepted: len(req.Samples), Anomalies: found})
}

// listAlerts returns GET /api/v1/alerts: firing alerts plus those resolved
// within the last hour.
func (h *Handler) listAlerts(w http.ResponseWriter, _ *http.Request) {
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// alertHistory returns GET /api/v1/alerts/history?limit=100 from storage.
func (h *Handler) alertHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		jsonErr(w, http.StatusNotImplemented, "the storage backend keeps no alert history")
		return
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxHistoryLimit))
			return
		}
		limit = n
	}
	as, err := h.history.Alerts(r.Context(), limit)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	jsonResp(w, http.StatusOK, as)
}

// ready returns GET /readyz: 200 once the storage backend answers a ping,
// 503 otherwise.
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if h.storage != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := h.storage.Ping(ctx); err != nil {
			jsonErr(w, http.StatusServiceUnavailable, "storage unavailable: "+err.Error())
			return
		}
	}
	jsonResp(w, http.StatusOK, map[string]string{"status": "ready"})
}

// durationParam reads a Go duration from the query. On a malformed or
// non-positive value it writes a 400 and returns false.
func durationParam(w http.ResponseWriter, r *http.Request, name string, def time.Duration) (time.Duration, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		jsonErr(w, http.StatusBadRequest, fmt.Sprintf("%s must be a positive duration such as 1h", name))
		return 0, false
	}
	return d, true
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
