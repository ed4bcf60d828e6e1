// Package httptransport assembles the HTTP surface: request metadata, access
// logging, probes, metrics and the authenticated domain routes.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	audithandler "cdigit/internal/audit/handler"
	synchandler "cdigit/internal/backendsync/handler"
	authmw "cdigit/internal/platform/middleware"
	"cdigit/internal/ratelimit"
	sighandler "cdigit/internal/signature/handler"
	wfhandler "cdigit/internal/workflow/handler"
	"cdigit/pkg/platform/httputil"
	"cdigit/pkg/platform/middleware/metadata"
	"cdigit/pkg/platform/middleware/requesttime"
)

const healthCheckTimeout = 2 * time.Second

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// HealthFunc adapts a plain function to HealthChecker.
type HealthFunc func(ctx context.Context) error

func (f HealthFunc) Health(ctx context.Context) error { return f(ctx) }

// Deps is everything the router mounts. Sync may be nil when backend sync is
// not configured, and RateLimit nil when throttling is off. Gatherer defaults
// to the global registry.
type Deps struct {
	Logger     *slog.Logger
	Guard      *authmw.Guard
	Gatherer   prometheus.Gatherer
	Health     map[string]HealthChecker
	Workflows  wfhandler.Service
	Signatures sighandler.Service
	Audit      audithandler.Reader
	Sync       synchandler.Outbox
	RateLimit  *ratelimit.Middleware
}

// Router serves the API. Readiness can be withdrawn ahead of shutdown so
// load balancers stop routing before connections drain.
type Router struct {
	deps    Deps
	log     *slog.Logger
	isReady atomic.Bool
	handler http.Handler
}

func NewRouter(deps Deps) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	rt := &Router{deps: deps, log: deps.Logger}
	rt.isReady.Store(true)
	rt.handler = rt.routes()
	return rt
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.handler.ServeHTTP(w, r)
}

// SetReady flips the readiness probe.
func (rt *Router) SetReady(ready bool) {
	rt.isReady.Store(ready)
}

func (rt *Router) routes() http.Handler {
	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(metadata.RequestID)
	mux.Use(metadata.ClientMetadata)
	mux.Use(requesttime.Middleware)
	mux.Use(rt.httpLogger)

	mux.Get("/livez", rt.handleLiveness)
	mux.Get("/readyz", rt.handleReadiness)
	mux.Get("/healthz", rt.handleHealth)
	mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(rt.deps.Gatherer, promhttp.HandlerOpts{}))

	logger := rt.deps.Logger
	mux.Group(func(r chi.Router) {
		r.Use(rt.deps.Guard.RequireAuth)
		r.Use(rt.deps.RateLimit.Handler)
		wfhandler.New(rt.deps.Workflows, rt.deps.Guard, logger).Register(r)
		sighandler.New(rt.deps.Signatures, rt.deps.Guard, logger).Register(r)
		audithandler.New(rt.deps.Audit, rt.deps.Guard, logger).Register(r)
		synchandler.New(rt.deps.Sync, rt.deps.Guard, logger).Register(r)
	})
	return mux
}

func (rt *Router) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(rt.log, next)
}

type statusResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (rt *Router) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: "alive"})
}

func (rt *Router) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	if !rt.isReady.Load() {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "not ready"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: "ready"})
}

// handleHealth probes every configured dependency.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := statusResponse{Status: "ok", Components: make(map[string]string, len(rt.deps.Health))}
	status := http.StatusOK
	for name, checker := range rt.deps.Health {
		if err := checker.Health(ctx); err != nil {
			rt.log.WarnContext(ctx, "health check failed", "component", name, "error", err)
			resp.Components[name] = "unhealthy"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Components[name] = "ok"
	}
	httputil.WriteJSON(w, status, resp)
}
