// Package httptransport assembles the HTTP router: shared middlewares, the
// onboarding and invite routes under the therapists base path, and infra endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/metrics"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/httputil"
	adminmw "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/middleware/admin"
	metadata "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/middleware/metadata"
	request "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/middleware/request"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/middleware/requesttime"
)

// BasePath prefixes every onboarding route.
const BasePath = "/api/v1/therapists"

const defaultRequestTimeout = 30 * time.Second

// RouteRegistrar mounts a module's routes relative to BasePath.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config is everything NewRouter needs.
type Config struct {
	Logger         *slog.Logger
	Modules        []RouteRegistrar
	Registry       *prometheus.Registry
	HTTPMetrics    *metrics.Metrics
	MetricsToken   string
	HealthChecks   map[string]HealthCheck
	RequestTimeout time.Duration
}

// NewRouter wires the shared middleware chain and mounts every module.
func NewRouter(cfg Config) http.Handler {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(request.Logger(cfg.Logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.LatencyMiddleware)
	}

	r.Get("/healthz", healthHandler(cfg.HealthChecks, cfg.Logger))
	if cfg.Registry != nil {
		r.With(adminmw.RequireToken(cfg.MetricsToken, cfg.Logger)).
			Handle("/metrics", metrics.Handler(cfg.Registry))
	}

	r.Route(BasePath, func(r chi.Router) {
		r.Use(request.Timeout(timeout))
		r.Use(request.ContentTypeJSON)
		for _, m := range cfg.Modules {
			m.Register(r)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteError(w, r, dErrors.New(dErrors.CodeBadRequest, "method not allowed"))
	})
	return r
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "dependency", name, "error", err)
				status[name] = "down"
				healthy = false
				continue
			}
			status[name] = "up"
		}
		if !healthy {
			httputil.WriteError(w, r, dErrors.New(dErrors.CodeUnavailable, "dependency unavailable"))
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, map[string]any{"status": "ok", "dependencies": status})
	}
}
