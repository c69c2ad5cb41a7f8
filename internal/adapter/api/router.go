package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/tenantlog/internal/adapter/api/handler"
	"github.com/V4T54L/tenantlog/internal/adapter/api/middleware"
)

func newRouter(logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Get("/health", handler.HealthCheck)
	return r
}

// NewIngestRouter creates and configures the HTTP router for the ingest service.
func NewIngestRouter(logger *slog.Logger, ingestHandler *handler.IngestHandler) http.Handler {
	r := newRouter(logger)
	r.Method(http.MethodPost, "/ingest", ingestHandler)
	return r
}

// NewWorkerRouter creates the worker's router: the push endpoint at the
// root, the tenant-scoped read API and metrics. logs may be nil when no
// store is configured.
func NewWorkerRouter(
	logger *slog.Logger,
	pushHandler *handler.PushHandler,
	logs *handler.TenantLogHandler,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := newRouter(logger)
	r.Method(http.MethodPost, "/", pushHandler)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if logs != nil {
		r.Route("/tenants/{tenantID}/logs", func(r chi.Router) {
			r.Get("/", logs.ListLogs)
			r.Get("/{logID}", logs.GetLog)
		})
	}
	return r
}
