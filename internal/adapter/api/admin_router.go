package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/V4T54L/tenantlog/internal/adapter/api/handler"
	"github.com/V4T54L/tenantlog/internal/usecase"
)

// NewAdminRouter creates and configures the HTTP router for admin operations.
// adminUseCase and sse are optional: the stream admin API exists only for
// brokers with inspectable streams, the live feed only on the ingest side.
func NewAdminRouter(
	logger *slog.Logger,
	adminUseCase *usecase.AdminStreamUseCase,
	sse *handler.SSEBroker,
	gatherer prometheus.Gatherer,
) http.Handler {
	r := newRouter(logger)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if sse != nil {
		r.Handle("/events", sse)
	}

	if adminUseCase == nil {
		return r
	}
	adminHandler := handler.NewAdminHandler(adminUseCase, logger)

	r.Route("/admin/streams/{streamName}", func(r chi.Router) {
		// Stream Info
		r.Get("/groups", adminHandler.GetGroupInfo)
		r.Get("/groups/{groupName}/consumers", adminHandler.GetConsumerInfo)

		// Pending Messages
		r.Get("/groups/{groupName}/pending", adminHandler.GetPendingSummary)
		r.Get("/groups/{groupName}/pending/messages", adminHandler.GetPendingMessages)

		// Stream Operations
		r.Post("/groups/{groupName}/claim", adminHandler.ClaimMessages)
		r.Post("/groups/{groupName}/ack", adminHandler.AcknowledgeMessages)
		r.Post("/trim", adminHandler.TrimStream)

		// Dead Letters
		r.Get("/dead-letters", adminHandler.ListDeadLetters)
		r.Post("/dead-letters/redrive", adminHandler.RedriveDeadLetters)
	})

	return r
}
