package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/V4T54L/tenantlog/internal/domain"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// ProcessedLogReader is the read side of the processed-log store.
type ProcessedLogReader interface {
	Get(ctx context.Context, tenantID, logID string) (*domain.ProcessedLog, error)
	List(ctx context.Context, tenantID string, limit int) ([]domain.ProcessedLog, error)
}

// TenantLogHandler serves processed logs, always scoped to the tenant in the path.
type TenantLogHandler struct {
	repo   ProcessedLogReader
	logger *slog.Logger
}

func NewTenantLogHandler(repo ProcessedLogReader, logger *slog.Logger) *TenantLogHandler {
	return &TenantLogHandler{repo: repo, logger: logger.With("component", "tenant_log_handler")}
}

// GetLog handles GET /tenants/{tenantID}/logs/{logID}.
func (h *TenantLogHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	logID := chi.URLParam(r, "logID")

	log, err := h.repo.Get(r.Context(), tenantID, logID)
	if err != nil {
		h.logger.Error("failed to get processed log", "tenant_id", tenantID, "log_id", logID, "error", err)
		respondWithJSON(w, h.logger, http.StatusInternalServerError, errorResponse{Detail: "Internal Server Error"})
		return
	}
	if log == nil {
		respondWithJSON(w, h.logger, http.StatusNotFound, errorResponse{Detail: "Log not found"})
		return
	}
	respondWithJSON(w, h.logger, http.StatusOK, log)
}

// ListLogs handles GET /tenants/{tenantID}/logs?limit={limit}.
func (h *TenantLogHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	limit := defaultListLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			respondWithJSON(w, h.logger, http.StatusBadRequest, errorResponse{Detail: "invalid limit parameter"})
			return
		}
		limit = min(n, maxListLimit)
	}

	logs, err := h.repo.List(r.Context(), tenantID, limit)
	if err != nil {
		h.logger.Error("failed to list processed logs", "tenant_id", tenantID, "error", err)
		respondWithJSON(w, h.logger, http.StatusInternalServerError, errorResponse{Detail: "Internal Server Error"})
		return
	}
	if logs == nil {
		logs = []domain.ProcessedLog{}
	}
	respondWithJSON(w, h.logger, http.StatusOK, logs)
}
