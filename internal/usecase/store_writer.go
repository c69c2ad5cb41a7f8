package usecase

import (
	"context"
	"fmt"

	"github.com/V4T54L/tenantlog/internal/domain"
)

// StoreWriter performs the idempotent, tenant-scoped persistence of
// processed logs. Any repository failure that is not permanent is
// reported as domain.ErrStoreUnavailable so the delivery is retried.
type StoreWriter struct {
	repo domain.ProcessedLogRepository
}

// NewStoreWriter creates a StoreWriter. A nil repo means no store is configured.
func NewStoreWriter(repo domain.ProcessedLogRepository) *StoreWriter {
	return &StoreWriter{repo: repo}
}

// Enabled reports whether a store is configured.
func (w *StoreWriter) Enabled() bool {
	return w.repo != nil
}

// Write upserts log at (TenantID, LogID) and returns it with the
// store-assigned ProcessedAt.
func (w *StoreWriter) Write(ctx context.Context, log domain.ProcessedLog) (domain.ProcessedLog, error) {
	if log.TenantID == "" || log.LogID == "" {
		return log, fmt.Errorf("%w: tenant_id=%q log_id=%q", domain.ErrMissingKey, log.TenantID, log.LogID)
	}
	if w.repo == nil {
		return log, fmt.Errorf("%w: no store configured", domain.ErrStoreUnavailable)
	}

	stored, err := w.repo.Upsert(ctx, log)
	if err != nil {
		if domain.IsPermanent(err) {
			return log, err
		}
		return log, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return stored, nil
}
