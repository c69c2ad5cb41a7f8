package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/V4T54L/tenantlog/internal/domain"
)

const processedLogsSchema = `
CREATE TABLE IF NOT EXISTS processed_logs (
	tenant_id     TEXT        NOT NULL CHECK (tenant_id <> ''),
	log_id        TEXT        NOT NULL CHECK (log_id <> ''),
	source        TEXT        NOT NULL,
	original_text TEXT        NOT NULL,
	modified_text TEXT        NOT NULL,
	char_count    INTEGER     NOT NULL,
	processed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (tenant_id, log_id)
);
CREATE INDEX IF NOT EXISTS processed_logs_tenant_processed_at_idx
	ON processed_logs (tenant_id, processed_at DESC);`

const upsertProcessedLogQuery = `
	INSERT INTO processed_logs (tenant_id, log_id, source, original_text, modified_text, char_count, processed_at)
	VALUES ($1, $2, $3, $4, $5, $6, NOW())
	ON CONFLICT (tenant_id, log_id) DO UPDATE SET
		source = EXCLUDED.source,
		original_text = EXCLUDED.original_text,
		modified_text = EXCLUDED.modified_text,
		char_count = EXCLUDED.char_count,
		processed_at = NOW()
	RETURNING processed_at`

const getProcessedLogQuery = `
	SELECT source, original_text, modified_text, char_count, processed_at
	FROM processed_logs
	WHERE tenant_id = $1 AND log_id = $2`

const listProcessedLogsQuery = `
	SELECT log_id, source, original_text, modified_text, char_count, processed_at
	FROM processed_logs
	WHERE tenant_id = $1
	ORDER BY processed_at DESC, log_id
	LIMIT $2`

const defaultListLimit = 100

// ProcessedLogRepository implements domain.ProcessedLogRepository for PostgreSQL.
// Every statement is filtered by tenant_id.
type ProcessedLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewProcessedLogRepository creates a new PostgreSQL processed log repository.
func NewProcessedLogRepository(db *sql.DB, logger *slog.Logger) *ProcessedLogRepository {
	return &ProcessedLogRepository{db: db, logger: logger.With("component", "postgres_repository")}
}

// EnsureSchema creates the processed_logs table if it does not exist.
func (r *ProcessedLogRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, processedLogsSchema); err != nil {
		return fmt.Errorf("failed to create processed_logs schema: %w", err)
	}
	return nil
}

// Upsert writes log at (tenant_id, log_id), replacing any earlier version.
func (r *ProcessedLogRepository) Upsert(ctx context.Context, log domain.ProcessedLog) (domain.ProcessedLog, error) {
	err := r.db.QueryRowContext(ctx, upsertProcessedLogQuery,
		log.TenantID, log.LogID, string(log.Source), log.OriginalText, log.ModifiedText, log.CharCount,
	).Scan(&log.ProcessedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code.Class() {
			case "23": // integrity constraint violation
				return log, fmt.Errorf("%w: %s", domain.ErrMissingKey, pqErr.Message)
			case "22": // data exception
				return log, fmt.Errorf("%w: %s", domain.ErrUnstorable, pqErr.Message)
			}
		}
		return log, fmt.Errorf("failed to upsert processed log: %w", err)
	}
	log.ProcessedAt = log.ProcessedAt.UTC()
	return log, nil
}

func (r *ProcessedLogRepository) Get(ctx context.Context, tenantID, logID string) (*domain.ProcessedLog, error) {
	log := domain.ProcessedLog{TenantID: tenantID, LogID: logID}
	var source string
	err := r.db.QueryRowContext(ctx, getProcessedLogQuery, tenantID, logID).
		Scan(&source, &log.OriginalText, &log.ModifiedText, &log.CharCount, &log.ProcessedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processed log: %w", err)
	}
	log.Source = domain.Source(source)
	log.ProcessedAt = log.ProcessedAt.UTC()
	return &log, nil
}

func (r *ProcessedLogRepository) List(ctx context.Context, tenantID string, limit int) ([]domain.ProcessedLog, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := r.db.QueryContext(ctx, listProcessedLogsQuery, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list processed logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.ProcessedLog
	for rows.Next() {
		log := domain.ProcessedLog{TenantID: tenantID}
		var source string
		if err := rows.Scan(&log.LogID, &source, &log.OriginalText, &log.ModifiedText, &log.CharCount, &log.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan processed log: %w", err)
		}
		log.Source = domain.Source(source)
		log.ProcessedAt = log.ProcessedAt.UTC()
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate processed logs: %w", err)
	}
	return logs, nil
}
