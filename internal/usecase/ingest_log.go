package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/V4T54L/tenantlog/internal/adapter/codec"
	"github.com/V4T54L/tenantlog/internal/adapter/metrics"
	"github.com/V4T54L/tenantlog/internal/domain"
)

const tracerName = "github.com/V4T54L/tenantlog/internal/usecase"

// IngestLogUseCase normalizes submissions and hands them to the broker.
// The caller-visible contract is "queued": broker trouble is logged and, if
// a spool is configured, the record is kept locally for replay.
type IngestLogUseCase struct {
	normalizer     *Normalizer
	publisher      domain.Publisher
	spool          domain.SpoolRepository
	logger         *slog.Logger
	metrics        *metrics.IngestMetrics
	topic          string
	publishTimeout time.Duration
}

// NewIngestLogUseCase creates a new IngestLogUseCase. publisher and spool may
// be nil: without a publisher every record is only logged, without a spool
// failed publishes are only logged.
func NewIngestLogUseCase(
	normalizer *Normalizer,
	publisher domain.Publisher,
	spool domain.SpoolRepository,
	logger *slog.Logger,
	m *metrics.IngestMetrics,
	topic string,
	publishTimeout time.Duration,
) *IngestLogUseCase {
	return &IngestLogUseCase{
		normalizer:     normalizer,
		publisher:      publisher,
		spool:          spool,
		logger:         logger.With("component", "ingest_usecase"),
		metrics:        m,
		topic:          topic,
		publishTimeout: publishTimeout,
	}
}

// Ingest validates a submission and publishes the normalized record.
// Only validation and media errors are returned.
func (uc *IngestLogUseCase) Ingest(ctx context.Context, sub domain.Submission) (domain.LogRecord, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "IngestLog")
	defer span.End()

	rec, err := uc.normalizer.Normalize(sub)
	if err != nil {
		return domain.LogRecord{}, err
	}
	span.SetAttributes(
		attribute.String("tenant.id", rec.TenantID),
		attribute.String("log.id", rec.LogID),
		attribute.String("log.source", string(rec.Source)),
	)

	// A client hanging up after validation must not abort the hand-off.
	uc.publish(context.WithoutCancel(ctx), rec)
	return rec, nil
}

func (uc *IngestLogUseCase) publish(ctx context.Context, rec domain.LogRecord) {
	logger := uc.logger.With("tenant_id", rec.TenantID, "log_id", rec.LogID)

	if uc.publisher == nil {
		logger.Info("broker not configured, record not published", "source", rec.Source, "text_length", len(rec.Text))
		return
	}

	data, err := codec.EncodeRecord(rec)
	if err != nil {
		logger.Error("failed to encode record", "error", err)
		return
	}

	messageID, err := uc.publishBytes(ctx, data)
	if err != nil {
		if uc.metrics != nil {
			uc.metrics.PublishFailures.Inc()
		}
		logger.Error("publishing failed", "error", err)
		uc.spoolRecord(ctx, logger, rec)
		return
	}

	logger.Debug("published message", "message_id", messageID, "topic", uc.topic)
}

func (uc *IngestLogUseCase) publishBytes(ctx context.Context, data []byte) (string, error) {
	pubCtx, cancel := context.WithTimeout(ctx, uc.publishTimeout)
	defer cancel()

	messageID, err := uc.publisher.Publish(pubCtx, uc.topic, data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrPublish, err)
	}
	return messageID, nil
}

func (uc *IngestLogUseCase) spoolRecord(ctx context.Context, logger *slog.Logger, rec domain.LogRecord) {
	if uc.spool == nil {
		return
	}
	if err := uc.spool.Write(ctx, rec); err != nil {
		logger.Error("failed to spool unpublished record, record is lost", "error", err)
		return
	}
	if uc.metrics != nil {
		uc.metrics.SpoolActive.Set(1)
	}
	logger.Warn("record spooled for later publishing")
}

// ReplaySpool republishes spooled records and truncates the spool once all
// of them are confirmed. Segments holding only undecodable lines are
// truncated too. A partial replay is repeated in full next time; the
// (tenant_id, log_id) key makes the duplicates harmless.
func (uc *IngestLogUseCase) ReplaySpool(ctx context.Context) error {
	if uc.spool == nil || uc.publisher == nil {
		return nil
	}

	replayed := 0
	err := uc.spool.Replay(ctx, func(rec domain.LogRecord) error {
		data, err := codec.EncodeRecord(rec)
		if err != nil {
			return err
		}
		if _, err := uc.publishBytes(ctx, data); err != nil {
			return err
		}
		replayed++
		return nil
	})
	if err != nil {
		return fmt.Errorf("spool replay stopped after %d records: %w", replayed, err)
	}
	if err := uc.spool.Truncate(ctx); err != nil {
		return fmt.Errorf("failed to truncate spool after replay: %w", err)
	}
	if replayed == 0 {
		return nil
	}
	if uc.metrics != nil {
		uc.metrics.SpoolActive.Set(0)
	}
	uc.logger.Info("spool replayed to broker", "count", replayed)
	return nil
}

// RunSpoolReplayer calls ReplaySpool every interval until ctx is done.
func (uc *IngestLogUseCase) RunSpoolReplayer(ctx context.Context, interval time.Duration) {
	if uc.spool == nil || uc.publisher == nil {
		uc.logger.Info("spool or broker not configured, skipping spool replayer")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := uc.ReplaySpool(ctx); err != nil {
				uc.logger.Warn("spool replay failed, will retry", "error", err)
			}
		}
	}
}
