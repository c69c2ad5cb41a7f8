package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/V4T54L/tenantlog/internal/adapter/codec"
	"github.com/V4T54L/tenantlog/internal/adapter/metrics"
	"github.com/V4T54L/tenantlog/internal/domain"
)

// ProcessLogUseCase handles one pushed delivery: decode, process, persist,
// and decide whether the broker may consider it acknowledged.
//
// The handler never holds a record beyond one attempt and has no side
// effects before the store write, so an attempt can be abandoned at any
// point and re-run from scratch on redelivery.
type ProcessLogUseCase struct {
	writer       *StoreWriter
	faults       domain.FaultInjector
	delayPerChar time.Duration
	logger       *slog.Logger
	metrics      *metrics.DeliveryMetrics
}

// NewProcessLogUseCase creates the delivery handler. faults and m may be nil.
func NewProcessLogUseCase(
	writer *StoreWriter,
	faults domain.FaultInjector,
	delayPerChar time.Duration,
	logger *slog.Logger,
	m *metrics.DeliveryMetrics,
) *ProcessLogUseCase {
	return &ProcessLogUseCase{
		writer:       writer,
		faults:       faults,
		delayPerChar: delayPerChar,
		logger:       logger.With("component", "delivery_handler"),
		metrics:      m,
	}
}

// Handle drives one delivery attempt to a final state:
//   - StateAcknowledged: persisted (or no store configured), ack now.
//   - StateRejected: permanent failure, ack to drain it; err says why.
//   - StateRetry: transient failure, do not ack; err says why.
func (uc *ProcessLogUseCase) Handle(ctx context.Context, env domain.Envelope) (domain.DeliveryState, error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ProcessLog")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.message.id", env.MessageID))

	state, err := uc.handle(ctx, env)

	span.SetAttributes(attribute.String("delivery.state", string(state)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if uc.metrics != nil {
		uc.metrics.DeliveriesTotal.WithLabelValues(string(state)).Inc()
		uc.metrics.ProcessingSeconds.Observe(time.Since(start).Seconds())
	}
	return state, err
}

func (uc *ProcessLogUseCase) handle(ctx context.Context, env domain.Envelope) (domain.DeliveryState, error) {
	logger := uc.logger.With("message_id", env.MessageID)

	rec, err := codec.DecodeEnvelopeData(env)
	if err != nil {
		logger.Error("rejecting undecodable message", "error", err)
		return domain.StateRejected, err
	}

	logger = logger.With("tenant_id", rec.TenantID, "log_id", rec.LogID)
	logger.Debug("delivery state changed", "state", domain.StateDecoded)

	// Redelivery cannot add identifiers that normalization did not set.
	if rec.TenantID == "" || rec.LogID == "" {
		err := fmt.Errorf("%w: tenant_id=%q log_id=%q", domain.ErrMissingKey, rec.TenantID, rec.LogID)
		logger.Error("rejecting record without identifiers", "error", err)
		return domain.StateRejected, err
	}

	if uc.faults != nil {
		key := deliveryKey(env, rec)
		crash, err := uc.faults.ShouldCrash(ctx, key, rec)
		if err != nil {
			logger.Warn("fault injector unavailable, continuing without injection", "error", err)
		}
		if crash {
			if uc.metrics != nil {
				uc.metrics.InjectedFaults.Inc()
			}
			logger.Warn("injecting crash on first delivery", "delivery_key", key)
			return domain.StateRetry, fmt.Errorf("%w: delivery %s", domain.ErrFaultInjected, key)
		}
	}

	processed := domain.NewProcessedLog(rec)
	delay := time.Duration(processed.CharCount) * uc.delayPerChar
	logger.Debug("delivery state changed", "state", domain.StateProcessing, "delay", delay)
	if err := sleepContext(ctx, delay); err != nil {
		logger.Warn("processing abandoned before completion", "error", err)
		return domain.StateRetry, err
	}

	if !uc.writer.Enabled() {
		logger.Info("no store configured, acknowledging without persisting", "char_count", processed.CharCount)
		return domain.StateAcknowledged, nil
	}

	stored, err := uc.writer.Write(ctx, processed)
	if err != nil {
		if domain.IsPermanent(err) {
			logger.Error("rejecting record the store cannot accept", "error", err)
			return domain.StateRejected, err
		}
		logger.Error("store write failed, leaving delivery unacknowledged", "error", err)
		return domain.StateRetry, err
	}
	logger.Debug("delivery state changed", "state", domain.StatePersisted)

	logger.Info("processed log persisted", "char_count", stored.CharCount, "processed_at", stored.ProcessedAt)
	return domain.StateAcknowledged, nil
}

// deliveryKey identifies a delivery across redeliveries. The broker message
// ID is stable for one message; the record key is the fallback.
func deliveryKey(env domain.Envelope, rec domain.LogRecord) string {
	if env.MessageID != "" {
		return env.MessageID
	}
	return rec.TenantID + "/" + rec.LogID
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
