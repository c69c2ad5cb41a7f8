package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/V4T54L/tenantlog/internal/adapter/metrics"
	"github.com/V4T54L/tenantlog/internal/domain"
)

const (
	defaultBatchSize    = 100
	defaultConcurrency  = 8
	defaultRetryCount   = 3
	defaultRetryBackoff = 1 * time.Second
	defaultIdleWait     = 500 * time.Millisecond
)

// RelayOptions tunes a RelayDeliveriesUseCase. Zero values select defaults.
type RelayOptions struct {
	BatchSize    int
	Concurrency  int
	RetryCount   int
	RetryBackoff time.Duration
	// Limiter bounds the push rate across all concurrent pushes. Nil means unlimited.
	Limiter *rate.Limiter
}

// RelayDeliveriesUseCase turns a pull-based broker into a push subscription:
// it reads batches from a delivery source, pushes every message to the
// worker, and settles each one according to the push result.
type RelayDeliveriesUseCase struct {
	source  domain.DeliverySource
	pusher  domain.Pusher
	logger  *slog.Logger
	metrics *metrics.RelayMetrics
	opts    RelayOptions
}

// NewRelayDeliveriesUseCase creates a new relay. m may be nil.
func NewRelayDeliveriesUseCase(source domain.DeliverySource, pusher domain.Pusher, logger *slog.Logger, m *metrics.RelayMetrics, opts RelayOptions) *RelayDeliveriesUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.RetryCount <= 0 {
		opts.RetryCount = defaultRetryCount
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	return &RelayDeliveriesUseCase{
		source:  source,
		pusher:  pusher,
		logger:  logger.With("component", "push_relay"),
		metrics: m,
		opts:    opts,
	}
}

// RelayBatch reads one batch and pushes it. Acknowledged messages are acked,
// permanently rejected ones are dead-lettered, and the rest are left pending
// so the source redelivers them after the acknowledgement deadline.
// It returns the number of settled messages.
func (uc *RelayDeliveriesUseCase) RelayBatch(ctx context.Context) (int, error) {
	msgs, err := uc.source.ReadBatch(ctx, uc.opts.BatchSize)
	if err != nil {
		uc.logger.Error("failed to read delivery batch", "error", err)
		return 0, err
	}
	if uc.metrics != nil {
		uc.metrics.BatchSize.Observe(float64(len(msgs)))
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	uc.logger.Debug("read delivery batch", "count", len(msgs))

	results := make([]error, len(msgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.opts.Concurrency)
	for i, msg := range msgs {
		g.Go(func() error {
			if uc.opts.Limiter != nil {
				if err := uc.opts.Limiter.Wait(gctx); err != nil {
					results[i] = err
					return nil
				}
			}
			results[i] = uc.pusher.Push(gctx, msg)
			return nil
		})
	}
	_ = g.Wait()

	var acked []string
	var rejected []domain.Message
	for i, msg := range msgs {
		switch err := results[i]; {
		case err == nil:
			acked = append(acked, msg.ID)
			uc.count("acked")
		case domain.IsPermanent(err):
			uc.logger.Warn("push rejected permanently, dead-lettering", "message_id", msg.ID, "error", err)
			rejected = append(rejected, msg)
			uc.count("dead_lettered")
		default:
			uc.logger.Info("push not acknowledged, leaving for redelivery", "message_id", msg.ID, "error", err)
			uc.count("retry")
		}
	}

	// Acks and dead letters are settled independently; whichever fails stays
	// pending and is pushed again.
	var settled int
	var errs []error
	if len(acked) > 0 {
		err := uc.withRetry(ctx, func() error {
			return uc.source.Ack(ctx, acked...)
		})
		if err != nil {
			uc.logger.Error("failed to acknowledge pushed messages", "error", err, "count", len(acked))
			errs = append(errs, err)
		} else {
			settled += len(acked)
		}
	}

	if len(rejected) > 0 {
		err := uc.withRetry(ctx, func() error {
			return uc.source.DeadLetter(ctx, rejected, "rejected by push endpoint")
		})
		if err != nil {
			uc.logger.Error("failed to dead-letter rejected messages", "error", err, "count", len(rejected))
			errs = append(errs, err)
		} else {
			settled += len(rejected)
		}
	}

	if len(errs) > 0 {
		return settled, errors.Join(errs...)
	}
	uc.logger.Info("relayed delivery batch", "read", len(msgs), "acked", len(acked), "dead_lettered", len(rejected))
	return settled, nil
}

// Run relays batches until ctx is done, waiting idleWait after an empty or
// failed batch.
func (uc *RelayDeliveriesUseCase) Run(ctx context.Context, idleWait time.Duration) {
	if idleWait <= 0 {
		idleWait = defaultIdleWait
	}
	for ctx.Err() == nil {
		n, err := uc.RelayBatch(ctx)
		if err == nil && n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
		case <-time.After(idleWait):
		}
	}
}

func (uc *RelayDeliveriesUseCase) withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	for i := 0; i < uc.opts.RetryCount; i++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		uc.logger.Warn("broker operation failed, retrying...", "attempt", i+1, "error", err)
		select {
		case <-time.After(uc.opts.RetryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (uc *RelayDeliveriesUseCase) count(result string) {
	if uc.metrics != nil {
		uc.metrics.PushesTotal.WithLabelValues(result).Inc()
	}
}
