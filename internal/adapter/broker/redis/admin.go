package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/tenantlog/internal/domain"
)

// AdminRepository implements the domain.StreamAdminRepository interface for Redis.
type AdminRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewAdminRepository creates a new Redis admin repository.
func NewAdminRepository(client *redis.Client, logger *slog.Logger) *AdminRepository {
	return &AdminRepository{
		client: client,
		logger: logger.With("component", "redis_admin"),
	}
}

// GetGroupInfo retrieves information about all consumer groups for a given stream.
func (r *AdminRepository) GetGroupInfo(ctx context.Context, stream string) ([]domain.ConsumerGroupInfo, error) {
	groups, err := r.client.XInfoGroups(ctx, stream).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get group info for stream %s: %w", stream, err)
	}

	result := make([]domain.ConsumerGroupInfo, len(groups))
	for i, g := range groups {
		result[i] = domain.ConsumerGroupInfo{
			Name:            g.Name,
			Consumers:       g.Consumers,
			Pending:         g.Pending,
			LastDeliveredID: g.LastDeliveredID,
		}
	}
	return result, nil
}

// GetConsumerInfo lists the relay instances of a group.
func (r *AdminRepository) GetConsumerInfo(ctx context.Context, stream, group string) ([]domain.ConsumerInfo, error) {
	consumers, err := r.client.XInfoConsumers(ctx, stream, group).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get consumer info for stream %s, group %s: %w", stream, group, err)
	}

	result := make([]domain.ConsumerInfo, len(consumers))
	for i, c := range consumers {
		result[i] = domain.ConsumerInfo{
			Name:    c.Name,
			Pending: c.Pending,
			Idle:    c.Idle,
		}
	}
	return result, nil
}

func (r *AdminRepository) GetPendingSummary(ctx context.Context, stream, group string) (*domain.PendingMessageSummary, error) {
	pending, err := r.client.XPending(ctx, stream, group).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending summary for stream %s, group %s: %w", stream, group, err)
	}

	return &domain.PendingMessageSummary{
		Total:          pending.Count,
		FirstMessageID: pending.Lower,
		LastMessageID:  pending.Higher,
		ConsumerTotals: pending.Consumers,
	}, nil
}

// GetPendingMessages lists unacknowledged deliveries with their redelivery counts.
func (r *AdminRepository) GetPendingMessages(ctx context.Context, stream, group, consumer string, startID string, count int64) ([]domain.PendingMessageDetail, error) {
	args := &redis.XPendingExtArgs{
		Stream:   stream,
		Group:    group,
		Start:    startID,
		End:      "+",
		Count:    count,
		Consumer: consumer,
	}

	messages, err := r.client.XPendingExt(ctx, args).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending messages: %w", err)
	}

	result := make([]domain.PendingMessageDetail, len(messages))
	for i, m := range messages {
		result[i] = domain.PendingMessageDetail{
			ID:            m.ID,
			Consumer:      m.Consumer,
			IdleTime:      m.Idle,
			DeliveryCount: m.RetryCount,
		}
	}
	return result, nil
}

// ClaimMessages moves pending entries to another consumer, e.g. away from a
// relay instance that died.
func (r *AdminRepository) ClaimMessages(ctx context.Context, stream, group, consumer string, minIdleTime time.Duration, messageIDs []string) ([]domain.Message, error) {
	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdleTime,
		Messages: messageIDs,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}
	return toMessages(claimed), nil
}

func (r *AdminRepository) AcknowledgeMessages(ctx context.Context, stream, group string, messageIDs ...string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, errors.New("at least one message ID is required")
	}
	return r.client.XAck(ctx, stream, group, messageIDs...).Result()
}

// TrimStream trims a stream to a maximum length.
func (r *AdminRepository) TrimStream(ctx context.Context, stream string, maxLen int64) (int64, error) {
	return r.client.XTrimMaxLen(ctx, stream, maxLen).Result()
}

// ListDeadLetters returns the newest dead letters first.
func (r *AdminRepository) ListDeadLetters(ctx context.Context, dlqStream string, count int64) ([]domain.DeadLetter, error) {
	entries, err := r.client.XRevRangeN(ctx, dlqStream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read dead letters from %s: %w", dlqStream, err)
	}

	result := make([]domain.DeadLetter, 0, len(entries))
	for _, e := range entries {
		dl := domain.DeadLetter{
			ID:         e.ID,
			OriginalID: stringValue(e.Values, fieldOriginalID),
			Reason:     stringValue(e.Values, fieldReason),
		}
		dl.PayloadLength = len(stringValue(e.Values, fieldData))
		if t, err := time.Parse(time.RFC3339, stringValue(e.Values, fieldFailedAt)); err == nil {
			dl.FailedAt = t
		}
		result = append(result, dl)
	}
	return result, nil
}

// RedriveDeadLetters republishes dead letters to the stream they came from
// and deletes them from the dead-letter stream. It returns how many were moved.
func (r *AdminRepository) RedriveDeadLetters(ctx context.Context, dlqStream string, ids ...string) (int, error) {
	moved := 0
	for _, id := range ids {
		entries, err := r.client.XRange(ctx, dlqStream, id, id).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to read dead letter %s: %w", id, err)
		}
		if len(entries) == 0 {
			r.logger.Warn("dead letter not found, skipping", "id", id)
			continue
		}

		values := entries[0].Values
		target := stringValue(values, fieldOriginalStream)
		if target == "" {
			return moved, fmt.Errorf("dead letter %s has no original stream", id)
		}

		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: target,
				Values: map[string]interface{}{fieldData: stringValue(values, fieldData)},
			})
			pipe.XDel(ctx, dlqStream, id)
			return nil
		})
		if err != nil {
			return moved, fmt.Errorf("failed to redrive dead letter %s: %w", id, err)
		}
		moved++
	}
	r.logger.Info("redrove dead letters", "dlq_stream", dlqStream, "count", moved)
	return moved, nil
}

func stringValue(values map[string]interface{}, key string) string {
	s, _ := values[key].(string)
	return s
}
