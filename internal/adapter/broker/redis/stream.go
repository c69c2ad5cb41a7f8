// Package redis implements the broker on Redis Streams. A stream is a topic
// and a consumer group is a subscription; entries stay pending in the group
// until acknowledged and are reclaimed once idle past the ack deadline.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/tenantlog/internal/domain"
)

const (
	fieldData           = "data"
	fieldOriginalStream = "original_stream"
	fieldOriginalID     = "original_msg_id"
	fieldReason         = "reason"
	fieldFailedAt       = "failed_at"

	defaultBlock = 2 * time.Second
)

// Publisher implements domain.Publisher with XADD.
type Publisher struct {
	client *redis.Client
	maxLen int64
}

// NewPublisher creates a stream publisher. A positive maxLen caps each
// stream approximately; zero leaves streams unbounded.
func NewPublisher(client *redis.Client, maxLen int64) *Publisher {
	return &Publisher{client: client, maxLen: maxLen}
}

func (p *Publisher) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]interface{}{fieldData: data},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to XADD to redis stream %s: %w", topic, err)
	}
	return id, nil
}

// DeliveryOptions configures a DeliverySource.
type DeliveryOptions struct {
	Stream    string
	Group     string
	Consumer  string
	DLQStream string
	// AckDeadline is how long a delivered entry may stay unacknowledged
	// before it is handed out again.
	AckDeadline time.Duration
	// Block bounds how long ReadBatch waits for new entries.
	Block time.Duration
}

// DeliverySource implements domain.DeliverySource on a consumer group.
type DeliverySource struct {
	client *redis.Client
	logger *slog.Logger
	opts   DeliveryOptions

	claimCursor string
}

// NewDeliverySource creates the consumer group if needed and returns a source reading from it.
func NewDeliverySource(ctx context.Context, client *redis.Client, logger *slog.Logger, opts DeliveryOptions) (*DeliverySource, error) {
	if opts.Block <= 0 {
		opts.Block = defaultBlock
	}
	d := &DeliverySource{
		client:      client,
		logger:      logger.With("component", "redis_delivery_source", "stream", opts.Stream, "group", opts.Group),
		opts:        opts,
		claimCursor: "0-0",
	}
	if err := d.setupConsumerGroup(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DeliverySource) setupConsumerGroup(ctx context.Context) error {
	err := d.client.XGroupCreateMkStream(ctx, d.opts.Stream, d.opts.Group, "0").Err()
	if err != nil && !isBusyGroupError(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// ReadBatch returns entries whose ack deadline expired first, then new entries.
func (d *DeliverySource) ReadBatch(ctx context.Context, count int) ([]domain.Message, error) {
	msgs, err := d.reclaim(ctx, count)
	if err != nil {
		return nil, err
	}
	if len(msgs) >= count {
		return msgs, nil
	}

	block := d.opts.Block
	if len(msgs) > 0 {
		// Do not hold reclaimed entries back waiting for new ones.
		block = -1
	}
	fresh, err := d.readNew(ctx, count-len(msgs), block)
	if err != nil {
		if len(msgs) > 0 {
			d.logger.Warn("failed to read new entries, returning reclaimed ones", "error", err)
			return msgs, nil
		}
		return nil, err
	}
	return append(msgs, fresh...), nil
}

func (d *DeliverySource) reclaim(ctx context.Context, count int) ([]domain.Message, error) {
	if d.opts.AckDeadline <= 0 {
		return nil, nil
	}
	entries, next, err := d.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   d.opts.Stream,
		Group:    d.opts.Group,
		Consumer: d.opts.Consumer,
		MinIdle:  d.opts.AckDeadline,
		Start:    d.claimCursor,
		Count:    int64(count),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to XAUTOCLAIM from redis: %w", err)
	}
	d.claimCursor = next
	if d.claimCursor == "" {
		d.claimCursor = "0-0"
	}
	if len(entries) > 0 {
		d.logger.Info("reclaimed entries past ack deadline", "count", len(entries))
	}
	return toMessages(entries), nil
}

func (d *DeliverySource) readNew(ctx context.Context, count int, block time.Duration) ([]domain.Message, error) {
	streams, err := d.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    d.opts.Group,
		Consumer: d.opts.Consumer,
		Streams:  []string{d.opts.Stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to XREADGROUP from redis: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return toMessages(streams[0].Messages), nil
}

// Ack acknowledges entries in the consumer group.
func (d *DeliverySource) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := d.client.XAck(ctx, d.opts.Stream, d.opts.Group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to XACK messages in redis: %w", err)
	}
	return nil
}

// DeadLetter copies msgs to the dead-letter stream and acknowledges them in
// one transaction.
func (d *DeliverySource) DeadLetter(ctx context.Context, msgs []domain.Message, reason string) error {
	if len(msgs) == 0 {
		return nil
	}
	failedAt := time.Now().UTC().Format(time.RFC3339)
	ids := make([]string, 0, len(msgs))

	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, msg := range msgs {
			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: d.opts.DLQStream,
				Values: map[string]interface{}{
					fieldData:           msg.Data,
					fieldOriginalStream: d.opts.Stream,
					fieldOriginalID:     msg.ID,
					fieldReason:         reason,
					fieldFailedAt:       failedAt,
				},
			})
			ids = append(ids, msg.ID)
		}
		pipe.XAck(ctx, d.opts.Stream, d.opts.Group, ids...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to execute DLQ pipeline: %w", err)
	}
	d.logger.Warn("moved messages to DLQ", "count", len(msgs), "dlq_stream", d.opts.DLQStream)
	return nil
}

func toMessages(entries []redis.XMessage) []domain.Message {
	msgs := make([]domain.Message, 0, len(entries))
	for _, e := range entries {
		msg := domain.Message{ID: e.ID, PublishTime: idTime(e.ID)}
		attrs := make(map[string]string)
		for k, v := range e.Values {
			s, _ := v.(string)
			if k == fieldData {
				msg.Data = []byte(s)
				continue
			}
			attrs[k] = s
		}
		if len(attrs) > 0 {
			msg.Attributes = attrs
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// idTime extracts the millisecond timestamp Redis puts in every entry ID.
func idTime(id string) time.Time {
	ms, _, _ := strings.Cut(id, "-")
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(n).UTC()
}

func isBusyGroupError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
