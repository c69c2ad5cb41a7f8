// Package kafka implements the broker on Kafka topics with consumer-group
// offsets as the acknowledgement mechanism.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/V4T54L/tenantlog/internal/domain"
)

const (
	headerOriginalID = "original_msg_id"
	headerReason     = "reason"
	headerFailedAt   = "failed_at"

	defaultFetchWait       = 200 * time.Millisecond
	defaultRedeliveryDelay = 5 * time.Second
)

// MessageWriter is the subset of *kafka.Writer used here.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MessageReader is the subset of *kafka.Reader used here.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter creates a synchronous writer that waits for the partition
// leader. The topic is set per message.
func NewWriter(brokers []string, logger *slog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...), "component", "kafka_writer")
		}),
	}
}

// NewReader creates a consumer-group reader with manual commits.
func NewReader(brokers []string, groupID, topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
		StartOffset: kafka.FirstOffset,
	})
}

// Publisher implements domain.Publisher.
type Publisher struct {
	writer MessageWriter
}

func NewPublisher(writer MessageWriter) *Publisher {
	return &Publisher{writer: writer}
}

// Publish writes data to topic. Kafka assigns the offset asynchronously to
// the producer, so the returned message ID is empty.
func (p *Publisher) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	if err := p.writer.WriteMessages(ctx, kafka.Message{Topic: topic, Value: data}); err != nil {
		return "", fmt.Errorf("failed to write to kafka topic %s: %w", topic, err)
	}
	return "", nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// DeliveryOptions configures a DeliverySource.
type DeliveryOptions struct {
	DLQTopic string
	// FetchWait bounds how long a batch waits for more messages after the first.
	FetchWait time.Duration
	// RedeliveryDelay is how long unsettled messages wait before they are
	// returned again.
	RedeliveryDelay time.Duration
}

// DeliverySource implements domain.DeliverySource on a consumer group.
//
// Offsets only move forward, so a fetched batch is held until every message
// in it has been acked or dead-lettered; unsettled messages are returned
// again by later ReadBatch calls. Only then are the offsets committed. A
// failed commit is retried by the next ReadBatch before anything new is
// fetched.
type DeliverySource struct {
	reader MessageReader
	dlq    MessageWriter
	logger *slog.Logger
	opts   DeliveryOptions

	mu      sync.Mutex
	batch   []kafka.Message
	settled map[string]bool
	retryAt time.Time
}

func NewDeliverySource(reader MessageReader, dlq MessageWriter, logger *slog.Logger, opts DeliveryOptions) *DeliverySource {
	if opts.FetchWait <= 0 {
		opts.FetchWait = defaultFetchWait
	}
	if opts.RedeliveryDelay <= 0 {
		opts.RedeliveryDelay = defaultRedeliveryDelay
	}
	return &DeliverySource{
		reader:  reader,
		dlq:     dlq,
		logger:  logger.With("component", "kafka_delivery_source"),
		opts:    opts,
		settled: make(map[string]bool),
	}
}

func (d *DeliverySource) ReadBatch(ctx context.Context, count int) ([]domain.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.batch) > 0 {
		msgs, err := d.redeliver(ctx)
		if err != nil || len(d.batch) > 0 {
			return msgs, err
		}
	}

	batch, err := d.fetch(ctx, count)
	if err != nil {
		return nil, err
	}
	d.batch = batch
	d.retryAt = time.Now().Add(d.opts.RedeliveryDelay)

	msgs := make([]domain.Message, len(batch))
	for i, m := range batch {
		msgs[i] = toMessage(m)
	}
	return msgs, nil
}

func (d *DeliverySource) redeliver(ctx context.Context) ([]domain.Message, error) {
	if wait := time.Until(d.retryAt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	d.retryAt = time.Now().Add(d.opts.RedeliveryDelay)

	var msgs []domain.Message
	for _, m := range d.batch {
		if id := messageID(m); !d.settled[id] {
			msgs = append(msgs, toMessage(m))
		}
	}
	if len(msgs) == 0 {
		// Everything is settled but the last commit failed.
		if err := d.settle(ctx, nil); err != nil {
			return nil, err
		}
		d.logger.Info("committed settled batch after an earlier commit failure")
		return nil, nil
	}
	d.logger.Info("redelivering unsettled messages", "count", len(msgs))
	return msgs, nil
}

// fetch blocks for the first message, then collects more for up to FetchWait.
func (d *DeliverySource) fetch(ctx context.Context, count int) ([]kafka.Message, error) {
	first, err := d.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch kafka message: %w", err)
	}
	batch := []kafka.Message{first}

	waitCtx, cancel := context.WithTimeout(ctx, d.opts.FetchWait)
	defer cancel()
	for len(batch) < count {
		m, err := d.reader.FetchMessage(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				break
			}
			d.logger.Warn("fetch interrupted, returning partial batch", "error", err, "count", len(batch))
			break
		}
		batch = append(batch, m)
	}
	return batch, nil
}

// Ack settles messages and commits the batch once nothing is left unsettled.
func (d *DeliverySource) Ack(ctx context.Context, ids ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settle(ctx, ids)
}

func (d *DeliverySource) settle(ctx context.Context, ids []string) error {
	for _, id := range ids {
		d.settled[id] = true
	}
	for _, m := range d.batch {
		if !d.settled[messageID(m)] {
			return nil
		}
	}
	if len(d.batch) == 0 {
		return nil
	}
	if err := d.reader.CommitMessages(ctx, d.batch...); err != nil {
		return fmt.Errorf("failed to commit kafka offsets: %w", err)
	}
	d.batch = nil
	d.settled = make(map[string]bool)
	return nil
}

// DeadLetter writes msgs to the DLQ topic and settles them.
func (d *DeliverySource) DeadLetter(ctx context.Context, msgs []domain.Message, reason string) error {
	if len(msgs) == 0 {
		return nil
	}
	failedAt := time.Now().UTC().Format(time.RFC3339)
	out := make([]kafka.Message, len(msgs))
	ids := make([]string, len(msgs))
	for i, msg := range msgs {
		out[i] = kafka.Message{
			Topic: d.opts.DLQTopic,
			Value: msg.Data,
			Headers: []kafka.Header{
				{Key: headerOriginalID, Value: []byte(msg.ID)},
				{Key: headerReason, Value: []byte(reason)},
				{Key: headerFailedAt, Value: []byte(failedAt)},
			},
		}
		ids[i] = msg.ID
	}
	if err := d.dlq.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("failed to write to kafka DLQ topic %s: %w", d.opts.DLQTopic, err)
	}
	d.logger.Warn("moved messages to DLQ", "count", len(msgs), "dlq_topic", d.opts.DLQTopic)

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settle(ctx, ids)
}

// Close closes the reader and the DLQ writer.
func (d *DeliverySource) Close() error {
	return errors.Join(d.reader.Close(), d.dlq.Close())
}

func messageID(m kafka.Message) string {
	return fmt.Sprintf("%s-%d-%d", m.Topic, m.Partition, m.Offset)
}

func toMessage(m kafka.Message) domain.Message {
	msg := domain.Message{ID: messageID(m), Data: m.Value, PublishTime: m.Time}
	if len(m.Headers) > 0 {
		msg.Attributes = make(map[string]string, len(m.Headers))
		for _, h := range m.Headers {
			msg.Attributes[h.Key] = string(h.Value)
		}
	}
	return msg
}
