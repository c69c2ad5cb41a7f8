package domain

import (
	"context"
	"time"
)

// Publisher hands encoded records to a broker. It returns once the broker
// has confirmed receipt, not once the message is processed.
type Publisher interface {
	Publish(ctx context.Context, topic string, data []byte) (messageID string, err error)
}

// ProcessedLogRepository is tenant-scoped storage for processed logs.
// No method ever reads or writes across tenants.
type ProcessedLogRepository interface {
	// Upsert overwrites the record at (TenantID, LogID) and returns it with
	// the store-assigned ProcessedAt.
	Upsert(ctx context.Context, log ProcessedLog) (ProcessedLog, error)

	// Get returns nil, nil when the record does not exist.
	Get(ctx context.Context, tenantID, logID string) (*ProcessedLog, error)

	List(ctx context.Context, tenantID string, limit int) ([]ProcessedLog, error)
}

// SpoolRepository is the local write-ahead spool for records that could not be published.
type SpoolRepository interface {
	Write(ctx context.Context, rec LogRecord) error

	// Replay reads spooled records in write order and passes each to handler.
	// Replay stops at the first handler error.
	Replay(ctx context.Context, handler func(rec LogRecord) error) error

	// Truncate removes everything that has been replayed.
	Truncate(ctx context.Context) error
}

// FaultInjector decides whether a delivery attempt must fail on purpose.
// Implementations make the decision at most once per delivery key so that
// a redelivery of the same message always converges.
type FaultInjector interface {
	ShouldCrash(ctx context.Context, deliveryKey string, rec LogRecord) (bool, error)
}

// DeliverySource is the pull side of a broker, driven by the push relay.
type DeliverySource interface {
	// ReadBatch returns up to count messages: redeliveries of messages whose
	// acknowledgement deadline passed, then new ones.
	ReadBatch(ctx context.Context, count int) ([]Message, error)

	Ack(ctx context.Context, ids ...string) error

	// DeadLetter parks permanently rejected messages and acknowledges them.
	DeadLetter(ctx context.Context, msgs []Message, reason string) error
}

// Pusher delivers one message to a push endpoint. A nil error means the
// endpoint acknowledged it; an error wrapping ErrPushRejected means it was
// rejected for good; any other error leaves it for redelivery.
type Pusher interface {
	Push(ctx context.Context, msg Message) error
}

// StreamAdminRepository exposes broker stream internals for operators.
type StreamAdminRepository interface {
	GetGroupInfo(ctx context.Context, stream string) ([]ConsumerGroupInfo, error)
	GetConsumerInfo(ctx context.Context, stream, group string) ([]ConsumerInfo, error)
	GetPendingSummary(ctx context.Context, stream, group string) (*PendingMessageSummary, error)
	GetPendingMessages(ctx context.Context, stream, group, consumer, startID string, count int64) ([]PendingMessageDetail, error)
	ClaimMessages(ctx context.Context, stream, group, consumer string, minIdleTime time.Duration, messageIDs []string) ([]Message, error)
	AcknowledgeMessages(ctx context.Context, stream, group string, messageIDs ...string) (int64, error)
	TrimStream(ctx context.Context, stream string, maxLen int64) (int64, error)
	ListDeadLetters(ctx context.Context, dlqStream string, count int64) ([]DeadLetter, error)
	RedriveDeadLetters(ctx context.Context, dlqStream string, ids ...string) (int, error)
}
