package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/V4T54L/tenantlog/internal/domain"
)

// PublishedMessage is one call recorded by MockPublisher.
type PublishedMessage struct {
	Topic string
	Data  []byte
}

// MockPublisher is a mock implementation of domain.Publisher for testing.
type MockPublisher struct {
	mu         sync.Mutex
	Published  []PublishedMessage
	PublishErr error
	// FailFirst makes the first N calls fail with PublishErr.
	FailFirst int
	calls     int
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.PublishErr != nil && (m.FailFirst == 0 || m.calls <= m.FailFirst) {
		return "", m.PublishErr
	}
	m.Published = append(m.Published, PublishedMessage{Topic: topic, Data: append([]byte(nil), data...)})
	return "msg-" + time.Now().Format("150405.000000000"), nil
}

// MockSpoolRepository is a mock implementation of domain.SpoolRepository for testing.
type MockSpoolRepository struct {
	mu        sync.Mutex
	Records   []domain.LogRecord
	WriteErr  error
	Truncated int
}

func (m *MockSpoolRepository) Write(ctx context.Context, rec domain.LogRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Records = append(m.Records, rec)
	return nil
}

func (m *MockSpoolRepository) Replay(ctx context.Context, handler func(rec domain.LogRecord) error) error {
	m.mu.Lock()
	records := append([]domain.LogRecord(nil), m.Records...)
	m.mu.Unlock()
	for _, rec := range records {
		if err := handler(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *MockSpoolRepository) Truncate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = nil
	m.Truncated++
	return nil
}

// MockProcessedLogRepository is a mock implementation of domain.ProcessedLogRepository.
// Records are keyed by tenant and log ID like the real stores.
type MockProcessedLogRepository struct {
	mu        sync.Mutex
	Records   map[string]map[string]domain.ProcessedLog
	Upserts   int
	UpsertErr error
	ReadErr   error
}

func (m *MockProcessedLogRepository) Upsert(ctx context.Context, log domain.ProcessedLog) (domain.ProcessedLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Upserts++
	if m.UpsertErr != nil {
		return log, m.UpsertErr
	}
	if m.Records == nil {
		m.Records = make(map[string]map[string]domain.ProcessedLog)
	}
	if m.Records[log.TenantID] == nil {
		m.Records[log.TenantID] = make(map[string]domain.ProcessedLog)
	}
	log.ProcessedAt = time.Now().UTC()
	m.Records[log.TenantID][log.LogID] = log
	return log, nil
}

func (m *MockProcessedLogRepository) Get(ctx context.Context, tenantID, logID string) (*domain.ProcessedLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	log, ok := m.Records[tenantID][logID]
	if !ok {
		return nil, nil
	}
	return &log, nil
}

func (m *MockProcessedLogRepository) List(ctx context.Context, tenantID string, limit int) ([]domain.ProcessedLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	var out []domain.ProcessedLog
	for _, log := range m.Records[tenantID] {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, log)
	}
	return out, nil
}

// MockDeliverySource is a mock implementation of domain.DeliverySource for testing.
type MockDeliverySource struct {
	mu              sync.Mutex
	ReadBatchResult []domain.Message
	AckedMessageIDs []string
	DeadLettered    []domain.Message
	ReadErr         error
	AckErr          error
	DLQErr          error
}

func (m *MockDeliverySource) ReadBatch(ctx context.Context, count int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	return m.ReadBatchResult, nil
}

func (m *MockDeliverySource) Ack(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AckErr != nil {
		return m.AckErr
	}
	m.AckedMessageIDs = append(m.AckedMessageIDs, ids...)
	return nil
}

func (m *MockDeliverySource) DeadLetter(ctx context.Context, msgs []domain.Message, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DLQErr != nil {
		return m.DLQErr
	}
	m.DeadLettered = append(m.DeadLettered, msgs...)
	return nil
}

// MockPusher is a mock implementation of domain.Pusher. Results maps a
// message ID to the error its push returns; unknown IDs succeed.
type MockPusher struct {
	mu      sync.Mutex
	Results map[string]error
	Pushed  []domain.Message
}

func (m *MockPusher) Push(ctx context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pushed = append(m.Pushed, msg)
	return m.Results[msg.ID]
}

// MockStreamAdminRepository is a mock implementation of domain.StreamAdminRepository.
// It records the arguments of the last call in LastStream, LastGroup and LastIDs.
type MockStreamAdminRepository struct {
	mu          sync.Mutex
	Groups      []domain.ConsumerGroupInfo
	Consumers   []domain.ConsumerInfo
	Summary     *domain.PendingMessageSummary
	Pending     []domain.PendingMessageDetail
	Claimed     []domain.Message
	DeadLetters []domain.DeadLetter
	Err         error

	LastStream   string
	LastGroup    string
	LastConsumer string
	LastStartID  string
	LastCount    int64
	LastMinIdle  time.Duration
	LastIDs      []string
}

func (m *MockStreamAdminRepository) record(stream, group string, ids []string) {
	m.LastStream = stream
	m.LastGroup = group
	m.LastIDs = ids
}

func (m *MockStreamAdminRepository) GetGroupInfo(ctx context.Context, stream string) ([]domain.ConsumerGroupInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(stream, "", nil)
	return m.Groups, m.Err
}

func (m *MockStreamAdminRepository) GetConsumerInfo(ctx context.Context, stream, group string) ([]domain.ConsumerInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(stream, group, nil)
	return m.Consumers, m.Err
}

func (m *MockStreamAdminRepository) GetPendingSummary(ctx context.Context, stream, group string) (*domain.PendingMessageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(stream, group, nil)
	return m.Summary, m.Err
}

func (m *MockStreamAdminRepository) GetPendingMessages(ctx context.Context, stream, group, consumer, startID string, count int64) ([]domain.PendingMessageDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(stream, group, nil)
	m.LastConsumer = consumer
	m.LastStartID = startID
	m.LastCount = count
	return m.Pending, m.Err
}

func (m *MockStreamAdminRepository) ClaimMessages(ctx context.Context, stream, group, consumer string, minIdleTime time.Duration, messageIDs []string) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(stream, group, messageIDs)
	m.LastConsumer = consumer
	m.LastMinIdle = minIdleTime
	return m.Claimed, m.Err
}

func (m *MockStreamAdminRepository) AcknowledgeMessages(ctx context.Context, stream, group string, messageIDs ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(stream, group, messageIDs)
	return int64(len(messageIDs)), m.Err
}

func (m *MockStreamAdminRepository) TrimStream(ctx context.Context, stream string, maxLen int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(stream, "", nil)
	m.LastCount = maxLen
	return 3, m.Err
}

func (m *MockStreamAdminRepository) ListDeadLetters(ctx context.Context, dlqStream string, count int64) ([]domain.DeadLetter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(dlqStream, "", nil)
	m.LastCount = count
	return m.DeadLetters, m.Err
}

func (m *MockStreamAdminRepository) RedriveDeadLetters(ctx context.Context, dlqStream string, ids ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record(dlqStream, "", ids)
	return len(ids), m.Err
}
