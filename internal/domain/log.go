package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Source is the provenance tag set by the normalizer.
type Source string

const (
	SourceJSONUpload Source = "json_upload"
	SourceTextUpload Source = "text_upload"
)

// LogRecord is the canonical, fully normalized form of a submission.
// Nothing downstream of the normalizer needs to know the original format.
type LogRecord struct {
	TenantID string `json:"tenant_id"`
	LogID    string `json:"log_id"`
	Text     string `json:"text"`
	Source   Source `json:"source"`
}

// Submission is a raw intake request before normalization.
type Submission struct {
	ContentType string
	// TenantHeader is the out-of-band tenant identifier used by text submissions.
	TenantHeader string
	Body         []byte
}

// Message is a broker-side message as held by a delivery source.
type Message struct {
	ID          string
	Data        []byte
	Attributes  map[string]string
	PublishTime time.Time
}

// Envelope is the push wire form of a Message. Data is still transport
// encoded (base64) and MessageID is the acknowledgement handle.
type Envelope struct {
	MessageID    string
	Data         string
	Attributes   map[string]string
	PublishTime  time.Time
	Subscription string
}

// ProcessedLog is the stored result for one (tenant_id, log_id).
type ProcessedLog struct {
	TenantID     string    `json:"tenant_id"`
	LogID        string    `json:"log_id"`
	Source       Source    `json:"source"`
	OriginalText string    `json:"original_text"`
	ModifiedText string    `json:"modified_text"`
	CharCount    int       `json:"char_count"`
	ProcessedAt  time.Time `json:"processed_at"`
}

// NewProcessedLog applies the processing transform to a record.
// ProcessedAt is left zero; the store assigns it at write time.
func NewProcessedLog(rec LogRecord) ProcessedLog {
	return ProcessedLog{
		TenantID:     rec.TenantID,
		LogID:        rec.LogID,
		Source:       rec.Source,
		OriginalText: rec.Text,
		ModifiedText: strings.ToUpper(rec.Text),
		CharCount:    utf8.RuneCountInString(rec.Text),
	}
}

// DeliveryState is the position of one delivery attempt in the handler's state machine.
type DeliveryState string

const (
	StateReceived     DeliveryState = "received"
	StateDecoded      DeliveryState = "decoded"
	StateProcessing   DeliveryState = "processing"
	StatePersisted    DeliveryState = "persisted"
	StateAcknowledged DeliveryState = "acknowledged"
	StateRejected     DeliveryState = "rejected"
	// StateRetry means the attempt ended without acknowledgement and the
	// broker is expected to redeliver.
	StateRetry DeliveryState = "retry"
)
