// Package codec converts log records to and from their broker and push wire forms.
//
// A record travels as JSON bytes inside the broker. On the push path those
// bytes are base64 encoded inside a wrapped message body, the same shape
// Cloud Pub/Sub uses for push subscriptions:
//
//	{"message":{"data":"<base64>","message_id":"...","attributes":{},"publish_time":"..."},"subscription":"..."}
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/V4T54L/tenantlog/internal/domain"
)

type pushMessage struct {
	Data        *string           `json:"data,omitempty"`
	MessageID   string            `json:"message_id,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	PublishTime time.Time         `json:"publish_time"`
}

type pushBody struct {
	Message      *pushMessage `json:"message"`
	Subscription string       `json:"subscription,omitempty"`
}

// EncodeRecord serializes a normalized record for the broker.
func EncodeRecord(rec domain.LogRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses broker bytes back into a record. Anything that is not
// a JSON object is a poison message and yields domain.ErrDecode.
func DecodeRecord(data []byte) (domain.LogRecord, error) {
	var rec domain.LogRecord
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return rec, fmt.Errorf("%w: payload is not a JSON object", domain.ErrDecode)
	}
	if err := json.Unmarshal(trimmed, &rec); err != nil {
		return domain.LogRecord{}, fmt.Errorf("%w: %v", domain.ErrDecode, err)
	}
	return rec, nil
}

// EncodePush wraps a broker message into a push request body.
func EncodePush(subscription string, msg domain.Message) ([]byte, error) {
	data := base64.StdEncoding.EncodeToString(msg.Data)
	body := pushBody{
		Message: &pushMessage{
			Data:        &data,
			MessageID:   msg.ID,
			Attributes:  msg.Attributes,
			PublishTime: msg.PublishTime.UTC(),
		},
		Subscription: subscription,
	}
	out, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal push body: %w", err)
	}
	return out, nil
}

// DecodePush reads a push request body. A body that is not JSON, has no
// message, or has a message without data is rejected at intake with
// domain.ErrMalformedEnvelope; the data itself is not decoded here.
func DecodePush(body []byte) (domain.Envelope, error) {
	var pb pushBody
	if err := json.Unmarshal(body, &pb); err != nil {
		return domain.Envelope{}, fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err)
	}
	if pb.Message == nil {
		return domain.Envelope{}, fmt.Errorf("%w: no message field", domain.ErrMalformedEnvelope)
	}
	if pb.Message.Data == nil {
		return domain.Envelope{}, fmt.Errorf("%w: no data in message", domain.ErrMalformedEnvelope)
	}
	return domain.Envelope{
		MessageID:    pb.Message.MessageID,
		Data:         *pb.Message.Data,
		Attributes:   pb.Message.Attributes,
		PublishTime:  pb.Message.PublishTime,
		Subscription: pb.Subscription,
	}, nil
}

// DecodeEnvelopeData reverses the transport encoding of an envelope and
// parses the record it carries.
func DecodeEnvelopeData(env domain.Envelope) (domain.LogRecord, error) {
	raw, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return domain.LogRecord{}, fmt.Errorf("%w: invalid base64: %v", domain.ErrDecode, err)
	}
	return DecodeRecord(raw)
}
