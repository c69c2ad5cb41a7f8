package domain

import "time"

// ConsumerGroupInfo describes a consumer group on the delivery stream.
type ConsumerGroupInfo struct {
	Name            string `json:"name"`
	Consumers       int64  `json:"consumers"`
	Pending         int64  `json:"pending"`
	LastDeliveredID string `json:"last_delivered_id"`
}

// ConsumerInfo describes one relay instance inside a group.
type ConsumerInfo struct {
	Name    string        `json:"name"`
	Pending int64         `json:"pending"`
	Idle    time.Duration `json:"idle"`
}

// PendingMessageSummary summarizes deliveries that are still unacknowledged.
type PendingMessageSummary struct {
	Total          int64            `json:"total"`
	FirstMessageID string           `json:"first_message_id,omitempty"`
	LastMessageID  string           `json:"last_message_id,omitempty"`
	ConsumerTotals map[string]int64 `json:"consumer_totals,omitempty"`
}

// PendingMessageDetail is one unacknowledged delivery. DeliveryCount grows
// with every redelivery.
type PendingMessageDetail struct {
	ID            string        `json:"id"`
	Consumer      string        `json:"consumer"`
	IdleTime      time.Duration `json:"idle_time"`
	DeliveryCount int64         `json:"delivery_count"`
}

// DeadLetter is a message that was parked after a permanent rejection.
type DeadLetter struct {
	ID            string    `json:"id"`
	OriginalID    string    `json:"original_id"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
	PayloadLength int       `json:"payload_length"`
}
