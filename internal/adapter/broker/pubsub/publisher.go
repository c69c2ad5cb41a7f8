// Package pubsub publishes records to Google Cloud Pub/Sub. Pub/Sub pushes
// to the worker natively, so there is no delivery source here.
package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// Publisher implements domain.Publisher on a Pub/Sub client.
type Publisher struct {
	client *pubsub.Client
	logger *slog.Logger

	mu     sync.Mutex
	topics map[string]*pubsub.Topic
}

// NewPublisher creates a Pub/Sub client for projectID.
func NewPublisher(ctx context.Context, projectID string, logger *slog.Logger, opts ...option.ClientOption) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create a pubsub client for %s: %w", projectID, err)
	}
	return &Publisher{
		client: client,
		logger: logger.With("component", "pubsub_publisher"),
		topics: make(map[string]*pubsub.Topic),
	}, nil
}

// Publish sends data to topic and waits for the server-assigned message ID.
func (p *Publisher) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	id, err := p.topic(topic).Publish(ctx, &pubsub.Message{Data: data}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to publish to pubsub topic %s: %w", topic, err)
	}
	return id, nil
}

func (p *Publisher) topic(id string) *pubsub.Topic {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.topics[id]
	if !ok {
		t = p.client.Topic(id)
		p.topics[id] = t
	}
	return t
}

// Close flushes pending publishes and closes the client.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.topics {
		t.Stop()
	}
	p.topics = nil
	return p.client.Close()
}
