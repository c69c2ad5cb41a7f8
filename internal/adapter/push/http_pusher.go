// Package push delivers broker messages to a push endpoint over HTTP in the
// Pub/Sub push wire format.
package push

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/V4T54L/tenantlog/internal/adapter/codec"
	"github.com/V4T54L/tenantlog/internal/domain"
)

// HTTPPusher implements domain.Pusher.
type HTTPPusher struct {
	client       *http.Client
	endpoint     string
	subscription string
}

// NewHTTPPusher creates a pusher. timeout bounds one push and should match
// the acknowledgement deadline.
func NewHTTPPusher(endpoint, subscription string, timeout time.Duration) *HTTPPusher {
	return &HTTPPusher{
		client:       &http.Client{Timeout: timeout},
		endpoint:     endpoint,
		subscription: subscription,
	}
}

// Push posts msg and classifies the response: 2xx acknowledges, 4xx other
// than 408 and 429 rejects permanently, and anything else is transient.
func (p *HTTPPusher) Push(ctx context.Context, msg domain.Message) error {
	body, err := codec.EncodePush(p.subscription, msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("push to %s failed: %w", p.endpoint, err)
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout || code == http.StatusTooManyRequests:
		return fmt.Errorf("push endpoint busy: status %d", code)
	case code >= 400 && code < 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrPushRejected, code, bytes.TrimSpace(snippet))
	default:
		return fmt.Errorf("push endpoint failed: status %d: %s", code, bytes.TrimSpace(snippet))
	}
}
