package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SSEMessage is one tick of the live ingest feed.
type SSEMessage struct {
	Rate    float64        `json:"rate"`
	Tenants map[string]int `json:"tenants"`
}

// SSEBroker manages SSE client connections and broadcasts accepted
// submission rates, overall and per tenant.
type SSEBroker struct {
	logger   *slog.Logger
	clients  map[chan []byte]struct{}
	mu       sync.RWMutex
	accepted chan string
	interval time.Duration
}

// NewSSEBroker creates a new SSEBroker and starts its processing loop.
func NewSSEBroker(ctx context.Context, logger *slog.Logger) *SSEBroker {
	return newSSEBroker(ctx, logger, time.Second)
}

func newSSEBroker(ctx context.Context, logger *slog.Logger, interval time.Duration) *SSEBroker {
	broker := &SSEBroker{
		logger:   logger.With("component", "sse_broker"),
		clients:  make(map[chan []byte]struct{}),
		accepted: make(chan string, 1000),
		interval: interval,
	}
	go broker.run(ctx)
	return broker
}

// ServeHTTP handles new client connections for the SSE stream.
func (b *SSEBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	messageChan := make(chan []byte, 8)
	b.addClient(messageChan)
	defer b.removeClient(messageChan)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messageChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// ReportAccepted records one accepted submission for tenantID. It never
// blocks the ingest path.
func (b *SSEBroker) ReportAccepted(tenantID string) {
	select {
	case b.accepted <- tenantID:
	default:
		b.logger.Warn("SSE report channel is full, dropping report")
	}
}

func (b *SSEBroker) addClient(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = struct{}{}
	b.logger.Info("SSE client connected")
}

func (b *SSEBroker) removeClient(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client)
		b.logger.Info("SSE client disconnected")
	}
}

func (b *SSEBroker) broadcast(msg []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client <- msg:
		default:
			// Slow client; skip this tick for it.
		}
	}
}

func (b *SSEBroker) run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	tenants := make(map[string]int)
	total := 0
	lastTimestamp := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case tenantID := <-b.accepted:
			tenants[tenantID]++
			total++
		case <-ticker.C:
			now := time.Now()
			duration := now.Sub(lastTimestamp).Seconds()
			rate := 0.0
			if duration > 0 {
				rate = float64(total) / duration
			}

			jsonData, err := json.Marshal(SSEMessage{Rate: rate, Tenants: tenants})
			if err != nil {
				b.logger.Error("failed to marshal SSE message", "error", err)
				continue
			}
			b.broadcast(jsonData)

			lastTimestamp = now
			tenants = make(map[string]int)
			total = 0
		}
	}
}
