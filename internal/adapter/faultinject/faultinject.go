// Package faultinject provides the strategies the delivery handler consults
// before processing a record, used to exercise the redelivery path.
package faultinject

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/tenantlog/internal/domain"
)

// Disabled never injects a fault.
type Disabled struct{}

func (Disabled) ShouldCrash(ctx context.Context, deliveryKey string, rec domain.LogRecord) (bool, error) {
	return false, nil
}

// MarkerStore remembers which deliveries have already crashed.
type MarkerStore interface {
	// MarkOnce sets the marker for key and reports whether this call set it.
	MarkOnce(ctx context.Context, key string) (bool, error)
}

// CrashOnce fails the first delivery of every record whose text contains
// marker. Redeliveries of the same message find the stored marker and pass.
type CrashOnce struct {
	marker string
	store  MarkerStore
}

// NewCrashOnce creates a CrashOnce injector.
func NewCrashOnce(marker string, store MarkerStore) *CrashOnce {
	return &CrashOnce{marker: marker, store: store}
}

func (c *CrashOnce) ShouldCrash(ctx context.Context, deliveryKey string, rec domain.LogRecord) (bool, error) {
	if c.marker == "" || !strings.Contains(rec.Text, c.marker) {
		return false, nil
	}
	first, err := c.store.MarkOnce(ctx, deliveryKey)
	if err != nil {
		return false, fmt.Errorf("failed to record crash marker: %w", err)
	}
	return first, nil
}

const defaultMemoryMarkerCapacity = 100_000

// MemoryMarkerStore keeps up to capacity markers in process memory, each for
// ttl. The least recently marked key is evicted first. A zero ttl keeps
// markers until they are evicted.
type MemoryMarkerStore struct {
	mu   sync.Mutex
	seen *simplelru.LRU
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryMarkerStore(capacity int, ttl time.Duration) *MemoryMarkerStore {
	if capacity <= 0 {
		capacity = defaultMemoryMarkerCapacity
	}
	// NewLRU only fails for a non-positive size.
	seen, _ := simplelru.NewLRU(capacity, nil)
	return &MemoryMarkerStore{seen: seen, ttl: ttl, now: time.Now}
}

func (s *MemoryMarkerStore) MarkOnce(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if v, ok := s.seen.Peek(key); ok {
		if expiresAt, _ := v.(time.Time); s.ttl <= 0 || now.Before(expiresAt) {
			return false, nil
		}
	}
	s.seen.Add(key, now.Add(s.ttl))
	return true, nil
}

// RedisMarkerStore keeps markers in Redis so they survive worker restarts
// and are shared between worker replicas.
type RedisMarkerStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisMarkerStore(client *redis.Client, prefix string, ttl time.Duration) *RedisMarkerStore {
	return &RedisMarkerStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisMarkerStore) MarkOnce(ctx context.Context, key string) (bool, error) {
	set, err := s.client.SetNX(ctx, s.prefix+key, time.Now().UTC().Format(time.RFC3339), s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to SETNX crash marker: %w", err)
	}
	return set, nil
}
