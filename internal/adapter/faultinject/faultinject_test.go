package faultinject

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/tenantlog/internal/domain"
)

func TestCrashOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	stores := map[string]MarkerStore{
		"memory": NewMemoryMarkerStore(0, time.Hour),
		"redis":  NewRedisMarkerStore(client, "crash:", time.Hour),
	}

	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			inj := NewCrashOnce("CRASH_ONCE", store)
			marked := domain.LogRecord{TenantID: "acme", LogID: "l-1", Text: "please CRASH_ONCE here"}
			plain := domain.LogRecord{TenantID: "acme", LogID: "l-2", Text: "all good"}

			crash, err := inj.ShouldCrash(ctx, name+"-msg-1", marked)
			if err != nil || !crash {
				t.Fatalf("expected crash on first delivery, got crash=%v err=%v", crash, err)
			}
			crash, err = inj.ShouldCrash(ctx, name+"-msg-1", marked)
			if err != nil || crash {
				t.Fatalf("expected no crash on redelivery, got crash=%v err=%v", crash, err)
			}
			crash, _ = inj.ShouldCrash(ctx, name+"-msg-2", marked)
			if !crash {
				t.Error("expected a different message to crash once too")
			}
			crash, _ = inj.ShouldCrash(ctx, name+"-msg-3", plain)
			if crash {
				t.Error("expected unmarked record never to crash")
			}
		})
	}
}

func TestMemoryMarkerStore_Bounds(t *testing.T) {
	ctx := context.Background()

	t.Run("Marker Expires After TTL", func(t *testing.T) {
		store := NewMemoryMarkerStore(10, time.Minute)
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		store.now = func() time.Time { return now }

		if first, _ := store.MarkOnce(ctx, "msg-1"); !first {
			t.Fatal("expected first mark to be set")
		}
		now = now.Add(30 * time.Second)
		if first, _ := store.MarkOnce(ctx, "msg-1"); first {
			t.Fatal("expected marker to hold within its TTL")
		}
		now = now.Add(time.Minute)
		if first, _ := store.MarkOnce(ctx, "msg-1"); !first {
			t.Error("expected marker to be set again after expiry")
		}
	})

	t.Run("Capacity Evicts Oldest", func(t *testing.T) {
		store := NewMemoryMarkerStore(2, 0)
		for _, key := range []string{"a", "b", "c"} {
			if first, _ := store.MarkOnce(ctx, key); !first {
				t.Fatalf("expected %s to be marked", key)
			}
		}
		if n := store.seen.Len(); n != 2 {
			t.Errorf("expected 2 markers kept, got %d", n)
		}
		if first, _ := store.MarkOnce(ctx, "c"); first {
			t.Error("expected recent marker to be kept")
		}
		if first, _ := store.MarkOnce(ctx, "a"); !first {
			t.Error("expected oldest marker to be evicted")
		}
	})
}

func TestRedisMarkerStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := NewRedisMarkerStore(client, "crash:", time.Minute)

	if first, _ := store.MarkOnce(context.Background(), "m"); !first {
		t.Fatal("expected first mark to be set")
	}
	if ttl := mr.TTL("crash:m"); ttl != time.Minute {
		t.Errorf("expected TTL %v, got %v", time.Minute, ttl)
	}

	mr.FastForward(2 * time.Minute)
	if first, _ := store.MarkOnce(context.Background(), "m"); !first {
		t.Error("expected marker to be settable again after expiry")
	}
}

func TestRedisMarkerStore_Unavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { client.Close() })
	inj := NewCrashOnce("CRASH_ONCE", NewRedisMarkerStore(client, "crash:", time.Minute))

	crash, err := inj.ShouldCrash(context.Background(), "m", domain.LogRecord{Text: "CRASH_ONCE"})
	if err == nil {
		t.Fatal("expected an error when redis is down")
	}
	if crash {
		t.Error("expected no crash when the marker store fails")
	}
}

func TestDisabled(t *testing.T) {
	crash, err := Disabled{}.ShouldCrash(context.Background(), "m", domain.LogRecord{Text: "CRASH_ONCE"})
	if err != nil || crash {
		t.Errorf("expected disabled injector never to crash, got crash=%v err=%v", crash, err)
	}
}
