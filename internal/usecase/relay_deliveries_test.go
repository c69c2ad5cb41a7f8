package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/tenantlog/internal/adapter/metrics"
	"github.com/V4T54L/tenantlog/internal/domain"
	"github.com/V4T54L/tenantlog/internal/domain/mocks"
)

func TestRelayDeliveriesUseCase_RelayBatch(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	testMessages := []domain.Message{
		{ID: "msg1", Data: []byte(`{"tenant_id":"acme","log_id":"1","text":"a"}`)},
		{ID: "msg2", Data: []byte(`{"tenant_id":"acme","log_id":"2","text":"b"}`)},
		{ID: "msg3", Data: []byte(`{"tenant_id":"acme","log_id":"3","text":"c"}`)},
	}
	opts := RelayOptions{RetryCount: 2, RetryBackoff: time.Millisecond}

	t.Run("Successful Relay", func(t *testing.T) {
		source := &mocks.MockDeliverySource{ReadBatchResult: testMessages}
		pusher := &mocks.MockPusher{}
		uc := NewRelayDeliveriesUseCase(source, pusher, logger, nil, opts)

		count, err := uc.RelayBatch(context.Background())

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if count != len(testMessages) {
			t.Errorf("expected settled count %d, got %d", len(testMessages), count)
		}
		if len(pusher.Pushed) != 3 {
			t.Errorf("expected 3 pushes, got %d", len(pusher.Pushed))
		}
		if len(source.AckedMessageIDs) != 3 {
			t.Errorf("expected 3 messages to be acked, got %d", len(source.AckedMessageIDs))
		}
		if len(source.DeadLettered) != 0 {
			t.Errorf("expected 0 dead letters, got %d", len(source.DeadLettered))
		}
	})

	t.Run("Mixed Push Results", func(t *testing.T) {
		source := &mocks.MockDeliverySource{ReadBatchResult: testMessages}
		pusher := &mocks.MockPusher{Results: map[string]error{
			"msg2": fmt.Errorf("%w: status 400", domain.ErrPushRejected),
			"msg3": errors.New("status 500"),
		}}
		m := metrics.NewRelayMetrics(prometheus.NewRegistry())
		uc := NewRelayDeliveriesUseCase(source, pusher, logger, m, opts)

		count, err := uc.RelayBatch(context.Background())

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if count != 2 {
			t.Errorf("expected settled count 2, got %d", count)
		}
		if len(source.AckedMessageIDs) != 1 || source.AckedMessageIDs[0] != "msg1" {
			t.Errorf("expected only msg1 acked, got %v", source.AckedMessageIDs)
		}
		if len(source.DeadLettered) != 1 || source.DeadLettered[0].ID != "msg2" {
			t.Errorf("expected msg2 dead-lettered, got %v", source.DeadLettered)
		}
		if v := testutil.ToFloat64(m.PushesTotal.WithLabelValues("retry")); v != 1 {
			t.Errorf("expected 1 retry, got %v", v)
		}
	})

	t.Run("All Transient Leaves Everything Pending", func(t *testing.T) {
		source := &mocks.MockDeliverySource{ReadBatchResult: testMessages}
		pusher := &mocks.MockPusher{Results: map[string]error{
			"msg1": context.DeadlineExceeded,
			"msg2": context.DeadlineExceeded,
			"msg3": context.DeadlineExceeded,
		}}
		uc := NewRelayDeliveriesUseCase(source, pusher, logger, nil, opts)

		count, err := uc.RelayBatch(context.Background())

		if err != nil || count != 0 {
			t.Fatalf("expected 0 settled and no error, got %d (%v)", count, err)
		}
		if len(source.AckedMessageIDs) != 0 || len(source.DeadLettered) != 0 {
			t.Errorf("expected nothing settled, acked=%v dlq=%v", source.AckedMessageIDs, source.DeadLettered)
		}
	})

	t.Run("Source Read Error", func(t *testing.T) {
		source := &mocks.MockDeliverySource{ReadErr: errors.New("redis connection failed")}
		uc := NewRelayDeliveriesUseCase(source, &mocks.MockPusher{}, logger, nil, opts)

		count, err := uc.RelayBatch(context.Background())

		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		if count != 0 {
			t.Errorf("expected settled count 0, got %d", count)
		}
	})

	t.Run("Ack Failure Is Reported", func(t *testing.T) {
		source := &mocks.MockDeliverySource{ReadBatchResult: testMessages, AckErr: errors.New("ack failed")}
		uc := NewRelayDeliveriesUseCase(source, &mocks.MockPusher{}, logger, nil, opts)

		_, err := uc.RelayBatch(context.Background())

		if err == nil {
			t.Fatal("expected an error, got nil")
		}
	})

	t.Run("Dead Letter Failure Still Acks Pushed", func(t *testing.T) {
		source := &mocks.MockDeliverySource{ReadBatchResult: testMessages, DLQErr: errors.New("dlq down")}
		pusher := &mocks.MockPusher{Results: map[string]error{"msg1": domain.ErrPushRejected}}
		uc := NewRelayDeliveriesUseCase(source, pusher, logger, nil, opts)

		count, err := uc.RelayBatch(context.Background())

		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		if count != 2 {
			t.Errorf("expected settled count 2, got %d", count)
		}
		if len(source.AckedMessageIDs) != 2 || slices.Contains(source.AckedMessageIDs, "msg1") {
			t.Errorf("expected msg2 and msg3 acked, got %v", source.AckedMessageIDs)
		}
		if len(source.DeadLettered) != 0 {
			t.Errorf("expected nothing dead-lettered, got %v", source.DeadLettered)
		}
	})

	t.Run("Empty Batch", func(t *testing.T) {
		source := &mocks.MockDeliverySource{}
		pusher := &mocks.MockPusher{}
		uc := NewRelayDeliveriesUseCase(source, pusher, logger, nil, opts)

		count, err := uc.RelayBatch(context.Background())

		if err != nil || count != 0 {
			t.Fatalf("expected 0 and no error, got %d (%v)", count, err)
		}
		if len(pusher.Pushed) != 0 {
			t.Errorf("expected no pushes, got %d", len(pusher.Pushed))
		}
	})
}

func TestRelayDeliveriesUseCase_Concurrency(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var msgs []domain.Message
	for i := 0; i < 20; i++ {
		msgs = append(msgs, domain.Message{ID: fmt.Sprintf("m-%02d", i)})
	}
	source := &mocks.MockDeliverySource{ReadBatchResult: msgs}
	pusher := &mocks.MockPusher{}
	uc := NewRelayDeliveriesUseCase(source, pusher, logger, nil, RelayOptions{Concurrency: 4})

	if _, err := uc.RelayBatch(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	acked := append([]string(nil), source.AckedMessageIDs...)
	sort.Strings(acked)
	if len(acked) != len(msgs) {
		t.Fatalf("expected %d acks, got %d", len(msgs), len(acked))
	}
	for i, id := range acked {
		if id != msgs[i].ID {
			t.Errorf("ack %d: expected %s, got %s", i, msgs[i].ID, id)
		}
	}
}
