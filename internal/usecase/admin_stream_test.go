package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/V4T54L/tenantlog/internal/domain/mocks"
)

func TestAdminStreamUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("Pending Messages Defaults", func(t *testing.T) {
		repo := &mocks.MockStreamAdminRepository{}
		uc := NewAdminStreamUseCase(repo)

		if _, err := uc.GetPendingMessages(ctx, "ingestion-topic", "log-processors", "", "", 0); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if repo.LastStartID != "-" || repo.LastCount != defaultPendingCount {
			t.Errorf("expected defaults start=- count=%d, got start=%q count=%d", defaultPendingCount, repo.LastStartID, repo.LastCount)
		}
	})

	t.Run("Dead Letter Count Default", func(t *testing.T) {
		repo := &mocks.MockStreamAdminRepository{}
		uc := NewAdminStreamUseCase(repo)

		if _, err := uc.ListDeadLetters(ctx, "ingestion-topic-dlq", -1); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if repo.LastCount != defaultDeadLetterCount {
			t.Errorf("expected count %d, got %d", defaultDeadLetterCount, repo.LastCount)
		}
	})

	t.Run("Operations Need Message IDs", func(t *testing.T) {
		uc := NewAdminStreamUseCase(&mocks.MockStreamAdminRepository{})

		if _, err := uc.ClaimMessages(ctx, "s", "g", "c", time.Minute, nil); !errors.Is(err, errNoMessageIDs) {
			t.Errorf("claim: expected errNoMessageIDs, got %v", err)
		}
		if _, err := uc.AcknowledgeMessages(ctx, "s", "g"); !errors.Is(err, errNoMessageIDs) {
			t.Errorf("ack: expected errNoMessageIDs, got %v", err)
		}
		if _, err := uc.RedriveDeadLetters(ctx, "s-dlq"); !errors.Is(err, errNoMessageIDs) {
			t.Errorf("redrive: expected errNoMessageIDs, got %v", err)
		}
	})

	t.Run("Repository Errors Pass Through", func(t *testing.T) {
		repoErr := errors.New("redis down")
		uc := NewAdminStreamUseCase(&mocks.MockStreamAdminRepository{Err: repoErr})

		if _, err := uc.TrimStream(ctx, "ingestion-topic", 10); !errors.Is(err, repoErr) {
			t.Errorf("expected repository error, got %v", err)
		}
	})
}
