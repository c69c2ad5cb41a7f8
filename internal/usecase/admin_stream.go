package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/V4T54L/tenantlog/internal/domain"
)

const (
	defaultPendingCount    = 100
	defaultDeadLetterCount = 50
)

var errNoMessageIDs = errors.New("at least one message ID is required")

// AdminStreamUseCase lets operators inspect and repair the delivery stream:
// stuck pending deliveries, dead letters and stream length.
type AdminStreamUseCase struct {
	repo domain.StreamAdminRepository
}

// NewAdminStreamUseCase creates a new AdminStreamUseCase.
func NewAdminStreamUseCase(repo domain.StreamAdminRepository) *AdminStreamUseCase {
	return &AdminStreamUseCase{repo: repo}
}

func (uc *AdminStreamUseCase) GetGroupInfo(ctx context.Context, stream string) ([]domain.ConsumerGroupInfo, error) {
	return uc.repo.GetGroupInfo(ctx, stream)
}

func (uc *AdminStreamUseCase) GetConsumerInfo(ctx context.Context, stream, group string) ([]domain.ConsumerInfo, error) {
	return uc.repo.GetConsumerInfo(ctx, stream, group)
}

func (uc *AdminStreamUseCase) GetPendingSummary(ctx context.Context, stream, group string) (*domain.PendingMessageSummary, error) {
	return uc.repo.GetPendingSummary(ctx, stream, group)
}

func (uc *AdminStreamUseCase) GetPendingMessages(ctx context.Context, stream, group, consumer string, startID string, count int64) ([]domain.PendingMessageDetail, error) {
	if startID == "" {
		startID = "-"
	}
	if count <= 0 {
		count = defaultPendingCount
	}
	return uc.repo.GetPendingMessages(ctx, stream, group, consumer, startID, count)
}

func (uc *AdminStreamUseCase) ClaimMessages(ctx context.Context, stream, group, consumer string, minIdleTime time.Duration, messageIDs []string) ([]domain.Message, error) {
	if len(messageIDs) == 0 {
		return nil, errNoMessageIDs
	}
	return uc.repo.ClaimMessages(ctx, stream, group, consumer, minIdleTime, messageIDs)
}

func (uc *AdminStreamUseCase) AcknowledgeMessages(ctx context.Context, stream, group string, messageIDs ...string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, errNoMessageIDs
	}
	return uc.repo.AcknowledgeMessages(ctx, stream, group, messageIDs...)
}

func (uc *AdminStreamUseCase) TrimStream(ctx context.Context, stream string, maxLen int64) (int64, error) {
	return uc.repo.TrimStream(ctx, stream, maxLen)
}

func (uc *AdminStreamUseCase) ListDeadLetters(ctx context.Context, dlqStream string, count int64) ([]domain.DeadLetter, error) {
	if count <= 0 {
		count = defaultDeadLetterCount
	}
	return uc.repo.ListDeadLetters(ctx, dlqStream, count)
}

// RedriveDeadLetters puts dead letters back on the delivery stream, e.g.
// after a worker fix, and removes them from the dead-letter stream.
func (uc *AdminStreamUseCase) RedriveDeadLetters(ctx context.Context, dlqStream string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, errNoMessageIDs
	}
	return uc.repo.RedriveDeadLetters(ctx, dlqStream, ids...)
}
