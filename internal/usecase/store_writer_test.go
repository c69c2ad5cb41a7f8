package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/V4T54L/tenantlog/internal/domain"
	"github.com/V4T54L/tenantlog/internal/domain/mocks"
)

func TestStoreWriter_Write(t *testing.T) {
	log := domain.NewProcessedLog(domain.LogRecord{TenantID: "acme", LogID: "l-1", Text: "hi", Source: domain.SourceJSONUpload})

	tests := []struct {
		name    string
		repo    domain.ProcessedLogRepository
		log     domain.ProcessedLog
		wantErr error
	}{
		{name: "success", repo: &mocks.MockProcessedLogRepository{}, log: log},
		{name: "missing tenant", repo: &mocks.MockProcessedLogRepository{}, log: domain.ProcessedLog{LogID: "l-1"}, wantErr: domain.ErrMissingKey},
		{name: "missing log id", repo: &mocks.MockProcessedLogRepository{}, log: domain.ProcessedLog{TenantID: "acme"}, wantErr: domain.ErrMissingKey},
		{name: "no store", repo: nil, log: log, wantErr: domain.ErrStoreUnavailable},
		{name: "store down", repo: &mocks.MockProcessedLogRepository{UpsertErr: errors.New("connection refused")}, log: log, wantErr: domain.ErrStoreUnavailable},
		{name: "store rejects content", repo: &mocks.MockProcessedLogRepository{UpsertErr: domain.ErrUnstorable}, log: log, wantErr: domain.ErrUnstorable},
		{name: "store rejects key", repo: &mocks.MockProcessedLogRepository{UpsertErr: domain.ErrMissingKey}, log: log, wantErr: domain.ErrMissingKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewStoreWriter(tt.repo)
			got, err := w.Write(context.Background(), tt.log)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected error %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got.ProcessedAt.IsZero() {
				t.Error("expected ProcessedAt to be set by the store")
			}
		})
	}
}

func TestStoreWriter_Enabled(t *testing.T) {
	if NewStoreWriter(nil).Enabled() {
		t.Error("expected writer without repository to be disabled")
	}
	if !NewStoreWriter(&mocks.MockProcessedLogRepository{}).Enabled() {
		t.Error("expected writer with repository to be enabled")
	}
}
