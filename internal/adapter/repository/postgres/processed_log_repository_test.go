package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/V4T54L/tenantlog/internal/domain"
)

func newMockRepo(t *testing.T) (*ProcessedLogRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewProcessedLogRepository(db, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

func TestProcessedLogRepository_Upsert(t *testing.T) {
	log := domain.ProcessedLog{
		TenantID:     "acme",
		LogID:        "l-1",
		Source:       domain.SourceJSONUpload,
		OriginalText: "hi",
		ModifiedText: "HI",
		CharCount:    2,
	}
	upsert := regexp.QuoteMeta("INSERT INTO processed_logs")

	t.Run("Success", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		mock.ExpectQuery(upsert).
			WithArgs("acme", "l-1", "json_upload", "hi", "HI", 2).
			WillReturnRows(sqlmock.NewRows([]string{"processed_at"}).AddRow(now))

		got, err := repo.Upsert(context.Background(), log)

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !got.ProcessedAt.Equal(now) {
			t.Errorf("expected processed_at %v, got %v", now, got.ProcessedAt)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
	})

	t.Run("Constraint Violation", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(upsert).WillReturnError(&pq.Error{Code: "23514", Message: "check constraint"})

		_, err := repo.Upsert(context.Background(), log)

		if !errors.Is(err, domain.ErrMissingKey) {
			t.Errorf("expected ErrMissingKey, got %v", err)
		}
	})

	t.Run("Data Exception", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(upsert).WillReturnError(&pq.Error{Code: "22021", Message: "invalid byte sequence for encoding \"UTF8\": 0x00"})

		_, err := repo.Upsert(context.Background(), log)

		if !errors.Is(err, domain.ErrUnstorable) {
			t.Errorf("expected ErrUnstorable, got %v", err)
		}
		if !domain.IsPermanent(err) {
			t.Error("expected a data exception to be permanent")
		}
	})

	t.Run("Connection Error", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(upsert).WillReturnError(errors.New("connection refused"))

		_, err := repo.Upsert(context.Background(), log)

		if err == nil || errors.Is(err, domain.ErrMissingKey) {
			t.Errorf("expected a plain store error, got %v", err)
		}
	})
}

func TestProcessedLogRepository_Get(t *testing.T) {
	query := regexp.QuoteMeta("FROM processed_logs") + ".*" + regexp.QuoteMeta("WHERE tenant_id = $1 AND log_id = $2")
	columns := []string{"source", "original_text", "modified_text", "char_count", "processed_at"}

	t.Run("Found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		now := time.Now().UTC()
		mock.ExpectQuery(query).WithArgs("acme", "l-1").
			WillReturnRows(sqlmock.NewRows(columns).AddRow("text_upload", "hi", "HI", 2, now))

		got, err := repo.Get(context.Background(), "acme", "l-1")

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got == nil || got.TenantID != "acme" || got.ModifiedText != "HI" || got.Source != domain.SourceTextUpload {
			t.Errorf("unexpected log: %+v", got)
		}
	})

	t.Run("Not Found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		mock.ExpectQuery(query).WithArgs("acme", "nope").WillReturnRows(sqlmock.NewRows(columns))

		got, err := repo.Get(context.Background(), "acme", "nope")

		if err != nil || got != nil {
			t.Errorf("expected nil, nil; got %+v, %v", got, err)
		}
	})
}

func TestProcessedLogRepository_List(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE tenant_id = $1")).WithArgs("acme", defaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"log_id", "source", "original_text", "modified_text", "char_count", "processed_at"}).
			AddRow("l-2", "json_upload", "b", "B", 1, now).
			AddRow("l-1", "json_upload", "a", "A", 1, now.Add(-time.Minute)))

	logs, err := repo.List(context.Background(), "acme", 0)

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(logs) != 2 || logs[0].LogID != "l-2" || logs[1].TenantID != "acme" {
		t.Errorf("unexpected logs: %+v", logs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessedLogRepository_EnsureSchema(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS processed_logs")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
