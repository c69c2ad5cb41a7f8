package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/V4T54L/tenantlog/internal/adapter/metrics"
	"github.com/V4T54L/tenantlog/internal/domain"
)

// MockIngestUseCase is a mock implementation of the IngestLogUseCase.
type MockIngestUseCase struct {
	IngestFunc func(ctx context.Context, sub domain.Submission) (domain.LogRecord, error)
	Received   []domain.Submission
}

func (m *MockIngestUseCase) Ingest(ctx context.Context, sub domain.Submission) (domain.LogRecord, error) {
	m.Received = append(m.Received, sub)
	if m.IngestFunc != nil {
		return m.IngestFunc(ctx, sub)
	}
	return domain.LogRecord{TenantID: "acme", LogID: "log-1", Text: string(sub.Body), Source: domain.SourceJSONUpload}, nil
}

type recordingReporter struct {
	mu      sync.Mutex
	tenants []string
}

func (r *recordingReporter) ReportAccepted(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = append(r.tenants, tenantID)
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(s)); err != nil {
		t.Fatalf("failed to gzip: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to gzip: %v", err)
	}
	return buf.Bytes()
}

func TestIngestHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		method         string
		contentType    string
		body           string
		maxSize        int64
		mockIngestErr  error
		expectedStatus int
		expectedBody   string
		expectedMetric string
	}{
		{
			name:           "Valid JSON",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"tenant_id":"acme","log_id":"log-1","text":"hello"}`,
			expectedStatus: http.StatusAccepted,
			expectedBody:   `{"status":"accepted","message":"Log queued for processing","tenant_id":"acme","log_id":"log-1"}`,
			expectedMetric: "accepted",
		},
		{
			name:           "Invalid Method",
			method:         http.MethodGet,
			contentType:    "application/json",
			body:           `{}`,
			expectedStatus: http.StatusMethodNotAllowed,
			expectedBody:   "Method Not Allowed\n",
		},
		{
			name:           "Unsupported Content-Type",
			method:         http.MethodPost,
			contentType:    "application/xml",
			body:           `<log/>`,
			mockIngestErr:  fmt.Errorf("%w: application/xml", domain.ErrUnsupportedMedia),
			expectedStatus: http.StatusUnsupportedMediaType,
			expectedBody:   `{"detail":"Unsupported Content-Type"}`,
			expectedMetric: "error_media_type",
		},
		{
			name:           "Validation Error",
			method:         http.MethodPost,
			contentType:    "text/plain",
			body:           `hello`,
			mockIngestErr:  fmt.Errorf("%w: X-Tenant-ID header required for text", domain.ErrValidation),
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"detail":"validation failed: X-Tenant-ID header required for text"}`,
			expectedMetric: "error_validation",
		},
		{
			name:           "Ingest Use Case Error",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"tenant_id":"acme","text":"x"}`,
			mockIngestErr:  errors.New("encoder exploded"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"detail":"Internal Server Error"}`,
		},
		{
			name:           "Payload Too Large",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"tenant_id":"acme","text":"this payload is definitely too large for the test limit"}`,
			maxSize:        50,
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedBody:   `{"detail":"Payload too large"}`,
			expectedMetric: "error_size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.NewIngestMetrics(prometheus.NewRegistry())
			reporter := &recordingReporter{}
			mockUseCase := &MockIngestUseCase{}
			if tt.mockIngestErr != nil {
				mockUseCase.IngestFunc = func(ctx context.Context, sub domain.Submission) (domain.LogRecord, error) {
					return domain.LogRecord{}, tt.mockIngestErr
				}
			}
			maxSize := tt.maxSize
			if maxSize == 0 {
				maxSize = 1024
			}

			handler := NewIngestHandler(mockUseCase, logger, maxSize, m, reporter)

			req := httptest.NewRequest(tt.method, "/ingest", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", status, tt.expectedStatus)
			}
			if body := rr.Body.String(); body != tt.expectedBody {
				t.Errorf("handler returned unexpected body: got %q want %q", body, tt.expectedBody)
			}
			if tt.expectedMetric != "" {
				if got := testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues(tt.expectedMetric)); got != 1 {
					t.Errorf("expected %s counter to be 1, got %v", tt.expectedMetric, got)
				}
			}

			wantReports := 0
			if tt.expectedStatus == http.StatusAccepted {
				wantReports = 1
			}
			if len(reporter.tenants) != wantReports {
				t.Errorf("expected %d SSE reports, got %d", wantReports, len(reporter.tenants))
			}
		})
	}
}

func TestIngestHandler_PassesSubmissionThrough(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mockUseCase := &MockIngestUseCase{}
	m := metrics.NewIngestMetrics(prometheus.NewRegistry())
	handler := NewIngestHandler(mockUseCase, logger, 1024, m, nil)

	req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString("disk full"))
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("X-Tenant-ID", "acme")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rr.Code)
	}
	if len(mockUseCase.Received) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(mockUseCase.Received))
	}
	sub := mockUseCase.Received[0]
	if sub.ContentType != "text/plain; charset=utf-8" || sub.TenantHeader != "acme" || string(sub.Body) != "disk full" {
		t.Errorf("unexpected submission: %+v", sub)
	}
	if got := testutil.ToFloat64(m.BytesTotal); got != float64(len("disk full")) {
		t.Errorf("expected bytes counter %d, got %v", len("disk full"), got)
	}
}

func TestIngestHandler_Gzip(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("Inflates Body", func(t *testing.T) {
		mockUseCase := &MockIngestUseCase{}
		handler := NewIngestHandler(mockUseCase, logger, 1024, nil, nil)

		body := `{"tenant_id":"acme","text":"compressed"}`
		req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(gzipBytes(t, body)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Content-Encoding", "gzip")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
		}
		if got := string(mockUseCase.Received[0].Body); got != body {
			t.Errorf("expected inflated body %q, got %q", body, got)
		}
	})

	t.Run("Inflated Size Is Limited", func(t *testing.T) {
		mockUseCase := &MockIngestUseCase{}
		handler := NewIngestHandler(mockUseCase, logger, 64, nil, nil)

		// Compresses far below the limit but inflates above it.
		body := string(bytes.Repeat([]byte("a"), 4096))
		req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewReader(gzipBytes(t, body)))
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("Content-Encoding", "gzip")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected status 413, got %d", rr.Code)
		}
		if len(mockUseCase.Received) != 0 {
			t.Error("expected the use case not to be called")
		}
	})

	t.Run("Corrupt Gzip", func(t *testing.T) {
		handler := NewIngestHandler(&MockIngestUseCase{}, logger, 1024, nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/ingest", bytes.NewBufferString("not gzip"))
		req.Header.Set("Content-Type", "text/plain")
		req.Header.Set("Content-Encoding", "gzip")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}
