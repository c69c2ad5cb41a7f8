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
	"testing"
	"time"

	"github.com/V4T54L/tenantlog/internal/adapter/codec"
	"github.com/V4T54L/tenantlog/internal/domain"
)

type mockDeliveryHandler struct {
	state    domain.DeliveryState
	err      error
	received []domain.Envelope
	deadline time.Time
}

func (m *mockDeliveryHandler) Handle(ctx context.Context, env domain.Envelope) (domain.DeliveryState, error) {
	m.received = append(m.received, env)
	m.deadline, _ = ctx.Deadline()
	return m.state, m.err
}

func pushBody(t *testing.T, data string) []byte {
	t.Helper()
	body, err := codec.EncodePush("ingestion-push", domain.Message{ID: "m-1", Data: []byte(data)})
	if err != nil {
		t.Fatalf("failed to encode push body: %v", err)
	}
	return body
}

func TestPushHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           []byte
		state          domain.DeliveryState
		err            error
		expectedStatus int
		expectedBody   string
		expectHandled  bool
	}{
		{
			name:           "Acknowledged",
			body:           pushBody(t, `{"tenant_id":"acme","log_id":"1","text":"hi"}`),
			state:          domain.StateAcknowledged,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"success"}`,
			expectHandled:  true,
		},
		{
			name:           "Rejected Is Drained",
			body:           pushBody(t, `not json`),
			state:          domain.StateRejected,
			err:            fmt.Errorf("%w: bad json", domain.ErrDecode),
			expectedStatus: http.StatusAccepted,
			expectedBody:   `{"status":"rejected","error":"undecodable message payload: bad json"}`,
			expectHandled:  true,
		},
		{
			name:           "Retry",
			body:           pushBody(t, `{"tenant_id":"acme","log_id":"1","text":"hi"}`),
			state:          domain.StateRetry,
			err:            errors.New("store unavailable"),
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"retry","error":"store unavailable"}`,
			expectHandled:  true,
		},
		{
			name:           "No Message Field",
			body:           []byte(`{"subscription":"ingestion-push"}`),
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"status":"error","error":"malformed push envelope: no message field"}`,
		},
		{
			name:           "Not JSON",
			body:           []byte(`garbage`),
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc := &mockDeliveryHandler{state: tt.state, err: tt.err}
			handler := NewPushHandler(uc, logger, time.Minute)

			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(tt.body))
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.expectedStatus)
			}
			if tt.expectedBody != "" && rr.Body.String() != tt.expectedBody {
				t.Errorf("handler returned unexpected body: got %q want %q", rr.Body.String(), tt.expectedBody)
			}
			if handled := len(uc.received) == 1; handled != tt.expectHandled {
				t.Errorf("expected handled=%v, got %v", tt.expectHandled, handled)
			}
			if tt.expectHandled && uc.received[0].MessageID != "m-1" {
				t.Errorf("unexpected envelope: %+v", uc.received[0])
			}
		})
	}
}

func TestPushHandler_AppliesAckDeadline(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uc := &mockDeliveryHandler{state: domain.StateAcknowledged}
	handler := NewPushHandler(uc, logger, 30*time.Second)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(pushBody(t, `{}`)))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if uc.deadline.IsZero() {
		t.Fatal("expected the handler context to carry a deadline")
	}
	if remaining := time.Until(uc.deadline); remaining > 30*time.Second || remaining < 25*time.Second {
		t.Errorf("expected a deadline about 30s away, got %v", remaining)
	}
}
