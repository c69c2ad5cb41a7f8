package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/V4T54L/tenantlog/internal/adapter/codec"
	"github.com/V4T54L/tenantlog/internal/domain"
)

// maxPushBodySize caps a push body. Base64 inflates the record by a third,
// so this leaves room for any record the ingest side accepts.
const maxPushBodySize = 4 << 20

// DeliveryHandler is the part of the delivery use case the push handler depends on.
type DeliveryHandler interface {
	Handle(ctx context.Context, env domain.Envelope) (domain.DeliveryState, error)
}

type pushResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// PushHandler is the worker's push endpoint. The response status is the
// acknowledgement: 2xx acks the delivery, anything else asks for redelivery.
type PushHandler struct {
	useCase     DeliveryHandler
	logger      *slog.Logger
	ackDeadline time.Duration
}

// NewPushHandler creates a PushHandler. ackDeadline bounds one delivery
// attempt; zero means only the request context applies.
func NewPushHandler(uc DeliveryHandler, logger *slog.Logger, ackDeadline time.Duration) *PushHandler {
	return &PushHandler{
		useCase:     uc,
		logger:      logger.With("component", "push_handler"),
		ackDeadline: ackDeadline,
	}
}

func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPushBodySize))
	if err != nil {
		respondWithJSON(w, h.logger, http.StatusBadRequest, pushResponse{Status: "error", Error: "unreadable push body"})
		return
	}

	env, err := codec.DecodePush(body)
	if err != nil {
		h.logger.Warn("rejecting malformed push envelope", "error", err)
		respondWithJSON(w, h.logger, http.StatusBadRequest, pushResponse{Status: "error", Error: err.Error()})
		return
	}

	ctx := r.Context()
	if h.ackDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.ackDeadline)
		defer cancel()
	}

	state, err := h.useCase.Handle(ctx, env)
	switch state {
	case domain.StateAcknowledged:
		respondWithJSON(w, h.logger, http.StatusOK, pushResponse{Status: "success"})
	case domain.StateRejected:
		// Acknowledged so the broker drops it; redelivery cannot help.
		respondWithJSON(w, h.logger, http.StatusAccepted, pushResponse{Status: "rejected", Error: errString(err)})
	default:
		respondWithJSON(w, h.logger, http.StatusInternalServerError, pushResponse{Status: "retry", Error: errString(err)})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
