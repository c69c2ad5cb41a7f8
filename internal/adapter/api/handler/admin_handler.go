package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/V4T54L/tenantlog/internal/usecase"
)

// AdminHandler handles HTTP requests for stream administration.
type AdminHandler struct {
	uc     *usecase.AdminStreamUseCase
	logger *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(uc *usecase.AdminStreamUseCase, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{uc: uc, logger: logger.With("component", "admin_handler")}
}

// HealthCheck is a simple health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// GetGroupInfo handles requests to get consumer group info.
// GET /admin/streams/{streamName}/groups
func (h *AdminHandler) GetGroupInfo(w http.ResponseWriter, r *http.Request) {
	streamName := chi.URLParam(r, "streamName")

	groups, err := h.uc.GetGroupInfo(r.Context(), streamName)
	if err != nil {
		h.logger.Error("failed to get group info", "stream", streamName, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, groups)
}

// GetConsumerInfo handles requests to get consumer info for a group.
// GET /admin/streams/{streamName}/groups/{groupName}/consumers
func (h *AdminHandler) GetConsumerInfo(w http.ResponseWriter, r *http.Request) {
	streamName := chi.URLParam(r, "streamName")
	groupName := chi.URLParam(r, "groupName")

	consumers, err := h.uc.GetConsumerInfo(r.Context(), streamName, groupName)
	if err != nil {
		h.logger.Error("failed to get consumer info", "stream", streamName, "group", groupName, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, consumers)
}

// GetPendingSummary handles requests to get a summary of pending messages.
// GET /admin/streams/{streamName}/groups/{groupName}/pending
func (h *AdminHandler) GetPendingSummary(w http.ResponseWriter, r *http.Request) {
	streamName := chi.URLParam(r, "streamName")
	groupName := chi.URLParam(r, "groupName")

	summary, err := h.uc.GetPendingSummary(r.Context(), streamName, groupName)
	if err != nil {
		h.logger.Error("failed to get pending summary", "stream", streamName, "group", groupName, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, summary)
}

// GetPendingMessages handles requests to list pending messages.
// GET /admin/streams/{streamName}/groups/{groupName}/pending/messages?consumer={consumerName}&start={startID}&count={count}
func (h *AdminHandler) GetPendingMessages(w http.ResponseWriter, r *http.Request) {
	streamName := chi.URLParam(r, "streamName")
	groupName := chi.URLParam(r, "groupName")
	consumerName := r.URL.Query().Get("consumer")
	startID := r.URL.Query().Get("start")

	count, ok := parseCount(w, r)
	if !ok {
		return
	}

	messages, err := h.uc.GetPendingMessages(r.Context(), streamName, groupName, consumerName, startID, count)
	if err != nil {
		h.logger.Error("failed to get pending messages", "stream", streamName, "group", groupName, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, messages)
}

// ClaimMessages handles requests to claim pending messages.
// POST /admin/streams/{streamName}/groups/{groupName}/claim
func (h *AdminHandler) ClaimMessages(w http.ResponseWriter, r *http.Request) {
	streamName := chi.URLParam(r, "streamName")
	groupName := chi.URLParam(r, "groupName")

	var payload struct {
		Consumer    string   `json:"consumer"`
		MinIdleTime string   `json:"min_idle_time"`
		MessageIDs  []string `json:"message_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if payload.Consumer == "" || len(payload.MessageIDs) == 0 {
		http.Error(w, "consumer and message_ids are required", http.StatusBadRequest)
		return
	}

	minIdle, err := time.ParseDuration(payload.MinIdleTime)
	if err != nil {
		http.Error(w, "invalid min_idle_time format", http.StatusBadRequest)
		return
	}

	claimed, err := h.uc.ClaimMessages(r.Context(), streamName, groupName, payload.Consumer, minIdle, payload.MessageIDs)
	if err != nil {
		h.logger.Error("failed to claim messages", "stream", streamName, "group", groupName, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	type claimedMessage struct {
		ID         string            `json:"id"`
		Attributes map[string]string `json:"attributes,omitempty"`
		DataLength int               `json:"data_length"`
	}
	out := make([]claimedMessage, 0, len(claimed))
	for _, m := range claimed {
		out = append(out, claimedMessage{ID: m.ID, Attributes: m.Attributes, DataLength: len(m.Data)})
	}
	respondWithJSON(w, h.logger, http.StatusOK, out)
}

// AcknowledgeMessages handles requests to acknowledge messages.
// POST /admin/streams/{streamName}/groups/{groupName}/ack
func (h *AdminHandler) AcknowledgeMessages(w http.ResponseWriter, r *http.Request) {
	streamName := chi.URLParam(r, "streamName")
	groupName := chi.URLParam(r, "groupName")

	var payload struct {
		MessageIDs []string `json:"message_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(payload.MessageIDs) == 0 {
		http.Error(w, "message_ids cannot be empty", http.StatusBadRequest)
		return
	}

	count, err := h.uc.AcknowledgeMessages(r.Context(), streamName, groupName, payload.MessageIDs...)
	if err != nil {
		h.logger.Error("failed to acknowledge messages", "stream", streamName, "group", groupName, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]int64{"acknowledged": count})
}

// TrimStream handles requests to trim a stream.
// POST /admin/streams/{streamName}/trim
func (h *AdminHandler) TrimStream(w http.ResponseWriter, r *http.Request) {
	streamName := chi.URLParam(r, "streamName")

	var payload struct {
		MaxLen int64 `json:"maxlen"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if payload.MaxLen <= 0 {
		http.Error(w, "maxlen must be a positive integer", http.StatusBadRequest)
		return
	}

	trimmedCount, err := h.uc.TrimStream(r.Context(), streamName, payload.MaxLen)
	if err != nil {
		h.logger.Error("failed to trim stream", "stream", streamName, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]int64{"trimmed": trimmedCount})
}

// ListDeadLetters handles requests to list parked messages, newest first.
// GET /admin/streams/{streamName}/dead-letters?count={count}
func (h *AdminHandler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	streamName := chi.URLParam(r, "streamName")

	count, ok := parseCount(w, r)
	if !ok {
		return
	}

	letters, err := h.uc.ListDeadLetters(r.Context(), streamName, count)
	if err != nil {
		h.logger.Error("failed to list dead letters", "stream", streamName, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, letters)
}

// RedriveDeadLetters handles requests to put dead letters back on their original stream.
// POST /admin/streams/{streamName}/dead-letters/redrive
func (h *AdminHandler) RedriveDeadLetters(w http.ResponseWriter, r *http.Request) {
	streamName := chi.URLParam(r, "streamName")

	var payload struct {
		MessageIDs []string `json:"message_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(payload.MessageIDs) == 0 {
		http.Error(w, "message_ids cannot be empty", http.StatusBadRequest)
		return
	}

	redriven, err := h.uc.RedriveDeadLetters(r.Context(), streamName, payload.MessageIDs...)
	if err != nil {
		h.logger.Error("failed to redrive dead letters", "stream", streamName, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, map[string]int{"redriven": redriven})
}

// parseCount reads the optional count query parameter. Zero means the use
// case default.
func parseCount(w http.ResponseWriter, r *http.Request) (int64, bool) {
	countStr := r.URL.Query().Get("count")
	if countStr == "" {
		return 0, true
	}
	count, err := strconv.ParseInt(countStr, 10, 64)
	if err != nil || count < 0 {
		http.Error(w, "invalid count parameter", http.StatusBadRequest)
		return 0, false
	}
	return count, true
}
