package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/convia-ai/convia/internal/buffer"
	"github.com/convia-ai/convia/internal/conversation"
	"github.com/convia-ai/convia/pkg/logging"
)

// AdminConversationsHandler exposes operator endpoints for inspecting and
// nudging live conversations.
type AdminConversationsHandler struct {
	buffer  *buffer.Buffer
	states  conversation.StateStore
	history conversation.HistoryStore
	logger  *logging.Logger
}

// NewAdminConversationsHandler creates the admin conversations handler.
func NewAdminConversationsHandler(buf *buffer.Buffer, states conversation.StateStore, history conversation.HistoryStore, logger *logging.Logger) *AdminConversationsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminConversationsHandler{buffer: buf, states: states, history: history, logger: logger}
}

// BufferStatusResponse is the buffer snapshot for operators.
type BufferStatusResponse struct {
	PendingKeys  int               `json:"pending_keys"`
	ActiveTimers int               `json:"active_timers"`
	Keys         []BufferKeyStatus `json:"keys"`
}

// BufferKeyStatus describes one key's pending batch.
type BufferKeyStatus struct {
	TenantID      string `json:"tenant_id"`
	ParticipantID string `json:"participant_id"`
	Count         int    `json:"count"`
	OldestAgeMS   int64  `json:"oldest_age_ms"`
}

// ConversationStateResponse is one conversation's extracted data and recent
// history.
type ConversationStateResponse struct {
	TenantID      string                     `json:"tenant_id"`
	ParticipantID string                     `json:"participant_id"`
	ExtractedData map[string]string          `json:"extracted_data"`
	History       []conversation.ChatMessage `json:"history"`
}

// BufferStatus reports pending batches across all conversations.
// GET /admin/buffer/status
func (h *AdminConversationsHandler) BufferStatus(w http.ResponseWriter, r *http.Request) {
	st := h.buffer.Status()
	resp := BufferStatusResponse{
		PendingKeys:  st.PendingKeys,
		ActiveTimers: st.ActiveTimers,
		Keys:         make([]BufferKeyStatus, 0, len(st.Keys)),
	}
	for _, k := range st.Keys {
		resp.Keys = append(resp.Keys, BufferKeyStatus{
			TenantID:      k.Key.TenantID,
			ParticipantID: k.Key.ParticipantID,
			Count:         k.Count,
			OldestAgeMS:   k.OldestAge.Milliseconds(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// ForceFlush flushes a conversation's pending batch immediately.
// POST /admin/conversations/{tenantID}/{participantID}/flush
func (h *AdminConversationsHandler) ForceFlush(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	participantID := chi.URLParam(r, "participantID")
	if tenantID == "" || participantID == "" {
		http.Error(w, "missing tenantID or participantID", http.StatusBadRequest)
		return
	}

	h.buffer.ForceFlush(buffer.Key{TenantID: tenantID, ParticipantID: participantID})
	h.logger.Info("admin: forced buffer flush",
		"tenant_id", tenantID, "participant_id", participantID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

// GetState returns the extracted data and recent history for a conversation.
// GET /admin/conversations/{tenantID}/{participantID}
func (h *AdminConversationsHandler) GetState(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")
	participantID := chi.URLParam(r, "participantID")
	if tenantID == "" || participantID == "" {
		http.Error(w, "missing tenantID or participantID", http.StatusBadRequest)
		return
	}

	key := conversation.Key{TenantID: tenantID, ParticipantID: participantID}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	data, err := h.states.Load(ctx, key)
	if err != nil {
		h.logger.Error("admin: failed to load extracted data",
			"tenant_id", tenantID, "participant_id", participantID, "error", err)
		http.Error(w, "failed to load state", http.StatusInternalServerError)
		return
	}
	msgs, err := h.history.Recent(ctx, key, 50)
	if err != nil {
		h.logger.Error("admin: failed to load history",
			"tenant_id", tenantID, "participant_id", participantID, "error", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ConversationStateResponse{
		TenantID:      tenantID,
		ParticipantID: participantID,
		ExtractedData: data,
		History:       msgs,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
