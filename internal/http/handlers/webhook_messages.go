package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/convia-ai/convia/internal/buffer"
	"github.com/convia-ai/convia/pkg/logging"
)

// WebhookMessagesHandler receives inbound channel messages and hands them to
// the conversation buffer. Providers expect a fast 2xx; all real work happens
// after the debounce window expires.
type WebhookMessagesHandler struct {
	buffer *buffer.Buffer
	logger *logging.Logger
}

// NewWebhookMessagesHandler creates the inbound message webhook handler.
func NewWebhookMessagesHandler(buf *buffer.Buffer, logger *logging.Logger) *WebhookMessagesHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookMessagesHandler{buffer: buf, logger: logger}
}

// InboundMessageRequest is the provider-agnostic webhook payload.
type InboundMessageRequest struct {
	TenantID      string `json:"tenant_id"`
	ParticipantID string `json:"participant_id"`
	Type          string `json:"type"`
	Body          string `json:"body"`
	ReceivedAt    string `json:"received_at,omitempty"` // RFC 3339, defaults to now
}

// HandleInbound accepts one inbound message.
// POST /webhooks/messages
func (h *WebhookMessagesHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	var req InboundMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.TenantID == "" || req.ParticipantID == "" {
		http.Error(w, "tenant_id and participant_id are required", http.StatusBadRequest)
		return
	}

	msgType := buffer.MessageType(req.Type)
	switch msgType {
	case "":
		msgType = buffer.TypeText
	case buffer.TypeText, buffer.TypeAudio, buffer.TypeImage:
	default:
		http.Error(w, "unknown message type", http.StatusBadRequest)
		return
	}
	if msgType == buffer.TypeText && req.Body == "" {
		http.Error(w, "body is required for text messages", http.StatusBadRequest)
		return
	}

	receivedAt := time.Now()
	if req.ReceivedAt != "" {
		t, err := time.Parse(time.RFC3339, req.ReceivedAt)
		if err != nil {
			http.Error(w, "received_at must be RFC 3339", http.StatusBadRequest)
			return
		}
		receivedAt = t
	}

	h.buffer.AddMessage(
		buffer.Key{TenantID: req.TenantID, ParticipantID: req.ParticipantID},
		buffer.Message{Type: msgType, Body: req.Body, ReceivedAt: receivedAt},
	)

	h.logger.Info("webhook: message buffered",
		"tenant_id", req.TenantID,
		"participant_id", req.ParticipantID,
		"type", string(msgType),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "buffered"})
}
