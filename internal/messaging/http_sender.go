package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/convia-ai/convia/internal/tenancy"
	"github.com/convia-ai/convia/pkg/logging"
)

const defaultTimeout = 15 * time.Second

// Config controls the HTTP sender.
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// HTTPSender posts outbound messages to a REST messaging provider. Content
// that looks like a template id (no whitespace, "tmpl_" prefix) is sent as a
// template message with variables; anything else is sent as plain text.
type HTTPSender struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewHTTPSender(cfg Config) *HTTPSender {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPSender{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: client,
		logger:     logger,
	}
}

type sendPayload struct {
	To         string            `json:"to"`
	Text       string            `json:"text,omitempty"`
	TemplateID string            `json:"template_id,omitempty"`
	Variables  map[string]string `json:"variables,omitempty"`
}

type sendResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// IsTemplateID reports whether content names a provider template rather than
// literal text.
func IsTemplateID(content string) bool {
	return strings.HasPrefix(content, "tmpl_") && !strings.ContainsAny(content, " \t\n")
}

func (s *HTTPSender) Send(ctx context.Context, recipient, content string, vars map[string]string) (SendReceipt, error) {
	payload := sendPayload{To: recipient}
	if IsTemplateID(content) {
		payload.TemplateID = content
		payload.Variables = vars
	} else {
		payload.Text = content
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return SendReceipt{}, fmt.Errorf("messaging: encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return SendReceipt{}, fmt.Errorf("messaging: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if tenantID, ok := tenancy.TenantIDFromContext(ctx); ok {
		req.Header.Set("X-Tenant-Id", tenantID)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return SendReceipt{}, fmt.Errorf("messaging: send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return SendReceipt{}, fmt.Errorf("messaging: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.logger.Error("provider rejected outbound message",
			"status", resp.StatusCode, "body", string(raw), "recipient", recipient)
		return SendReceipt{}, fmt.Errorf("messaging: provider returned %d", resp.StatusCode)
	}

	var parsed sendResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return SendReceipt{}, fmt.Errorf("messaging: decode response: %w", err)
	}
	return SendReceipt{ProviderMessageID: parsed.ID, Status: parsed.Status}, nil
}
