package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/convia-ai/convia/pkg/logging"
)

const (
	// ProviderLog writes outbound messages to the log instead of a network
	// provider. Default for development.
	ProviderLog = "log"
	// ProviderHTTP posts outbound messages to a generic REST provider.
	ProviderHTTP = "http"
)

// SendReceipt is the provider's acknowledgement of one outbound message.
type SendReceipt struct {
	ProviderMessageID string
	Status            string
}

// Sender delivers one outbound message. content is either literal text or a
// provider template id; vars carries template variables (empty for plain
// text).
type Sender interface {
	Send(ctx context.Context, recipient, content string, vars map[string]string) (SendReceipt, error)
}

// BuildSender instantiates a Sender for the configured provider. It returns
// the sender and the provider that was selected.
func BuildSender(provider, apiKey, baseURL string, logger *logging.Logger) (Sender, string, error) {
	if logger == nil {
		logger = logging.Default()
	}
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", ProviderLog:
		return NewLogSender(logger), ProviderLog, nil
	case ProviderHTTP:
		if apiKey == "" || baseURL == "" {
			return nil, "", fmt.Errorf("messaging: http provider requires MESSAGING_API_KEY and MESSAGING_BASE_URL")
		}
		return NewHTTPSender(Config{APIKey: apiKey, BaseURL: baseURL, Logger: logger}), ProviderHTTP, nil
	default:
		return nil, "", fmt.Errorf("messaging: unknown provider %q", provider)
	}
}

// LogSender is a Sender that only logs. Useful for development and tests.
type LogSender struct {
	logger *logging.Logger
}

func NewLogSender(logger *logging.Logger) *LogSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSender{logger: logger}
}

// logTemplateBody stands in for provider-side templates, which the log
// provider does not have.
const logTemplateBody = "Hi {{.name}}! Reminder: your appointment at {{.time}} with {{.professional}}. Reply here to confirm or reschedule."

func (s *LogSender) Send(_ context.Context, recipient, content string, vars map[string]string) (SendReceipt, error) {
	body := content
	if IsTemplateID(content) && len(vars) > 0 {
		if rendered, err := RenderTemplate(content, logTemplateBody, vars); err == nil {
			body = rendered
		}
	}
	s.logger.Info("outbound message (log provider)",
		"recipient", recipient,
		"content", body,
		"vars", fmt.Sprintf("%v", vars),
	)
	return SendReceipt{ProviderMessageID: uuid.NewString(), Status: "logged"}, nil
}
