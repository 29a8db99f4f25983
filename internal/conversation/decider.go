package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/convia-ai/convia/pkg/logging"
)

// chatCompleter is the slice of the OpenAI client the decider and formatter
// use. Narrowed so tests can stub it.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const deciderSystemPrompt = `You are the planning step of a booking assistant for a business.
Given the customer's message, the known conversation fields, and the chat history,
decide the next action.

Available tools: find_professional, find_service, find_client, check_availability,
create_booking, cancel_booking.

Respond with ONLY a JSON object:
{"action": "<tool>" | ["<tool>", ...] | "ask_user",
 "rules": ["<post-condition for the reply writer>", ...],
 "missing_fields": ["<field>", ...]}

Use "ask_user" when required information can only come from the customer.
Order multi-tool actions so earlier tools fill fields later tools need.`

// OpenAIDecider implements Decider on the OpenAI chat-completions API.
type OpenAIDecider struct {
	client      chatCompleter
	model       string
	maxTokens   int
	temperature float32
	logger      *logging.Logger
}

// NewOpenAIDecider builds a decision capability client.
func NewOpenAIDecider(client *openai.Client, model string, maxTokens int, temperature float32, logger *logging.Logger) *OpenAIDecider {
	if logger == nil {
		logger = logging.Default()
	}
	if maxTokens <= 0 {
		maxTokens = 400
	}
	return &OpenAIDecider{client: client, model: model, maxTokens: maxTokens, temperature: temperature, logger: logger}
}

// Decide asks the model for the next action and normalizes its output.
func (d *OpenAIDecider) Decide(ctx context.Context, message string, data ExtractedData, history []ChatMessage) (Directive, error) {
	fields, err := json.Marshal(data)
	if err != nil {
		return Directive{}, fmt.Errorf("conversation: encode state for decision: %w", err)
	}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: deciderSystemPrompt},
	}
	for _, h := range history {
		messages = append(messages, openai.ChatCompletionMessage{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: fmt.Sprintf("Known fields: %s\n\nCustomer message:\n%s", fields, message),
	})

	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       d.model,
		Messages:    messages,
		MaxTokens:   d.maxTokens,
		Temperature: d.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return Directive{}, fmt.Errorf("conversation: decision completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Directive{}, fmt.Errorf("conversation: decision returned no choices")
	}

	raw := stripCodeFence(resp.Choices[0].Message.Content)
	directive, err := ParseDirective([]byte(raw))
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("unparseable directive from decision model", "raw", raw, "error", err)
		}
		return Directive{}, err
	}
	return directive, nil
}

// stripCodeFence removes a markdown fence the model sometimes wraps JSON in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
