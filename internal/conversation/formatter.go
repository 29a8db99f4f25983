package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/convia-ai/convia/pkg/logging"
)

const formatterSystemPrompt = `You write the assistant's reply in a booking conversation.
You receive the results of the tools that just ran, the known conversation fields,
and business rules. Business rules are post-conditions the reply must honor.

Write one short, friendly message to the customer in their language.
Never mention tools, fields, or internal status values.`

// OpenAIFormatter implements Formatter on the OpenAI chat-completions API.
// Every terminal path of a turn goes through it so tone stays consistent.
type OpenAIFormatter struct {
	client      chatCompleter
	model       string
	maxTokens   int
	temperature float32
	logger      *logging.Logger
}

// NewOpenAIFormatter builds a response-formatting capability client.
func NewOpenAIFormatter(client *openai.Client, model string, maxTokens int, temperature float32, logger *logging.Logger) *OpenAIFormatter {
	if logger == nil {
		logger = logging.Default()
	}
	if maxTokens <= 0 {
		maxTokens = 600
	}
	return &OpenAIFormatter{client: client, model: model, maxTokens: maxTokens, temperature: temperature, logger: logger}
}

// Format renders the user-facing message for one turn.
func (f *OpenAIFormatter) Format(ctx context.Context, results map[string]ToolResult, data ExtractedData, rules []string) (string, error) {
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("conversation: encode tool results: %w", err)
	}
	fieldsJSON, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("conversation: encode state for formatting: %w", err)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Tool results:\n%s\n\nKnown fields:\n%s\n", resultsJSON, fieldsJSON)
	if len(rules) > 0 {
		prompt.WriteString("\nBusiness rules:\n")
		for _, r := range rules {
			fmt.Fprintf(&prompt, "- %s\n", r)
		}
	}

	resp, err := f.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: f.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: formatterSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt.String()},
		},
		MaxTokens:   f.maxTokens,
		Temperature: f.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("conversation: formatting completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("conversation: formatter returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
