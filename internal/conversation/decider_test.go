package conversation

import (
	"context"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCompleter struct {
	content string
	err     error
	gotReq  openai.ChatCompletionRequest
}

func (s *stubCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.gotReq = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.content}},
		},
	}, nil
}

func TestOpenAIDeciderParsesDirective(t *testing.T) {
	stub := &stubCompleter{content: `{"action": ["find_professional", "check_availability"], "rules": ["if no slots, ask for another date"]}`}
	d := &OpenAIDecider{client: stub, model: "gpt-4o-mini", maxTokens: 400}

	directive, err := d.Decide(context.Background(), "marca com a geraldine amanha",
		ExtractedData{"client_id": "c-1"}, []ChatMessage{{Role: ChatRoleUser, Content: "oi"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"find_professional", "check_availability"}, directive.Tools())
	assert.Equal(t, []string{"if no slots, ask for another date"}, directive.Rules)

	// History and current state ride along in the request.
	require.GreaterOrEqual(t, len(stub.gotReq.Messages), 3)
	assert.Contains(t, stub.gotReq.Messages[len(stub.gotReq.Messages)-1].Content, "client_id")
}

func TestOpenAIDeciderStripsCodeFence(t *testing.T) {
	stub := &stubCompleter{content: "```json\n{\"action\": \"ask_user\"}\n```"}
	d := &OpenAIDecider{client: stub, model: "m", maxTokens: 100}

	directive, err := d.Decide(context.Background(), "oi", ExtractedData{}, nil)
	require.NoError(t, err)
	assert.True(t, directive.IsAskUser())
}

func TestOpenAIDeciderPropagatesAPIError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("rate limited")}
	d := &OpenAIDecider{client: stub, model: "m", maxTokens: 100}

	_, err := d.Decide(context.Background(), "oi", ExtractedData{}, nil)
	assert.Error(t, err)
}

func TestOpenAIDeciderRejectsUnparseableDirective(t *testing.T) {
	stub := &stubCompleter{content: "I think you should call find_professional"}
	d := &OpenAIDecider{client: stub, model: "m", maxTokens: 100}

	_, err := d.Decide(context.Background(), "oi", ExtractedData{}, nil)
	assert.Error(t, err)
}

func TestOpenAIFormatterRendersReply(t *testing.T) {
	stub := &stubCompleter{content: "  Temos horario quinta as 9h. Confirma?  "}
	f := &OpenAIFormatter{client: stub, model: "m", maxTokens: 100}

	out, err := f.Format(context.Background(),
		map[string]ToolResult{"check_availability": {Status: StatusFound}},
		ExtractedData{"date": "2026-03-12"},
		[]string{"if no slots, ask for another date"})
	require.NoError(t, err)

	assert.Equal(t, "Temos horario quinta as 9h. Confirma?", out)
	assert.Contains(t, stub.gotReq.Messages[1].Content, "if no slots, ask for another date")
}

func TestOpenAIFormatterPropagatesError(t *testing.T) {
	stub := &stubCompleter{err: errors.New("down")}
	f := &OpenAIFormatter{client: stub, model: "m", maxTokens: 100}

	_, err := f.Format(context.Background(), nil, ExtractedData{}, nil)
	assert.Error(t, err)
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
