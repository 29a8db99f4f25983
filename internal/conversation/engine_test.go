package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubDecider struct {
	directive Directive
	err       error
}

func (s *stubDecider) Decide(context.Context, string, ExtractedData, []ChatMessage) (Directive, error) {
	return s.directive, s.err
}

type invocation struct {
	name string
	data ExtractedData
}

type stubInvoker struct {
	results map[string]ToolResult
	errs    map[string]error
	calls   []invocation
}

func (s *stubInvoker) Invoke(_ context.Context, name string, tc ToolContext) (ToolResult, error) {
	s.calls = append(s.calls, invocation{name: name, data: tc.Data.Clone()})
	if err := s.errs[name]; err != nil {
		return ToolResult{}, err
	}
	return s.results[name], nil
}

type stubFormatter struct {
	reply string
	err   error

	gotResults map[string]ToolResult
	gotData    ExtractedData
	gotRules   []string
	calls      int
}

func (s *stubFormatter) Format(_ context.Context, results map[string]ToolResult, data ExtractedData, rules []string) (string, error) {
	s.calls++
	s.gotResults = results
	s.gotData = data.Clone()
	s.gotRules = rules
	return s.reply, s.err
}

func engineKey() Key {
	return Key{TenantID: "t1", ParticipantID: "5511999990000"}
}

func newTestEngine(d *stubDecider, inv *stubInvoker, f *stubFormatter) (*Engine, *MemoryStateStore, *MemoryHistoryStore) {
	states := NewMemoryStateStore()
	history := NewMemoryHistoryStore()
	return NewEngine(d, inv, f, states, history, nil, nil), states, history
}

func TestAskUserSkipsToolsEntirely(t *testing.T) {
	inv := &stubInvoker{}
	f := &stubFormatter{reply: "Qual data prefere?"}
	e, _, _ := newTestEngine(&stubDecider{directive: AskUserDirective("ask for the date")}, inv, f)

	res, err := e.RunTurn(context.Background(), engineKey(), "quero marcar")
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingUser, res.State)
	assert.Equal(t, "Qual data prefere?", res.Reply)
	assert.Empty(t, inv.calls, "ask_user must not invoke any tool")
	assert.Equal(t, []string{"ask for the date"}, f.gotRules)
}

func TestBatchAppliesCacheBetweenSteps(t *testing.T) {
	inv := &stubInvoker{
		results: map[string]ToolResult{
			"find_professional": {
				Status: StatusFound,
				Cache:  &CacheInstruction{Update: map[string]string{"professional_id": "p-7"}},
			},
			"check_availability": {
				Status: StatusFound,
				Cache:  &CacheInstruction{Update: map[string]string{"date": "2026-03-12"}},
			},
			"create_booking": {Status: StatusCreated},
		},
	}
	f := &stubFormatter{reply: "Agendado!"}
	e, states, _ := newTestEngine(&stubDecider{
		directive: ToolDirective([]string{"find_professional", "check_availability", "create_booking"}),
	}, inv, f)

	res, err := e.RunTurn(context.Background(), engineKey(), "marca com a dra geraldine")
	require.NoError(t, err)
	require.Len(t, inv.calls, 3)

	// Step 2 must observe step 1's cache instruction already applied.
	assert.Equal(t, "p-7", inv.calls[1].data["professional_id"])
	// Step 3 observes both.
	assert.Equal(t, "p-7", inv.calls[2].data["professional_id"])
	assert.Equal(t, "2026-03-12", inv.calls[2].data["date"])

	assert.Equal(t, StateComplete, res.State)
	assert.Len(t, res.Results, 3)

	persisted, err := states.Load(context.Background(), engineKey())
	require.NoError(t, err)
	assert.Equal(t, "p-7", persisted["professional_id"])
}

func TestDecisionFailureStillReplies(t *testing.T) {
	f := &stubFormatter{reply: "Desculpe, pode repetir?"}
	e, _, _ := newTestEngine(&stubDecider{err: errors.New("model down")}, &stubInvoker{}, f)

	res, err := e.RunTurn(context.Background(), engineKey(), "oi")
	require.NoError(t, err)

	assert.Equal(t, StateError, res.State)
	assert.Equal(t, "Desculpe, pode repetir?", res.Reply)
	assert.Equal(t, 1, f.calls, "formatter must still run on decision failure")
	assert.Empty(t, f.gotResults)
	require.Len(t, f.gotRules, 1)
}

func TestToolFailureSkipsRestKeepsEarlierCache(t *testing.T) {
	inv := &stubInvoker{
		results: map[string]ToolResult{
			"find_professional": {
				Status: StatusFound,
				Cache:  &CacheInstruction{Update: map[string]string{"professional_id": "p-1"}},
			},
		},
		errs: map[string]error{"check_availability": errors.New("calendar down")},
	}
	f := &stubFormatter{reply: "Tivemos um problema, tente de novo."}
	e, states, _ := newTestEngine(&stubDecider{
		directive: ToolDirective([]string{"find_professional", "check_availability", "create_booking"}),
	}, inv, f)

	res, err := e.RunTurn(context.Background(), engineKey(), "marca amanha")
	require.NoError(t, err)

	assert.Equal(t, StateError, res.State)
	assert.NotEmpty(t, res.Reply)
	require.Len(t, inv.calls, 2, "create_booking must be skipped after failure")

	assert.Equal(t, StatusError, res.Results["check_availability"].Status)

	persisted, _ := states.Load(context.Background(), engineKey())
	assert.Equal(t, "p-1", persisted["professional_id"], "cache from successful step stays applied")
}

func TestFormatterFailureYieldsStaticFallback(t *testing.T) {
	f := &stubFormatter{err: errors.New("formatter down")}
	e, _, _ := newTestEngine(&stubDecider{directive: AskUserDirective()}, &stubInvoker{}, f)

	res, err := e.RunTurn(context.Background(), engineKey(), "oi")
	require.NoError(t, err)

	assert.NotEmpty(t, res.Reply, "user must always receive some reply")
}

func TestTurnAppendsHistory(t *testing.T) {
	f := &stubFormatter{reply: "Ola!"}
	e, _, history := newTestEngine(&stubDecider{directive: AskUserDirective()}, &stubInvoker{}, f)

	_, err := e.RunTurn(context.Background(), engineKey(), "oi")
	require.NoError(t, err)

	msgs, err := history.Recent(context.Background(), engineKey(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, ChatRoleUser, msgs[0].Role)
	assert.Equal(t, "oi", msgs[0].Content)
	assert.Equal(t, ChatRoleAssistant, msgs[1].Role)
	assert.Equal(t, "Ola!", msgs[1].Content)
}

func TestSeedInstallsStateAndHistory(t *testing.T) {
	e, states, history := newTestEngine(&stubDecider{directive: AskUserDirective()}, &stubInvoker{}, &stubFormatter{reply: "x"})

	err := e.Seed(context.Background(), engineKey(),
		map[string]string{"appointment_id": "a-1", "date": "2026-03-12"},
		[]ChatMessage{{Role: ChatRoleAssistant, Content: "Lembrete: consulta amanha as 9h"}},
	)
	require.NoError(t, err)

	data, _ := states.Load(context.Background(), engineKey())
	assert.Equal(t, "a-1", data["appointment_id"])

	msgs, _ := history.Recent(context.Background(), engineKey(), 10)
	require.Len(t, msgs, 1)
	assert.Equal(t, ChatRoleAssistant, msgs[0].Role)
}
