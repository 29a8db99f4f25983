package conversation

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/convia-ai/convia/internal/observability/metrics"
	"github.com/convia-ai/convia/internal/tenancy"
	"github.com/convia-ai/convia/pkg/logging"
)

const historyWindow = 20

// Business rule handed to the formatter when decision or tool execution
// failed and no richer context exists.
const fallbackRule = "the system could not complete the request; apologize briefly and ask the user for the information needed to continue"

// Engine orchestrates one conversation turn: it asks the decision capability
// for the next action, runs tools in order applying their cache instructions
// between steps, and routes every terminal path through the response
// formatter so the user always receives a reply.
type Engine struct {
	decider   Decider
	tools     ToolInvoker
	formatter Formatter
	states    StateStore
	history   HistoryStore
	logger    *logging.Logger
	metrics   *metrics.CoreMetrics
	tracer    trace.Tracer
}

// NewEngine wires the orchestration engine. All capabilities are required
// except metrics.
func NewEngine(decider Decider, tools ToolInvoker, formatter Formatter, states StateStore, history HistoryStore, logger *logging.Logger, m *metrics.CoreMetrics) *Engine {
	if decider == nil || tools == nil || formatter == nil {
		panic("conversation: decider, tools and formatter are required")
	}
	if states == nil || history == nil {
		panic("conversation: state and history stores are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{
		decider:   decider,
		tools:     tools,
		formatter: formatter,
		states:    states,
		history:   history,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("convia.internal.conversation"),
	}
}

// RunTurn processes one coalesced inbound message for a conversation and
// returns the outbound reply. Turns for the same key must not run
// concurrently; the message buffer's one-flush-per-key discipline provides
// that.
func (e *Engine) RunTurn(ctx context.Context, key Key, message string) (TurnResult, error) {
	ctx = tenancy.WithTenantID(ctx, key.TenantID)
	ctx, span := e.tracer.Start(ctx, "conversation.run_turn",
		trace.WithAttributes(attribute.String("tenant.id", key.TenantID)))
	defer span.End()
	start := time.Now()

	data, err := e.states.Load(ctx, key)
	if err != nil {
		e.logger.Error("failed to load extracted data, starting empty",
			"conversation", key.ID(), "error", err)
		data = ExtractedData{}
	}
	if data == nil {
		data = ExtractedData{}
	}

	history, err := e.history.Recent(ctx, key, historyWindow)
	if err != nil {
		e.logger.Warn("failed to load history", "conversation", key.ID(), "error", err)
	}

	res := e.runTurn(ctx, key, message, data, history)

	if err := e.states.Save(ctx, key, data); err != nil {
		e.logger.Error("failed to persist extracted data",
			"conversation", key.ID(), "error", err)
	}
	if err := e.history.Append(ctx, key,
		ChatMessage{Role: ChatRoleUser, Content: message},
		ChatMessage{Role: ChatRoleAssistant, Content: res.Reply},
	); err != nil {
		e.logger.Warn("failed to append history", "conversation", key.ID(), "error", err)
	}

	e.metrics.ObserveTurn(string(res.State), time.Since(start).Seconds())
	return res, nil
}

func (e *Engine) runTurn(ctx context.Context, key Key, message string, data ExtractedData, history []ChatMessage) TurnResult {
	directive, err := e.decider.Decide(ctx, message, data, history)
	if err != nil {
		e.logger.Error("decision capability failed", "conversation", key.ID(), "error", err)
		return TurnResult{
			State: StateError,
			Reply: e.format(ctx, key, nil, data, []string{fallbackRule}),
		}
	}

	if directive.IsAskUser() {
		// Never calls a tool: rules and current state go straight to the
		// formatter.
		return TurnResult{
			State: StateAwaitingUser,
			Reply: e.format(ctx, key, nil, data, directive.Rules),
		}
	}

	results := make(map[string]ToolResult)
	state := StateComplete

	for _, name := range directive.Tools() {
		tc := ToolContext{Key: key, Message: message, Data: data}
		result, err := e.tools.Invoke(ctx, name, tc)
		if err != nil {
			e.logger.Error("tool failed, skipping remaining batch",
				"conversation", key.ID(), "tool", name, "error", err)
			e.metrics.ObserveToolCall(name, string(StatusError))
			results[name] = ToolResult{
				Status:  StatusError,
				Payload: map[string]any{"error": err.Error()},
			}
			state = StateError
			break
		}
		e.metrics.ObserveToolCall(name, string(result.Status))

		// Applied before the next tool runs so later steps observe earlier
		// steps' effects. Instructions from successful tools stay applied
		// even if a later tool fails.
		result.Cache.Apply(data)
		results[name] = result
	}

	rules := directive.Rules
	if state == StateError {
		rules = append(append([]string{}, rules...), fallbackRule)
	}

	return TurnResult{
		State:   state,
		Reply:   e.format(ctx, key, results, data, rules),
		Results: results,
	}
}

// format invokes the formatter and falls back to a static reply when even
// formatting fails: no turn may end without some text for the user.
func (e *Engine) format(ctx context.Context, key Key, results map[string]ToolResult, data ExtractedData, rules []string) string {
	text, err := e.formatter.Format(ctx, results, data, rules)
	if err != nil || text == "" {
		if err != nil {
			e.logger.Error("formatter failed", "conversation", key.ID(), "error", err)
		}
		return "Sorry, something went wrong on our side. Could you repeat that?"
	}
	return text
}

// Seed installs extracted-data fields and history entries for a conversation
// before any inbound message exists. The notification scheduler uses it so a
// later reply from the recipient lands with consistent context.
func (e *Engine) Seed(ctx context.Context, key Key, update map[string]string, msgs []ChatMessage) error {
	ctx, span := e.tracer.Start(ctx, "conversation.seed")
	defer span.End()

	data, err := e.states.Load(ctx, key)
	if err != nil || data == nil {
		data = ExtractedData{}
	}
	instr := &CacheInstruction{Update: update}
	instr.Apply(data)
	if err := e.states.Save(ctx, key, data); err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}
	return e.history.Append(ctx, key, msgs...)
}
