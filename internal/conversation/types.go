package conversation

import "context"

const (
	ChatRoleSystem    = "system"
	ChatRoleUser      = "user"
	ChatRoleAssistant = "assistant"
)

// ChatMessage is one entry of a conversation's history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Key identifies one ongoing dialogue.
type Key struct {
	TenantID      string `json:"tenant_id"`
	ParticipantID string `json:"participant_id"`
}

// ID returns the stable identifier used to key persisted state.
func (k Key) ID() string {
	return k.TenantID + ":" + k.ParticipantID
}

// ExtractedData is the per-conversation field map tools fill in over time.
// Fields have no fixed schema; tools add them as they discover them.
type ExtractedData map[string]string

// Clone returns a shallow copy safe to mutate.
func (d ExtractedData) Clone() ExtractedData {
	out := make(ExtractedData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// CacheInstruction is a tool's declarative request to mutate Extracted Data.
// It is the only sanctioned mutation path; the engine never infers field
// values from free text.
type CacheInstruction struct {
	Update map[string]string `json:"update,omitempty"`
	Clear  []string          `json:"clear,omitempty"`
}

// Apply mutates data in place. Updates and clears are order-independent
// within one instruction: clears win over updates naming the same field.
func (ci *CacheInstruction) Apply(data ExtractedData) {
	if ci == nil {
		return
	}
	for k, v := range ci.Update {
		data[k] = v
	}
	for _, k := range ci.Clear {
		delete(data, k)
	}
}

// ToolStatus tags the outcome of one tool invocation.
type ToolStatus string

const (
	StatusFound     ToolStatus = "found"
	StatusNotFound  ToolStatus = "not_found"
	StatusAmbiguous ToolStatus = "ambiguous"
	StatusCreated   ToolStatus = "created"
	StatusCancelled ToolStatus = "cancelled"
	StatusMissing   ToolStatus = "missing_fields"
	StatusError     ToolStatus = "error"
)

// ToolResult is the outcome of one tool invocation.
type ToolResult struct {
	Status  ToolStatus        `json:"status"`
	Payload map[string]any    `json:"payload,omitempty"`
	Cache   *CacheInstruction `json:"cache,omitempty"`
}

// TurnState is the engine's terminal state for one turn.
type TurnState string

const (
	StateCollecting   TurnState = "collecting"
	StateAwaitingUser TurnState = "awaiting_user_input"
	StateComplete     TurnState = "complete"
	StateError        TurnState = "error"
)

// TurnResult is what one orchestrated turn produced.
type TurnResult struct {
	State   TurnState
	Reply   string
	Results map[string]ToolResult
}

// Decider is the external decision capability: given the inbound message and
// current state it returns the next action.
type Decider interface {
	Decide(ctx context.Context, message string, data ExtractedData, history []ChatMessage) (Directive, error)
}

// Formatter is the external response-formatting capability. Business rules
// are opaque strings it alone interprets.
type Formatter interface {
	Format(ctx context.Context, results map[string]ToolResult, data ExtractedData, rules []string) (string, error)
}

// ToolContext carries everything a tool may read during one invocation.
type ToolContext struct {
	Key     Key
	Message string
	Data    ExtractedData
}

// ToolInvoker executes a named tool against the current conversation state.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, tc ToolContext) (ToolResult, error)
}

// StateStore persists Extracted Data across turns.
type StateStore interface {
	Load(ctx context.Context, key Key) (ExtractedData, error)
	Save(ctx context.Context, key Key, data ExtractedData) error
}

// HistoryStore persists the rolling chat history.
type HistoryStore interface {
	Append(ctx context.Context, key Key, msgs ...ChatMessage) error
	Recent(ctx context.Context, key Key, limit int) ([]ChatMessage, error)
}
