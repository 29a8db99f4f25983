package conversation

import (
	"encoding/json"
	"fmt"
)

// ActionAskUser is the sentinel action meaning "stop and ask the user".
const ActionAskUser = "ask_user"

// Directive is the decision capability's normalized output for one turn:
// either the ask-user sentinel or an ordered list of tools to run. Rules are
// opaque business-rule strings forwarded to the formatter unevaluated.
type Directive struct {
	askUser bool
	tools   []string

	Rules         []string
	MissingFields []string
}

// AskUserDirective builds the ask-user form.
func AskUserDirective(rules ...string) Directive {
	return Directive{askUser: true, Rules: rules}
}

// ToolDirective builds the run-tools form.
func ToolDirective(tools []string, rules ...string) Directive {
	return Directive{tools: tools, Rules: rules}
}

// IsAskUser reports whether the directive is the ask-user sentinel.
func (d Directive) IsAskUser() bool { return d.askUser }

// Tools returns the ordered tool list; empty for ask-user.
func (d Directive) Tools() []string { return d.tools }

// rawDirective matches the decision capability's wire shape before
// normalization. Action arrives either as a bare string or a list of strings.
type rawDirective struct {
	Action        json.RawMessage `json:"action"`
	Rules         []string        `json:"rules,omitempty"`
	MissingFields []string        `json:"missing_fields,omitempty"`
}

// ParseDirective normalizes the decision capability's raw JSON output into a
// Directive. "ask_user" and ["ask_user"] are equivalent; a bare tool name
// becomes a single-element sequence.
func ParseDirective(data []byte) (Directive, error) {
	var raw rawDirective
	if err := json.Unmarshal(data, &raw); err != nil {
		return Directive{}, fmt.Errorf("conversation: decode directive: %w", err)
	}
	if len(raw.Action) == 0 {
		return Directive{}, fmt.Errorf("conversation: directive missing action")
	}

	var actions []string
	var single string
	if err := json.Unmarshal(raw.Action, &single); err == nil {
		actions = []string{single}
	} else if err := json.Unmarshal(raw.Action, &actions); err != nil {
		return Directive{}, fmt.Errorf("conversation: directive action must be string or string list")
	}

	cleaned := actions[:0]
	for _, a := range actions {
		if a != "" {
			cleaned = append(cleaned, a)
		}
	}
	if len(cleaned) == 0 {
		return Directive{}, fmt.Errorf("conversation: directive action empty")
	}

	if len(cleaned) == 1 && cleaned[0] == ActionAskUser {
		return Directive{askUser: true, Rules: raw.Rules, MissingFields: raw.MissingFields}, nil
	}
	for _, a := range cleaned {
		if a == ActionAskUser {
			return Directive{}, fmt.Errorf("conversation: %s cannot be mixed with tool actions", ActionAskUser)
		}
	}
	return Directive{tools: cleaned, Rules: raw.Rules, MissingFields: raw.MissingFields}, nil
}
