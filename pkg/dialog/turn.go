package dialog

import (
	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/memory"
	"github.com/voicetyped/adaptive/pkg/telemetry"
)

// Services are the collaborators available to dialogs during a turn.
type Services struct {
	Expressions expression.Evaluator
	Generator   Generator
	Telemetry   telemetry.Client
}

// TurnState is shared by every context of one turn. User and Conversation
// persist across turns; Turn is cleared for every turn.
type TurnState struct {
	Adapter        activity.TurnContext
	ConversationID string

	User         map[string]any
	Conversation map[string]any
	Turn         map[string]any
	Settings     map[string]any

	Services Services

	processed map[*Instance]bool
}

// NewTurnState creates turn state for the given adapter turn, with empty
// memory scopes and default services.
func NewTurnState(adapter activity.TurnContext) *TurnState {
	ts := &TurnState{
		Adapter:      adapter,
		User:         make(map[string]any),
		Conversation: make(map[string]any),
		Turn:         make(map[string]any),
		Settings:     make(map[string]any),
		processed:    make(map[*Instance]bool),
	}
	if adapter != nil && adapter.Activity() != nil {
		act := adapter.Activity()
		ts.ConversationID = act.Conversation.ID
		if v, err := memory.Normalize(act); err == nil {
			ts.Turn["activity"] = v
		}
	}
	return ts
}

// Activity returns the inbound activity, or nil outside of an adapter turn.
func (t *TurnState) Activity() *activity.Activity {
	if t.Adapter == nil {
		return nil
	}
	return t.Adapter.Activity()
}

// MarkProcessed records that inst handled the inbound activity this turn.
// It reports false when it already had.
func (t *TurnState) MarkProcessed(inst *Instance) bool {
	if t.processed == nil {
		t.processed = make(map[*Instance]bool)
	}
	if t.processed[inst] {
		return false
	}
	t.processed[inst] = true
	return true
}

func (t *TurnState) evaluator() expression.Evaluator {
	if t.Services.Expressions == nil {
		t.Services.Expressions = defaultEvaluator
	}
	return t.Services.Expressions
}

func (t *TurnState) generator() Generator {
	if t.Services.Generator == nil {
		t.Services.Generator = defaultGenerator
	}
	return t.Services.Generator
}
