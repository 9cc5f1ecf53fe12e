package dialog

import (
	"context"
	"time"
)

// ConversationState is everything persisted for one conversation between
// turns: the root dialog stack and the user and conversation scopes.
type ConversationState struct {
	ConversationID string         `json:"conversation_id"`
	Stack          []*Instance    `json:"stack"`
	Conversation   map[string]any `json:"conversation"`
	User           map[string]any `json:"user"`
	TurnCount      int            `json:"turn_count"`
	LastAccess     time.Time      `json:"last_access"`
}

// NewConversationState creates empty state for a conversation.
func NewConversationState(conversationID string) *ConversationState {
	return &ConversationState{
		ConversationID: conversationID,
		Conversation:   make(map[string]any),
		User:           make(map[string]any),
	}
}

// Active reports whether a dialog is in progress.
func (s *ConversationState) Active() bool { return len(s.Stack) > 0 }

// StateStore persists conversation state. Load returns nil, nil when the
// conversation has no saved state.
type StateStore interface {
	Load(ctx context.Context, conversationID string) (*ConversationState, error)
	Save(ctx context.Context, state *ConversationState) error
	Delete(ctx context.Context, conversationID string) error
}
