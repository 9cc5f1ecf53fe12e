package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitabwire/util"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/events"
)

// Manager runs turns for conversations against a root dialog. It loads the
// conversation's stack and memory, continues the active dialog (or begins
// the root dialog when none is active) and saves the result.
type Manager struct {
	rootID    string
	store     StateStore
	services  Services
	settings  map[string]any
	publisher *events.Publisher

	mu      sync.RWMutex
	dialogs *Set
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithServices sets the collaborators handed to dialogs.
func WithServices(s Services) ManagerOption {
	return func(m *Manager) { m.services = s }
}

// WithSettings sets the read-only "settings" memory scope.
func WithSettings(settings map[string]any) ManagerOption {
	return func(m *Manager) { m.settings = settings }
}

// WithPublisher emits turn events through p.
func WithPublisher(p *events.Publisher) ManagerOption {
	return func(m *Manager) { m.publisher = p }
}

// NewManager creates a manager. A nil store keeps no state between turns.
func NewManager(dialogs *Set, rootID string, store StateStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		rootID:  rootID,
		store:   store,
		dialogs: dialogs,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetDialogs swaps the dialog set, e.g. after a definition reload. Turns in
// flight keep the set they started with.
func (m *Manager) SetDialogs(s *Set) {
	m.mu.Lock()
	m.dialogs = s
	m.mu.Unlock()
}

// Dialogs returns the current dialog set.
func (m *Manager) Dialogs() *Set {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dialogs
}

// State returns the persisted state of a conversation, or nil.
func (m *Manager) State(ctx context.Context, conversationID string) (*ConversationState, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.Load(ctx, conversationID)
}

// OnTurn processes one inbound activity. Callers serialise turns of the
// same conversation.
func (m *Manager) OnTurn(ctx context.Context, turn activity.TurnContext) (TurnResult, error) {
	act := turn.Activity()
	if act == nil {
		return TurnResult{}, fmt.Errorf("turn has no activity")
	}
	convID := act.Conversation.ID
	state, err := m.load(ctx, convID)
	if err != nil {
		return TurnResult{}, err
	}

	ts := NewTurnState(turn)
	ts.User = state.User
	ts.Conversation = state.Conversation
	if m.settings != nil {
		ts.Settings = m.settings
	}
	ts.Services = m.services

	m.emit(ctx, events.TurnStarted, convID, &events.TurnData{
		ActivityType: string(act.Type),
		Text:         act.Text,
	})

	dc := NewContext(m.Dialogs(), ts, state.Stack)
	res, err := dc.ContinueDialog(ctx)
	if err == nil && res.Status == StatusEmpty {
		m.emit(ctx, events.DialogStarted, convID, &events.DialogData{DialogID: m.rootID})
		res, err = dc.BeginDialog(ctx, m.rootID, nil)
	}
	if err != nil {
		util.Log(ctx).WithError(err).Error("dialog manager: turn failed")
		m.emit(ctx, events.SystemError, convID, map[string]string{"error": err.Error()})
		return TurnResult{}, err
	}

	state.Stack = dc.Stack
	state.TurnCount++
	state.LastAccess = time.Now().UTC()
	if m.store != nil {
		if err := m.store.Save(ctx, state); err != nil {
			util.Log(ctx).WithError(err).Error("dialog manager: save conversation state")
			return TurnResult{}, fmt.Errorf("save conversation %q: %w", convID, err)
		}
	}

	if res.Status == StatusComplete || res.Status == StatusCancelled {
		m.emit(ctx, events.DialogCompleted, convID, &events.DialogData{
			DialogID: m.rootID,
			Status:   res.Status.String(),
		})
	}

	slog.DebugContext(ctx, "turn completed",
		slog.String("conversation_id", convID),
		slog.String("status", res.Status.String()),
		slog.Int("stack_depth", len(state.Stack)))
	m.emit(ctx, events.TurnCompleted, convID, &events.TurnData{
		ActivityType: string(act.Type),
		Status:       res.Status.String(),
	})
	return res, nil
}

func (m *Manager) load(ctx context.Context, convID string) (*ConversationState, error) {
	if m.store == nil {
		return NewConversationState(convID), nil
	}
	state, err := m.store.Load(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("load conversation %q: %w", convID, err)
	}
	if state == nil {
		return NewConversationState(convID), nil
	}
	if state.User == nil {
		state.User = make(map[string]any)
	}
	if state.Conversation == nil {
		state.Conversation = make(map[string]any)
	}
	return state, nil
}

func (m *Manager) emit(ctx context.Context, t events.EventType, convID string, data any) {
	if m.publisher == nil {
		return
	}
	if err := m.publisher.Emit(ctx, t, convID, data); err != nil {
		slog.WarnContext(ctx, "failed to emit turn event",
			slog.String("type", string(t)), slog.String("error", err.Error()))
	}
}
