package dialog

import (
	"context"
	"fmt"
)

// Context drives one dialog stack for the duration of a turn. Adaptive
// dialogs run their actions in child action contexts, which additionally
// carry the owner's pending change queue.
type Context struct {
	Dialogs *Set
	Turn    *TurnState
	Stack   []*Instance
	Parent  *Context

	changes *[]Change
	end     *EndRequest
}

// NewContext creates a root context over stack.
func NewContext(dialogs *Set, turn *TurnState, stack []*Instance) *Context {
	if turn == nil {
		turn = NewTurnState(nil)
	}
	return &Context{Dialogs: dialogs, Turn: turn, Stack: stack}
}

// NewChild creates a context for a container's private stack.
func (dc *Context) NewChild(dialogs *Set, stack []*Instance) *Context {
	return &Context{Dialogs: dialogs, Turn: dc.Turn, Stack: stack, Parent: dc}
}

// NewActionContext creates a child context whose dialogs may queue changes
// into changes, which belongs to the plan owning the stack.
func (dc *Context) NewActionContext(dialogs *Set, stack []*Instance, changes *[]Change) *Context {
	child := dc.NewChild(dialogs, stack)
	child.changes = changes
	return child
}

// IsActionContext reports whether dc carries a change queue.
func (dc *Context) IsActionContext() bool { return dc.changes != nil }

// Owner returns the nearest action context at or above dc.
func (dc *Context) Owner() *Context {
	for c := dc; c != nil; c = c.Parent {
		if c.changes != nil {
			return c
		}
	}
	return nil
}

// ActiveDialog returns the instance on top of the stack, or nil.
func (dc *Context) ActiveDialog() *Instance {
	if len(dc.Stack) == 0 {
		return nil
	}
	return dc.Stack[len(dc.Stack)-1]
}

// FindDialog resolves id in this context's set and then in its ancestors'.
func (dc *Context) FindDialog(id string) Dialog {
	for c := dc; c != nil; c = c.Parent {
		if d := c.Dialogs.Find(id); d != nil {
			return d
		}
	}
	return nil
}

// BeginDialog pushes a new instance of id and begins it.
func (dc *Context) BeginDialog(ctx context.Context, id string, options any) (TurnResult, error) {
	d := dc.FindDialog(id)
	if d == nil {
		return TurnResult{}, fmt.Errorf("begin %q: %w", id, ErrDialogNotFound)
	}
	dc.Stack = append(dc.Stack, &Instance{
		ID:      id,
		State:   make(map[string]any),
		Version: VersionOf(d),
	})
	return d.BeginDialog(ctx, dc, options)
}

// ContinueDialog continues the active dialog. With an empty stack the
// result status is StatusEmpty.
func (dc *Context) ContinueDialog(ctx context.Context) (TurnResult, error) {
	inst := dc.ActiveDialog()
	if inst == nil {
		return TurnResult{Status: StatusEmpty}, nil
	}
	d := dc.FindDialog(inst.ID)
	if d == nil {
		return TurnResult{}, fmt.Errorf("continue %q: %w", inst.ID, ErrDialogNotFound)
	}
	return d.ContinueDialog(ctx, dc)
}

// EndDialog pops the active dialog and resumes the one below it with
// result. When the stack empties the result is returned as complete.
func (dc *Context) EndDialog(ctx context.Context, result Result) (TurnResult, error) {
	if err := dc.endActive(ctx, ReasonEndCalled); err != nil {
		return TurnResult{}, err
	}
	if dc.ActiveDialog() != nil {
		return dc.ResumeActiveDialog(ctx, ReasonEndCalled, result)
	}
	return TurnResult{Status: StatusComplete, Result: result}, nil
}

// ResumeActiveDialog hands result to the active dialog.
func (dc *Context) ResumeActiveDialog(ctx context.Context, reason Reason, result Result) (TurnResult, error) {
	inst := dc.ActiveDialog()
	if inst == nil {
		return TurnResult{Status: StatusComplete, Result: result}, nil
	}
	d := dc.FindDialog(inst.ID)
	if d == nil {
		return TurnResult{}, fmt.Errorf("resume %q: %w", inst.ID, ErrDialogNotFound)
	}
	return d.ResumeDialog(ctx, dc, reason, result)
}

// ReplaceDialog pops the active dialog without resuming its parent and
// begins id in its place.
func (dc *Context) ReplaceDialog(ctx context.Context, id string, options any) (TurnResult, error) {
	if err := dc.endActive(ctx, ReasonReplaceCalled); err != nil {
		return TurnResult{}, err
	}
	return dc.BeginDialog(ctx, id, options)
}

// CancelAllDialogs ends every dialog on the stack, top first.
func (dc *Context) CancelAllDialogs(ctx context.Context) (TurnResult, error) {
	if len(dc.Stack) == 0 {
		return TurnResult{Status: StatusEmpty}, nil
	}
	for dc.ActiveDialog() != nil {
		if err := dc.endActive(ctx, ReasonCancelCalled); err != nil {
			return TurnResult{}, err
		}
	}
	return TurnResult{Status: StatusCancelled}, nil
}

func (dc *Context) endActive(ctx context.Context, reason Reason) error {
	inst := dc.ActiveDialog()
	if inst == nil {
		return nil
	}
	if d := dc.FindDialog(inst.ID); d != nil {
		if err := d.EndDialog(ctx, dc, inst, reason); err != nil {
			return fmt.Errorf("end %q: %w", inst.ID, err)
		}
	}
	dc.Stack = dc.Stack[:len(dc.Stack)-1]
	return nil
}

// EmitEvent delivers an event to the active dialog of dc and, while it
// stays unhandled and bubbles, to the active dialogs of the parent contexts.
func (dc *Context) EmitEvent(ctx context.Context, name string, value any, bubble bool) (bool, error) {
	ev := Event{Name: name, Value: value, Bubble: bubble}
	for c := dc; c != nil; c = c.Parent {
		if inst := c.ActiveDialog(); inst != nil {
			if h, ok := c.FindDialog(inst.ID).(EventHandler); ok {
				handled, err := h.OnDialogEvent(ctx, c, ev)
				if err != nil || handled {
					return handled, err
				}
			}
		}
		if !bubble {
			break
		}
	}
	return false, nil
}

// QueueChanges adds a change to the nearest owning plan. It fails when dc
// is not running inside an action context.
func (dc *Context) QueueChanges(change Change) error {
	owner := dc.Owner()
	if owner == nil {
		return fmt.Errorf("queue %s: no action context: %w", change.Type, ErrConfiguration)
	}
	*owner.changes = append(*owner.changes, change)
	return nil
}

// HasPendingChanges reports whether any context from dc up to the root has
// queued changes.
func (dc *Context) HasPendingChanges() bool {
	for c := dc; c != nil; c = c.Parent {
		if c.changes != nil && len(*c.changes) > 0 {
			return true
		}
	}
	return false
}

// EndKind selects how the owner of an action context finishes.
type EndKind string

const (
	EndDialogRequest EndKind = "end"
	CancelAllRequest EndKind = "cancel"
	RepeatRequest    EndKind = "repeat"
)

// EndRequest asks the dialog that owns an action context to stop running
// its plan and end, cancel or restart itself.
type EndRequest struct {
	Kind    EndKind
	Value   any
	Options any
}

// RequestEnd records req on the nearest action context. It reports false
// when there is none.
func (dc *Context) RequestEnd(req EndRequest) bool {
	owner := dc.Owner()
	if owner == nil {
		return false
	}
	owner.end = &req
	return true
}

// TakeEndRequest returns and clears a pending end request.
func (dc *Context) TakeEndRequest() *EndRequest {
	req := dc.end
	dc.end = nil
	return req
}

// TrackEvent sends a telemetry event tagged with the conversation id.
func (dc *Context) TrackEvent(ctx context.Context, name string, properties map[string]string) {
	t := dc.Turn.Services.Telemetry
	if t == nil {
		return
	}
	props := make(map[string]string, len(properties)+1)
	for k, v := range properties {
		props[k] = v
	}
	if dc.Turn.ConversationID != "" {
		props["conversationId"] = dc.Turn.ConversationID
	}
	t.TrackEvent(ctx, name, props)
}
