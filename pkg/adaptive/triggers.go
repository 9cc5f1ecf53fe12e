package adaptive

import (
	"context"
	"fmt"
	"strings"

	"github.com/voicetyped/adaptive/pkg/actions"
	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/recognizers"
)

// Trigger runs its actions when an event reaches the dialog and its
// constraints hold. Intent triggers listen for recognizedIntent and also
// match the top intent and, optionally, required entities.
type Trigger struct {
	Event     string
	Intent    string
	Entities  []string
	Condition expression.BoolExpression
	// Priority orders matching triggers; lower runs first.
	Priority expression.IntExpression
	Actions  []dialog.Dialog

	scope *actions.ActionScope
}

// OnCondition creates a trigger for event.
func OnCondition(event string, condition string, acts ...dialog.Dialog) *Trigger {
	return &Trigger{Event: event, Condition: expression.NewBool(condition), Actions: acts}
}

// OnBeginDialog runs when the dialog starts.
func OnBeginDialog(acts ...dialog.Dialog) *Trigger {
	return &Trigger{Event: dialog.EventBeginDialog, Actions: acts}
}

// OnActivity runs for every inbound activity, before recognition.
func OnActivity(acts ...dialog.Dialog) *Trigger {
	return &Trigger{Event: dialog.EventActivityReceived, Actions: acts}
}

// OnIntent runs when intent is the top recognized intent.
func OnIntent(intent string, entities []string, acts ...dialog.Dialog) *Trigger {
	return &Trigger{Event: dialog.EventRecognizedIntent, Intent: intent, Entities: entities, Actions: acts}
}

// OnUnknownIntent runs when no intent trigger handled a message.
func OnUnknownIntent(acts ...dialog.Dialog) *Trigger {
	return &Trigger{Event: dialog.EventUnknownIntent, Actions: acts}
}

// OnChooseIntent runs when cross-trained recognizers disagreed. The
// candidates are at turn.recognized.candidates.
func OnChooseIntent(acts ...dialog.Dialog) *Trigger {
	return OnIntent(recognizers.ChooseIntent, nil, acts...)
}

// OnEndOfActions runs when the plan ran out of steps.
func OnEndOfActions(acts ...dialog.Dialog) *Trigger {
	return &Trigger{Event: dialog.EventEndOfActions, Actions: acts}
}

// OnCancelDialog runs when the dialog is asked to cancel.
func OnCancelDialog(acts ...dialog.Dialog) *Trigger {
	return &Trigger{Event: dialog.EventCancelDialog, Actions: acts}
}

// OnCustomEvent runs for events raised with EmitEvent.
func OnCustomEvent(name string, acts ...dialog.Dialog) *Trigger {
	return &Trigger{Event: name, Actions: acts}
}

// Scope returns the action scope wrapping the trigger's actions.
func (t *Trigger) Scope() *actions.ActionScope {
	if t.scope == nil {
		t.scope = actions.NewActionScope(t.Actions...)
	}
	return t.scope
}

func (t *Trigger) String() string {
	if t.Intent != "" {
		return fmt.Sprintf("%s[%s]", t.Event, t.Intent)
	}
	return t.Event
}

// Matches reports whether the trigger accepts ev in dc's memory.
func (t *Trigger) Matches(dc *dialog.Context, ev dialog.Event) (bool, error) {
	if t.Event != ev.Name {
		return false, nil
	}
	if t.Intent != "" {
		top, _ := dc.GetValue("turn.recognized.intent")
		if s, _ := top.(string); s != t.Intent {
			return false, nil
		}
	}
	for _, e := range t.Entities {
		if v, ok := dc.GetValue("turn.recognized.entities." + strings.TrimPrefix(e, "@")); !ok || v == nil {
			return false, nil
		}
	}
	if t.Condition.IsEmpty() {
		return true, nil
	}
	ok, err := t.Condition.Eval(dc)
	if err != nil {
		return false, fmt.Errorf("trigger %s: evaluate condition: %w", t, err)
	}
	return ok, nil
}

func (t *Trigger) priority(dc *dialog.Context) (int, error) {
	if t.Priority.IsEmpty() {
		return 0, nil
	}
	return t.Priority.Eval(dc)
}

// Selector chooses which of the matching triggers run.
type Selector interface {
	Select(ctx context.Context, dc *dialog.Context, matches []*Trigger) ([]*Trigger, error)
}

// FirstSelector runs the single best match: lowest priority first, then
// declaration order.
type FirstSelector struct{}

func (FirstSelector) Select(_ context.Context, dc *dialog.Context, matches []*Trigger) ([]*Trigger, error) {
	var best *Trigger
	bestPriority := 0
	for _, t := range matches {
		p, err := t.priority(dc)
		if err != nil {
			return nil, fmt.Errorf("trigger %s: evaluate priority: %w", t, err)
		}
		if best == nil || p < bestPriority {
			best, bestPriority = t, p
		}
	}
	if best == nil {
		return nil, nil
	}
	return []*Trigger{best}, nil
}

// AllSelector runs every match in declaration order.
type AllSelector struct{}

func (AllSelector) Select(_ context.Context, _ *dialog.Context, matches []*Trigger) ([]*Trigger, error) {
	return matches, nil
}
