// Package adaptive implements the adaptive dialog: a dialog whose behavior
// is a list of triggers. Events raised during a turn (the dialog starting,
// a message arriving, an intent being recognized, a custom event) select
// triggers, whose actions are queued onto the dialog's plan and run by the
// action engine one step at a time.
package adaptive

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/voicetyped/adaptive/pkg/actions"
	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/recognizers"
)

// Memory keys in the dialog's own state.
const (
	planKey    = "_adaptive"
	optionsKey = "options"
	// ResultKey is read as the dialog's result when it ends on its own.
	ResultKey = "result"
)

// Telemetry event names.
const (
	TelemetryTriggerEvent   = "AdaptiveDialogTrigger"
	TelemetryCompleteEvent  = "AdaptiveDialogComplete"
	TelemetryRecognizeEvent = "AdaptiveDialogRecognizerResult"
)

// Dialog is an adaptive dialog.
type Dialog struct {
	IDValue    string
	Recognizer recognizers.Recognizer
	Triggers   []*Trigger
	Selector   Selector
	// AutoEnd ends the dialog once the plan is empty. Without it the
	// dialog waits for the next activity.
	AutoEnd bool
	// Components are extra dialogs that actions may begin by id.
	Components []dialog.Dialog

	set *dialog.Set
}

// New creates an adaptive dialog that ends when it runs out of actions.
func New(id string, triggers ...*Trigger) *Dialog {
	return &Dialog{IDValue: id, Triggers: triggers, AutoEnd: true}
}

func (a *Dialog) ID() string { return a.IDValue }

// SetID fixes the id chosen by the registering set.
func (a *Dialog) SetID(id string) { a.IDValue = id }

// Dialogs returns the dialog's private set: every trigger's actions and
// the components.
func (a *Dialog) Dialogs() *dialog.Set {
	if a.set == nil {
		set := dialog.NewSet()
		for _, t := range a.Triggers {
			set.Add(t.Scope())
		}
		for _, d := range a.Components {
			set.Add(d)
		}
		a.set = set
	}
	return a.set
}

// Version changes whenever a trigger or its actions change.
func (a *Dialog) Version() string {
	h := fnv.New64a()
	for _, t := range a.Triggers {
		_, _ = h.Write([]byte(t.String()))
		_, _ = h.Write([]byte(t.Condition.String()))
		_, _ = h.Write([]byte(dialog.VersionOf(t.Scope())))
		_, _ = h.Write([]byte{0})
	}
	if a.Recognizer != nil {
		_, _ = h.Write([]byte(a.Recognizer.ID()))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func (a *Dialog) selector() Selector {
	if a.Selector == nil {
		return FirstSelector{}
	}
	return a.Selector
}

func planOf(inst *dialog.Instance) (*dialog.Plan, error) {
	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	plan, err := dialog.PlanFrom(inst.State[planKey])
	if err != nil {
		return nil, fmt.Errorf("dialog %q: restore plan: %w", inst.ID, err)
	}
	inst.State[planKey] = plan
	return plan, nil
}

func (a *Dialog) BeginDialog(ctx context.Context, dc *dialog.Context, options any) (dialog.TurnResult, error) {
	inst := dc.ActiveDialog()
	plan, err := planOf(inst)
	if err != nil {
		return dialog.TurnResult{}, err
	}
	if options != nil {
		inst.State[optionsKey] = options
	}

	handled, err := a.processEvent(ctx, dc, inst, plan, dialog.Event{Name: dialog.EventBeginDialog, Value: options})
	if err != nil {
		return dialog.TurnResult{}, err
	}
	// Without a begin trigger the activity that started the dialog is
	// handled like any later one.
	fresh := dc.Turn.MarkProcessed(inst)
	if !handled && fresh && dc.Turn.Activity() != nil {
		if _, err := a.processEvent(ctx, dc, inst, plan, dialog.Event{Name: dialog.EventActivityReceived}); err != nil {
			return dialog.TurnResult{}, err
		}
	}
	return a.continueActions(ctx, dc, inst, plan)
}

func (a *Dialog) ContinueDialog(ctx context.Context, dc *dialog.Context) (dialog.TurnResult, error) {
	inst := dc.ActiveDialog()
	plan, err := planOf(inst)
	if err != nil {
		return dialog.TurnResult{}, err
	}

	if v := a.Version(); inst.Version != v {
		inst.Version = v
		handled, err := a.processEvent(ctx, dc, inst, plan, dialog.Event{Name: dialog.EventVersionChanged, Bubble: true})
		if err != nil {
			return dialog.TurnResult{}, err
		}
		if !handled {
			slog.InfoContext(ctx, "dialog definition changed, restarting",
				slog.String("dialog_id", a.ID()))
			plan.Steps, plan.Changes = nil, nil
			if _, err := a.processEvent(ctx, dc, inst, plan, dialog.Event{Name: dialog.EventBeginDialog}); err != nil {
				return dialog.TurnResult{}, err
			}
		}
	}

	if dc.Turn.Activity() != nil && dc.Turn.Turn[actions.TurnInterrupted] != true && dc.Turn.MarkProcessed(inst) {
		allowed, err := a.interruptible(ctx, dc, plan)
		if err != nil {
			return dialog.TurnResult{}, err
		}
		if allowed {
			handled, err := a.processEvent(ctx, dc, inst, plan, dialog.Event{Name: dialog.EventActivityReceived})
			if err != nil {
				return dialog.TurnResult{}, err
			}
			if handled && waiting(plan) {
				dc.Turn.Turn[actions.TurnInterrupted] = true
			}
		}
	}
	return a.continueActions(ctx, dc, inst, plan)
}

func waiting(plan *dialog.Plan) bool {
	return len(plan.Steps) > 0 && plan.Steps[0].Started()
}

// ResumeDialog runs when a dialog begun directly on the dialog's own stack
// ends. The plan simply goes on.
func (a *Dialog) ResumeDialog(ctx context.Context, dc *dialog.Context, _ dialog.Reason, _ dialog.Result) (dialog.TurnResult, error) {
	inst := dc.ActiveDialog()
	plan, err := planOf(inst)
	if err != nil {
		return dialog.TurnResult{}, err
	}
	return a.continueActions(ctx, dc, inst, plan)
}

// EndDialog ends the actions still suspended in the plan.
func (a *Dialog) EndDialog(ctx context.Context, dc *dialog.Context, inst *dialog.Instance, reason dialog.Reason) error {
	plan, err := planOf(inst)
	if err != nil {
		return err
	}
	for _, step := range plan.Steps {
		if !step.Started() {
			continue
		}
		child := dc.NewActionContext(a.Dialogs(), step.Stack, &plan.Changes)
		for child.ActiveDialog() != nil {
			top := child.ActiveDialog()
			if d := child.FindDialog(top.ID); d != nil {
				if err := d.EndDialog(ctx, child, top, reason); err != nil {
					return err
				}
			}
			child.Stack = child.Stack[:len(child.Stack)-1]
		}
	}
	plan.Steps, plan.Changes = nil, nil
	return nil
}

// OnDialogEvent queues the triggers matching ev.
func (a *Dialog) OnDialogEvent(ctx context.Context, dc *dialog.Context, ev dialog.Event) (bool, error) {
	inst := dc.ActiveDialog()
	plan, err := planOf(inst)
	if err != nil {
		return false, err
	}
	return a.processEvent(ctx, dc, inst, plan, ev)
}

// AllowInterruptions reports whether the action this dialog waits on lets
// other triggers take the next message.
func (a *Dialog) AllowInterruptions(ctx context.Context, dc *dialog.Context) (bool, error) {
	plan, err := planOf(dc.ActiveDialog())
	if err != nil {
		return false, err
	}
	return a.interruptible(ctx, dc, plan)
}

func (a *Dialog) interruptible(ctx context.Context, dc *dialog.Context, plan *dialog.Plan) (bool, error) {
	if !waiting(plan) {
		return true, nil
	}
	child := dc.NewActionContext(a.Dialogs(), plan.Steps[0].Stack, &plan.Changes)
	top := child.ActiveDialog()
	if i, ok := child.FindDialog(top.ID).(dialog.Interruptible); ok {
		return i.AllowInterruptions(ctx, child)
	}
	return false, nil
}

func (a *Dialog) processEvent(ctx context.Context, dc *dialog.Context, inst *dialog.Instance, plan *dialog.Plan, ev dialog.Event) (bool, error) {
	dc.Turn.Turn["dialogEvent"] = map[string]any{"name": ev.Name, "value": ev.Value}

	handled, err := a.queueMatches(ctx, dc, plan, ev)
	if err != nil || handled {
		return handled, err
	}
	if ev.Name != dialog.EventActivityReceived {
		return false, nil
	}

	act := dc.Turn.Activity()
	if act == nil || act.Type != activity.Message {
		return false, nil
	}
	res, err := a.recognize(ctx, dc, act)
	if err != nil {
		return false, err
	}
	recognized := res.Memory()
	dc.Turn.Turn["recognized"] = recognized

	if intent, _ := res.TopIntent(); intent != recognizers.None {
		handled, err := a.queueMatches(ctx, dc, plan, dialog.Event{Name: dialog.EventRecognizedIntent, Value: recognized})
		if err != nil || handled {
			return handled, err
		}
	}
	return a.queueMatches(ctx, dc, plan, dialog.Event{Name: dialog.EventUnknownIntent, Value: recognized})
}

func (a *Dialog) recognize(ctx context.Context, dc *dialog.Context, act *activity.Activity) (*recognizers.Result, error) {
	if a.Recognizer == nil {
		return recognizers.NoneResult(act.Text), nil
	}
	res, err := a.Recognizer.Recognize(ctx, act)
	if err != nil {
		return nil, fmt.Errorf("dialog %q: recognize: %w", a.ID(), err)
	}
	if res == nil {
		res = recognizers.NoneResult(act.Text)
	}
	intent, _ := res.TopIntent()
	dc.TrackEvent(ctx, TelemetryRecognizeEvent, map[string]string{
		"dialogId":   a.ID(),
		"recognizer": a.Recognizer.ID(),
		"intent":     intent,
		"text":       res.Text,
	})
	return res, nil
}

func (a *Dialog) queueMatches(ctx context.Context, dc *dialog.Context, plan *dialog.Plan, ev dialog.Event) (bool, error) {
	var matches []*Trigger
	for _, t := range a.Triggers {
		ok, err := t.Matches(dc, ev)
		if err != nil {
			return false, err
		}
		if ok {
			matches = append(matches, t)
		}
	}
	if len(matches) == 0 {
		return false, nil
	}
	selected, err := a.selector().Select(ctx, dc, matches)
	if err != nil || len(selected) == 0 {
		return false, err
	}

	steps := make([]*dialog.ActionState, 0, len(selected))
	a.Dialogs()
	for _, t := range selected {
		steps = append(steps, &dialog.ActionState{DialogID: t.Scope().ID()})
		dc.TrackEvent(ctx, TelemetryTriggerEvent, map[string]string{
			"dialogId": a.ID(),
			"trigger":  t.String(),
			"event":    ev.Name,
		})
	}
	plan.Changes = append(plan.Changes, dialog.Change{Type: dialog.InsertActions, Actions: steps})
	return true, nil
}

// continueActions runs plan steps until one waits for input, the plan
// empties or an action ends the dialog.
func (a *Dialog) continueActions(ctx context.Context, dc *dialog.Context, inst *dialog.Instance, plan *dialog.Plan) (dialog.TurnResult, error) {
	// resume carries a signal into the next started step.
	var resume *dialog.Result
	for {
		plan.ApplyChanges()

		if len(plan.Steps) == 0 {
			handled, err := a.processEvent(ctx, dc, inst, plan, dialog.Event{Name: dialog.EventEndOfActions})
			if err != nil {
				return dialog.TurnResult{}, err
			}
			if handled {
				continue
			}
			if !a.AutoEnd {
				return dialog.TurnResult{Status: dialog.StatusWaiting}, nil
			}
			dc.TrackEvent(ctx, TelemetryCompleteEvent, map[string]string{"dialogId": a.ID()})
			return dc.EndDialog(ctx, dialog.Value(inst.State[ResultKey]))
		}

		step := plan.Steps[0]
		child := dc.NewActionContext(a.Dialogs(), step.Stack, &plan.Changes)
		var (
			res dialog.TurnResult
			err error
		)
		switch {
		case resume != nil && step.Started():
			res, err = child.ResumeActiveDialog(ctx, dialog.ReasonEndCalled, *resume)
			resume = nil
		case step.Started():
			res, err = child.ContinueDialog(ctx)
		default:
			res, err = child.BeginDialog(ctx, step.DialogID, step.Options)
		}
		step.Stack = child.Stack
		if err != nil {
			return dialog.TurnResult{}, fmt.Errorf("dialog %q: step %q: %w", a.ID(), step.DialogID, err)
		}

		if req := child.TakeEndRequest(); req != nil {
			return a.onEndRequest(ctx, dc, inst, plan, req)
		}

		switch res.Status {
		case dialog.StatusWaiting:
			return res, nil
		case dialog.StatusPlanChanged:
			if len(plan.Changes) == 0 {
				// The changes belong to an enclosing plan.
				return res, nil
			}
			continue
		case dialog.StatusCancelled:
			plan.Steps, plan.Changes = nil, nil
			return dc.CancelAllDialogs(ctx)
		}

		plan.Steps = plan.Steps[1:]
		if res.Result.IsSignal() {
			if resume, err = a.onSignal(plan, res.Result); err != nil {
				return dialog.TurnResult{}, err
			}
		}
	}
}

func (a *Dialog) onEndRequest(ctx context.Context, dc *dialog.Context, inst *dialog.Instance, plan *dialog.Plan, req *dialog.EndRequest) (dialog.TurnResult, error) {
	switch req.Kind {
	case dialog.EndDialogRequest:
		return dc.EndDialog(ctx, dialog.Value(req.Value))
	case dialog.CancelAllRequest:
		handled, err := a.processEvent(ctx, dc, inst, plan, dialog.Event{Name: dialog.EventCancelDialog})
		if err != nil {
			return dialog.TurnResult{}, err
		}
		if handled {
			plan.Steps = nil
			return a.continueActions(ctx, dc, inst, plan)
		}
		return dc.CancelAllDialogs(ctx)
	case dialog.RepeatRequest:
		return dc.ReplaceDialog(ctx, a.ID(), req.Options)
	}
	return dialog.TurnResult{}, fmt.Errorf("dialog %q: unknown end request %q: %w", a.ID(), req.Kind, dialog.ErrConfiguration)
}

// onSignal applies a control signal that no action scope resolved. Goto
// resumes at a later plan step, or is handed to the next suspended step,
// whose scopes enclose the loop body that raised it. Break and continue
// resolve against the next loop continuation and are ignored outside a
// loop.
func (a *Dialog) onSignal(plan *dialog.Plan, result dialog.Result) (*dialog.Result, error) {
	sig := result.Signal
	switch sig.Command {
	case dialog.CommandGoto:
		for i, step := range plan.Steps {
			if step.DialogID == sig.ActionID {
				plan.Steps = plan.Steps[i:]
				return nil, nil
			}
		}
		for i, step := range plan.Steps {
			if step.Started() && !step.LoopContinuation {
				plan.Steps = plan.Steps[i:]
				return &result, nil
			}
		}
		return nil, fmt.Errorf("dialog %q: goto target %q not found: %w", a.ID(), sig.ActionID, dialog.ErrConfiguration)
	case dialog.CommandBreak:
		if i := nextLoop(plan); i >= 0 {
			plan.Steps = plan.Steps[i+1:]
		}
		return nil, nil
	case dialog.CommandContinue:
		if i := nextLoop(plan); i >= 0 {
			plan.Steps = plan.Steps[i:]
		}
		return nil, nil
	}
	return nil, fmt.Errorf("dialog %q: unknown action scope command %q: %w", a.ID(), sig.Command, dialog.ErrConfiguration)
}

func nextLoop(plan *dialog.Plan) int {
	for i, step := range plan.Steps {
		if step.LoopContinuation {
			return i
		}
	}
	return -1
}

var (
	_ dialog.Container     = (*Dialog)(nil)
	_ dialog.EventHandler  = (*Dialog)(nil)
	_ dialog.Interruptible = (*Dialog)(nil)
	_ dialog.IDSetter      = (*Dialog)(nil)
	_ dialog.Versioned     = (*Dialog)(nil)
)
