package actions

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/memory"
)

// TelemetryActionEvent is tracked every time a scope begins one of its
// actions.
const TelemetryActionEvent = "AdaptiveDialogAction"

// offsetKey holds the scope's cursor in the "this" memory scope.
const offsetKey = "offset"

// loopHooks lets a looping action built on ActionScope take over what
// happens at the end of the list and on break or continue.
type loopHooks interface {
	onEndOfActions(ctx context.Context, dc *dialog.Context, result dialog.Result) (dialog.TurnResult, error)
	onBreakLoop(ctx context.Context, dc *dialog.Context, result dialog.Result) (dialog.TurnResult, error)
	onContinueLoop(ctx context.Context, dc *dialog.Context, result dialog.Result) (dialog.TurnResult, error)
}

// ActionScope runs a list of actions one at a time. Its cursor lives in
// this.offset and moves forward as children end, or jumps when a child
// ends with a goto signal. Break and continue signals end the scope and
// pass the signal to the parent.
type ActionScope struct {
	Base `yaml:",inline"`
	Actions []dialog.Dialog

	hooks loopHooks
}

// NewActionScope creates a scope over actions.
func NewActionScope(actions ...dialog.Dialog) *ActionScope {
	return &ActionScope{Actions: actions}
}

// ID is derived from the ids of the children.
func (a *ActionScope) ID() string {
	return a.idOr(func() string {
		ids := make([]string, len(a.Actions))
		for i, child := range a.Actions {
			ids[i] = child.ID()
		}
		return derivedID("ActionScope", strings.Join(ids, ","))
	})
}

// Version hashes the versions of the children.
func (a *ActionScope) Version() string {
	h := fnv.New64a()
	for _, child := range a.Actions {
		_, _ = h.Write([]byte(dialog.VersionOf(child)))
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Dependencies returns the children so they are registered with the scope.
func (a *ActionScope) Dependencies() []dialog.Dialog {
	return a.Actions
}

func (a *ActionScope) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	if len(a.Actions) == 0 {
		return dc.EndDialog(ctx, dialog.Result{})
	}
	return a.beginAction(ctx, dc, 0)
}

// ContinueDialog moves to the next action. It runs when the scope was left
// suspended so that queued plan changes could be applied first.
func (a *ActionScope) ContinueDialog(ctx context.Context, dc *dialog.Context) (dialog.TurnResult, error) {
	return a.onNextAction(ctx, dc, dialog.Result{})
}

func (a *ActionScope) ResumeDialog(ctx context.Context, dc *dialog.Context, _ dialog.Reason, result dialog.Result) (dialog.TurnResult, error) {
	if result.IsSignal() {
		return a.onActionScopeResult(ctx, dc, result)
	}
	return a.onNextAction(ctx, dc, result)
}

func (a *ActionScope) onActionScopeResult(ctx context.Context, dc *dialog.Context, result dialog.Result) (dialog.TurnResult, error) {
	switch result.Signal.Command {
	case dialog.CommandGoto:
		return a.onGotoAction(ctx, dc, result)
	case dialog.CommandBreak:
		if a.hooks != nil {
			return a.hooks.onBreakLoop(ctx, dc, result)
		}
		return dc.EndDialog(ctx, result)
	case dialog.CommandContinue:
		if a.hooks != nil {
			return a.hooks.onContinueLoop(ctx, dc, result)
		}
		return dc.EndDialog(ctx, result)
	}
	return dialog.TurnResult{}, configError("unknown action scope command %q", result.Signal.Command)
}

func (a *ActionScope) onGotoAction(ctx context.Context, dc *dialog.Context, result dialog.Result) (dialog.TurnResult, error) {
	target := result.Signal.ActionID
	for i, child := range a.Actions {
		if child.ID() == target {
			return a.beginAction(ctx, dc, i)
		}
	}
	// Not ours: let an enclosing scope, or the plan owner, resolve it.
	if dc.Parent != nil || len(dc.Stack) > 1 {
		return dc.EndDialog(ctx, result)
	}
	return dialog.TurnResult{}, configError("goto target %q not found", target)
}

func (a *ActionScope) onNextAction(ctx context.Context, dc *dialog.Context, result dialog.Result) (dialog.TurnResult, error) {
	if dc.HasPendingChanges() {
		return dialog.TurnResult{Status: dialog.StatusPlanChanged}, nil
	}

	offset := a.offset(dc) + 1
	if offset < len(a.Actions) {
		return a.beginAction(ctx, dc, offset)
	}
	if a.hooks != nil {
		return a.hooks.onEndOfActions(ctx, dc, result)
	}
	return dc.EndDialog(ctx, result)
}

func (a *ActionScope) beginAction(ctx context.Context, dc *dialog.Context, offset int) (dialog.TurnResult, error) {
	state := dc.ThisState()
	if state == nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: scope is not on the stack", a.ID())
	}
	state[offsetKey] = offset

	if offset < 0 || offset >= len(a.Actions) {
		return dc.EndDialog(ctx, dialog.Result{})
	}

	action := a.Actions[offset]
	dc.TrackEvent(ctx, TelemetryActionEvent, map[string]string{
		"dialogId":      action.ID(),
		"kind":          Kind(action),
		"actionScopeId": a.ID(),
	})
	return dc.BeginDialog(ctx, action.ID(), nil)
}

func (a *ActionScope) offset(dc *dialog.Context) int {
	n, _ := memory.ToInt(dc.ThisState()[offsetKey])
	return n
}
