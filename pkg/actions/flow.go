package actions

import (
	"context"
	"fmt"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
)

// GotoAction ends with a goto signal for the enclosing scope.
type GotoAction struct {
	Base `yaml:",inline"`
	ActionID expression.StringExpression `yaml:"actionId"`
}

// NewGotoAction creates a goto to actionID.
func NewGotoAction(actionID string) *GotoAction {
	return &GotoAction{ActionID: expression.NewString(actionID)}
}

func (a *GotoAction) ID() string {
	return a.idOr(func() string { return derivedID("GotoAction", a.ActionID.String()) })
}

func (a *GotoAction) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	target, err := a.ActionID.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate actionId: %w", a.ID(), err)
	}
	if target == "" {
		return dialog.TurnResult{}, configError("%s: actionId is required", a.ID())
	}
	return dc.EndDialog(ctx, dialog.Goto(target))
}

// BreakLoop ends with a break signal.
type BreakLoop struct {
	Base `yaml:",inline"`
}

func (a *BreakLoop) ID() string {
	return a.idOr(func() string { return "BreakLoop[]" })
}

func (a *BreakLoop) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	return dc.EndDialog(ctx, dialog.Break())
}

// ContinueLoop ends with a continue signal.
type ContinueLoop struct {
	Base `yaml:",inline"`
}

func (a *ContinueLoop) ID() string {
	return a.idOr(func() string { return "ContinueLoop[]" })
}

func (a *ContinueLoop) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	return dc.EndDialog(ctx, dialog.Continue())
}

// EndTurn waits for the next message. The message text becomes the
// action's result and is stored in Property when one is set.
type EndTurn struct {
	Base `yaml:",inline"`
	Property          expression.StringExpression `yaml:"property"`
	AllowInterruption expression.BoolExpression   `yaml:"allowInterruptions"`
}

func (a *EndTurn) ID() string {
	return a.idOr(func() string { return derivedID("EndTurn", a.Property.String()) })
}

func (a *EndTurn) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	return dialog.TurnResult{Status: dialog.StatusWaiting}, nil
}

func (a *EndTurn) ContinueDialog(ctx context.Context, dc *dialog.Context) (dialog.TurnResult, error) {
	act := dc.Turn.Activity()
	if act == nil || act.Type != activity.Message || dc.Turn.Turn[TurnInterrupted] == true {
		return dialog.TurnResult{Status: dialog.StatusWaiting}, nil
	}
	if !a.Property.IsEmpty() {
		path, err := a.Property.Eval(dc)
		if err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: evaluate property: %w", a.ID(), err)
		}
		if err := dc.SetValue(path, act.Text); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
		}
	}
	return dc.EndDialog(ctx, dialog.Value(act.Text))
}

// AllowInterruptions lets other triggers run before the awaited message is
// consumed.
func (a *EndTurn) AllowInterruptions(_ context.Context, dc *dialog.Context) (bool, error) {
	return a.AllowInterruption.Eval(dc)
}

// TurnInterrupted is set in the turn scope when the inbound message was
// handled by another trigger while an action waited for input.
const TurnInterrupted = "interrupted"

// EndDialog ends the dialog that owns the running plan, returning Value.
type EndDialog struct {
	Base `yaml:",inline"`
	Value expression.ValueExpression `yaml:"value"`
}

func (a *EndDialog) ID() string {
	return a.idOr(func() string { return derivedID("EndDialog", a.Value.String()) })
}

func (a *EndDialog) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	v, err := a.Value.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate value: %w", a.ID(), err)
	}
	if dc.RequestEnd(dialog.EndRequest{Kind: dialog.EndDialogRequest, Value: v}) {
		return dialog.TurnResult{Status: dialog.StatusComplete, Result: dialog.Value(v)}, nil
	}
	return dc.EndDialog(ctx, dialog.Value(v))
}

// CancelAllDialogs cancels the stack the owning dialog runs on.
type CancelAllDialogs struct {
	Base `yaml:",inline"`
}

func (a *CancelAllDialogs) ID() string {
	return a.idOr(func() string { return "CancelAllDialogs[]" })
}

func (a *CancelAllDialogs) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	if dc.RequestEnd(dialog.EndRequest{Kind: dialog.CancelAllRequest}) {
		return dialog.TurnResult{Status: dialog.StatusCancelled}, nil
	}
	return dc.CancelAllDialogs(ctx)
}

// RepeatDialog restarts the owning dialog with new options.
type RepeatDialog struct {
	Base `yaml:",inline"`
	Options expression.ValueExpression `yaml:"options"`
}

func (a *RepeatDialog) ID() string {
	return a.idOr(func() string { return derivedID("RepeatDialog", a.Options.String()) })
}

func (a *RepeatDialog) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	opts, err := a.Options.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate options: %w", a.ID(), err)
	}
	if !dc.RequestEnd(dialog.EndRequest{Kind: dialog.RepeatRequest, Options: opts}) {
		return dialog.TurnResult{}, configError("%s: must run inside an adaptive dialog", a.ID())
	}
	return dialog.TurnResult{Status: dialog.StatusComplete}, nil
}

// BeginDialog starts another dialog and ends with its result.
type BeginDialog struct {
	Base `yaml:",inline"`
	Dialog         expression.StringExpression `yaml:"dialog"`
	Options        expression.ValueExpression  `yaml:"options"`
	ResultProperty expression.StringExpression `yaml:"resultProperty"`
}

func (a *BeginDialog) ID() string {
	return a.idOr(func() string { return derivedID("BeginDialog", a.Dialog.String()) })
}

func (a *BeginDialog) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	id, err := a.Dialog.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate dialog: %w", a.ID(), err)
	}
	if id == "" {
		return dialog.TurnResult{}, configError("%s: dialog is required", a.ID())
	}
	opts, err := a.Options.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate options: %w", a.ID(), err)
	}
	return dc.BeginDialog(ctx, id, opts)
}

func (a *BeginDialog) ResumeDialog(ctx context.Context, dc *dialog.Context, _ dialog.Reason, result dialog.Result) (dialog.TurnResult, error) {
	if !a.ResultProperty.IsEmpty() {
		path, err := a.ResultProperty.Eval(dc)
		if err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: evaluate resultProperty: %w", a.ID(), err)
		}
		if err := dc.SetValue(path, result.Value); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
		}
	}
	// Signals do not cross dialog boundaries.
	return dc.EndDialog(ctx, dialog.Value(result.Value))
}
