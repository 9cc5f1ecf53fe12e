package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/memory"
)

// EmitEvent raises a dialog event. The event starts at the context that
// runs the plan, so the owning adaptive dialog's triggers see it first.
// The action's result is whether some dialog handled the event.
type EmitEvent struct {
	Base `yaml:",inline"`
	EventName       expression.StringExpression `yaml:"eventName"`
	EventValue      expression.ValueExpression  `yaml:"eventValue"`
	BubbleEvent     expression.BoolExpression   `yaml:"bubbleEvent"`
	HandledProperty expression.StringExpression `yaml:"handledProperty"`
}

func (a *EmitEvent) ID() string {
	return a.idOr(func() string { return derivedID("EmitEvent", a.EventName.String()) })
}

func (a *EmitEvent) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	name, err := a.EventName.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate eventName: %w", a.ID(), err)
	}
	if name == "" {
		return dialog.TurnResult{}, configError("%s: eventName is required", a.ID())
	}
	value, err := a.EventValue.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate eventValue: %w", a.ID(), err)
	}
	bubble, err := a.BubbleEvent.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate bubbleEvent: %w", a.ID(), err)
	}

	target := dc
	if dc.Parent != nil {
		target = dc.Parent
	}
	handled, err := target.EmitEvent(ctx, name, value, bubble)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}

	if !a.HandledProperty.IsEmpty() {
		path, err := a.HandledProperty.Eval(dc)
		if err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: evaluate handledProperty: %w", a.ID(), err)
		}
		if err := dc.SetValue(path, handled); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
		}
	}
	return dc.EndDialog(ctx, dialog.Value(handled))
}

// SendActivity renders a template and sends it as a message. The result is
// the id the adapter assigned.
type SendActivity struct {
	Base `yaml:",inline"`
	Text  string `yaml:"activity"`
	Speak string `yaml:"speak"`
}

func (a *SendActivity) ID() string {
	return a.idOr(func() string { return derivedID("SendActivity", a.Text) })
}

func (a *SendActivity) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	text, err := a.render(ctx, dc, a.Text)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	msg := activity.NewMessage(text)
	if a.Speak != "" {
		if msg.Speak, err = a.render(ctx, dc, a.Speak); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
		}
	}
	if dc.Turn.Adapter == nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: no adapter for this turn", a.ID())
	}
	id, err := dc.Turn.Adapter.SendActivity(ctx, msg)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: send: %w", a.ID(), err)
	}
	return dc.EndDialog(ctx, dialog.Value(id))
}

func (a *SendActivity) render(ctx context.Context, dc *dialog.Context, tmpl string) (string, error) {
	out, err := dc.Generate(ctx, tmpl)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return expression.Interpolate(dc, out)
}

// TraceActivity sends a trace activity for debugging channels. Without a
// configured value the trace carries a snapshot of memory.
type TraceActivity struct {
	Base `yaml:",inline"`
	Name      expression.StringExpression `yaml:"name"`
	ValueType expression.StringExpression `yaml:"valueType"`
	Value     expression.ValueExpression  `yaml:"value"`
	Label     expression.StringExpression `yaml:"label"`
}

func (a *TraceActivity) ID() string {
	return a.idOr(func() string { return derivedID("TraceActivity", a.Name.String()) })
}

func (a *TraceActivity) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	name, err := a.Name.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate name: %w", a.ID(), err)
	}
	if name == "" {
		name = "Trace"
	}
	valueType, err := a.ValueType.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate valueType: %w", a.ID(), err)
	}
	if valueType == "" {
		valueType = "Memory"
	}
	label, err := a.Label.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate label: %w", a.ID(), err)
	}

	var value any
	if a.Value.IsEmpty() {
		value = snapshot(dc)
	} else if value, err = a.Value.Eval(dc); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate value: %w", a.ID(), err)
	}

	trace := activity.NewTrace(name, label, valueType, value)
	if err := sendAll(ctx, dc, []*activity.Activity{trace}); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	return dc.EndDialog(ctx, dialog.Value(trace))
}

// LogAction writes a rendered message to the structured log and, when
// TraceActivity is set, also sends it as a trace activity.
type LogAction struct {
	Base `yaml:",inline"`
	Text          string                    `yaml:"text"`
	Label         string                    `yaml:"label"`
	TraceActivity expression.BoolExpression `yaml:"traceActivity"`
}

func (a *LogAction) ID() string {
	return a.idOr(func() string { return derivedID("LogAction", a.Text) })
}

func (a *LogAction) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	text, err := dc.Generate(ctx, a.Text)
	if err == nil {
		text, err = expression.Interpolate(dc, text)
	}
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}

	slog.InfoContext(ctx, text,
		slog.String("conversation_id", dc.Turn.ConversationID),
		slog.String("action", a.ID()))

	trace, err := a.TraceActivity.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate traceActivity: %w", a.ID(), err)
	}
	if trace {
		act := activity.NewTrace("LogAction", a.Label, "string", text)
		if err := sendAll(ctx, dc, []*activity.Activity{act}); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
		}
	}
	return dc.EndDialog(ctx, dialog.Value(text))
}

// snapshot copies the memory scopes visible to dc.
func snapshot(dc *dialog.Context) map[string]any {
	out := make(map[string]any)
	for name, scope := range dc.Scopes() {
		out[name] = memory.Clone(scope)
	}
	return out
}
