// Package actions implements the action nodes of adaptive dialogs: the
// ActionScope sequential executor, control-flow signals, conditional and
// looping composites, and the memory, event and outbound actions.
//
// Every action is a dialog.Dialog. Actions run on the action context of
// the dialog that owns the plan and keep their per-invocation state in the
// "this" memory scope.
package actions

import (
	"context"
	"fmt"
	"hash/fnv"
	"reflect"

	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
)

const maxIDLength = 50

// Base carries the configuration shared by every action.
type Base struct {
	// Explicit id. When empty the id is derived from the configuration.
	IDValue  string                    `yaml:"id"       json:"id,omitempty"`
	Disabled expression.BoolExpression `yaml:"disabled" json:"-"`
}

// SetID fixes the action's id.
func (b *Base) SetID(id string) { b.IDValue = id }

// ExplicitID returns the configured id, empty when the id is derived.
func (b *Base) ExplicitID() string { return b.IDValue }

func (b *Base) idOr(compute func() string) string {
	if b.IDValue != "" {
		return b.IDValue
	}
	return compute()
}

// skipIfDisabled ends the action immediately when its disabled guard is
// true. The boolean reports whether the action was skipped.
func (b *Base) skipIfDisabled(ctx context.Context, dc *dialog.Context) (dialog.TurnResult, bool, error) {
	if b.Disabled.IsEmpty() {
		return dialog.TurnResult{}, false, nil
	}
	disabled, err := b.Disabled.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, true, fmt.Errorf("evaluate disabled: %w", err)
	}
	if !disabled {
		return dialog.TurnResult{}, false, nil
	}
	res, err := dc.EndDialog(ctx, dialog.Result{})
	return res, true, err
}

// ContinueDialog ends the action. Actions that wait for input override it.
func (b *Base) ContinueDialog(ctx context.Context, dc *dialog.Context) (dialog.TurnResult, error) {
	return dc.EndDialog(ctx, dialog.Result{})
}

// ResumeDialog ends the action handing the child's result to the parent.
func (b *Base) ResumeDialog(ctx context.Context, dc *dialog.Context, _ dialog.Reason, result dialog.Result) (dialog.TurnResult, error) {
	return dc.EndDialog(ctx, result)
}

// EndDialog does nothing.
func (b *Base) EndDialog(context.Context, *dialog.Context, *dialog.Instance, dialog.Reason) error {
	return nil
}

// Kind returns the type name of an action, used in derived ids and
// telemetry.
func Kind(d dialog.Dialog) string {
	t := reflect.TypeOf(d)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// ellipsisHash shortens text longer than n to its first n bytes followed by
// "..." and a hash of the whole text.
func ellipsisHash(text string, n int) string {
	if len(text) <= n {
		return text
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%s...%08x", text[:n], h.Sum32())
}

func derivedID(kind, detail string) string {
	return kind + "[" + ellipsisHash(detail, maxIDLength) + "]"
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), dialog.ErrConfiguration)
}
