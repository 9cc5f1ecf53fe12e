package actions

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/memory"
)

// Assignment is one property/value pair of SetProperties.
type Assignment struct {
	Property expression.StringExpression `yaml:"property"`
	Value    expression.ValueExpression  `yaml:"value"`
}

func (as Assignment) apply(dc *dialog.Context) error {
	path, err := as.Property.Eval(dc)
	if err != nil {
		return fmt.Errorf("evaluate property: %w", err)
	}
	if path == "" {
		return configError("property is required")
	}
	v, err := as.Value.Eval(dc)
	if err != nil {
		return fmt.Errorf("evaluate value for %s: %w", path, err)
	}
	return dc.SetValue(path, v)
}

// SetProperty writes one value to memory.
type SetProperty struct {
	Base `yaml:",inline"`
	Property expression.StringExpression `yaml:"property"`
	Value    expression.ValueExpression  `yaml:"value"`
}

func (a *SetProperty) ID() string {
	return a.idOr(func() string {
		return derivedID("SetProperty", a.Property.String()+"="+a.Value.String())
	})
}

func (a *SetProperty) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	if err := (Assignment{Property: a.Property, Value: a.Value}).apply(dc); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	return dc.EndDialog(ctx, dialog.Result{})
}

// SetProperties writes several values in order.
type SetProperties struct {
	Base `yaml:",inline"`
	Assignments []Assignment `yaml:"assignments"`
}

func (a *SetProperties) ID() string {
	return a.idOr(func() string {
		parts := make([]string, len(a.Assignments))
		for i, as := range a.Assignments {
			parts[i] = as.Property.String()
		}
		return derivedID("SetProperties", strings.Join(parts, ","))
	})
}

func (a *SetProperties) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	for _, as := range a.Assignments {
		if err := as.apply(dc); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
		}
	}
	return dc.EndDialog(ctx, dialog.Result{})
}

// DeleteProperty removes one memory path.
type DeleteProperty struct {
	Base `yaml:",inline"`
	Property expression.StringExpression `yaml:"property"`
}

func (a *DeleteProperty) ID() string {
	return a.idOr(func() string { return derivedID("DeleteProperty", a.Property.String()) })
}

func (a *DeleteProperty) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	path, err := a.Property.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate property: %w", a.ID(), err)
	}
	dc.DeleteValue(path)
	return dc.EndDialog(ctx, dialog.Result{})
}

// DeleteProperties removes several memory paths.
type DeleteProperties struct {
	Base `yaml:",inline"`
	Properties []expression.StringExpression `yaml:"properties"`
}

func (a *DeleteProperties) ID() string {
	return a.idOr(func() string {
		parts := make([]string, len(a.Properties))
		for i, p := range a.Properties {
			parts[i] = p.String()
		}
		return derivedID("DeleteProperties", strings.Join(parts, ","))
	})
}

func (a *DeleteProperties) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	for _, p := range a.Properties {
		path, err := p.Eval(dc)
		if err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: evaluate property: %w", a.ID(), err)
		}
		dc.DeleteValue(path)
	}
	return dc.EndDialog(ctx, dialog.Result{})
}

// ArrayChangeType selects the EditArray operation.
type ArrayChangeType string

const (
	ArrayPush   ArrayChangeType = "push"
	ArrayPop    ArrayChangeType = "pop"
	ArrayTake   ArrayChangeType = "take"
	ArrayRemove ArrayChangeType = "remove"
	ArrayClear  ArrayChangeType = "clear"
)

// EditArray changes the array stored at ItemsProperty. Push and remove
// ignore values that fail to evaluate or are falsy. Pop and take store the
// removed item in ResultProperty; remove and clear store whether anything
// was removed.
type EditArray struct {
	Base `yaml:",inline"`
	ChangeType     ArrayChangeType             `yaml:"changeType"`
	ItemsProperty  expression.StringExpression `yaml:"itemsProperty"`
	Value          expression.ValueExpression  `yaml:"value"`
	ResultProperty expression.StringExpression `yaml:"resultProperty"`
}

func (a *EditArray) ID() string {
	return a.idOr(func() string {
		return derivedID("EditArray", string(a.ChangeType)+": "+a.ItemsProperty.String())
	})
}

func (a *EditArray) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	path, err := a.ItemsProperty.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate itemsProperty: %w", a.ID(), err)
	}
	if path == "" {
		return dialog.TurnResult{}, configError("%s: itemsProperty is required", a.ID())
	}

	raw, _ := dc.GetValue(path)
	list, err := asList(raw)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}

	var result any
	switch a.ChangeType {
	case ArrayPush:
		if v, ok := a.lenientValue(dc); ok {
			list = append(list, v)
		}
	case ArrayPop:
		if n := len(list); n > 0 {
			result = list[n-1]
			list = list[:n-1]
		}
	case ArrayTake:
		if len(list) > 0 {
			result = list[0]
			list = list[1:]
		}
	case ArrayRemove:
		removed := false
		if v, ok := a.lenientValue(dc); ok {
			for i, item := range list {
				if memory.Equal(item, v) {
					list = append(list[:i:i], list[i+1:]...)
					removed = true
					break
				}
			}
		}
		result = removed
	case ArrayClear:
		result = len(list) > 0
		list = []any{}
	default:
		return dialog.TurnResult{}, configError("%s: unknown changeType %q", a.ID(), a.ChangeType)
	}

	if err := dc.SetValue(path, list); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	if !a.ResultProperty.IsEmpty() {
		rp, err := a.ResultProperty.Eval(dc)
		if err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: evaluate resultProperty: %w", a.ID(), err)
		}
		if err := dc.SetValue(rp, result); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
		}
	}
	return dc.EndDialog(ctx, dialog.Value(result))
}

func (a *EditArray) lenientValue(dc *dialog.Context) (any, bool) {
	v, err := a.Value.Eval(dc)
	if err != nil || !memory.Truthy(v) {
		return nil, false
	}
	return v, true
}

func asList(v any) ([]any, error) {
	switch l := v.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return append([]any{}, l...), nil
	}
	if k := reflect.ValueOf(v).Kind(); k != reflect.Slice && k != reflect.Array {
		return nil, fmt.Errorf("value is %T, not an array", v)
	}
	entries, _ := memory.Entries(v)
	out := make([]any, len(entries))
	for i, e := range entries {
		out[i] = e.Value
	}
	return out, nil
}
