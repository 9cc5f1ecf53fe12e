package declarative

import (
	"fmt"
	"strings"

	"github.com/voicetyped/adaptive/pkg/actions"
	"github.com/voicetyped/adaptive/pkg/adaptive"
	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
)

type explicitID interface {
	ExplicitID() string
}

// Validate checks a dialog definition for consistency: explicit action ids
// are unique, required properties are present and every literal goto
// target names an action of the dialog.
func Validate(d *adaptive.Dialog) error {
	if d.ID() == "" {
		return fmt.Errorf("dialog: id is required: %w", dialog.ErrConfiguration)
	}

	// Explicit ids are checked before registration renames duplicates.
	seen := make(map[string]bool)
	var errs []string
	for i, t := range d.Triggers {
		walk(t.Actions, func(a dialog.Dialog) {
			e, ok := a.(explicitID)
			if !ok || e.ExplicitID() == "" {
				return
			}
			if seen[e.ExplicitID()] {
				errs = append(errs, fmt.Sprintf("trigger %d: duplicate action id %q", i, e.ExplicitID()))
			}
			seen[e.ExplicitID()] = true
		})
	}
	if len(errs) > 0 {
		return invalid(d, errs)
	}

	ids := make(map[string]bool)
	for _, id := range d.Dialogs().IDs() {
		ids[id] = true
	}
	for i, t := range d.Triggers {
		if t.Event == "" {
			errs = append(errs, fmt.Sprintf("trigger %d: event is required", i))
		}
		walk(t.Actions, func(a dialog.Dialog) {
			if msg := required(a); msg != "" {
				errs = append(errs, fmt.Sprintf("trigger %d: %s: %s", i, a.ID(), msg))
			}
			g, ok := a.(*actions.GotoAction)
			if !ok {
				return
			}
			if target, ok := literal(g.ActionID); ok && !ids[target] {
				errs = append(errs, fmt.Sprintf("trigger %d: goto target %q not found", i, target))
			}
		})
	}
	if len(errs) > 0 {
		return invalid(d, errs)
	}
	return nil
}

// CheckReferences verifies that every literal BeginDialog target names a
// dialog in known or a component of the dialog that begins it.
func CheckReferences(dialogs map[string]*adaptive.Dialog) error {
	for id, d := range dialogs {
		for _, t := range d.Triggers {
			var err error
			walk(t.Actions, func(a dialog.Dialog) {
				b, ok := a.(*actions.BeginDialog)
				if !ok || err != nil {
					return
				}
				target, ok := literal(b.Dialog)
				if !ok {
					return
				}
				if _, loaded := dialogs[target]; loaded || d.Dialogs().Find(target) != nil {
					return
				}
				err = fmt.Errorf("dialog %q: begin dialog %q not found: %w", id, target, dialog.ErrConfiguration)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func invalid(d *adaptive.Dialog, errs []string) error {
	return fmt.Errorf("dialog %q: %s: %w", d.ID(), strings.Join(errs, "; "), dialog.ErrConfiguration)
}

// walk visits every action of the tree depth first.
func walk(ds []dialog.Dialog, visit func(dialog.Dialog)) {
	for _, d := range ds {
		visit(d)
		if dp, ok := d.(dialog.DependencyProvider); ok {
			walk(dp.Dependencies(), visit)
		}
	}
}

// literal returns the value of a string expression that needs no
// evaluation.
func literal(s expression.StringExpression) (string, bool) {
	raw := s.String()
	if raw == "" || expression.IsExpression(raw) || strings.Contains(raw, "${") {
		return "", false
	}
	return raw, true
}

func required(a dialog.Dialog) string {
	switch a := a.(type) {
	case *actions.SetProperty:
		if a.Property.IsEmpty() {
			return "property is required"
		}
	case *actions.DeleteProperty:
		if a.Property.IsEmpty() {
			return "property is required"
		}
	case *actions.EditArray:
		if a.ItemsProperty.IsEmpty() {
			return "itemsProperty is required"
		}
		switch a.ChangeType {
		case actions.ArrayPush, actions.ArrayPop, actions.ArrayTake, actions.ArrayRemove, actions.ArrayClear:
		default:
			return fmt.Sprintf("unknown changeType %q", a.ChangeType)
		}
	case *actions.GotoAction:
		if a.ActionID.IsEmpty() {
			return "actionId is required"
		}
	case *actions.BeginDialog:
		if a.Dialog.IsEmpty() {
			return "dialog is required"
		}
	case *actions.EmitEvent:
		if a.EventName.IsEmpty() {
			return "eventName is required"
		}
	case *actions.ForEach:
		if a.ItemsProperty == "" {
			return "itemsProperty is required"
		}
	case *actions.ForEachPage:
		if a.ItemsProperty == "" {
			return "itemsProperty is required"
		}
	case *actions.HTTPRequest:
		if a.URL.IsEmpty() {
			return "url is required"
		}
	}
	return ""
}
