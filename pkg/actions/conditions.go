package actions

import (
	"context"
	"fmt"
	"hash/fnv"

	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
)

// IfCondition replaces itself with one of two scopes depending on a
// condition. Control signals from the chosen scope reach the If's parent
// directly.
type IfCondition struct {
	Base `yaml:",inline"`
	Condition   expression.BoolExpression
	Actions     []dialog.Dialog
	ElseActions []dialog.Dialog

	trueScope  *ActionScope
	falseScope *ActionScope
}

// NewIfCondition creates the action and both of its scopes.
func NewIfCondition(condition expression.BoolExpression, actions, elseActions []dialog.Dialog) *IfCondition {
	return &IfCondition{
		Condition:   condition,
		Actions:     actions,
		ElseActions: elseActions,
		trueScope:   NewActionScope(actions...),
		falseScope:  NewActionScope(elseActions...),
	}
}

func (a *IfCondition) ID() string {
	return a.idOr(func() string {
		return derivedID("IfCondition", a.Condition.String())
	})
}

func (a *IfCondition) Version() string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(a.Condition.String()))
	_, _ = h.Write([]byte(a.trueScope.Version()))
	_, _ = h.Write([]byte(a.falseScope.Version()))
	return fmt.Sprintf("%016x", h.Sum64())
}

func (a *IfCondition) Dependencies() []dialog.Dialog {
	return []dialog.Dialog{a.trueScope, a.falseScope}
}

func (a *IfCondition) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}

	ok, err := a.Condition.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate condition: %w", a.ID(), err)
	}
	switch {
	case ok:
		return dc.ReplaceDialog(ctx, a.trueScope.ID(), nil)
	case len(a.ElseActions) > 0:
		return dc.ReplaceDialog(ctx, a.falseScope.ID(), nil)
	}
	return dc.EndDialog(ctx, dialog.Result{})
}

// Case is one branch of a SwitchCondition.
type Case struct {
	Value   string
	Actions []dialog.Dialog
}

// SwitchCondition evaluates a subject once and replaces itself with the
// scope of the matching case. Every case is checked and the last match
// wins. Without a match the default scope runs.
type SwitchCondition struct {
	Base `yaml:",inline"`
	Condition expression.Expression
	Cases     []Case
	Default   []dialog.Dialog

	matchers     []expression.Matcher
	caseScopes   []*ActionScope
	defaultScope *ActionScope
}

// NewSwitchCondition creates the action, its case matchers and its scopes.
func NewSwitchCondition(condition expression.Expression, cases []Case, def []dialog.Dialog) *SwitchCondition {
	a := &SwitchCondition{
		Condition:    condition,
		Cases:        cases,
		Default:      def,
		defaultScope: NewActionScope(def...),
	}
	for _, c := range cases {
		a.matchers = append(a.matchers, expression.EqualTo(c.Value))
		a.caseScopes = append(a.caseScopes, NewActionScope(c.Actions...))
	}
	return a
}

func (a *SwitchCondition) ID() string {
	return a.idOr(func() string {
		return derivedID("SwitchCondition", a.Condition.String())
	})
}

func (a *SwitchCondition) Version() string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(a.Condition.String()))
	for i, s := range a.caseScopes {
		_, _ = h.Write([]byte(a.matchers[i].String()))
		_, _ = h.Write([]byte(s.Version()))
	}
	_, _ = h.Write([]byte(a.defaultScope.Version()))
	return fmt.Sprintf("%016x", h.Sum64())
}

func (a *SwitchCondition) Dependencies() []dialog.Dialog {
	deps := make([]dialog.Dialog, 0, len(a.caseScopes)+1)
	for _, s := range a.caseScopes {
		deps = append(deps, s)
	}
	return append(deps, a.defaultScope)
}

func (a *SwitchCondition) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	if a.Condition.IsEmpty() {
		return dialog.TurnResult{}, configError("%s: condition is required", a.ID())
	}

	subject, err := a.Condition.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate condition: %w", a.ID(), err)
	}

	selected := a.defaultScope
	for i, m := range a.matchers {
		if m.Match(subject) {
			selected = a.caseScopes[i]
		}
	}
	return dc.ReplaceDialog(ctx, selected.ID(), nil)
}
