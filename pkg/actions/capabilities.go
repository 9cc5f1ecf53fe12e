package actions

import (
	"context"
	"fmt"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/memory"
)

// GetConversationMembers stores the members of the conversation. The
// adapter must implement activity.MembersProvider.
type GetConversationMembers struct {
	Base `yaml:",inline"`
	Property expression.StringExpression `yaml:"property"`
}

func (a *GetConversationMembers) ID() string {
	return a.idOr(func() string { return derivedID("GetConversationMembers", a.Property.String()) })
}

func (a *GetConversationMembers) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	provider, ok := dc.Turn.Adapter.(activity.MembersProvider)
	if !ok {
		return dialog.TurnResult{}, fmt.Errorf("%s: conversation members: %w", a.ID(), activity.ErrUnsupported)
	}
	members, err := provider.ConversationMembers(ctx)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	value, err := memory.Normalize(members)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	if !a.Property.IsEmpty() {
		path, err := a.Property.Eval(dc)
		if err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: evaluate property: %w", a.ID(), err)
		}
		if err := dc.SetValue(path, value); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
		}
	}
	return dc.EndDialog(ctx, dialog.Value(value))
}

// SignOutUser signs the user out of an OAuth connection. The adapter must
// implement activity.SignOutProvider. UserID defaults to the sender of the
// inbound activity.
type SignOutUser struct {
	Base `yaml:",inline"`
	ConnectionName expression.StringExpression `yaml:"connectionName"`
	UserID         expression.StringExpression `yaml:"userId"`
}

func (a *SignOutUser) ID() string {
	return a.idOr(func() string { return derivedID("SignOutUser", a.ConnectionName.String()) })
}

func (a *SignOutUser) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	provider, ok := dc.Turn.Adapter.(activity.SignOutProvider)
	if !ok {
		return dialog.TurnResult{}, fmt.Errorf("%s: sign out: %w", a.ID(), activity.ErrUnsupported)
	}
	conn, err := a.ConnectionName.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate connectionName: %w", a.ID(), err)
	}
	user, err := a.UserID.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate userId: %w", a.ID(), err)
	}
	if user == "" {
		if act := dc.Turn.Activity(); act != nil {
			user = act.From.ID
		}
	}
	if err := provider.SignOutUser(ctx, conn, user); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	return dc.EndDialog(ctx, dialog.Result{})
}
