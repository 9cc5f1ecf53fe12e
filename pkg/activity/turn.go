package activity

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnsupported is returned when the channel adapter behind a turn does not
// provide an optional capability.
var ErrUnsupported = errors.New("operation not supported by channel adapter")

// TurnContext is the view of one inbound activity that the dialog runtime
// works against.
type TurnContext interface {
	Activity() *Activity
	SendActivity(ctx context.Context, a *Activity) (string, error)
}

// MembersProvider is implemented by adapters that can list the members of
// the current conversation.
type MembersProvider interface {
	ConversationMembers(ctx context.Context) ([]ChannelAccount, error)
}

// SignOutProvider is implemented by adapters that manage user tokens.
type SignOutProvider interface {
	SignOutUser(ctx context.Context, connectionName, userID string) error
}

// BufferedTurn is a TurnContext that collects outbound activities in memory.
// It is used by request/response transports that return replies in bulk.
type BufferedTurn struct {
	activity *Activity

	mu      sync.Mutex
	replies []*Activity
}

// NewBufferedTurn creates a turn for the inbound activity a.
func NewBufferedTurn(a *Activity) *BufferedTurn {
	return &BufferedTurn{activity: a}
}

// Activity returns the inbound activity.
func (t *BufferedTurn) Activity() *Activity {
	return t.activity
}

// SendActivity addresses a as a reply to the inbound activity and buffers it.
func (t *BufferedTurn) SendActivity(_ context.Context, a *Activity) (string, error) {
	out := *a
	out.ApplyReference(t.activity.ConversationReference())
	if out.ID == "" {
		out.ID = NewID()
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}

	t.mu.Lock()
	t.replies = append(t.replies, &out)
	t.mu.Unlock()
	return out.ID, nil
}

// Replies returns a snapshot of the buffered outbound activities.
func (t *BufferedTurn) Replies() []*Activity {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := make([]*Activity, len(t.replies))
	copy(cp, t.replies)
	return cp
}

// MemberTurn is a BufferedTurn whose adapter knows the conversation roster.
type MemberTurn struct {
	*BufferedTurn
	Members []ChannelAccount
}

// ConversationMembers returns the configured roster.
func (t *MemberTurn) ConversationMembers(context.Context) ([]ChannelAccount, error) {
	cp := make([]ChannelAccount, len(t.Members))
	copy(cp, t.Members)
	return cp, nil
}
