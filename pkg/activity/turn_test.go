package activity

import (
	"testing"
)

func TestBufferedTurnAddressesReplies(t *testing.T) {
	in := &Activity{
		ID:           "in-1",
		Type:         Message,
		Text:         "hi",
		Locale:       "en-us",
		ChannelID:    "test",
		From:         ChannelAccount{ID: "user-1"},
		Recipient:    ChannelAccount{ID: "bot"},
		Conversation: ConversationAccount{ID: "conv-1"},
	}
	turn := NewBufferedTurn(in)

	id, err := turn.SendActivity(t.Context(), NewMessage("hello"))
	if err != nil {
		t.Fatalf("SendActivity: %v", err)
	}
	if id == "" {
		t.Error("expected generated activity id")
	}

	replies := turn.Replies()
	if len(replies) != 1 {
		t.Fatalf("replies = %d, want 1", len(replies))
	}
	r := replies[0]
	if r.Recipient.ID != "user-1" {
		t.Errorf("recipient = %q, want %q", r.Recipient.ID, "user-1")
	}
	if r.From.ID != "bot" {
		t.Errorf("from = %q, want %q", r.From.ID, "bot")
	}
	if r.ReplyToID != "in-1" {
		t.Errorf("replyToId = %q, want %q", r.ReplyToID, "in-1")
	}
	if r.Locale != "en-us" {
		t.Errorf("locale = %q, want %q", r.Locale, "en-us")
	}
}

func TestMemberTurnCapability(t *testing.T) {
	var turn TurnContext = &MemberTurn{
		BufferedTurn: NewBufferedTurn(&Activity{Type: Message}),
		Members:      []ChannelAccount{{ID: "a"}, {ID: "b"}},
	}

	mp, ok := turn.(MembersProvider)
	if !ok {
		t.Fatal("MemberTurn should implement MembersProvider")
	}
	members, err := mp.ConversationMembers(t.Context())
	if err != nil {
		t.Fatalf("ConversationMembers: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("members = %d, want 2", len(members))
	}

	if _, ok := any(NewBufferedTurn(&Activity{})).(MembersProvider); ok {
		t.Error("BufferedTurn should not implement MembersProvider")
	}
}
