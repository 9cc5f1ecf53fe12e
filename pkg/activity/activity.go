package activity

import (
	"time"

	"github.com/rs/xid"
)

// Type identifies the kind of activity exchanged with a channel.
type Type string

const (
	Message            Type = "message"
	Event              Type = "event"
	Trace              Type = "trace"
	ConversationUpdate Type = "conversationUpdate"
	EndOfConversation  Type = "endOfConversation"
	Typing             Type = "typing"
)

// ChannelAccount identifies a user or bot on a channel.
type ChannelAccount struct {
	ID   string `json:"id"             yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name"`
	Role string `json:"role,omitempty" yaml:"role"`
}

// ConversationAccount identifies a conversation on a channel.
type ConversationAccount struct {
	ID      string `json:"id"                yaml:"id"`
	Name    string `json:"name,omitempty"    yaml:"name"`
	IsGroup bool   `json:"isGroup,omitempty" yaml:"is_group"`
}

// ConversationReference is the minimal addressing information needed to
// continue a conversation out of band.
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty"`
	User         ChannelAccount      `json:"user"`
	Bot          ChannelAccount      `json:"bot"`
	Conversation ConversationAccount `json:"conversation"`
	ChannelID    string              `json:"channelId"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	Locale       string              `json:"locale,omitempty"`
}

// Activity is a single inbound or outbound exchange on a channel.
type Activity struct {
	ID           string              `json:"id,omitempty"`
	Type         Type                `json:"type"`
	Text         string              `json:"text,omitempty"`
	Speak        string              `json:"speak,omitempty"`
	Locale       string              `json:"locale,omitempty"`
	Name         string              `json:"name,omitempty"`
	Label        string              `json:"label,omitempty"`
	ValueType    string              `json:"valueType,omitempty"`
	Value        any                 `json:"value,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Conversation ConversationAccount `json:"conversation"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	Timestamp    time.Time           `json:"timestamp,omitempty"`
}

// NewID returns a new globally unique activity id.
func NewID() string {
	return xid.New().String()
}

// NewMessage creates an outbound message activity with the given text.
func NewMessage(text string) *Activity {
	return &Activity{Type: Message, Text: text}
}

// NewEvent creates an event activity.
func NewEvent(name string, value any) *Activity {
	return &Activity{Type: Event, Name: name, Value: value}
}

// NewTrace creates a trace activity. Trace activities are only rendered by
// debugging channels.
func NewTrace(name, label, valueType string, value any) *Activity {
	return &Activity{Type: Trace, Name: name, Label: label, ValueType: valueType, Value: value}
}

// ConversationReference returns the addressing information for a.
func (a *Activity) ConversationReference() ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
}

// ApplyReference addresses an outbound activity using ref.
func (a *Activity) ApplyReference(ref ConversationReference) {
	a.ChannelID = ref.ChannelID
	a.ServiceURL = ref.ServiceURL
	a.Conversation = ref.Conversation
	a.From = ref.Bot
	a.Recipient = ref.User
	a.ReplyToID = ref.ActivityID
	if a.Locale == "" {
		a.Locale = ref.Locale
	}
}
