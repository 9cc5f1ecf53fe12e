package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	TurnStarted       EventType = "turn.started"
	TurnCompleted     EventType = "turn.completed"
	DialogStarted     EventType = "dialog.started"
	DialogCompleted   EventType = "dialog.completed"
	HTTPRequestSent   EventType = "http.request"
	HTTPRequestFailed EventType = "http.error"
	TelemetryEvent    EventType = "telemetry.event"
	DialogsReloaded   EventType = "dialogs.reloaded"
	SystemError       EventType = "error"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID             string            `json:"id"`
	Type           EventType         `json:"type"`
	Source         string            `json:"source"`
	ConversationID string            `json:"conversation_id"`
	Timestamp      time.Time         `json:"timestamp"`
	Data           json.RawMessage   `json:"data"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// TurnData is the payload for turn.started and turn.completed events.
type TurnData struct {
	ActivityType string `json:"activity_type"`
	Text         string `json:"text,omitempty"`
	Status       string `json:"status,omitempty"`
	Replies      int    `json:"replies,omitempty"`
}

// DialogData is the payload for dialog.started and dialog.completed events.
type DialogData struct {
	DialogID string `json:"dialog_id"`
	Status   string `json:"status,omitempty"`
}

// HTTPRequestData is the payload for http.request events.
type HTTPRequestData struct {
	Method     string `json:"method"`
	URL        string `json:"url"`
	StatusCode int    `json:"status_code"`
}

// HTTPErrorData is the payload for http.error events.
type HTTPErrorData struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Error  string `json:"error"`
}

// TelemetryData is the payload for telemetry.event events.
type TelemetryData struct {
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

// ReloadData is the payload for dialogs.reloaded events.
type ReloadData struct {
	Dialogs []string `json:"dialogs"`
}
