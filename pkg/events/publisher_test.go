package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeSerialization(t *testing.T) {
	data := &DialogData{
		DialogID: "root",
		Status:   "complete",
	}

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}

	env := Envelope{
		ID:             "test-id",
		Type:           DialogCompleted,
		Source:         "dialog",
		ConversationID: "conv-123",
		Timestamp:      time.Now().UTC(),
		Data:           raw,
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	if decoded.Type != DialogCompleted {
		t.Errorf("type = %q, want %q", decoded.Type, DialogCompleted)
	}
	if decoded.ConversationID != "conv-123" {
		t.Errorf("conversation_id = %q, want %q", decoded.ConversationID, "conv-123")
	}

	var payload DialogData
	if err := json.Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.DialogID != "root" {
		t.Errorf("dialog_id = %q, want %q", payload.DialogID, "root")
	}
}

func TestEventTypeConstants(t *testing.T) {
	types := []EventType{
		TurnStarted, TurnCompleted,
		DialogStarted, DialogCompleted,
		HTTPRequestSent, HTTPRequestFailed,
		TelemetryEvent, DialogsReloaded, SystemError,
	}

	seen := make(map[EventType]bool)
	for _, et := range types {
		if et == "" {
			t.Error("empty event type constant")
		}
		if seen[et] {
			t.Errorf("duplicate event type: %q", et)
		}
		seen[et] = true
	}
}

func TestLocalSubscribersReceiveTelemetry(t *testing.T) {
	p := NewPublisher(nil, "dialog", "")
	ch := p.Subscribe("test", 4)
	defer p.Unsubscribe("test")

	p.TrackEvent(context.Background(), "AdaptiveDialogAction", map[string]string{
		ConversationProperty: "conv-1",
		"actionId":           "SendActivity['hi']",
	})

	select {
	case env := <-ch:
		if env.Type != TelemetryEvent {
			t.Errorf("type = %q, want %q", env.Type, TelemetryEvent)
		}
		if env.ConversationID != "conv-1" {
			t.Errorf("conversation_id = %q", env.ConversationID)
		}
		var data TelemetryData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if data.Name != "AdaptiveDialogAction" {
			t.Errorf("name = %q", data.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	p := NewPublisher(nil, "dialog", "")
	ch := p.Subscribe("a", 0)
	p.Unsubscribe("a")
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
}

func TestSubscribeFiltersByType(t *testing.T) {
	p := NewPublisher(nil, "dialog", "")
	reloads := p.Subscribe("reloads", 4, DialogsReloaded)
	all := p.Subscribe("all", 4)
	defer p.Unsubscribe("reloads")
	defer p.Unsubscribe("all")

	ctx := t.Context()
	if err := p.Emit(ctx, TurnStarted, "c1", TurnData{}); err != nil {
		t.Fatalf("emit turn: %v", err)
	}
	if err := p.Emit(ctx, DialogsReloaded, "", ReloadData{Dialogs: []string{"main"}}); err != nil {
		t.Fatalf("emit reload: %v", err)
	}

	if env := <-reloads; env.Type != DialogsReloaded {
		t.Errorf("filtered subscriber got %q", env.Type)
	}
	if len(reloads) != 0 {
		t.Errorf("filtered subscriber has %d extra events", len(reloads))
	}
	if len(all) != 2 {
		t.Errorf("unfiltered subscriber has %d events, want 2", len(all))
	}
}

func TestEmitDropsWhenSubscriberFull(t *testing.T) {
	p := NewPublisher(nil, "dialog", "")
	ch := p.Subscribe("slow", 1)
	defer p.Unsubscribe("slow")

	for range 3 {
		if err := p.Emit(t.Context(), SystemError, "c1", TelemetryData{Name: "boom"}); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}
	if len(ch) != 1 {
		t.Errorf("buffered = %d, want 1", len(ch))
	}
	if p.Dropped() != 2 {
		t.Errorf("Dropped() = %d, want 2", p.Dropped())
	}
}

func TestEmitRejectsUnencodableData(t *testing.T) {
	p := NewPublisher(nil, "dialog", "")
	if err := p.Emit(t.Context(), SystemError, "c1", make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}
