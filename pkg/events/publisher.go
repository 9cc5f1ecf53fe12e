package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pitabwire/frame/queue"
	"github.com/pitabwire/util"
	"github.com/rs/xid"
)

// ConversationProperty is the telemetry property carrying the conversation
// an event belongs to.
const ConversationProperty = "conversationId"

// Publisher emits dialog runtime events onto the frame queue and to any
// in-process subscribers. A publisher without a queue manager only fans out
// locally.
type Publisher struct {
	queueMgr queue.Manager
	source   string
	queueRef string

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	dropped     atomic.Int64
}

type subscriber struct {
	ch    chan Envelope
	types map[EventType]bool
}

func (s *subscriber) wants(t EventType) bool {
	return len(s.types) == 0 || s.types[t]
}

// NewPublisher creates a publisher stamping envelopes with source and
// publishing them to queueRef.
func NewPublisher(queueMgr queue.Manager, source string, queueRef string) *Publisher {
	return &Publisher{
		queueMgr:    queueMgr,
		source:      source,
		queueRef:    queueRef,
		subscribers: make(map[string]*subscriber),
	}
}

// Emit wraps data in an envelope for the conversation and publishes it.
// Local delivery never blocks; a full subscriber misses the event.
func (p *Publisher) Emit(ctx context.Context, eventType EventType, conversationID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	envelope := Envelope{
		ID:             xid.New().String(),
		Type:           eventType,
		Source:         p.source,
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
		Data:           raw,
	}

	p.mu.RLock()
	for id, sub := range p.subscribers {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- envelope:
		default:
			p.dropped.Add(1)
			slog.WarnContext(ctx, "event dropped: subscriber buffer full",
				slog.String("subscriber", id), slog.String("event_type", string(eventType)))
		}
	}
	p.mu.RUnlock()

	if p.queueMgr == nil {
		return nil
	}
	if err := p.queueMgr.Publish(ctx, p.queueRef, envelope); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}
	return nil
}

// TrackEvent publishes a telemetry event, so the publisher can serve as a
// telemetry client. Publish failures are logged.
func (p *Publisher) TrackEvent(ctx context.Context, name string, properties map[string]string) {
	data := TelemetryData{Name: name, Properties: properties}
	if err := p.Emit(ctx, TelemetryEvent, properties[ConversationProperty], data); err != nil {
		util.Log(ctx).WithError(err).Error("telemetry event not published")
	}
}

// Subscribe registers an in-process subscription under id. With no types
// every event is delivered. Call Unsubscribe with the same id to release it.
func (p *Publisher) Subscribe(id string, bufSize int, types ...EventType) <-chan Envelope {
	if bufSize <= 0 {
		bufSize = 64
	}
	sub := &subscriber{ch: make(chan Envelope, bufSize)}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}

	p.mu.Lock()
	if old, ok := p.subscribers[id]; ok {
		close(old.ch)
	}
	p.subscribers[id] = sub
	p.mu.Unlock()
	return sub.ch
}

// Unsubscribe removes a subscription and closes its channel.
func (p *Publisher) Unsubscribe(id string) {
	p.mu.Lock()
	if sub, ok := p.subscribers[id]; ok {
		close(sub.ch)
		delete(p.subscribers, id)
	}
	p.mu.Unlock()
}

// Dropped reports how many local deliveries were skipped.
func (p *Publisher) Dropped() int64 {
	return p.dropped.Load()
}
