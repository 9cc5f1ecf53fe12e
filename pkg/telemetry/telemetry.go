// Package telemetry records named events raised while dialogs and
// recognizers run.
package telemetry

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used by NewOTelClient when no tracer
// is supplied.
const InstrumentationName = "github.com/voicetyped/adaptive"

// Client receives telemetry events.
type Client interface {
	TrackEvent(ctx context.Context, name string, properties map[string]string)
}

// Null discards every event.
type Null struct{}

func (Null) TrackEvent(context.Context, string, map[string]string) {}

// Multi forwards each event to every client in order.
type Multi []Client

func (m Multi) TrackEvent(ctx context.Context, name string, properties map[string]string) {
	for _, c := range m {
		if c != nil {
			c.TrackEvent(ctx, name, properties)
		}
	}
}

// OTelClient records events on OpenTelemetry spans. When the context
// carries a recording span the event is attached to it; otherwise a short
// span is started and ended around the event.
type OTelClient struct {
	tracer trace.Tracer
}

// NewOTelClient creates a client. A nil tracer uses the global provider.
func NewOTelClient(tracer trace.Tracer) *OTelClient {
	if tracer == nil {
		tracer = otel.Tracer(InstrumentationName)
	}
	return &OTelClient{tracer: tracer}
}

func (c *OTelClient) TrackEvent(ctx context.Context, name string, properties map[string]string) {
	attrs := Attributes(properties)

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
		return
	}

	_, span := c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	span.End()
}

// Attributes converts event properties into span attributes in key order.
func Attributes(properties map[string]string) []attribute.KeyValue {
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, properties[k]))
	}
	return attrs
}

// Recorder keeps events in memory. It is used by tests and by diagnostics
// endpoints that want to show what a turn did.
type Recorder struct {
	Events []Event
}

// Event is one recorded telemetry event.
type Event struct {
	Name       string
	Properties map[string]string
}

func (r *Recorder) TrackEvent(_ context.Context, name string, properties map[string]string) {
	cp := make(map[string]string, len(properties))
	for k, v := range properties {
		cp[k] = v
	}
	r.Events = append(r.Events, Event{Name: name, Properties: cp})
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(name string) []Event {
	var out []Event
	for _, e := range r.Events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}
