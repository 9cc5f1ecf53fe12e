package recognizers

import (
	"context"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/memory"
)

// ValueRecognizer reads the intent from a message's value, as sent by
// card submissions: {"intent": "book", "city": "Paris"} recognizes "book"
// with the entity city.
type ValueRecognizer struct {
	id string
}

// NewValueRecognizer creates a value recognizer.
func NewValueRecognizer(id string) *ValueRecognizer {
	return &ValueRecognizer{id: id}
}

func (r *ValueRecognizer) ID() string { return r.id }

func (r *ValueRecognizer) Recognize(_ context.Context, act *activity.Activity) (*Result, error) {
	text := textOf(act)
	if act == nil || act.Type != activity.Message || act.Value == nil {
		return NoneResult(text), nil
	}
	v, err := memory.Normalize(act.Value)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return NoneResult(text), nil
	}
	intent, _ := obj["intent"].(string)
	if intent == "" {
		return NoneResult(text), nil
	}

	res := &Result{
		Text:     text,
		Intents:  map[string]IntentScore{intent: {Score: 1}},
		Entities: map[string]any{},
	}
	for k, item := range obj {
		if k == "intent" {
			continue
		}
		res.Entities[k] = []any{item}
	}
	return res, nil
}
