// Package recognizers turns an inbound activity into intents and entities.
// Leaf recognizers match patterns; RecognizerSet, MultiLanguageRecognizer
// and CrossTrainedRecognizerSet compose other recognizers.
package recognizers

import (
	"context"
	"sort"
	"strings"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/memory"
)

// Reserved intent names.
const (
	None         = "None"
	ChooseIntent = "ChooseIntent"
	// DeferPrefix starts a redirect intent: DeferToRecognizer_<id> means
	// the recognizer with that id owns the utterance.
	DeferPrefix = "DeferToRecognizer_"
)

// Recognizer produces a Result for an activity.
type Recognizer interface {
	ID() string
	Recognize(ctx context.Context, act *activity.Activity) (*Result, error)
}

// IntentScore is the confidence of one intent.
type IntentScore struct {
	Score float64 `json:"score"`
}

// Candidate is one recognizer's claim in an ambiguous cross-trained result.
type Candidate struct {
	ID     string  `json:"id"`
	Intent string  `json:"intent"`
	Score  float64 `json:"score"`
	Result *Result `json:"result"`
}

// Result is the outcome of recognition. A result always carries at least
// one intent.
type Result struct {
	Text        string                 `json:"text"`
	AlteredText string                 `json:"alteredText,omitempty"`
	Intents     map[string]IntentScore `json:"intents"`
	Entities    map[string]any         `json:"entities"`
	Sentiment   map[string]any         `json:"sentiment,omitempty"`
	Candidates  []Candidate            `json:"candidates,omitempty"`
	Properties  map[string]any         `json:"properties,omitempty"`
}

// NoneResult returns a result whose only intent is None.
func NoneResult(text string) *Result {
	return &Result{
		Text:     text,
		Intents:  map[string]IntentScore{None: {Score: 1}},
		Entities: map[string]any{},
	}
}

// TopIntent returns the highest scoring intent. Ties prefer an intent other
// than None, then the lexically smaller name.
func (r *Result) TopIntent() (string, float64) {
	if r == nil || len(r.Intents) == 0 {
		return None, 0
	}
	names := make([]string, 0, len(r.Intents))
	for name := range r.Intents {
		names = append(names, name)
	}
	sort.Strings(names)

	top, score := "", -1.0
	for _, name := range names {
		s := r.Intents[name].Score
		switch {
		case s > score:
			top, score = name, s
		case s == score && top == None && name != None:
			top = name
		}
	}
	return top, score
}

// Memory renders the result the way it is stored at turn.recognized.
func (r *Result) Memory() map[string]any {
	intent, score := r.TopIntent()
	out := map[string]any{
		"text":     r.Text,
		"intent":   intent,
		"score":    score,
		"intents":  map[string]any{},
		"entities": map[string]any{},
	}
	if r.AlteredText != "" {
		out["alteredText"] = r.AlteredText
	}
	if v, err := memory.Normalize(r.Intents); err == nil && v != nil {
		out["intents"] = v
	}
	if v, err := memory.Normalize(r.Entities); err == nil && v != nil {
		out["entities"] = v
	}
	if len(r.Candidates) > 0 {
		if v, err := memory.Normalize(r.Candidates); err == nil {
			out["candidates"] = v
		}
	}
	return out
}

func isRedirect(intent string) bool {
	return strings.HasPrefix(intent, DeferPrefix)
}

func redirectID(intent string) string {
	return strings.TrimPrefix(intent, DeferPrefix)
}

// mergeEntities adds src into dst. Arrays under the same name are
// concatenated, objects are merged recursively and other values are
// replaced.
func mergeEntities(dst, src map[string]any) {
	for k, v := range src {
		cur, ok := dst[k]
		if !ok {
			dst[k] = memory.Clone(v)
			continue
		}
		switch c := cur.(type) {
		case []any:
			if add, ok := v.([]any); ok {
				dst[k] = append(c, memory.Clone(add).([]any)...)
				continue
			}
		case map[string]any:
			if add, ok := v.(map[string]any); ok {
				mergeEntities(c, add)
				continue
			}
		}
		dst[k] = memory.Clone(v)
	}
}

// deepMerge merges objects recursively; any other value, arrays included,
// is overwritten by the later one.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		if add, ok := v.(map[string]any); ok {
			if cur, ok := dst[k].(map[string]any); ok {
				deepMerge(cur, add)
				continue
			}
		}
		dst[k] = memory.Clone(v)
	}
}

func textOf(act *activity.Activity) string {
	if act == nil {
		return ""
	}
	return act.Text
}
