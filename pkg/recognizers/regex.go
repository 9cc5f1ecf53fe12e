package recognizers

import (
	"context"
	"fmt"
	"regexp"

	"github.com/voicetyped/adaptive/pkg/activity"
)

// IntentPattern maps a regular expression to an intent.
type IntentPattern struct {
	Intent  string `yaml:"intent"`
	Pattern string `yaml:"pattern"`
}

type compiledPattern struct {
	intent string
	re     *regexp.Regexp
}

// RegexRecognizer scores every intent whose pattern matches the text with
// 1. Named groups of matching patterns become entities. Without a match
// the result is None.
type RegexRecognizer struct {
	id       string
	patterns []compiledPattern
}

// NewRegexRecognizer compiles patterns. Matching is case-insensitive
// unless a pattern sets its own flags.
func NewRegexRecognizer(id string, patterns ...IntentPattern) (*RegexRecognizer, error) {
	r := &RegexRecognizer{id: id}
	for _, p := range patterns {
		src := p.Pattern
		if len(src) < 2 || src[:2] != "(?" {
			src = "(?i)" + src
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, fmt.Errorf("intent %s: compile %q: %w", p.Intent, p.Pattern, err)
		}
		r.patterns = append(r.patterns, compiledPattern{intent: p.Intent, re: re})
	}
	return r, nil
}

// MustRegexRecognizer is NewRegexRecognizer for patterns known to compile.
func MustRegexRecognizer(id string, patterns ...IntentPattern) *RegexRecognizer {
	r, err := NewRegexRecognizer(id, patterns...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *RegexRecognizer) ID() string { return r.id }

func (r *RegexRecognizer) Recognize(_ context.Context, act *activity.Activity) (*Result, error) {
	text := textOf(act)
	res := &Result{
		Text:     text,
		Intents:  map[string]IntentScore{},
		Entities: map[string]any{},
	}
	if text == "" || act.Type != activity.Message {
		return NoneResult(text), nil
	}

	for _, p := range r.patterns {
		m := p.re.FindStringSubmatchIndex(text)
		if m == nil {
			continue
		}
		res.Intents[p.intent] = IntentScore{Score: 1}

		for i, name := range p.re.SubexpNames() {
			if name == "" || m[2*i] < 0 {
				continue
			}
			value := text[m[2*i]:m[2*i+1]]
			mergeEntities(res.Entities, map[string]any{
				name: []any{value},
				"$instance": map[string]any{
					name: []any{map[string]any{
						"startIndex": m[2*i],
						"endIndex":   m[2*i+1],
						"text":       value,
						"score":      1.0,
					}},
				},
			})
		}
	}
	if len(res.Intents) == 0 {
		res.Intents[None] = IntentScore{Score: 1}
	}
	return res, nil
}
