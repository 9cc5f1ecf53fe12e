package recognizers

import (
	"context"
	"strings"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/telemetry"
)

// LanguagePolicy lists, per locale, the recognizer keys to try in order.
// The empty key is the neutral fallback.
type LanguagePolicy map[string][]string

// DefaultPolicy tries the full locale, then its base language, then the
// neutral recognizer.
func DefaultPolicy(locale string) []string {
	locale = strings.ToLower(locale)
	out := []string{}
	if locale != "" {
		out = append(out, locale)
		if i := strings.IndexAny(locale, "-_"); i > 0 {
			out = append(out, locale[:i])
		}
	}
	return append(out, "")
}

// MultiLanguageRecognizer selects a child by the activity's locale.
type MultiLanguageRecognizer struct {
	IDValue     string
	Recognizers map[string]Recognizer
	Policy      LanguagePolicy
	Telemetry   telemetry.Client
}

// NewMultiLanguageRecognizer creates a recognizer keyed by locale.
func NewMultiLanguageRecognizer(id string, byLocale map[string]Recognizer) *MultiLanguageRecognizer {
	return &MultiLanguageRecognizer{IDValue: id, Recognizers: byLocale}
}

func (m *MultiLanguageRecognizer) ID() string { return m.IDValue }

// Select returns the recognizer for locale, or nil when none applies.
func (m *MultiLanguageRecognizer) Select(locale string) Recognizer {
	candidates := DefaultPolicy(locale)
	if p, ok := m.policy(locale); ok {
		candidates = p
	}
	for _, key := range candidates {
		if r := m.lookup(key); r != nil {
			return r
		}
	}
	return nil
}

func (m *MultiLanguageRecognizer) policy(locale string) ([]string, bool) {
	for k, v := range m.Policy {
		if strings.EqualFold(k, locale) {
			return v, true
		}
	}
	return nil, false
}

func (m *MultiLanguageRecognizer) lookup(key string) Recognizer {
	if r, ok := m.Recognizers[key]; ok {
		return r
	}
	for k, r := range m.Recognizers {
		if strings.EqualFold(k, key) {
			return r
		}
	}
	return nil
}

func (m *MultiLanguageRecognizer) Recognize(ctx context.Context, act *activity.Activity) (*Result, error) {
	locale := ""
	if act != nil {
		locale = act.Locale
	}
	r := m.Select(locale)
	if r == nil {
		return NoneResult(textOf(act)), nil
	}
	res, err := r.Recognize(ctx, act)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = NoneResult(textOf(act))
	}
	trackResult(ctx, m.Telemetry, "MultiLanguageRecognizer", m.IDValue, res)
	return res, nil
}
