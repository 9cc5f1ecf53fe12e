package expression

import (
	"strconv"
	"strings"

	"github.com/voicetyped/adaptive/pkg/memory"
)

// Matcher compares a subject against a literal parsed once from its
// declarative form.
type Matcher struct {
	raw  string
	want any
}

// EqualTo builds a matcher for a case literal. Integers, floats and booleans
// are compared by value; anything else is compared as a string.
func EqualTo(literal string) Matcher {
	s := strings.TrimSpace(literal)
	m := Matcher{raw: literal, want: literal}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		m.want = n
	} else if f, err := strconv.ParseFloat(s, 64); err == nil {
		m.want = f
	} else if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		m.want = b
	}
	return m
}

func (m Matcher) String() string { return m.raw }

// Match reports whether v equals the literal.
func (m Matcher) Match(v any) bool {
	return memory.Equal(v, m.want)
}
