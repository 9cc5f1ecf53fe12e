package expression

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voicetyped/adaptive/pkg/memory"
)

// Expression is a property that is always evaluated. A leading "=" is
// accepted and ignored.
type Expression struct {
	raw string
}

// NewExpression wraps an expression string.
func NewExpression(s string) Expression { return Expression{raw: s} }

func (e Expression) String() string { return e.raw }

// IsEmpty reports whether no expression was configured.
func (e Expression) IsEmpty() bool { return Strip(e.raw) == "" }

// Eval evaluates the expression. An empty expression yields nil.
func (e Expression) Eval(s Scope) (any, error) {
	if e.IsEmpty() {
		return nil, nil
	}
	return s.Evaluate(e.raw)
}

func (e *Expression) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expression must be a scalar", n.Line)
	}
	e.raw = n.Value
	return nil
}

// BoolExpression is a boolean literal or an expression whose result is
// tested for truth.
type BoolExpression struct {
	raw     string
	literal *bool
}

// Bool returns a literal BoolExpression.
func Bool(b bool) BoolExpression { return BoolExpression{literal: &b} }

// NewBool wraps an expression string.
func NewBool(expr string) BoolExpression { return BoolExpression{raw: expr} }

func (b BoolExpression) String() string {
	if b.literal != nil {
		return strconv.FormatBool(*b.literal)
	}
	return b.raw
}

// IsEmpty reports whether neither a literal nor an expression is set.
func (b BoolExpression) IsEmpty() bool { return b.literal == nil && Strip(b.raw) == "" }

// Eval returns the literal, false for an empty expression, or the truth of
// the evaluated expression.
func (b BoolExpression) Eval(s Scope) (bool, error) {
	if b.literal != nil {
		return *b.literal, nil
	}
	src := Strip(b.raw)
	switch src {
	case "":
		return false, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	v, err := s.Evaluate(src)
	if err != nil {
		return false, err
	}
	return memory.Truthy(v), nil
}

func (b *BoolExpression) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: bool expression must be a scalar", n.Line)
	}
	if n.Tag == "!!bool" {
		var v bool
		if err := n.Decode(&v); err != nil {
			return err
		}
		b.literal = &v
		return nil
	}
	b.raw = n.Value
	return nil
}

// IntExpression is an integer literal or an expression yielding a number.
type IntExpression struct {
	raw     string
	literal *int
}

// Int returns a literal IntExpression.
func Int(n int) IntExpression { return IntExpression{literal: &n} }

// NewInt wraps an expression string.
func NewInt(expr string) IntExpression { return IntExpression{raw: expr} }

func (i IntExpression) String() string {
	if i.literal != nil {
		return strconv.Itoa(*i.literal)
	}
	return i.raw
}

// IsEmpty reports whether neither a literal nor an expression is set.
func (i IntExpression) IsEmpty() bool { return i.literal == nil && Strip(i.raw) == "" }

// Eval returns the integer value. An empty expression yields 0.
func (i IntExpression) Eval(s Scope) (int, error) {
	if i.literal != nil {
		return *i.literal, nil
	}
	src := Strip(i.raw)
	if src == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(src); err == nil {
		return n, nil
	}
	v, err := s.Evaluate(src)
	if err != nil {
		return 0, err
	}
	n, ok := memory.ToInt(v)
	if !ok {
		return 0, fmt.Errorf("expression %q: %v is not an integer", src, v)
	}
	return n, nil
}

func (i *IntExpression) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: int expression must be a scalar", n.Line)
	}
	if n.Tag == "!!int" {
		var v int
		if err := n.Decode(&v); err != nil {
			return err
		}
		i.literal = &v
		return nil
	}
	i.raw = n.Value
	return nil
}

// StringExpression is a string with "${expr}" interpolation, or an
// expression when prefixed with "=".
type StringExpression struct {
	raw string
}

// NewString wraps s.
func NewString(s string) StringExpression { return StringExpression{raw: s} }

func (e StringExpression) String() string { return e.raw }

// IsEmpty reports whether the configured string is empty.
func (e StringExpression) IsEmpty() bool { return e.raw == "" }

// Eval returns the resolved string.
func (e StringExpression) Eval(s Scope) (string, error) {
	if IsExpression(e.raw) {
		v, err := s.Evaluate(e.raw)
		if err != nil {
			return "", err
		}
		return ToString(v), nil
	}
	return Interpolate(s, e.raw)
}

func (e *StringExpression) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: string expression must be a scalar", n.Line)
	}
	e.raw = n.Value
	return nil
}

// ValueExpression is any literal value, or an expression when it is a
// string prefixed with "=". Plain strings are interpolated.
type ValueExpression struct {
	raw any
}

// NewValue wraps v.
func NewValue(v any) ValueExpression { return ValueExpression{raw: v} }

func (e ValueExpression) String() string { return ToString(e.raw) }

// IsEmpty reports whether no value was configured.
func (e ValueExpression) IsEmpty() bool { return e.raw == nil }

// Eval resolves the value. Object and array literals are returned as deep
// copies without resolving their members.
func (e ValueExpression) Eval(s Scope) (any, error) {
	str, ok := e.raw.(string)
	if !ok {
		return memory.Clone(e.raw), nil
	}
	if IsExpression(str) {
		return s.Evaluate(str)
	}
	return Interpolate(s, str)
}

func (e *ValueExpression) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	e.raw = v
	return nil
}

// Resolve walks a JSON-like value and resolves every string member the way
// ValueExpression resolves a string.
func Resolve(s Scope, v any) (any, error) {
	switch c := v.(type) {
	case string:
		return NewValue(c).Eval(s)
	case map[string]any:
		out := make(map[string]any, len(c))
		for k, item := range c {
			r, err := Resolve(s, item)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(c))
		for i, item := range c {
			r, err := Resolve(s, item)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = r
		}
		return out, nil
	}
	return v, nil
}

// Interpolate replaces every "${expr}" in text with the string form of the
// evaluated expression.
func Interpolate(s Scope, text string) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var out strings.Builder
	for {
		start := strings.Index(text, "${")
		if start < 0 {
			out.WriteString(text)
			return out.String(), nil
		}
		out.WriteString(text[:start])

		end := matchBrace(text, start+2)
		if end < 0 {
			return "", fmt.Errorf("unterminated interpolation in %q", text)
		}
		v, err := s.Evaluate(text[start+2 : end])
		if err != nil {
			return "", err
		}
		out.WriteString(ToString(v))
		text = text[end+1:]
	}
}

func matchBrace(text string, from int) int {
	depth := 0
	var quote byte
	for i := from; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == quote && text[i-1] != '\\' {
				quote = 0
			}
		case c == '\'' || c == '"' || c == '`':
			quote = c
		case c == '{':
			depth++
		case c == '}':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// ToString renders a value for display. Objects and arrays render as JSON.
func ToString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case map[string]any, []any:
		raw, err := json.Marshal(c)
		if err != nil {
			return fmt.Sprint(c)
		}
		return string(raw)
	}
	return fmt.Sprint(v)
}
