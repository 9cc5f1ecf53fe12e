// Package expression evaluates declarative expressions against memory
// scopes. Two engines are provided: an ECMAScript engine backed by goja and
// a CEL engine backed by cel-go.
package expression

import (
	"errors"
	"strings"
)

// ErrTimeout is returned when an expression runs longer than the engine
// allows.
var ErrTimeout = errors.New("expression evaluation timed out")

// DefaultScopes are the variable names every evaluation receives.
var DefaultScopes = []string{"user", "conversation", "dialog", "this", "turn", "settings"}

// Evaluator evaluates an expression string against a set of named scopes.
type Evaluator interface {
	Evaluate(expr string, vars map[string]any) (any, error)
}

// Scope is an evaluator already bound to the scopes of one evaluation site.
type Scope interface {
	Evaluate(expr string) (any, error)
}

type boundScope struct {
	ev   Evaluator
	vars map[string]any
}

// Bind returns a Scope that evaluates against vars.
func Bind(ev Evaluator, vars map[string]any) Scope {
	return &boundScope{ev: ev, vars: vars}
}

func (b *boundScope) Evaluate(expr string) (any, error) {
	return b.ev.Evaluate(expr, b.vars)
}

// Strip removes the optional leading "=" that marks a declarative value as
// an expression.
func Strip(expr string) string {
	expr = strings.TrimSpace(expr)
	return strings.TrimSpace(strings.TrimPrefix(expr, "="))
}

// IsExpression reports whether a declarative string value is an expression
// rather than a literal.
func IsExpression(s string) bool {
	return strings.HasPrefix(strings.TrimSpace(s), "=")
}
