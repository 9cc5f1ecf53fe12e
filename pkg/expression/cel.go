package expression

import (
	"fmt"
	"sync"

	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// CELEngine evaluates Common Expression Language expressions. Every scope
// name is declared as a dynamically typed variable.
type CELEngine struct {
	env      *celgo.Env
	vars     []string
	programs sync.Map
}

// NewCELEngine creates an engine declaring the given scope names, or
// DefaultScopes when none are given.
func NewCELEngine(scopes ...string) (*CELEngine, error) {
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	opts := make([]celgo.EnvOption, 0, len(scopes))
	for _, name := range scopes {
		opts = append(opts, celgo.Variable(name, celgo.DynType))
	}
	env, err := celgo.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &CELEngine{env: env, vars: scopes}, nil
}

func (e *CELEngine) program(src string) (celgo.Program, error) {
	if cached, ok := e.programs.Load(src); ok {
		return cached.(celgo.Program), nil
	}
	ast, iss := e.env.Compile(src)
	if iss != nil && iss.Err() != nil {
		return nil, iss.Err()
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	e.programs.Store(src, prg)
	return prg, nil
}

// Evaluate runs expr. Declared scopes missing from vars evaluate as null.
func (e *CELEngine) Evaluate(expr string, vars map[string]any) (any, error) {
	src := Strip(expr)
	if src == "" {
		return nil, nil
	}

	prg, err := e.program(src)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}

	activation := make(map[string]any, len(e.vars))
	for _, name := range e.vars {
		activation[name] = vars[name]
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", src, err)
	}
	return celNative(out), nil
}

func celNative(v ref.Val) any {
	if v == nil || v.Type() == types.NullType {
		return nil
	}
	switch c := v.(type) {
	case traits.Lister:
		n, _ := c.Size().Value().(int64)
		out := make([]any, 0, n)
		for i := int64(0); i < n; i++ {
			out = append(out, celNative(c.Get(types.Int(i))))
		}
		return out
	case traits.Mapper:
		out := make(map[string]any)
		it := c.Iterator()
		for it.HasNext() == types.True {
			k := it.Next()
			out[fmt.Sprint(k.Value())] = celNative(c.Get(k))
		}
		return out
	}
	return v.Value()
}
