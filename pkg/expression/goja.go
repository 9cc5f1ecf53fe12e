package expression

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// thisVar carries the "this" scope; "this" itself is reserved in ECMAScript
// so the compiled program binds it through Function.prototype.call.
const thisVar = "__this"

// GojaEngine evaluates ECMAScript expressions. Compiled programs are cached
// per expression text; every evaluation gets a fresh runtime.
type GojaEngine struct {
	timeout  time.Duration
	programs sync.Map
}

// NewGojaEngine creates an engine. A zero timeout disables interruption.
func NewGojaEngine(timeout time.Duration) *GojaEngine {
	return &GojaEngine{timeout: timeout}
}

func (e *GojaEngine) compile(src string) (*goja.Program, error) {
	if cached, ok := e.programs.Load(src); ok {
		return cached.(*goja.Program), nil
	}
	wrapped := fmt.Sprintf("(function() {\n'use strict';\nreturn (%s);\n}).call(%s);\n", src, thisVar)
	prg, err := goja.Compile("expression", wrapped, true)
	if err != nil {
		return nil, err
	}
	e.programs.Store(src, prg)
	return prg, nil
}

// Evaluate runs expr with each entry of vars bound as a global.
func (e *GojaEngine) Evaluate(expr string, vars map[string]any) (any, error) {
	src := Strip(expr)
	if src == "" {
		return nil, nil
	}

	prg, err := e.compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	for name, v := range vars {
		if name == "this" {
			name = thisVar
		}
		if err := vm.Set(name, v); err != nil {
			return nil, fmt.Errorf("bind %q: %w", name, err)
		}
	}
	if _, ok := vars["this"]; !ok {
		_ = vm.Set(thisVar, goja.Undefined())
	}

	if e.timeout > 0 {
		timer := time.AfterFunc(e.timeout, func() {
			vm.Interrupt(ErrTimeout)
		})
		defer timer.Stop()
	}

	v, err := vm.RunProgram(prg)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("evaluate %q: %w", src, ErrTimeout)
		}
		return nil, fmt.Errorf("evaluate %q: %w", src, err)
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, nil
	}
	return v.Export(), nil
}
