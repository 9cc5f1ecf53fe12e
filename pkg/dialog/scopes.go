package dialog

import (
	"fmt"
	"strings"
	"time"

	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/memory"
)

// Memory scope names.
const (
	ScopeUser         = "user"
	ScopeConversation = "conversation"
	ScopeDialog       = "dialog"
	ScopeThis         = "this"
	ScopeTurn         = "turn"
	ScopeSettings     = "settings"
)

var defaultEvaluator expression.Evaluator = expression.NewGojaEngine(2 * time.Second)

// DialogState is the "dialog" scope: the state of the nearest container
// instance. Actions running directly on a root stack see the bottom
// instance.
func (dc *Context) DialogState() map[string]any {
	if inst := dc.ActiveDialog(); inst != nil {
		if _, ok := dc.FindDialog(inst.ID).(Container); ok {
			return ensureState(inst)
		}
	}
	if dc.Parent != nil {
		if inst := dc.Parent.ActiveDialog(); inst != nil {
			return ensureState(inst)
		}
	}
	if len(dc.Stack) > 0 {
		return ensureState(dc.Stack[0])
	}
	return nil
}

// ThisState is the "this" scope: the state of the active instance.
func (dc *Context) ThisState() map[string]any {
	if inst := dc.ActiveDialog(); inst != nil {
		return ensureState(inst)
	}
	return nil
}

func ensureState(inst *Instance) map[string]any {
	if inst.State == nil {
		inst.State = make(map[string]any)
	}
	return inst.State
}

// Scopes returns every memory scope by name. The maps are live: writes
// through them change the turn's memory.
func (dc *Context) Scopes() map[string]any {
	vars := map[string]any{
		ScopeUser:         dc.Turn.User,
		ScopeConversation: dc.Turn.Conversation,
		ScopeTurn:         dc.Turn.Turn,
		ScopeSettings:     dc.Turn.Settings,
	}
	if s := dc.DialogState(); s != nil {
		vars[ScopeDialog] = s
	}
	if s := dc.ThisState(); s != nil {
		vars[ScopeThis] = s
	}
	return vars
}

// ExpandPath rewrites memory shorthands: "$x" is "dialog.x", "#x" is
// "turn.recognized.intents.x" and "@x" is "turn.recognized.entities.x".
func ExpandPath(path string) string {
	path = strings.TrimSpace(path)
	switch {
	case strings.HasPrefix(path, "$"):
		return "dialog." + path[1:]
	case strings.HasPrefix(path, "#"):
		return "turn.recognized.intents." + path[1:]
	case strings.HasPrefix(path, "@"):
		return "turn.recognized.entities." + path[1:]
	}
	return path
}

// GetValue reads a memory path such as "dialog.foreach.page[0]".
func (dc *Context) GetValue(path string) (any, bool) {
	return memory.Get(dc.Scopes(), ExpandPath(path))
}

// SetValue writes a memory path, creating intermediate objects.
func (dc *Context) SetValue(path string, value any) error {
	path = ExpandPath(path)
	scope, rest := memory.Split(path)
	vars := dc.Scopes()
	if _, ok := vars[scope]; !ok {
		return fmt.Errorf("set %q: memory scope %q is not available", path, scope)
	}
	if rest == "" {
		return fmt.Errorf("set %q: cannot replace a memory scope", path)
	}
	return memory.Set(vars, path, value)
}

// DeleteValue removes a memory path. It reports whether anything was removed.
func (dc *Context) DeleteValue(path string) bool {
	path = ExpandPath(path)
	if _, rest := memory.Split(path); rest == "" {
		return false
	}
	return memory.Delete(dc.Scopes(), path)
}

// Evaluate evaluates expr against the memory scopes. Context therefore
// satisfies expression.Scope.
func (dc *Context) Evaluate(expr string) (any, error) {
	return dc.Turn.evaluator().Evaluate(expr, dc.Scopes())
}

var _ expression.Scope = (*Context)(nil)
