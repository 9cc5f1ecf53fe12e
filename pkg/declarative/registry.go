// Package declarative builds adaptive dialogs from YAML resources. Every
// object in a resource is a mapping with a "$kind" key naming the builder
// that turns it into an action, trigger, recognizer or dialog.
package declarative

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/voicetyped/adaptive/pkg/actions"
	"github.com/voicetyped/adaptive/pkg/dialog"
)

// KindKey is the mapping key that selects a builder.
const KindKey = "$kind"

// Registered kinds.
const (
	KindAdaptiveDialog = "Microsoft.AdaptiveDialog"

	KindOnBeginDialog   = "Microsoft.OnBeginDialog"
	KindOnActivity      = "Microsoft.OnActivity"
	KindOnIntent        = "Microsoft.OnIntent"
	KindOnUnknownIntent = "Microsoft.OnUnknownIntent"
	KindOnChooseIntent  = "Microsoft.OnChooseIntent"
	KindOnEndOfActions  = "Microsoft.OnEndOfActions"
	KindOnCancelDialog  = "Microsoft.OnCancelDialog"
	KindOnCustomEvent   = "Microsoft.OnCustomEvent"
	KindOnCondition     = "Microsoft.OnCondition"

	KindSetProperty            = "Microsoft.SetProperty"
	KindSetProperties          = "Microsoft.SetProperties"
	KindDeleteProperty         = "Microsoft.DeleteProperty"
	KindDeleteProperties       = "Microsoft.DeleteProperties"
	KindEditArray              = "Microsoft.EditArray"
	KindSendActivity           = "Microsoft.SendActivity"
	KindTraceActivity          = "Microsoft.TraceActivity"
	KindLogAction              = "Microsoft.LogAction"
	KindEmitEvent              = "Microsoft.EmitEvent"
	KindIfCondition            = "Microsoft.IfCondition"
	KindSwitchCondition        = "Microsoft.SwitchCondition"
	KindForeach                = "Microsoft.Foreach"
	KindForeachPage            = "Microsoft.ForeachPage"
	KindGotoAction             = "Microsoft.GotoAction"
	KindBreakLoop              = "Microsoft.BreakLoop"
	KindContinueLoop           = "Microsoft.ContinueLoop"
	KindEndTurn                = "Microsoft.EndTurn"
	KindEndDialog              = "Microsoft.EndDialog"
	KindCancelAllDialogs       = "Microsoft.CancelAllDialogs"
	KindRepeatDialog           = "Microsoft.RepeatDialog"
	KindBeginDialog            = "Microsoft.BeginDialog"
	KindGetConversationMembers = "Microsoft.GetConversationMembers"
	KindSignOutUser            = "Microsoft.SignOutUser"
	KindHTTPRequest            = "Microsoft.HttpRequest"

	KindRegexRecognizer           = "Microsoft.RegexRecognizer"
	KindValueRecognizer           = "Microsoft.ValueRecognizer"
	KindRecognizerSet             = "Microsoft.RecognizerSet"
	KindMultiLanguageRecognizer   = "Microsoft.MultiLanguageRecognizer"
	KindCrossTrainedRecognizerSet = "Microsoft.CrossTrainedRecognizerSet"
)

// ErrUnknownKind is returned for a "$kind" no builder is registered for.
var ErrUnknownKind = errors.New("unknown $kind")

// BuildFunc turns the mapping node of one object into the object. Nested
// objects are built through b.
type BuildFunc func(b *Builder, n *yaml.Node) (any, error)

// Registry maps kinds to builders. The zero value is empty; NewRegistry
// returns one holding every built-in kind.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]BuildFunc
}

// NewRegistry returns a registry with the built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{}
	registerDialogs(r)
	registerTriggers(r)
	registerActions(r)
	registerRecognizers(r)
	return r
}

// Register adds or replaces the builder for kind.
func (r *Registry) Register(kind string, fn BuildFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kinds == nil {
		r.kinds = make(map[string]BuildFunc)
	}
	r.kinds[kind] = fn
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) lookup(kind string) (BuildFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.kinds[kind]
	return fn, ok
}

// Action registers a kind decoded straight into *T. The struct's yaml tags
// define the accepted keys.
func Action[T any, P interface {
	*T
	dialog.Dialog
}]() BuildFunc {
	return func(_ *Builder, n *yaml.Node) (any, error) {
		a := P(new(T))
		if err := n.Decode(a); err != nil {
			return nil, err
		}
		return a, nil
	}
}

func registerActions(r *Registry) {
	r.Register(KindSetProperty, Action[actions.SetProperty]())
	r.Register(KindSetProperties, Action[actions.SetProperties]())
	r.Register(KindDeleteProperty, Action[actions.DeleteProperty]())
	r.Register(KindDeleteProperties, Action[actions.DeleteProperties]())
	r.Register(KindEditArray, Action[actions.EditArray]())
	r.Register(KindSendActivity, Action[actions.SendActivity]())
	r.Register(KindTraceActivity, Action[actions.TraceActivity]())
	r.Register(KindLogAction, Action[actions.LogAction]())
	r.Register(KindEmitEvent, Action[actions.EmitEvent]())
	r.Register(KindGotoAction, Action[actions.GotoAction]())
	r.Register(KindBreakLoop, Action[actions.BreakLoop]())
	r.Register(KindContinueLoop, Action[actions.ContinueLoop]())
	r.Register(KindEndTurn, Action[actions.EndTurn]())
	r.Register(KindEndDialog, Action[actions.EndDialog]())
	r.Register(KindCancelAllDialogs, Action[actions.CancelAllDialogs]())
	r.Register(KindRepeatDialog, Action[actions.RepeatDialog]())
	r.Register(KindBeginDialog, Action[actions.BeginDialog]())
	r.Register(KindGetConversationMembers, Action[actions.GetConversationMembers]())
	r.Register(KindSignOutUser, Action[actions.SignOutUser]())
	r.Register(KindHTTPRequest, buildHTTPRequest)
	r.Register(KindIfCondition, buildIfCondition)
	r.Register(KindSwitchCondition, buildSwitchCondition)
	r.Register(KindForeach, buildForeach)
	r.Register(KindForeachPage, buildForeachPage)
}

func buildHTTPRequest(b *Builder, n *yaml.Node) (any, error) {
	a := &actions.HTTPRequest{}
	if err := n.Decode(a); err != nil {
		return nil, err
	}
	a.Client = b.http
	return a, nil
}

func kindOf(n *yaml.Node) (string, error) {
	if n.Kind != yaml.MappingNode {
		return "", fmt.Errorf("line %d: expected a mapping with %s", n.Line, KindKey)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == KindKey {
			return n.Content[i+1].Value, nil
		}
	}
	return "", fmt.Errorf("line %d: missing %s", n.Line, KindKey)
}
