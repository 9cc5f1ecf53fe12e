package declarative

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/voicetyped/adaptive/pkg/actions"
	"github.com/voicetyped/adaptive/pkg/adaptive"
	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/recognizers"
	"github.com/voicetyped/adaptive/pkg/telemetry"
)

// Builder builds object graphs with the builders of a Registry and hands
// them the runtime services they need.
type Builder struct {
	registry  *Registry
	http      actions.HTTPClient
	telemetry telemetry.Client
}

// Option configures a Builder.
type Option func(*Builder)

// WithHTTPClient sets the client used by HttpRequest actions.
func WithHTTPClient(c actions.HTTPClient) Option {
	return func(b *Builder) { b.http = c }
}

// WithTelemetry sets the client recognizer sets report results to.
func WithTelemetry(c telemetry.Client) Option {
	return func(b *Builder) { b.telemetry = c }
}

// NewBuilder creates a builder over r. A nil registry uses the built-in
// kinds.
func NewBuilder(r *Registry, opts ...Option) *Builder {
	if r == nil {
		r = NewRegistry()
	}
	b := &Builder{registry: r}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Parse builds the object described by a YAML document.
func (b *Builder) Parse(data []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	return b.Build(doc.Content[0])
}

// Build dispatches n to the builder registered for its kind.
func (b *Builder) Build(n *yaml.Node) (any, error) {
	kind, err := kindOf(n)
	if err != nil {
		return nil, err
	}
	fn, ok := b.registry.lookup(kind)
	if !ok {
		return nil, fmt.Errorf("line %d: %q: %w", n.Line, kind, ErrUnknownKind)
	}
	v, err := fn(b, n)
	if err != nil {
		return nil, fmt.Errorf("%s (line %d): %w", kind, n.Line, err)
	}
	return v, nil
}

// Dialog builds n and requires a dialog.
func (b *Builder) Dialog(n *yaml.Node) (dialog.Dialog, error) {
	return buildAs[dialog.Dialog](b, n, "dialog")
}

// Actions builds every node of a list of actions.
func (b *Builder) Actions(nodes []yaml.Node) ([]dialog.Dialog, error) {
	out := make([]dialog.Dialog, 0, len(nodes))
	for i := range nodes {
		d, err := b.Dialog(&nodes[i])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Trigger builds n and requires a trigger.
func (b *Builder) Trigger(n *yaml.Node) (*adaptive.Trigger, error) {
	return buildAs[*adaptive.Trigger](b, n, "trigger")
}

// Recognizer builds n and requires a recognizer.
func (b *Builder) Recognizer(n *yaml.Node) (recognizers.Recognizer, error) {
	return buildAs[recognizers.Recognizer](b, n, "recognizer")
}

func buildAs[T any](b *Builder, n *yaml.Node, what string) (T, error) {
	var zero T
	v, err := b.Build(n)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("line %d: %T is not a %s: %w", n.Line, v, what, dialog.ErrConfiguration)
	}
	return t, nil
}

// Composite actions.

type ifConfig struct {
	actions.Base `yaml:",inline"`
	Condition    expression.BoolExpression `yaml:"condition"`
	Actions      []yaml.Node               `yaml:"actions"`
	ElseActions  []yaml.Node               `yaml:"elseActions"`
}

func buildIfCondition(b *Builder, n *yaml.Node) (any, error) {
	var cfg ifConfig
	if err := n.Decode(&cfg); err != nil {
		return nil, err
	}
	then, err := b.Actions(cfg.Actions)
	if err != nil {
		return nil, err
	}
	els, err := b.Actions(cfg.ElseActions)
	if err != nil {
		return nil, err
	}
	a := actions.NewIfCondition(cfg.Condition, then, els)
	a.Base = cfg.Base
	return a, nil
}

type caseConfig struct {
	Value   string      `yaml:"value"`
	Actions []yaml.Node `yaml:"actions"`
}

type switchConfig struct {
	actions.Base `yaml:",inline"`
	Condition    expression.Expression `yaml:"condition"`
	Cases        []caseConfig          `yaml:"cases"`
	Default      []yaml.Node           `yaml:"default"`
}

func buildSwitchCondition(b *Builder, n *yaml.Node) (any, error) {
	var cfg switchConfig
	if err := n.Decode(&cfg); err != nil {
		return nil, err
	}
	cases := make([]actions.Case, 0, len(cfg.Cases))
	for _, c := range cfg.Cases {
		acts, err := b.Actions(c.Actions)
		if err != nil {
			return nil, err
		}
		cases = append(cases, actions.Case{Value: c.Value, Actions: acts})
	}
	def, err := b.Actions(cfg.Default)
	if err != nil {
		return nil, err
	}
	a := actions.NewSwitchCondition(cfg.Condition, cases, def)
	a.Base = cfg.Base
	return a, nil
}

type foreachConfig struct {
	actions.Base  `yaml:",inline"`
	ItemsProperty string      `yaml:"itemsProperty"`
	Index         string      `yaml:"index"`
	Value         string      `yaml:"value"`
	Actions       []yaml.Node `yaml:"actions"`
}

func buildForeach(b *Builder, n *yaml.Node) (any, error) {
	var cfg foreachConfig
	if err := n.Decode(&cfg); err != nil {
		return nil, err
	}
	body, err := b.Actions(cfg.Actions)
	if err != nil {
		return nil, err
	}
	a := actions.NewForEach(cfg.ItemsProperty, body...)
	a.Base = cfg.Base
	a.IndexProperty = cfg.Index
	a.ValueProperty = cfg.Value
	return a, nil
}

type foreachPageConfig struct {
	actions.Base  `yaml:",inline"`
	ItemsProperty string                   `yaml:"itemsProperty"`
	PageSize      expression.IntExpression `yaml:"pageSize"`
	Page          string                   `yaml:"page"`
	PageIndex     string                   `yaml:"pageIndex"`
	Actions       []yaml.Node              `yaml:"actions"`
}

func buildForeachPage(b *Builder, n *yaml.Node) (any, error) {
	var cfg foreachPageConfig
	if err := n.Decode(&cfg); err != nil {
		return nil, err
	}
	body, err := b.Actions(cfg.Actions)
	if err != nil {
		return nil, err
	}
	a := actions.NewForEachPage(cfg.ItemsProperty, cfg.PageSize, body...)
	a.Base = cfg.Base
	a.PageProperty = cfg.Page
	a.PageIndexProperty = cfg.PageIndex
	return a, nil
}

// Triggers.

type triggerConfig struct {
	Condition expression.BoolExpression `yaml:"condition"`
	Priority  expression.IntExpression  `yaml:"priority"`
	Intent    string                    `yaml:"intent"`
	Entities  []string                  `yaml:"entities"`
	Event     string                    `yaml:"event"`
	Actions   []yaml.Node               `yaml:"actions"`
}

// trigger returns the builder for a trigger kind listening for event. An
// empty event is read from the "event" key.
func trigger(event string) BuildFunc {
	return func(b *Builder, n *yaml.Node) (any, error) {
		var cfg triggerConfig
		if err := n.Decode(&cfg); err != nil {
			return nil, err
		}
		acts, err := b.Actions(cfg.Actions)
		if err != nil {
			return nil, err
		}
		t := &adaptive.Trigger{
			Event:     event,
			Condition: cfg.Condition,
			Priority:  cfg.Priority,
			Actions:   acts,
		}
		if t.Event == "" {
			if cfg.Event == "" {
				return nil, fmt.Errorf("event is required: %w", dialog.ErrConfiguration)
			}
			t.Event = cfg.Event
		}
		if t.Event == dialog.EventRecognizedIntent {
			t.Intent, t.Entities = cfg.Intent, cfg.Entities
		}
		return t, nil
	}
}

func registerTriggers(r *Registry) {
	r.Register(KindOnBeginDialog, trigger(dialog.EventBeginDialog))
	r.Register(KindOnActivity, trigger(dialog.EventActivityReceived))
	r.Register(KindOnUnknownIntent, trigger(dialog.EventUnknownIntent))
	r.Register(KindOnEndOfActions, trigger(dialog.EventEndOfActions))
	r.Register(KindOnCancelDialog, trigger(dialog.EventCancelDialog))
	r.Register(KindOnCustomEvent, trigger(""))
	r.Register(KindOnCondition, trigger(""))

	onIntent := trigger(dialog.EventRecognizedIntent)
	r.Register(KindOnIntent, func(b *Builder, n *yaml.Node) (any, error) {
		v, err := onIntent(b, n)
		if err != nil {
			return nil, err
		}
		if v.(*adaptive.Trigger).Intent == "" {
			return nil, fmt.Errorf("intent is required: %w", dialog.ErrConfiguration)
		}
		return v, nil
	})
	r.Register(KindOnChooseIntent, func(b *Builder, n *yaml.Node) (any, error) {
		v, err := onIntent(b, n)
		if err != nil {
			return nil, err
		}
		v.(*adaptive.Trigger).Intent = recognizers.ChooseIntent
		return v, nil
	})
}

// Dialogs.

type dialogConfig struct {
	ID            string      `yaml:"id"`
	Recognizer    yaml.Node   `yaml:"recognizer"`
	Triggers      []yaml.Node `yaml:"triggers"`
	AutoEndDialog *bool       `yaml:"autoEndDialog"`
	// Selector is "first" (default) or "all".
	Selector string      `yaml:"selector"`
	Dialogs  []yaml.Node `yaml:"dialogs"`
}

func registerDialogs(r *Registry) {
	r.Register(KindAdaptiveDialog, buildAdaptiveDialog)
}

func buildAdaptiveDialog(b *Builder, n *yaml.Node) (any, error) {
	var cfg dialogConfig
	if err := n.Decode(&cfg); err != nil {
		return nil, err
	}
	d := adaptive.New(cfg.ID)
	if cfg.AutoEndDialog != nil {
		d.AutoEnd = *cfg.AutoEndDialog
	}
	switch cfg.Selector {
	case "", "first":
	case "all":
		d.Selector = adaptive.AllSelector{}
	default:
		return nil, fmt.Errorf("selector %q: %w", cfg.Selector, dialog.ErrConfiguration)
	}
	if cfg.Recognizer.Kind != 0 {
		rec, err := b.Recognizer(&cfg.Recognizer)
		if err != nil {
			return nil, err
		}
		d.Recognizer = rec
	}
	for i := range cfg.Triggers {
		t, err := b.Trigger(&cfg.Triggers[i])
		if err != nil {
			return nil, err
		}
		d.Triggers = append(d.Triggers, t)
	}
	components, err := b.Actions(cfg.Dialogs)
	if err != nil {
		return nil, err
	}
	d.Components = components
	return d, nil
}

// Recognizers.

type regexConfig struct {
	ID      string                      `yaml:"id"`
	Intents []recognizers.IntentPattern `yaml:"intents"`
}

type setConfig struct {
	ID          string      `yaml:"id"`
	Recognizers []yaml.Node `yaml:"recognizers"`
}

type multiLanguageConfig struct {
	ID             string                     `yaml:"id"`
	Recognizers    map[string]yaml.Node       `yaml:"recognizers"`
	LanguagePolicy recognizers.LanguagePolicy `yaml:"languagePolicy"`
}

func registerRecognizers(r *Registry) {
	r.Register(KindRegexRecognizer, func(_ *Builder, n *yaml.Node) (any, error) {
		var cfg regexConfig
		if err := n.Decode(&cfg); err != nil {
			return nil, err
		}
		return recognizers.NewRegexRecognizer(cfg.ID, cfg.Intents...)
	})
	r.Register(KindValueRecognizer, func(_ *Builder, n *yaml.Node) (any, error) {
		var cfg regexConfig
		if err := n.Decode(&cfg); err != nil {
			return nil, err
		}
		return recognizers.NewValueRecognizer(cfg.ID), nil
	})
	r.Register(KindRecognizerSet, func(b *Builder, n *yaml.Node) (any, error) {
		id, children, err := b.recognizerSet(n)
		if err != nil {
			return nil, err
		}
		s := recognizers.NewRecognizerSet(id, children...)
		s.Telemetry = b.telemetry
		return s, nil
	})
	r.Register(KindCrossTrainedRecognizerSet, func(b *Builder, n *yaml.Node) (any, error) {
		id, children, err := b.recognizerSet(n)
		if err != nil {
			return nil, err
		}
		for i, c := range children {
			if c.ID() == "" {
				return nil, fmt.Errorf("recognizer %d: %w", i, recognizers.ErrMissingID)
			}
		}
		s := recognizers.NewCrossTrainedRecognizerSet(id, children...)
		s.Telemetry = b.telemetry
		return s, nil
	})
	r.Register(KindMultiLanguageRecognizer, func(b *Builder, n *yaml.Node) (any, error) {
		var cfg multiLanguageConfig
		if err := n.Decode(&cfg); err != nil {
			return nil, err
		}
		byLocale := make(map[string]recognizers.Recognizer, len(cfg.Recognizers))
		for locale, node := range cfg.Recognizers {
			rec, err := b.Recognizer(&node)
			if err != nil {
				return nil, fmt.Errorf("locale %q: %w", locale, err)
			}
			byLocale[locale] = rec
		}
		m := recognizers.NewMultiLanguageRecognizer(cfg.ID, byLocale)
		m.Policy = cfg.LanguagePolicy
		m.Telemetry = b.telemetry
		return m, nil
	})
}

func (b *Builder) recognizerSet(n *yaml.Node) (string, []recognizers.Recognizer, error) {
	var cfg setConfig
	if err := n.Decode(&cfg); err != nil {
		return "", nil, err
	}
	out := make([]recognizers.Recognizer, 0, len(cfg.Recognizers))
	for i := range cfg.Recognizers {
		rec, err := b.Recognizer(&cfg.Recognizers[i])
		if err != nil {
			return "", nil, err
		}
		out = append(out, rec)
	}
	return cfg.ID, out, nil
}
