package declarative

import (
	"errors"
	"slices"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/voicetyped/adaptive/pkg/actions"
	"github.com/voicetyped/adaptive/pkg/adaptive"
	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/recognizers"
)

func parseDialog(t *testing.T, src string) (*adaptive.Dialog, error) {
	t.Helper()
	v, err := NewBuilder(nil).Parse([]byte(src))
	if err != nil {
		return nil, err
	}
	d, ok := v.(*adaptive.Dialog)
	if !ok {
		t.Fatalf("parsed %T, want *adaptive.Dialog", v)
	}
	return d, nil
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{
			name: "valid goto",
			src: `
$kind: Microsoft.AdaptiveDialog
id: main
triggers:
  - $kind: Microsoft.OnBeginDialog
    actions:
      - $kind: Microsoft.GotoAction
        actionId: end
      - $kind: Microsoft.SendActivity
        id: end
        activity: done
`,
		},
		{
			name: "goto target missing",
			src: `
$kind: Microsoft.AdaptiveDialog
id: main
triggers:
  - $kind: Microsoft.OnBeginDialog
    actions:
      - $kind: Microsoft.GotoAction
        actionId: nowhere
`,
			wantErr: dialog.ErrConfiguration,
		},
		{
			name: "computed goto target is not checked",
			src: `
$kind: Microsoft.AdaptiveDialog
id: main
triggers:
  - $kind: Microsoft.OnBeginDialog
    actions:
      - $kind: Microsoft.GotoAction
        actionId: "=conversation.next"
`,
		},
		{
			name: "duplicate ids across triggers",
			src: `
$kind: Microsoft.AdaptiveDialog
id: main
triggers:
  - $kind: Microsoft.OnBeginDialog
    actions:
      - $kind: Microsoft.EndTurn
        id: ask
  - $kind: Microsoft.OnUnknownIntent
    actions:
      - $kind: Microsoft.IfCondition
        condition: "true"
        actions:
          - $kind: Microsoft.EndTurn
            id: ask
`,
			wantErr: dialog.ErrConfiguration,
		},
		{
			name: "missing property",
			src: `
$kind: Microsoft.AdaptiveDialog
id: main
triggers:
  - $kind: Microsoft.OnBeginDialog
    actions:
      - $kind: Microsoft.SetProperty
        value: 1
`,
			wantErr: dialog.ErrConfiguration,
		},
		{
			name: "unknown change type",
			src: `
$kind: Microsoft.AdaptiveDialog
id: main
triggers:
  - $kind: Microsoft.OnBeginDialog
    actions:
      - $kind: Microsoft.EditArray
        changeType: shuffle
        itemsProperty: conversation.list
`,
			wantErr: dialog.ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := parseDialog(t, tt.src)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			err = Validate(d)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
	}{
		{name: "unknown kind", src: "$kind: Microsoft.Nope\n", wantErr: ErrUnknownKind},
		{
			name: "intent required",
			src: `
$kind: Microsoft.AdaptiveDialog
triggers:
  - $kind: Microsoft.OnIntent
`,
			wantErr: dialog.ErrConfiguration,
		},
		{
			name: "custom event name required",
			src: `
$kind: Microsoft.AdaptiveDialog
triggers:
  - $kind: Microsoft.OnCustomEvent
`,
			wantErr: dialog.ErrConfiguration,
		},
		{
			name: "action in trigger position",
			src: `
$kind: Microsoft.AdaptiveDialog
triggers:
  - $kind: Microsoft.EndTurn
`,
			wantErr: dialog.ErrConfiguration,
		},
		{
			name: "cross-trained child without id",
			src: `
$kind: Microsoft.AdaptiveDialog
recognizer:
  $kind: Microsoft.CrossTrainedRecognizerSet
  recognizers:
    - $kind: Microsoft.RegexRecognizer
`,
			wantErr: recognizers.ErrMissingID,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseDialog(t, tt.src); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if _, err := parseDialog(t, "just: a map\n"); err == nil {
		t.Error("expected error for a mapping without $kind")
	}
}

func TestBuildComposites(t *testing.T) {
	d, err := parseDialog(t, `
$kind: Microsoft.AdaptiveDialog
id: main
selector: all
recognizer:
  $kind: Microsoft.MultiLanguageRecognizer
  id: lang
  languagePolicy:
    fr-ca: [fr-ca, en]
  recognizers:
    en:
      $kind: Microsoft.RecognizerSet
      id: set
      recognizers:
        - $kind: Microsoft.RegexRecognizer
          id: greet
          intents:
            - {intent: Greeting, pattern: hello}
        - $kind: Microsoft.ValueRecognizer
          id: value
triggers:
  - $kind: Microsoft.OnCondition
    event: custom
    condition: "=conversation.ready"
    priority: 2
    actions:
      - $kind: Microsoft.SwitchCondition
        condition: "=conversation.n"
        cases:
          - value: 1
            actions:
              - {$kind: Microsoft.SendActivity, activity: one}
        default:
          - $kind: Microsoft.ForeachPage
            itemsProperty: conversation.items
            pageSize: 5
            page: conversation.page
            actions:
              - $kind: Microsoft.BreakLoop
      - $kind: Microsoft.HttpRequest
        method: GET
        url: https://example.com/orders
        responseType: json
        headers:
          X-User: "${user.name}"
  - $kind: Microsoft.OnChooseIntent
    actions:
      - $kind: Microsoft.Foreach
        itemsProperty: turn.recognized.candidates
        index: dialog.i
        value: dialog.candidate
`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := Validate(d); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if _, ok := d.Selector.(adaptive.AllSelector); !ok {
		t.Errorf("selector = %T", d.Selector)
	}
	lang, ok := d.Recognizer.(*recognizers.MultiLanguageRecognizer)
	if !ok {
		t.Fatalf("recognizer = %T", d.Recognizer)
	}
	if !slices.Equal(lang.Policy["fr-ca"], []string{"fr-ca", "en"}) {
		t.Errorf("policy = %v", lang.Policy)
	}
	if set, ok := lang.Select("en-US").(*recognizers.RecognizerSet); !ok || len(set.Recognizers) != 2 {
		t.Errorf("en recognizer = %T", lang.Select("en-US"))
	}

	custom := d.Triggers[0]
	if custom.Event != "custom" || custom.Condition.IsEmpty() || custom.Priority.String() != "2" {
		t.Errorf("custom trigger = %+v", custom)
	}
	sw, ok := custom.Actions[0].(*actions.SwitchCondition)
	if !ok || len(sw.Cases) != 1 || sw.Cases[0].Value != "1" {
		t.Fatalf("switch = %+v", custom.Actions[0])
	}
	page, ok := sw.Default[0].(*actions.ForEachPage)
	if !ok || page.PageProperty != "conversation.page" || page.PageSize.String() != "5" {
		t.Errorf("page loop = %+v", sw.Default[0])
	}
	req, ok := custom.Actions[1].(*actions.HTTPRequest)
	if !ok || req.ResponseType != actions.ResponseJSON || req.Headers["X-User"] != expression.NewString("${user.name}") {
		t.Errorf("http request = %+v", custom.Actions[1])
	}

	choose := d.Triggers[1]
	if choose.Intent != recognizers.ChooseIntent || choose.Event != dialog.EventRecognizedIntent {
		t.Errorf("choose trigger = %+v", choose)
	}
	loop, ok := choose.Actions[0].(*actions.ForEach)
	if !ok || loop.IndexProperty != "dialog.i" || loop.ValueProperty != "dialog.candidate" {
		t.Errorf("foreach = %+v", choose.Actions[0])
	}
}

func TestRegistryCustomKind(t *testing.T) {
	r := NewRegistry()
	if !slices.Contains(r.Kinds(), KindCrossTrainedRecognizerSet) {
		t.Fatalf("kinds = %v", r.Kinds())
	}
	r.Register("Contoso.Ping", func(*Builder, *yaml.Node) (any, error) {
		return &actions.SendActivity{Text: "pong"}, nil
	})

	v, err := NewBuilder(r).Parse([]byte("$kind: Microsoft.AdaptiveDialog\ntriggers:\n  - $kind: Microsoft.OnBeginDialog\n    actions:\n      - $kind: Contoso.Ping\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	d := v.(*adaptive.Dialog)
	if send, ok := d.Triggers[0].Actions[0].(*actions.SendActivity); !ok || send.Text != "pong" {
		t.Errorf("custom action = %+v", d.Triggers[0].Actions[0])
	}
}
