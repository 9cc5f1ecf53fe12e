package recognizers

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/memory"
	"github.com/voicetyped/adaptive/pkg/telemetry"
)

func regex(id string, pairs ...string) *RegexRecognizer {
	var patterns []IntentPattern
	for i := 0; i+1 < len(pairs); i += 2 {
		patterns = append(patterns, IntentPattern{Intent: pairs[i], Pattern: pairs[i+1]})
	}
	return MustRegexRecognizer(id, patterns...)
}

func message(text string) *activity.Activity {
	return activity.NewMessage(text)
}

func intents(names ...string) map[string]IntentScore {
	out := map[string]IntentScore{}
	for _, n := range names {
		out[n] = IntentScore{Score: 1}
	}
	return out
}

type failing struct{ id string }

func (f failing) ID() string { return f.id }

func (f failing) Recognize(context.Context, *activity.Activity) (*Result, error) {
	return nil, errors.New("backend down")
}

func TestRegexRecognizer(t *testing.T) {
	r := regex("greet", "Greeting", `^(hi|hello)\b`, "Order", `order (?P<qty>\d+) (?P<item>\w+)`)

	tests := []struct {
		name     string
		text     string
		intents  map[string]IntentScore
		entities map[string]any
	}{
		{name: "no match", text: "bye", intents: intents(None)},
		{name: "case insensitive", text: "Hello there", intents: intents("Greeting")},
		{name: "named groups", text: "please order 3 pizzas", intents: intents("Order"),
			entities: map[string]any{"qty": []any{"3"}, "item": []any{"pizzas"}}},
		{name: "both match", text: "hi, order 1 tea", intents: intents("Greeting", "Order")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Recognize(t.Context(), message(tt.text))
			if err != nil {
				t.Fatalf("Recognize: %v", err)
			}
			if !reflect.DeepEqual(res.Intents, tt.intents) {
				t.Errorf("intents = %v, want %v", res.Intents, tt.intents)
			}
			for k, want := range tt.entities {
				if !memory.Equal(res.Entities[k], want) {
					t.Errorf("entity %s = %v, want %v", k, res.Entities[k], want)
				}
			}
		})
	}

	if _, err := NewRegexRecognizer("bad", IntentPattern{Intent: "x", Pattern: "("}); err == nil {
		t.Error("expected compile error")
	}
}

func TestValueRecognizer(t *testing.T) {
	act := message("")
	act.Value = map[string]any{"intent": "book", "city": "Paris"}

	res, err := NewValueRecognizer("value").Recognize(t.Context(), act)
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if top, _ := res.TopIntent(); top != "book" {
		t.Errorf("top intent = %s", top)
	}
	if !memory.Equal(res.Entities["city"], []any{"Paris"}) {
		t.Errorf("entities = %v", res.Entities)
	}

	res, _ = NewValueRecognizer("value").Recognize(t.Context(), message("no value"))
	if !reflect.DeepEqual(res.Intents, intents(None)) {
		t.Errorf("intents = %v, want None", res.Intents)
	}
}

func TestTopIntent(t *testing.T) {
	res := &Result{Intents: map[string]IntentScore{None: {Score: 0.8}, "b": {Score: 0.8}, "a": {Score: 0.8}}}
	if top, score := res.TopIntent(); top != "a" || score != 0.8 {
		t.Errorf("TopIntent = %s/%v, want a/0.8", top, score)
	}
	if top, _ := (&Result{}).TopIntent(); top != None {
		t.Errorf("empty TopIntent = %s", top)
	}
}

func TestRecognizerSetMerges(t *testing.T) {
	rec := &telemetry.Recorder{}
	set := NewRecognizerSet("set",
		regex("a", "Order", `order (?P<item>\w+)`, "Greeting", `hello`),
		regex("b", "Order", `(?P<item>\w+) please`),
		regex("c", "Cancel", `cancel`),
	)
	set.Telemetry = rec

	res, err := set.Recognize(t.Context(), message("hello order tea please"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !reflect.DeepEqual(res.Intents, intents("Order", "Greeting", None)) {
		t.Errorf("intents = %v", res.Intents)
	}
	if top, _ := res.TopIntent(); top != "Greeting" {
		t.Errorf("top intent = %s, want Greeting", top)
	}
	if !memory.Equal(res.Entities["item"], []any{"tea", "tea"}) {
		t.Errorf("item = %v, want both recognizers' matches", res.Entities["item"])
	}
	if len(rec.Named(TelemetryResultEvent)) != 1 {
		t.Errorf("tracked %d results", len(rec.Events))
	}

	if _, err := NewRecognizerSet("set", failing{"x"}).Recognize(t.Context(), message("hi")); err == nil {
		t.Error("expected child error to propagate")
	}
}

func TestRecognizerSetEmpty(t *testing.T) {
	res, err := NewRecognizerSet("empty").Recognize(t.Context(), message("hi"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !reflect.DeepEqual(res.Intents, intents(None)) {
		t.Errorf("intents = %v", res.Intents)
	}
}

func TestMultiLanguageRecognizer(t *testing.T) {
	m := NewMultiLanguageRecognizer("lang", map[string]Recognizer{
		"en-us": regex("en-us", "US", `.`),
		"en":    regex("en", "EN", `.`),
		"":      regex("neutral", "Neutral", `.`),
	})

	tests := []struct {
		locale string
		want   string
	}{
		{locale: "en-us", want: "US"},
		{locale: "EN-US", want: "US"},
		{locale: "en-gb", want: "EN"},
		{locale: "fr-fr", want: "Neutral"},
		{locale: "", want: "Neutral"},
	}
	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			act := message("text")
			act.Locale = tt.locale
			res, err := m.Recognize(t.Context(), act)
			if err != nil {
				t.Fatalf("Recognize: %v", err)
			}
			if top, _ := res.TopIntent(); top != tt.want {
				t.Errorf("top intent = %s, want %s", top, tt.want)
			}
		})
	}

	m.Policy = LanguagePolicy{"fr-fr": {"en"}}
	act := message("text")
	act.Locale = "fr-FR"
	if res, _ := m.Recognize(t.Context(), act); !reflect.DeepEqual(res.Intents, intents("EN")) {
		t.Errorf("policy override intents = %v", res.Intents)
	}

	none := NewMultiLanguageRecognizer("lang", map[string]Recognizer{"de": regex("de", "DE", `.`)})
	act.Locale = "en"
	if res, _ := none.Recognize(t.Context(), act); !reflect.DeepEqual(res.Intents, intents(None)) {
		t.Errorf("missing locale intents = %v", res.Intents)
	}
}

func TestCrossTrainedConsensusThroughRedirect(t *testing.T) {
	set := NewCrossTrainedRecognizerSet("xt",
		regex("x", DeferPrefix+"y", `duck`),
		regex("y", "y", `duck`),
		regex("z", "z", `goose`),
	)
	res, err := set.Recognize(t.Context(), message("duck"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !reflect.DeepEqual(res.Intents, intents("y")) {
		t.Errorf("intents = %v, want exactly y", res.Intents)
	}
}

func TestCrossTrainedAmbiguity(t *testing.T) {
	set := NewCrossTrainedRecognizerSet("xt",
		regex("x", "x", `duck`),
		regex("other", None, `duck`),
		regex("y", "y", `duck`),
	)
	res, err := set.Recognize(t.Context(), message("duck"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !reflect.DeepEqual(res.Intents, intents(ChooseIntent)) {
		t.Fatalf("intents = %v, want ChooseIntent", res.Intents)
	}
	if len(res.Candidates) != 2 || res.Candidates[0].ID != "x" || res.Candidates[1].ID != "y" {
		t.Fatalf("candidates = %+v", res.Candidates)
	}
	listed, _ := res.Entities["candidates"].([]any)
	if len(listed) != 2 {
		t.Errorf("candidates entity = %v", res.Entities["candidates"])
	}
	if got, _ := res.Memory()["intent"].(string); got != ChooseIntent {
		t.Errorf("memory intent = %v", got)
	}
}

func TestCrossTrainedRedirectToOtherConsensus(t *testing.T) {
	set := NewCrossTrainedRecognizerSet("xt",
		regex("x", "x", `duck`),
		regex("y", DeferPrefix+"z", `duck`),
		regex("z", "z", `duck`),
	)
	res, _ := set.Recognize(t.Context(), message("duck"))
	if !reflect.DeepEqual(res.Intents, intents(ChooseIntent)) {
		t.Fatalf("intents = %v, want ChooseIntent", res.Intents)
	}
	if len(res.Candidates) != 2 || res.Candidates[1].ID != "z" {
		t.Errorf("candidates = %+v", res.Candidates)
	}
}

func TestCrossTrainedRedirectChain(t *testing.T) {
	tests := []struct {
		name string
		set  *CrossTrainedRecognizerSet
		want string
	}{
		{name: "two hops", want: "z", set: NewCrossTrainedRecognizerSet("xt",
			regex("x", DeferPrefix+"y", `book`),
			regex("y", DeferPrefix+"z", `book`),
			regex("z", "z", `book`),
		)},
		{name: "redirect to none is no claim", want: "z", set: NewCrossTrainedRecognizerSet("xt",
			regex("x", DeferPrefix+"y", `book`),
			regex("y", "y", `flight`),
			regex("z", "z", `book`),
		)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.set.Recognize(t.Context(), message("book"))
			if err != nil {
				t.Fatalf("Recognize: %v", err)
			}
			if !reflect.DeepEqual(res.Intents, intents(tt.want)) {
				t.Errorf("intents = %v, want exactly %s", res.Intents, tt.want)
			}
			if len(res.Candidates) != 0 {
				t.Errorf("candidates = %+v, want none", res.Candidates)
			}
		})
	}
}

func TestCrossTrainedRedirectToNoneMergesEntities(t *testing.T) {
	set := NewCrossTrainedRecognizerSet("xt",
		regex("x", DeferPrefix+"y", `(?P<item>book)`),
		regex("y", "y", `flight`),
	)
	res, err := set.Recognize(t.Context(), message("book"))
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !reflect.DeepEqual(res.Intents, intents(None)) {
		t.Fatalf("intents = %v, want exactly None", res.Intents)
	}
	if !memory.Equal(res.Entities["item"], []any{"book"}) {
		t.Errorf("entities = %v, want the redirecting recognizer's item", res.Entities)
	}
}

func TestCrossTrainedNone(t *testing.T) {
	tests := []struct {
		name string
		set  *CrossTrainedRecognizerSet
	}{
		{name: "single none", set: NewCrossTrainedRecognizerSet("xt", regex("x", None, `duck`))},
		{name: "redirect to missing recognizer", set: NewCrossTrainedRecognizerSet("xt", regex("r", DeferPrefix+"x", `duck`))},
		{name: "self redirect", set: NewCrossTrainedRecognizerSet("xt", regex("x", DeferPrefix+"x", `duck`))},
		{name: "redirect cycle", set: NewCrossTrainedRecognizerSet("xt",
			regex("x", DeferPrefix+"y", `duck`),
			regex("y", DeferPrefix+"x", `duck`),
			regex("z", "z", `duck`),
		)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.set.Recognize(t.Context(), message("duck"))
			if err != nil {
				t.Fatalf("Recognize: %v", err)
			}
			if !reflect.DeepEqual(res.Intents, intents(None)) {
				t.Errorf("intents = %v, want exactly None", res.Intents)
			}
		})
	}
}

func TestCrossTrainedNoneMergesEntities(t *testing.T) {
	set := NewCrossTrainedRecognizerSet("xt",
		regex("x", None, `(?P<animal>duck)`),
		regex("y", None, `(?P<sound>quack)`),
	)
	res, _ := set.Recognize(t.Context(), message("duck says quack"))
	if !memory.Equal(res.Entities["animal"], []any{"duck"}) || !memory.Equal(res.Entities["sound"], []any{"quack"}) {
		t.Errorf("entities = %v", res.Entities)
	}
}

func TestCrossTrainedRequiresIDs(t *testing.T) {
	set := NewCrossTrainedRecognizerSet("xt", regex("", "x", `duck`))
	if _, err := set.Recognize(t.Context(), message("duck")); !errors.Is(err, ErrMissingID) {
		t.Fatalf("err = %v, want ErrMissingID", err)
	}
}
