package actions

import (
	"errors"
	"testing"

	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/memory"
)

func pushPage() *EditArray {
	return &EditArray{
		ChangeType:    ArrayPush,
		ItemsProperty: expression.NewString("conversation.pages"),
		Value:         expression.NewValue("=dialog.foreach.page"),
	}
}

func numbers(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestForEachPageEmptyItems(t *testing.T) {
	loop := NewForEachPage("conversation.items", expression.Int(10), setProp("conversation.ran", true))
	scope := NewActionScope(setProp("conversation.items", "=[]"), loop)

	dc, res, err := begin(t, scope, nil)
	if err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	if res.Status != dialog.StatusComplete {
		t.Fatalf("status = %s", res.Status)
	}
	if conv(dc, "ran") != nil {
		t.Error("page body ran for an empty list")
	}
}

func TestForEachPagePartialPage(t *testing.T) {
	loop := NewForEachPage("conversation.items", expression.Int(10), pushPage())
	dc := dialog.NewContext(dialog.NewSet(loop), nil, nil)
	dc.Turn.Conversation["items"] = numbers(15)

	res, err := dc.BeginDialog(t.Context(), loop.ID(), nil)
	if err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	if res.Status != dialog.StatusComplete {
		t.Fatalf("status = %s", res.Status)
	}

	pages, _ := conv(dc, "pages").([]any)
	if len(pages) != 2 {
		t.Fatalf("pages = %v, want 2 pages", pages)
	}
	if !memory.Equal(pages[0], numbers(10)) {
		t.Errorf("first page = %v", pages[0])
	}
	want := []any{10, 11, 12, 13, 14}
	if !memory.Equal(pages[1], want) {
		t.Errorf("second page = %v, want %v", pages[1], want)
	}
}

func TestForEachPageDefaultPageSize(t *testing.T) {
	loop := NewForEachPage("conversation.items", expression.IntExpression{}, pushPage())
	dc := dialog.NewContext(dialog.NewSet(loop), nil, nil)
	dc.Turn.Conversation["items"] = numbers(DefaultPageSize + 1)

	if _, err := dc.BeginDialog(t.Context(), loop.ID(), nil); err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	if pages, _ := conv(dc, "pages").([]any); len(pages) != 2 {
		t.Errorf("pages = %v, want 2", pages)
	}
}

func TestForEachPageBreakAndContinue(t *testing.T) {
	tests := []struct {
		name  string
		body  []dialog.Dialog
		pages int
	}{
		{name: "break", body: []dialog.Dialog{pushPage(), &BreakLoop{}, setProp("conversation.after", true)}, pages: 1},
		{name: "continue", body: []dialog.Dialog{pushPage(), &ContinueLoop{}, setProp("conversation.after", true)}, pages: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := NewForEachPage("conversation.items", expression.Int(2), tt.body...)
			scope := NewActionScope(loop, setProp("conversation.done", true))
			dc := dialog.NewContext(dialog.NewSet(scope), nil, nil)
			dc.Turn.Conversation["items"] = numbers(5)

			res, err := dc.BeginDialog(t.Context(), scope.ID(), nil)
			if err != nil {
				t.Fatalf("BeginDialog: %v", err)
			}
			if res.Status != dialog.StatusComplete || res.Result.IsSignal() {
				t.Fatalf("result = %+v", res)
			}
			if pages, _ := conv(dc, "pages").([]any); len(pages) != tt.pages {
				t.Errorf("pages = %v, want %d", pages, tt.pages)
			}
			if conv(dc, "after") != nil {
				t.Error("action after the signal ran")
			}
			if conv(dc, "done") != true {
				t.Error("signal escaped the loop")
			}
		})
	}
}

func TestForEachPageCustomProperties(t *testing.T) {
	loop := NewForEachPage("=conversation.items.filter(i => i % 2 == 0)", expression.Int(2),
		&EditArray{
			ChangeType:    ArrayPush,
			ItemsProperty: expression.NewString("conversation.pages"),
			Value:         expression.NewValue("=conversation.paging.items"),
		})
	loop.PageProperty = "conversation.paging.items"
	loop.PageIndexProperty = "conversation.paging.index"
	dc := dialog.NewContext(dialog.NewSet(loop), nil, nil)
	dc.Turn.Conversation["items"] = numbers(6)

	if _, err := dc.BeginDialog(t.Context(), loop.ID(), nil); err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	want := []any{[]any{0, 2}, []any{4}}
	if !memory.Equal(conv(dc, "pages"), want) {
		t.Errorf("pages = %v, want %v", conv(dc, "pages"), want)
	}
	if idx, _ := memory.Get(dc.Turn.Conversation, "paging.index"); !memory.Equal(idx, 2) {
		t.Errorf("page index left at %v, want 2", idx)
	}
}

func TestForEachQueuesBodyAndContinuation(t *testing.T) {
	loop := NewForEach("dialog.items", setProp("conversation.seen", "=dialog.value"))
	set := dialog.NewSet(loop)
	root := dialog.NewContext(set, nil, []*dialog.Instance{
		{ID: "owner", State: map[string]any{"items": []any{"a", "b"}}},
	})

	var changes []dialog.Change
	dc := root.NewActionContext(set, nil, &changes)
	res, err := dc.BeginDialog(t.Context(), loop.ID(), map[string]any{"offset": 1})
	if err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	if res.Status != dialog.StatusComplete {
		t.Fatalf("status = %s", res.Status)
	}

	owner := root.Stack[0].State
	if owner["value"] != "b" || !memory.Equal(owner["index"], 1) {
		t.Errorf("value/index = %v/%v", owner["value"], owner["index"])
	}

	if len(changes) != 1 || changes[0].Type != dialog.InsertActions {
		t.Fatalf("changes = %+v", changes)
	}
	steps := changes[0].Actions
	if len(steps) != 2 {
		t.Fatalf("steps = %d, want body and continuation", len(steps))
	}
	if steps[0].DialogID != loop.body.ID() || steps[0].LoopContinuation {
		t.Errorf("body step = %+v", steps[0])
	}
	if steps[1].DialogID != loop.ID() || !steps[1].LoopContinuation {
		t.Errorf("continuation step = %+v", steps[1])
	}
	var opts loopOptions
	if err := memory.Decode(steps[1].Options, &opts); err != nil || opts.Offset != 2 {
		t.Errorf("continuation options = %v", steps[1].Options)
	}
}

func TestForEachExhausted(t *testing.T) {
	loop := NewForEach("dialog.items")
	set := dialog.NewSet(loop)
	root := dialog.NewContext(set, nil, []*dialog.Instance{
		{ID: "owner", State: map[string]any{"items": []any{"a"}}},
	})
	var changes []dialog.Change
	dc := root.NewActionContext(set, nil, &changes)

	if _, err := dc.BeginDialog(t.Context(), loop.ID(), map[string]any{"offset": 1}); err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	if len(changes) != 0 {
		t.Errorf("queued %d changes after the last item", len(changes))
	}
}

func TestForEachObjectKeys(t *testing.T) {
	loop := NewForEach("dialog.items")
	set := dialog.NewSet(loop)
	root := dialog.NewContext(set, nil, []*dialog.Instance{
		{ID: "owner", State: map[string]any{"items": map[string]any{"b": 2, "a": 1}}},
	})
	var changes []dialog.Change
	if _, err := root.NewActionContext(set, nil, &changes).BeginDialog(t.Context(), loop.ID(), nil); err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	if owner := root.Stack[0].State; owner["index"] != "a" || !memory.Equal(owner["value"], 1) {
		t.Errorf("first entry = %v/%v, want a/1", owner["index"], owner["value"])
	}
}

func TestForEachRequiresPlanOwner(t *testing.T) {
	loop := NewForEach("conversation.items")
	if _, _, err := begin(t, loop, nil); !errors.Is(err, dialog.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration error", err)
	}
}
