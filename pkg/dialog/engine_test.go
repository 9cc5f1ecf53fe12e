package dialog

import (
	"context"
	"errors"
	"testing"

	"github.com/voicetyped/adaptive/pkg/activity"
)

// fakeDialog is a minimal dialog whose behavior is set per test.
type fakeDialog struct {
	id       string
	begin    func(ctx context.Context, dc *Context, options any) (TurnResult, error)
	cont     func(ctx context.Context, dc *Context) (TurnResult, error)
	resumed  []Result
	ended    []Reason
	handles  string
	received []Event
}

func (f *fakeDialog) ID() string { return f.id }
func (f *fakeDialog) SetID(id string) { f.id = id }

func (f *fakeDialog) BeginDialog(ctx context.Context, dc *Context, options any) (TurnResult, error) {
	if f.begin != nil {
		return f.begin(ctx, dc, options)
	}
	return dc.EndDialog(ctx, Value(options))
}

func (f *fakeDialog) ContinueDialog(ctx context.Context, dc *Context) (TurnResult, error) {
	if f.cont != nil {
		return f.cont(ctx, dc)
	}
	return dc.EndDialog(ctx, Result{})
}

func (f *fakeDialog) ResumeDialog(ctx context.Context, dc *Context, _ Reason, result Result) (TurnResult, error) {
	f.resumed = append(f.resumed, result)
	return dc.EndDialog(ctx, result)
}

func (f *fakeDialog) EndDialog(_ context.Context, _ *Context, _ *Instance, reason Reason) error {
	f.ended = append(f.ended, reason)
	return nil
}

func (f *fakeDialog) OnDialogEvent(_ context.Context, _ *Context, ev Event) (bool, error) {
	f.received = append(f.received, ev)
	return ev.Name == f.handles && f.handles != "", nil
}

func waiting(_ context.Context, _ *Context, _ any) (TurnResult, error) {
	return TurnResult{Status: StatusWaiting}, nil
}

func TestSetMakesIDsUnique(t *testing.T) {
	a := &fakeDialog{id: "step"}
	b := &fakeDialog{id: "step"}
	c := &fakeDialog{id: "step"}
	s := NewSet(a, b, c, a)

	if s.Len() != 3 {
		t.Fatalf("len = %d, want 3", s.Len())
	}
	want := []string{"step", "step2", "step3"}
	for i, id := range s.IDs() {
		if id != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, id, want[i])
		}
	}
	if b.ID() != "step2" {
		t.Errorf("id not fixed on dialog: %q", b.ID())
	}
	if s.Find("step3") != c {
		t.Error("Find returned the wrong dialog")
	}
}

func TestEndDialogResumesParent(t *testing.T) {
	child := &fakeDialog{id: "child"}
	parent := &fakeDialog{id: "parent"}
	parent.begin = func(ctx context.Context, dc *Context, _ any) (TurnResult, error) {
		return dc.BeginDialog(ctx, "child", "hello")
	}

	dc := NewContext(NewSet(parent, child), nil, nil)
	res, err := dc.BeginDialog(t.Context(), "parent", nil)
	if err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	if res.Status != StatusComplete {
		t.Fatalf("status = %v, want complete", res.Status)
	}
	if res.Result.Value != "hello" {
		t.Errorf("result = %v, want hello", res.Result.Value)
	}
	if len(parent.resumed) != 1 || parent.resumed[0].Value != "hello" {
		t.Errorf("parent resumed with %v", parent.resumed)
	}
	if len(dc.Stack) != 0 {
		t.Errorf("stack depth = %d, want 0", len(dc.Stack))
	}
}

func TestReplaceDialogDoesNotResumeParent(t *testing.T) {
	first := &fakeDialog{id: "first"}
	second := &fakeDialog{id: "second", begin: waiting}
	first.begin = func(ctx context.Context, dc *Context, _ any) (TurnResult, error) {
		return dc.ReplaceDialog(ctx, "second", nil)
	}

	dc := NewContext(NewSet(first, second), nil, nil)
	res, err := dc.BeginDialog(t.Context(), "first", nil)
	if err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	if res.Status != StatusWaiting {
		t.Fatalf("status = %v, want waiting", res.Status)
	}
	if len(dc.Stack) != 1 || dc.ActiveDialog().ID != "second" {
		t.Fatalf("stack = %+v", dc.Stack)
	}
	if len(first.ended) != 1 || first.ended[0] != ReasonReplaceCalled {
		t.Errorf("first ended with %v", first.ended)
	}
}

func TestCancelAllDialogs(t *testing.T) {
	a := &fakeDialog{id: "a"}
	b := &fakeDialog{id: "b", begin: waiting}
	a.begin = func(ctx context.Context, dc *Context, _ any) (TurnResult, error) {
		return dc.BeginDialog(ctx, "b", nil)
	}

	dc := NewContext(NewSet(a, b), nil, nil)
	if _, err := dc.BeginDialog(t.Context(), "a", nil); err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	res, err := dc.CancelAllDialogs(t.Context())
	if err != nil {
		t.Fatalf("CancelAllDialogs: %v", err)
	}
	if res.Status != StatusCancelled || len(dc.Stack) != 0 {
		t.Fatalf("status = %v, depth = %d", res.Status, len(dc.Stack))
	}
	if b.ended[0] != ReasonCancelCalled || a.ended[0] != ReasonCancelCalled {
		t.Error("dialogs should be ended with cancelCalled")
	}
}

func TestBeginUnknownDialog(t *testing.T) {
	dc := NewContext(NewSet(), nil, nil)
	_, err := dc.BeginDialog(t.Context(), "missing", nil)
	if !errors.Is(err, ErrDialogNotFound) {
		t.Fatalf("err = %v, want ErrDialogNotFound", err)
	}
}

func TestEmitEventBubbles(t *testing.T) {
	outer := &fakeDialog{id: "outer", begin: waiting, handles: "custom"}
	inner := &fakeDialog{id: "inner", begin: waiting}

	root := NewContext(NewSet(outer), nil, nil)
	if _, err := root.BeginDialog(t.Context(), "outer", nil); err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	child := root.NewChild(NewSet(inner), nil)
	if _, err := child.BeginDialog(t.Context(), "inner", nil); err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}

	handled, err := child.EmitEvent(t.Context(), "custom", 1, false)
	if err != nil || handled {
		t.Fatalf("non-bubbling event: handled=%v err=%v", handled, err)
	}
	if len(outer.received) != 0 {
		t.Error("non-bubbling event reached the parent")
	}

	handled, err = child.EmitEvent(t.Context(), "custom", 2, true)
	if err != nil || !handled {
		t.Fatalf("bubbling event: handled=%v err=%v", handled, err)
	}
	if len(inner.received) != 2 || len(outer.received) != 1 {
		t.Errorf("received inner=%d outer=%d", len(inner.received), len(outer.received))
	}
}

func TestQueueChangesRequiresActionContext(t *testing.T) {
	root := NewContext(NewSet(), nil, nil)
	if err := root.QueueChanges(Change{Type: InsertActions}); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}

	plan := &Plan{}
	ac := root.NewActionContext(NewSet(), nil, &plan.Changes)
	nested := ac.NewChild(NewSet(), nil)
	if nested.HasPendingChanges() {
		t.Fatal("no changes queued yet")
	}
	if err := nested.QueueChanges(Change{Type: AppendActions, Actions: []*ActionState{{DialogID: "x"}}}); err != nil {
		t.Fatalf("QueueChanges: %v", err)
	}
	if !nested.HasPendingChanges() || len(plan.Changes) != 1 {
		t.Fatal("change should be queued on the owning plan")
	}
}

func TestPlanApplyChanges(t *testing.T) {
	plan := &Plan{Steps: []*ActionState{{DialogID: "current"}}}
	plan.Changes = []Change{
		{Type: InsertActions, Actions: []*ActionState{{DialogID: "a"}}},
		{Type: InsertActions, Actions: []*ActionState{{DialogID: "b1"}, {DialogID: "b2"}}},
		{Type: AppendActions, Actions: []*ActionState{{DialogID: "last"}}},
	}
	if !plan.ApplyChanges() {
		t.Fatal("ApplyChanges reported nothing applied")
	}
	want := []string{"b1", "b2", "a", "current", "last"}
	if len(plan.Steps) != len(want) {
		t.Fatalf("steps = %d, want %d", len(plan.Steps), len(want))
	}
	for i, s := range plan.Steps {
		if s.DialogID != want[i] {
			t.Errorf("steps[%d] = %q, want %q", i, s.DialogID, want[i])
		}
	}
	if plan.ApplyChanges() {
		t.Error("queue should be drained")
	}

	plan.Changes = []Change{{Type: EndSequence}}
	plan.ApplyChanges()
	if len(plan.Steps) != 0 {
		t.Error("endSequence should clear the plan")
	}
}

func TestPlanFromDecodedState(t *testing.T) {
	raw := map[string]any{
		"steps": []any{
			map[string]any{
				"dialogId":         "ForEach",
				"options":          map[string]any{"offset": float64(2)},
				"loopContinuation": true,
				"stack":            []any{map[string]any{"id": "scope", "state": map[string]any{"offset": float64(1)}}},
			},
		},
	}
	plan, err := PlanFrom(raw)
	if err != nil {
		t.Fatalf("PlanFrom: %v", err)
	}
	if len(plan.Steps) != 1 || !plan.Steps[0].LoopContinuation || !plan.Steps[0].Started() {
		t.Fatalf("plan = %+v", plan.Steps)
	}
	if plan.Steps[0].Stack[0].ID != "scope" {
		t.Errorf("stack id = %q", plan.Steps[0].Stack[0].ID)
	}
}

func TestMemoryScopes(t *testing.T) {
	container := &containerDialog{fakeDialog: fakeDialog{id: "root", begin: waiting}}
	step := &fakeDialog{id: "step", begin: waiting}

	root := NewContext(NewSet(container), nil, nil)
	if _, err := root.BeginDialog(t.Context(), "root", nil); err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}
	plan := &Plan{}
	ac := root.NewActionContext(NewSet(step), nil, &plan.Changes)
	if _, err := ac.BeginDialog(t.Context(), "step", nil); err != nil {
		t.Fatalf("BeginDialog: %v", err)
	}

	if err := ac.SetValue("dialog.name", "Ada"); err != nil {
		t.Fatalf("SetValue dialog: %v", err)
	}
	if err := ac.SetValue("this.offset", 3); err != nil {
		t.Fatalf("SetValue this: %v", err)
	}
	if err := ac.SetValue("$count", 1); err != nil {
		t.Fatalf("SetValue shorthand: %v", err)
	}
	if err := ac.SetValue("dialog", 1); err == nil {
		t.Error("replacing a scope should fail")
	}
	if err := ac.SetValue("nowhere.x", 1); err == nil {
		t.Error("unknown scope should fail")
	}

	if root.Stack[0].State["name"] != "Ada" || root.Stack[0].State["count"] != 1 {
		t.Errorf("dialog scope = %v", root.Stack[0].State)
	}
	if ac.Stack[0].State["offset"] != 3 {
		t.Errorf("this scope = %v", ac.Stack[0].State)
	}

	v, err := ac.Evaluate("dialog.name + ':' + this.offset")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v != "Ada:3" {
		t.Errorf("Evaluate = %v", v)
	}

	if !ac.DeleteValue("dialog.name") {
		t.Error("DeleteValue reported nothing removed")
	}
	if _, ok := ac.GetValue("dialog.name"); ok {
		t.Error("value still present after delete")
	}
}

type containerDialog struct {
	fakeDialog
}

func (c *containerDialog) Dialogs() *Set { return NewSet() }

func TestTemplateGenerator(t *testing.T) {
	g := NewTemplateGenerator()
	out, err := g.Generate(t.Context(), "Hi {{.user.name}}!{{.user.missing}}", map[string]any{
		"user": map[string]any{"name": "Ada"},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Hi Ada!" {
		t.Errorf("out = %q", out)
	}

	out, err = g.Generate(t.Context(), "plain text", nil)
	if err != nil || out != "plain text" {
		t.Errorf("plain = %q, %v", out, err)
	}
}

type memStore struct {
	states map[string]*ConversationState
}

func (m *memStore) Load(_ context.Context, id string) (*ConversationState, error) {
	return m.states[id], nil
}

func (m *memStore) Save(_ context.Context, s *ConversationState) error {
	m.states[s.ConversationID] = s
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	delete(m.states, id)
	return nil
}

func TestManagerOnTurn(t *testing.T) {
	prompt := &fakeDialog{id: "prompt"}
	prompt.begin = func(ctx context.Context, dc *Context, _ any) (TurnResult, error) {
		if _, err := dc.Turn.Adapter.SendActivity(ctx, activity.NewMessage("what is your name?")); err != nil {
			return TurnResult{}, err
		}
		return TurnResult{Status: StatusWaiting}, nil
	}
	prompt.cont = func(ctx context.Context, dc *Context) (TurnResult, error) {
		dc.Turn.User["name"] = dc.Turn.Activity().Text
		return dc.EndDialog(ctx, Value(dc.Turn.Activity().Text))
	}

	store := &memStore{states: map[string]*ConversationState{}}
	m := NewManager(NewSet(prompt), "prompt", store)

	in := activity.NewMessage("hi")
	in.Conversation.ID = "conv-1"
	turn := activity.NewBufferedTurn(in)
	res, err := m.OnTurn(t.Context(), turn)
	if err != nil {
		t.Fatalf("OnTurn: %v", err)
	}
	if res.Status != StatusWaiting {
		t.Fatalf("status = %v, want waiting", res.Status)
	}
	if len(turn.Replies()) != 1 {
		t.Fatalf("replies = %d, want 1", len(turn.Replies()))
	}
	if !store.states["conv-1"].Active() {
		t.Fatal("stack should be persisted")
	}

	in = activity.NewMessage("Ada")
	in.Conversation.ID = "conv-1"
	res, err = m.OnTurn(t.Context(), activity.NewBufferedTurn(in))
	if err != nil {
		t.Fatalf("OnTurn: %v", err)
	}
	if res.Status != StatusComplete || res.Result.Value != "Ada" {
		t.Fatalf("result = %+v", res)
	}
	st := store.states["conv-1"]
	if st.Active() || st.User["name"] != "Ada" || st.TurnCount != 2 {
		t.Errorf("state = %+v", st)
	}
}
