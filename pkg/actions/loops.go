package actions

import (
	"context"
	"fmt"

	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/expression"
	"github.com/voicetyped/adaptive/pkg/memory"
)

// Default memory locations written by the loop actions.
const (
	DefaultIndexProperty     = "dialog.index"
	DefaultValueProperty     = "dialog.value"
	DefaultPageProperty      = "dialog.foreach.page"
	DefaultPageIndexProperty = "dialog.foreach.pageindex"
	DefaultPageSize          = 10
)

type loopOptions struct {
	Offset int `json:"offset"`
}

// items resolves an items property: "=expr" is evaluated, anything else is
// a memory path.
func items(dc *dialog.Context, property string) ([]memory.Entry, error) {
	var v any
	if expression.IsExpression(property) {
		var err error
		if v, err = dc.Evaluate(property); err != nil {
			return nil, err
		}
	} else {
		v, _ = dc.GetValue(property)
	}
	entries, ok := memory.Entries(v)
	if !ok {
		return nil, fmt.Errorf("items property %q is %T, not a list", property, v)
	}
	return entries, nil
}

// ForEach runs its body once per item. Each iteration sets the value and
// index properties and then queues the body, followed by a continuation of
// the loop, into the owning plan instead of running them itself. Arrays
// and objects are accepted; objects are iterated in key order.
type ForEach struct {
	Base `yaml:",inline"`
	ItemsProperty string
	IndexProperty string
	ValueProperty string
	Actions       []dialog.Dialog

	body *ActionScope
}

// NewForEach creates the loop and its body scope.
func NewForEach(itemsProperty string, actions ...dialog.Dialog) *ForEach {
	return &ForEach{
		ItemsProperty: itemsProperty,
		Actions:       actions,
		body:          NewActionScope(actions...),
	}
}

func (a *ForEach) ID() string {
	return a.idOr(func() string { return derivedID("ForEach", a.ItemsProperty) })
}

func (a *ForEach) Version() string {
	return a.ItemsProperty + ":" + a.body.Version()
}

func (a *ForEach) Dependencies() []dialog.Dialog {
	return []dialog.Dialog{a.body}
}

func (a *ForEach) BeginDialog(ctx context.Context, dc *dialog.Context, options any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	if dc.Owner() == nil {
		return dialog.TurnResult{}, configError("%s: must run inside an adaptive dialog", a.ID())
	}

	var opts loopOptions
	if options != nil {
		if err := memory.Decode(options, &opts); err != nil {
			return dialog.TurnResult{}, fmt.Errorf("%s: options: %w", a.ID(), err)
		}
	}

	entries, err := items(dc, a.ItemsProperty)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	if opts.Offset >= len(entries) {
		return dc.EndDialog(ctx, dialog.Result{})
	}

	item := entries[opts.Offset]
	if err := dc.SetValue(orDefault(a.ValueProperty, DefaultValueProperty), item.Value); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	if err := dc.SetValue(orDefault(a.IndexProperty, DefaultIndexProperty), item.Key); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}

	err = dc.QueueChanges(dialog.Change{
		Type: dialog.InsertActions,
		Actions: []*dialog.ActionState{
			{DialogID: a.body.ID()},
			{
				DialogID:         a.ID(),
				Options:          map[string]any{"offset": opts.Offset + 1},
				LoopContinuation: true,
			},
		},
	})
	if err != nil {
		return dialog.TurnResult{}, err
	}
	return dc.EndDialog(ctx, dialog.Result{})
}

// ForEachPage runs its actions once per page of PageSize items. The page
// and the index of the next page are stored in memory. Break ends the loop;
// continue and the end of the actions move to the next page.
type ForEachPage struct {
	ActionScope
	ItemsProperty     string
	PageSize          expression.IntExpression
	PageProperty      string
	PageIndexProperty string
}

// NewForEachPage creates the loop over itemsProperty.
func NewForEachPage(itemsProperty string, pageSize expression.IntExpression, actions ...dialog.Dialog) *ForEachPage {
	a := &ForEachPage{
		ActionScope:   ActionScope{Actions: actions},
		ItemsProperty: itemsProperty,
		PageSize:      pageSize,
	}
	a.hooks = a
	return a
}

func (a *ForEachPage) ID() string {
	return a.idOr(func() string { return derivedID("ForEachPage", a.ItemsProperty) })
}

func (a *ForEachPage) Version() string {
	return a.ItemsProperty + ":" + a.PageSize.String() + ":" + a.ActionScope.Version()
}

func (a *ForEachPage) BeginDialog(ctx context.Context, dc *dialog.Context, _ any) (dialog.TurnResult, error) {
	if res, skipped, err := a.skipIfDisabled(ctx, dc); skipped || err != nil {
		return res, err
	}
	if err := dc.SetValue(a.pageIndexProperty(), 0); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	return a.nextPage(ctx, dc)
}

func (a *ForEachPage) onEndOfActions(ctx context.Context, dc *dialog.Context, _ dialog.Result) (dialog.TurnResult, error) {
	return a.nextPage(ctx, dc)
}

func (a *ForEachPage) onBreakLoop(ctx context.Context, dc *dialog.Context, _ dialog.Result) (dialog.TurnResult, error) {
	return dc.EndDialog(ctx, dialog.Result{})
}

func (a *ForEachPage) onContinueLoop(ctx context.Context, dc *dialog.Context, _ dialog.Result) (dialog.TurnResult, error) {
	return a.nextPage(ctx, dc)
}

func (a *ForEachPage) nextPage(ctx context.Context, dc *dialog.Context) (dialog.TurnResult, error) {
	raw, _ := dc.GetValue(a.pageIndexProperty())
	pageIndex, _ := memory.ToInt(raw)

	size, err := a.PageSize.Eval(dc)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: evaluate pageSize: %w", a.ID(), err)
	}
	if size <= 0 {
		size = DefaultPageSize
	}

	entries, err := items(dc, a.ItemsProperty)
	if err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}

	start := pageIndex * size
	if start >= len(entries) {
		return dc.EndDialog(ctx, dialog.Result{})
	}
	end := min(start+size, len(entries))
	page := make([]any, 0, end-start)
	for _, e := range entries[start:end] {
		page = append(page, e.Value)
	}

	if err := dc.SetValue(orDefault(a.PageProperty, DefaultPageProperty), page); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	if err := dc.SetValue(a.pageIndexProperty(), pageIndex+1); err != nil {
		return dialog.TurnResult{}, fmt.Errorf("%s: %w", a.ID(), err)
	}
	return a.beginAction(ctx, dc, 0)
}

func (a *ForEachPage) pageIndexProperty() string {
	return orDefault(a.PageIndexProperty, DefaultPageIndexProperty)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
