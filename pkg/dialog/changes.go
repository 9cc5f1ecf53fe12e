package dialog

import "github.com/voicetyped/adaptive/pkg/memory"

// ChangeType selects how a Change edits a plan.
type ChangeType string

const (
	InsertActions   ChangeType = "insertActions"
	AppendActions   ChangeType = "appendActions"
	EndSequence     ChangeType = "endSequence"
	ReplaceSequence ChangeType = "replaceSequence"
)

// ActionState is one step of a plan: a dialog to begin, or the suspended
// stack of a step that already started.
type ActionState struct {
	DialogID string      `json:"dialogId"`
	Options  any         `json:"options,omitempty"`
	Stack    []*Instance `json:"stack,omitempty"`
	// LoopContinuation marks the step that resumes a loop after its body.
	// Break and continue signals raised by body steps resolve against it.
	LoopContinuation bool `json:"loopContinuation,omitempty"`
}

// Started reports whether the step has a suspended stack.
func (s *ActionState) Started() bool { return len(s.Stack) > 0 }

// Change is a queued edit of the running plan.
type Change struct {
	Type    ChangeType     `json:"type"`
	Actions []*ActionState `json:"actions,omitempty"`
}

// Plan is the list of steps an adaptive dialog instance still has to run.
// Queued changes are applied in order before each step.
type Plan struct {
	Steps   []*ActionState `json:"steps"`
	Changes []Change       `json:"changes,omitempty"`
}

// ApplyChanges drains the queue into the steps. Inserted actions go before
// everything, so of two queued inserts the later one runs first.
func (p *Plan) ApplyChanges() bool {
	if len(p.Changes) == 0 {
		return false
	}
	changes := p.Changes
	p.Changes = nil
	for _, c := range changes {
		switch c.Type {
		case InsertActions:
			p.Steps = append(append([]*ActionState{}, c.Actions...), p.Steps...)
		case AppendActions:
			p.Steps = append(p.Steps, c.Actions...)
		case EndSequence:
			p.Steps = nil
		case ReplaceSequence:
			p.Steps = append([]*ActionState{}, c.Actions...)
		}
	}
	return true
}

// PlanFrom recovers a plan from instance state, which holds a *Plan during
// a turn and its decoded JSON form after a storage round trip.
func PlanFrom(v any) (*Plan, error) {
	switch p := v.(type) {
	case nil:
		return &Plan{}, nil
	case *Plan:
		return p, nil
	}
	plan := &Plan{}
	if err := memory.Decode(v, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
