// Package dialog is the dialog stack runtime: dialogs are pushed onto a
// per-conversation stack, begun, continued on later turns, resumed when a
// child ends, and popped when they end. Action nodes, composites and the
// adaptive dialog all implement the Dialog contract defined here.
package dialog

import (
	"context"
	"errors"
)

var (
	// ErrConfiguration marks an error in a dialog definition: a goto to a
	// missing action, an unknown control command, a missing required
	// property. It aborts the turn.
	ErrConfiguration = errors.New("dialog configuration error")
	// ErrDialogNotFound is returned when a dialog id cannot be resolved.
	ErrDialogNotFound = errors.New("dialog not found")
)

// Reason tells a dialog why it is being resumed or ended.
type Reason string

const (
	ReasonBeginCalled    Reason = "beginCalled"
	ReasonContinueCalled Reason = "continueCalled"
	ReasonEndCalled      Reason = "endCalled"
	ReasonReplaceCalled  Reason = "replaceCalled"
	ReasonCancelCalled   Reason = "cancelCalled"
	ReasonNextCalled     Reason = "nextCalled"
)

// Dialog is a unit of conversational logic that can sit on the dialog stack.
type Dialog interface {
	ID() string
	// BeginDialog runs when the dialog is pushed onto the stack.
	BeginDialog(ctx context.Context, dc *Context, options any) (TurnResult, error)
	// ContinueDialog runs when a new turn arrives and this dialog is active.
	ContinueDialog(ctx context.Context, dc *Context) (TurnResult, error)
	// ResumeDialog runs when a child dialog ended and this one is active again.
	ResumeDialog(ctx context.Context, dc *Context, reason Reason, result Result) (TurnResult, error)
	// EndDialog runs as the dialog's instance is popped.
	EndDialog(ctx context.Context, dc *Context, inst *Instance, reason Reason) error
}

// Versioned dialogs report a version string. A change between turns means
// the definition changed while an instance was active.
type Versioned interface {
	Version() string
}

// Container dialogs own a private set of child dialogs. The "dialog" memory
// scope of actions running inside a container is the container's state.
type Container interface {
	Dialog
	Dialogs() *Set
}

// DependencyProvider dialogs have children that must be registered in the
// same Set as the dialog itself.
type DependencyProvider interface {
	Dependencies() []Dialog
}

// EventHandler dialogs take part in event bubbling.
type EventHandler interface {
	OnDialogEvent(ctx context.Context, dc *Context, ev Event) (bool, error)
}

// IDSetter dialogs accept the id assigned on registration, fixing their id
// for the lifetime of the definition.
type IDSetter interface {
	SetID(id string)
}

// Interruptible dialogs decide whether a new message may trigger other
// actions while they wait for input.
type Interruptible interface {
	AllowInterruptions(ctx context.Context, dc *Context) (bool, error)
}

// Instance is one entry on a dialog stack.
type Instance struct {
	ID      string         `json:"id"`
	State   map[string]any `json:"state"`
	Version string         `json:"version,omitempty"`
}

// Event is raised with Context.EmitEvent and delivered to EventHandlers.
type Event struct {
	Name   string `json:"name"`
	Value  any    `json:"value,omitempty"`
	Bubble bool   `json:"bubble,omitempty"`
}

// Well known event names.
const (
	EventBeginDialog      = "beginDialog"
	EventActivityReceived = "activityReceived"
	EventRecognizedIntent = "recognizedIntent"
	EventUnknownIntent    = "unknownIntent"
	EventVersionChanged   = "versionChanged"
	EventCancelDialog     = "cancelDialog"
	EventRepromptDialog   = "repromptDialog"
	EventEndOfActions     = "endOfActions"
)

// Status is the outcome of a dialog turn.
type Status int

const (
	StatusEmpty Status = iota
	StatusWaiting
	StatusComplete
	StatusCancelled
	// StatusPlanChanged means changes were queued for the plan that owns
	// the running action context; the owner applies them and continues.
	StatusPlanChanged
)

func (s Status) String() string {
	switch s {
	case StatusEmpty:
		return "empty"
	case StatusWaiting:
		return "waiting"
	case StatusComplete:
		return "complete"
	case StatusCancelled:
		return "cancelled"
	case StatusPlanChanged:
		return "planChanged"
	}
	return "unknown"
}

// TurnResult is returned by every stack operation.
type TurnResult struct {
	Status Status
	Result Result
}

// Command is a control-flow instruction carried by a Signal.
type Command string

const (
	CommandGoto     Command = "goto"
	CommandBreak    Command = "break"
	CommandContinue Command = "continue"
)

// Signal asks an enclosing scope to change its sequential flow.
type Signal struct {
	Command  Command `json:"command"`
	ActionID string  `json:"actionId,omitempty"`
}

// Result is what an ended dialog hands back to its parent: either a plain
// value or a control signal, never inspected by shape.
type Result struct {
	Value  any
	Signal *Signal
}

// Value wraps v as a plain result.
func Value(v any) Result { return Result{Value: v} }

// Goto returns a result that jumps to actionID.
func Goto(actionID string) Result {
	return Result{Signal: &Signal{Command: CommandGoto, ActionID: actionID}}
}

// Break returns a result that stops the enclosing loop.
func Break() Result { return Result{Signal: &Signal{Command: CommandBreak}} }

// Continue returns a result that moves the enclosing loop to its next item.
func Continue() Result { return Result{Signal: &Signal{Command: CommandContinue}} }

// IsSignal reports whether r carries a control signal.
func (r Result) IsSignal() bool { return r.Signal != nil }
