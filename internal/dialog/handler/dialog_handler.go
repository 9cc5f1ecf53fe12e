package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"

	"github.com/voicetyped/adaptive/pkg/activity"
	"github.com/voicetyped/adaptive/pkg/adaptive"
	"github.com/voicetyped/adaptive/pkg/dialog"
	"github.com/voicetyped/adaptive/pkg/storage"
)

// Procedures of the dialog service.
const (
	ServiceName              = "adaptive.dialog.v1.DialogService"
	ProcessActivityProcedure = "/" + ServiceName + "/ProcessActivity"
	ListDialogsProcedure     = "/" + ServiceName + "/ListDialogs"
	GetConversationProcedure = "/" + ServiceName + "/GetConversation"
)

const (
	defaultConversationTTL = 30 * time.Minute
	reaperInterval         = 1 * time.Minute
)

// ProcessActivityRequest carries one inbound activity.
type ProcessActivityRequest struct {
	Activity *activity.Activity `json:"activity"`
}

func (r *ProcessActivityRequest) Conversation() string {
	if r.Activity == nil {
		return ""
	}
	return r.Activity.Conversation.ID
}

// ProcessActivityResponse holds the activities the turn sent and the
// status the root dialog ended the turn with.
type ProcessActivityResponse struct {
	Activities []*activity.Activity `json:"activities"`
	Status     string               `json:"status"`
}

type ListDialogsRequest struct{}

// DialogInfo describes one loaded dialog.
type DialogInfo struct {
	ID         string `json:"id"`
	Version    string `json:"version"`
	Triggers   int    `json:"triggers"`
	Recognizer string `json:"recognizer,omitempty"`
}

type ListDialogsResponse struct {
	Root    string       `json:"root"`
	Dialogs []DialogInfo `json:"dialogs"`
}

type GetConversationRequest struct {
	ConversationID string `json:"conversationId"`
}

func (r *GetConversationRequest) Conversation() string { return r.ConversationID }

type GetConversationResponse struct {
	State *dialog.ConversationState `json:"state"`
}

// DialogSource lists the dialogs the service can run.
// *declarative.Loader implements it.
type DialogSource interface {
	All() map[string]*adaptive.Dialog
}

// conversationLocks serialises turns per conversation. Entries are
// reference counted and dropped once no turn holds or waits for them.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	mu   sync.Mutex
	refs int
}

func (c *conversationLocks) lock(id string) (unlock func()) {
	c.mu.Lock()
	if c.locks == nil {
		c.locks = make(map[string]*conversationLock)
	}
	l, ok := c.locks[id]
	if !ok {
		l = &conversationLock{}
		c.locks[id] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, id)
		}
		c.mu.Unlock()
	}
}

// DialogHandler serves the dialog service: it runs turns through the
// dialog manager, one at a time per conversation.
type DialogHandler struct {
	manager *dialog.Manager
	rootID  string
	dialogs DialogSource
	store   storage.Store
	pool    workerpool.WorkerPool
	ttl     time.Duration
	locks   conversationLocks
}

// Option configures a DialogHandler.
type Option func(*DialogHandler)

// WithConversationTTL sets how long an idle conversation is kept.
func WithConversationTTL(d time.Duration) Option {
	return func(h *DialogHandler) {
		if d > 0 {
			h.ttl = d
		}
	}
}

// NewDialogHandler creates the handler. pool may be nil, in which case the
// reaper runs on its own goroutine.
func NewDialogHandler(manager *dialog.Manager, rootID string, dialogs DialogSource, store storage.Store, pool workerpool.WorkerPool, opts ...Option) *DialogHandler {
	h := &DialogHandler{
		manager: manager,
		rootID:  rootID,
		dialogs: dialogs,
		store:   store,
		pool:    pool,
		ttl:     defaultConversationTTL,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handler returns the path prefix and handler serving every procedure.
func (h *DialogHandler) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	mux := http.NewServeMux()
	mux.Handle(ProcessActivityProcedure, connect.NewUnaryHandler(ProcessActivityProcedure, h.ProcessActivity, opts...))
	mux.Handle(ListDialogsProcedure, connect.NewUnaryHandler(ListDialogsProcedure, h.ListDialogs, opts...))
	mux.Handle(GetConversationProcedure, connect.NewUnaryHandler(GetConversationProcedure, h.GetConversation, opts...))
	return "/" + ServiceName + "/", mux
}

// StartReaper begins evicting conversations idle for longer than the TTL.
func (h *DialogHandler) StartReaper(ctx context.Context) {
	reap := func() {
		ticker := time.NewTicker(reaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.reapIdle(ctx)
			}
		}
	}
	if h.pool != nil {
		_ = h.pool.Submit(ctx, reap)
	} else {
		go reap()
	}
}

func (h *DialogHandler) reapIdle(ctx context.Context) int {
	if h.store == nil {
		return 0
	}
	n, err := h.store.DeleteIdle(ctx, time.Now().UTC().Add(-h.ttl))
	if err != nil {
		util.Log(ctx).WithError(err).Error("reap idle conversations")
		return 0
	}
	if n > 0 {
		slog.InfoContext(ctx, "reaped idle conversations", slog.Int("count", n))
	}
	return n
}

func (h *DialogHandler) ProcessActivity(ctx context.Context, req *connect.Request[ProcessActivityRequest]) (*connect.Response[ProcessActivityResponse], error) {
	act := req.Msg.Activity
	if act == nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("activity is required"))
	}
	if act.Conversation.ID == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("activity.conversation.id is required"))
	}
	if act.Type == "" {
		act.Type = activity.Message
	}
	if act.ID == "" {
		act.ID = activity.NewID()
	}
	if act.Timestamp.IsZero() {
		act.Timestamp = time.Now().UTC()
	}

	unlock := h.locks.lock(act.Conversation.ID)
	defer unlock()

	turn := activity.NewBufferedTurn(act)
	res, err := h.manager.OnTurn(ctx, turn)
	if err != nil {
		return nil, connect.NewError(codeOf(err), err)
	}

	replies := turn.Replies()
	if replies == nil {
		replies = []*activity.Activity{}
	}
	return connect.NewResponse(&ProcessActivityResponse{
		Activities: replies,
		Status:     res.Status.String(),
	}), nil
}

func (h *DialogHandler) ListDialogs(_ context.Context, _ *connect.Request[ListDialogsRequest]) (*connect.Response[ListDialogsResponse], error) {
	all := h.dialogs.All()

	dialogs := make([]DialogInfo, 0, len(all))
	for _, d := range all {
		info := DialogInfo{
			ID:       d.ID(),
			Version:  d.Version(),
			Triggers: len(d.Triggers),
		}
		if d.Recognizer != nil {
			info.Recognizer = d.Recognizer.ID()
		}
		dialogs = append(dialogs, info)
	}
	slices.SortFunc(dialogs, func(a, b DialogInfo) int { return strings.Compare(a.ID, b.ID) })

	return connect.NewResponse(&ListDialogsResponse{Root: h.rootID, Dialogs: dialogs}), nil
}

func (h *DialogHandler) GetConversation(ctx context.Context, req *connect.Request[GetConversationRequest]) (*connect.Response[GetConversationResponse], error) {
	id := req.Msg.ConversationID
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("conversationId is required"))
	}
	state, err := h.manager.State(ctx, id)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	if state == nil {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("conversation %q not found", id))
	}
	return connect.NewResponse(&GetConversationResponse{State: state}), nil
}

func codeOf(err error) connect.Code {
	switch {
	case errors.Is(err, dialog.ErrDialogNotFound):
		return connect.CodeNotFound
	case errors.Is(err, dialog.ErrConfiguration):
		return connect.CodeFailedPrecondition
	case errors.Is(err, context.Canceled):
		return connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return connect.CodeDeadlineExceeded
	}
	return connect.CodeInternal
}
