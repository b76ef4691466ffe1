package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/rivulet-chat/rivulet/internal/feed"
	"github.com/rivulet-chat/rivulet/internal/presence"
	"github.com/rivulet-chat/rivulet/internal/reconcile"
	"github.com/rivulet-chat/rivulet/internal/store"
	apperr "github.com/rivulet-chat/rivulet/pkg/errors"
	"go.uber.org/zap"
)

// Persistence is the write/read collaborator the engine sends through.
type Persistence interface {
	UserID() string
	CreateMessage(ctx context.Context, channelID, content, parentMessageID string, att *store.Attachment) (*store.Message, error)
	ListMessages(ctx context.Context, channelID string, beforeMs int64, limit int) ([]store.Message, error)
	ListThreadReplies(ctx context.Context, parentMessageID string, limit int) ([]store.Message, error)
}

const initialLoadLimit = 50

// Engine is the client-side synchronization engine: it owns one
// reconciliation view per open scope, pumps feed events into them, and runs
// the shared presence tracker.
type Engine struct {
	api      Persistence
	registry *feed.Registry
	tracker  *presence.Tracker
	logger   *zap.Logger

	mu             sync.Mutex
	bindings       map[feed.Scope]*binding
	presenceHandle *feed.Handle
}

type binding struct {
	view      *reconcile.View
	handle    *feed.Handle
	channelID string
}

// New creates an engine over the given collaborators.
func New(api Persistence, registry *feed.Registry, tracker *presence.Tracker, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		api:      api,
		registry: registry,
		tracker:  tracker,
		logger:   logger,
		bindings: make(map[feed.Scope]*binding),
	}
}

// OpenChannel subscribes to a channel's scope and returns its view, loaded
// with recent history. Opening an already-open channel returns the existing
// view.
func (e *Engine) OpenChannel(ctx context.Context, channelID string) (*reconcile.View, error) {
	scope := feed.ChannelScope(channelID)
	load := func(ctx context.Context) ([]store.Message, error) {
		msgs, err := e.api.ListMessages(ctx, channelID, 0, initialLoadLimit)
		if err != nil {
			return nil, err
		}
		// The API returns newest first; views are oldest first.
		reverse(msgs)
		return msgs, nil
	}
	return e.open(ctx, scope, channelID, load)
}

// OpenThread subscribes to a thread's scope and returns its view.
func (e *Engine) OpenThread(ctx context.Context, channelID, parentMessageID string) (*reconcile.View, error) {
	scope := feed.ThreadScope(parentMessageID)
	load := func(ctx context.Context) ([]store.Message, error) {
		return e.api.ListThreadReplies(ctx, parentMessageID, 100)
	}
	return e.open(ctx, scope, channelID, load)
}

func (e *Engine) open(ctx context.Context, scope feed.Scope, channelID string, load func(context.Context) ([]store.Message, error)) (*reconcile.View, error) {
	e.mu.Lock()
	if b, ok := e.bindings[scope]; ok {
		e.mu.Unlock()
		return b.view, nil
	}
	e.mu.Unlock()

	// Subscribe before the initial load: events arriving during the load
	// buffer in the handle and are applied after Reset, where confirmed-ID
	// idempotence de-duplicates any overlap.
	handle := e.registry.Subscribe(scope)
	msgs, err := load(ctx)
	if err != nil {
		handle.Release()
		return nil, err
	}

	view := reconcile.NewView(scope)
	view.Reset(msgs)

	e.mu.Lock()
	if b, ok := e.bindings[scope]; ok {
		// Lost a racing open; keep the winner.
		e.mu.Unlock()
		handle.Release()
		return b.view, nil
	}
	e.bindings[scope] = &binding{view: view, handle: handle, channelID: channelID}
	e.mu.Unlock()

	go func() {
		for evt := range handle.Events() {
			view.Apply(evt)
		}
	}()
	return view, nil
}

// Close releases the subscription for a scope. The view stops receiving
// events; closing an unopened scope is a no-op.
func (e *Engine) Close(scope feed.Scope) {
	e.mu.Lock()
	b, ok := e.bindings[scope]
	if ok {
		delete(e.bindings, scope)
	}
	e.mu.Unlock()
	if ok {
		b.handle.Release()
	}
}

// Send appends an optimistic entry to the channel's view, issues the
// persistence write, and on failure removes the optimistic entry again —
// a failed send never lingers looking like a confirmed message.
func (e *Engine) Send(ctx context.Context, channelID, content string, att *store.Attachment) error {
	return e.send(ctx, feed.ChannelScope(channelID), channelID, content, "", att)
}

// SendReply sends into a thread scope.
func (e *Engine) SendReply(ctx context.Context, channelID, parentMessageID, content string, att *store.Attachment) error {
	return e.send(ctx, feed.ThreadScope(parentMessageID), channelID, content, parentMessageID, att)
}

func (e *Engine) send(ctx context.Context, scope feed.Scope, channelID, content, parentMessageID string, att *store.Attachment) error {
	e.mu.Lock()
	b, ok := e.bindings[scope]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("scope %q is not open: %w", scope, apperr.ErrInvalidArgument)
	}

	entry := b.view.AppendOptimistic(reconcile.Draft{
		SenderID:        e.api.UserID(),
		Content:         content,
		ParentMessageID: parentMessageID,
		Attachment:      att,
	})

	msg, err := e.api.CreateMessage(ctx, channelID, content, parentMessageID, att)
	if err != nil {
		b.view.RemoveOptimistic(entry.Message.ID)
		return fmt.Errorf("send failed: %w", err)
	}

	// Confirm immediately from the write response; the feed echo that
	// follows is a duplicate delivery and de-duplicates by server ID.
	b.view.OnConfirmed(msg)
	return nil
}

// StartPresence subscribes the shared tracker to the global presence scope.
func (e *Engine) StartPresence() {
	e.mu.Lock()
	if e.presenceHandle != nil {
		e.mu.Unlock()
		return
	}
	handle := e.registry.Subscribe(feed.PresenceScope)
	e.presenceHandle = handle
	e.mu.Unlock()

	go func() {
		for evt := range handle.Events() {
			e.tracker.Apply(evt)
		}
	}()
}

// Presence returns the shared tracker.
func (e *Engine) Presence() *presence.Tracker { return e.tracker }

// Shutdown releases every subscription.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	bindings := e.bindings
	e.bindings = make(map[feed.Scope]*binding)
	ph := e.presenceHandle
	e.presenceHandle = nil
	e.mu.Unlock()

	for _, b := range bindings {
		b.handle.Release()
	}
	if ph != nil {
		ph.Release()
	}
}

func reverse(msgs []store.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
