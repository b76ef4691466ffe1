package feed

import (
	"sync"

	"go.uber.org/zap"
)

// HandleState describes the lifecycle of a subscription handle.
type HandleState int

const (
	// StateActive means events are being delivered.
	StateActive HandleState = iota
	// StateDegraded means the upstream feed failed; delivery has ceased and
	// the registry will not retry. Resubscription is the caller's policy.
	StateDegraded
	// StateReleased means the handle was explicitly released.
	StateReleased
)

func (s HandleState) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

const handleBuffer = 64

// Handle is one logical subscription to a scope. Its lifetime governs event
// delivery; callers must Release it when done. Release is idempotent.
type Handle struct {
	scope  Scope
	events chan Event
	reg    *Registry

	// guarded by reg.mu
	state  HandleState
	closed bool
}

// Events returns the delivery channel. It is closed when the handle is
// released or degrades.
func (h *Handle) Events() <-chan Event { return h.events }

// Scope returns the scope this handle is bound to.
func (h *Handle) Scope() Scope { return h.scope }

// State returns the current handle state.
func (h *Handle) State() HandleState {
	h.reg.mu.Lock()
	defer h.reg.mu.Unlock()
	return h.state
}

// Release unsubscribes this handle. Double release is a no-op.
func (h *Handle) Release() { h.reg.release(h) }

// Transport is the upstream connection the registry multiplexes. Subscribe
// and Unsubscribe register interest in a scope; Events delivers every event
// the upstream produces, and is closed when the transport fails or closes.
type Transport interface {
	Subscribe(scope Scope) error
	Unsubscribe(scope Scope) error
	Events() <-chan Event
	Close() error
}

// Registry multiplexes logical subscribers onto one underlying transport:
// one upstream registration per distinct scope regardless of how many
// handles are attached to it.
type Registry struct {
	transport Transport
	logger    *zap.Logger

	mu       sync.Mutex
	scopes   map[Scope]map[*Handle]struct{}
	degraded bool
	done     chan struct{}
}

// NewRegistry creates a registry over the given transport.
func NewRegistry(t Transport, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		transport: t,
		logger:    logger,
		scopes:    make(map[Scope]map[*Handle]struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins dispatching transport events to handles. It returns
// immediately; dispatch runs until the transport's event channel closes,
// at which point every live handle degrades.
func (r *Registry) Start() {
	go func() {
		defer close(r.done)
		for evt := range r.transport.Events() {
			r.dispatch(evt)
		}
		r.degradeAll()
	}()
}

// Close shuts down the underlying transport. Remaining handles degrade.
func (r *Registry) Close() error {
	err := r.transport.Close()
	<-r.done
	return err
}

// Subscribe attaches a new handle to the scope, registering the scope
// upstream only for the first subscriber. If the upstream registration
// fails, the returned handle is already degraded.
func (r *Registry) Subscribe(scope Scope) *Handle {
	h := &Handle{
		scope:  scope,
		events: make(chan Event, handleBuffer),
		reg:    r,
		state:  StateActive,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.degraded {
		h.state = StateDegraded
		close(h.events)
		h.closed = true
		return h
	}

	first := len(r.scopes[scope]) == 0
	if first {
		if err := r.transport.Subscribe(scope); err != nil {
			r.logger.Warn("scope subscription failed",
				zap.String("scope", string(scope)), zap.Error(err))
			h.state = StateDegraded
			close(h.events)
			h.closed = true
			return h
		}
	}
	if r.scopes[scope] == nil {
		r.scopes[scope] = make(map[*Handle]struct{})
	}
	r.scopes[scope][h] = struct{}{}
	return h
}

func (r *Registry) release(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.state == StateReleased {
		return
	}
	wasActive := h.state == StateActive
	h.state = StateReleased
	if !h.closed {
		close(h.events)
		h.closed = true
	}

	set := r.scopes[h.scope]
	delete(set, h)
	if len(set) == 0 {
		delete(r.scopes, h.scope)
		// Only unsubscribe upstream while the transport is alive and the
		// scope was actually registered.
		if wasActive && !r.degraded {
			if err := r.transport.Unsubscribe(h.scope); err != nil {
				r.logger.Warn("scope unsubscription failed",
					zap.String("scope", string(h.scope)), zap.Error(err))
			}
		}
	}
}

func (r *Registry) dispatch(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if evt.Type == EventScopeRejected {
		for h := range r.scopes[evt.Scope] {
			r.degradeLocked(h)
		}
		return
	}

	for h := range r.scopes[evt.Scope] {
		if h.state != StateActive {
			continue
		}
		select {
		case h.events <- evt:
		default:
			// Slow consumer: drop rather than stall other handles.
			r.logger.Warn("handle buffer full, dropping event",
				zap.String("scope", string(evt.Scope)), zap.String("type", evt.Type))
		}
	}
}

func (r *Registry) degradeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded = true
	for _, set := range r.scopes {
		for h := range set {
			r.degradeLocked(h)
		}
	}
}

func (r *Registry) degradeLocked(h *Handle) {
	if h.state != StateActive {
		return
	}
	h.state = StateDegraded
	if !h.closed {
		close(h.events)
		h.closed = true
	}
}
