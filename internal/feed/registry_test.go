package feed

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport records subscribe/unsubscribe calls and lets tests inject
// events upstream.
type fakeTransport struct {
	mu         sync.Mutex
	subscribed map[Scope]int
	subErr     error

	events    chan Event
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		subscribed: make(map[Scope]int),
		events:     make(chan Event, 16),
	}
}

func (f *fakeTransport) Subscribe(scope Scope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return f.subErr
	}
	f.subscribed[scope]++
	return nil
}

func (f *fakeTransport) Unsubscribe(scope Scope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[scope]--
	return nil
}

func (f *fakeTransport) Events() <-chan Event { return f.events }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.events) })
	return nil
}

func (f *fakeTransport) subCount(scope Scope) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[scope]
}

func recvEvent(t *testing.T, h *Handle) Event {
	t.Helper()
	select {
	case evt, ok := <-h.Events():
		if !ok {
			t.Fatal("events channel closed")
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return Event{}
}

func TestSubscribeDeliversScopedEvents(t *testing.T) {
	tr := newFakeTransport()
	reg := NewRegistry(tr, nil)
	reg.Start()
	defer func() { _ = reg.Close() }()

	h := reg.Subscribe(ChannelScope("c1"))
	defer h.Release()

	if h.State() != StateActive {
		t.Fatalf("state = %v, want active", h.State())
	}

	tr.events <- Event{Type: EventMessageInserted, Scope: ChannelScope("c1")}
	evt := recvEvent(t, h)
	if evt.Type != EventMessageInserted {
		t.Errorf("got %q, want message_inserted", evt.Type)
	}
}

func TestEventsRoutedByScope(t *testing.T) {
	tr := newFakeTransport()
	reg := NewRegistry(tr, nil)
	reg.Start()
	defer func() { _ = reg.Close() }()

	h1 := reg.Subscribe(ChannelScope("c1"))
	defer h1.Release()
	h2 := reg.Subscribe(ChannelScope("c2"))
	defer h2.Release()

	tr.events <- Event{Type: EventMessageInserted, Scope: ChannelScope("c2")}

	evt := recvEvent(t, h2)
	if evt.Scope != ChannelScope("c2") {
		t.Errorf("h2 got scope %q", evt.Scope)
	}

	select {
	case evt := <-h1.Events():
		t.Errorf("h1 received foreign-scope event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScopeMultiplexing(t *testing.T) {
	tr := newFakeTransport()
	reg := NewRegistry(tr, nil)
	reg.Start()
	defer func() { _ = reg.Close() }()

	scope := ChannelScope("c1")
	h1 := reg.Subscribe(scope)
	h2 := reg.Subscribe(scope)

	// One upstream registration regardless of handle count.
	if n := tr.subCount(scope); n != 1 {
		t.Fatalf("upstream subscriptions = %d, want 1", n)
	}

	// Both handles receive the same event.
	tr.events <- Event{Type: EventMessageInserted, Scope: scope}
	recvEvent(t, h1)
	recvEvent(t, h2)

	// Releasing one handle keeps the upstream registration.
	h1.Release()
	if n := tr.subCount(scope); n != 1 {
		t.Errorf("after first release: upstream = %d, want 1", n)
	}

	// Releasing the last handle unsubscribes upstream.
	h2.Release()
	if n := tr.subCount(scope); n != 0 {
		t.Errorf("after last release: upstream = %d, want 0", n)
	}
}

func TestDoubleReleaseNoOp(t *testing.T) {
	tr := newFakeTransport()
	reg := NewRegistry(tr, nil)
	reg.Start()
	defer func() { _ = reg.Close() }()

	scope := ChannelScope("c1")
	h1 := reg.Subscribe(scope)
	h2 := reg.Subscribe(scope)

	h1.Release()
	h1.Release()

	if h1.State() != StateReleased {
		t.Errorf("state = %v, want released", h1.State())
	}
	// The second release must not disturb the remaining handle's upstream
	// registration.
	if n := tr.subCount(scope); n != 1 {
		t.Errorf("upstream = %d, want 1", n)
	}

	tr.events <- Event{Type: EventMessageInserted, Scope: scope}
	recvEvent(t, h2)
	h2.Release()
}

func TestSubscribeFailureDegradesHandle(t *testing.T) {
	tr := newFakeTransport()
	tr.subErr = errors.New("refused")
	reg := NewRegistry(tr, nil)
	reg.Start()
	defer func() { _ = reg.Close() }()

	h := reg.Subscribe(ChannelScope("c1"))
	if h.State() != StateDegraded {
		t.Errorf("state = %v, want degraded", h.State())
	}

	// The events channel is closed; callers can detect degradation.
	select {
	case _, ok := <-h.Events():
		if ok {
			t.Error("expected closed events channel")
		}
	case <-time.After(time.Second):
		t.Error("events channel not closed")
	}

	// Release on a degraded handle is safe.
	h.Release()
}

func TestTransportCloseDegradesAllHandles(t *testing.T) {
	tr := newFakeTransport()
	reg := NewRegistry(tr, nil)
	reg.Start()

	h1 := reg.Subscribe(ChannelScope("c1"))
	h2 := reg.Subscribe(PresenceScope)

	if err := reg.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	for _, h := range []*Handle{h1, h2} {
		if h.State() != StateDegraded {
			t.Errorf("scope %s state = %v, want degraded", h.Scope(), h.State())
		}
		if _, ok := <-h.Events(); ok {
			t.Errorf("scope %s events channel not drained/closed", h.Scope())
		}
	}

	// Subscribing after degradation yields an immediately degraded handle.
	h3 := reg.Subscribe(ChannelScope("c2"))
	if h3.State() != StateDegraded {
		t.Errorf("post-close subscribe state = %v, want degraded", h3.State())
	}
}

func TestScopeRejectionDegradesOnlyThatScope(t *testing.T) {
	tr := newFakeTransport()
	reg := NewRegistry(tr, nil)
	reg.Start()
	defer func() { _ = reg.Close() }()

	rejected := reg.Subscribe(ChannelScope("private"))
	healthy := reg.Subscribe(ChannelScope("open"))

	tr.events <- Event{Type: EventScopeRejected, Scope: ChannelScope("private")}

	// Rejected handle degrades and its channel closes.
	select {
	case _, ok := <-rejected.Events():
		if ok {
			t.Error("rejected handle still delivering")
		}
	case <-time.After(time.Second):
		t.Fatal("rejected handle channel not closed")
	}
	if rejected.State() != StateDegraded {
		t.Errorf("rejected state = %v, want degraded", rejected.State())
	}

	// The other scope keeps working.
	tr.events <- Event{Type: EventMessageInserted, Scope: ChannelScope("open")}
	recvEvent(t, healthy)
	if healthy.State() != StateActive {
		t.Errorf("healthy state = %v, want active", healthy.State())
	}
	healthy.Release()
}
