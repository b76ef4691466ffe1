package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", "", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageInserted, Scope: "channel:c1", Timestamp: time.Now(), Payload: "test"})

	select {
	case evt := <-ch:
		if evt.Kind != KindMessageInserted {
			t.Errorf("got kind %q, want %q", evt.Kind, KindMessageInserted)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestKindPrefixFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("presence.", "", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageInserted})
	b.Publish(Event{Kind: KindPresenceJoined})

	select {
	case evt := <-ch:
		if evt.Kind != KindPresenceJoined {
			t.Errorf("got kind %q, want %q", evt.Kind, KindPresenceJoined)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure message event was not delivered.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestScopeFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", "channel:c2", 10)
	defer unsub()

	b.Publish(Event{Kind: KindMessageInserted, Scope: "channel:c1"})
	b.Publish(Event{Kind: KindMessageInserted, Scope: "channel:c2"})

	select {
	case evt := <-ch:
		if evt.Scope != "channel:c2" {
			t.Errorf("got scope %q, want channel:c2", evt.Scope)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("cross-scope event delivered: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", "", 10)
	unsub()

	b.Publish(Event{Kind: KindMessageInserted})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", "", 1)
	defer unsub()

	// Fill buffer.
	b.Publish(Event{Kind: KindMessageInserted, Scope: "channel:one"})
	// This should be dropped (non-blocking).
	b.Publish(Event{Kind: KindMessageInserted, Scope: "channel:two"})

	evt := <-ch
	if evt.Scope != "channel:one" {
		t.Errorf("got %q, want channel:one", evt.Scope)
	}
}
