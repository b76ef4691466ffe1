package reconcile

import (
	"strings"
	"testing"

	"github.com/rivulet-chat/rivulet/internal/feed"
	"github.com/rivulet-chat/rivulet/internal/store"
)

func confirmed(id, sender, content string) *store.Message {
	return &store.Message{ID: id, ChannelID: "c1", SenderID: sender, Content: content, CreatedAt: 1000}
}

func TestAppendOptimistic(t *testing.T) {
	v := NewView(feed.ChannelScope("c1"))

	e := v.AppendOptimistic(Draft{SenderID: "alice", Content: "hi"})
	if !e.Pending {
		t.Error("optimistic entry not pending")
	}
	if !strings.HasPrefix(e.Message.ID, "local-") {
		t.Errorf("temporary ID = %q, want local- prefix", e.Message.ID)
	}

	snap := v.Snapshot()
	if len(snap) != 1 || snap[0].Message.Content != "hi" {
		t.Fatalf("snapshot = %v, want single entry", snap)
	}
}

func TestTemporaryIDsUnique(t *testing.T) {
	v := NewView(feed.ChannelScope("c1"))
	a := v.AppendOptimistic(Draft{SenderID: "alice", Content: "one"})
	b := v.AppendOptimistic(Draft{SenderID: "alice", Content: "two"})
	if a.Message.ID == b.Message.ID {
		t.Errorf("two optimistic entries share ID %q", a.Message.ID)
	}
}

func TestConfirmReplacesInPlace(t *testing.T) {
	v := NewView(feed.ChannelScope("c1"))
	v.OnConfirmed(confirmed("m1", "bob", "before"))
	v.AppendOptimistic(Draft{SenderID: "alice", Content: "hi"})
	v.OnConfirmed(confirmed("m2", "bob", "after"))

	v.OnConfirmed(confirmed("m3", "alice", "hi"))

	snap := v.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("got %d entries, want 3", len(snap))
	}
	// The confirmed record takes over the optimistic entry's position.
	if snap[1].Message.ID != "m3" {
		t.Errorf("entry 1 ID = %q, want m3", snap[1].Message.ID)
	}
	if snap[1].Pending {
		t.Error("confirmed entry still pending")
	}
	if snap[1].Message.CreatedAt != 1000 {
		t.Error("confirmed entry kept optimistic timestamp")
	}
}

func TestConfirmIdempotent(t *testing.T) {
	v := NewView(feed.ChannelScope("c1"))
	v.OnConfirmed(confirmed("m1", "alice", "hi"))
	v.OnConfirmed(confirmed("m1", "alice", "hi"))

	if v.Len() != 1 {
		t.Errorf("duplicate delivery: got %d entries, want 1", v.Len())
	}
}

func TestConfirmEchoAfterDirectConfirmation(t *testing.T) {
	// The send path confirms from the persistence response; the feed then
	// echoes the same message. The echo must not add a second entry or
	// consume another optimistic entry.
	v := NewView(feed.ChannelScope("c1"))
	v.AppendOptimistic(Draft{SenderID: "alice", Content: "hi"})
	v.AppendOptimistic(Draft{SenderID: "alice", Content: "hi"})

	v.OnConfirmed(confirmed("m1", "alice", "hi"))
	v.OnConfirmed(confirmed("m1", "alice", "hi"))

	snap := v.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("got %d entries, want 2", len(snap))
	}
	if snap[0].Message.ID != "m1" || snap[0].Pending {
		t.Errorf("entry 0 = %+v, want confirmed m1", snap[0])
	}
	if !snap[1].Pending {
		t.Error("second draft consumed by duplicate delivery")
	}
}

func TestConfirmMatchesOldestDraftFirst(t *testing.T) {
	v := NewView(feed.ChannelScope("c1"))
	first := v.AppendOptimistic(Draft{SenderID: "alice", Content: "same"})
	second := v.AppendOptimistic(Draft{SenderID: "alice", Content: "same"})

	v.OnConfirmed(confirmed("m1", "alice", "same"))
	v.OnConfirmed(confirmed("m2", "alice", "same"))

	snap := v.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("got %d entries, want 2", len(snap))
	}
	if snap[0].Message.ID != "m1" || snap[1].Message.ID != "m2" {
		t.Errorf("order = [%s %s], want [m1 m2] (oldest draft %s then %s)",
			snap[0].Message.ID, snap[1].Message.ID, first.Message.ID, second.Message.ID)
	}
}

func TestConfirmWithoutMatchAppends(t *testing.T) {
	v := NewView(feed.ChannelScope("c1"))
	v.AppendOptimistic(Draft{SenderID: "alice", Content: "mine"})

	// Different sender, same content: not a match.
	v.OnConfirmed(confirmed("m1", "bob", "mine"))

	snap := v.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("got %d entries, want 2", len(snap))
	}
	if !snap[0].Pending {
		t.Error("optimistic entry was wrongly matched")
	}
	if snap[1].Message.ID != "m1" {
		t.Errorf("appended entry = %q, want m1", snap[1].Message.ID)
	}
}

func TestRemoveOptimistic(t *testing.T) {
	v := NewView(feed.ChannelScope("c1"))
	e := v.AppendOptimistic(Draft{SenderID: "alice", Content: "hi"})

	if !v.RemoveOptimistic(e.Message.ID) {
		t.Error("RemoveOptimistic() = false, want true")
	}
	if v.Len() != 0 {
		t.Errorf("got %d entries after removal, want 0", v.Len())
	}

	// Removing again, or removing a confirmed entry, is refused.
	if v.RemoveOptimistic(e.Message.ID) {
		t.Error("second RemoveOptimistic() = true, want false")
	}
	v.OnConfirmed(confirmed("m1", "alice", "hi"))
	if v.RemoveOptimistic("m1") {
		t.Error("RemoveOptimistic(confirmed) = true, want false")
	}
}

func TestReset(t *testing.T) {
	v := NewView(feed.ChannelScope("c1"))
	v.AppendOptimistic(Draft{SenderID: "alice", Content: "stale"})

	v.Reset([]store.Message{
		{ID: "m1", SenderID: "bob", Content: "one"},
		{ID: "m2", SenderID: "bob", Content: "two"},
	})

	snap := v.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("got %d entries, want 2", len(snap))
	}
	for _, e := range snap {
		if e.Pending {
			t.Errorf("entry %s pending after Reset", e.Message.ID)
		}
	}
}

func TestApplyIgnoresForeignScopes(t *testing.T) {
	v := NewView(feed.ChannelScope("c1"))

	v.Apply(feed.Event{
		Type:    feed.EventMessageInserted,
		Scope:   feed.ChannelScope("other"),
		Message: confirmed("m1", "bob", "hi"),
	})
	if v.Len() != 0 {
		t.Error("cross-scope event applied")
	}

	v.Apply(feed.Event{
		Type:    feed.EventMessageInserted,
		Scope:   feed.ChannelScope("c1"),
		Message: confirmed("m2", "bob", "hi"),
	})
	if v.Len() != 1 {
		t.Error("same-scope event not applied")
	}

	// Non-insert events are ignored.
	v.Apply(feed.Event{Type: feed.EventPresenceJoined, Scope: feed.ChannelScope("c1"), UserID: "bob"})
	if v.Len() != 1 {
		t.Error("presence event changed the view")
	}
}
