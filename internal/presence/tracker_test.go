package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rivulet-chat/rivulet/internal/feed"
)

type fakeRecorder struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeRecorder) RecordLastSeen(_ context.Context, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID)
	return f.err
}

func (f *fakeRecorder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestJoinAndLeave(t *testing.T) {
	tr := NewTracker(nil, nil)
	now := time.Now()

	tr.Apply(feed.Event{Type: feed.EventPresenceJoined, UserID: "alice", Timestamp: now})
	if !tr.IsOnline("alice") {
		t.Error("alice should be online after join")
	}
	at, ok := tr.ConnectedAt("alice")
	if !ok || !at.Equal(now) {
		t.Errorf("ConnectedAt = %v, %v, want %v, true", at, ok, now)
	}

	tr.Apply(feed.Event{Type: feed.EventPresenceLeft, UserID: "alice", Timestamp: now})
	if tr.IsOnline("alice") {
		t.Error("alice should be offline after leave")
	}
}

func TestJoinIdempotent(t *testing.T) {
	tr := NewTracker(nil, nil)
	first := time.Now()
	later := first.Add(time.Minute)

	tr.Apply(feed.Event{Type: feed.EventPresenceJoined, UserID: "alice", Timestamp: first})
	tr.Apply(feed.Event{Type: feed.EventPresenceJoined, UserID: "alice", Timestamp: later})

	// The original join time is retained.
	at, _ := tr.ConnectedAt("alice")
	if !at.Equal(first) {
		t.Errorf("ConnectedAt = %v, want %v", at, first)
	}
	if got := len(tr.Online()); got != 1 {
		t.Errorf("online count = %d, want 1", got)
	}
}

func TestSyncReplacesSet(t *testing.T) {
	tr := NewTracker(nil, nil)
	tr.Apply(feed.Event{Type: feed.EventPresenceJoined, UserID: "stale", Timestamp: time.Now()})

	tr.Apply(feed.Event{
		Type:      feed.EventPresenceSynced,
		Online:    []string{"alice", "bob"},
		Timestamp: time.Now(),
	})

	if tr.IsOnline("stale") {
		t.Error("stale user survived sync")
	}
	if !tr.IsOnline("alice") || !tr.IsOnline("bob") {
		t.Errorf("online set = %v, want alice and bob", tr.Online())
	}
}

func TestLeaveRecordsLastSeenOnce(t *testing.T) {
	rec := &fakeRecorder{}
	tr := NewTracker(rec, nil)
	now := time.Now()

	tr.Apply(feed.Event{Type: feed.EventPresenceJoined, UserID: "alice", Timestamp: now})
	tr.Apply(feed.Event{Type: feed.EventPresenceLeft, UserID: "alice", Timestamp: now})

	if got := rec.callCount(); got != 1 {
		t.Errorf("recorder calls = %d, want 1", got)
	}

	// Join and sync events never trigger recording.
	tr.Apply(feed.Event{Type: feed.EventPresenceJoined, UserID: "bob", Timestamp: now})
	tr.Apply(feed.Event{Type: feed.EventPresenceSynced, Online: []string{"bob"}, Timestamp: now})
	if got := rec.callCount(); got != 1 {
		t.Errorf("recorder calls after join/sync = %d, want 1", got)
	}
}

func TestRecorderFailureTolerated(t *testing.T) {
	rec := &fakeRecorder{err: errors.New("directory unavailable")}
	tr := NewTracker(rec, nil)
	now := time.Now()

	tr.Apply(feed.Event{Type: feed.EventPresenceJoined, UserID: "alice", Timestamp: now})
	tr.Apply(feed.Event{Type: feed.EventPresenceLeft, UserID: "alice", Timestamp: now})

	// The failure is logged, not propagated; the set stays consistent.
	if tr.IsOnline("alice") {
		t.Error("alice still online after leave with failing recorder")
	}

	// Later events keep flowing.
	tr.Apply(feed.Event{Type: feed.EventPresenceJoined, UserID: "bob", Timestamp: now})
	if !tr.IsOnline("bob") {
		t.Error("tracker stopped applying events after recorder failure")
	}
}
