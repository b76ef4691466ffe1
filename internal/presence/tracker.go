package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rivulet-chat/rivulet/internal/feed"
	"go.uber.org/zap"
)

// Recorder persists a best-effort "last seen" timestamp when a user drops
// off the presence feed. Failures are tolerated and never affect the
// in-memory online set.
type Recorder interface {
	RecordLastSeen(ctx context.Context, userID string, at time.Time) error
}

// Tracker maintains the live set of online users from presence events.
// One shared instance serves the whole client session so every consumer
// observes the same set.
type Tracker struct {
	recorder Recorder
	logger   *zap.Logger

	mu     sync.RWMutex
	online map[string]time.Time // userID -> connectedAt
}

// NewTracker creates a tracker. recorder may be nil to disable last-seen
// recording.
func NewTracker(recorder Recorder, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		recorder: recorder,
		logger:   logger,
		online:   make(map[string]time.Time),
	}
}

// IsOnline reports whether the user currently holds a live connection.
func (t *Tracker) IsOnline(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[userID]
	return ok
}

// ConnectedAt returns when the user joined, if online.
func (t *Tracker) ConnectedAt(userID string) (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	at, ok := t.online[userID]
	return at, ok
}

// Online returns the current online set.
func (t *Tracker) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.online))
	for id := range t.online {
		out = append(out, id)
	}
	return out
}

// Apply consumes one presence event from the feed.
func (t *Tracker) Apply(evt feed.Event) {
	switch evt.Type {
	case feed.EventPresenceSynced:
		t.mu.Lock()
		t.online = make(map[string]time.Time, len(evt.Online))
		for _, id := range evt.Online {
			t.online[id] = evt.Timestamp
		}
		t.mu.Unlock()
	case feed.EventPresenceJoined:
		t.mu.Lock()
		if _, ok := t.online[evt.UserID]; !ok {
			t.online[evt.UserID] = evt.Timestamp
		}
		t.mu.Unlock()
	case feed.EventPresenceLeft:
		t.mu.Lock()
		delete(t.online, evt.UserID)
		t.mu.Unlock()
		// Exactly one recording attempt per leave event, outside the lock.
		t.recordLastSeen(evt.UserID, evt.Timestamp)
	}
}

func (t *Tracker) recordLastSeen(userID string, at time.Time) {
	if t.recorder == nil {
		return
	}
	if err := t.recorder.RecordLastSeen(context.Background(), userID, at); err != nil {
		t.logger.Warn("last-seen update failed",
			zap.String("user_id", userID), zap.Error(err))
	}
}
