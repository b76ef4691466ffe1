package feed

import (
	"time"

	"github.com/rivulet-chat/rivulet/internal/store"
)

// Event types emitted by the feed.
const (
	EventMessageInserted = "message_inserted"
	EventPresenceJoined  = "presence_joined"
	EventPresenceLeft    = "presence_left"
	EventPresenceSynced  = "presence_synced"
	// EventScopeRejected is delivered when the upstream refuses a scope
	// subscription (missing membership, unknown scope).
	EventScopeRejected = "scope_rejected"
)

// Event is a typed domain event delivered on a feed scope.
type Event struct {
	Type      string
	Scope     Scope
	Timestamp time.Time

	// Message is set for EventMessageInserted.
	Message *store.Message
	// UserID is set for EventPresenceJoined and EventPresenceLeft.
	UserID string
	// Online is set for EventPresenceSynced: the full online set.
	Online []string
}
