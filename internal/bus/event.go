package bus

import "time"

// Event kinds published on the bus.
const (
	KindMessageInserted = "message.inserted"
	KindPresenceJoined  = "presence.joined"
	KindPresenceLeft    = "presence.left"
)

// Event represents a domain event published on the bus. Scope identifies the
// feed partition the event belongs to ("channel:<id>", "thread:<id>",
// "presence:global"); events that are not scope-addressed leave it empty.
type Event struct {
	Kind      string
	Scope     string
	Timestamp time.Time
	Payload   any
}
