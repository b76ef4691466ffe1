package bus

import (
	"strings"
	"sync"
)

// Bus is an in-process publish/subscribe event bus with kind-prefix and
// scope filtering.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	kindPrefix string
	scope      string // empty matches every scope
	ch         chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends an event to all subscribers whose kind prefix matches
// event.Kind and whose scope filter matches event.Scope.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !strings.HasPrefix(evt.Kind, sub.kindPrefix) {
			continue
		}
		if sub.scope != "" && sub.scope != evt.Scope {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Drop event if subscriber is full (non-blocking).
		}
	}
}

// Subscribe returns a channel that receives events matching the given kind
// prefix. A non-empty scope restricts delivery to that scope. bufSize
// controls the channel buffer. Returns the channel and an unsubscribe
// function; unsubscribing twice is a no-op.
func (b *Bus) Subscribe(kindPrefix, scope string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{kindPrefix: kindPrefix, scope: scope, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
