package reconcile

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/rivulet-chat/rivulet/internal/feed"
	"github.com/rivulet-chat/rivulet/internal/store"
)

// localSeq numbers optimistic entries. Process-wide so temporary identities
// never collide across views.
var localSeq atomic.Int64

const localIDPrefix = "local-"

func nextLocalID() string {
	return fmt.Sprintf("%s%d", localIDPrefix, localSeq.Add(1))
}

// Draft is a locally-initiated message before the persistence write returns.
type Draft struct {
	SenderID        string
	Content         string
	ParentMessageID string
	Attachment      *store.Attachment
}

// Entry is one row of the merged view: either a confirmed server message or
// a pending optimistic entry carrying a temporary identity.
type Entry struct {
	Message store.Message
	// Pending is true until the entry is replaced by its confirmed server
	// record. A pending entry that is never confirmed and never removed
	// stays visible; the view does not time entries out on its own.
	Pending bool
}

// View maintains the ordered, de-duplicated message sequence for one scope,
// merging optimistic local writes with confirmed events from the feed.
type View struct {
	scope feed.Scope

	mu      sync.Mutex
	entries *orderedmap.OrderedMap[string, *Entry]
}

// NewView creates an empty view bound to a scope.
func NewView(scope feed.Scope) *View {
	return &View{
		scope:   scope,
		entries: orderedmap.NewOrderedMap[string, *Entry](),
	}
}

// Scope returns the scope this view is bound to.
func (v *View) Scope() feed.Scope { return v.scope }

// AppendOptimistic assigns a temporary identity to the draft, appends it at
// the tail, and returns the entry. Non-blocking; this is the send path's
// immediate visible effect.
func (v *View) AppendOptimistic(d Draft) Entry {
	e := &Entry{
		Message: store.Message{
			ID:              nextLocalID(),
			SenderID:        d.SenderID,
			Content:         d.Content,
			ParentMessageID: d.ParentMessageID,
			Attachment:      d.Attachment,
			CreatedAt:       time.Now().UnixMilli(),
		},
		Pending: true,
	}
	v.mu.Lock()
	v.entries.Set(e.Message.ID, e)
	v.mu.Unlock()
	return *e
}

// OnConfirmed merges a confirmed server message into the view. Idempotent by
// server identity. If an unconfirmed optimistic entry matches on
// (senderID, content), the OLDEST such entry is replaced in place,
// preserving its position; otherwise the message is appended.
func (v *View) OnConfirmed(m *store.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Duplicate delivery (feed replay) is a no-op.
	if _, ok := v.entries.Get(m.ID); ok {
		return
	}

	// FIFO match: oldest unmatched optimistic entry first, so a later
	// duplicate send is never attributed to an earlier draft.
	for el := v.entries.Front(); el != nil; el = el.Next() {
		e := el.Value
		if e.Pending && e.Message.SenderID == m.SenderID && e.Message.Content == m.Content {
			v.entries.ReplaceKey(el.Key, m.ID)
			e.Message = *m
			e.Pending = false
			return
		}
	}

	v.entries.Set(m.ID, &Entry{Message: *m})
}

// RemoveOptimistic removes a pending entry by its temporary identity. The
// send path must call this when the persistence write fails, so a failed
// send never remains indistinguishable from a confirmed one. Returns false
// if no such pending entry exists.
func (v *View) RemoveOptimistic(tempID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries.Get(tempID)
	if !ok || !e.Pending {
		return false
	}
	return v.entries.Delete(tempID)
}

// Reset replaces the entire view, dropping any optimistic entries. Used on
// initial load and when the surrounding scope changes.
func (v *View) Reset(msgs []store.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries = orderedmap.NewOrderedMap[string, *Entry]()
	for i := range msgs {
		v.entries.Set(msgs[i].ID, &Entry{Message: msgs[i]})
	}
}

// Apply feeds a subscriber event into the view. Events from other scopes
// are ignored so a stale handle can never leak entries across scopes.
func (v *View) Apply(evt feed.Event) {
	if evt.Scope != v.scope || evt.Type != feed.EventMessageInserted || evt.Message == nil {
		return
	}
	v.OnConfirmed(evt.Message)
}

// Snapshot returns the current ordered sequence.
func (v *View) Snapshot() []Entry {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Entry, 0, v.entries.Len())
	for el := v.entries.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value)
	}
	return out
}

// Len returns the number of entries in the view.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.entries.Len()
}
