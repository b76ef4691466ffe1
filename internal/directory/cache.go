package directory

import (
	"context"
	"sync"
	"time"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/rivulet-chat/rivulet/internal/store"
)

// Lookup is the user-directory collaborator surface.
type Lookup interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
	RecordLastSeen(ctx context.Context, userID string, at time.Time) error
}

// DefaultCapacity bounds the profile cache.
const DefaultCapacity = 256

// Cache is a small bounded LRU of sender profiles. The feed delivers bare
// sender IDs; enriching each event with a directory round trip would cost
// one request per message, so recently-seen profiles are kept here.
type Cache struct {
	lookup   Lookup
	capacity int

	mu      sync.Mutex
	entries *orderedmap.OrderedMap[string, *store.User] // front = least recent
}

// NewCache creates a cache over the directory collaborator. capacity <= 0
// uses DefaultCapacity.
func NewCache(lookup Lookup, capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		lookup:   lookup,
		capacity: capacity,
		entries:  orderedmap.NewOrderedMap[string, *store.User](),
	}
}

// GetUser returns the profile for id, fetching on miss. A hit refreshes the
// entry's recency.
func (c *Cache) GetUser(ctx context.Context, id string) (*store.User, error) {
	c.mu.Lock()
	if u, ok := c.entries.Get(id); ok {
		// Refresh recency by moving to the back.
		c.entries.Delete(id)
		c.entries.Set(id, u)
		c.mu.Unlock()
		return u, nil
	}
	c.mu.Unlock()

	u, err := c.lookup.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries.Set(id, u)
	for c.entries.Len() > c.capacity {
		oldest := c.entries.Front()
		c.entries.Delete(oldest.Key)
	}
	c.mu.Unlock()
	return u, nil
}

// Invalidate drops a cached profile.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	c.entries.Delete(id)
	c.mu.Unlock()
}

// Len returns the number of cached profiles.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// RecordLastSeen forwards to the directory collaborator. It satisfies the
// presence tracker's Recorder contract.
func (c *Cache) RecordLastSeen(ctx context.Context, userID string, at time.Time) error {
	return c.lookup.RecordLastSeen(ctx, userID, at)
}
