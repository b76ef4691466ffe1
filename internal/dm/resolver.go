package dm

import (
	"context"
	"errors"
	"fmt"

	"github.com/rivulet-chat/rivulet/internal/store"
	apperr "github.com/rivulet-chat/rivulet/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Store is the persistence surface the resolver needs.
type Store interface {
	GetUser(id string) (*store.User, error)
	FindDirectChannel(a, b string) (*store.Channel, error)
	CreateDirectChannel(a, b string) (*store.Channel, error)
	GetDirectChannelByKey(a, b string) (*store.Channel, error)
	AddMember(channelID, userID string) error
}

// Resolver finds-or-creates the unique direct channel between two
// participants. Safe under concurrent first-contact: in-process requests
// for the same pair collapse via singleflight, and cross-process races are
// resolved by the store's pair uniqueness constraint.
type Resolver struct {
	db     Store
	logger *zap.Logger
	group  singleflight.Group
}

// NewResolver creates a resolver over the given store.
func NewResolver(db Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{db: db, logger: logger}
}

// Resolve returns the direct channel for the unordered pair (a, b),
// creating it if absent. (A,B) and (B,A) are the same request. Self-DM is
// rejected with ErrInvalidArgument; an unknown participant yields
// ErrNotFound. A creation race never surfaces to the caller.
func (r *Resolver) Resolve(_ context.Context, a, b string) (*store.Channel, error) {
	if a == b {
		return nil, fmt.Errorf("direct channel with self: %w", apperr.ErrInvalidArgument)
	}
	if a == "" || b == "" {
		return nil, fmt.Errorf("empty participant id: %w", apperr.ErrInvalidArgument)
	}
	if _, err := r.db.GetUser(a); err != nil {
		return nil, err
	}
	if _, err := r.db.GetUser(b); err != nil {
		return nil, err
	}

	key := store.DirectKey(a, b)
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.resolve(a, b)
	})
	if err != nil {
		return nil, err
	}
	return v.(*store.Channel), nil
}

func (r *Resolver) resolve(a, b string) (*store.Channel, error) {
	ch, err := r.db.FindDirectChannel(a, b)
	if err != nil {
		return nil, err
	}
	if ch != nil {
		return ch, nil
	}

	ch, err = r.db.CreateDirectChannel(a, b)
	if err == nil {
		r.logger.Info("direct channel created",
			zap.String("channel_id", ch.ID), zap.String("pair", store.DirectKey(a, b)))
		return ch, nil
	}
	if !errors.Is(err, apperr.ErrConflict) {
		return nil, err
	}

	// A concurrent request won the race; re-run the lookup and return the
	// winner instead of propagating the violation.
	ch, err = r.db.FindDirectChannel(a, b)
	if err != nil {
		return nil, err
	}
	if ch != nil {
		return ch, nil
	}

	// The pair channel exists but its membership set is no longer exactly
	// the pair (one side left earlier). Reuse it and restore membership.
	ch, err = r.db.GetDirectChannelByKey(a, b)
	if err != nil {
		return nil, err
	}
	for _, uid := range []string{a, b} {
		if err := r.db.AddMember(ch.ID, uid); err != nil {
			return nil, err
		}
	}
	return ch, nil
}
