package api

import (
	"fmt"

	"github.com/rivulet-chat/rivulet/internal/feed"
	"github.com/rivulet-chat/rivulet/internal/store"
	apperr "github.com/rivulet-chat/rivulet/pkg/errors"
)

// ScopeAuthorizer gates feed subscriptions on channel membership.
type ScopeAuthorizer struct {
	db *store.DB
}

// NewScopeAuthorizer creates an authorizer over the store.
func NewScopeAuthorizer(db *store.DB) *ScopeAuthorizer {
	return &ScopeAuthorizer{db: db}
}

// CanSubscribe allows presence to everyone, and channel/thread scopes only
// to members of the underlying channel.
func (a *ScopeAuthorizer) CanSubscribe(userID string, scope feed.Scope) error {
	if scope == feed.PresenceScope {
		return nil
	}

	channelID := scope.ChannelID()
	if channelID == "" {
		parent, err := a.db.GetMessage(scope.ThreadParentID())
		if err != nil {
			return err
		}
		channelID = parent.ChannelID
	} else {
		if _, err := a.db.GetChannel(channelID); err != nil {
			return err
		}
	}

	ok, err := a.db.IsMember(channelID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %q is not a member of channel %q: %w",
			userID, channelID, apperr.ErrUnauthorized)
	}
	return nil
}
