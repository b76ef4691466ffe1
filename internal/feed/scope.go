package feed

import (
	"fmt"
	"strings"

	apperr "github.com/rivulet-chat/rivulet/pkg/errors"
)

// Scope is a logical partition of the change feed: one channel's top-level
// messages, one thread's replies, or the global presence topic.
type Scope string

// PresenceScope is the single global presence topic.
const PresenceScope Scope = "presence:global"

// ChannelScope returns the scope for a channel's top-level messages.
func ChannelScope(channelID string) Scope {
	return Scope("channel:" + channelID)
}

// ThreadScope returns the scope for replies to a top-level message.
func ThreadScope(parentMessageID string) Scope {
	return Scope("thread:" + parentMessageID)
}

// ParseScope validates a raw scope string.
func ParseScope(raw string) (Scope, error) {
	switch {
	case raw == string(PresenceScope):
		return PresenceScope, nil
	case strings.HasPrefix(raw, "channel:") && len(raw) > len("channel:"):
		return Scope(raw), nil
	case strings.HasPrefix(raw, "thread:") && len(raw) > len("thread:"):
		return Scope(raw), nil
	}
	return "", fmt.Errorf("malformed scope %q: %w", raw, apperr.ErrInvalidArgument)
}

// ChannelID returns the channel ID for a channel scope, or "".
func (s Scope) ChannelID() string {
	if after, ok := strings.CutPrefix(string(s), "channel:"); ok {
		return after
	}
	return ""
}

// ThreadParentID returns the parent message ID for a thread scope, or "".
func (s Scope) ThreadParentID() string {
	if after, ok := strings.CutPrefix(string(s), "thread:"); ok {
		return after
	}
	return ""
}
