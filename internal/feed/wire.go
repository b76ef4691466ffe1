package feed

import (
	"time"

	"github.com/rivulet-chat/rivulet/internal/store"
)

// Envelope types on the websocket wire. The server emits one envelope per
// row-level change plus presence bookkeeping; the client sends subscribe and
// unsubscribe control envelopes.
const (
	WireSubscribe     = "subscribe"
	WireUnsubscribe   = "unsubscribe"
	WireInsert        = "insert"
	WirePresenceJoin  = "presence_join"
	WirePresenceLeave = "presence_leave"
	WirePresenceSync  = "presence_sync"
	WireError         = "error"
)

// Envelope is the JSON frame exchanged with the feed hub.
type Envelope struct {
	Type     string       `json:"type"`
	Scope    string       `json:"scope,omitempty"`
	Message  *WireMessage `json:"message,omitempty"`
	UserID   string       `json:"user_id,omitempty"`
	AtUnixMs int64        `json:"at_unix_ms,omitempty"`
	Online   []string     `json:"online,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// WireMessage is the JSON shape of a message row on the feed.
type WireMessage struct {
	ID              string `json:"id"`
	ChannelID       string `json:"channel_id"`
	SenderID        string `json:"sender_id"`
	Content         string `json:"content"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
	FileURL         string `json:"file_url,omitempty"`
	FileName        string `json:"file_name,omitempty"`
	FileType        string `json:"file_type,omitempty"`
	FileSize        int64  `json:"file_size,omitempty"`
	CreatedAtUnixMs int64  `json:"created_at_unix_ms"`
}

// ToWire converts a store message to its feed representation.
func ToWire(m *store.Message) *WireMessage {
	w := &WireMessage{
		ID:              m.ID,
		ChannelID:       m.ChannelID,
		SenderID:        m.SenderID,
		Content:         m.Content,
		ParentMessageID: m.ParentMessageID,
		CreatedAtUnixMs: m.CreatedAt,
	}
	if m.Attachment != nil {
		w.FileURL = m.Attachment.FileURL
		w.FileName = m.Attachment.FileName
		w.FileType = m.Attachment.FileType
		w.FileSize = m.Attachment.FileSize
	}
	return w
}

// FromWire converts a feed message back to the store shape.
func FromWire(w *WireMessage) *store.Message {
	m := &store.Message{
		ID:              w.ID,
		ChannelID:       w.ChannelID,
		SenderID:        w.SenderID,
		Content:         w.Content,
		ParentMessageID: w.ParentMessageID,
		CreatedAt:       w.CreatedAtUnixMs,
	}
	if w.FileURL != "" {
		m.Attachment = &store.Attachment{
			FileURL:  w.FileURL,
			FileName: w.FileName,
			FileType: w.FileType,
			FileSize: w.FileSize,
		}
	}
	return m
}

// DecodeEnvelope translates a server envelope into a typed feed event.
// Returns nil for envelope types that carry no event (control echoes).
func DecodeEnvelope(env *Envelope) *Event {
	scope := Scope(env.Scope)
	switch env.Type {
	case WireInsert:
		if env.Message == nil {
			return nil
		}
		return &Event{
			Type:      EventMessageInserted,
			Scope:     scope,
			Timestamp: time.UnixMilli(env.Message.CreatedAtUnixMs),
			Message:   FromWire(env.Message),
		}
	case WirePresenceJoin:
		return &Event{
			Type:      EventPresenceJoined,
			Scope:     PresenceScope,
			Timestamp: time.UnixMilli(env.AtUnixMs),
			UserID:    env.UserID,
		}
	case WirePresenceLeave:
		return &Event{
			Type:      EventPresenceLeft,
			Scope:     PresenceScope,
			Timestamp: time.UnixMilli(env.AtUnixMs),
			UserID:    env.UserID,
		}
	case WirePresenceSync:
		return &Event{
			Type:      EventPresenceSynced,
			Scope:     PresenceScope,
			Timestamp: time.UnixMilli(env.AtUnixMs),
			Online:    env.Online,
		}
	case WireError:
		return &Event{
			Type:      EventScopeRejected,
			Scope:     scope,
			Timestamp: time.Now(),
		}
	}
	return nil
}
