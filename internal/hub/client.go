package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/rivulet-chat/rivulet/internal/feed"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// client is one websocket connection and its scope subscription set.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan *feed.Envelope
	scopes map[feed.Scope]struct{} // guarded by hub.mu
}

// readPump consumes control envelopes (subscribe/unsubscribe) until the
// connection drops, then unregisters the client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	for {
		var env feed.Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.hub.logger.Warn("feed read error",
					zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}

		switch env.Type {
		case feed.WireSubscribe:
			c.handleSubscribe(env.Scope)
		case feed.WireUnsubscribe:
			scope := feed.Scope(env.Scope)
			c.hub.mu.Lock()
			delete(c.scopes, scope)
			c.hub.mu.Unlock()
		}
	}
}

func (c *client) handleSubscribe(raw string) {
	scope, err := feed.ParseScope(raw)
	if err == nil && c.hub.authz != nil {
		err = c.hub.authz.CanSubscribe(c.userID, scope)
	}
	if err != nil {
		c.hub.logger.Warn("scope subscription refused",
			zap.String("user_id", c.userID), zap.String("scope", raw), zap.Error(err))
		c.trySend(&feed.Envelope{Type: feed.WireError, Scope: raw, Error: err.Error()})
		return
	}

	c.hub.mu.Lock()
	c.scopes[scope] = struct{}{}
	c.hub.mu.Unlock()

	// A presence subscriber immediately receives the full online set so it
	// can resolve any join/leave events it missed.
	if scope == feed.PresenceScope {
		c.trySend(&feed.Envelope{
			Type:     feed.WirePresenceSync,
			Scope:    string(feed.PresenceScope),
			Online:   c.hub.onlineSnapshot(),
			AtUnixMs: time.Now().UnixMilli(),
		})
	}
}

// trySend queues an envelope without blocking the read pump.
func (c *client) trySend(env *feed.Envelope) {
	select {
	case c.send <- env:
	default:
	}
}

// writePump serializes all outbound writes for the connection.
func (c *client) writePump() {
	for env := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(env); err != nil {
			c.hub.logger.Warn("feed write error",
				zap.String("user_id", c.userID), zap.Error(err))
			_ = c.conn.Close()
			// Drain until unregister closes the channel.
			for range c.send {
			}
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = c.conn.Close()
}
