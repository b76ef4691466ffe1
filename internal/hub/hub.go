package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rivulet-chat/rivulet/internal/bus"
	"github.com/rivulet-chat/rivulet/internal/feed"
	"github.com/rivulet-chat/rivulet/internal/store"
	"go.uber.org/zap"
)

// Authorizer decides whether a user may subscribe to a scope.
type Authorizer interface {
	CanSubscribe(userID string, scope feed.Scope) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The daemon binds to loopback; origin checking belongs to a fronting
	// proxy in any other deployment.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Hub fans change-feed events out to websocket subscribers. One connection
// serves any number of scope subscriptions; events are routed per scope.
// It also owns presence: a user is online while they hold at least one
// connection.
type Hub struct {
	authz  Authorizer
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*client]struct{}
	online  map[string]int // userID -> live connection count
}

// New creates a hub. Call Start to begin fanning out bus events and Stop to
// shut down.
func New(authz Authorizer, b *bus.Bus, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		authz:   authz,
		bus:     b,
		logger:  logger,
		clients: make(map[*client]struct{}),
		online:  make(map[string]int),
	}
}

// Start subscribes to message events on the bus and fans them out.
func (h *Hub) Start(ctx context.Context) {
	ctx, h.cancel = context.WithCancel(ctx)
	ch, unsub := h.bus.Subscribe("message.", "", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				h.handleBusEvent(evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts fan-out and disconnects every client.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) handleBusEvent(evt bus.Event) {
	if evt.Kind != bus.KindMessageInserted {
		return
	}
	msg, ok := evt.Payload.(*store.Message)
	if !ok {
		return
	}
	h.broadcast(feed.Scope(evt.Scope), &feed.Envelope{
		Type:    feed.WireInsert,
		Scope:   evt.Scope,
		Message: feed.ToWire(msg),
	})
}

// ServeWS upgrades an HTTP request to a feed connection. The client
// identifies itself with the user_id query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan *feed.Envelope, 64),
		scopes: make(map[feed.Scope]struct{}),
	}
	h.register(c)

	go c.writePump()
	c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.online[c.userID]++
	first := h.online[c.userID] == 1
	h.mu.Unlock()

	h.logger.Info("feed client connected", zap.String("user_id", c.userID))
	if first {
		h.announcePresence(feed.WirePresenceJoin, bus.KindPresenceJoined, c.userID)
	}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.online[c.userID]--
	last := h.online[c.userID] == 0
	if last {
		delete(h.online, c.userID)
	}
	h.mu.Unlock()

	h.logger.Info("feed client disconnected", zap.String("user_id", c.userID))
	if last {
		h.announcePresence(feed.WirePresenceLeave, bus.KindPresenceLeft, c.userID)
	}
}

func (h *Hub) announcePresence(wireType, busKind, userID string) {
	now := time.Now()
	h.broadcast(feed.PresenceScope, &feed.Envelope{
		Type:     wireType,
		Scope:    string(feed.PresenceScope),
		UserID:   userID,
		AtUnixMs: now.UnixMilli(),
	})
	h.bus.Publish(bus.Event{
		Kind:      busKind,
		Scope:     string(feed.PresenceScope),
		Timestamp: now,
		Payload:   userID,
	})
}

// broadcast delivers an envelope to every client subscribed to the scope.
// A slow client's full buffer drops the envelope for that client only.
func (h *Hub) broadcast(scope feed.Scope, env *feed.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if _, ok := c.scopes[scope]; !ok {
			continue
		}
		select {
		case c.send <- env:
		default:
			h.logger.Warn("dropping envelope for slow client",
				zap.String("user_id", c.userID), zap.String("scope", string(scope)))
		}
	}
}

// onlineSnapshot returns the current online set.
func (h *Hub) onlineSnapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.online))
	for id := range h.online {
		out = append(out, id)
	}
	return out
}
