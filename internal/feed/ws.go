package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSTransport speaks the hub's JSON envelope protocol over a single
// websocket connection. It implements Transport.
type WSTransport struct {
	conn   *websocket.Conn
	events chan Event
	logger *zap.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialWS connects to a feed hub websocket endpoint (ws://host/ws?user_id=...)
// and starts reading envelopes.
func DialWS(ctx context.Context, wsURL string, logger *zap.Logger) (*WSTransport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	t := &WSTransport{
		conn:   conn,
		events: make(chan Event, 256),
		logger: logger,
	}
	go t.readLoop()
	return t, nil
}

// Subscribe registers interest in a scope upstream.
func (t *WSTransport) Subscribe(scope Scope) error {
	return t.writeControl(WireSubscribe, scope)
}

// Unsubscribe removes interest in a scope upstream.
func (t *WSTransport) Unsubscribe(scope Scope) error {
	return t.writeControl(WireUnsubscribe, scope)
}

// Events returns the inbound event stream. The channel closes when the
// connection fails or Close is called.
func (t *WSTransport) Events() <-chan Event { return t.events }

// Close tears down the connection.
func (t *WSTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.conn.Close()
	})
	return err
}

func (t *WSTransport) writeControl(kind string, scope Scope) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteJSON(&Envelope{Type: kind, Scope: string(scope)}); err != nil {
		return fmt.Errorf("write %s: %w", kind, err)
	}
	return nil
}

func (t *WSTransport) readLoop() {
	defer close(t.events)
	for {
		var env Envelope
		if err := t.conn.ReadJSON(&env); err != nil {
			t.logger.Warn("feed connection lost", zap.Error(err))
			_ = t.Close()
			return
		}
		if evt := DecodeEnvelope(&env); evt != nil {
			t.events <- *evt
		}
	}
}
