package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// WebsocketTransport keeps one long-lived websocket connection to a peer
// runner open and sends request/response frames over it one round trip
// at a time (SendMessage holds the mutex until the reply is read). Chosen
// over plain sockets when the cluster network only permits HTTP-upgrade
// traffic (e.g. behind certain load balancers).
type WebsocketTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func NewWebsocketTransport() *WebsocketTransport {
	return &WebsocketTransport{}
}

func (t *WebsocketTransport) Connect(ctx context.Context, addr string) error {
	url := fmt.Sprintf("ws://%s/internal/rpc/ws", addr)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	return nil
}

func (t *WebsocketTransport) SendMessage(ctx context.Context, msg Message) (Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return Message{}, ErrClosed
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
		_ = t.conn.SetReadDeadline(deadline)
	}

	if err := t.conn.WriteJSON(msg); err != nil {
		return Message{}, err
	}

	var reply Message
	if err := t.conn.ReadJSON(&reply); err != nil {
		return Message{}, err
	}
	return reply, nil
}

func (t *WebsocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
