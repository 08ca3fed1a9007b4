// Package transport implements the cross-runner RPC surface spec.md's
// REDESIGN FLAGS section calls for: a single Transport interface
// (Connect, SendMessage, Close) with socket, HTTP, and websocket
// implementations, selected at startup from CLUSTER_TRANSPORT, with
// "auto" preferring the unix socket and falling back to HTTP.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// Message is one request/response frame exchanged between runners:
// Op names the Forwarder RPC ("submit", "cancel", "status"), Payload is
// its JSON-encoded argument, and Error carries a remote failure back
// without needing a typed wire error.
type Message struct {
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
	Error   string          `json:"error,omitempty"`
}

var ErrClosed = errors.New("transport: connection closed")

// Transport is one point-to-point connection to a peer runner. Connect
// dials (or upgrades) the connection; SendMessage performs one
// request/response round trip; Close releases the underlying resource.
// The Forwarder caches one Transport per peer runner and shares it across
// concurrent calls without serializing them; each implementation guards
// its own state with a mutex (SocketTransport and WebsocketTransport hold
// it for the whole round trip).
type Transport interface {
	Connect(ctx context.Context, addr string) error
	SendMessage(ctx context.Context, msg Message) (Message, error)
	Close() error
}

// Mode names the CLUSTER_TRANSPORT values spec.md §6.4 defines.
type Mode string

const (
	ModeSocket    Mode = "socket"
	ModeHTTP      Mode = "http"
	ModeWebsocket Mode = "websocket"
	ModeAuto      Mode = "auto"
)

// New builds an unconnected Transport for the given mode. New does not
// dial: for "auto" (and any unknown mode) it returns a SocketTransport,
// and the HTTP fallback happens in Forwarder.dial, which builds
// New(ModeHTTP) and connects it when the socket Connect fails.
func New(mode Mode) Transport {
	switch mode {
	case ModeHTTP:
		return NewHTTPTransport()
	case ModeWebsocket:
		return NewWebsocketTransport()
	case ModeSocket, ModeAuto:
		fallthrough
	default:
		return NewSocketTransport()
	}
}
