package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPTransport sends one POST per SendMessage to the peer runner's
// internal RPC endpoint. Used as the "auto" fallback when the socket
// transport can't be dialed (e.g. across a NAT'd cluster network).
type HTTPTransport struct {
	mu     sync.Mutex
	client *http.Client
	base   string
}

func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{client: &http.Client{Timeout: 5 * time.Second}}
}

// Connect just records the base URL; the underlying http.Client is
// already connection-pooled per destination.
func (t *HTTPTransport) Connect(ctx context.Context, addr string) error {
	t.mu.Lock()
	t.base = addr
	t.mu.Unlock()
	return nil
}

func (t *HTTPTransport) SendMessage(ctx context.Context, msg Message) (Message, error) {
	t.mu.Lock()
	base := t.base
	t.mu.Unlock()
	if base == "" {
		return Message{}, ErrClosed
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return Message{}, err
	}

	url := fmt.Sprintf("http://%s/internal/rpc", base)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Message{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return Message{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Message{}, err
	}
	var reply Message
	if err := json.Unmarshal(raw, &reply); err != nil {
		return Message{}, err
	}
	return reply, nil
}

func (t *HTTPTransport) Close() error {
	t.mu.Lock()
	t.base = ""
	t.mu.Unlock()
	return nil
}
