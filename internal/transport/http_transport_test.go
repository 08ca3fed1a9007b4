package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTransport_SendMessageBeforeConnectIsClosed(t *testing.T) {
	tr := NewHTTPTransport()
	if _, err := tr.SendMessage(context.Background(), Message{Op: "status"}); err != ErrClosed {
		t.Fatalf("expected ErrClosed before Connect, got %v", err)
	}
}

func TestHTTPTransport_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/rpc" {
			http.NotFound(w, r)
			return
		}
		var msg Message
		json.NewDecoder(r.Body).Decode(&msg)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(Message{Op: msg.Op, Payload: msg.Payload})
	}))
	defer srv.Close()

	tr := NewHTTPTransport()
	addr := strings.TrimPrefix(srv.URL, "http://")
	if err := tr.Connect(context.Background(), addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := tr.SendMessage(ctx, Message{Op: "status", Payload: []byte(`{"jobId":1}`)})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if reply.Op != "status" {
		t.Fatalf("expected echoed op, got %q", reply.Op)
	}
}

func TestHTTPTransport_CloseClearsBase(t *testing.T) {
	tr := NewHTTPTransport()
	tr.Connect(context.Background(), "127.0.0.1:9999")
	tr.Close()

	if _, err := tr.SendMessage(context.Background(), Message{Op: "status"}); err != ErrClosed {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}
