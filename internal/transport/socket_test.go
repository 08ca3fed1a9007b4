package transport

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"
)

func TestSocketNetwork_ClassifiesAddrKind(t *testing.T) {
	cases := map[string]string{
		"127.0.0.1:9000":       "tcp",
		"runner-3.internal:80": "tcp",
		"/tmp/jobmesh.sock":    "unix",
		"./relative.sock":      "unix",
		"@abstract-socket":     "unix",
	}
	for addr, want := range cases {
		if got := socketNetwork(addr); got != want {
			t.Errorf("socketNetwork(%q) = %q, want %q", addr, got, want)
		}
	}
}

func TestSocketTransport_RoundTripOverUnixSocket(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "jobmesh.sock")

	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n])
	}()

	tr := NewSocketTransport()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tr.Connect(ctx, sockPath); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	reply, err := tr.SendMessage(ctx, Message{Op: "status", Payload: []byte(`{"jobId":1}`)})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if reply.Op != "status" {
		t.Fatalf("expected echoed op 'status', got %q", reply.Op)
	}
}

func TestSocketTransport_SendMessageBeforeConnectIsClosed(t *testing.T) {
	tr := NewSocketTransport()
	if _, err := tr.SendMessage(context.Background(), Message{Op: "status"}); err != ErrClosed {
		t.Fatalf("expected ErrClosed before Connect, got %v", err)
	}
}

func TestSocketTransport_RoundTripAgainstEchoServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		conn.Write(buf[:n])
	}()

	tr := NewSocketTransport()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tr.Connect(ctx, ln.Addr().String()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	reply, err := tr.SendMessage(ctx, Message{Op: "status", Payload: []byte(`{"jobId":1}`)})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if reply.Op != "status" {
		t.Fatalf("expected echoed op 'status', got %q", reply.Op)
	}
}

func TestSocketTransport_CloseIsIdempotent(t *testing.T) {
	tr := NewSocketTransport()
	if err := tr.Close(); err != nil {
		t.Fatalf("expected Close on a never-connected transport to be a no-op, got %v", err)
	}
}
