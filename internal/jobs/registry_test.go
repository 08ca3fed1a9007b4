package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
)

func echoHandler(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return payload, nil
}

func TestRegistry_LookupMissing(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Lookup("send_email"); err != ErrHandlerMissing {
		t.Fatalf("expected ErrHandlerMissing, got %v", err)
	}
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	r.Register("send_email", echoHandler)

	h, err := r.Lookup("send_email")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}

	out, err := h(context.Background(), json.RawMessage(`{"to":"a@b.com"}`))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if string(out) != `{"to":"a@b.com"}` {
		t.Fatalf("unexpected handler output: %s", out)
	}
}

func TestRegistry_ReRegisterReplaces(t *testing.T) {
	r := NewRegistry()
	r.Register("resize_image", func(ctx context.Context, p json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"v1"`), nil
	})
	r.Register("resize_image", func(ctx context.Context, p json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`"v2"`), nil
	})

	h, err := r.Lookup("resize_image")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	out, _ := h(context.Background(), nil)
	if string(out) != `"v2"` {
		t.Fatalf("expected latest registration to win, got %s", out)
	}
}

func TestRegistry_Types(t *testing.T) {
	r := NewRegistry()
	r.Register("a", echoHandler)
	r.Register("b", echoHandler)

	types := r.Types()
	if len(types) != 2 {
		t.Fatalf("expected 2 types, got %d: %v", len(types), types)
	}
}

func TestRegistry_ConcurrentRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.Register("job_type", echoHandler)
			_, _ = r.Lookup("job_type")
		}(i)
	}
	wg.Wait()

	if _, err := r.Lookup("job_type"); err != nil {
		t.Fatalf("expected handler to be registered, got %v", err)
	}
}
