package router

import (
	"context"
	"testing"

	"github.com/shardwork/jobmesh/internal/repo/postgres"
)

func TestRouter_ReplaySubmitsAsNewEnvelope(t *testing.T) {
	fwd := &fakeForwarder{}
	r := newTestRouter(t, &fakeRouterStore{}, fwd)

	entry := postgres.Entry{
		SourceJobID: 5,
		TenantID:    "t1",
		Type:        "resize_image",
		Payload:     []byte(`{"w":100}`),
		Priority:    "normal",
		MaxAttempts: 3,
	}

	if err := r.Replay(context.Background(), entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fwd.submitCalls != 1 {
		t.Fatalf("expected Replay to submit a new envelope via the router, got %d forward calls", fwd.submitCalls)
	}
}
