package actorctx

import (
	"context"
	"testing"
)

func TestWithUserID_RoundTrips(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-1")

	got, ok := UserIDFrom(ctx)
	if !ok || got != "user-1" {
		t.Fatalf("expected user-1, got %q ok=%v", got, ok)
	}
}

func TestUserIDFrom_MissingValue(t *testing.T) {
	if _, ok := UserIDFrom(context.Background()); ok {
		t.Fatalf("expected no user id on a bare context")
	}
}

func TestUserIDFrom_EmptyStringReportsNotOK(t *testing.T) {
	ctx := WithUserID(context.Background(), "")
	if _, ok := UserIDFrom(ctx); ok {
		t.Fatalf("expected an empty user id to report not-ok")
	}
}
