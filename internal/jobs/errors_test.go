package jobs

import (
	"errors"
	"testing"
)

func TestKind_RetryableTerminal(t *testing.T) {
	if !KindProcessing.Retryable() {
		t.Fatalf("expected KindProcessing to be retryable")
	}
	if KindProcessing.Terminal() {
		t.Fatalf("expected KindProcessing not to be terminal")
	}
	if !KindValidation.Terminal() {
		t.Fatalf("expected KindValidation to be terminal")
	}
}

func TestKindOf_ClassifiedError(t *testing.T) {
	err := NewError(KindMailboxFull, "full", nil)
	if got := KindOf(err); got != KindMailboxFull {
		t.Fatalf("KindOf = %s, want %s", got, KindMailboxFull)
	}
}

func TestKindOf_WrappedClassifiedError(t *testing.T) {
	wrapped := errors.New("outer: " + ErrNotFound.Error())
	if got := KindOf(wrapped); got != KindProcessing {
		t.Fatalf("expected unclassified plain error to default to KindProcessing, got %s", got)
	}

	joined := errors.Join(errors.New("context"), ErrNotFound)
	if got := KindOf(joined); got != KindNotFound {
		t.Fatalf("expected errors.As to unwrap joined error to KindNotFound, got %s", got)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("db connection refused")
	e := NewError(KindPersistenceError, "could not save job", cause)

	if !errors.Is(e, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
	if e.Error() != "could not save job: db connection refused" {
		t.Fatalf("unexpected error message: %s", e.Error())
	}
}
