package job

import (
	"testing"
)

func TestStatus_IsTerminal(t *testing.T) {
	cases := map[Status]bool{
		StatusQueued:     false,
		StatusProcessing: false,
		StatusComplete:   true,
		StatusFailed:     false,
		StatusCancelled:  true,
	}
	for status, want := range cases {
		if got := status.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestCanTransition_AllowedEdges(t *testing.T) {
	allowed := [][2]Status{
		{StatusQueued, StatusProcessing},
		{StatusQueued, StatusCancelled},
		{StatusProcessing, StatusComplete},
		{StatusProcessing, StatusFailed},
		{StatusProcessing, StatusCancelled},
		{StatusFailed, StatusProcessing},
	}
	for _, edge := range allowed {
		if !CanTransition(edge[0], edge[1]) {
			t.Errorf("expected %s->%s to be allowed", edge[0], edge[1])
		}
	}
}

func TestCanTransition_RejectsDisallowedEdges(t *testing.T) {
	disallowed := [][2]Status{
		{StatusQueued, StatusComplete},
		{StatusComplete, StatusProcessing},
		{StatusCancelled, StatusProcessing},
		{StatusFailed, StatusCancelled},
		{StatusFailed, StatusComplete},
	}
	for _, edge := range disallowed {
		if CanTransition(edge[0], edge[1]) {
			t.Errorf("expected %s->%s to be disallowed", edge[0], edge[1])
		}
	}
}

func TestCanTransition_RejectsSelfLoop(t *testing.T) {
	if CanTransition(StatusQueued, StatusQueued) {
		t.Fatalf("expected a self-loop to be disallowed")
	}
}

func TestNew_BuildsQueuedRecordWithHistory(t *testing.T) {
	req := CreateRequest{
		JobID:       1,
		TenantID:    "tenant-a",
		Type:        "send-email",
		MaxAttempts: 5,
		EntityID:    "entity-1",
		Group:       "default",
	}

	rec := New(req)

	if rec.Status != StatusQueued {
		t.Fatalf("expected queued status, got %s", rec.Status)
	}
	if rec.Attempts != 0 {
		t.Fatalf("expected zero attempts, got %d", rec.Attempts)
	}
	if rec.MaxAttempts != 5 {
		t.Fatalf("expected MaxAttempts 5, got %d", rec.MaxAttempts)
	}
	if len(rec.History) != 1 || rec.History[0].Status != StatusQueued {
		t.Fatalf("expected a single queued history entry, got %+v", rec.History)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Fatalf("expected CreatedAt/UpdatedAt to be populated")
	}
}

func TestNew_DefaultsMaxAttemptsWhenNegative(t *testing.T) {
	req := CreateRequest{JobID: 2, TenantID: "tenant-a", Type: "x", MaxAttempts: -1}

	rec := New(req)

	if rec.MaxAttempts != 3 {
		t.Fatalf("expected negative MaxAttempts to default to 3, got %d", rec.MaxAttempts)
	}
}

func TestNew_LeavesZeroMaxAttemptsUnset(t *testing.T) {
	req := CreateRequest{JobID: 3, TenantID: "tenant-a", Type: "x", MaxAttempts: 0}

	rec := New(req)

	if rec.MaxAttempts != 0 {
		t.Fatalf("expected zero MaxAttempts to stay zero, got %d", rec.MaxAttempts)
	}
}

func TestRecord_ApplyValidTransitionAppendsHistory(t *testing.T) {
	rec := New(CreateRequest{JobID: 4, TenantID: "t", Type: "x", MaxAttempts: 3})

	ok := rec.Apply(StatusProcessing, nil)
	if !ok {
		t.Fatalf("expected queued->processing to succeed")
	}
	if rec.Status != StatusProcessing {
		t.Fatalf("expected status processing, got %s", rec.Status)
	}
	if len(rec.History) != 2 || rec.History[1].Status != StatusProcessing {
		t.Fatalf("expected a second history entry for processing, got %+v", rec.History)
	}
}

func TestRecord_ApplyInvalidTransitionIsNoop(t *testing.T) {
	rec := New(CreateRequest{JobID: 5, TenantID: "t", Type: "x", MaxAttempts: 3})

	ok := rec.Apply(StatusComplete, nil)
	if ok {
		t.Fatalf("expected queued->complete to be rejected")
	}
	if rec.Status != StatusQueued {
		t.Fatalf("expected status to remain queued, got %s", rec.Status)
	}
	if len(rec.History) != 1 {
		t.Fatalf("expected no history entry to be appended, got %+v", rec.History)
	}
}

func TestRecord_ApplyRetryFromFailedIncrementsAttempts(t *testing.T) {
	rec := New(CreateRequest{JobID: 6, TenantID: "t", Type: "x", MaxAttempts: 3})
	rec.Apply(StatusProcessing, nil)

	errMsg := "boom"
	rec.Apply(StatusFailed, &errMsg)
	if rec.Attempts != 0 {
		t.Fatalf("expected attempts to remain 0 after a plain failure, got %d", rec.Attempts)
	}

	ok := rec.Apply(StatusProcessing, nil)
	if !ok {
		t.Fatalf("expected failed->processing retry to succeed")
	}
	if rec.Attempts != 1 {
		t.Fatalf("expected attempts to increment to 1 on retry, got %d", rec.Attempts)
	}
}

func TestRecord_ApplyTerminalTransitionSetsCompletedAt(t *testing.T) {
	rec := New(CreateRequest{JobID: 7, TenantID: "t", Type: "x", MaxAttempts: 3})
	rec.Apply(StatusProcessing, nil)
	rec.Apply(StatusComplete, nil)

	if rec.CompletedAt == nil {
		t.Fatalf("expected CompletedAt to be set on completion")
	}
}

func TestRecord_ApplyCancelledSetsCompletedAt(t *testing.T) {
	rec := New(CreateRequest{JobID: 8, TenantID: "t", Type: "x", MaxAttempts: 3})

	ok := rec.Apply(StatusCancelled, nil)
	if !ok {
		t.Fatalf("expected queued->cancelled to succeed")
	}
	if rec.CompletedAt == nil {
		t.Fatalf("expected CompletedAt to be set on cancellation")
	}
}

func TestRecord_ApplyFailureRecordsErrorMessage(t *testing.T) {
	rec := New(CreateRequest{JobID: 9, TenantID: "t", Type: "x", MaxAttempts: 3})
	rec.Apply(StatusProcessing, nil)

	errMsg := "connection refused"
	rec.Apply(StatusFailed, &errMsg)

	last := rec.History[len(rec.History)-1]
	if last.Error == nil || *last.Error != "connection refused" {
		t.Fatalf("expected history entry to carry the error message, got %+v", last)
	}
}

func TestRecord_SetProgressClampsToRange(t *testing.T) {
	rec := New(CreateRequest{JobID: 10, TenantID: "t", Type: "x"})

	rec.SetProgress(-5, "starting")
	if rec.Progress.Pct != 0 {
		t.Fatalf("expected negative pct to clamp to 0, got %d", rec.Progress.Pct)
	}

	rec.SetProgress(150, "overshoot")
	if rec.Progress.Pct != 100 {
		t.Fatalf("expected pct over 100 to clamp to 100, got %d", rec.Progress.Pct)
	}

	rec.SetProgress(42, "midway")
	if rec.Progress.Pct != 42 || rec.Progress.Message != "midway" {
		t.Fatalf("unexpected progress: %+v", rec.Progress)
	}
}
