package dlq

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shardwork/jobmesh/internal/eventbus"
)

type fakeLeader struct {
	leader atomic.Bool
}

func (f *fakeLeader) IsLeader() bool { return f.leader.Load() }

func TestNew_AppliesDefaults(t *testing.T) {
	w := New(nil, eventbus.New(), nil, nil, 0, 0)
	if w.cycle != defaultCycle {
		t.Fatalf("expected default cycle, got %v", w.cycle)
	}
	if w.maxRetries != defaultMaxReplayTries {
		t.Fatalf("expected default maxRetries, got %d", w.maxRetries)
	}
}

func TestNew_KeepsExplicitValues(t *testing.T) {
	w := New(nil, eventbus.New(), nil, nil, time.Minute, 7)
	if w.cycle != time.Minute {
		t.Fatalf("expected explicit cycle preserved, got %v", w.cycle)
	}
	if w.maxRetries != 7 {
		t.Fatalf("expected explicit maxRetries preserved, got %d", w.maxRetries)
	}
}

func TestReplayBackoff_GrowsWithAttemptAndCaps(t *testing.T) {
	small := replayBackoff(0)
	big := replayBackoff(10)

	if small >= 3*time.Second {
		t.Fatalf("expected first attempt backoff near base, got %v", small)
	}
	if big > 5*time.Minute+250*time.Millisecond {
		t.Fatalf("expected backoff capped near 5m, got %v", big)
	}
}

func TestWatcher_RunSkipsSweepWhenNotLeader(t *testing.T) {
	leader := &fakeLeader{}
	w := New(nil, eventbus.New(), leader, nil, 10*time.Millisecond, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// repo is nil; if sweep() were invoked it would panic on the nil
	// *postgres.DlqRepo receiver, so surviving Run() to completion proves
	// the not-leader branch never reaches w.sweep.
	w.Run(ctx)
}
