package coordinator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewCronDispatcher_AppliesDefaultSkipIfOlderThan(t *testing.T) {
	d := NewCronDispatcher(&Singleton{}, CronJob{Name: "sweep", Interval: time.Second})
	if d.jobs[0].SkipIfOlderThan != defaultSkipIfOlderThan {
		t.Fatalf("expected default skip threshold, got %v", d.jobs[0].SkipIfOlderThan)
	}
}

func TestNewCronDispatcher_KeepsExplicitSkipIfOlderThan(t *testing.T) {
	d := NewCronDispatcher(&Singleton{}, CronJob{Name: "sweep", Interval: time.Second, SkipIfOlderThan: time.Minute})
	if d.jobs[0].SkipIfOlderThan != time.Minute {
		t.Fatalf("expected explicit skip threshold preserved, got %v", d.jobs[0].SkipIfOlderThan)
	}
}

func TestCronDispatcher_SkipsRunWhenNotLeader(t *testing.T) {
	follower := &Singleton{isLeader: false}
	var calls int32

	d := NewCronDispatcher(follower, CronJob{
		Name:     "sweep",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no runs while not leader, got %d", calls)
	}
}

func TestCronDispatcher_RunsWhenLeader(t *testing.T) {
	leader := &Singleton{isLeader: true}
	var calls int32

	d := NewCronDispatcher(leader, CronJob{
		Name:     "sweep",
		Interval: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatalf("expected at least one run while leader")
	}
}
