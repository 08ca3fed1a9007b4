package progress

import (
	"math"
	"testing"
	"time"
)

func TestValid(t *testing.T) {
	if !Valid(50) {
		t.Fatalf("expected 50 to be valid")
	}
	if Valid(math.NaN()) {
		t.Fatalf("expected NaN to be invalid")
	}
	if Valid(math.Inf(1)) {
		t.Fatalf("expected +Inf to be invalid")
	}
}

func TestTopic_PublishClampsRange(t *testing.T) {
	top := NewTopic()
	ch, unsubscribe := top.Subscribe()
	defer unsubscribe()

	top.Publish(150, "over")
	u := recv(t, ch)
	if u.Pct != 100 {
		t.Fatalf("expected clamp to 100, got %d", u.Pct)
	}

	top.Publish(-10, "under")
	u = recv(t, ch)
	if u.Pct != 0 {
		t.Fatalf("expected clamp to 0, got %d", u.Pct)
	}
}

func TestTopic_SubscribeSeedsLastValue(t *testing.T) {
	top := NewTopic()
	top.Publish(42, "partway")

	ch, unsubscribe := top.Subscribe()
	defer unsubscribe()

	u := recv(t, ch)
	if u.Pct != 42 || u.Message != "partway" {
		t.Fatalf("expected late subscriber to see last value, got %+v", u)
	}
}

func TestTopic_UnsubscribeClosesChannel(t *testing.T) {
	top := NewTopic()
	ch, unsubscribe := top.Subscribe()
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed after unsubscribe")
	}
}

func TestTopic_CloseEndsAllSubscribersAndFuturePublishes(t *testing.T) {
	top := NewTopic()
	ch, _ := top.Subscribe()

	top.Close()

	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed on Close")
	}

	top.Publish(10, "after close")
	late, unsubscribe := top.Subscribe()
	defer unsubscribe()
	select {
	case u := <-late:
		t.Fatalf("expected a publish after Close to be dropped, got %+v", u)
	default:
	}
}

func TestTopic_OfferDropsOldestWhenSubscriberFull(t *testing.T) {
	top := NewTopic()
	ch, unsubscribe := top.Subscribe()
	defer unsubscribe()

	for i := 0; i < bufferCapacity+5; i++ {
		top.Publish(i%100, "tick")
	}

	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatalf("expected channel to stay open")
		}
		// 21 publishes into a 16-slot buffer drop pct 0..4.
		if u.Pct != 5 {
			t.Fatalf("expected the oldest updates to be dropped, first buffered pct = %d, want 5", u.Pct)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a buffered update to be available")
	}
}

func TestRegistry_TopicIsLazyAndStable(t *testing.T) {
	r := NewRegistry()
	a := r.Topic(1)
	b := r.Topic(1)
	if a != b {
		t.Fatalf("expected repeated Topic calls for the same jobId to return the same Topic")
	}
}

func TestRegistry_CleanupClosesTopic(t *testing.T) {
	r := NewRegistry()
	top := r.Topic(7)
	ch, _ := top.Subscribe()

	r.Cleanup(7)

	if _, ok := <-ch; ok {
		t.Fatalf("expected subscriber channel to close on Cleanup")
	}

	next := r.Topic(7)
	if next == top {
		t.Fatalf("expected Cleanup to remove the topic so a fresh one is created")
	}
}

func recv(t *testing.T, ch <-chan Update) Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed unexpectedly")
		}
		return u
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for update")
		return Update{}
	}
}
