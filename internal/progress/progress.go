// Package progress implements the per-job sliding-buffer pub/sub used by
// the Job Entity to report progress (spec.md §4.2, §5, §9).
package progress

import (
	"math"
	"sync"
)

const bufferCapacity = 16

// Update is one {pct, message} progress report.
type Update struct {
	Pct     int
	Message string
}

// Valid rejects non-finite reports (NaN/Inf) before they reach the state
// machine. Out-of-range values are not rejected here; Topic.Publish
// clamps them into [0,100].
func Valid(pct float64) bool {
	return !math.IsNaN(pct) && !math.IsInf(pct, 0)
}

type subscriber struct {
	ch     chan Update
	closed bool
}

// Topic is one job's progress channel: a fixed-capacity ring buffer
// behind a channel per subscriber. Senders overwrite the oldest entry
// when a subscriber's queue is full instead of blocking (spec.md §9).
type Topic struct {
	mu       sync.Mutex
	last     *Update
	subs     map[int]*subscriber
	nextSubID int
	done     bool
}

// NewTopic creates an empty progress topic for one jobId.
func NewTopic() *Topic {
	return &Topic{subs: make(map[int]*subscriber)}
}

// Publish clamps pct into [0,100], records it as the latest value, and
// fans it out to every live subscriber, dropping the oldest buffered
// update for any subscriber whose queue is full.
func (t *Topic) Publish(pct int, message string) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	u := Update{Pct: pct, Message: message}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.last = &u
	for _, s := range t.subs {
		t.offer(s, u)
	}
}

func (t *Topic) offer(s *subscriber, u Update) {
	select {
	case s.ch <- u:
		return
	default:
	}
	// queue full: drop the oldest buffered value, then retry once.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- u:
	default:
	}
}

// Subscribe returns a channel of progress updates, seeded with the latest
// persisted value (if any) so late subscribers immediately see state,
// matching "subscribers receive the persisted value first, then live
// updates" (spec.md §4.2). Close(unsubscribe) must be called when done.
func (t *Topic) Subscribe() (<-chan Update, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Update, bufferCapacity)
	id := t.nextSubID
	t.nextSubID++
	s := &subscriber{ch: ch}
	t.subs[id] = s

	if t.last != nil {
		ch <- *t.last
	}

	unsubscribe := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if cur, ok := t.subs[id]; ok && !cur.closed {
			cur.closed = true
			close(cur.ch)
			delete(t.subs, id)
		}
	}
	return ch, unsubscribe
}

// Close terminates the stream: per spec.md §9's Open Question resolution,
// the progress RPC stream ends when the job reaches a terminal state.
func (t *Topic) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	for id, s := range t.subs {
		if !s.closed {
			s.closed = true
			close(s.ch)
		}
		delete(t.subs, id)
	}
}

// Registry maps jobId to its progress Topic, created lazily and cleaned
// up once the job reaches a terminal state.
type Registry struct {
	mu     sync.Mutex
	topics map[int64]*Topic
}

func NewRegistry() *Registry {
	return &Registry{topics: make(map[int64]*Topic)}
}

// Topic returns (creating if necessary) the Topic for a jobId.
func (r *Registry) Topic(jobID int64) *Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[jobID]
	if !ok {
		t = NewTopic()
		r.topics[jobID] = t
	}
	return t
}

// Cleanup closes and removes a job's topic, e.g. on terminal transition.
func (r *Registry) Cleanup(jobID int64) {
	r.mu.Lock()
	t, ok := r.topics[jobID]
	delete(r.topics, jobID)
	r.mu.Unlock()
	if ok {
		t.Close()
	}
}
