package jobs

import (
	"context"
	"encoding/json"
	"sync/atomic"
)

// Handler executes one job's payload and returns an opaque result.
// A Handler returning an *Error with a retryable Kind is retried by the
// workflow envelope; anything else (or a plain error) is treated per
// jobs.KindOf's default classification.
type Handler func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Registry is a process-local, mutable map of job type to Handler.
// Reads are lock-free; registration is rare and replaces the whole
// snapshot atomically (copy-on-write), per spec.md §4.5 and §9.
type Registry struct {
	snapshot atomic.Pointer[map[string]Handler]
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := map[string]Handler{}
	r.snapshot.Store(&empty)
	return r
}

// Register adds or replaces the handler for a job type, publishing a new
// immutable snapshot so concurrent readers never observe a partial map.
func (r *Registry) Register(jobType string, h Handler) {
	for {
		old := r.snapshot.Load()
		next := make(map[string]Handler, len(*old)+1)
		for k, v := range *old {
			next[k] = v
		}
		next[jobType] = h
		if r.snapshot.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Lookup returns the handler for a job type, or ErrHandlerMissing.
func (r *Registry) Lookup(jobType string) (Handler, error) {
	m := *r.snapshot.Load()
	h, ok := m[jobType]
	if !ok {
		return nil, ErrHandlerMissing
	}
	return h, nil
}

// Types returns the currently registered job type names.
func (r *Registry) Types() []string {
	m := *r.snapshot.Load()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
