package observability

import (
	"sync/atomic"
	"time"
)

// JobMetrics is a lock-free, per-process counter set for the worker side
// of the engine (claims/completions/retries/dead-letters plus a running
// duration average+max), separate from Prom's request-scoped histograms
// since this is cheap enough to update on every job event without
// touching a registry.
type JobMetrics struct {
	claimed      atomic.Uint64
	done         atomic.Uint64
	failed       atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64

	durationCount atomic.Uint64
	durationTotal atomic.Int64 // nanoseconds
	durationMax   atomic.Int64 // nanoseconds
}

func NewJobMetrics() *JobMetrics {
	return &JobMetrics{}
}

func (m *JobMetrics) IncClaimed() {
	m.claimed.Add(1)
}
func (m *JobMetrics) IncDone() {
	m.done.Add(1)
}
func (m *JobMetrics) IncFailed() {
	m.failed.Add(1)
}

func (m *JobMetrics) IncRetried() {
	m.retried.Add(1)
}

func (m *JobMetrics) IncDeadLettered() {
	m.deadLettered.Add(1)
}

// ObserveDuration records one job's execution time for the running
// average and updates the high-water mark via CAS retry loop (lock-free,
// safe under concurrent workers).
func (m *JobMetrics) ObserveDuration(d time.Duration) {
	ns := d.Nanoseconds()
	m.durationCount.Add(1)
	m.durationTotal.Add(ns)

	for {
		curr := m.durationMax.Load()
		if ns <= curr {
			return
		}
		if m.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type JobMetricsSnapShot struct {
	Claimed         uint64
	Done            uint64
	Failed          uint64
	Retried         uint64
	DeadLettered    uint64
	DurationCount   uint64
	AverageDuration time.Duration
	MaxDuration     time.Duration
}

// Snapshot returns a point-in-time, non-atomic-across-fields read of
// every counter — good enough for a periodic metrics scrape, not meant
// for strict consistency between fields.
func (m *JobMetrics) Snapshot() JobMetricsSnapShot {
	count := m.durationCount.Load()
	total := m.durationTotal.Load()

	var avg time.Duration
	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	return JobMetricsSnapShot{
		Claimed:         m.claimed.Load(),
		Done:            m.done.Load(),
		Failed:          m.failed.Load(),
		Retried:         m.retried.Load(),
		DeadLettered:    m.deadLettered.Load(),
		DurationCount:   count,
		AverageDuration: avg,
		MaxDuration:     time.Duration(m.durationMax.Load()),
	}
}
