// Package eventbus is the process-local, in-memory fan-out for the
// status-transition and operational events described in spec.md §6.3.
// It keeps subscribers in mutex-guarded slices (not the copy-on-write
// snapshot internal/jobs/registry.go uses) rather than a full message
// broker, since the spec treats the bus as an internal collaborator, not
// an external system.
package eventbus

import (
	"log/slog"
	"sync"

	"github.com/shardwork/jobmesh/internal/domain/job"
)

// JobStatusEvent is emitted on every status transition.
type JobStatusEvent struct {
	AggregateID string `json:"aggregateId"`
	JobID       int64  `json:"jobId"`
	TenantID    string `json:"tenantId"`
	Type        string `json:"type"`
	Status      job.Status `json:"status"`
	Error       *string    `json:"error,omitempty"`
}

// DomainEvent names one of job.completed / job.failed / job.cancelled.
type DomainEvent struct {
	Name  string
	Event JobStatusEvent
}

// DlqAlertEvent fires when a DlqEntry exceeds maxRetries.
type DlqAlertEvent struct {
	DlqID      string `json:"dlqId"`
	TenantID   string `json:"tenantId"`
	SourceID   string `json:"sourceId"`
	Type       string `json:"type"`
	Attempts   int    `json:"attempts"`
	MaxRetries int    `json:"maxRetries"`
}

// PollingAlertEvent fires when an operational threshold is crossed
// (DLQ size, queue depth, outbox depth, cache hit ratio).
type PollingAlertEvent struct {
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

type subscribers struct {
	statusChange []func(JobStatusEvent)
	domain       []func(DomainEvent)
	dlqAlert     []func(DlqAlertEvent)
	pollingAlert []func(PollingAlertEvent)
}

// Bus fans out events to process-local subscribers. Registration is rare
// (wired at process startup) and takes the write lock; publishing takes
// the read lock only long enough to copy the subscriber slices, then
// calls the subscribers outside the lock.
type Bus struct {
	mu   sync.RWMutex
	subs subscribers
}

func New() *Bus {
	return &Bus{}
}

func (b *Bus) OnStatusChange(fn func(JobStatusEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs.statusChange = append(b.subs.statusChange, fn)
}

func (b *Bus) OnDomainEvent(fn func(DomainEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs.domain = append(b.subs.domain, fn)
}

func (b *Bus) OnDlqAlert(fn func(DlqAlertEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs.dlqAlert = append(b.subs.dlqAlert, fn)
}

func (b *Bus) OnPollingAlert(fn func(PollingAlertEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs.pollingAlert = append(b.subs.pollingAlert, fn)
}

// PublishStatus emits a JobStatusEvent and, for terminal/failure
// transitions, the matching domain event.
func (b *Bus) PublishStatus(evt JobStatusEvent) {
	b.mu.RLock()
	fns := append([]func(JobStatusEvent){}, b.subs.statusChange...)
	domainFns := append([]func(DomainEvent){}, b.subs.domain...)
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}

	var domainName string
	switch evt.Status {
	case job.StatusComplete:
		domainName = "job.completed"
	case job.StatusFailed:
		domainName = "job.failed"
	case job.StatusCancelled:
		domainName = "job.cancelled"
	default:
		return
	}
	de := DomainEvent{Name: domainName, Event: evt}
	for _, fn := range domainFns {
		fn(de)
	}
	slog.Default().Info("eventbus.domain_event", "name", domainName, "job_id", evt.JobID, "tenant_id", evt.TenantID)
}

func (b *Bus) PublishDlqAlert(evt DlqAlertEvent) {
	b.mu.RLock()
	fns := append([]func(DlqAlertEvent){}, b.subs.dlqAlert...)
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(evt)
	}
	slog.Default().Warn("eventbus.dlq_alert", "dlq_id", evt.DlqID, "tenant_id", evt.TenantID, "attempts", evt.Attempts)
}

func (b *Bus) PublishPollingAlert(evt PollingAlertEvent) {
	b.mu.RLock()
	fns := append([]func(PollingAlertEvent){}, b.subs.pollingAlert...)
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(evt)
	}
}
