// Package entity implements the Job Entity (spec.md §4.2): one actor per
// entity-id, serializing at most one in-flight job execution behind a
// bounded mailbox, while answering status/progress/cancel queries
// without waiting behind that work.
package entity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shardwork/jobmesh/internal/actorctx"
	"github.com/shardwork/jobmesh/internal/domain/job"
	"github.com/shardwork/jobmesh/internal/eventbus"
	"github.com/shardwork/jobmesh/internal/jobs"
	"github.com/shardwork/jobmesh/internal/workflow"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("jobmesh-entity")

// mailboxCapacity bounds how many submissions can queue for one entity
// before Submit reports backpressure (spec.md §4.2).
const mailboxCapacity = 100

// Store is the persistence surface an Entity needs from the State Store.
type Store interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Record, error)
	FindActiveByDedupeKey(ctx context.Context, tenantID, dedupeKey string) (job.Record, bool, error)
	Get(ctx context.Context, jobID int64) (job.Record, error)
}

// submission is one unit of work queued on an entity's mailbox.
type submission struct {
	req    job.CreateRequest
	result chan submitResult
}

type submitResult struct {
	rec       job.Record
	duplicate bool
	err       error
}

// Entity owns one entity-id's serialized job execution stream: multiple
// jobIds can be routed to it over time (by the router's priority-pool
// assignment), but only one runs at a time.
type Entity struct {
	ID string

	store    Store
	workflow workflow.Deps
	idGen    IDGenerator

	mailbox chan submission

	mu     sync.RWMutex
	active map[int64]context.CancelFunc // jobId -> cancel for an in-flight run
	queue  map[int64]*job.Record        // jobs this entity knows about, for fast status/progress reads

	closeOnce sync.Once
	done      chan struct{}
}

// IDGenerator issues the snowflake ids new jobs are assigned.
type IDGenerator interface {
	Next() int64
}

// cloneRecord returns a copy of rec safe to hand out as a point-in-time
// snapshot: History is the only field Record.Apply mutates in place
// (append can reallocate or tear under concurrent reads), so it alone
// needs a deep copy. Every other field is always reassigned to a fresh
// value by Apply/SetProgress, never mutated through an existing pointer.
func cloneRecord(rec job.Record) *job.Record {
	clone := rec
	clone.History = append([]job.HistoryEntry(nil), rec.History...)
	return &clone
}

// queueSyncStore wraps the workflow's Store so that every checkpoint it
// persists (processing/failed/complete) also publishes a snapshot into
// the entity's queue under e.mu — the run loop's live *job.Record, which
// workflow.DefectRetry mutates outside any lock, never leaks into the map
// Status() reads concurrently.
type queueSyncStore struct {
	inner workflow.Store
	e     *Entity
}

func (s *queueSyncStore) Save(ctx context.Context, rec job.Record) error {
	err := s.inner.Save(ctx, rec)
	s.e.mu.Lock()
	s.e.queue[rec.JobID] = cloneRecord(rec)
	s.e.mu.Unlock()
	return err
}

// New builds an Entity and starts its processing loop, which runs until
// ctx is cancelled.
func New(ctx context.Context, id string, store Store, wf workflow.Deps, idGen IDGenerator) *Entity {
	e := &Entity{
		ID:       id,
		store:    store,
		workflow: wf,
		idGen:    idGen,
		mailbox:  make(chan submission, mailboxCapacity),
		active:   make(map[int64]context.CancelFunc),
		queue:    make(map[int64]*job.Record),
		done:     make(chan struct{}),
	}
	go e.run(ctx)
	return e
}

// Submit enqueues a new job for this entity; returns ErrMailboxFull
// immediately if the bounded queue is saturated rather than blocking the
// caller (spec.md §4.2, §8).
func (e *Entity) Submit(ctx context.Context, req job.CreateRequest) (job.Record, bool, error) {
	if req.DedupeKey != nil && *req.DedupeKey != "" {
		if existing, found, err := e.store.FindActiveByDedupeKey(ctx, req.TenantID, *req.DedupeKey); err != nil {
			return job.Record{}, false, err
		} else if found {
			return existing, true, nil
		}
	}

	s := submission{req: req, result: make(chan submitResult, 1)}
	select {
	case e.mailbox <- s:
	default:
		return job.Record{}, false, jobs.ErrMailboxFull
	case <-ctx.Done():
		return job.Record{}, false, ctx.Err()
	}

	select {
	case res := <-s.result:
		return res.rec, res.duplicate, res.err
	case <-ctx.Done():
		return job.Record{}, false, ctx.Err()
	}
}

// Status returns the last known Record for a jobId this entity has seen.
func (e *Entity) Status(jobID int64) (job.Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.queue[jobID]
	if !ok {
		return job.Record{}, false
	}
	return *rec, true
}

// Cancel marks a queued job cancelled, or interrupts an in-flight one by
// cancelling its run context; the workflow's own ctx.Done() handling
// takes it from there (spec.md §4.2 cancel semantics).
func (e *Entity) Cancel(jobID int64) error {
	e.mu.Lock()

	rec, ok := e.queue[jobID]
	if !ok {
		e.mu.Unlock()
		return job.ErrJobNotFound
	}
	if rec.Status.IsTerminal() {
		e.mu.Unlock()
		return jobs.ErrAlreadyCancelled
	}

	if cancel, inFlight := e.active[jobID]; inFlight {
		e.mu.Unlock()
		cancel()
		return nil
	}

	clone := cloneRecord(*rec)
	clone.Apply(job.StatusCancelled, nil)
	e.queue[jobID] = clone
	e.mu.Unlock()

	if e.workflow.Store != nil {
		if err := e.workflow.Store.Save(context.Background(), *clone); err != nil {
			slog.Default().Error("entity.cancel_persist_failed", "entity_id", e.ID, "job_id", jobID, "err", err)
		}
	}
	if e.workflow.Bus != nil {
		e.workflow.Bus.PublishStatus(eventbus.JobStatusEvent{
			AggregateID: fmt.Sprintf("%d", jobID),
			JobID:       jobID,
			TenantID:    clone.TenantID,
			Type:        clone.Type,
			Status:      clone.Status,
		})
	}
	return nil
}

// Close signals the run loop to stop and returns without waiting for it.
// A job already executing is not cancelled and runs to the end of its
// workflow; once the loop sees the signal it exits, and submissions still
// in the mailbox are never processed. Submit does not check whether the
// entity has been closed.
func (e *Entity) Close() {
	e.closeOnce.Do(func() { close(e.done) })
}

func (e *Entity) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case s := <-e.mailbox:
			e.process(ctx, s)
		}
	}
}

func (e *Entity) process(ctx context.Context, s submission) {
	req := s.req
	if req.JobID == 0 {
		req.JobID = e.idGen.Next()
	}

	rec, err := e.store.Create(ctx, req)
	if err != nil {
		s.result <- submitResult{err: err}
		return
	}

	e.mu.Lock()
	e.queue[rec.JobID] = cloneRecord(rec)
	runCtx, cancel := context.WithCancel(ctx)
	e.active[rec.JobID] = cancel
	e.mu.Unlock()

	s.result <- submitResult{rec: rec, duplicate: false}

	if req.TenantID != "" {
		runCtx = actorctx.WithUserID(runCtx, req.TenantID)
	}
	runCtx, span := tracer.Start(runCtx, "entity.process_job",
		trace.WithAttributes(
			attribute.Int64("job.id", rec.JobID),
			attribute.String("job.type", rec.Type),
			attribute.String("job.entity_id", e.ID),
			attribute.Int("job.max_attempts", rec.MaxAttempts),
		),
	)

	// wf routes every Store.Save checkpoint through queueSyncStore so the
	// entity's shared queue is only ever updated from snapshots taken
	// under e.mu, never by aliasing the *job.Record DefectRetry mutates
	// on this goroutine.
	wf := e.workflow
	wf.Store = &queueSyncStore{inner: e.workflow.Store, e: e}

	if err := workflow.DefectRetry(runCtx, wf, &rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Default().Error("entity.job_defect", "entity_id", e.ID, "job_id", rec.JobID, "err", err)
	} else {
		span.SetStatus(codes.Ok, string(rec.Status))
	}
	span.End()

	e.mu.Lock()
	delete(e.active, rec.JobID)
	e.queue[rec.JobID] = cloneRecord(rec)
	e.mu.Unlock()
	cancel()
}
