// Package workflow implements the Durable Workflow Envelope (spec.md
// §4.4): idempotent, checkpointed, compensated execution of one job
// attempt sequence, wrapping whatever Handler the registry resolves.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	backoff "github.com/cenkalti/backoff/v5"

	"github.com/shardwork/jobmesh/internal/domain/job"
	"github.com/shardwork/jobmesh/internal/eventbus"
	"github.com/shardwork/jobmesh/internal/jobs"
	"github.com/shardwork/jobmesh/internal/progress"
)

// Store is the persistence surface the workflow needs from the State
// Store to checkpoint transitions.
type Store interface {
	Save(ctx context.Context, rec job.Record) error
}

// DeadLetterSink inserts a DlqEntry on terminal failure; implemented by
// postgres.DlqRepo (internal/repo/postgres) against the job_dlq table.
type DeadLetterSink interface {
	Insert(ctx context.Context, rec job.Record, reason string, errHistory []string) error
}

// HeartbeatWriter refreshes/clears the per-job heartbeat key while the
// workflow is actively executing a handler (spec.md §4.2).
type HeartbeatWriter interface {
	Refresh(ctx context.Context, jobID int64) error
	Clear(ctx context.Context, jobID int64)
}

// Deps bundles the Durable Workflow Envelope's collaborators, wired once
// at process startup to break the entity<->service dependency cycle
// (spec.md §9's "break the cycle with interface abstractions").
type Deps struct {
	Store     Store
	Registry  *jobs.Registry
	Bus       *eventbus.Bus
	Progress  *progress.Registry
	Dlq       DeadLetterSink
	Heartbeat HeartbeatWriter
}

// innerBackoff computes the handler-level retry delay: base 100ms, cap
// 30s, doubling, jittered (spec.md §4.2).
func innerBackoff(attempt int) time.Duration {
	base := 100 * time.Millisecond
	capDelay := 30 * time.Second
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > capDelay {
		delay = capDelay
	}
	delay += time.Duration(rand.Intn(50)) * time.Millisecond
	return delay
}

// durableSleep blocks until rec.ScheduledAt, if it names a future time
// and the job hasn't already left the queued state — a scheduledAt in
// the past behaves identically to immediate delivery (spec.md §8). It
// only ever applies to the job's first attempt: once Apply has moved the
// record past queued, an outer DefectRetry re-entry must not sleep
// again.
func durableSleep(ctx context.Context, rec *job.Record) error {
	if rec.Status != job.StatusQueued || rec.ScheduledAt == nil {
		return nil
	}
	wait := time.Until(*rec.ScheduledAt)
	if wait <= 0 {
		return nil
	}

	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify maps a handler error to an errorReason tag: the empty Kind for
// nil, otherwise jobs.KindOf, which maps unclassified errors to
// KindProcessing. The MaxRetries fallback for an empty reason lives in
// compensate.
func classify(err error) jobs.Kind {
	if err == nil {
		return ""
	}
	return jobs.KindOf(err)
}

// heartbeatLoop refreshes the heartbeat key every 10s (TTL 30s) until ctx
// is cancelled, per spec.md §4.2.
func heartbeatLoop(ctx context.Context, hb HeartbeatWriter, jobID int64) {
	if hb == nil {
		return
	}
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	_ = hb.Refresh(ctx, jobID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = hb.Refresh(ctx, jobID)
		}
	}
}

// Run executes one job to a terminal-or-retry-scheduled outcome: the
// inner handler retry loop (governed by rec.MaxAttempts and error
// classification) followed by compensation on exhaustion. It mutates
// rec in place and persists every checkpoint (processing, complete,
// failed) as it goes, so a crash mid-attempt leaves the last durable
// checkpoint in the jobs table, where a job left in processing can be
// listed by JobsRepo.ClaimStuck.
func Run(ctx context.Context, d Deps, rec *job.Record) error {
	handler, err := d.Registry.Lookup(rec.Type)
	if err != nil {
		return terminalFail(ctx, d, rec, err)
	}

	hbCtx, cancelHB := context.WithCancel(ctx)
	go heartbeatLoop(hbCtx, d.Heartbeat, rec.JobID)
	defer func() {
		cancelHB()
		if d.Heartbeat != nil {
			d.Heartbeat.Clear(context.WithoutCancel(ctx), rec.JobID)
		}
	}()

	if err := durableSleep(ctx, rec); err != nil {
		return err
	}

	// maxAttempts=0 fails on first error without any attempt (spec.md §8).
	if rec.MaxAttempts == 0 {
		transition(d, rec, job.StatusProcessing, nil)
		return compensate(ctx, d, rec, jobs.NewError(jobs.KindMaxRetries, "maxAttempts is zero", nil))
	}

	for {
		transition(d, rec, job.StatusProcessing, nil)

		result, hErr := handler(ctx, rec.Payload)
		if hErr == nil {
			return complete(d, rec, result)
		}

		kind := classify(hErr)
		willRetry := kind.Retryable() && rec.Attempts+1 < rec.MaxAttempts

		if !willRetry {
			return compensate(ctx, d, rec, hErr)
		}

		delay := innerBackoff(rec.Attempts)
		slog.Default().WarnContext(ctx, "workflow.retry_scheduled",
			"job_id", rec.JobID, "job_type", rec.Type,
			"attempt", rec.Attempts+1, "max_attempts", rec.MaxAttempts,
			"delay", delay, "err", hErr)

		errMsg := hErr.Error()
		transition(d, rec, job.StatusFailed, &errMsg)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		transition(d, rec, job.StatusProcessing, nil)
	}
}

func transition(d Deps, rec *job.Record, to job.Status, errMsg *string) {
	if !rec.Apply(to, errMsg) {
		slog.Default().Warn("workflow.invalid_transition", "job_id", rec.JobID, "from", rec.Status, "to", to)
		return
	}
	if err := d.Store.Save(context.Background(), *rec); err != nil {
		slog.Default().Error("workflow.persist_failed", "job_id", rec.JobID, "status", to, "err", err)
	}
	d.Bus.PublishStatus(eventbus.JobStatusEvent{
		AggregateID: fmt.Sprintf("%d", rec.JobID),
		JobID:       rec.JobID,
		TenantID:    rec.TenantID,
		Type:        rec.Type,
		Status:      rec.Status,
		Error:       errMsg,
	})
}

func complete(d Deps, rec *job.Record, result json.RawMessage) error {
	rec.Result = result
	transition(d, rec, job.StatusComplete, nil)
	d.Progress.Cleanup(rec.JobID)
	return nil
}

// compensate runs the terminal-failure cleanup uninterruptibly: it must
// not be cancelled by ctx, since losing the DLQ insert would silently
// drop the job. Compensation failures are logged but never propagate
// (spec.md §4.4, §7).
func compensate(ctx context.Context, d Deps, rec *job.Record, cause error) error {
	reason := string(classify(cause))
	if reason == "" {
		reason = string(jobs.KindMaxRetries)
	}

	errMsg := cause.Error()
	transition(d, rec, job.StatusFailed, &errMsg)
	d.Progress.Cleanup(rec.JobID)

	bg := context.WithoutCancel(ctx)
	history := make([]string, 0, len(rec.History))
	for _, h := range rec.History {
		if h.Error != nil {
			history = append(history, *h.Error)
		}
	}

	if err := d.Dlq.Insert(bg, *rec, reason, history); err != nil {
		slog.Default().Error("workflow.compensation_failed", "job_id", rec.JobID, "err", err)
	}

	// Compensation failures never propagate to the caller — fail-safe.
	return nil
}

func terminalFail(ctx context.Context, d Deps, rec *job.Record, cause error) error {
	if rec.Status == job.StatusQueued {
		transition(d, rec, job.StatusProcessing, nil)
	}
	return compensate(ctx, d, rec, cause)
}

// DefectRetry wraps Run with the outer, entity-defect-retry layer: up to
// 5 attempts with exponential jittered backoff capped at 30s, meant to
// catch bugs in the entity runtime itself (panics, transient
// infrastructure faults around Run), not handler-level failures which
// Run already retries on its own (spec.md §4.4).
func DefectRetry(ctx context.Context, d Deps, rec *job.Record) error {
	op := func() (struct{}, error) {
		var panicked error
		func() {
			defer func() {
				if r := recover(); r != nil {
					panicked = fmt.Errorf("entity defect: %v", r)
				}
			}()
			panicked = Run(ctx, d, rec)
		}()
		if panicked != nil {
			return struct{}{}, panicked
		}
		return struct{}{}, nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.MaxInterval = 30 * time.Second
	_, err := backoff.Retry(ctx, op,
		backoff.WithMaxTries(5),
		backoff.WithBackOff(eb),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Default().Error("workflow.defect_retry_exhausted", "job_id", rec.JobID, "err", err)
	}
	return err
}
