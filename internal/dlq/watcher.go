// Package dlq implements the DLQ Watcher (spec.md §4.6): a leader-only
// background sweep that replays dead-lettered jobs with bounded
// per-tenant paging and backoff, and raises an alert event when a
// tenant's dead-letter depth crosses a threshold.
package dlq

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shardwork/jobmesh/internal/eventbus"
	"github.com/shardwork/jobmesh/internal/repo/postgres"
)

const (
	defaultCycle         = 5 * time.Minute
	defaultMaxReplayTries = 3
	pageLimit            = 50
	alertThreshold       = 100
)

// LeaderCheck reports whether this runner is presently the DLQ Watcher
// singleton owner (spec.md §4.7's leader-election coordinator).
type LeaderCheck interface {
	IsLeader() bool
}

// ReplaySink re-submits a dead-lettered entry as a brand-new job through
// the Router, so it gets a fresh entity-id/shard assignment rather than
// being reinserted directly into the jobs table.
type ReplaySink interface {
	Replay(ctx context.Context, e postgres.Entry) error
}

// replayBackoff mirrors the teacher's worker-level exponential backoff
// (internal/queue/worker/backoff.go): base 2s, cap 5m, small jitter.
func replayBackoff(attempt int) time.Duration {
	base := 2 * time.Second
	capDelay := 5 * time.Minute
	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if delay > capDelay {
		delay = capDelay
	}
	delay += time.Duration(rand.Intn(250)) * time.Millisecond
	return delay
}

// Watcher periodically replays dead-lettered jobs, one tenant page at a
// time, bounded so a single noisy tenant can't starve the cycle.
type Watcher struct {
	repo       *postgres.DlqRepo
	bus        *eventbus.Bus
	leader     LeaderCheck
	sink       ReplaySink
	cycle      time.Duration
	maxRetries int
}

func New(repo *postgres.DlqRepo, bus *eventbus.Bus, leader LeaderCheck, sink ReplaySink, cycle time.Duration, maxRetries int) *Watcher {
	if cycle <= 0 {
		cycle = defaultCycle
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxReplayTries
	}
	return &Watcher{repo: repo, bus: bus, leader: leader, sink: sink, cycle: cycle, maxRetries: maxRetries}
}

// Run blocks until ctx is cancelled, sweeping every cycle.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cycle)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.leader != nil && !w.leader.IsLeader() {
				continue
			}
			w.sweep(ctx)
		}
	}
}

func (w *Watcher) sweep(ctx context.Context) {
	tenants, err := w.repo.Tenants(ctx, w.maxRetries)
	if err != nil {
		slog.Default().Error("dlq.sweep_list_tenants_failed", "err", err)
		return
	}

	for _, tenantID := range tenants {
		count, err := w.repo.CountByTenant(ctx, tenantID)
		if err == nil && count >= alertThreshold {
			w.bus.PublishPollingAlert(eventbus.PollingAlertEvent{
				Metric:    "dlq_depth",
				Value:     float64(count),
				Threshold: float64(alertThreshold),
			})
		}

		entries, err := w.repo.ListForReplay(ctx, tenantID, w.maxRetries, pageLimit)
		if err != nil {
			slog.Default().Error("dlq.sweep_list_entries_failed", "tenant_id", tenantID, "err", err)
			continue
		}

		for _, e := range entries {
			w.replayOne(ctx, e)
		}
	}
}

// replayOne handles one DlqEntry per spec.md §4.6 step 2-3: entries past
// their retry budget escalate and stop being replayed, entries still
// within budget are replayed and only then marked failed or resolved —
// never the other way around, so a successful replay is never
// re-submitted on the next sweep.
func (w *Watcher) replayOne(ctx context.Context, e postgres.Entry) {
	if e.ReplayCount > w.maxRetries {
		// Already escalated on a prior sweep; ListForReplay shouldn't
		// have returned this, but don't replay it regardless.
		return
	}

	if e.ReplayCount == w.maxRetries {
		w.bus.PublishDlqAlert(eventbus.DlqAlertEvent{
			DlqID:      fmt.Sprintf("%d", e.ID),
			TenantID:   e.TenantID,
			SourceID:   fmt.Sprintf("%d", e.SourceJobID),
			Type:       e.Type,
			Attempts:   e.ReplayCount,
			MaxRetries: w.maxRetries,
		})
		err := w.repo.WithTx(ctx, func(tx pgx.Tx) error {
			return w.repo.MarkReplayFailed(ctx, tx, e.ID)
		})
		if err != nil {
			slog.Default().Error("dlq.replay_mark_failed", "dlq_id", e.ID, "err", err)
		}
		return
	}

	if e.LastReplayAt != nil {
		elapsed := time.Since(*e.LastReplayAt)
		if elapsed < replayBackoff(e.ReplayCount) {
			return
		}
	}

	// The actual re-submission goes through the Router so the replayed
	// job gets a fresh entity-id/shard assignment rather than being
	// inserted directly — see ReplaySink for the wiring seam.
	var replayErr error
	if w.sink != nil {
		replayErr = w.sink.Replay(ctx, e)
		if replayErr != nil {
			slog.Default().Error("dlq.replay_submit_failed", "dlq_id", e.ID, "err", replayErr)
		}
	}

	err := w.repo.WithTx(ctx, func(tx pgx.Tx) error {
		if replayErr != nil {
			return w.repo.MarkReplayFailed(ctx, tx, e.ID)
		}
		return w.repo.MarkResolved(ctx, tx, e.ID)
	})
	if err != nil {
		slog.Default().Error("dlq.replay_mark_failed", "dlq_id", e.ID, "err", err)
	}
}
