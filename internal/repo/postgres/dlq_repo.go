package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shardwork/jobmesh/internal/domain/job"
	"github.com/shardwork/jobmesh/internal/observability"
)

var ErrDlqEntryNotFound = errors.New("dlq entry not found")

// DlqRepo is the Dead Letter Queue's Postgres backing (spec.md §4.6):
// one row per terminally-failed job, with enough of the original
// request preserved to replay it as a brand-new job.
type DlqRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewDlqRepo(pool *pgxpool.Pool, prom *observability.Prom) *DlqRepo {
	return &DlqRepo{pool: pool, prom: prom}
}

func (repo *DlqRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Entry is one job_dlq row. ReplayCount tracks failed replay attempts
// only (spec.md §4.6 step 2); ResolvedAt is set the moment a replay
// succeeds, independently of ReplayCount, so a resolved entry stops
// being listed without ever looking like it exhausted its budget.
type Entry struct {
	ID           int64
	SourceJobID  int64
	TenantID     string
	Type         string
	Payload      []byte
	Priority     string
	MaxAttempts  int
	Attempts     int
	Reason       string
	ErrorHistory []string
	ReplayCount  int
	CreatedAt    time.Time
	LastReplayAt *time.Time
	ResolvedAt   *time.Time
}

// Insert records a terminally-failed job in the DLQ. Called from the
// Durable Workflow Envelope's compensation step, uninterruptibly — a
// failure here is logged by the caller, never retried inline.
func (r *DlqRepo) Insert(ctx context.Context, rec job.Record, reason string, errHistory []string) error {
	op := "dlq.insert"
	return r.observe(op, func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO job_dlq(
				source_job_id, tenant_id, type, payload, priority, max_attempts,
				attempts, reason, error_history, replay_count, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0,NOW())
		`, rec.JobID, rec.TenantID, rec.Type, rec.Payload, rec.Priority, rec.MaxAttempts,
			rec.Attempts, reason, errHistory)
		return err
	})
}

// ListForReplay pages unreplayed-or-stale DLQ entries for one tenant,
// bounded to 50 per page (spec.md §4.6's bounded paging to avoid one
// noisy tenant starving the watcher's cycle).
func (r *DlqRepo) ListForReplay(ctx context.Context, tenantID string, maxReplayCount int, limit int) ([]Entry, error) {
	op := "dlq.list_for_replay"
	var out []Entry

	err := r.observe(op, func() error {
		rows, qErr := r.pool.Query(ctx, `
			SELECT id, source_job_id, tenant_id, type, payload, priority, max_attempts,
			       attempts, reason, error_history, replay_count, created_at, last_replay_at, resolved_at
			FROM job_dlq
			WHERE tenant_id = $1 AND replay_count <= $2 AND resolved_at IS NULL
			ORDER BY created_at ASC
			LIMIT $3
		`, tenantID, maxReplayCount, limit)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()

		for rows.Next() {
			var e Entry
			if scanErr := rows.Scan(
				&e.ID, &e.SourceJobID, &e.TenantID, &e.Type, &e.Payload, &e.Priority, &e.MaxAttempts,
				&e.Attempts, &e.Reason, &e.ErrorHistory, &e.ReplayCount, &e.CreatedAt, &e.LastReplayAt, &e.ResolvedAt,
			); scanErr != nil {
				return scanErr
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	return out, err
}

// GetByID fetches a single DLQ entry for the admin replay(dlqId) call
// (spec.md §6.5).
func (r *DlqRepo) GetByID(ctx context.Context, id int64) (Entry, error) {
	op := "dlq.get_by_id"
	var e Entry
	err := r.observe(op, func() error {
		scanErr := r.pool.QueryRow(ctx, `
			SELECT id, source_job_id, tenant_id, type, payload, priority, max_attempts,
			       attempts, reason, error_history, replay_count, created_at, last_replay_at, resolved_at
			FROM job_dlq WHERE id = $1
		`, id).Scan(
			&e.ID, &e.SourceJobID, &e.TenantID, &e.Type, &e.Payload, &e.Priority, &e.MaxAttempts,
			&e.Attempts, &e.Reason, &e.ErrorHistory, &e.ReplayCount, &e.CreatedAt, &e.LastReplayAt, &e.ResolvedAt,
		)
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return ErrDlqEntryNotFound
		}
		return scanErr
	})
	return e, err
}

// Tenants lists distinct tenant ids with at least one replayable entry,
// so the watcher can round-robin its bounded paging across tenants
// rather than always visiting them in the same order.
func (r *DlqRepo) Tenants(ctx context.Context, maxReplayCount int) ([]string, error) {
	op := "dlq.tenants"
	var out []string
	err := r.observe(op, func() error {
		rows, qErr := r.pool.Query(ctx, `
			SELECT DISTINCT tenant_id FROM job_dlq WHERE replay_count <= $1 AND resolved_at IS NULL
		`, maxReplayCount)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()
		for rows.Next() {
			var t string
			if scanErr := rows.Scan(&t); scanErr != nil {
				return scanErr
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	return out, err
}

// MarkReplayFailed increments an entry's replay_count and timestamps the
// attempt inside tx. Callers submit the replay first and mark the outcome
// in a separate transaction afterwards, so a crash between the two leaves
// the entry unmarked and it is replayed again on a later sweep. It
// must only be called after a replay attempt has actually failed — a
// successful replay is finalized with MarkResolved instead, which leaves
// replay_count untouched (spec.md §4.6 step 2).
func (r *DlqRepo) MarkReplayFailed(ctx context.Context, tx pgx.Tx, entryID int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE job_dlq SET replay_count = replay_count + 1, last_replay_at = NOW()
		WHERE id = $1
	`, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDlqEntryNotFound
	}
	return nil
}

// MarkResolved finalizes an entry whose replay succeeded: it stops being
// selected by ListForReplay/Tenants without bumping replay_count, so a
// job that succeeds on its first replay is never re-submitted.
func (r *DlqRepo) MarkResolved(ctx context.Context, tx pgx.Tx, entryID int64) error {
	tag, err := tx.Exec(ctx, `
		UPDATE job_dlq SET resolved_at = NOW() WHERE id = $1
	`, entryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDlqEntryNotFound
	}
	return nil
}

// WithTx runs fn inside a transaction, committing on success.
func (r *DlqRepo) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CountByTenant reports the live DLQ depth per tenant, used for the
// polling-alert event (spec.md §4.6) when depth crosses a threshold.
func (r *DlqRepo) CountByTenant(ctx context.Context, tenantID string) (int64, error) {
	op := "dlq.count_by_tenant"
	var n int64
	err := r.observe(op, func() error {
		return r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM job_dlq WHERE tenant_id = $1 AND resolved_at IS NULL`, tenantID).Scan(&n)
	})
	return n, err
}
