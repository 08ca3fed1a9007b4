package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shardwork/jobmesh/internal/domain/job"
	"github.com/shardwork/jobmesh/internal/observability"
)

var ErrJobNotFailed = errors.New("job is not failed")

// JobsRepo is the State Store's Postgres backing for job Records
// (spec.md §4.5, §6.2): every transition the workflow applies in memory
// is mirrored here as the durable checkpoint a restart reconciles from.
type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func (repo *JobsRepo) observe(op string, fn func() error) error {
	if repo.prom != nil {
		return repo.prom.ObserveDB(op, fn)
	}
	return fn()
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

func (r *JobsRepo) Create(ctx context.Context, req job.CreateRequest) (job.Record, error) {
	rec := job.New(req)
	op := "jobs.create"

	history, err := json.Marshal(rec.History)
	if err != nil {
		return job.Record{}, err
	}

	err = r.observe(op, func() error {
		_, execErr := r.pool.Exec(ctx, `
			INSERT INTO jobs(
				id, tenant_id, type, payload, status, attempts, max_attempts,
				priority, history, entity_id, "group", dedupe_key, batch_id,
				scheduled_at, duration, created_at, updated_at
			) VALUES (
				$1,$2,$3,$4,$5,$6,$7,
				$8,$9,$10,$11,$12,$13,
				$14,$15,$16,$17
			)
		`, rec.JobID, rec.TenantID, rec.Type, rec.Payload, string(rec.Status), rec.Attempts, rec.MaxAttempts,
			rec.Priority, history, rec.EntityID, rec.Group, rec.DedupeKey, rec.BatchID,
			rec.ScheduledAt, rec.Duration, rec.CreatedAt, rec.UpdatedAt)
		return execErr
	})
	if err != nil {
		return job.Record{}, err
	}
	return rec, nil
}

// FindActiveByDedupeKey returns the most recent non-terminal job sharing a
// (tenant, dedupeKey) pair, if any, so Submit can short-circuit to it
// (spec.md §4.1 dedupe-collapse, invariant 9).
func (r *JobsRepo) FindActiveByDedupeKey(ctx context.Context, tenantID, dedupeKey string) (job.Record, bool, error) {
	var rec job.Record
	op := "jobs.find_active_by_dedupe_key"

	err := r.observe(op, func() error {
		return scanRecord(r.pool.QueryRow(ctx, selectJobColumns+`
			FROM jobs
			WHERE tenant_id = $1 AND dedupe_key = $2
			  AND status NOT IN ('complete', 'cancelled')
			ORDER BY created_at DESC
			LIMIT 1
		`, tenantID, dedupeKey), &rec)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Record{}, false, nil
		}
		return job.Record{}, false, err
	}
	return rec, true, nil
}

func (r *JobsRepo) Get(ctx context.Context, jobID int64) (job.Record, error) {
	var rec job.Record
	op := "jobs.get"

	err := r.observe(op, func() error {
		return scanRecord(r.pool.QueryRow(ctx, selectJobColumns+`FROM jobs WHERE id = $1`, jobID), &rec)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return job.Record{}, job.ErrJobNotFound
		}
		return job.Record{}, err
	}
	return rec, nil
}

// Save persists every mutable field of a Record: the workflow calls this
// once per transition, so it is the sole write path after Create.
func (r *JobsRepo) Save(ctx context.Context, rec job.Record) error {
	op := "jobs.save"

	history, err := json.Marshal(rec.History)
	if err != nil {
		return err
	}
	var progress []byte
	if rec.Progress != nil {
		progress, err = json.Marshal(rec.Progress)
		if err != nil {
			return err
		}
	}

	var tag pgconn.CommandTag
	err = r.observe(op, func() error {
		tag, err = r.pool.Exec(ctx, `
			UPDATE jobs
			SET status = $2, attempts = $3, history = $4, result = $5,
			    last_error = $6, progress = $7, updated_at = $8, completed_at = $9
			WHERE id = $1
		`, rec.JobID, string(rec.Status), rec.Attempts, history, rec.Result,
			rec.LastError, progress, rec.UpdatedAt, rec.CompletedAt)
		return err
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// ClaimStuck lists processing jobs whose updated_at is older than
// heartbeatTTL, candidates for in-flight jobs an evicted or crashed runner
// abandoned (spec.md §4.2, invariant 5). It does not read the heartbeat
// key and does not change the rows; its only caller is the admin
// RecoverInFlight endpoint. The query runs outside an explicit
// transaction, so its FOR UPDATE SKIP LOCKED row locks last only for the
// statement and do not stop another caller from listing the same rows
// afterwards.
func (r *JobsRepo) ClaimStuck(ctx context.Context, heartbeatTTL time.Duration, limit int) ([]job.Record, error) {
	op := "jobs.claim_stuck"
	var out []job.Record

	err := r.observe(op, func() error {
		rows, qErr := r.pool.Query(ctx, selectJobColumns+`
			FROM jobs
			WHERE status = 'processing'
			  AND updated_at < NOW() - ($1 * INTERVAL '1 second')
			ORDER BY updated_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, int64(heartbeatTTL.Seconds()), limit)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()

		for rows.Next() {
			var rec job.Record
			if scanErr := scanRecordRow(rows, &rec); scanErr != nil {
				return scanErr
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

// ListCursor keyset-paginates jobs for the admin surface (spec.md §6.5),
// following the teacher's descending (updated_at, id) cursor pattern.
func (r *JobsRepo) ListCursor(ctx context.Context, tenantID string, status *string, limit int, afterUpdatedAt time.Time, afterID int64) (items []job.Record, nextCursor *string, hasMore bool, err error) {
	op := "jobs.admin.list_cursor"

	conds := []string{"tenant_id = $1"}
	args := []any{tenantID}
	argPos := 2

	if status != nil {
		conds = append(conds, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *status)
		argPos++
	}

	conds = append(conds, fmt.Sprintf("(updated_at, id) < ($%d, $%d)", argPos, argPos+1))
	args = append(args, afterUpdatedAt, afterID)
	argPos += 2

	q := selectJobColumns + "FROM jobs WHERE " + strings.Join(conds, " AND ")
	q += fmt.Sprintf(" ORDER BY updated_at DESC, id DESC LIMIT $%d", argPos)
	args = append(args, limit+1)

	err = r.observe(op, func() error {
		rows, qErr := r.pool.Query(ctx, q, args...)
		if qErr != nil {
			return qErr
		}
		defer rows.Close()

		for rows.Next() {
			var rec job.Record
			if scanErr := scanRecordRow(rows, &rec); scanErr != nil {
				return scanErr
			}
			items = append(items, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, nil, false, err
	}

	if len(items) > limit {
		hasMore = true
		items = items[:limit]
	}
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		cur := fmt.Sprintf("%s|%d", last.UpdatedAt.Format(time.RFC3339Nano), last.JobID)
		nextCursor = &cur
	}
	return items, nextCursor, hasMore, nil
}

// PurgeTerminal deletes jobs past their retention window, per spec.md
// §10's purge sweep (completed 7d, failed 30d retention).
func (r *JobsRepo) PurgeTerminal(ctx context.Context, completedBefore, failedBefore time.Time) (int64, error) {
	op := "jobs.purge_terminal"
	var rows int64
	err := r.observe(op, func() error {
		tag, execErr := r.pool.Exec(ctx, `
			DELETE FROM jobs
			WHERE (status = 'complete' AND completed_at < $1)
			   OR (status IN ('failed', 'cancelled') AND COALESCE(completed_at, updated_at) < $2)
		`, completedBefore, failedBefore)
		if execErr != nil {
			return execErr
		}
		rows = tag.RowsAffected()
		return nil
	})
	return rows, err
}

const selectJobColumns = `
	SELECT id, tenant_id, type, payload, status, attempts, max_attempts,
	       priority, history, result, last_error, progress, entity_id, "group",
	       dedupe_key, batch_id, scheduled_at, duration, created_at, updated_at, completed_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row pgx.Row, rec *job.Record) error {
	return scanRecordRow(row, rec)
}

func scanRecordRow(row rowScanner, rec *job.Record) error {
	var status string
	var historyRaw, progressRaw []byte

	if err := row.Scan(
		&rec.JobID, &rec.TenantID, &rec.Type, &rec.Payload, &status, &rec.Attempts, &rec.MaxAttempts,
		&rec.Priority, &historyRaw, &rec.Result, &rec.LastError, &progressRaw, &rec.EntityID, &rec.Group,
		&rec.DedupeKey, &rec.BatchID, &rec.ScheduledAt, &rec.Duration, &rec.CreatedAt, &rec.UpdatedAt, &rec.CompletedAt,
	); err != nil {
		return err
	}

	rec.Status = job.Status(status)
	if len(historyRaw) > 0 {
		if err := json.Unmarshal(historyRaw, &rec.History); err != nil {
			return err
		}
	}
	if len(progressRaw) > 0 {
		if err := json.Unmarshal(progressRaw, &rec.Progress); err != nil {
			return err
		}
	}
	return nil
}
