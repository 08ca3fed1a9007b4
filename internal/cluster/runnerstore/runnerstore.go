// Package runnerstore persists shard ownership and acquires/releases the
// Postgres session-scoped advisory locks that back it (spec.md §4.3).
// It deliberately uses one dedicated *pgx.Conn rather than the shared
// pgxpool.Pool: advisory locks are session-scoped, so handing the
// connection back to a pool would silently drop the lock on reuse.
package runnerstore

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LockKey derives the bigint advisory-lock key for one (group, shardId).
func LockKey(group string, shardID int) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(group))
	_, _ = h.Write([]byte{byte(shardID), byte(shardID >> 8), byte(shardID >> 16), byte(shardID >> 24)})
	return int64(h.Sum64())
}

// Store owns the dedicated advisory-lock connection and the shared pool
// used for the cluster_shard_assignment bookkeeping table.
type Store struct {
	pool     *pgxpool.Pool
	lockConn *pgx.Conn
	runnerID string
}

// New dials a dedicated connection for advisory locks and keeps the
// shared pool for row bookkeeping.
func New(ctx context.Context, pool *pgxpool.Pool, dsn string, runnerID string) (*Store, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, lockConn: conn, runnerID: runnerID}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.lockConn.Close(ctx)
}

// TryAcquire attempts to take ownership of a (group, shardId), recording
// the runner in cluster_shard_assignment on success. Ownership loss on
// connection drop is implicit: a dropped session releases all advisory
// locks automatically, so re-election only needs to notice a failed
// TryAcquire on the next poll.
func (s *Store) TryAcquire(ctx context.Context, group string, shardID int) (bool, error) {
	key := LockKey(group, shardID)

	var acquired bool
	err := s.lockConn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&acquired)
	if err != nil {
		return false, err
	}
	if !acquired {
		return false, nil
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO cluster_shard_assignment ("group", shard_id, runner_id, lock_token, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT ("group", shard_id) DO UPDATE
		SET runner_id = EXCLUDED.runner_id, lock_token = EXCLUDED.lock_token, updated_at = NOW()
	`, group, shardID, s.runnerID, key)
	if err != nil {
		// could not record ownership; release the lock rather than serve
		// a shard with no durable record of who owns it.
		_, _ = s.lockConn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key)
		return false, err
	}

	return true, nil
}

// Release gives up ownership of a (group, shardId).
func (s *Store) Release(ctx context.Context, group string, shardID int) error {
	key := LockKey(group, shardID)
	_, err := s.lockConn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key)
	return err
}

// Ping verifies the dedicated connection (and thus every advisory lock
// it holds) is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.lockConn.Ping(ctx)
}

// Assignment is one row of cluster_shard_assignment.
type Assignment struct {
	Group     string
	ShardID   int
	RunnerID  string
	UpdatedAt time.Time
}

// Owners lists the current owner of record for every shard in a group
// (best-effort; the bookkeeping row can briefly lag the advisory lock
// during ownership transfer).
func (s *Store) Owners(ctx context.Context, group string) ([]Assignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT "group", shard_id, runner_id, updated_at
		FROM cluster_shard_assignment
		WHERE "group" = $1
	`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.Group, &a.ShardID, &a.RunnerID, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// OwnerOf looks up the current owner of record for a single shard, used
// by the Forwarder to resolve which runner to dial for a non-local
// entity (same lag caveat as Owners).
func (s *Store) OwnerOf(ctx context.Context, group string, shardID int) (string, bool, error) {
	var runnerID string
	err := s.pool.QueryRow(ctx, `
		SELECT runner_id FROM cluster_shard_assignment WHERE "group" = $1 AND shard_id = $2
	`, group, shardID).Scan(&runnerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return runnerID, true, nil
}
