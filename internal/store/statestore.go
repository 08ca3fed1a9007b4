// Package store implements the State Store (spec.md §4.5): a cache-first,
// Postgres-backed read/write path for job Records, with a 7-day cache
// TTL so hot jobs avoid a DB round trip while cold ones still resolve.
package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shardwork/jobmesh/internal/domain/job"
	"github.com/shardwork/jobmesh/internal/queue/redisclient"
)

const cacheTTL = 7 * 24 * time.Hour

// DB is the subset of JobsRepo the State Store depends on, kept as an
// interface so tests can substitute an in-memory fake.
type DB interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Record, error)
	FindActiveByDedupeKey(ctx context.Context, tenantID, dedupeKey string) (job.Record, bool, error)
	Get(ctx context.Context, jobID int64) (job.Record, error)
	Save(ctx context.Context, rec job.Record) error
	ListCursor(ctx context.Context, tenantID string, status *string, limit int, afterUpdatedAt time.Time, afterID int64) ([]job.Record, *string, bool, error)
	ClaimStuck(ctx context.Context, heartbeatTTL time.Duration, limit int) ([]job.Record, error)
}

// Store composes a DB with a Redis cache: reads check the cache first,
// writes update both, and a cache miss always falls back to the DB
// (spec.md §4.5, invariant "the State Store is the durable source of
// truth — cache is an optimization, never authoritative").
type Store struct {
	db    DB
	cache *redisclient.Client
}

func New(db DB, cache *redisclient.Client) *Store {
	return &Store{db: db, cache: cache}
}

func cacheKey(jobID int64) string {
	return "jobmesh:job:" + strconv.FormatInt(jobID, 10)
}

func (s *Store) Create(ctx context.Context, req job.CreateRequest) (job.Record, error) {
	rec, err := s.db.Create(ctx, req)
	if err != nil {
		return job.Record{}, err
	}
	s.writeCache(ctx, rec)
	return rec, nil
}

func (s *Store) FindActiveByDedupeKey(ctx context.Context, tenantID, dedupeKey string) (job.Record, bool, error) {
	return s.db.FindActiveByDedupeKey(ctx, tenantID, dedupeKey)
}

func (s *Store) Get(ctx context.Context, jobID int64) (job.Record, error) {
	if s.cache != nil {
		if raw, err := s.cache.Raw().Get(ctx, cacheKey(jobID)).Bytes(); err == nil {
			var rec job.Record
			if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
				return rec, nil
			}
		}
	}

	rec, err := s.db.Get(ctx, jobID)
	if err != nil {
		return job.Record{}, err
	}
	s.writeCache(ctx, rec)
	return rec, nil
}

func (s *Store) Save(ctx context.Context, rec job.Record) error {
	if err := s.db.Save(ctx, rec); err != nil {
		return err
	}
	s.writeCache(ctx, rec)
	return nil
}

func (s *Store) writeCache(ctx context.Context, rec job.Record) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = s.cache.Raw().Set(ctx, cacheKey(rec.JobID), raw, cacheTTL).Err()
}

// ListCursor and ClaimStuck are admin/reconciliation paths that always
// read through to Postgres — paging and stuck-row claims have no
// business consulting the single-job cache.

func (s *Store) ListCursor(ctx context.Context, tenantID string, status *string, limit int, afterUpdatedAt time.Time, afterID int64) ([]job.Record, *string, bool, error) {
	return s.db.ListCursor(ctx, tenantID, status, limit, afterUpdatedAt, afterID)
}

func (s *Store) ClaimStuck(ctx context.Context, heartbeatTTL time.Duration, limit int) ([]job.Record, error) {
	return s.db.ClaimStuck(ctx, heartbeatTTL, limit)
}

// Invalidate drops a job's cache entry. The retention sweep
// (internal/purge) does not call it, so a purged job's cache entry stays
// until its cacheTTL expires.
func (s *Store) Invalidate(ctx context.Context, jobID int64) {
	if s.cache == nil {
		return
	}
	s.cache.Raw().Del(ctx, cacheKey(jobID))
}
