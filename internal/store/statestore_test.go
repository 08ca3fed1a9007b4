package store

import (
	"context"
	"testing"
	"time"

	"github.com/shardwork/jobmesh/internal/domain/job"
)

type fakeDB struct {
	records map[int64]job.Record
	saved   []job.Record
}

func newFakeDB() *fakeDB {
	return &fakeDB{records: make(map[int64]job.Record)}
}

func (d *fakeDB) Create(ctx context.Context, req job.CreateRequest) (job.Record, error) {
	rec := job.New(req)
	d.records[rec.JobID] = rec
	return rec, nil
}

func (d *fakeDB) FindActiveByDedupeKey(ctx context.Context, tenantID, dedupeKey string) (job.Record, bool, error) {
	return job.Record{}, false, nil
}

func (d *fakeDB) Get(ctx context.Context, jobID int64) (job.Record, error) {
	rec, ok := d.records[jobID]
	if !ok {
		return job.Record{}, job.ErrJobNotFound
	}
	return rec, nil
}

func (d *fakeDB) Save(ctx context.Context, rec job.Record) error {
	d.saved = append(d.saved, rec)
	d.records[rec.JobID] = rec
	return nil
}

func (d *fakeDB) ListCursor(ctx context.Context, tenantID string, status *string, limit int, afterUpdatedAt time.Time, afterID int64) ([]job.Record, *string, bool, error) {
	return nil, nil, false, nil
}

func (d *fakeDB) ClaimStuck(ctx context.Context, heartbeatTTL time.Duration, limit int) ([]job.Record, error) {
	return nil, nil
}

func TestStore_CreateDelegatesToDB(t *testing.T) {
	db := newFakeDB()
	s := New(db, nil)

	rec, err := s.Create(context.Background(), job.CreateRequest{JobID: 1, TenantID: "t1", Type: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.JobID != 1 {
		t.Fatalf("expected jobId 1, got %d", rec.JobID)
	}
	if _, ok := db.records[1]; !ok {
		t.Fatalf("expected the record to be persisted in the DB")
	}
}

func TestStore_GetWithoutCacheReadsThroughToDB(t *testing.T) {
	db := newFakeDB()
	db.records[5] = job.Record{JobID: 5, TenantID: "t1"}
	s := New(db, nil)

	rec, err := s.Get(context.Background(), 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.JobID != 5 {
		t.Fatalf("expected jobId 5, got %d", rec.JobID)
	}
}

func TestStore_GetMissingJobPropagatesError(t *testing.T) {
	s := New(newFakeDB(), nil)

	if _, err := s.Get(context.Background(), 404); err != job.ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestStore_SaveWritesThroughToDB(t *testing.T) {
	db := newFakeDB()
	s := New(db, nil)

	err := s.Save(context.Background(), job.Record{JobID: 9, Status: job.StatusComplete})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(db.saved) != 1 || db.saved[0].JobID != 9 {
		t.Fatalf("expected Save to be forwarded to the DB, got %+v", db.saved)
	}
}

func TestStore_InvalidateWithoutCacheIsNoop(t *testing.T) {
	s := New(newFakeDB(), nil)
	s.Invalidate(context.Background(), 1) // must not panic with a nil cache
}

func TestCacheKey_Format(t *testing.T) {
	if got := cacheKey(42); got != "jobmesh:job:42" {
		t.Fatalf("cacheKey(42) = %q, want %q", got, "jobmesh:job:42")
	}
}
