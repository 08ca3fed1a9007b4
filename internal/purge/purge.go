// Package purge implements the retention sweep (spec.md §4.8, §10):
// deleting terminal jobs past their retention window, leader-gated so
// only one runner in the cluster runs it per cycle.
package purge

import (
	"context"
	"log/slog"
	"time"

	"github.com/shardwork/jobmesh/internal/repo/postgres"
)

// Sweeper deletes terminal jobs past retention.
type Sweeper struct {
	db                 *postgres.JobsRepo
	completedRetention time.Duration
	failedRetention    time.Duration
}

func NewSweeper(db *postgres.JobsRepo, completedTTLDays, failedTTLDays int) *Sweeper {
	return &Sweeper{
		db:                 db,
		completedRetention: time.Duration(completedTTLDays) * 24 * time.Hour,
		failedRetention:    time.Duration(failedTTLDays) * 24 * time.Hour,
	}
}

// Run executes one purge pass.
func (s *Sweeper) Run(ctx context.Context) error {
	now := time.Now().UTC()
	n, err := s.db.PurgeTerminal(ctx, now.Add(-s.completedRetention), now.Add(-s.failedRetention))
	if err != nil {
		return err
	}
	slog.Default().Info("purge.swept", "rows_deleted", n)
	return nil
}
