package coordinator

import (
	"context"
	"log/slog"
	"time"
)

// defaultSkipIfOlderThan bounds how stale a scheduled fire time can be
// before it's dropped rather than run late (spec.md §4.7).
const defaultSkipIfOlderThan = 5 * time.Minute

// CronJob is one named, interval-scheduled task gated on singleton
// leadership.
type CronJob struct {
	Name            string
	Interval        time.Duration
	SkipIfOlderThan time.Duration
	Run             func(ctx context.Context) error
}

// CronDispatcher runs a set of CronJobs on a ticker each, only while the
// associated Singleton reports this runner as leader.
type CronDispatcher struct {
	leader *Singleton
	jobs   []CronJob
}

func NewCronDispatcher(leader *Singleton, jobs ...CronJob) *CronDispatcher {
	for i := range jobs {
		if jobs[i].SkipIfOlderThan <= 0 {
			jobs[i].SkipIfOlderThan = defaultSkipIfOlderThan
		}
	}
	return &CronDispatcher{leader: leader, jobs: jobs}
}

// Run starts one goroutine per job and blocks until ctx is cancelled.
func (d *CronDispatcher) Run(ctx context.Context) {
	for _, j := range d.jobs {
		go d.runOne(ctx, j)
	}
	<-ctx.Done()
}

func (d *CronDispatcher) runOne(ctx context.Context, j CronJob) {
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fired := <-ticker.C:
			if !d.leader.IsLeader() {
				continue
			}
			if time.Since(fired) > j.SkipIfOlderThan {
				slog.Default().Warn("coordinator.cron_skipped_stale", "job", j.Name, "fired_at", fired)
				continue
			}
			if err := j.Run(ctx); err != nil {
				slog.Default().Error("coordinator.cron_failed", "job", j.Name, "err", err)
			}
		}
	}
}
