package router

import (
	"context"
	"encoding/json"

	"github.com/shardwork/jobmesh/internal/jobs"
	"github.com/shardwork/jobmesh/internal/repo/postgres"
)

// Replay re-submits a dead-lettered entry as a brand-new job, implementing
// dlq.ReplaySink without that package needing to import router (it takes
// the postgres.Entry shape directly instead).
func (r *Router) Replay(ctx context.Context, e postgres.Entry) error {
	env := jobs.BuildEnvelope(e.Type, json.RawMessage(e.Payload), jobs.SubmitOptions{
		TenantID:    e.TenantID,
		Priority:    jobs.Priority(e.Priority),
		MaxAttempts: &e.MaxAttempts,
	})
	_, _, err := r.Submit(ctx, env)
	return err
}
