// Package router implements the Submitter (spec.md §4.1): the public
// submit/cancel/status/progress surface, priority-pool round-robin
// routing onto entity-ids, batch submission, and dedupe-collapse.
package router

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/shardwork/jobmesh/internal/cluster/shardmap"
	"github.com/shardwork/jobmesh/internal/domain/job"
	"github.com/shardwork/jobmesh/internal/entity"
	"github.com/shardwork/jobmesh/internal/jobs"
	"github.com/shardwork/jobmesh/internal/progress"
)

// Store is the read surface the Submitter needs to answer status queries
// for jobs it did not create in this process (e.g. after a restart).
type Store interface {
	Get(ctx context.Context, jobID int64) (job.Record, error)
}

// Forwarder sends a submit/cancel/status call to whichever runner
// actually owns the target shard, used when ShardMap reports the entity
// is not local. Implemented by internal/transport for real cross-runner
// delivery; tests can stub it out.
type Forwarder interface {
	ForwardSubmit(ctx context.Context, group string, req job.CreateRequest) (job.Record, bool, error)
	ForwardCancel(ctx context.Context, group, entityID string, jobID int64) error
	ForwardStatus(ctx context.Context, group, entityID string, jobID int64) (job.Record, error)
}

// slotCounter round-robins across a priority tier's fixed pool of
// entity-id slots (spec.md §4.1).
type slotCounter struct {
	n    int
	next atomic.Uint64
}

func (s *slotCounter) pick() int {
	return int(s.next.Add(1)-1) % s.n
}

// Router is the Submitter: it resolves an envelope to one entity-id via
// priority-pool round robin, resolves that entity-id to a shard/group via
// the ShardMap, and either executes locally (via its Pool) or forwards.
type Router struct {
	pool     *entity.Pool
	shards   *shardmap.ShardMap
	registry *jobs.Registry
	progress *progress.Registry
	store    Store
	forward  Forwarder

	mu       sync.Mutex
	counters map[string]*slotCounter // "<tenant>:<priority>" -> counter

	dedupeGroup singleflight.Group
}

// Deps bundles the collaborators New needs.
type Deps struct {
	Pool      *entity.Pool
	ShardMap  *shardmap.ShardMap
	Registry  *jobs.Registry
	Progress  *progress.Registry
	Store     Store
	Forwarder Forwarder
}

func New(d Deps) *Router {
	return &Router{
		pool:     d.Pool,
		shards:   d.ShardMap,
		registry: d.Registry,
		progress: d.Progress,
		store:    d.Store,
		forward:  d.Forwarder,
		counters: make(map[string]*slotCounter),
	}
}

// RegisterHandler exposes the Handler Registry through the Submitter
// surface, per spec.md §4.1.
func (r *Router) RegisterHandler(jobType string, h jobs.Handler) {
	r.registry.Register(jobType, h)
}

// groupFor maps a submission priority onto one of the three shard-map
// groups: critical and low each get their own group, normal and high
// share "default", matching spec.md §4.3's 3-group default topology.
func groupFor(p jobs.Priority) string {
	switch p {
	case jobs.PriorityCritical:
		return shardmap.GroupCritical
	case jobs.PriorityLow:
		return shardmap.GroupLow
	default:
		return shardmap.GroupDefault
	}
}

// entityIDFor resolves the round-robin entity-id slot for a
// (tenant, priority) pair, creating its counter lazily.
func (r *Router) entityIDFor(tenantID string, p jobs.Priority) string {
	key := tenantID + ":" + string(p)

	r.mu.Lock()
	c, ok := r.counters[key]
	if !ok {
		c = &slotCounter{n: p.Slots()}
		r.counters[key] = c
	}
	r.mu.Unlock()

	slot := c.pick()
	return tenantID + ":" + string(p) + ":" + strconv.Itoa(slot)
}

type submitOutcome struct {
	rec job.Record
	dup bool
}

// Submit resolves the envelope's routing key, then executes locally or
// forwards to the owning runner (spec.md §4.1, §4.3).
func (r *Router) Submit(ctx context.Context, env jobs.Envelope) (job.Record, bool, error) {
	if env.TenantID == "" || env.Type == "" {
		return job.Record{}, false, jobs.NewError(jobs.KindValidation, "tenantId and type are required", nil)
	}

	entityID := r.entityIDFor(env.TenantID, env.Priority)
	group := groupFor(env.Priority)

	req := job.CreateRequest{
		TenantID:    env.TenantID,
		Type:        env.Type,
		Payload:     env.Payload,
		Priority:    string(env.Priority),
		MaxAttempts: env.MaxAttempts,
		Duration:    string(env.Duration),
		EntityID:    entityID,
		Group:       group,
	}
	if env.DedupeKey != "" {
		dk := env.DedupeKey
		req.DedupeKey = &dk
	}
	if env.BatchID != "" {
		bid := env.BatchID
		req.BatchID = &bid
	}
	if env.ScheduledAt != nil {
		t := time.UnixMilli(*env.ScheduledAt).UTC()
		req.ScheduledAt = &t
	}

	if !r.shards.IsLocal(group, entityID) {
		if r.forward == nil {
			return job.Record{}, false, jobs.ErrRunnerUnavailable
		}
		return r.forward.ForwardSubmit(ctx, group, req)
	}

	// dedupe-collapse: concurrent submits sharing a dedupe key within the
	// same process resolve to a single entity round-trip (spec.md §4.1).
	if env.DedupeKey != "" {
		v, err, _ := r.dedupeGroup.Do(env.TenantID+"|"+env.DedupeKey, func() (interface{}, error) {
			rec, dup, err := r.pool.Get(entityID).Submit(ctx, req)
			return submitOutcome{rec, dup}, err
		})
		if err != nil {
			return job.Record{}, false, err
		}
		out := v.(submitOutcome)
		return out.rec, out.dup, nil
	}

	rec, dup, err := r.pool.Get(entityID).Submit(ctx, req)
	return rec, dup, err
}

// SubmitBatch submits every item in a batch concurrently (bounded by
// errgroup), composing each item's dedupe key as "<key>:<i>" so a
// retried batch submission is itself idempotent (spec.md §4.1).
func (r *Router) SubmitBatch(ctx context.Context, batchID string, envs []jobs.Envelope) ([]job.Record, error) {
	out := make([]job.Record, len(envs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)

	for i := range envs {
		i := i
		env := envs[i]
		env.BatchID = batchID
		if env.DedupeKey != "" {
			env.DedupeKey = fmt.Sprintf("%s:%d", env.DedupeKey, i)
		}
		g.Go(func() error {
			rec, _, err := r.Submit(gctx, env)
			if err != nil {
				return err
			}
			out[i] = rec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return out, err
	}
	return out, nil
}

// Status answers a status query by jobId. It reads the State Store first;
// when this runner holds the shard it prefers the owning entity's
// in-memory copy, otherwise it asks the owning runner through the
// Forwarder, returning the State Store copy only when no Forwarder is set
// (spec.md §4.1, §6.1).
func (r *Router) Status(ctx context.Context, jobID int64) (job.Record, error) {
	rec, err := r.store.Get(ctx, jobID)
	if err != nil {
		return job.Record{}, err
	}

	if r.shards.IsLocal(rec.Group, rec.EntityID) {
		if live, ok := r.pool.Get(rec.EntityID).Status(jobID); ok {
			return live, nil
		}
		return rec, nil
	}

	if r.forward == nil {
		return rec, nil
	}
	return r.forward.ForwardStatus(ctx, rec.Group, rec.EntityID, jobID)
}

// Progress subscribes to a job's live progress stream when this runner
// owns it; remote jobs are not supported in-process and return
// ErrRunnerUnavailable, matching the "progress streams don't cross
// runners" resolution recorded in DESIGN.md.
func (r *Router) Progress(ctx context.Context, jobID int64) (<-chan progress.Update, func(), error) {
	rec, err := r.store.Get(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if !r.shards.IsLocal(rec.Group, rec.EntityID) {
		return nil, nil, jobs.ErrRunnerUnavailable
	}
	ch, unsub := r.progress.Topic(jobID).Subscribe()
	return ch, unsub, nil
}

// Cancel cancels a job by jobId, forwarding to the owning runner when
// this process doesn't hold the shard (spec.md §4.1, §4.2).
func (r *Router) Cancel(ctx context.Context, jobID int64) error {
	rec, err := r.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if r.shards.IsLocal(rec.Group, rec.EntityID) {
		return r.pool.Get(rec.EntityID).Cancel(jobID)
	}

	if r.forward == nil {
		return jobs.ErrRunnerUnavailable
	}
	return r.forward.ForwardCancel(ctx, rec.Group, rec.EntityID, jobID)
}
