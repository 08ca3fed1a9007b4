// Package shardmap is the Cluster Shard Map (spec.md §4.3): it maps
// entity-id -> shard -> runner, tracks which shards this runner owns,
// and answers isLocal() for the router and the singleton coordinator.
package shardmap

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shardwork/jobmesh/internal/cluster/health"
	"github.com/shardwork/jobmesh/internal/cluster/ring"
	"github.com/shardwork/jobmesh/internal/cluster/runnerstore"
)

// Group names the three priority-tier shard groups spec.md §4.3
// describes by default (100 shards per group, 3 groups).
const (
	GroupCritical = "critical"
	GroupDefault  = "default"
	GroupLow      = "low"
)

// DefaultShardsPerGroup matches the spec's "100 shards per group, 3
// groups" default topology.
const DefaultShardsPerGroup = 100

type Config struct {
	RunnerID        string
	Groups          map[string]int // group name -> shards per group
	AcquireInterval time.Duration
	HealthMode      string // "k8s" | "noop" | "auto"
	Namespace       string
	LabelSelector   string
}

// ShardMap owns one Ring per group and the set of shards this runner
// currently has the advisory lock for.
type ShardMap struct {
	cfg     Config
	store   *runnerstore.Store
	rings   map[string]*ring.Ring
	health  health.Checker
	evictFn func(group string, shardID int)

	mu     sync.RWMutex
	owned  map[string]map[int]bool
}

// New builds a ShardMap; evictFn is invoked when a previously-owned
// shard is lost, so the caller can deactivate its entities.
func New(cfg Config, store *runnerstore.Store, evictFn func(group string, shardID int)) *ShardMap {
	if cfg.AcquireInterval <= 0 {
		cfg.AcquireInterval = 5 * time.Second
	}
	rings := make(map[string]*ring.Ring, len(cfg.Groups))
	for g, n := range cfg.Groups {
		if n <= 0 {
			n = DefaultShardsPerGroup
		}
		rings[g] = ring.New(g, n)
	}

	var checker health.Checker
	switch cfg.HealthMode {
	case "k8s":
		k, err := health.NewKubernetes(cfg.Namespace, cfg.LabelSelector)
		if err != nil {
			slog.Default().Warn("shardmap.health_k8s_unavailable", "err", err)
			checker = health.Noop{}
		} else {
			checker = k
		}
	default:
		checker = health.Noop{}
	}

	return &ShardMap{
		cfg:     cfg,
		store:   store,
		rings:   rings,
		health:  checker,
		evictFn: evictFn,
		owned:   make(map[string]map[int]bool),
	}
}

// ShardFor resolves which (group, shardId) owns an entity-id.
func (s *ShardMap) ShardFor(group, entityID string) (int, bool) {
	r, ok := s.rings[group]
	if !ok {
		return 0, false
	}
	return r.ShardFor(entityID), true
}

// IsLocal reports whether this runner currently owns the shard that owns
// entityID within group.
func (s *ShardMap) IsLocal(group, entityID string) bool {
	shardID, ok := s.ShardFor(group, entityID)
	if !ok {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.owned[group][shardID]
}

// Run starts the acquisition loop: on every tick, try to acquire every
// shard in every group this runner does not already hold, jittered to
// avoid a thundering herd across a freshly-started cluster.
func (s *ShardMap) Run(ctx context.Context) {
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.cfg.AcquireInterval)
	defer ticker.Stop()

	s.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

func (s *ShardMap) reconcile(ctx context.Context) {
	for group, r := range s.rings {
		for shardID := 0; shardID < r.ShardCount(); shardID++ {
			s.mu.RLock()
			already := s.owned[group][shardID]
			s.mu.RUnlock()
			if already {
				continue
			}

			acquired, err := s.store.TryAcquire(ctx, group, shardID)
			if err != nil {
				slog.Default().Warn("shardmap.acquire_error", "group", group, "shard", shardID, "err", err)
				continue
			}
			if acquired {
				s.mu.Lock()
				if s.owned[group] == nil {
					s.owned[group] = make(map[int]bool)
				}
				s.owned[group][shardID] = true
				s.mu.Unlock()
				slog.Default().Info("shardmap.shard_acquired", "group", group, "shard", shardID, "runner_id", s.cfg.RunnerID)
			}
		}
	}

	// advisory-lock loss is implicit on connection drop; a dead dedicated
	// connection means every shard we thought we owned is gone.
	if err := s.store.Ping(ctx); err != nil {
		slog.Default().Warn("shardmap.lock_conn_lost", "err", err)
		s.evictAll()
	}
}

func (s *ShardMap) evictAll() {
	s.mu.Lock()
	lost := s.owned
	s.owned = make(map[string]map[int]bool)
	s.mu.Unlock()

	for group, shards := range lost {
		for shardID := range shards {
			if s.evictFn != nil {
				s.evictFn(group, shardID)
			}
		}
	}
}

// ResetShard forcibly releases a shard this runner holds, e.g. for a
// stuck-job admin reset (spec.md §6.5 resetJob).
func (s *ShardMap) ResetShard(ctx context.Context, group string, shardID int) error {
	s.mu.Lock()
	if s.owned[group] != nil {
		delete(s.owned[group], shardID)
	}
	s.mu.Unlock()

	if s.evictFn != nil {
		s.evictFn(group, shardID)
	}
	return s.store.Release(ctx, group, shardID)
}

// OwnedShards lists the (group, shardId) pairs this runner currently
// holds, used for readiness reporting on /readyz.
func (s *ShardMap) OwnedShards() map[string][]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]int, len(s.owned))
	for g, shards := range s.owned {
		ids := make([]int, 0, len(shards))
		for id := range shards {
			ids = append(ids, id)
		}
		out[g] = ids
	}
	return out
}
