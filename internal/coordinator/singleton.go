// Package coordinator implements the Scheduled/Singleton leader-election
// coordinator (spec.md §4.7): electing exactly one runner per named
// singleton role, following the role's shard to a new holder when the
// old one is lost, and dispatching cron-style work only on the elected
// runner.
package coordinator

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shardwork/jobmesh/internal/cluster/shardmap"
)

const (
	heartbeatInterval = 30 * time.Second
	gracePeriod       = 60 * time.Second
	migrationSLA      = 10 * time.Second
)

// Singleton elects exactly one runner, process-wide, for a named role
// (e.g. "dlq-watcher", "purge-sweep"), riding on the Cluster Shard Map's
// advisory-lock machinery by treating the role as a one-shard group.
type Singleton struct {
	role     string
	runnerID string
	shards   *shardmap.ShardMap

	mu       sync.RWMutex
	isLeader bool
}

// NewSingleton starts the heartbeat loop that keeps IsLeader() current
// for role. It registers nothing on the ShardMap: role must already be a
// one-shard group in the ShardMap's Config.Groups (NewRuntime in
// internal/http/router.go does this), so there is exactly one lock to win.
func NewSingleton(ctx context.Context, role, runnerID string, shards *shardmap.ShardMap) *Singleton {
	s := &Singleton{role: role, runnerID: runnerID, shards: shards}
	go s.run(ctx)
	return s
}

func (s *Singleton) run(ctx context.Context) {
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	select {
	case <-time.After(jitter):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	s.poll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.poll()
		}
	}
}

func (s *Singleton) poll() {
	leader := s.shards.IsLocal(s.role, s.role)
	s.mu.Lock()
	was := s.isLeader
	s.isLeader = leader
	s.mu.Unlock()

	if leader != was {
		if leader {
			slog.Default().Info("coordinator.leader_elected", "role", s.role, "runner_id", s.runnerID)
		} else {
			slog.Default().Warn("coordinator.leader_lost", "role", s.role, "runner_id", s.runnerID)
		}
	}
}

// IsLeader reports whether this runner currently holds the role's lock.
func (s *Singleton) IsLeader() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLeader
}

// GracePeriod (60s) and MigrationSLA (10s) are exported as named
// durations for callers that reason about leader hand-off timing.
// Singleton applies neither: IsLeader() mirrors the ShardMap's current
// ownership of the role's shard, re-read every heartbeatInterval (30s),
// so a new leader can take longer than MigrationSLA to report itself.
func GracePeriod() time.Duration  { return gracePeriod }
func MigrationSLA() time.Duration { return migrationSLA }
