// Package ring wraps rendezvous (highest-random-weight) hashing for
// shard ownership, per spec.md §4.3:
// shardId = consistentHash(entityId, group) mod shardsPerGroup.
package ring

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// Ring resolves an entity-id to one of a fixed number of shards within a
// named group (one ring per priority-tier group, per spec.md §4.3).
type Ring struct {
	group        string
	shardsPerGrp int
	rv           *rendezvous.Rendezvous
	shardNames   []string
}

func hasher(s string) uint64 {
	return xxhash.Sum64String(s)
}

// New builds a Ring for one group with the given number of shards, each
// named "<group>-<index>" so two groups never collide on a shard name.
func New(group string, shardsPerGroup int) *Ring {
	names := make([]string, shardsPerGroup)
	for i := range names {
		names[i] = group + "-" + strconv.Itoa(i)
	}
	return &Ring{
		group:        group,
		shardsPerGrp: shardsPerGroup,
		rv:           rendezvous.New(names, hasher),
		shardNames:   names,
	}
}

// ShardFor returns the shard index an entity-id is assigned to.
func (r *Ring) ShardFor(entityID string) int {
	name := r.rv.Lookup(entityID)
	for i, n := range r.shardNames {
		if n == name {
			return i
		}
	}
	// unreachable unless the underlying node set was mutated; fall back to
	// a direct hash mod so callers never panic on ownership lookups.
	return int(hasher(entityID) % uint64(r.shardsPerGrp))
}

// Group returns this ring's group name.
func (r *Ring) Group() string { return r.group }

// ShardCount returns the number of shards in this group.
func (r *Ring) ShardCount() int { return r.shardsPerGrp }
