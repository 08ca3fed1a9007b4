package entity

import (
	"context"
	"sync"

	"github.com/shardwork/jobmesh/internal/workflow"
)

// Pool lazily creates and tracks one Entity per entity-id, and tears
// them down when the shard map evicts a shard this runner no longer
// owns (spec.md §4.2, §4.3).
type Pool struct {
	ctx      context.Context
	store    Store
	workflow workflow.Deps
	idGen    IDGenerator

	mu       sync.Mutex
	entities map[string]*Entity
}

// NewPool builds an empty Pool bound to a process-lifetime context; every
// Entity it creates is cancelled when ctx is.
func NewPool(ctx context.Context, store Store, wf workflow.Deps, idGen IDGenerator) *Pool {
	return &Pool{
		ctx:      ctx,
		store:    store,
		workflow: wf,
		idGen:    idGen,
		entities: make(map[string]*Entity),
	}
}

// Get returns the Entity for an entity-id, creating it on first use.
func (p *Pool) Get(entityID string) *Entity {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entities[entityID]
	if !ok {
		e = New(p.ctx, entityID, p.store, p.workflow, p.idGen)
		p.entities[entityID] = e
	}
	return e
}

// Evict stops and forgets an entity, e.g. because the shard owning it
// was lost to another runner (spec.md §4.3 evict-on-shard-loss).
func (p *Pool) Evict(entityID string) {
	p.mu.Lock()
	e, ok := p.entities[entityID]
	delete(p.entities, entityID)
	p.mu.Unlock()
	if ok {
		e.Close()
	}
}

// EvictAll stops and forgets every entity this pool currently owns. The
// shard-loss callback in internal/http/router.go calls it whenever any
// one shard is lost, since the pool has no shard-keyed index.
func (p *Pool) EvictAll() {
	p.mu.Lock()
	all := p.entities
	p.entities = make(map[string]*Entity)
	p.mu.Unlock()
	for _, e := range all {
		e.Close()
	}
}

// Size reports how many live entities this pool is tracking.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entities)
}
