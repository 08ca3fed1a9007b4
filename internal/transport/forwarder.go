package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/shardwork/jobmesh/internal/cluster/runnerstore"
	"github.com/shardwork/jobmesh/internal/cluster/shardmap"
	"github.com/shardwork/jobmesh/internal/domain/job"
)

var ErrRunnerUnknown = errors.New("transport: owning runner not found")
var ErrAddressUnknown = errors.New("transport: no address registered for runner")

// AddressBook resolves a runner-id to a dialable network address.
type AddressBook interface {
	AddressFor(runnerID string) (string, bool)
}

// StaticAddressBook is a fixed runner-id -> address map, populated at
// startup from config (spec.md doesn't mandate a discovery mechanism, so
// a static table is the simplest thing that satisfies "pick the
// concrete implementation from config at startup").
type StaticAddressBook map[string]string

func (b StaticAddressBook) AddressFor(runnerID string) (string, bool) {
	addr, ok := b[runnerID]
	return addr, ok
}

// ParseAddressBook reads "runnerId=host:port,runnerId2=host:port" pairs,
// the format RUNNER_ADDRESSES is expected to carry.
func ParseAddressBook(raw string) StaticAddressBook {
	book := make(StaticAddressBook)
	for _, pair := range splitNonEmpty(raw, ',') {
		k, v, ok := cut(pair, '=')
		if ok {
			book[k] = v
		}
	}
	return book
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			if s[start:i] != "" {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	if s[start:] != "" {
		out = append(out, s[start:])
	}
	return out
}

func cut(s string, sep byte) (string, string, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == sep {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

type submitArgs struct {
	Req job.CreateRequest `json:"req"`
}
type submitReply struct {
	Rec job.Record `json:"rec"`
	Dup bool       `json:"dup"`
}
type cancelArgs struct {
	EntityID string `json:"entityId"`
	JobID    int64  `json:"jobId"`
}
type statusArgs struct {
	EntityID string `json:"entityId"`
	JobID    int64  `json:"jobId"`
}

// Forwarder implements router.Forwarder: it resolves the runner that
// currently owns a shard via the cluster_shard_assignment bookkeeping
// table, dials (or reuses) a Transport to that runner, and performs one
// request/response round trip per call.
type Forwarder struct {
	shards *shardmap.ShardMap
	owners *runnerstore.Store
	addrs  AddressBook
	mode   Mode

	mu    sync.Mutex
	conns map[string]Transport
}

func NewForwarder(shards *shardmap.ShardMap, owners *runnerstore.Store, addrs AddressBook, mode Mode) *Forwarder {
	return &Forwarder{
		shards: shards,
		owners: owners,
		addrs:  addrs,
		mode:   mode,
		conns:  make(map[string]Transport),
	}
}

func (f *Forwarder) dial(ctx context.Context, group, entityID string) (Transport, error) {
	shardID, ok := f.shards.ShardFor(group, entityID)
	if !ok {
		return nil, fmt.Errorf("%w: group %q", ErrRunnerUnknown, group)
	}
	runnerID, ok, err := f.owners.OwnerOf(ctx, group, shardID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRunnerUnknown
	}

	f.mu.Lock()
	conn, cached := f.conns[runnerID]
	f.mu.Unlock()
	if cached {
		return conn, nil
	}

	addr, ok := f.addrs.AddressFor(runnerID)
	if !ok {
		return nil, fmt.Errorf("%w: runner %q", ErrAddressUnknown, runnerID)
	}

	t := New(f.mode)
	if err := t.Connect(ctx, addr); err != nil {
		if f.mode == ModeAuto {
			t = New(ModeHTTP)
			if err := t.Connect(ctx, addr); err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}

	f.mu.Lock()
	f.conns[runnerID] = t
	f.mu.Unlock()
	return t, nil
}

func (f *Forwarder) roundTrip(ctx context.Context, group, entityID, op string, args any, reply any) error {
	t, err := f.dial(ctx, group, entityID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(args)
	if err != nil {
		return err
	}

	resp, err := t.SendMessage(ctx, Message{Op: op, Payload: payload})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return errors.New(resp.Error)
	}
	if reply == nil {
		return nil
	}
	return json.Unmarshal(resp.Payload, reply)
}

func (f *Forwarder) ForwardSubmit(ctx context.Context, group string, req job.CreateRequest) (job.Record, bool, error) {
	var reply submitReply
	err := f.roundTrip(ctx, group, req.EntityID, "submit", submitArgs{Req: req}, &reply)
	if err != nil {
		return job.Record{}, false, err
	}
	return reply.Rec, reply.Dup, nil
}

func (f *Forwarder) ForwardCancel(ctx context.Context, group, entityID string, jobID int64) error {
	return f.roundTrip(ctx, group, entityID, "cancel", cancelArgs{EntityID: entityID, JobID: jobID}, nil)
}

func (f *Forwarder) ForwardStatus(ctx context.Context, group, entityID string, jobID int64) (job.Record, error) {
	var rec job.Record
	err := f.roundTrip(ctx, group, entityID, "status", statusArgs{EntityID: entityID, JobID: jobID}, &rec)
	return rec, err
}
