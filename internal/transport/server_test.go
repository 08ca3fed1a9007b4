package transport

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/shardwork/jobmesh/internal/domain/job"
	"github.com/shardwork/jobmesh/internal/entity"
	"github.com/shardwork/jobmesh/internal/eventbus"
	"github.com/shardwork/jobmesh/internal/jobs"
	"github.com/shardwork/jobmesh/internal/progress"
	"github.com/shardwork/jobmesh/internal/workflow"
)

type fakeEntityStore struct{}

func (fakeEntityStore) Create(ctx context.Context, req job.CreateRequest) (job.Record, error) {
	return job.New(req), nil
}
func (fakeEntityStore) FindActiveByDedupeKey(ctx context.Context, tenantID, dedupeKey string) (job.Record, bool, error) {
	return job.Record{}, false, nil
}
func (fakeEntityStore) Get(ctx context.Context, jobID int64) (job.Record, error) {
	return job.Record{}, job.ErrJobNotFound
}

type fakeWorkflowStore struct{}

func (fakeWorkflowStore) Save(ctx context.Context, rec job.Record) error { return nil }

type fakeDlqSink struct{}

func (fakeDlqSink) Insert(ctx context.Context, rec job.Record, reason string, history []string) error {
	return nil
}

type fakeIDGen struct{}

func (fakeIDGen) Next() int64 { return 7 }

func newTestPool() *entity.Pool {
	registry := jobs.NewRegistry()
	registry.Register("noop", func(ctx context.Context, p json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	})
	return entity.NewPool(context.Background(), fakeEntityStore{}, workflow.Deps{
		Store:    fakeWorkflowStore{},
		Registry: registry,
		Bus:      eventbus.New(),
		Progress: progress.NewRegistry(),
		Dlq:      fakeDlqSink{},
	}, fakeIDGen{})
}

func TestDispatcher_HandleSubmit(t *testing.T) {
	d := NewDispatcher(newTestPool())

	payload, _ := json.Marshal(submitArgs{Req: job.CreateRequest{TenantID: "t1", Type: "noop", EntityID: "entity-1"}})
	reply := d.Handle(context.Background(), Message{Op: "submit", Payload: payload})

	if reply.Error != "" {
		t.Fatalf("unexpected error: %s", reply.Error)
	}
	var out submitReply
	if err := json.Unmarshal(reply.Payload, &out); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	if out.Rec.JobID != 7 {
		t.Fatalf("expected jobId 7, got %d", out.Rec.JobID)
	}
}

func TestDispatcher_HandleUnknownOp(t *testing.T) {
	d := NewDispatcher(newTestPool())
	reply := d.Handle(context.Background(), Message{Op: "bogus"})
	if reply.Error == "" {
		t.Fatalf("expected an error for an unknown op")
	}
}

func TestDispatcher_HandleStatusMissingJob(t *testing.T) {
	d := NewDispatcher(newTestPool())

	payload, _ := json.Marshal(statusArgs{EntityID: "entity-1", JobID: 999})
	reply := d.Handle(context.Background(), Message{Op: "status", Payload: payload})
	if reply.Error == "" {
		t.Fatalf("expected an error for a job the entity has never seen")
	}
}

func TestDispatcher_HandleMalformedPayload(t *testing.T) {
	d := NewDispatcher(newTestPool())
	reply := d.Handle(context.Background(), Message{Op: "submit", Payload: []byte("not json")})
	if reply.Error == "" {
		t.Fatalf("expected an error for a malformed payload")
	}
}

func TestSocketServer_ServesSubmitOverTCP(t *testing.T) {
	dispatcher := NewDispatcher(newTestPool())
	srv := NewSocketServer(dispatcher)

	// Reserve a free port by briefly binding then releasing it, since
	// Serve's "tcp"+addr signature doesn't hand back its bound address.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	addr := probe.Addr().String()
	probe.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, addr)
	time.Sleep(50 * time.Millisecond)

	tr := NewSocketTransport()
	dialCtx, dialCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer dialCancel()
	if err := tr.Connect(dialCtx, addr); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Close()

	payload, _ := json.Marshal(submitArgs{Req: job.CreateRequest{TenantID: "t1", Type: "noop", EntityID: "entity-1"}})
	reply, err := tr.SendMessage(dialCtx, Message{Op: "submit", Payload: payload})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if reply.Error != "" {
		t.Fatalf("unexpected reply error: %s", reply.Error)
	}
}
