package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"

	"github.com/shardwork/jobmesh/internal/domain/job"
	"github.com/shardwork/jobmesh/internal/entity"
)

// Dispatcher is the receiving side of a forwarded RPC: once a Message
// arrives at the runner that actually owns the target entity, it's
// handled purely in-process against the local entity.Pool — no further
// shard-ownership check is needed, since the sender already consulted
// the shard map before forwarding.
type Dispatcher struct {
	pool *entity.Pool
}

func NewDispatcher(pool *entity.Pool) *Dispatcher {
	return &Dispatcher{pool: pool}
}

// Handle dispatches one Message against the local entity.Pool, used by
// every transport's server side (socket accept loop, HTTP handler,
// websocket upgrade loop).
func (d *Dispatcher) Handle(ctx context.Context, msg Message) Message {
	return d.handle(ctx, msg)
}

func (d *Dispatcher) handle(ctx context.Context, msg Message) Message {
	switch msg.Op {
	case "submit":
		var args submitArgs
		if err := json.Unmarshal(msg.Payload, &args); err != nil {
			return errorReply(err)
		}
		rec, dup, err := d.pool.Get(args.Req.EntityID).Submit(ctx, args.Req)
		if err != nil {
			return errorReply(err)
		}
		return okReply(submitReply{Rec: rec, Dup: dup})

	case "cancel":
		var args cancelArgs
		if err := json.Unmarshal(msg.Payload, &args); err != nil {
			return errorReply(err)
		}
		if err := d.pool.Get(args.EntityID).Cancel(args.JobID); err != nil {
			return errorReply(err)
		}
		return okReply(struct{}{})

	case "status":
		var args statusArgs
		if err := json.Unmarshal(msg.Payload, &args); err != nil {
			return errorReply(err)
		}
		rec, ok := d.pool.Get(args.EntityID).Status(args.JobID)
		if !ok {
			return errorReply(job.ErrJobNotFound)
		}
		return okReply(rec)

	default:
		return Message{Error: "unknown op: " + msg.Op}
	}
}

func okReply(v any) Message {
	raw, err := json.Marshal(v)
	if err != nil {
		return errorReply(err)
	}
	return Message{Payload: raw}
}

func errorReply(err error) Message {
	return Message{Error: err.Error()}
}

// SocketServer accepts plain TCP connections and serves newline-delimited
// JSON Message frames, the receiving side of SocketTransport.
type SocketServer struct {
	dispatcher *Dispatcher
}

func NewSocketServer(d *Dispatcher) *SocketServer {
	return &SocketServer{dispatcher: d}
}

// Serve blocks accepting connections on addr until ctx is cancelled.
func (s *SocketServer) Serve(ctx context.Context, addr string) error {
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				slog.Default().Warn("transport.socket_accept_failed", "err", err)
				continue
			}
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *SocketServer) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			return
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return
		}
		reply := s.dispatcher.Handle(ctx, msg)
		raw, err := json.Marshal(reply)
		if err != nil {
			return
		}
		raw = append(raw, '\n')
		if _, err := conn.Write(raw); err != nil {
			return
		}
	}
}
