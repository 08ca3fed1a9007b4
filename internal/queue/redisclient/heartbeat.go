package redisclient

import (
	"context"
	"strconv"
	"time"
)

// heartbeatTTL matches the Job Entity's TTL 30s / refresh 10s contract
// (spec.md §4.2).
const heartbeatTTL = 30 * time.Second

// HeartbeatWriter refreshes a per-job liveness key in Redis while the
// Durable Workflow Envelope is actively executing a handler, so a
// crashed runner's in-flight jobs are discoverable by TTL expiry rather
// than by an explicit unregister.
type HeartbeatWriter struct {
	client *Client
}

func NewHeartbeatWriter(c *Client) *HeartbeatWriter {
	return &HeartbeatWriter{client: c}
}

func heartbeatKey(jobID int64) string {
	return "jobmesh:heartbeat:" + strconv.FormatInt(jobID, 10)
}

func (h *HeartbeatWriter) Refresh(ctx context.Context, jobID int64) error {
	return h.client.Raw().Set(ctx, heartbeatKey(jobID), time.Now().UTC().Unix(), heartbeatTTL).Err()
}

func (h *HeartbeatWriter) Clear(ctx context.Context, jobID int64) {
	h.client.Raw().Del(ctx, heartbeatKey(jobID))
}

// Alive reports whether a job's heartbeat key is still present, used by
// the post-restart reconciliation sweep to distinguish "still being
// processed elsewhere" from "abandoned" before reclaiming a stuck row.
func (h *HeartbeatWriter) Alive(ctx context.Context, jobID int64) (bool, error) {
	n, err := h.client.Raw().Exists(ctx, heartbeatKey(jobID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
