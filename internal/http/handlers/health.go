package handlers

import "github.com/gin-gonic/gin"

// ShardOwner reports this runner's current shard holdings, surfaced on
// /readyz so an operator can tell a quiet runner from one that hasn't
// picked up any shards yet.
type ShardOwner interface {
	OwnedShards() map[string][]int
}

// RoleLeader reports whether this runner currently holds a singleton
// role's lock (e.g. the DLQ watcher or purge sweep).
type RoleLeader interface {
	IsLeader() bool
}

type HealthHandler struct {
	readyCheck func() error
	shards     ShardOwner
	dlqLeader  RoleLeader
	purgeLeader RoleLeader
}

// NewHealthHandler wires a readiness probe (DB + Redis pings, per
// router.go) behind /readyz; /healthz stays a pure liveness check. shards
// and the leader checks are optional (nil-safe) so unit tests can build a
// handler without standing up the whole cluster runtime.
func NewHealthHandler(readyCheck func() error, shards ShardOwner, dlqLeader, purgeLeader RoleLeader) *HealthHandler {
	return &HealthHandler{readyCheck: readyCheck, shards: shards, dlqLeader: dlqLeader, purgeLeader: purgeLeader}
}

func (h *HealthHandler) Healthz(ctx *gin.Context) {
	ctx.JSON(200, gin.H{"status": "ok"})
}

func (h *HealthHandler) Readyz(ctx *gin.Context) {
	if h.readyCheck != nil {
		if err := h.readyCheck(); err != nil {
			ctx.JSON(503, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
	}

	body := gin.H{"status": "ready"}
	if h.shards != nil {
		body["shards"] = h.shards.OwnedShards()
	}
	if h.dlqLeader != nil {
		body["dlqWatcherLeader"] = h.dlqLeader.IsLeader()
	}
	if h.purgeLeader != nil {
		body["purgeSweepLeader"] = h.purgeLeader.IsLeader()
	}
	ctx.JSON(200, body)
}
