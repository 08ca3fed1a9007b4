package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"github.com/shardwork/jobmesh/internal/config"
	"github.com/shardwork/jobmesh/internal/domain/job"
	"github.com/shardwork/jobmesh/internal/repo/postgres"
)

// AdminJobsRepo is the subset of the State Store the admin surface
// depends on for listing and stuck-job reconciliation (spec.md §6.5).
type AdminJobsRepo interface {
	Get(ctx context.Context, jobID int64) (job.Record, error)
	ListCursor(ctx context.Context, tenantID string, status *string, limit int, afterUpdatedAt time.Time, afterID int64) ([]job.Record, *string, bool, error)
	ClaimStuck(ctx context.Context, heartbeatTTL time.Duration, limit int) ([]job.Record, error)
}

// AdminDlqRepo is the subset of the DLQ Postgres store the admin
// replay(dlqId) call depends on.
type AdminDlqRepo interface {
	GetByID(ctx context.Context, id int64) (postgres.Entry, error)
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	MarkReplayFailed(ctx context.Context, tx pgx.Tx, entryID int64) error
	MarkResolved(ctx context.Context, tx pgx.Tx, entryID int64) error
}

// ShardResetter clears a stuck entity's shard ownership so a future
// submit re-acquires it cleanly (spec.md §6.5 resetJob).
type ShardResetter interface {
	ShardFor(group, entityID string) (int, bool)
	ResetShard(ctx context.Context, group string, shardID int) error
}

// HeartbeatChecker reports whether a job's liveness key is still present
// in Redis, used to tell "still being processed elsewhere" apart from
// "abandoned" during reconciliation.
type HeartbeatChecker interface {
	Alive(ctx context.Context, jobID int64) (bool, error)
}

// AdminReplaySink resubmits one DLQ entry as a fresh job.
type AdminReplaySink interface {
	Replay(ctx context.Context, e postgres.Entry) error
}

const heartbeatTTL = 30 * time.Second

type AdminJobsHandler struct {
	store     AdminJobsRepo
	dlq       AdminDlqRepo
	shards    ShardResetter
	heartbeat HeartbeatChecker
	replay    AdminReplaySink
}

func NewAdminJobsHandler(store AdminJobsRepo, dlq AdminDlqRepo, shards ShardResetter, heartbeat HeartbeatChecker, replay AdminReplaySink) *AdminJobsHandler {
	return &AdminJobsHandler{store: store, dlq: dlq, shards: shards, heartbeat: heartbeat, replay: replay}
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

// GET /admin/jobs?tenantId=...&status=failed&limit=50&cursor=<updatedAt>|<id>
func (h *AdminJobsHandler) List(ctx *gin.Context) {
	tenantID := ctx.Query("tenantId")
	if tenantID == "" {
		RespondBadRequest(ctx, "invalid_query", "tenantId is required")
		return
	}

	limit := parseInt(ctx.Query("limit"), 50)
	if limit < 1 || limit > 200 {
		RespondBadRequest(ctx, "invalid_query", "limit must be between 1 and 200")
		return
	}

	var statusPointer *string
	if s := ctx.Query("status"); s != "" {
		statusPointer = &s
	}

	afterUpdatedAt := time.Now().UTC()
	var afterID int64 = 1<<63 - 1
	if cursor := ctx.Query("cursor"); cursor != "" {
		ts, id, ok := splitCursor(cursor)
		if !ok {
			RespondBadRequest(ctx, "invalid_query", "malformed cursor")
			return
		}
		afterUpdatedAt, afterID = ts, id
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, nextCursor, hasMore, err := h.store.ListCursor(cctx, tenantID, statusPointer, limit, afterUpdatedAt, afterID)
	if err != nil {
		RespondInternal(ctx, "could not list jobs")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"items":      items,
		"nextCursor": nextCursor,
		"hasMore":    hasMore,
	})
}

func splitCursor(cursor string) (time.Time, int64, bool) {
	for i := len(cursor) - 1; i >= 0; i-- {
		if cursor[i] == '|' {
			ts, err := time.Parse(time.RFC3339Nano, cursor[:i])
			if err != nil {
				return time.Time{}, 0, false
			}
			id, err := strconv.ParseInt(cursor[i+1:], 10, 64)
			if err != nil {
				return time.Time{}, 0, false
			}
			return ts, id, true
		}
	}
	return time.Time{}, 0, false
}

// GET /admin/jobs/:id
func (h *AdminJobsHandler) GetByID(ctx *gin.Context) {
	id, ok := parseJobID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	rec, err := h.store.Get(cctx, id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			RespondNotFound(ctx, "job not found")
			return
		}
		RespondInternal(ctx, "could not fetch job")
		return
	}

	ctx.JSON(http.StatusOK, rec)
}

// POST /admin/dlq/:id/replay — replay(dlqId) (spec.md §6.5): submit a
// DlqEntry for one more attempt, then mark it resolved on success or
// failed (bumping replay_count) on error — never the reverse, so a
// successful replay is never resubmitted on a later sweep.
func (h *AdminJobsHandler) Replay(ctx *gin.Context) {
	idStr := ctx.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		RespondBadRequest(ctx, "invalid_request", "dlq id must be numeric")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	entry, err := h.dlq.GetByID(cctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrDlqEntryNotFound) {
			RespondNotFound(ctx, "dlq entry not found")
			return
		}
		RespondInternal(ctx, "could not fetch dlq entry")
		return
	}

	replayErr := h.replay.Replay(cctx, entry)

	if txErr := h.dlq.WithTx(cctx, func(tx pgx.Tx) error {
		if replayErr != nil {
			return h.dlq.MarkReplayFailed(cctx, tx, entry.ID)
		}
		return h.dlq.MarkResolved(cctx, tx, entry.ID)
	}); txErr != nil {
		RespondInternal(ctx, "could not mark dlq entry outcome")
		return
	}

	if replayErr != nil {
		RespondInternal(ctx, "could not resubmit dlq entry")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"dlqId": id, "replayed": true})
}

// POST /admin/jobs/:id/reset — resetJob(jobId) (spec.md §6.5): clear
// entity/shard state for a stuck job so it can be reclaimed cleanly.
// Returns NotFound if the shard does not know about the job.
func (h *AdminJobsHandler) ResetJob(ctx *gin.Context) {
	id, ok := parseJobID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	rec, err := h.store.Get(cctx, id)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			RespondNotFound(ctx, "job not found")
			return
		}
		RespondInternal(ctx, "could not fetch job")
		return
	}

	shardID, ok := h.shards.ShardFor(rec.Group, rec.EntityID)
	if !ok {
		RespondNotFound(ctx, "shard does not own this job's entity")
		return
	}

	if err := h.shards.ResetShard(cctx, rec.Group, shardID); err != nil {
		RespondInternal(ctx, "could not reset shard")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"jobId": id, "reset": true})
}

// POST /admin/jobs/recover-in-flight — recoverInFlight (spec.md §6.5):
// lists processing rows older than the heartbeat TTL (via ClaimStuck) and
// reports as "recovered" those whose heartbeat key is not alive. It only
// reports them: it does not change their status, retry, fail or
// re-dispatch them.
func (h *AdminJobsHandler) RecoverInFlight(ctx *gin.Context) {
	limit := parseInt(ctx.Query("limit"), 50)
	if limit < 1 || limit > 200 {
		RespondBadRequest(ctx, "invalid_query", "limit must be between 1 and 200")
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	stuck, err := h.store.ClaimStuck(cctx, heartbeatTTL, limit)
	if err != nil {
		RespondInternal(ctx, "could not claim stuck jobs")
		return
	}

	recovered := make([]int64, 0, len(stuck))
	for _, rec := range stuck {
		if h.heartbeat != nil {
			if alive, aliveErr := h.heartbeat.Alive(cctx, rec.JobID); aliveErr == nil && alive {
				continue
			}
		}
		recovered = append(recovered, rec.JobID)
	}

	ctx.JSON(http.StatusOK, gin.H{"claimed": len(stuck), "recovered": recovered})
}
