package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shardwork/jobmesh/internal/config"
	"github.com/shardwork/jobmesh/internal/domain/job"
	"github.com/shardwork/jobmesh/internal/http/middlewares"
	"github.com/shardwork/jobmesh/internal/jobs"
	"github.com/shardwork/jobmesh/internal/progress"
)

// Submitter is the Router's surface this handler depends on (spec.md
// §4.1, §6.1).
type Submitter interface {
	Submit(ctx context.Context, env jobs.Envelope) (job.Record, bool, error)
	SubmitBatch(ctx context.Context, batchID string, envs []jobs.Envelope) ([]job.Record, error)
	Status(ctx context.Context, jobID int64) (job.Record, error)
	Progress(ctx context.Context, jobID int64) (<-chan progress.Update, func(), error)
	Cancel(ctx context.Context, jobID int64) error
}

type JobsHandler struct {
	router Submitter
}

func NewJobsHandler(router Submitter) *JobsHandler {
	return &JobsHandler{router: router}
}

type submitRequest struct {
	Type        string          `json:"type" binding:"required"`
	Payload     json.RawMessage `json:"payload"`
	Priority    string          `json:"priority"`
	MaxAttempts *int            `json:"maxAttempts"`
	DedupeKey   string          `json:"dedupeKey"`
	ScheduledAt *int64          `json:"scheduledAt"`
	Duration    string          `json:"duration"`
}

// POST /jobs
func (h *JobsHandler) Submit(ctx *gin.Context) {
	var req submitRequest
	if !BindJSON(ctx, &req) {
		return
	}

	tenantID, ok := middlewares.TenantIDFromContext(ctx)
	if !ok || tenantID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "missing tenant identity")
		return
	}

	env := jobs.BuildEnvelope(req.Type, req.Payload, jobs.SubmitOptions{
		TenantID:    tenantID,
		Priority:    jobs.Priority(req.Priority),
		MaxAttempts: req.MaxAttempts,
		DedupeKey:   req.DedupeKey,
		ScheduledAt: req.ScheduledAt,
		Duration:    jobs.Duration(req.Duration),
		RequestID:   requestIDFrom(ctx),
		IPAddress:   ctx.ClientIP(),
		UserAgent:   ctx.GetHeader("User-Agent"),
	})

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	rec, duplicate, err := h.router.Submit(cctx, env)
	if err != nil {
		respondSubmitError(ctx, err)
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{
		"jobId":           rec.JobID,
		"status":          rec.Status,
		"type":            rec.Type,
		"alreadyEnqueued": duplicate,
	})
	slog.Default().InfoContext(cctx, "job.enqueue",
		"request_id", requestIDFrom(ctx), "job_id", rec.JobID, "job_type", rec.Type, "already_enqueued", duplicate)
}

type submitBatchRequest struct {
	Items []submitRequest `json:"items" binding:"required,min=1,max=500"`
}

// POST /jobs/batch/:batchId
func (h *JobsHandler) SubmitBatch(ctx *gin.Context) {
	batchID := ctx.Param("batchId")
	var req submitBatchRequest
	if !BindJSON(ctx, &req) {
		return
	}

	tenantID, ok := middlewares.TenantIDFromContext(ctx)
	if !ok || tenantID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "missing tenant identity")
		return
	}

	envs := make([]jobs.Envelope, len(req.Items))
	for i, item := range req.Items {
		envs[i] = jobs.BuildEnvelope(item.Type, item.Payload, jobs.SubmitOptions{
			TenantID:    tenantID,
			Priority:    jobs.Priority(item.Priority),
			MaxAttempts: item.MaxAttempts,
			DedupeKey:   item.DedupeKey,
			ScheduledAt: item.ScheduledAt,
			Duration:    jobs.Duration(item.Duration),
			RequestID:   requestIDFrom(ctx),
		})
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	recs, err := h.router.SubmitBatch(cctx, batchID, envs)
	if err != nil {
		RespondInternal(ctx, "could not submit batch")
		return
	}

	ctx.JSON(http.StatusAccepted, gin.H{"batchId": batchID, "items": recs})
}

// GET /jobs/:id
func (h *JobsHandler) Status(ctx *gin.Context) {
	id, ok := parseJobID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	rec, err := h.router.Status(cctx, id)
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

// POST /jobs/:id/cancel
func (h *JobsHandler) Cancel(ctx *gin.Context) {
	id, ok := parseJobID(ctx)
	if !ok {
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if err := h.router.Cancel(cctx, id); err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			RespondNotFound(ctx, "job not found")
			return
		}
		var classified *jobs.Error
		if errors.As(err, &classified) && classified.Kind == jobs.KindAlreadyCancelled {
			RespondConflict(ctx, "already_terminal", "job already in a terminal state")
			return
		}
		RespondInternal(ctx, "could not cancel job")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"jobId": id, "cancelled": true})
}

// GET /jobs/:id/progress — server-sent events stream that ends when the
// job reaches a terminal status (spec.md §9 Open Question resolution).
func (h *JobsHandler) Progress(ctx *gin.Context) {
	id, ok := parseJobID(ctx)
	if !ok {
		return
	}

	ch, unsubscribe, err := h.router.Progress(ctx.Request.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrRunnerUnavailable) {
			RespondError(ctx, http.StatusTemporaryRedirect, "not_local", "job not owned by this runner", nil)
			return
		}
		RespondInternal(ctx, "could not subscribe to progress")
		return
	}
	defer unsubscribe()

	ctx.Header("Content-Type", "text/event-stream")
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("Connection", "keep-alive")

	ctx.Stream(func(w gin.ResponseWriter) bool {
		select {
		case u, open := <-ch:
			if !open {
				return false
			}
			ctx.SSEvent("progress", gin.H{"pct": u.Pct, "message": u.Message})
			return true
		case <-ctx.Request.Context().Done():
			return false
		}
	})
}

func parseJobID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil {
		RespondBadRequest(ctx, "invalid_request", "job id must be numeric")
		return 0, false
	}
	return id, true
}

func respondSubmitError(ctx *gin.Context, err error) {
	var classified *jobs.Error
	if errors.As(err, &classified) {
		switch classified.Kind {
		case jobs.KindValidation:
			RespondBadRequest(ctx, classified.Msg, nil)
			return
		case jobs.KindHandlerMissing:
			RespondBadRequest(ctx, classified.Msg, nil)
			return
		case jobs.KindMailboxFull, jobs.KindRunnerUnavailable:
			RespondError(ctx, http.StatusServiceUnavailable, "backpressure", classified.Msg, nil)
			return
		}
	}
	RespondInternal(ctx, "could not enqueue job")
}
