package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/allwinromario/AirQ/internal/config"
	"github.com/allwinromario/AirQ/internal/domain/job"
	"github.com/allwinromario/AirQ/internal/downscale"
	"github.com/allwinromario/AirQ/internal/http/middlewares"
	"github.com/allwinromario/AirQ/internal/jobs"
	"github.com/allwinromario/AirQ/internal/utils"
	"github.com/gin-gonic/gin"
)

type JobsStore interface {
	Create(ctx context.Context, req job.CreateRequest) (job.Job, error)
	GetByID(ctx context.Context, id string) (job.Job, error)
	GetByIdempotencyKey(ctx context.Context, key string) (job.Job, error)
}

// JobNotifier wakes sleeping workers after a job is enqueued. Best effort:
// workers also poll, so a notification failure only adds latency.
type JobNotifier interface {
	NotifyJob(ctx context.Context, jobID string) error
}

type JobsHandler struct {
	grids    GridsStore
	jobs     JobsStore
	notifier JobNotifier
	log      *slog.Logger
}

func NewJobsHandler(grids GridsStore, jobsStore JobsStore, notifier JobNotifier, log *slog.Logger) *JobsHandler {
	return &JobsHandler{grids: grids, jobs: jobsStore, notifier: notifier, log: log}
}

type DownscaleRequest struct {
	Factor int    `json:"factor" binding:"required,min=2,max=10"`
	Method string `json:"method" binding:"required,oneof=gaussian bilinear bicubic regression"`
	// nil means "not set"; an explicit 0 disables pre-smoothing
	Sigma    *float64 `json:"sigma,omitempty"`
	AddNoise bool     `json:"addNoise,omitempty"`
}

// defaultSigma matches the interactive tool's smoothing slider default.
const defaultSigma = 1.0

// POST /api/grids/:id/downscale
//
// Enqueues an asynchronous downscale job and returns 202 with the job
// record. Re-submitting identical parameters for the same grid returns
// the already-enqueued job instead of creating a duplicate.
func (h *JobsHandler) SubmitDownscale(ctx *gin.Context) {
	gridID := ctx.Param("id")

	if !utils.IsUUID(gridID) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	var req DownscaleRequest

	if !BindJSON(ctx, &req) {
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	sigma := defaultSigma

	if req.Sigma != nil {
		sigma = *req.Sigma
	}

	opts := downscale.Options{
		Factor:   req.Factor,
		Method:   downscale.Method(req.Method),
		Sigma:    sigma,
		AddNoise: req.AddNoise,
	}

	if err := opts.Validate(); err != nil {
		RespondBadRequest(ctx, err.Error(), nil)
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	g, err := h.grids.GetByID(cctx, gridID)

	if err != nil {
		RespondNotFound(ctx, "Grid not found")
		return
	}

	role, _ := middlewares.RoleFromContext(ctx)

	if g.OwnerID != userID && role != "admin" {
		RespondNotFound(ctx, "Grid not found")
		return
	}

	requestID := ctx.GetString(middlewares.CtxRequestID)

	payload := jobs.GridDownscalePayload{
		GridID:      gridID,
		Factor:      req.Factor,
		Method:      req.Method,
		Sigma:       opts.Sigma,
		AddNoise:    req.AddNoise,
		RequestedBy: userID,
		RequestID:   requestID,
	}

	key := payload.IdempotencyKey()

	if existing, err := h.jobs.GetByIdempotencyKey(cctx, key); err == nil {
		ctx.JSON(http.StatusAccepted, gin.H{"job": existing, "deduplicated": true})
		return
	}

	raw, err := payload.ToJSONRaw()

	if err != nil {
		RespondInternal(ctx, "Could not encode job payload")
		return
	}

	created, err := h.jobs.Create(cctx, job.CreateRequest{
		Type:           jobs.TypeGridDownscale,
		Payload:        raw,
		IdempotencyKey: &key,
		UserID:         &userID,
	})

	if err != nil {
		// races on the idempotency index land here; surface the winner
		if existing, lookupErr := h.jobs.GetByIdempotencyKey(cctx, key); lookupErr == nil {
			ctx.JSON(http.StatusAccepted, gin.H{"job": existing, "deduplicated": true})
			return
		}

		RespondInternal(ctx, "Could not enqueue job")
		return
	}

	if h.notifier != nil {
		if err := h.notifier.NotifyJob(cctx, created.ID); err != nil && h.log != nil {
			h.log.Warn("job wake notify failed", "job_id", created.ID, "error", err)
		}
	}

	ctx.JSON(http.StatusAccepted, gin.H{"job": created, "deduplicated": false})
}

// GET /api/jobs/:id

func (h *JobsHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	userID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || userID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	j, err := h.jobs.GetByID(cctx, id)

	if err != nil {
		RespondNotFound(ctx, "Job not found")
		return
	}

	role, _ := middlewares.RoleFromContext(ctx)

	owner := j.UserID != nil && *j.UserID == userID

	if !owner && role != "admin" {
		RespondNotFound(ctx, "Job not found")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"job": j})
}
