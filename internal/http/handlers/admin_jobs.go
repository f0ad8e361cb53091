package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/allwinromario/AirQ/internal/config"
	"github.com/allwinromario/AirQ/internal/domain/job"
	"github.com/allwinromario/AirQ/internal/http/middlewares"
	"github.com/allwinromario/AirQ/internal/utils"
	"github.com/gin-gonic/gin"
)

type AdminJobsStore interface {
	GetByID(ctx context.Context, id string) (job.Job, error)
	ListCursor(ctx context.Context, status *string, limit int, afterUpdatedAt time.Time, afterID string) ([]job.Job, bool, error)
	Retry(ctx context.Context, id string) error
	RetryManyFailed(ctx context.Context, limit int) (int64, error)
}

type AdminJobsHandler struct {
	repo AdminJobsStore
	log  *slog.Logger
}

func NewAdminJobsHandler(repo AdminJobsStore, log *slog.Logger) *AdminJobsHandler {
	return &AdminJobsHandler{repo: repo, log: log}
}

// audit records who pushed an admin mutation, by email when the token
// carries one
func (h *AdminJobsHandler) audit(ctx *gin.Context, action string, args ...any) {
	if h.log == nil {
		return
	}

	actor, _ := middlewares.EmailFromContext(ctx)

	if actor == "" {
		actor, _ = middlewares.UserIDFromContext(ctx)
	}

	h.log.Info("admin "+action, append([]any{"actor", actor}, args...)...)
}

// GET /api/admin/jobs?status=&limit=&cursor=

func (h *AdminJobsHandler) List(ctx *gin.Context) {
	var status *string

	if s := ctx.Query("status"); s != "" {
		if !job.Status(s).IsValid() {
			RespondBadRequest(ctx, "status must be one of pending, processing, done, failed", nil)
			return
		}
		status = &s
	}

	limit := parseIntDefault(ctx.Query("limit"), 20)

	if limit < 1 || limit > 100 {
		RespondBadRequest(ctx, "limit must be between 1 and 100", nil)
		return
	}

	afterUpdatedAt := time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	afterID := "ffffffff-ffff-ffff-ffff-ffffffffffff"

	if cursor := ctx.Query("cursor"); cursor != "" {
		cur, err := utils.DecodeJobCursor(cursor)

		if err != nil {
			RespondBadRequest(ctx, "cursor is invalid", nil)
			return
		}

		afterUpdatedAt = cur.UpdatedAt
		afterID = cur.ID
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, hasMore, err := h.repo.ListCursor(cctx, status, limit, afterUpdatedAt, afterID)

	if err != nil {
		RespondInternal(ctx, "Could not list jobs")
		return
	}

	var next *string

	if hasMore && len(items) > 0 {
		last := items[len(items)-1]

		encoded, err := utils.EncodeJobCursor(last.UpdatedAt, last.ID)

		if err == nil {
			next = &encoded
		}
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"limit":      limit,
		"count":      len(items),
		"items":      items,
		"hasMore":    hasMore,
		"nextCursor": next,
	})
}

// GET /api/admin/jobs/:id

func (h *AdminJobsHandler) GetByID(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	j, err := h.repo.GetByID(cctx, id)

	if err != nil {
		RespondNotFound(ctx, "Job not found")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"job": j})
}

// POST /api/admin/jobs/:id/retry

func (h *AdminJobsHandler) Retry(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if err := h.repo.Retry(cctx, id); err != nil {
		RespondNotFound(ctx, "Job is not retryable")
		return
	}

	h.audit(ctx, "job retry", "job_id", id)
	ctx.JSON(http.StatusOK, gin.H{"retried": id})
}

// POST /api/admin/jobs/retry-failed?limit=

func (h *AdminJobsHandler) RetryFailed(ctx *gin.Context) {
	limit := parseIntDefault(ctx.Query("limit"), 50)

	if limit < 1 || limit > 500 {
		RespondBadRequest(ctx, "limit must be between 1 and 500", nil)
		return
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	n, err := h.repo.RetryManyFailed(cctx, limit)

	if err != nil {
		RespondInternal(ctx, "Could not retry failed jobs")
		return
	}

	h.audit(ctx, "bulk retry", "count", n, "limit", limit)
	ctx.JSON(http.StatusOK, gin.H{"retried": n})
}
