package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/allwinromario/AirQ/internal/cache"
	"github.com/allwinromario/AirQ/internal/config"
	"github.com/allwinromario/AirQ/internal/domain/grid"
	"github.com/allwinromario/AirQ/internal/export"
	"github.com/allwinromario/AirQ/internal/http/middlewares"
	"github.com/allwinromario/AirQ/internal/utils"
	"github.com/gin-gonic/gin"
)

type GridsStore interface {
	Create(ctx context.Context, g grid.Grid) error
	GetByID(ctx context.Context, id string) (grid.Grid, error)
	ListCursor(ctx context.Context, ownerID string, limit int, afterCreatedAt time.Time, afterID string) ([]grid.Grid, bool, error)
	Delete(ctx context.Context, id, ownerID string) error
}

// RemoteCache is the cross-process tier behind the in-process stats
// cache; nil bytes with nil error is a miss.
type RemoteCache interface {
	GetJSON(ctx context.Context, key string) ([]byte, error)
	SetJSON(ctx context.Context, key string, raw []byte, ttl time.Duration) error
}

type GridsHandler struct {
	repo   GridsStore
	stats  *cache.Cache
	remote RemoteCache
}

func NewGridsHandler(repo GridsStore, statsCache *cache.Cache, remote RemoteCache) *GridsHandler {
	return &GridsHandler{repo: repo, stats: statsCache, remote: remote}
}

type CreateGridRequest struct {
	Name   string `json:"name" binding:"required,min=1,max=120"`
	Source string `json:"source" binding:"required,oneof=sample upload"`

	// upload only
	CSV    string   `json:"csv,omitempty"`
	LatMin *float64 `json:"latMin,omitempty"`
	LatMax *float64 `json:"latMax,omitempty"`
	LonMin *float64 `json:"lonMin,omitempty"`
	LonMax *float64 `json:"lonMax,omitempty"`

	// sample only; fixed seed makes repeated generations identical
	Seed int64 `json:"seed,omitempty"`
}

// POST /api/grids

func (h *GridsHandler) Create(ctx *gin.Context) {
	var req CreateGridRequest

	if !BindJSON(ctx, &req) {
		return
	}

	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || ownerID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	var g grid.Grid

	switch req.Source {
	case grid.SourceSample:
		seed := req.Seed

		if seed == 0 {
			seed = time.Now().UnixNano()
		}

		g = grid.GenerateSample(ownerID, req.Name, seed)

	case grid.SourceUpload:
		if req.CSV == "" {
			RespondBadRequest(ctx, "csv is required for uploads", nil)
			return
		}

		values, rows, cols, err := export.ParseCSV(strings.NewReader(req.CSV))

		if err != nil {
			RespondBadRequest(ctx, "could not parse csv grid", gin.H{"reason": err.Error()})
			return
		}

		g, err = grid.New(ownerID, req.Name, grid.SourceUpload, rows, cols, values)

		if err != nil {
			RespondBadRequest(ctx, "invalid grid dimensions", nil)
			return
		}

		applyBounds(&g, req)
	}

	cctx, cancel := config.WithTimeout(5 * time.Second)
	defer cancel()

	if err := h.repo.Create(cctx, g); err != nil {
		RespondInternal(ctx, "Could not store grid")
		return
	}

	ctx.JSON(http.StatusCreated, g)
}

// GET /api/grids/:id

func (h *GridsHandler) GetByID(ctx *gin.Context) {
	g, ok := h.loadOwned(ctx)

	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, g)
}

// GET /api/grids?limit=&cursor=

func (h *GridsHandler) List(ctx *gin.Context) {
	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || ownerID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	limit := parseIntDefault(ctx.Query("limit"), 20)
	if limit < 1 || limit > 100 {
		RespondBadRequest(ctx, "limit must be between 1 and 100", nil)
		return
	}

	// DESC first-page sentinel: "far future" + max UUID
	afterCreatedAt := time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
	afterID := "ffffffff-ffff-ffff-ffff-ffffffffffff"

	if cursor := ctx.Query("cursor"); cursor != "" {
		cur, err := utils.DecodeGridCursor(cursor)
		if err != nil {
			RespondBadRequest(ctx, "cursor is invalid", nil)
			return
		}
		afterCreatedAt = cur.CreatedAt
		afterID = cur.ID
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	items, hasMore, err := h.repo.ListCursor(cctx, ownerID, limit, afterCreatedAt, afterID)

	if err != nil {
		RespondInternal(ctx, "Could not list grids")
		return
	}

	var next *string

	if hasMore && len(items) > 0 {
		last := items[len(items)-1]

		encoded, err := utils.EncodeGridCursor(last.CreatedAt, last.ID)

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

// GET /api/grids/:id/stats

func (h *GridsHandler) Stats(ctx *gin.Context) {
	id := ctx.Param("id")
	key := "airq:stats:" + id

	if raw, ok := h.cachedStats(ctx, key); ok {
		// still enforce ownership before serving from cache
		if _, ok := h.loadOwned(ctx); !ok {
			return
		}

		ctx.Data(http.StatusOK, "application/json; charset=utf-8", raw)
		return
	}

	g, ok := h.loadOwned(ctx)

	if !ok {
		return
	}

	s, err := grid.ComputeStats(g.Values)

	if err != nil {
		RespondBadRequest(ctx, "grid has no finite values", nil)
		return
	}

	raw, err := json.Marshal(gin.H{
		"gridId": g.ID,
		"stats":  s,
	})

	if err != nil {
		RespondInternal(ctx, "Failed to compute stats")
		return
	}

	if h.stats != nil {
		h.stats.Set(key, raw)
	}

	if h.remote != nil {
		// best effort, the local tier already has it
		_ = h.remote.SetJSON(ctx.Request.Context(), key, raw, 5*time.Minute)
	}

	ctx.Data(http.StatusOK, "application/json; charset=utf-8", raw)
}

func (h *GridsHandler) cachedStats(ctx *gin.Context, key string) ([]byte, bool) {
	if h.stats != nil {
		if v, ok := h.stats.Get(key); ok {
			if raw, ok := v.([]byte); ok {
				return raw, true
			}
		}
	}

	if h.remote != nil {
		raw, err := h.remote.GetJSON(ctx.Request.Context(), key)

		if err == nil && raw != nil {
			if h.stats != nil {
				h.stats.Set(key, raw)
			}

			return raw, true
		}
	}

	return nil, false
}

// GET /api/grids/:id/histogram?bins=

func (h *GridsHandler) HistogramView(ctx *gin.Context) {
	g, ok := h.loadOwned(ctx)

	if !ok {
		return
	}

	bins := parseIntDefault(ctx.Query("bins"), 50)

	if bins < 1 || bins > 500 {
		RespondBadRequest(ctx, "bins must be between 1 and 500", nil)
		return
	}

	hist, err := grid.ComputeHistogram(g.Values, bins)

	if err != nil {
		RespondBadRequest(ctx, "grid has no finite values", nil)
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"gridId":    g.ID,
		"histogram": hist,
	})
}

// GET /api/grids/:id/export?format=csv|png&vmin=&vmax=

func (h *GridsHandler) Export(ctx *gin.Context) {
	g, ok := h.loadOwned(ctx)

	if !ok {
		return
	}

	format := ctx.DefaultQuery("format", export.FormatCSV)

	vmin := parseFloatDefault(ctx.Query("vmin"), 0)
	vmax := parseFloatDefault(ctx.Query("vmax"), 1)

	data, contentType, err := export.Encode(format, g, vmin, vmax)

	if err != nil {
		RespondBadRequest(ctx, "format must be csv or png", nil)
		return
	}

	ctx.Header("Content-Disposition", `attachment; filename="no2_`+g.ID+`.`+format+`"`)
	ctx.Data(http.StatusOK, contentType, data)
}

// DELETE /api/grids/:id

func (h *GridsHandler) Delete(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || ownerID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return
	}

	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	if err := h.repo.Delete(cctx, id, ownerID); err != nil {
		RespondNotFound(ctx, "Grid not found")
		return
	}

	if h.stats != nil {
		h.stats.Delete("airq:stats:" + id)
	}

	ctx.Status(http.StatusNoContent)
}

// loadOwned fetches the grid and enforces that the caller owns it.
// Admins can read any grid.
func (h *GridsHandler) loadOwned(ctx *gin.Context) (grid.Grid, bool) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return grid.Grid{}, false
	}

	ownerID, ok := middlewares.UserIDFromContext(ctx)

	if !ok || ownerID == "" {
		RespondUnAuthorized(ctx, "unauthorized", "Missing identity")
		return grid.Grid{}, false
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	g, err := h.repo.GetByID(cctx, id)

	if err != nil {
		RespondNotFound(ctx, "Grid not found")
		return grid.Grid{}, false
	}

	role, _ := middlewares.RoleFromContext(ctx)

	if g.OwnerID != ownerID && role != "admin" {
		RespondNotFound(ctx, "Grid not found")
		return grid.Grid{}, false
	}

	return g, true
}

func applyBounds(g *grid.Grid, req CreateGridRequest) {
	if req.LatMin != nil {
		g.LatMin = *req.LatMin
	}
	if req.LatMax != nil {
		g.LatMax = *req.LatMax
	}
	if req.LonMin != nil {
		g.LonMin = *req.LonMin
	}
	if req.LonMax != nil {
		g.LonMax = *req.LonMax
	}
}

func parseIntDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}

	n, err := strconv.Atoi(s)

	if err != nil {
		return fallback
	}

	return n
}

func parseFloatDefault(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}

	f, err := strconv.ParseFloat(s, 64)

	if err != nil {
		return fallback
	}

	return f
}
