package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/allwinromario/AirQ/internal/domain/grid"
	"github.com/allwinromario/AirQ/internal/domain/job"
	"github.com/allwinromario/AirQ/internal/http/handlers"
	"github.com/allwinromario/AirQ/internal/http/middlewares"
	"github.com/allwinromario/AirQ/internal/jobs"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func quietTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeJobsStore struct {
	createFn func(ctx context.Context, req job.CreateRequest) (job.Job, error)
	getFn    func(ctx context.Context, id string) (job.Job, error)
	byKeyFn  func(ctx context.Context, key string) (job.Job, error)
}

func (f *fakeJobsStore) Create(ctx context.Context, req job.CreateRequest) (job.Job, error) {
	if f.createFn != nil {
		return f.createFn(ctx, req)
	}

	return job.New(req), nil
}

func (f *fakeJobsStore) GetByID(ctx context.Context, id string) (job.Job, error) {
	if f.getFn != nil {
		return f.getFn(ctx, id)
	}

	return job.Job{}, job.ErrJobNotFound
}

func (f *fakeJobsStore) GetByIdempotencyKey(ctx context.Context, key string) (job.Job, error) {
	if f.byKeyFn != nil {
		return f.byKeyFn(ctx, key)
	}

	return job.Job{}, job.ErrJobNotFound
}

type fakeNotifier struct {
	notified []string
}

func (f *fakeNotifier) NotifyJob(ctx context.Context, jobID string) error {
	f.notified = append(f.notified, jobID)
	return nil
}

func TestSubmitDownscale(t *testing.T) {
	ownerID := uuid.NewString()
	gridID := uuid.NewString()

	grids := &fakeGridsRepo{
		getFn: func(ctx context.Context, id string) (grid.Grid, error) {
			if id != gridID {
				return grid.Grid{}, grid.ErrNotFound
			}

			return grid.Grid{ID: gridID, OwnerID: ownerID, Rows: 4, Cols: 4}, nil
		},
	}

	t.Run("accepted_and_notified", func(t *testing.T) {
		notifier := &fakeNotifier{}

		var createdReq job.CreateRequest

		jobsStore := &fakeJobsStore{
			createFn: func(ctx context.Context, req job.CreateRequest) (job.Job, error) {
				createdReq = req
				return job.New(req), nil
			},
		}

		h := handlers.NewJobsHandler(grids, jobsStore, notifier, quietTestLogger())

		r, token := authedRouter(t, ownerID, func(r *gin.Engine, mw *middlewares.AuthMiddleware) {
			r.POST("/api/grids/:id/downscale", mw.RequireAuth(), h.SubmitDownscale)
		})

		w := doAuthed(r, http.MethodPost, "/api/grids/"+gridID+"/downscale", token,
			`{"factor":4,"method":"bicubic","sigma":1.5}`)

		if w.Code != http.StatusAccepted {
			t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
		}

		if createdReq.IdempotencyKey == nil || *createdReq.IdempotencyKey == "" {
			t.Fatalf("job created without idempotency key")
		}

		if createdReq.UserID == nil || *createdReq.UserID != ownerID {
			t.Fatalf("job not attributed to submitter")
		}

		if len(notifier.notified) != 1 {
			t.Fatalf("worker wake not sent: %v", notifier.notified)
		}

		var resp struct {
			Deduplicated bool `json:"deduplicated"`
			Job          struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"job"`
		}

		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("bad response: %v", err)
		}

		if resp.Deduplicated || resp.Job.Status != string(job.StatusPending) {
			t.Fatalf("unexpected response: %s", w.Body.String())
		}
	})

	t.Run("duplicate_returns_existing", func(t *testing.T) {
		existing := job.New(job.CreateRequest{Type: "grid.downscale"})

		jobsStore := &fakeJobsStore{
			byKeyFn: func(ctx context.Context, key string) (job.Job, error) {
				return existing, nil
			},
			createFn: func(ctx context.Context, req job.CreateRequest) (job.Job, error) {
				t.Fatalf("duplicate submission created a new job")
				return job.Job{}, nil
			},
		}

		h := handlers.NewJobsHandler(grids, jobsStore, nil, quietTestLogger())

		r, token := authedRouter(t, ownerID, func(r *gin.Engine, mw *middlewares.AuthMiddleware) {
			r.POST("/api/grids/:id/downscale", mw.RequireAuth(), h.SubmitDownscale)
		})

		w := doAuthed(r, http.MethodPost, "/api/grids/"+gridID+"/downscale", token,
			`{"factor":2,"method":"gaussian"}`)

		if w.Code != http.StatusAccepted {
			t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
		}

		var resp struct {
			Deduplicated bool `json:"deduplicated"`
			Job          struct {
				ID string `json:"id"`
			} `json:"job"`
		}

		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("bad response: %v", err)
		}

		if !resp.Deduplicated || resp.Job.ID != existing.ID {
			t.Fatalf("existing job not surfaced: %s", w.Body.String())
		}
	})

	t.Run("sigma_defaults_to_one_when_omitted", func(t *testing.T) {
		var createdReq job.CreateRequest

		jobsStore := &fakeJobsStore{
			createFn: func(ctx context.Context, req job.CreateRequest) (job.Job, error) {
				createdReq = req
				return job.New(req), nil
			},
		}

		h := handlers.NewJobsHandler(grids, jobsStore, nil, quietTestLogger())

		r, token := authedRouter(t, ownerID, func(r *gin.Engine, mw *middlewares.AuthMiddleware) {
			r.POST("/api/grids/:id/downscale", mw.RequireAuth(), h.SubmitDownscale)
		})

		w := doAuthed(r, http.MethodPost, "/api/grids/"+gridID+"/downscale", token,
			`{"factor":2,"method":"bilinear"}`)

		if w.Code != http.StatusAccepted {
			t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
		}

		payload, err := jobs.DecodeGridDownscale(createdReq.Payload)

		if err != nil {
			t.Fatalf("decode payload: %v", err)
		}

		if payload.Sigma != 1 {
			t.Fatalf("sigma = %v, want the slider default 1", payload.Sigma)
		}
	})

	t.Run("explicit_zero_sigma_disables_smoothing", func(t *testing.T) {
		var createdReq job.CreateRequest

		jobsStore := &fakeJobsStore{
			createFn: func(ctx context.Context, req job.CreateRequest) (job.Job, error) {
				createdReq = req
				return job.New(req), nil
			},
		}

		h := handlers.NewJobsHandler(grids, jobsStore, nil, quietTestLogger())

		r, token := authedRouter(t, ownerID, func(r *gin.Engine, mw *middlewares.AuthMiddleware) {
			r.POST("/api/grids/:id/downscale", mw.RequireAuth(), h.SubmitDownscale)
		})

		w := doAuthed(r, http.MethodPost, "/api/grids/"+gridID+"/downscale", token,
			`{"factor":2,"method":"bilinear","sigma":0}`)

		if w.Code != http.StatusAccepted {
			t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
		}

		payload, err := jobs.DecodeGridDownscale(createdReq.Payload)

		if err != nil {
			t.Fatalf("decode payload: %v", err)
		}

		if payload.Sigma != 0 {
			t.Fatalf("sigma = %v, want 0 (explicitly disabled)", payload.Sigma)
		}
	})

	t.Run("invalid_parameters", func(t *testing.T) {
		h := handlers.NewJobsHandler(grids, &fakeJobsStore{}, nil, quietTestLogger())

		r, token := authedRouter(t, ownerID, func(r *gin.Engine, mw *middlewares.AuthMiddleware) {
			r.POST("/api/grids/:id/downscale", mw.RequireAuth(), h.SubmitDownscale)
		})

		for _, body := range []string{
			`{"factor":1,"method":"gaussian"}`,
			`{"factor":20,"method":"gaussian"}`,
			`{"factor":2,"method":"nearest"}`,
			`{"factor":2,"method":"gaussian","sigma":9}`,
		} {
			w := doAuthed(r, http.MethodPost, "/api/grids/"+gridID+"/downscale", token, body)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("body %s: got %d, want 400", body, w.Code)
			}
		}
	})

	t.Run("foreign_grid_hidden", func(t *testing.T) {
		h := handlers.NewJobsHandler(grids, &fakeJobsStore{}, nil, quietTestLogger())

		r, token := authedRouter(t, uuid.NewString(), func(r *gin.Engine, mw *middlewares.AuthMiddleware) {
			r.POST("/api/grids/:id/downscale", mw.RequireAuth(), h.SubmitDownscale)
		})

		w := doAuthed(r, http.MethodPost, "/api/grids/"+gridID+"/downscale", token,
			`{"factor":2,"method":"gaussian"}`)

		if w.Code != http.StatusNotFound {
			t.Fatalf("got %d, want 404", w.Code)
		}
	})
}

func TestGetJobByID(t *testing.T) {
	ownerID := uuid.NewString()
	jobID := uuid.NewString()

	stored := job.Job{ID: jobID, Type: "grid.downscale", Status: job.StatusDone, UserID: &ownerID}

	jobsStore := &fakeJobsStore{
		getFn: func(ctx context.Context, id string) (job.Job, error) {
			if id != jobID {
				return job.Job{}, job.ErrJobNotFound
			}

			return stored, nil
		},
	}

	h := handlers.NewJobsHandler(&fakeGridsRepo{}, jobsStore, nil, quietTestLogger())

	t.Run("owner_can_read", func(t *testing.T) {
		r, token := authedRouter(t, ownerID, func(r *gin.Engine, mw *middlewares.AuthMiddleware) {
			r.GET("/api/jobs/:id", mw.RequireAuth(), h.GetByID)
		})

		w := doAuthed(r, http.MethodGet, "/api/jobs/"+jobID, token, "")

		if w.Code != http.StatusOK {
			t.Fatalf("got %d, body=%s", w.Code, w.Body.String())
		}
	})

	t.Run("stranger_sees_not_found", func(t *testing.T) {
		r, token := authedRouter(t, uuid.NewString(), func(r *gin.Engine, mw *middlewares.AuthMiddleware) {
			r.GET("/api/jobs/:id", mw.RequireAuth(), h.GetByID)
		})

		w := doAuthed(r, http.MethodGet, "/api/jobs/"+jobID, token, "")

		if w.Code != http.StatusNotFound {
			t.Fatalf("got %d, want 404", w.Code)
		}
	})
}
