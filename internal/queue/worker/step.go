package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/allwinromario/AirQ/internal/actorctx"
	"github.com/allwinromario/AirQ/internal/domain/grid"
	"github.com/allwinromario/AirQ/internal/domain/job"
	"github.com/allwinromario/AirQ/internal/downscale"
	"github.com/allwinromario/AirQ/internal/jobs"
	"github.com/allwinromario/AirQ/internal/notifications"
)

// ProcessOne claims and runs a single job. The boolean reports whether
// a job was claimed at all, so callers can drain until the queue is
// empty and then go back to sleep.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)

	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}

		return false, err
	}

	start := time.Now()

	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	resultGridID, err := w.execute(ctx, j)

	if err != nil {
		result := w.handleFailure(ctx, j, err)
		w.observeJob(j.Type, result, start)
		return true, nil
	}

	if err := w.repo.MarkDone(ctx, j.ID, resultGridID); err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		w.observeJob(j.Type, "failed", start)
		return true, err
	}

	w.observeJob(j.Type, "done", start)

	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) (*string, error) {
	switch j.Type {
	case jobs.TypeGridDownscale:
		return w.executeDownscale(ctx, j)
	default:
		return nil, fmt.Errorf("%w: %s", jobs.ErrInvalidJobType, j.Type)
	}
}

func (w *Worker) executeDownscale(ctx context.Context, j job.Job) (*string, error) {
	payload, err := jobs.DecodeGridDownscale(j.Payload)

	if err != nil {
		return nil, err
	}

	// rows written by anything other than the API go through the same gate
	if err := jobs.ValidatePayload(j.Type, payload); err != nil {
		return nil, err
	}

	ctx = actorctx.WithUserID(ctx, payload.RequestedBy)

	src, err := w.grids.GetByID(ctx, payload.GridID)

	if err != nil {
		return nil, fmt.Errorf("load source grid: %w", err)
	}

	opts := downscale.Options{
		Factor:   payload.Factor,
		Method:   downscale.Method(payload.Method),
		Sigma:    payload.Sigma,
		AddNoise: payload.AddNoise,
		Seed:     time.Now().UnixNano(),
	}

	start := time.Now()

	res, err := downscale.Run(src, opts)

	if w.prom != nil {
		w.prom.ObserveDownscale(payload.Method, start, err)
	}

	if err != nil {
		return nil, fmt.Errorf("downscale: %w", err)
	}

	name := fmt.Sprintf("%s (%s x%d)", src.Name, payload.Method, payload.Factor)

	out, err := grid.New(src.OwnerID, name, grid.SourceDownscale, res.Rows, res.Cols, res.Values)

	if err != nil {
		return nil, err
	}

	out.LatMin, out.LatMax = src.LatMin, src.LatMax
	out.LonMin, out.LonMax = src.LonMin, src.LonMax
	out.ParentID = &src.ID
	out.Method = &payload.Method
	out.Factor = &payload.Factor

	if err := w.grids.Create(ctx, out); err != nil {
		return nil, fmt.Errorf("store result grid: %w", err)
	}

	// diff against a nearest-neighbour upsample of the processed field,
	// the sanity signal the interactive tool surfaced per run
	if ds, derr := res.DiffStats(payload.Factor, src.Rows, src.Cols); derr == nil {
		w.log.Info("downscale diff vs baseline",
			"job_id", j.ID,
			"method", payload.Method,
			"diff_mean", ds.Mean,
			"diff_stddev", ds.StdDev,
		)
	}

	if w.prom != nil {
		w.prom.GridCells.Observe(float64(res.Rows * res.Cols))
	}

	w.notifyDone(ctx, j, payload, out.ID)

	return &out.ID, nil
}

// notifyDone is best effort: a lost notification never fails the job.
func (w *Worker) notifyDone(ctx context.Context, j job.Job, payload jobs.GridDownscalePayload, resultGridID string) {
	if w.notifier == nil || w.users == nil {
		return
	}

	u, err := w.users.GetByID(ctx, payload.RequestedBy)

	if err != nil {
		w.log.Warn("notify lookup failed", "job_id", j.ID, "error", err)
		return
	}

	err = w.notifier.SendDownscaleComplete(ctx, notifications.DownscaleCompleteInput{
		Email:        u.Email,
		FirstName:    u.FirstName,
		GridID:       payload.GridID,
		ResultGridID: resultGridID,
		JobID:        j.ID,
	})

	if err != nil {
		w.log.Warn("notify send failed", "job_id", j.ID, "error", err)
	}
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error) string {
	attempts := j.Attempts + 1

	// malformed payloads never succeed on retry
	permanent := errors.Is(cause, jobs.ErrInvalidJobType) ||
		errors.Is(cause, jobs.ErrInvalidJobPayload) ||
		errors.Is(cause, downscale.ErrBadMethod) ||
		errors.Is(cause, downscale.ErrBadFactor) ||
		errors.Is(cause, downscale.ErrBadSigma)

	if permanent || attempts >= j.MaxAttempts {
		if err := w.repo.MarkFailed(ctx, j.ID, cause.Error()); err != nil {
			w.log.Error("mark failed error", "job_id", j.ID, "error", err)
		}

		w.log.Warn("job failed permanently", "job_id", j.ID, "attempts", attempts, "error", cause)
		return "failed"
	}

	runAt := time.Now().UTC().Add(ExponentialBackoff(attempts))

	if err := w.repo.Reschedule(ctx, j.ID, runAt, cause.Error()); err != nil {
		w.log.Error("reschedule error", "job_id", j.ID, "error", err)
		return "failed"
	}

	w.log.Info("job rescheduled", "job_id", j.ID, "attempts", attempts, "run_at", runAt)
	return "retry"
}

func (w *Worker) observeJob(jobType, result string, start time.Time) {
	if w.prom == nil {
		return
	}

	secs := time.Since(start).Seconds()
	w.prom.JobDuration.WithLabelValues(jobType, result).Observe(secs)
	w.prom.JobResults.WithLabelValues(jobType, result).Inc()
}
