package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/allwinromario/AirQ/internal/domain/grid"
	"github.com/allwinromario/AirQ/internal/domain/job"
	"github.com/allwinromario/AirQ/internal/domain/user"
	"github.com/allwinromario/AirQ/internal/notifications"
	"github.com/allwinromario/AirQ/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string, resultGridID *string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
}

type GridsRepository interface {
	Create(ctx context.Context, g grid.Grid) error
	GetByID(ctx context.Context, id string) (grid.Grid, error)
}

type UsersRepository interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

// Waker blocks until a new job is announced or the timeout passes.
// An empty id with a nil error means the wait simply timed out.
type Waker interface {
	WaitJob(ctx context.Context, timeout time.Duration) (string, error)
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration
}

type Worker struct {
	cfg      Config
	repo     JobsRepository
	grids    GridsRepository
	users    UsersRepository
	notifier notifications.Notifier
	waker    Waker
	prom     *observability.Prom
	log      *slog.Logger

	wakeCh chan struct{}

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, grids GridsRepository, users UsersRepository, notifier notifications.Notifier, waker Waker, prom *observability.Prom, log *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}

	return &Worker{
		cfg:      cfg,
		repo:     repo,
		grids:    grids,
		users:    users,
		notifier: notifier,
		waker:    waker,
		prom:     prom,
		log:      log,
		wakeCh:   make(chan struct{}, 1),
	}
}

// Run drains jobs until ctx is cancelled. Each lane polls the queue
// independently and also listens on the Redis wake channel so a fresh
// job does not have to wait out a full poll interval.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	if w.waker != nil {
		go w.pumpWakes(ctx)
	}

	var wg sync.WaitGroup

	for lane := 0; lane < w.cfg.Concurrency; lane++ {
		wg.Add(1)

		go func(lane int) {
			defer wg.Done()
			w.runLane(ctx, lane)
		}(lane)
	}

	<-ctx.Done()
	w.log.Info("worker received shutdown signal")

	done := make(chan struct{})

	go func() {
		defer close(done)
		wg.Wait()
	}()

	select {
	case <-done:
		w.log.Info("worker lanes drained")
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Warn("worker shutdown grace elapsed with lanes still busy")
	}

	return nil
}

func (w *Worker) runLane(ctx context.Context, lane int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		// drain everything that's claimable before sleeping again
		for {
			processed, err := w.ProcessOne(ctx)

			if err != nil {
				w.log.Error("job processing error", "lane", lane, "error", err)
			}

			if !processed {
				break
			}
		}

		select {
		case <-ctx.Done():
			return

		case <-ticker.C:

		case <-w.wakeCh:
		}
	}
}

// pumpWakes blocks on the Redis wake list and nudges one idle lane per
// announcement. The poll ticker still catches anything a lost
// notification would miss.
func (w *Worker) pumpWakes(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		id, err := w.waker.WaitJob(ctx, 5*time.Second)

		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if id == "" {
			continue
		}

		select {
		case w.wakeCh <- struct{}{}:
		default:
		}
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}
