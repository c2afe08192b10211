package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/neurobridge-tutor/internal/config"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// Worker polls the task_run table. Several workers, in this or other
// processes, may poll the same table: a claim is atomic and a partition never
// has two tasks running at once.
type Worker struct {
	log  *logger.Logger
	runs repos.TaskRunRepo
	exec *Executor
	cfg  config.WorkerConfig
	now  func() time.Time
}

func NewWorker(baseLog *logger.Logger, runs repos.TaskRunRepo, exec *Executor, cfg config.WorkerConfig) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.StaleRunning <= 0 {
		cfg.StaleRunning = 10 * time.Minute
	}
	return &Worker{
		log:  baseLog.With("component", "TaskWorker"),
		runs: runs,
		exec: exec,
		cfg:  cfg,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Start runs the pool until ctx is done.
func (w *Worker) Start(ctx context.Context) error {
	w.log.Info("Starting task worker pool", "concurrency", w.cfg.Concurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Concurrency; i++ {
		workerID := i + 1
		g.Go(func() error {
			w.runLoop(gctx, workerID)
			return nil
		})
	}
	return g.Wait()
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// Drain without waiting for the next tick while work is available.
			for ctx.Err() == nil {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("ClaimNextRunnable failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// RunOnce claims and processes at most one task. It reports whether a task
// was claimed.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	run, err := w.runs.ClaimNextRunnable(dbctx.Context{Ctx: ctx}, w.now(), w.cfg.StaleRunning)
	if err != nil {
		return false, err
	}
	if run == nil {
		return false, nil
	}
	w.exec.Process(ctx, run)
	return true, nil
}

// Drain processes runnable tasks until none is left and returns how many ran.
// Requeued tasks whose backoff has not elapsed are left for later.
func (w *Worker) Drain(ctx context.Context) (int, error) {
	n := 0
	for ctx.Err() == nil {
		ran, err := w.RunOnce(ctx)
		if err != nil {
			return n, err
		}
		if !ran {
			return n, nil
		}
		n++
	}
	return n, ctx.Err()
}
