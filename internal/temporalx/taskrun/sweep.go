package taskrun

import (
	"context"
	"time"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/dispatch"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

const sweepBatch = 200

// Sweeper starts workflows for rows that are still queued after the grace
// period, covering enqueues whose after-commit start failed and workflows
// that ended without settling their row.
type Sweeper struct {
	log      *logger.Logger
	runs     repos.TaskRunRepo
	registry *runtime.Registry
	starter  dispatch.WorkflowStarter
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
}

func NewSweeper(baseLog *logger.Logger, runs repos.TaskRunRepo, registry *runtime.Registry, starter dispatch.WorkflowStarter, interval, grace time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{
		log:      baseLog.With("component", "TaskSweeper"),
		runs:     runs,
		registry: registry,
		starter:  starter,
		interval: interval,
		grace:    grace,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.Warn("task sweep failed", "error", err)
			}
		}
	}
}

// SweepOnce returns how many workflows it started.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	stale, err := s.runs.ListQueued(dbctx.Context{Ctx: ctx}, s.now().Add(-s.grace), sweepBatch)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, run := range stale {
		policy, _ := s.registry.Policy(run.Kind)
		if err := s.starter.StartTask(ctx, run, policy); err != nil {
			s.log.Warn("sweep could not start task workflow", "task_id", run.ID, "kind", run.Kind, "error", err)
			continue
		}
		started++
	}
	if started > 0 {
		s.log.Info("swept queued tasks", "started", started)
	}
	return started, nil
}
