package taskrun

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/worker"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type Activities struct {
	Log          *logger.Logger
	Runs         repos.TaskRunRepo
	Exec         *worker.Executor
	StaleRunning time.Duration
}

// Execute claims the task row and runs it through the executor. A retried
// outcome is returned as an error so Temporal schedules the next attempt.
func (a *Activities) Execute(ctx context.Context, taskID string) (Result, error) {
	res := Result{TaskID: strings.TrimSpace(taskID)}
	if a == nil || a.Runs == nil || a.Exec == nil {
		return res, fmt.Errorf("taskrun: activity not configured")
	}
	id, err := uuid.Parse(res.TaskID)
	if err != nil || id == uuid.Nil {
		return res, temporal.NewNonRetryableApplicationError("taskrun: invalid task_id", "InvalidTaskID", err)
	}

	run, err := a.Runs.ClaimByID(dbctx.Context{Ctx: ctx}, id, time.Now().UTC(), a.StaleRunning)
	if errors.Is(err, repos.ErrPartitionBusy) {
		res.Blocked = true
		return res, nil
	}
	if err != nil {
		return res, err
	}
	if run.Terminal() {
		res.Status = run.Status
		return res, nil
	}

	stop := startHeartbeat(ctx)
	defer stop()

	outcome := a.Exec.Process(ctx, run)
	if outcome == worker.OutcomeRetried {
		return res, temporal.NewApplicationError(
			fmt.Sprintf("task %s attempt %d failed", run.Kind, run.Attempts), RetryErrorType)
	}
	res.Status = string(outcome)
	return res, nil
}

func startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
