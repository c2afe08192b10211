package taskrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	types "github.com/yungbote/neurobridge-tutor/internal/domain/jobs"
)

const (
	blockedPollInterval  = 2 * time.Second
	continuePollLimit    = 500
	continueHistoryLimit = 10000
	maxRetryInterval     = 10 * time.Minute
)

// Workflow drives one task_run row to a terminal status. While an earlier
// task of the same partition is unfinished the activity reports Blocked and
// the workflow polls again without spending a retry attempt.
func Workflow(ctx workflow.Context, in Input) error {
	if strings.TrimSpace(in.TaskID) == "" {
		return fmt.Errorf("taskrun: missing task_id")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         RetryPolicy(in),
	})

	for polls := 1; ; polls++ {
		var out Result
		if err := workflow.ExecuteActivity(ctx, ActivityExecute, in.TaskID).Get(ctx, &out); err != nil {
			return err
		}
		if !out.Blocked {
			if out.Status == types.StatusFailed {
				return fmt.Errorf("task %s (%s) failed", in.TaskID, in.Kind)
			}
			return nil
		}
		if err := workflow.Sleep(ctx, blockedPollInterval); err != nil {
			return err
		}
		if shouldContinueAsNew(ctx, polls) {
			return workflow.NewContinueAsNewError(ctx, WorkflowName, in)
		}
	}
}

// RetryPolicy mirrors the polling worker's schedule: the interval doubles from
// the base delay and the attempt budget is shared with the task_run row.
func RetryPolicy(in Input) *temporal.RetryPolicy {
	initial := in.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}
	attempts := in.MaxAttempts
	if attempts < 1 || !in.Retryable {
		attempts = 1
	}
	return &temporal.RetryPolicy{
		InitialInterval:    initial,
		BackoffCoefficient: 2,
		MaximumInterval:    maxRetryInterval,
		MaximumAttempts:    int32(attempts),
	}
}

func shouldContinueAsNew(ctx workflow.Context, polls int) bool {
	if polls >= continuePollLimit {
		return true
	}
	info := workflow.GetInfo(ctx)
	if info == nil {
		return false
	}
	return info.GetCurrentHistoryLength() >= continueHistoryLimit
}
