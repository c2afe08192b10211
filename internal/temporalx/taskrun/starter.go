package taskrun

import (
	"context"
	"fmt"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/neurobridge-tutor/internal/config"
	types "github.com/yungbote/neurobridge-tutor/internal/domain/jobs"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
)

// WorkflowClient is the part of the Temporal client the starter uses.
type WorkflowClient interface {
	ExecuteWorkflow(ctx context.Context, options temporalsdkclient.StartWorkflowOptions, workflow interface{}, args ...interface{}) (temporalsdkclient.WorkflowRun, error)
}

// Starter starts one workflow per task_run row. Starting a task whose
// workflow is already open returns the open run, so repeated starts are safe.
type Starter struct {
	client      WorkflowClient
	taskQueue   string
	maxAttempts int
	baseDelay   time.Duration
}

func NewStarter(client WorkflowClient, temporalCfg config.TemporalConfig, workerCfg config.WorkerConfig) *Starter {
	return &Starter{
		client:      client,
		taskQueue:   temporalCfg.TaskQueue,
		maxAttempts: workerCfg.MaxAttempts,
		baseDelay:   workerCfg.RetryBaseDelay,
	}
}

func (s *Starter) StartTask(ctx context.Context, run *types.TaskRun, policy runtime.Policy) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("taskrun: starter not configured")
	}
	in := Input{
		TaskID:          run.ID.String(),
		Kind:            run.Kind,
		Retryable:       policy.Retryable,
		MaxAttempts:     s.maxAttempts,
		InitialInterval: s.baseDelay,
	}
	_, err := s.client.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                    WorkflowID(run.ID),
		TaskQueue:             s.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
	}, WorkflowName, in)
	if err != nil {
		return fmt.Errorf("start workflow for task %s: %w", run.ID, err)
	}
	return nil
}
