package taskrun

import (
	"time"

	"github.com/google/uuid"
)

const (
	WorkflowName    = "task_run"
	ActivityExecute = "task_run_execute"

	// RetryErrorType marks activity failures that Temporal should retry.
	RetryErrorType = "TaskRetry"
)

// Input is the workflow argument. Retry settings travel with the workflow so
// a config change never alters the schedule of a task already in flight.
type Input struct {
	TaskID          string        `json:"task_id"`
	Kind            string        `json:"kind"`
	Retryable       bool          `json:"retryable"`
	MaxAttempts     int           `json:"max_attempts"`
	InitialInterval time.Duration `json:"initial_interval"`
}

type Result struct {
	TaskID  string `json:"task_id"`
	Status  string `json:"status,omitempty"`
	Blocked bool   `json:"blocked,omitempty"`
}

func WorkflowID(taskID uuid.UUID) string {
	return "task-" + taskID.String()
}
