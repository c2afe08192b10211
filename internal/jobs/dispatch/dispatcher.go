package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	types "github.com/yungbote/neurobridge-tutor/internal/domain/jobs"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// WorkflowStarter hands a persisted task to an external executor. The
// temporal backend implements it; without one the polling worker claims
// tasks from the table.
type WorkflowStarter interface {
	StartTask(ctx context.Context, run *types.TaskRun, policy runtime.Policy) error
}

type Dispatcher struct {
	log      *logger.Logger
	runs     repos.TaskRunRepo
	registry *runtime.Registry
	starter  WorkflowStarter
	metrics  *observability.Metrics
	now      func() time.Time

	mu      sync.Mutex
	lastSeq int64
}

func New(baseLog *logger.Logger, runs repos.TaskRunRepo, registry *runtime.Registry, starter WorkflowStarter) *Dispatcher {
	return &Dispatcher{
		log:      baseLog.With("component", "TaskDispatcher"),
		runs:     runs,
		registry: registry,
		starter:  starter,
		metrics:  observability.Current(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// nextSeq is strictly increasing within the process and tracks wall time
// across processes.
func (d *Dispatcher) nextSeq() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	seq := d.now().UnixNano()
	if seq <= d.lastSeq {
		seq = d.lastSeq + 1
	}
	d.lastSeq = seq
	return seq
}

// Enqueue persists one task through dbc. When dbc carries a transaction the
// task becomes visible, and is handed to the workflow starter, only once that
// transaction commits.
func (d *Dispatcher) Enqueue(dbc dbctx.Context, kind string, args map[string]any) (*types.TaskRun, error) {
	policy, ok := d.registry.Policy(kind)
	if !ok {
		return nil, fmt.Errorf("enqueue: no handler registered for kind=%s", kind)
	}
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: encode args: %w", kind, err)
	}
	partition := ""
	if policy.Partitioned {
		if pid, ok := args["participant_id"].(string); ok {
			partition = strings.TrimSpace(pid)
		}
	}
	now := d.now()
	run := &types.TaskRun{
		Kind:         kind,
		PartitionKey: partition,
		Seq:          d.nextSeq(),
		Status:       types.StatusQueued,
		AvailableAt:  now,
		Payload:      datatypes.JSON(raw),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := d.runs.Create(dbc, run); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", kind, err)
	}
	d.metrics.IncTaskEnqueued(kind)
	d.log.Debug("Task enqueued", "kind", kind, "task_id", run.ID, "partition", partition)

	if d.starter != nil {
		ctx := dbc.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		dbctx.AfterCommit(ctx, func() {
			startCtx := context.WithoutCancel(ctx)
			if err := d.starter.StartTask(startCtx, run, policy); err != nil {
				// The row stays queued until the next sweep starts it.
				d.log.Error("failed to start task workflow", "kind", kind, "task_id", run.ID, "error", err)
			}
		})
	}
	return run, nil
}

func (d *Dispatcher) TriggerMasteryUpdate(dbc dbctx.Context, participantID, topicID string, correct bool) error {
	_, err := d.Enqueue(dbc, runtime.KindUpdateBKTAndSnapshot, map[string]any{
		"participant_id": participantID,
		"topic_id":       topicID,
		"is_correct":     correct,
	})
	return err
}
