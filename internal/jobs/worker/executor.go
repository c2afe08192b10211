package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/neurobridge-tutor/internal/config"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	types "github.com/yungbote/neurobridge-tutor/internal/domain/jobs"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeRetried   Outcome = "retried"
	OutcomeDropped   Outcome = "dropped"
	OutcomeFailed    Outcome = "failed"
)

const maxRetryDelay = 10 * time.Minute

// Executor runs one claimed task inside its own session and settles the
// task_run row from the outcome.
type Executor struct {
	log      *logger.Logger
	runs     repos.TaskRunRepo
	registry *runtime.Registry
	sessions runtime.SessionFactory
	metrics  *observability.Metrics
	tracer   trace.Tracer
	now      func() time.Time

	maxAttempts int
	baseDelay   time.Duration
	heartbeat   time.Duration
}

func NewExecutor(baseLog *logger.Logger, runs repos.TaskRunRepo, registry *runtime.Registry, sessions runtime.SessionFactory, cfg config.WorkerConfig) *Executor {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Executor{
		log:         baseLog.With("component", "TaskExecutor"),
		runs:        runs,
		registry:    registry,
		sessions:    sessions,
		metrics:     observability.Current(),
		tracer:      observability.Tracer(),
		now:         func() time.Time { return time.Now().UTC() },
		maxAttempts: maxAttempts,
		baseDelay:   cfg.RetryBaseDelay,
		heartbeat:   cfg.StaleRunning / 3,
	}
}

type missingHandlerError struct{ Kind string }

func (e *missingHandlerError) Error() string { return "no handler registered for kind=" + e.Kind }

type panicError struct {
	Val   any
	Stack []byte
}

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }

// Process executes run and records the outcome on its row.
func (e *Executor) Process(ctx context.Context, run *types.TaskRun) Outcome {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "task "+run.Kind, trace.WithAttributes(
		attribute.String("task.kind", run.Kind),
		attribute.String("task.id", run.ID.String()),
		attribute.Int("task.attempt", run.Attempts),
	))
	defer span.End()

	policy, runErr := e.Execute(ctx, run)
	outcome := e.decide(run, policy, runErr)
	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	span.SetAttributes(attribute.String("task.outcome", string(outcome)))

	if err := e.settle(ctx, run, outcome, runErr); err != nil {
		e.log.Error("failed to settle task", "task_id", run.ID, "kind", run.Kind, "outcome", outcome, "error", err)
	}
	e.metrics.ObserveTask(run.Kind, string(outcome), time.Since(start))
	return outcome
}

/*
Execute runs the handler for run inside a freshly acquired session and
returns the handler's policy together with the run error.
Guarantees:
	- The session is released on every path, including a handler panic.
	- A handler error, a panic, or Discard rolls the session back.
	- A failure to acquire the session is wrapped and returned like a handler
	  error, so the policy decides whether it is retried.
*/
func (e *Executor) Execute(ctx context.Context, run *types.TaskRun) (runtime.Policy, error) {
	h, policy, ok := e.registry.Get(run.Kind)
	if !ok {
		return policy, &missingHandlerError{Kind: run.Kind}
	}

	stopHeartbeat := e.startHeartbeat(ctx, run)
	defer stopHeartbeat()

	sess, err := e.sessions.Acquire(ctx)
	if err != nil {
		err = fmt.Errorf("acquire session for %s: %w", run.Kind, err)
		e.log.Error("task session unavailable", "task_id", run.ID, "kind", run.Kind, "error", err)
		return policy, err
	}

	jc := runtime.NewContext(ctx, run, sess, e.log.With("task", run.Kind, "task_id", run.ID.String()))
	runErr := e.runHandler(h, jc)
	commit := runErr == nil && !jc.Discarded()
	if relErr := sess.Release(commit); relErr != nil {
		if runErr == nil {
			runErr = relErr
		} else {
			e.log.Warn("task session release failed", "task_id", run.ID, "kind", run.Kind, "error", relErr)
		}
	}
	return policy, runErr
}

func (e *Executor) runHandler(h runtime.Handler, jc *runtime.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := &panicError{Val: r, Stack: debug.Stack()}
			e.log.Error("Task handler panic",
				"task_id", jc.TaskID(),
				"kind", h.Type(),
				"panic", r,
				"stack", string(pe.Stack),
			)
			err = pe
		}
	}()
	return h.Run(jc)
}

func (e *Executor) decide(run *types.TaskRun, policy runtime.Policy, err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSucceeded
	case errors.Is(err, runtime.ErrMalformedInput):
		return OutcomeDropped
	case policy.BestEffort:
		return OutcomeDropped
	case policy.Retryable && run.Attempts < e.maxAttempts:
		return OutcomeRetried
	default:
		return OutcomeFailed
	}
}

// RetryDelay doubles from the base delay per attempt, capped.
func (e *Executor) RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.baseDelay
	if d <= 0 {
		d = time.Second
	}
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

func (e *Executor) settle(ctx context.Context, run *types.TaskRun, outcome Outcome, runErr error) error {
	dbc := dbctx.Context{Ctx: context.WithoutCancel(ctx)}
	now := e.now()
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	switch outcome {
	case OutcomeSucceeded:
		return e.runs.Finish(dbc, run.ID, types.StatusSucceeded, "", now)
	case OutcomeRetried:
		delay := e.RetryDelay(run.Attempts)
		e.log.Warn("Task failed; retrying",
			"task_id", run.ID, "kind", run.Kind, "attempt", run.Attempts, "retry_in", delay.String(), "error", runErr)
		return e.runs.Requeue(dbc, run.ID, now.Add(delay), msg, now)
	case OutcomeDropped:
		e.log.Error("Task dropped",
			"task_id", run.ID, "kind", run.Kind, "error", runErr, "payload", string(run.Payload))
		return e.runs.Finish(dbc, run.ID, types.StatusDropped, msg, now)
	default:
		e.log.Error("Task failed",
			"task_id", run.ID, "kind", run.Kind, "attempts", run.Attempts, "error", runErr, "payload", string(run.Payload))
		return e.runs.Finish(dbc, run.ID, types.StatusFailed, msg, now)
	}
}

func (e *Executor) startHeartbeat(ctx context.Context, run *types.TaskRun) func() {
	if e.heartbeat <= 0 {
		return func() {}
	}
	hbCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(e.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := e.runs.Heartbeat(dbctx.Context{Ctx: hbCtx}, run.ID, e.now()); err != nil && hbCtx.Err() == nil {
					e.log.Warn("task heartbeat failed", "task_id", run.ID, "error", err)
				}
			}
		}
	}()
	return cancel
}
