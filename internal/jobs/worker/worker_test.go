package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/config"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-tutor/internal/domain/activity"
	types "github.com/yungbote/neurobridge-tutor/internal/domain/jobs"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/dispatch"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
)

type funcHandler struct {
	kind string
	fn   func(jc *runtime.Context) error
}

func (h funcHandler) Type() string                 { return h.kind }
func (h funcHandler) Run(jc *runtime.Context) error { return h.fn(jc) }

type failingSessions struct{}

func (failingSessions) Acquire(context.Context) (*runtime.Session, error) {
	return nil, errors.New("connection pool exhausted")
}

type harness struct {
	db       *gorm.DB
	runs     repos.TaskRunRepo
	registry *runtime.Registry
	disp     *dispatch.Dispatcher
	exec     *Executor
	worker   *Worker
}

func testConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Concurrency:    2,
		MaxAttempts:    3,
		RetryBaseDelay: time.Second,
		StaleRunning:   time.Minute,
		PollInterval:   10 * time.Millisecond,
	}
}

func newHarness(t *testing.T, sessions runtime.SessionFactory) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	runs := repos.NewTaskRunRepo(db, log)
	registry := runtime.NewRegistry()
	if sessions == nil {
		sessions = runtime.NewSessionFactory(db)
	}
	exec := NewExecutor(log, runs, registry, sessions, testConfig())
	return &harness{
		db:       db,
		runs:     runs,
		registry: registry,
		disp:     dispatch.New(log, runs, registry, nil),
		exec:     exec,
		worker:   NewWorker(log, runs, exec, testConfig()),
	}
}

func (h *harness) register(t *testing.T, kind string, policy runtime.Policy, fn func(jc *runtime.Context) error) {
	t.Helper()
	if err := h.registry.Register(funcHandler{kind: kind, fn: fn}, policy); err != nil {
		t.Fatalf("register %s: %v", kind, err)
	}
}

func (h *harness) enqueue(t *testing.T, kind string, args map[string]any) *types.TaskRun {
	t.Helper()
	run, err := h.disp.Enqueue(dbctx.Background(), kind, args)
	if err != nil {
		t.Fatalf("enqueue %s: %v", kind, err)
	}
	return run
}

func (h *harness) reload(t *testing.T, run *types.TaskRun) *types.TaskRun {
	t.Helper()
	got, err := h.runs.GetByID(dbctx.Background(), run.ID)
	if err != nil || got == nil {
		t.Fatalf("reload task: %v", err)
	}
	return got
}

func TestSucceededTaskCommitsSession(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "write", runtime.Policy{Retryable: true}, func(jc *runtime.Context) error {
		return jc.DBC().DB(nil).Create(&activity.UserProgress{ParticipantID: jc.String("participant_id"), TopicID: "loops"}).Error
	})
	run := h.enqueue(t, "write", map[string]any{"participant_id": "p1"})

	n, err := h.worker.Drain(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("drain: n=%d err=%v", n, err)
	}
	if got := h.reload(t, run); got.Status != types.StatusSucceeded || got.FinishedAt == nil {
		t.Fatalf("status: want=%s got=%s", types.StatusSucceeded, got.Status)
	}
	var count int64
	h.db.Model(&activity.UserProgress{}).Count(&count)
	if count != 1 {
		t.Fatalf("progress rows: want=1 got=%d", count)
	}
}

func TestRetryableFailureRequeuesWithBackoff(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "flaky", runtime.Policy{Retryable: true}, func(*runtime.Context) error {
		return errors.New("storage unavailable")
	})
	run := h.enqueue(t, "flaky", nil)

	before := time.Now().UTC()
	if _, err := h.worker.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	got := h.reload(t, run)
	if got.Status != types.StatusQueued || got.Attempts != 1 {
		t.Fatalf("after first failure: status=%s attempts=%d", got.Status, got.Attempts)
	}
	if !got.AvailableAt.After(before) {
		t.Fatalf("requeued task should be delayed, available_at=%v", got.AvailableAt)
	}
	if got.Error != "storage unavailable" {
		t.Fatalf("error message: %q", got.Error)
	}

	// Exhaust the remaining attempts without waiting for the backoff.
	for i := 0; i < 2; i++ {
		claimed, err := h.runs.ClaimByID(dbctx.Background(), run.ID, time.Now().UTC(), time.Hour)
		if err != nil {
			t.Fatalf("claim: %v", err)
		}
		h.exec.Process(context.Background(), claimed)
	}
	if got := h.reload(t, run); got.Status != types.StatusFailed || got.Attempts != 3 {
		t.Fatalf("after max attempts: status=%s attempts=%d", got.Status, got.Attempts)
	}
}

func TestBestEffortFailureIsDropped(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "interpret", runtime.Policy{BestEffort: true}, func(*runtime.Context) error {
		return errors.New("corrupt state")
	})
	run := h.enqueue(t, "interpret", nil)
	if _, err := h.worker.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := h.reload(t, run); got.Status != types.StatusDropped || got.Attempts != 1 {
		t.Fatalf("status=%s attempts=%d", got.Status, got.Attempts)
	}
}

func TestMalformedInputIsNeverRetried(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "save", runtime.Policy{Retryable: true}, func(*runtime.Context) error {
		return runtime.Malformed("missing participant_id")
	})
	run := h.enqueue(t, "save", nil)
	if _, err := h.worker.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := h.reload(t, run); got.Status != types.StatusDropped {
		t.Fatalf("status: want=%s got=%s", types.StatusDropped, got.Status)
	}
}

func TestPanicIsRecoveredAndRolledBack(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "boom", runtime.Policy{BestEffort: true}, func(jc *runtime.Context) error {
		if err := jc.DBC().DB(nil).Create(&activity.UserProgress{ParticipantID: "p1", TopicID: "loops"}).Error; err != nil {
			return err
		}
		panic("nil map write")
	})
	run := h.enqueue(t, "boom", nil)
	if _, err := h.worker.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	got := h.reload(t, run)
	if got.Status != types.StatusDropped || got.Error != "panic: nil map write" {
		t.Fatalf("status=%s error=%q", got.Status, got.Error)
	}
	var count int64
	h.db.Model(&activity.UserProgress{}).Count(&count)
	if count != 0 {
		t.Fatalf("write before panic should be rolled back, got %d rows", count)
	}
}

func TestDiscardRollsBackSwallowedFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "swallow", runtime.Policy{BestEffort: true}, func(jc *runtime.Context) error {
		if err := jc.DBC().DB(nil).Create(&activity.UserProgress{ParticipantID: "p1", TopicID: "loops"}).Error; err != nil {
			return err
		}
		jc.Discard()
		return nil
	})
	run := h.enqueue(t, "swallow", nil)
	if _, err := h.worker.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := h.reload(t, run); got.Status != types.StatusSucceeded {
		t.Fatalf("status: want=%s got=%s", types.StatusSucceeded, got.Status)
	}
	var count int64
	h.db.Model(&activity.UserProgress{}).Count(&count)
	if count != 0 {
		t.Fatalf("discarded write persisted: %d rows", count)
	}
}

func TestSessionAcquisitionFailureFollowsPolicy(t *testing.T) {
	h := newHarness(t, failingSessions{})
	ran := false
	h.register(t, "save", runtime.Policy{Retryable: true}, func(*runtime.Context) error {
		ran = true
		return nil
	})
	h.register(t, "interpret", runtime.Policy{BestEffort: true}, func(*runtime.Context) error {
		ran = true
		return nil
	})
	save := h.enqueue(t, "save", nil)
	interpret := h.enqueue(t, "interpret", nil)
	if _, err := h.worker.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if ran {
		t.Fatalf("handler must not run without a session")
	}
	if got := h.reload(t, save); got.Status != types.StatusQueued || got.Error == "" {
		t.Fatalf("retryable task: status=%s error=%q", got.Status, got.Error)
	}
	if got := h.reload(t, interpret); got.Status != types.StatusDropped {
		t.Fatalf("best-effort task: status=%s", got.Status)
	}
}

func TestUnknownKindFails(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "known", runtime.Policy{}, func(*runtime.Context) error { return nil })
	if _, err := h.disp.Enqueue(dbctx.Background(), "unknown", nil); err == nil {
		t.Fatalf("enqueue of unregistered kind should fail")
	}

	orphan := &types.TaskRun{Kind: "retired_kind", Status: types.StatusQueued, AvailableAt: time.Now().UTC()}
	if err := h.runs.Create(dbctx.Background(), orphan); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := h.worker.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if got := h.reload(t, orphan); got.Status != types.StatusFailed {
		t.Fatalf("status: want=%s got=%s", types.StatusFailed, got.Status)
	}
}

func TestPartitionRunsInEnqueueOrder(t *testing.T) {
	h := newHarness(t, nil)
	var order []string
	h.register(t, "ordered", runtime.Policy{Retryable: true, Partitioned: true}, func(jc *runtime.Context) error {
		order = append(order, jc.String("step"))
		return nil
	})
	for _, step := range []string{"a", "b", "c"} {
		h.enqueue(t, "ordered", map[string]any{"participant_id": "p1", "step": step})
	}
	h.enqueue(t, "ordered", map[string]any{"participant_id": "p2", "step": "x"})

	if n, err := h.worker.Drain(context.Background()); err != nil || n != 4 {
		t.Fatalf("drain: n=%d err=%v", n, err)
	}
	var p1 []string
	for _, s := range order {
		if s != "x" {
			p1 = append(p1, s)
		}
	}
	if len(p1) != 3 || p1[0] != "a" || p1[1] != "b" || p1[2] != "c" {
		t.Fatalf("partition order: %v", order)
	}
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	h := newHarness(t, nil)
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{30, maxRetryDelay},
	}
	for _, tc := range cases {
		if got := h.exec.RetryDelay(tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: want=%v got=%v", tc.attempt, tc.want, got)
		}
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)
	done := make(chan string, 1)
	h.register(t, "once", runtime.Policy{}, func(jc *runtime.Context) error {
		done <- jc.String("participant_id")
		return nil
	})
	h.enqueue(t, "once", map[string]any{"participant_id": "p1"})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.worker.Start(ctx) }()

	select {
	case got := <-done:
		if got != "p1" {
			t.Fatalf("handler args: %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("worker pool did not run the task")
	}
	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("start returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("worker pool did not stop")
	}
}
