package pipeline

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/config"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-tutor/internal/domain/activity"
	types "github.com/yungbote/neurobridge-tutor/internal/domain/jobs"
	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/dispatch"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/worker"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/services/interpreter"
	"github.com/yungbote/neurobridge-tutor/internal/services/learnerstate"
)

type stack struct {
	db     *gorm.DB
	repos  repos.Set
	state  learnerstate.Service
	disp   *dispatch.Dispatcher
	worker *worker.Worker
}

func newStack(t *testing.T) *stack {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)
	rules := interpreter.Rules{Model: learner.DefaultBKT(), EditWindow: 100}
	state := learnerstate.New(log, learnerstate.NewProfileStore(set.Profiles), set.EventLogs, learnerstate.Options{
		Replayer:              rules,
		SnapshotEventInterval: 25,
		SnapshotTimeInterval:  time.Hour,
	})

	reg := runtime.NewRegistry()
	disp := dispatch.New(log, set.TaskRuns, reg, nil)
	interp := interpreter.New(log, state, rules, nil, disp)
	if err := RegisterAll(reg, Deps{Log: log, Repos: set, State: state, Interpreter: interp}); err != nil {
		t.Fatalf("register: %v", err)
	}
	cfg := config.WorkerConfig{Concurrency: 1, MaxAttempts: 3, RetryBaseDelay: time.Second, StaleRunning: time.Minute}
	exec := worker.NewExecutor(log, set.TaskRuns, reg, runtime.NewSessionFactory(db), cfg)
	return &stack{
		db:     db,
		repos:  set,
		state:  state,
		disp:   disp,
		worker: worker.NewWorker(log, set.TaskRuns, exec, cfg),
	}
}

func (s *stack) enqueue(t *testing.T, kind string, args map[string]any) *types.TaskRun {
	t.Helper()
	run, err := s.disp.Enqueue(dbctx.Background(), kind, args)
	if err != nil {
		t.Fatalf("enqueue %s: %v", kind, err)
	}
	return run
}

func (s *stack) drain(t *testing.T) int {
	t.Helper()
	n, err := s.worker.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	return n
}

func (s *stack) status(t *testing.T, run *types.TaskRun) *types.TaskRun {
	t.Helper()
	got, err := s.repos.TaskRuns.GetByID(dbctx.Background(), run.ID)
	if err != nil || got == nil {
		t.Fatalf("reload task: %v", err)
	}
	return got
}

func submission(pid, topic string, correct bool) map[string]any {
	return map[string]any{
		"participant_id": pid,
		"event_type":     "test_submission",
		"event_data": map[string]any{
			"topic_id":   topic,
			"code":       map[string]any{"js": "for (let i = 0; i < 3; i++) {}"},
			"is_correct": correct,
		},
	}
}

func TestSubmissionIsVisibleToNextRead(t *testing.T) {
	s := newStack(t)
	s.enqueue(t, runtime.KindInterpretBehavior, submission("p1", "loops", true))

	// interpret_behavior, then the update_bkt_and_snapshot task it enqueued.
	if n := s.drain(t); n != 2 {
		t.Fatalf("tasks run: want=2 got=%d", n)
	}
	sum, err := s.state.Get(dbctx.Background(), "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	rec, ok := sum.Mastery("loops")
	if !ok {
		t.Fatalf("mastery for loops missing after submission")
	}
	if rec.Observations != 1 || rec.Correct != 1 {
		t.Fatalf("mastery record: %+v", rec)
	}
	if rec.MasteryProb <= learner.DefaultBKT().PInit {
		t.Fatalf("correct submission should raise mastery above prior, got %v", rec.MasteryProb)
	}
	if sum.LastSnapshotAt == nil {
		t.Fatalf("first mastery update should write the initial snapshot")
	}
	snap, err := s.repos.EventLogs.LatestSnapshot(dbctx.Background(), "p1")
	if err != nil || snap == nil {
		t.Fatalf("snapshot row: %v %v", snap, err)
	}
}

func TestRedeliveredMasteryTaskIsIdempotent(t *testing.T) {
	s := newStack(t)
	run := s.enqueue(t, runtime.KindUpdateBKTAndSnapshot, map[string]any{
		"participant_id": "p1", "topic_id": "loops", "is_correct": true,
	})
	s.drain(t)
	first, _ := s.state.Get(dbctx.Background(), "p1")
	before, _ := first.Mastery("loops")

	// Simulate the queue delivering the same task again.
	if err := s.db.Model(&types.TaskRun{}).Where("id = ?", run.ID).
		Updates(map[string]any{"status": types.StatusQueued, "available_at": time.Now().UTC().Add(-time.Second)}).Error; err != nil {
		t.Fatalf("reset task: %v", err)
	}
	s.drain(t)
	second, _ := s.state.Get(dbctx.Background(), "p1")
	after, _ := second.Mastery("loops")
	if after.Observations != before.Observations || after.MasteryProb != before.MasteryProb {
		t.Fatalf("redelivery changed mastery: before=%+v after=%+v", before, after)
	}

	// A distinct submission still moves mastery.
	s.enqueue(t, runtime.KindUpdateBKTAndSnapshot, map[string]any{
		"participant_id": "p1", "topic_id": "loops", "is_correct": true,
	})
	s.drain(t)
	third, _ := s.state.Get(dbctx.Background(), "p1")
	moved, _ := third.Mastery("loops")
	if moved.Observations != before.Observations+1 || moved.MasteryProb <= before.MasteryProb {
		t.Fatalf("distinct observation should raise mastery: before=%+v after=%+v", before, moved)
	}
}

func TestInterpretWithoutParticipantIsDropped(t *testing.T) {
	s := newStack(t)
	run := s.enqueue(t, runtime.KindInterpretBehavior, map[string]any{
		"event_type": "user_idle",
		"event_data": map[string]any{"duration_ms": 5000},
	})
	s.drain(t)
	if got := s.status(t, run); got.Status != types.StatusDropped || got.Attempts != 1 {
		t.Fatalf("status=%s attempts=%d", got.Status, got.Attempts)
	}
}

func TestInterpretSwallowsInvalidEvent(t *testing.T) {
	s := newStack(t)
	run := s.enqueue(t, runtime.KindInterpretBehavior, map[string]any{
		"participant_id": "p1",
		"event_type":     "user_idle",
		"event_data":     map[string]any{"duration_ms": 0},
	})
	s.drain(t)
	if got := s.status(t, run); got.Status != types.StatusSucceeded {
		t.Fatalf("status: want=%s got=%s", types.StatusSucceeded, got.Status)
	}
	sum, _ := s.state.Get(dbctx.Background(), "p1")
	if sum.EventCount != 0 {
		t.Fatalf("invalid event must not mutate state, event_count=%d", sum.EventCount)
	}
}

func TestInterpretationFollowsSubmissionOrder(t *testing.T) {
	s := newStack(t)
	for _, correct := range []bool{false, false, true} {
		s.enqueue(t, runtime.KindInterpretBehavior, submission("p1", "loops", correct))
	}
	s.enqueue(t, runtime.KindInterpretBehavior, map[string]any{
		"participant_id": "p2",
		"event_type":     "ai_help_request",
		"event_data":     map[string]any{"message": "why does my loop not stop?", "content_title": "loops"},
	})
	s.drain(t)

	p1, _ := s.state.Get(dbctx.Background(), "p1")
	rec, _ := p1.Mastery("loops")
	if rec.Observations != 3 || rec.Correct != 1 {
		t.Fatalf("p1 mastery: %+v", rec)
	}
	c := p1.BehaviorPatterns.Counters
	if c.TestSubmissions != 3 || c.TestPasses != 1 {
		t.Fatalf("p1 counters: %+v", c)
	}
	p2, _ := s.state.Get(dbctx.Background(), "p2")
	if p2.QuestionCount("loops") != 1 {
		t.Fatalf("p2 question count: %d", p2.QuestionCount("loops"))
	}

	runs, err := s.repos.TaskRuns.ListByPartition(dbctx.Background(), "p1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, r := range runs {
		if r.Status != types.StatusSucceeded {
			t.Fatalf("task %s %s: status=%s", r.Kind, r.ID, r.Status)
		}
	}
}

func TestSaveBehaviorPersistsAndDropsInvalid(t *testing.T) {
	s := newStack(t)
	ok := s.enqueue(t, runtime.KindSaveBehavior, map[string]any{
		"participant_id": "p1",
		"event_type":     "user_idle",
		"event_data":     map[string]any{"duration_ms": 5000},
	})
	bad := s.enqueue(t, runtime.KindSaveBehavior, map[string]any{
		"participant_id": "p1",
		"event_type":     "coding_problem",
		"event_data":     map[string]any{"editor": "js", "consecutive_edits": 3, "severity": "extreme"},
	})
	ai := s.enqueue(t, runtime.KindLogAIEvent, map[string]any{
		"participant_id": "p1",
		"event_type":     "ai_help_request",
		"event_data":     map[string]any{"message": "hint please"},
	})
	s.drain(t)

	if got := s.status(t, ok); got.Status != types.StatusSucceeded {
		t.Fatalf("valid behavior: status=%s error=%q", got.Status, got.Error)
	}
	if got := s.status(t, bad); got.Status != types.StatusDropped {
		t.Fatalf("invalid behavior: status=%s", got.Status)
	}
	if got := s.status(t, ai); got.Status != types.StatusSucceeded {
		t.Fatalf("ai event: status=%s error=%q", got.Status, got.Error)
	}
	for _, run := range []*types.TaskRun{ok, ai} {
		if run.PartitionKey != "p1" {
			t.Fatalf("%s task not partitioned: %q", run.Kind, run.PartitionKey)
		}
	}
	n, err := s.repos.EventLogs.CountByParticipant(dbctx.Background(), "p1")
	if err != nil || n != 2 {
		t.Fatalf("event log rows: want=2 got=%d err=%v", n, err)
	}
}

func TestSaveTasksRetryOnPersistenceFailure(t *testing.T) {
	s := newStack(t)
	if err := s.db.Migrator().DropTable(&activity.UserProgress{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	run := s.enqueue(t, runtime.KindSaveProgress, map[string]any{"participant_id": "p1", "topic_id": "loops"})
	s.drain(t)
	got := s.status(t, run)
	if got.Status != types.StatusQueued || got.Attempts != 1 || got.Error == "" {
		t.Fatalf("status=%s attempts=%d error=%q", got.Status, got.Attempts, got.Error)
	}
}

func TestSaveTasksCreateRecords(t *testing.T) {
	s := newStack(t)
	s.enqueue(t, runtime.KindSaveProgress, map[string]any{"participant_id": "p1", "topic_id": "loops"})
	s.enqueue(t, runtime.KindSaveCodeSubmission, map[string]any{
		"participant_id": "p1", "topic_id": "loops", "code": "while(true){}", "is_correct": false,
	})
	s.enqueue(t, runtime.KindSaveChatMessage, map[string]any{
		"participant_id": "p1", "role": "user", "message": "I am stuck",
		"timestamp": "2026-03-01T09:00:00Z",
	})
	missing := s.enqueue(t, runtime.KindSaveChatMessage, map[string]any{"message": "orphan"})
	if n := s.drain(t); n != 4 {
		t.Fatalf("tasks run: want=4 got=%d", n)
	}

	progress, _ := s.repos.Progress.ListByParticipant(dbctx.Background(), "p1")
	subs, _ := s.repos.Submissions.ListByParticipant(dbctx.Background(), "p1")
	msgs, _ := s.repos.Chat.ListRecent(dbctx.Background(), "p1", 10)
	if len(progress) != 1 || len(subs) != 1 || len(msgs) != 1 {
		t.Fatalf("records: progress=%d submissions=%d chat=%d", len(progress), len(subs), len(msgs))
	}
	if subs[0].Code != "while(true){}" || subs[0].IsCorrect {
		t.Fatalf("submission: %+v", subs[0])
	}
	if !msgs[0].Timestamp.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("chat timestamp: %v", msgs[0].Timestamp)
	}
	if got := s.status(t, missing); got.Status != types.StatusDropped {
		t.Fatalf("chat without participant: status=%s", got.Status)
	}
}

func TestSnapshotStateForce(t *testing.T) {
	s := newStack(t)
	s.enqueue(t, runtime.KindInterpretBehavior, map[string]any{
		"participant_id": "p1",
		"event_type":     "code_edit",
		"event_data":     map[string]any{"editor_name": "js", "new_length": 40},
	})
	s.drain(t)
	if snap, _ := s.repos.EventLogs.LatestSnapshot(dbctx.Background(), "p1"); snap != nil {
		t.Fatalf("no snapshot expected before the forced one")
	}
	s.enqueue(t, runtime.KindSnapshotState, map[string]any{"participant_id": "p1", "force": true})
	s.drain(t)
	snap, err := s.repos.EventLogs.LatestSnapshot(dbctx.Background(), "p1")
	if err != nil || snap == nil {
		t.Fatalf("forced snapshot missing: %v", err)
	}
}
