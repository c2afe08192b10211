package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/dispatch"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/pipeline"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/realtime"
	"github.com/yungbote/neurobridge-tutor/internal/services/interpreter"
	"github.com/yungbote/neurobridge-tutor/internal/services/learnerstate"
	"github.com/yungbote/neurobridge-tutor/internal/services/prompt"
)

type fixture struct {
	db     *gorm.DB
	repos  repos.Set
	state  learnerstate.Service
	hub    *realtime.Hub
	router *gin.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
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
	if err := pipeline.RegisterAll(reg, pipeline.Deps{Log: log, Repos: set, State: state, Interpreter: interp}); err != nil {
		t.Fatalf("register: %v", err)
	}
	hub := realtime.NewHub(log)

	events := NewEventHandler(log, db, disp, nil)
	activity := NewActivityHandler(log, db, disp)
	learners := NewLearnerHandler(log, state, db, disp)
	prompts := NewPromptHandler(log, state, prompt.NewCompiler(), nil)
	stream := NewRealtimeHandler(log, hub)
	tasks := NewTaskHandler(set.TaskRuns)
	health := NewHealthHandler(db, nil)

	r := gin.New()
	r.GET("/readyz", health.Ready)
	r.POST("/behavior/events", events.Ingest)
	r.POST("/ai/events", events.LogAIEvent)
	r.POST("/progress", activity.SaveProgress)
	r.POST("/submissions", activity.SaveSubmission)
	r.POST("/chat/messages", activity.SaveChatMessage)
	r.GET("/learners/:id/state", learners.GetState)
	r.POST("/learners/:id/snapshot", learners.RequestSnapshot)
	r.GET("/learners/:id/stream", stream.Stream)
	r.POST("/prompts/compile", prompts.Compile)
	r.GET("/tasks/:id", tasks.GetTask)

	return &fixture{db: db, repos: set, state: state, hub: hub, router: r}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func (f *fixture) taskKinds(t *testing.T, ids []string) []string {
	t.Helper()
	kinds := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, err := uuid.Parse(raw)
		if err != nil {
			t.Fatalf("task id %q: %v", raw, err)
		}
		run, err := f.repos.TaskRuns.GetByID(dbctx.Background(), id)
		if err != nil || run == nil {
			t.Fatalf("load task %s: %v", raw, err)
		}
		kinds = append(kinds, run.Kind)
	}
	return kinds
}

func (f *fixture) queued(t *testing.T) int64 {
	t.Helper()
	counts, err := f.repos.TaskRuns.CountByStatus(dbctx.Background())
	if err != nil {
		t.Fatalf("count tasks: %v", err)
	}
	var n int64
	for _, c := range counts {
		n += c
	}
	return n
}

type acceptedBody struct {
	Accepted int      `json:"accepted"`
	TaskIDs  []string `json:"task_ids"`
	TaskID   string   `json:"task_id"`
}

type errorBody struct {
	Error struct {
		Code  string `json:"code"`
		Field string `json:"field"`
	} `json:"error"`
}

const codeEdit = `{"participant_id":"p1","event_type":"code_edit","event_data":{"editor_name":"js","new_length":42}}`

func TestIngestSingleEventQueuesSaveAndInterpret(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/behavior/events", codeEdit)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: want=%d got=%d body=%s", http.StatusAccepted, rec.Code, rec.Body.String())
	}
	var body acceptedBody
	decodeBody(t, rec, &body)
	if body.Accepted != 1 {
		t.Fatalf("accepted: want=1 got=%d", body.Accepted)
	}
	kinds := f.taskKinds(t, body.TaskIDs)
	if len(kinds) != 2 || kinds[0] != runtime.KindSaveBehavior || kinds[1] != runtime.KindInterpretBehavior {
		t.Fatalf("kinds: got=%v", kinds)
	}
}

func TestIngestAcceptsArrayAndEnvelope(t *testing.T) {
	f := newFixture(t)
	idle := `{"participant_id":"p1","event_type":"user_idle","event_data":{"duration_ms":3000}}`

	rec := f.do(t, http.MethodPost, "/behavior/events", "["+codeEdit+","+idle+"]")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("array status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	var body acceptedBody
	decodeBody(t, rec, &body)
	if body.Accepted != 2 || len(body.TaskIDs) != 4 {
		t.Fatalf("array: accepted=%d tasks=%d", body.Accepted, len(body.TaskIDs))
	}

	rec = f.do(t, http.MethodPost, "/behavior/events", `{"events":[`+idle+`]}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("envelope status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	body = acceptedBody{}
	decodeBody(t, rec, &body)
	if body.Accepted != 1 {
		t.Fatalf("envelope: accepted=%d", body.Accepted)
	}
}

func TestIngestRejectsWholeBatchOnInvalidEvent(t *testing.T) {
	f := newFixture(t)
	bad := `{"participant_id":"p1","event_type":"user_idle","event_data":{"duration_ms":0}}`
	rec := f.do(t, http.MethodPost, "/behavior/events", "["+codeEdit+","+bad+"]")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: want=%d got=%d", http.StatusBadRequest, rec.Code)
	}
	var body errorBody
	decodeBody(t, rec, &body)
	if body.Error.Field != "duration_ms" || body.Error.Code != "validation_failed" {
		t.Fatalf("error: got=%+v", body.Error)
	}
	if n := f.queued(t); n != 0 {
		t.Fatalf("tasks queued for a rejected batch: %d", n)
	}
}

func TestIngestRejectsUnknownTypeAndEmptyBody(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/behavior/events", `{"participant_id":"p1","event_type":"teleport"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown type status: got=%d", rec.Code)
	}
	var body errorBody
	decodeBody(t, rec, &body)
	if body.Error.Field != "event_type" {
		t.Fatalf("unknown type field: got=%q", body.Error.Field)
	}

	if rec := f.do(t, http.MethodPost, "/behavior/events", "   "); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body status: got=%d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/behavior/events", "[]"); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty batch status: got=%d", rec.Code)
	}
}

func TestLogAIEventQueuesOnlyAuditTask(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/ai/events",
		`[{"participant_id":"p1","event_type":"ai_help_request","event_data":{"message":"why is my loop infinite?"}},`+
			`{"participant_id":"p1","event_type":"ai_response","event_data":{"text":"check the loop condition"}}]`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	var body acceptedBody
	decodeBody(t, rec, &body)
	kinds := f.taskKinds(t, body.TaskIDs)
	if len(kinds) != 2 || kinds[0] != runtime.KindLogAIEvent || kinds[1] != runtime.KindLogAIEvent {
		t.Fatalf("kinds: got=%v", kinds)
	}
}

func TestActivityEndpointsQueueTasks(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		path string
		body string
		kind string
	}{
		{"/progress", `{"participant_id":"p1","topic_id":"loops"}`, runtime.KindSaveProgress},
		{"/submissions", `{"participant_id":"p1","topic_id":"loops","code":"x","is_correct":false}`, runtime.KindSaveCodeSubmission},
		{"/chat/messages", `{"participant_id":"p1","role":"user","message":"hi"}`, runtime.KindSaveChatMessage},
	}
	for _, tc := range cases {
		rec := f.do(t, http.MethodPost, tc.path, tc.body)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("%s status: got=%d body=%s", tc.path, rec.Code, rec.Body.String())
		}
		var body acceptedBody
		decodeBody(t, rec, &body)
		if kinds := f.taskKinds(t, []string{body.TaskID}); kinds[0] != tc.kind {
			t.Fatalf("%s kind: want=%s got=%s", tc.path, tc.kind, kinds[0])
		}
	}
}

func TestActivityEndpointsValidateRequests(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		path string
		body string
	}{
		{"/progress", `{"participant_id":"p1"}`},
		{"/submissions", `{"participant_id":"p1","topic_id":"loops","code":"x"}`},
		{"/chat/messages", `{"participant_id":"p1","role":"robot","message":"hi"}`},
	}
	for _, tc := range cases {
		if rec := f.do(t, http.MethodPost, tc.path, tc.body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s status: want=400 got=%d", tc.path, rec.Code)
		}
	}
	if n := f.queued(t); n != 0 {
		t.Fatalf("tasks queued for invalid requests: %d", n)
	}
}

func TestGetStateReturnsFreshSummaryWithoutWriting(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/learners/p-new/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		State learner.Summary `json:"state"`
	}
	decodeBody(t, rec, &body)
	if !body.State.IsNewUser || body.State.ParticipantID != "p-new" {
		t.Fatalf("state: got=%+v", body.State)
	}
	profile, err := f.repos.Profiles.Get(dbctx.Background(), "p-new")
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if profile != nil {
		t.Fatalf("GET state must not create a profile")
	}
}

func TestRequestSnapshotQueuesForcedSnapshot(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/learners/p1/snapshot?rebuild=true", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	var body acceptedBody
	decodeBody(t, rec, &body)
	id := uuid.MustParse(body.TaskID)
	run, err := f.repos.TaskRuns.GetByID(dbctx.Background(), id)
	if err != nil || run == nil {
		t.Fatalf("load task: %v", err)
	}
	var args map[string]any
	if err := json.Unmarshal(run.Payload, &args); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if run.Kind != runtime.KindSnapshotState || args["force"] != true || args["rebuild"] != true {
		t.Fatalf("task: kind=%s args=%v", run.Kind, args)
	}

	if rec := f.do(t, http.MethodPost, "/learners/p1/snapshot?rebuild=maybe", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad rebuild flag status: got=%d", rec.Code)
	}
}

func TestCompileLoadsStoredStateForParticipant(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/prompts/compile",
		`{"participant_id":"p1","user_message":"help","retrieved_context":[],"mode":"learning","content_title":"Loops"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	var out prompt.Output
	decodeBody(t, rec, &out)
	if !strings.Contains(out.SystemPrompt, "STUDENT INFO: This is a new student.") {
		t.Fatalf("expected new-student framing, got:\n%s", out.SystemPrompt)
	}
	if len(out.Messages) != 1 || out.Messages[0].Role != "user" || out.Messages[0].Content != "help" {
		t.Fatalf("messages: got=%+v", out.Messages)
	}
}

func TestCompileNormalizesInlineLegacyMastery(t *testing.T) {
	f := newFixture(t)
	for name, state := range map[string]string{
		"bare probability": `{"is_new_user":false,"bkt_models":{"loops":0.9}}`,
		"legacy key":       `{"is_new_user":false,"bkt_model":{"loops":{"mastery_prob":0.9}}}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, "/prompts/compile",
				`{"user_state":`+state+`,"user_message":"next?","retrieved_context":[],"mode":"learning","content_title":"loops"}`)
			if rec.Code != http.StatusOK {
				t.Fatalf("status: got=%d body=%s", rec.Code, rec.Body.String())
			}
			var out prompt.Output
			decodeBody(t, rec, &out)
			if !strings.Contains(out.SystemPrompt, "advanced (probability: 0.90)") {
				t.Fatalf("expected advanced tier, got:\n%s", out.SystemPrompt)
			}
		})
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	f := newFixture(t)
	body := `{"user_state":{"is_new_user":false,"emotion_state":{"current_sentiment":"confused"},"bkt_models":{"loops":{"mastery_prob":0.6}}},` +
		`"retrieved_context":["for loops repeat"],"user_message":"why?","mode":"test","content_title":"loops"}`
	first := f.do(t, http.MethodPost, "/prompts/compile", body)
	second := f.do(t, http.MethodPost, "/prompts/compile", body)
	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("status: got=%d/%d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("compile output differs between identical requests")
	}
}

func TestStreamDeliversParticipantNotifications(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/learners/p1/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.router.ServeHTTP(rec, req)
	}()

	channel := realtime.ParticipantChannel("p1")
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Subscribers(channel) == 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	f.hub.Broadcast(realtime.Message{Channel: channel, Event: realtime.EventLearnerStateChanged, Data: map[string]any{"participant_id": "p1"}})
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("content type: got=%q", got)
	}
	if !strings.Contains(rec.Body.String(), "event: LearnerStateChanged") {
		t.Fatalf("stream body missing event: %q", rec.Body.String())
	}
	if n := f.hub.Subscribers(channel); n != 0 {
		t.Fatalf("subscribers after disconnect: want=0 got=%d", n)
	}
}

func TestGetTask(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodGet, "/tasks/not-a-uuid", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid id status: got=%d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/tasks/"+uuid.NewString(), ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing task status: got=%d", rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/progress", `{"participant_id":"p1","topic_id":"loops"}`)
	var accepted acceptedBody
	decodeBody(t, rec, &accepted)
	rec = f.do(t, http.MethodGet, "/tasks/"+accepted.TaskID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d", rec.Code)
	}
	var body struct {
		Task struct {
			Kind   string `json:"kind"`
			Status string `json:"status"`
		} `json:"task"`
	}
	decodeBody(t, rec, &body)
	if body.Task.Kind != runtime.KindSaveProgress || body.Task.Status != "queued" {
		t.Fatalf("task: got=%+v", body.Task)
	}
}

func TestReadyPingsDatabase(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got=%d body=%s", rec.Code, rec.Body.String())
	}
}
