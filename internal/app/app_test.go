package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/neurobridge-tutor/internal/config"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "tutor.db")
	cfg.Worker.Concurrency = 1
	cfg.Worker.PollInterval = 10 * time.Millisecond
	a, err := New(context.Background(), logger.NewNop(), cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func TestSingleNodeIngestThenDrain(t *testing.T) {
	a := newTestApp(t)
	if a.Clients.Temporal != nil || a.Clients.Redis != nil {
		t.Fatalf("expected in-process backends without redis or temporal")
	}

	body := `{"participant_id":"p1","event_type":"test_submission","event_data":{"topic_id":"loops","code":{"js":"x"},"is_correct":true}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/behavior/events", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ingest status: got=%d body=%s", rec.Code, rec.Body.String())
	}

	// interpret_behavior queues the mastery update, so drain until idle.
	total := 0
	for i := 0; i < 5; i++ {
		n, err := a.Drain(context.Background())
		if err != nil {
			t.Fatalf("Drain: %v", err)
		}
		if n == 0 {
			break
		}
		total += n
	}
	if total < 3 {
		t.Fatalf("tasks run: want>=3 got=%d", total)
	}

	state, err := a.Services.State.Get(dbctx.Background(), "p1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	rec2, ok := state.BKTModels["loops"]
	if !ok || rec2.MasteryProb <= 0 {
		t.Fatalf("mastery after correct submission: got=%+v", state.BKTModels)
	}
}

func TestHealthAndReadyRoutes(t *testing.T) {
	a := newTestApp(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		a.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s status: got=%d body=%s", path, rec.Code, rec.Body.String())
		}
	}
}
