package learner

import (
	"testing"

	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
)

func TestProfileUpsertBumpsVersion(t *testing.T) {
	db := testutil.DB(t)
	repo := NewProfileRepo(db, testutil.Logger(t))
	dbc := dbctx.Background()

	if got, err := repo.Get(dbc, "p1"); err != nil || got != nil {
		t.Fatalf("Get missing: %v err=%v", got, err)
	}
	if err := repo.Upsert(dbc, "p1", datatypes.JSON([]byte(`{"event_count":1}`))); err != nil {
		t.Fatalf("Upsert 1: %v", err)
	}
	if err := repo.Upsert(dbc, "p1", datatypes.JSON([]byte(`{"event_count":2}`))); err != nil {
		t.Fatalf("Upsert 2: %v", err)
	}
	got, err := repo.Get(dbc, "p1")
	if err != nil || got == nil {
		t.Fatalf("Get: %v err=%v", got, err)
	}
	if got.Version != 1 {
		t.Fatalf("version=%d", got.Version)
	}
	if string(got.Summary) != `{"event_count":2}` {
		t.Fatalf("summary=%s", got.Summary)
	}
}
