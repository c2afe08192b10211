package learnerstate

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/yungbote/neurobridge-tutor/internal/domain/activity"
	"github.com/yungbote/neurobridge-tutor/internal/domain/behavior"
	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/realtime"
)

// snapshotDue reports whether the summary has drifted far enough from its
// last snapshot, by event count or elapsed time, to take another.
func (s *service) snapshotDue(sum *learner.Summary, now time.Time) bool {
	if sum.LastSnapshotAt == nil {
		return sum.EventCount > 0
	}
	if n := s.opts.SnapshotEventInterval; n > 0 && sum.EventsSinceSnapshot >= n {
		return true
	}
	if d := s.opts.SnapshotTimeInterval; d > 0 && sum.EventsSinceSnapshot > 0 && now.Sub(*sum.LastSnapshotAt) >= d {
		return true
	}
	return false
}

func (s *service) MaybeCreateSnapshot(dbc dbctx.Context, participantID string) (bool, error) {
	return s.snapshot(dbc, participantID, false)
}

func (s *service) CreateSnapshot(dbc dbctx.Context, participantID string) error {
	_, err := s.snapshot(dbc, participantID, true)
	return err
}

func (s *service) snapshot(dbc dbctx.Context, participantID string, force bool) (bool, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return false, ErrMissingParticipant
	}
	unlock, err := s.opts.Locker.Lock(ctxOf(dbc), participantID)
	if err != nil {
		return false, err
	}
	defer unlock()

	sum, err := s.store.Load(dbc, participantID)
	if err != nil {
		return false, fmt.Errorf("load learner state: %w", err)
	}
	if sum == nil {
		return false, nil
	}
	now := s.opts.Now()
	if !force && !s.snapshotDue(sum, now) {
		return false, nil
	}

	data, err := sum.ProfileData()
	if err != nil {
		return false, err
	}
	raw, err := json.Marshal(map[string]any{"profile_data": data})
	if err != nil {
		return false, fmt.Errorf("encode snapshot: %w", err)
	}
	row := &activity.EventLog{
		ParticipantID: participantID,
		EventType:     string(behavior.EventStateSnapshot),
		EventData:     datatypes.JSON(raw),
		Timestamp:     now,
	}
	if err := s.events.Create(dbc, row); err != nil {
		return false, fmt.Errorf("write snapshot: %w", err)
	}
	sum.MarkSnapshot(now)
	if err := s.save(dbc, sum); err != nil {
		return false, err
	}
	s.log.Info("Learner snapshot created", "participant_id", participantID, "event_count", sum.EventCount)
	dbctx.AfterCommit(ctxOf(dbc), func() {
		s.publish(ctxOf(dbc), realtime.EventSnapshotCreated, sum)
	})
	return true, nil
}

func (s *service) Recover(dbc dbctx.Context, participantID string) (*learner.Summary, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, ErrMissingParticipant
	}
	sum := learner.NewSummary(participantID, s.opts.Now())
	var afterSeq int64

	snap, err := s.events.LatestSnapshot(dbc, participantID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if snap != nil {
		restored, err := summaryFromSnapshot(participantID, snap)
		if err != nil {
			s.log.Warn("unreadable snapshot; replaying full history", "participant_id", participantID, "snapshot_id", snap.ID, "error", err)
		} else {
			restored.MarkSnapshot(snap.Timestamp.UTC())
			sum = restored
			afterSeq = snap.Seq
		}
	}

	rows, err := s.events.ListAfter(dbc, participantID, afterSeq)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	if s.opts.Replayer == nil {
		if len(rows) > 0 {
			s.log.Warn("no replayer configured; later events not applied", "participant_id", participantID, "events", len(rows))
		}
		return sum, nil
	}
	replayed := 0
	for _, row := range rows {
		ev, err := eventFromLog(row)
		if err != nil {
			s.log.Warn("skipping unreadable logged event", "participant_id", participantID, "event_log_id", row.ID, "error", err)
			continue
		}
		s.opts.Replayer.Replay(sum, ev)
		replayed++
	}
	s.log.Info("Learner state recovered", "participant_id", participantID, "from_snapshot", snap != nil, "replayed", replayed)
	return sum, nil
}

func (s *service) Rebuild(dbc dbctx.Context, participantID string) (*learner.Summary, error) {
	participantID = strings.TrimSpace(participantID)
	if participantID == "" {
		return nil, ErrMissingParticipant
	}
	unlock, err := s.opts.Locker.Lock(ctxOf(dbc), participantID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	sum, err := s.Recover(dbc, participantID)
	if err != nil {
		return nil, err
	}
	if err := s.save(dbc, sum); err != nil {
		return nil, err
	}
	return sum, nil
}

func summaryFromSnapshot(participantID string, row *activity.EventLog) (*learner.Summary, error) {
	var payload struct {
		ProfileData map[string]any `json:"profile_data"`
	}
	if err := json.Unmarshal(row.EventData, &payload); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if payload.ProfileData == nil {
		return nil, fmt.Errorf("snapshot has no profile_data")
	}
	return learner.SummaryFromProfileData(participantID, payload.ProfileData)
}

func eventFromLog(row *activity.EventLog) (*behavior.Event, error) {
	data := json.RawMessage(row.EventData)
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	raw, err := json.Marshal(map[string]any{
		"participant_id": row.ParticipantID,
		"event_type":     row.EventType,
		"event_data":     data,
		"timestamp":      row.Timestamp.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, err
	}
	return behavior.Decode(raw)
}
