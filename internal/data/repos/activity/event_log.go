package activity

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos/repoerr"
	types "github.com/yungbote/neurobridge-tutor/internal/domain/activity"
	"github.com/yungbote/neurobridge-tutor/internal/domain/behavior"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type EventLogRepo interface {
	Create(dbc dbctx.Context, row *types.EventLog) error
	CreateFromBehavior(dbc dbctx.Context, ev *behavior.Event, auditOnly bool) (*types.EventLog, error)
	LatestSnapshot(dbc dbctx.Context, participantID string) (*types.EventLog, error)
	ListAfter(dbc dbctx.Context, participantID string, afterSeq int64) ([]*types.EventLog, error)
	CountByParticipant(dbc dbctx.Context, participantID string) (int64, error)
}

type eventLogRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEventLogRepo(db *gorm.DB, baseLog *logger.Logger) EventLogRepo {
	return &eventLogRepo{db: db, log: baseLog.With("repo", "EventLogRepo")}
}

// Create assigns the next per-participant Seq when the row has none. Writers
// for one participant run in a single task partition, so max+1 does not race.
func (r *eventLogRepo) Create(dbc dbctx.Context, row *types.EventLog) error {
	db := dbc.DB(r.db)
	if row.Seq == 0 {
		var last int64
		if err := db.Model(&types.EventLog{}).
			Where("participant_id = ?", row.ParticipantID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error; err != nil {
			return repoerr.Wrap("next event_log seq", err)
		}
		row.Seq = last + 1
	}
	return repoerr.Wrap("create event_log", db.Create(row).Error)
}

func (r *eventLogRepo) CreateFromBehavior(dbc dbctx.Context, ev *behavior.Event, auditOnly bool) (*types.EventLog, error) {
	data, err := ev.DataMap()
	if err != nil {
		return nil, repoerr.Wrap("encode event_data", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, repoerr.Wrap("encode event_data", err)
	}
	row := &types.EventLog{
		ParticipantID: ev.ParticipantID,
		EventType:     string(ev.Type),
		EventData:     datatypes.JSON(raw),
		Timestamp:     ev.Timestamp.UTC(),
		AuditOnly:     auditOnly,
	}
	if err := r.Create(dbc, row); err != nil {
		return nil, err
	}
	return row, nil
}

func (r *eventLogRepo) LatestSnapshot(dbc dbctx.Context, participantID string) (*types.EventLog, error) {
	var rows []*types.EventLog
	if err := dbc.DB(r.db).
		Where("participant_id = ? AND event_type = ?", participantID, string(behavior.EventStateSnapshot)).
		Order("seq DESC").
		Limit(1).
		Find(&rows).Error; err != nil {
		return nil, repoerr.Wrap("latest snapshot", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// ListAfter returns the participant's replayable events with Seq greater
// than afterSeq, in insertion order. Snapshots and audit-only rows are
// excluded.
func (r *eventLogRepo) ListAfter(dbc dbctx.Context, participantID string, afterSeq int64) ([]*types.EventLog, error) {
	var out []*types.EventLog
	if err := dbc.DB(r.db).
		Where("participant_id = ? AND event_type <> ? AND audit_only = ? AND seq > ?",
			participantID, string(behavior.EventStateSnapshot), false, afterSeq).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, repoerr.Wrap("list event_log", err)
	}
	return out, nil
}

func (r *eventLogRepo) CountByParticipant(dbc dbctx.Context, participantID string) (int64, error) {
	var n int64
	if err := dbc.DB(r.db).Model(&types.EventLog{}).Where("participant_id = ?", participantID).Count(&n).Error; err != nil {
		return 0, repoerr.Wrap("count event_log", err)
	}
	return n, nil
}
