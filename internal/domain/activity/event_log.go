package activity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventLog is the verbatim audit record of one behavior event. State
// snapshots are stored here too, as state_snapshot events.
//
// Seq is the per-participant insertion order. Replay after a snapshot
// follows Seq, never the client supplied occurred_at. AuditOnly rows were
// logged without being interpreted and are never replayed.
type EventLog struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantID string         `gorm:"column:participant_id;not null;index:idx_event_log_participant_ts,priority:1;index:idx_event_log_participant_seq,priority:1" json:"participant_id"`
	Seq           int64          `gorm:"column:seq;not null;default:0;index:idx_event_log_participant_seq,priority:2" json:"seq"`
	AuditOnly     bool           `gorm:"column:audit_only;not null;default:false" json:"audit_only,omitempty"`
	EventType     string         `gorm:"column:event_type;not null;index" json:"event_type"`
	EventData     datatypes.JSON `gorm:"column:event_data" json:"event_data"`
	Timestamp     time.Time      `gorm:"column:occurred_at;not null;index:idx_event_log_participant_ts,priority:2" json:"timestamp"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

func (EventLog) TableName() string { return "event_logs" }

func (e *EventLog) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
