package chat

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one persisted tutoring turn.
type Message struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantID string         `gorm:"column:participant_id;not null;index:idx_chat_participant_ts,priority:1" json:"participant_id"`
	Role          string         `gorm:"column:role;not null" json:"role"`
	Message       string         `gorm:"column:message;not null" json:"message"`
	UserState     datatypes.JSON `gorm:"column:user_state" json:"user_state,omitempty"`
	AIContext     datatypes.JSON `gorm:"column:ai_context" json:"ai_context,omitempty"`
	Timestamp     time.Time      `gorm:"column:occurred_at;not null;index:idx_chat_participant_ts,priority:2" json:"timestamp"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
}

func (Message) TableName() string { return "chat_history" }

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return nil
}
