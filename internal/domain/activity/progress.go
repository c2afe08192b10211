package activity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserProgress struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantID string    `gorm:"column:participant_id;not null;index" json:"participant_id"`
	TopicID       string    `gorm:"column:topic_id;not null;index" json:"topic_id"`
	CompletedAt   time.Time `gorm:"column:completed_at;not null" json:"completed_at"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (UserProgress) TableName() string { return "user_progress" }

func (p *UserProgress) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CompletedAt.IsZero() {
		p.CompletedAt = time.Now().UTC()
	}
	return nil
}

type CodeSubmission struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantID string    `gorm:"column:participant_id;not null;index" json:"participant_id"`
	TopicID       string    `gorm:"column:topic_id;not null;index" json:"topic_id"`
	Code          string    `gorm:"column:code;not null" json:"code"`
	IsCorrect     bool      `gorm:"column:is_correct;not null" json:"is_correct"`
	SubmittedAt   time.Time `gorm:"column:submitted_at;not null" json:"submitted_at"`
	CreatedAt     time.Time `gorm:"not null" json:"created_at"`
}

func (CodeSubmission) TableName() string { return "submissions" }

func (s *CodeSubmission) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now().UTC()
	}
	return nil
}
