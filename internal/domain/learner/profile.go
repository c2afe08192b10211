package learner

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Profile is the persisted row holding the current summary of a participant.
type Profile struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ParticipantID string         `gorm:"column:participant_id;not null;uniqueIndex" json:"participant_id"`
	Summary       datatypes.JSON `gorm:"column:summary" json:"summary"`
	Version       int64          `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt     time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null" json:"updated_at"`
}

func (Profile) TableName() string { return "learner_profile" }

func (p *Profile) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
