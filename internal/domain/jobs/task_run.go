package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusDropped   = "dropped"
)

// TaskRun is one durable unit of queued work. PartitionKey groups tasks that
// must run one at a time in Seq order; an empty key means no ordering.
type TaskRun struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Kind         string         `gorm:"column:kind;not null;index" json:"kind"`
	PartitionKey string         `gorm:"column:partition_key;not null;default:'';index:idx_task_run_partition,priority:1" json:"partition_key,omitempty"`
	Seq          int64          `gorm:"column:seq;not null;index:idx_task_run_partition,priority:2" json:"seq"`
	Status       string         `gorm:"column:status;not null;index" json:"status"`
	Attempts     int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error        string         `gorm:"column:error" json:"error,omitempty"`
	AvailableAt  time.Time      `gorm:"column:available_at;not null;index" json:"available_at"`
	LockedAt     *time.Time     `gorm:"column:locked_at" json:"locked_at,omitempty"`
	HeartbeatAt  *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	LastErrorAt  *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	FinishedAt   *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	Payload      datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
}

func (TaskRun) TableName() string { return "task_run" }

func (t *TaskRun) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (t *TaskRun) Terminal() bool {
	switch t.Status {
	case StatusSucceeded, StatusFailed, StatusDropped:
		return true
	default:
		return false
	}
}
