package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/domain/activity"
	"github.com/yungbote/neurobridge-tutor/internal/domain/chat"
	"github.com/yungbote/neurobridge-tutor/internal/domain/jobs"
	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&activity.EventLog{},
		&activity.UserProgress{},
		&activity.CodeSubmission{},
		&chat.Message{},
		&learner.Profile{},
		&jobs.TaskRun{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
