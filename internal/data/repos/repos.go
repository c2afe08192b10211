package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos/activity"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos/chat"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos/jobs"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos/learner"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos/repoerr"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// ErrPersistence is matched with errors.Is on any repository failure.
var ErrPersistence = repoerr.ErrPersistence

// ErrPartitionBusy is returned by TaskRunRepo.ClaimByID while an earlier task
// of the same partition has not finished.
var ErrPartitionBusy = jobs.ErrPartitionBusy

type EventLogRepo = activity.EventLogRepo
type ProgressRepo = activity.ProgressRepo
type SubmissionRepo = activity.SubmissionRepo
type ChatMessageRepo = chat.MessageRepo
type LearnerProfileRepo = learner.ProfileRepo
type TaskRunRepo = jobs.TaskRunRepo

func NewEventLogRepo(db *gorm.DB, baseLog *logger.Logger) EventLogRepo {
	return activity.NewEventLogRepo(db, baseLog)
}
func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return activity.NewProgressRepo(db, baseLog)
}
func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	return activity.NewSubmissionRepo(db, baseLog)
}
func NewChatMessageRepo(db *gorm.DB, baseLog *logger.Logger) ChatMessageRepo {
	return chat.NewMessageRepo(db, baseLog)
}
func NewLearnerProfileRepo(db *gorm.DB, baseLog *logger.Logger) LearnerProfileRepo {
	return learner.NewProfileRepo(db, baseLog)
}
func NewTaskRunRepo(db *gorm.DB, baseLog *logger.Logger) TaskRunRepo {
	return jobs.NewTaskRunRepo(db, baseLog)
}

// Set groups every repository the service needs.
type Set struct {
	EventLogs   EventLogRepo
	Progress    ProgressRepo
	Submissions SubmissionRepo
	Chat        ChatMessageRepo
	Profiles    LearnerProfileRepo
	TaskRuns    TaskRunRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger) Set {
	return Set{
		EventLogs:   NewEventLogRepo(db, baseLog),
		Progress:    NewProgressRepo(db, baseLog),
		Submissions: NewSubmissionRepo(db, baseLog),
		Chat:        NewChatMessageRepo(db, baseLog),
		Profiles:    NewLearnerProfileRepo(db, baseLog),
		TaskRuns:    NewTaskRunRepo(db, baseLog),
	}
}
