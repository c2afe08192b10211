package activity

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos/repoerr"
	types "github.com/yungbote/neurobridge-tutor/internal/domain/activity"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type ProgressRepo interface {
	Create(dbc dbctx.Context, row *types.UserProgress) error
	ListByParticipant(dbc dbctx.Context, participantID string) ([]*types.UserProgress, error)
}

type progressRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProgressRepo(db *gorm.DB, baseLog *logger.Logger) ProgressRepo {
	return &progressRepo{db: db, log: baseLog.With("repo", "ProgressRepo")}
}

func (r *progressRepo) Create(dbc dbctx.Context, row *types.UserProgress) error {
	return repoerr.Wrap("create user_progress", dbc.DB(r.db).Create(row).Error)
}

func (r *progressRepo) ListByParticipant(dbc dbctx.Context, participantID string) ([]*types.UserProgress, error) {
	var out []*types.UserProgress
	if err := dbc.DB(r.db).Where("participant_id = ?", participantID).Order("completed_at ASC").Find(&out).Error; err != nil {
		return nil, repoerr.Wrap("list user_progress", err)
	}
	return out, nil
}

type SubmissionRepo interface {
	Create(dbc dbctx.Context, row *types.CodeSubmission) error
	ListByParticipant(dbc dbctx.Context, participantID string) ([]*types.CodeSubmission, error)
}

type submissionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSubmissionRepo(db *gorm.DB, baseLog *logger.Logger) SubmissionRepo {
	return &submissionRepo{db: db, log: baseLog.With("repo", "SubmissionRepo")}
}

func (r *submissionRepo) Create(dbc dbctx.Context, row *types.CodeSubmission) error {
	return repoerr.Wrap("create submission", dbc.DB(r.db).Create(row).Error)
}

func (r *submissionRepo) ListByParticipant(dbc dbctx.Context, participantID string) ([]*types.CodeSubmission, error) {
	var out []*types.CodeSubmission
	if err := dbc.DB(r.db).Where("participant_id = ?", participantID).Order("submitted_at ASC").Find(&out).Error; err != nil {
		return nil, repoerr.Wrap("list submissions", err)
	}
	return out, nil
}
