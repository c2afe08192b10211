package learner

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos/repoerr"
	types "github.com/yungbote/neurobridge-tutor/internal/domain/learner"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type ProfileRepo interface {
	Get(dbc dbctx.Context, participantID string) (*types.Profile, error)
	Upsert(dbc dbctx.Context, participantID string, summary datatypes.JSON) error
}

type profileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProfileRepo(db *gorm.DB, baseLog *logger.Logger) ProfileRepo {
	return &profileRepo{db: db, log: baseLog.With("repo", "LearnerProfileRepo")}
}

func (r *profileRepo) Get(dbc dbctx.Context, participantID string) (*types.Profile, error) {
	var rows []*types.Profile
	if err := dbc.DB(r.db).Where("participant_id = ?", participantID).Limit(1).Find(&rows).Error; err != nil {
		return nil, repoerr.Wrap("get learner_profile", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *profileRepo) Upsert(dbc dbctx.Context, participantID string, summary datatypes.JSON) error {
	now := time.Now().UTC()
	row := &types.Profile{
		ParticipantID: participantID,
		Summary:       summary,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "participant_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"summary":    summary,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		}),
	}).Create(row).Error
	return repoerr.Wrap("upsert learner_profile", err)
}
