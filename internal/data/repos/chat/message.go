package chat

import (
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos/repoerr"
	types "github.com/yungbote/neurobridge-tutor/internal/domain/chat"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type MessageRepo interface {
	Create(dbc dbctx.Context, row *types.Message) error
	// ListRecent returns up to limit of the latest messages, oldest first.
	ListRecent(dbc dbctx.Context, participantID string, limit int) ([]*types.Message, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	return &messageRepo{db: db, log: baseLog.With("repo", "ChatMessageRepo")}
}

func (r *messageRepo) Create(dbc dbctx.Context, row *types.Message) error {
	return repoerr.Wrap("create chat_history", dbc.DB(r.db).Create(row).Error)
}

func (r *messageRepo) ListRecent(dbc dbctx.Context, participantID string, limit int) ([]*types.Message, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []*types.Message
	if err := dbc.DB(r.db).
		Where("participant_id = ?", participantID).
		Order("occurred_at DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, repoerr.Wrap("list chat_history", err)
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
