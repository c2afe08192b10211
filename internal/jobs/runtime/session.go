package runtime

import (
	"context"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
)

/*
Session is the database handle scoped to one task execution. It is opened
before the handler runs and released exactly once afterwards, on every exit
path. Callbacks registered with dbctx.AfterCommit during the task run only if
the release commits.
*/
type Session struct {
	ctx   context.Context
	tx    *gorm.DB
	flush func(committed bool)

	once sync.Once
	err  error
}

func (s *Session) DBC() dbctx.Context {
	return dbctx.Context{Ctx: s.ctx, Tx: s.tx}
}

// Release commits when commit is true and rolls back otherwise. Later calls
// return the first result.
func (s *Session) Release(commit bool) error {
	s.once.Do(func() {
		if !commit {
			err := s.tx.Rollback().Error
			s.flush(false)
			if err != nil {
				s.err = fmt.Errorf("rollback session: %w", err)
			}
			return
		}
		if err := s.tx.Commit().Error; err != nil {
			s.flush(false)
			s.err = fmt.Errorf("commit session: %w", err)
			return
		}
		s.flush(true)
	})
	return s.err
}

type SessionFactory interface {
	Acquire(ctx context.Context) (*Session, error)
}

type gormSessionFactory struct {
	db *gorm.DB
}

func NewSessionFactory(db *gorm.DB) SessionFactory {
	return &gormSessionFactory{db: db}
}

func (f *gormSessionFactory) Acquire(ctx context.Context) (*Session, error) {
	if f.db == nil {
		return nil, fmt.Errorf("begin session: no database")
	}
	hookCtx, flush := dbctx.WithCommitHooks(ctx)
	tx := f.db.WithContext(hookCtx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin session: %w", tx.Error)
	}
	return &Session{ctx: hookCtx, tx: tx, flush: flush}, nil
}
