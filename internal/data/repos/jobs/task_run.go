package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/neurobridge-tutor/internal/domain/jobs"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos/repoerr"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type TaskRunRepo interface {
	Create(dbc dbctx.Context, run *types.TaskRun) error
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TaskRun, error)
	ListByPartition(dbc dbctx.Context, partitionKey string) ([]*types.TaskRun, error)
	ClaimNextRunnable(dbc dbctx.Context, now time.Time, staleRunning time.Duration) (*types.TaskRun, error)
	ClaimByID(dbc dbctx.Context, id uuid.UUID, now time.Time, staleRunning time.Duration) (*types.TaskRun, error)
	ListQueued(dbc dbctx.Context, createdBefore time.Time, limit int) ([]*types.TaskRun, error)
	Heartbeat(dbc dbctx.Context, id uuid.UUID, now time.Time) error
	Finish(dbc dbctx.Context, id uuid.UUID, status string, errMsg string, now time.Time) error
	Requeue(dbc dbctx.Context, id uuid.UUID, availableAt time.Time, errMsg string, now time.Time) error
	CountByStatus(dbc dbctx.Context) (map[string]int64, error)
}

type taskRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaskRunRepo(db *gorm.DB, baseLog *logger.Logger) TaskRunRepo {
	return &taskRunRepo{
		db:  db,
		log: baseLog.With("repo", "TaskRunRepo"),
	}
}

func (r *taskRunRepo) Create(dbc dbctx.Context, run *types.TaskRun) error {
	if err := dbc.DB(r.db).Create(run).Error; err != nil {
		return repoerr.Wrap("create task_run", err)
	}
	return nil
}

func (r *taskRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.TaskRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run types.TaskRun
	if err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&run).Error; err != nil {
		return nil, repoerr.Wrap("get task_run", err)
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *taskRunRepo) ListByPartition(dbc dbctx.Context, partitionKey string) ([]*types.TaskRun, error) {
	var out []*types.TaskRun
	if err := dbc.DB(r.db).
		Where("partition_key = ?", partitionKey).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, repoerr.Wrap("list task_run", err)
	}
	return out, nil
}

// ClaimNextRunnable marks the oldest runnable task as running and returns
// it, or nil when nothing is runnable. Within a partition a task is runnable
// only when no other task of that partition is live running and no earlier
// task of it is still queued.
func (r *taskRunRepo) ClaimNextRunnable(dbc dbctx.Context, now time.Time, staleRunning time.Duration) (*types.TaskRun, error) {
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.TaskRun
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		q := txx.Model(&types.TaskRun{})
		if txx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var run types.TaskRun
		err := q.Where(`
        (
          (status = ? AND available_at <= ?)
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
        AND (
          partition_key = ''
          OR NOT EXISTS (
            SELECT 1 FROM task_run AS earlier
            WHERE earlier.partition_key = task_run.partition_key
              AND earlier.id <> task_run.id
              AND (
                (earlier.status = ? AND earlier.heartbeat_at >= ?)
                OR (earlier.status = ? AND earlier.seq < task_run.seq)
              )
          )
        )
      `, types.StatusQueued, now, types.StatusRunning, staleCutoff,
			types.StatusRunning, staleCutoff, types.StatusQueued).
			Order("seq ASC").
			Limit(1).
			Find(&run).Error
		if err != nil {
			return err
		}
		if run.ID == uuid.Nil {
			return nil
		}
		res := txx.Model(&types.TaskRun{}).
			Where("id = ? AND status = ?", run.ID, run.Status).
			Updates(map[string]interface{}{
				"status":       types.StatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		run.Status = types.StatusRunning
		run.Attempts++
		run.LockedAt = &now
		run.HeartbeatAt = &now
		claimed = &run
		return nil
	})
	if err != nil {
		return nil, repoerr.Wrap("claim task_run", err)
	}
	return claimed, nil
}

var errTerminal = errors.New("task_run already finished")

// ErrPartitionBusy is returned by ClaimByID while an earlier task of the same
// partition is queued or live running.
var ErrPartitionBusy = errors.New("task_run partition busy")

// ClaimByID marks a specific task as running. Finished tasks are returned
// unchanged so callers can skip them.
func (r *taskRunRepo) ClaimByID(dbc dbctx.Context, id uuid.UUID, now time.Time, staleRunning time.Duration) (*types.TaskRun, error) {
	staleCutoff := now.Add(-staleRunning)
	var claimed *types.TaskRun
	err := dbc.DB(r.db).Transaction(func(txx *gorm.DB) error {
		var run types.TaskRun
		if err := txx.Where("id = ?", id).Limit(1).Find(&run).Error; err != nil {
			return err
		}
		if run.ID == uuid.Nil {
			return gorm.ErrRecordNotFound
		}
		if run.Terminal() {
			claimed = &run
			return errTerminal
		}
		if run.PartitionKey != "" {
			var blocking int64
			if err := txx.Model(&types.TaskRun{}).
				Where("partition_key = ? AND id <> ?", run.PartitionKey, run.ID).
				Where("(status = ? AND heartbeat_at >= ?) OR (status = ? AND seq < ?)",
					types.StatusRunning, staleCutoff, types.StatusQueued, run.Seq).
				Count(&blocking).Error; err != nil {
				return err
			}
			if blocking > 0 {
				return ErrPartitionBusy
			}
		}
		if err := txx.Model(&types.TaskRun{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":       types.StatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error; err != nil {
			return err
		}
		run.Status = types.StatusRunning
		run.Attempts++
		run.LockedAt = &now
		run.HeartbeatAt = &now
		claimed = &run
		return nil
	})
	switch {
	case errors.Is(err, errTerminal):
		return claimed, nil
	case errors.Is(err, ErrPartitionBusy):
		return nil, ErrPartitionBusy
	case err != nil:
		return nil, repoerr.Wrap("claim task_run by id", err)
	}
	return claimed, nil
}

// ListQueued returns queued tasks created before the cutoff, oldest first.
func (r *taskRunRepo) ListQueued(dbc dbctx.Context, createdBefore time.Time, limit int) ([]*types.TaskRun, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []*types.TaskRun
	if err := dbc.DB(r.db).
		Where("status = ? AND created_at < ?", types.StatusQueued, createdBefore).
		Order("seq ASC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, repoerr.Wrap("list queued task_run", err)
	}
	return out, nil
}

func (r *taskRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID, now time.Time) error {
	err := dbc.DB(r.db).
		Model(&types.TaskRun{}).
		Where("id = ? AND status = ?", id, types.StatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
	return repoerr.Wrap("heartbeat task_run", err)
}

func (r *taskRunRepo) Finish(dbc dbctx.Context, id uuid.UUID, status string, errMsg string, now time.Time) error {
	updates := map[string]interface{}{
		"status":      status,
		"error":       errMsg,
		"finished_at": now,
		"updated_at":  now,
	}
	if errMsg != "" {
		updates["last_error_at"] = now
	}
	err := dbc.DB(r.db).
		Model(&types.TaskRun{}).
		Where("id = ?", id).
		Updates(updates).Error
	return repoerr.Wrap("finish task_run", err)
}

func (r *taskRunRepo) Requeue(dbc dbctx.Context, id uuid.UUID, availableAt time.Time, errMsg string, now time.Time) error {
	err := dbc.DB(r.db).
		Model(&types.TaskRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        types.StatusQueued,
			"error":         errMsg,
			"available_at":  availableAt,
			"last_error_at": now,
			"heartbeat_at":  nil,
			"locked_at":     nil,
			"updated_at":    now,
		}).Error
	return repoerr.Wrap("requeue task_run", err)
}

func (r *taskRunRepo) CountByStatus(dbc dbctx.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := dbc.DB(r.db).
		Model(&types.TaskRun{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, repoerr.Wrap("count task_run", err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
