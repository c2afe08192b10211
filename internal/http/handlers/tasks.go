package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	types "github.com/yungbote/neurobridge-tutor/internal/domain/jobs"
	"github.com/yungbote/neurobridge-tutor/internal/http/middleware"
	"github.com/yungbote/neurobridge-tutor/internal/http/response"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
)

// TaskEnqueuer persists tasks for asynchronous execution. dispatch.Dispatcher
// satisfies it.
type TaskEnqueuer interface {
	Enqueue(dbc dbctx.Context, kind string, args map[string]any) (*types.TaskRun, error)
}

type pendingTask struct {
	kind string
	args map[string]any
}

// taskWriter enqueues a request's tasks in one transaction, so a request
// either queues all of its work or none of it.
type taskWriter struct {
	db    *gorm.DB
	tasks TaskEnqueuer
}

func (w taskWriter) enqueue(ctx context.Context, pending ...pendingTask) ([]string, error) {
	ids := make([]string, 0, len(pending))
	err := dbctx.Transaction(ctx, w.db, func(dbc dbctx.Context) error {
		for _, p := range pending {
			run, err := w.tasks.Enqueue(dbc, p.kind, p.args)
			if err != nil {
				return err
			}
			ids = append(ids, run.ID.String())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

type TaskHandler struct {
	runs repos.TaskRunRepo
}

func NewTaskHandler(runs repos.TaskRunRepo) *TaskHandler {
	return &TaskHandler{runs: runs}
}

// GET /api/v1/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_task_id", err)
		return
	}
	run, err := h.runs.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "load_task_failed", err)
		return
	}
	if run == nil {
		response.RespondError(c, http.StatusNotFound, "task_not_found", errors.New("task not found"))
		return
	}
	if run.PartitionKey != "" {
		c.Set(middleware.ParticipantKey, run.PartitionKey)
	}
	response.RespondOK(c, gin.H{"task": run})
}
