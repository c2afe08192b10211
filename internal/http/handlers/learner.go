package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/http/middleware"
	"github.com/yungbote/neurobridge-tutor/internal/http/response"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/services/learnerstate"
)

type LearnerHandler struct {
	log    *logger.Logger
	state  learnerstate.Service
	writer taskWriter
}

func NewLearnerHandler(log *logger.Logger, state learnerstate.Service, db *gorm.DB, tasks TaskEnqueuer) *LearnerHandler {
	return &LearnerHandler{
		log:    log.With("handler", "LearnerHandler"),
		state:  state,
		writer: taskWriter{db: db, tasks: tasks},
	}
}

func participantParam(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		response.RespondInvalid(c, "participant_id", learnerstate.ErrMissingParticipant)
		return "", false
	}
	c.Set(middleware.ParticipantKey, id)
	return id, true
}

// GET /api/v1/learners/:id/state
func (h *LearnerHandler) GetState(c *gin.Context) {
	id, ok := participantParam(c)
	if !ok {
		return
	}
	summary, err := h.state.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		if errors.Is(err, learnerstate.ErrMissingParticipant) {
			response.RespondInvalid(c, "participant_id", err)
			return
		}
		h.log.Error("failed to load learner state", "participant_id", id, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "load_state_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"state": summary})
}

// POST /api/v1/learners/:id/snapshot[?rebuild=true]
//
// Queues a forced snapshot; with rebuild the summary is first reconstructed
// from the latest snapshot and the event log.
func (h *LearnerHandler) RequestSnapshot(c *gin.Context) {
	id, ok := participantParam(c)
	if !ok {
		return
	}
	rebuild := false
	if raw := strings.TrimSpace(c.Query("rebuild")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.RespondInvalid(c, "rebuild", err)
			return
		}
		rebuild = v
	}
	ids, err := h.writer.enqueue(c.Request.Context(), pendingTask{
		kind: runtime.KindSnapshotState,
		args: map[string]any{
			"participant_id": id,
			"force":          true,
			"rebuild":        rebuild,
		},
	})
	if err != nil {
		h.log.Error("failed to enqueue snapshot", "participant_id", id, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"task_id": ids[0]})
}
