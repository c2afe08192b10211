package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/http/middleware"
	"github.com/yungbote/neurobridge-tutor/internal/http/response"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

// ActivityHandler accepts the plain records (progress, code submissions and
// chat turns) that are persisted by their own lightweight tasks.
type ActivityHandler struct {
	log    *logger.Logger
	writer taskWriter
}

func NewActivityHandler(log *logger.Logger, db *gorm.DB, tasks TaskEnqueuer) *ActivityHandler {
	return &ActivityHandler{
		log:    log.With("handler", "ActivityHandler"),
		writer: taskWriter{db: db, tasks: tasks},
	}
}

type progressRequest struct {
	ParticipantID string     `json:"participant_id" binding:"required"`
	TopicID       string     `json:"topic_id" binding:"required"`
	CompletedAt   *time.Time `json:"completed_at"`
}

// POST /api/v1/progress
func (h *ActivityHandler) SaveProgress(c *gin.Context) {
	var req progressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	args := map[string]any{
		"participant_id": strings.TrimSpace(req.ParticipantID),
		"topic_id":       strings.TrimSpace(req.TopicID),
	}
	if req.CompletedAt != nil {
		args["completed_at"] = req.CompletedAt.UTC()
	}
	h.accept(c, req.ParticipantID, runtime.KindSaveProgress, args)
}

type submissionRequest struct {
	ParticipantID string     `json:"participant_id" binding:"required"`
	TopicID       string     `json:"topic_id" binding:"required"`
	Code          string     `json:"code"`
	IsCorrect     *bool      `json:"is_correct" binding:"required"`
	SubmittedAt   *time.Time `json:"submitted_at"`
}

// POST /api/v1/submissions
func (h *ActivityHandler) SaveSubmission(c *gin.Context) {
	var req submissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	args := map[string]any{
		"participant_id": strings.TrimSpace(req.ParticipantID),
		"topic_id":       strings.TrimSpace(req.TopicID),
		"code":           req.Code,
		"is_correct":     *req.IsCorrect,
	}
	if req.SubmittedAt != nil {
		args["submitted_at"] = req.SubmittedAt.UTC()
	}
	h.accept(c, req.ParticipantID, runtime.KindSaveCodeSubmission, args)
}

type chatMessageRequest struct {
	ParticipantID string         `json:"participant_id" binding:"required"`
	Role          string         `json:"role" binding:"required,oneof=user assistant system"`
	Message       string         `json:"message"`
	UserState     map[string]any `json:"user_state"`
	AIContext     map[string]any `json:"ai_context"`
	Timestamp     *time.Time     `json:"timestamp"`
}

// POST /api/v1/chat/messages
func (h *ActivityHandler) SaveChatMessage(c *gin.Context) {
	var req chatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	args := map[string]any{
		"participant_id": strings.TrimSpace(req.ParticipantID),
		"role":           req.Role,
		"message":        req.Message,
	}
	if len(req.UserState) > 0 {
		args["user_state"] = req.UserState
	}
	if len(req.AIContext) > 0 {
		args["ai_context"] = req.AIContext
	}
	if req.Timestamp != nil {
		args["timestamp"] = req.Timestamp.UTC()
	}
	h.accept(c, req.ParticipantID, runtime.KindSaveChatMessage, args)
}

func (h *ActivityHandler) accept(c *gin.Context, participantID, kind string, args map[string]any) {
	c.Set(middleware.ParticipantKey, strings.TrimSpace(participantID))
	ids, err := h.writer.enqueue(c.Request.Context(), pendingTask{kind: kind, args: args})
	if err != nil {
		h.log.Error("failed to enqueue task", "kind", kind, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{"task_id": ids[0]})
}
