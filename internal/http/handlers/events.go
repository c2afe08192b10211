package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/domain/behavior"
	"github.com/yungbote/neurobridge-tutor/internal/http/middleware"
	"github.com/yungbote/neurobridge-tutor/internal/http/response"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

const (
	maxEventBodyBytes = 1 << 20
	maxEventsPerBatch = 500
)

type EventHandler struct {
	log     *logger.Logger
	writer  taskWriter
	metrics *observability.Metrics
}

func NewEventHandler(log *logger.Logger, db *gorm.DB, tasks TaskEnqueuer, metrics *observability.Metrics) *EventHandler {
	return &EventHandler{
		log:     log.With("handler", "EventHandler"),
		writer:  taskWriter{db: db, tasks: tasks},
		metrics: metrics,
	}
}

type ingestEventsRequest struct {
	Events []json.RawMessage `json:"events"`
}

// POST /api/v1/behavior/events
//
// Accepts one event object, an array of events, or {"events": [...]}. Every
// event is validated before anything is queued; each valid event yields a
// save_behavior and an interpret_behavior task.
func (h *EventHandler) Ingest(c *gin.Context) {
	h.ingest(c, runtime.KindSaveBehavior, runtime.KindInterpretBehavior)
}

// POST /api/v1/ai/events records tutor interaction events in the audit log
// without interpreting them.
func (h *EventHandler) LogAIEvent(c *gin.Context) {
	h.ingest(c, runtime.KindLogAIEvent)
}

func (h *EventHandler) ingest(c *gin.Context, kinds ...string) {
	raws, ok := h.readEvents(c)
	if !ok {
		return
	}
	events := make([]*behavior.Event, 0, len(raws))
	for i, raw := range raws {
		ev, err := behavior.Decode(raw)
		if err != nil {
			var verr *behavior.ValidationError
			if errors.As(err, &verr) {
				h.metrics.IncValidationRejected(verr.Field)
				response.RespondInvalid(c, verr.Field, fmt.Errorf("event %d: %w", i, err))
				return
			}
			response.RespondError(c, http.StatusBadRequest, "invalid_event", err)
			return
		}
		events = append(events, ev)
	}

	pending := make([]pendingTask, 0, len(events)*len(kinds))
	for _, ev := range events {
		args, err := ev.ToMap()
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_event", err)
			return
		}
		for _, kind := range kinds {
			pending = append(pending, pendingTask{kind: kind, args: args})
		}
	}
	if len(events) == 1 {
		c.Set(middleware.ParticipantKey, events[0].ParticipantID)
	}

	ids, err := h.writer.enqueue(c.Request.Context(), pending...)
	if err != nil {
		h.log.Error("failed to enqueue behavior events", "count", len(events), "error", err)
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", err)
		return
	}
	response.RespondAccepted(c, gin.H{
		"accepted": len(events),
		"task_ids": ids,
	})
}

func (h *EventHandler) readEvents(c *gin.Context) ([]json.RawMessage, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxEventBodyBytes)
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.RespondError(c, http.StatusRequestEntityTooLarge, "invalid_body", err)
		return nil, false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_body", errors.New("request body is empty"))
		return nil, false
	}

	var out []json.RawMessage
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &out); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_json", err)
			return nil, false
		}
	case '{':
		var env ingestEventsRequest
		if err := json.Unmarshal(raw, &env); err == nil && env.Events != nil {
			out = env.Events
		} else {
			out = []json.RawMessage{raw}
		}
	default:
		response.RespondError(c, http.StatusBadRequest, "invalid_json", errors.New("expected a JSON object or array"))
		return nil, false
	}

	if len(out) == 0 {
		response.RespondError(c, http.StatusBadRequest, "empty_batch", errors.New("no events in request"))
		return nil, false
	}
	if len(out) > maxEventsPerBatch {
		response.RespondError(c, http.StatusBadRequest, "batch_too_large",
			fmt.Errorf("at most %d events per request", maxEventsPerBatch))
		return nil, false
	}
	return out, true
}
