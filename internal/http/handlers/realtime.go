package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/v1/learners/:id/stream
//
// Streams the participant's state notifications as server-sent events until
// the client disconnects.
func (h *RealtimeHandler) Stream(c *gin.Context) {
	id, ok := participantParam(c)
	if !ok {
		return
	}
	client := h.hub.NewClient()
	h.hub.AddChannel(client, realtime.ParticipantChannel(id))
	h.log.Debug("realtime stream open", "participant_id", id, "client_id", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.hub.CloseClient(client)
	h.log.Debug("realtime stream closed", "participant_id", id, "client_id", client.ID)
}
