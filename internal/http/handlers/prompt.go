package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/neurobridge-tutor/internal/http/middleware"
	"github.com/yungbote/neurobridge-tutor/internal/http/response"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/services/learnerstate"
	"github.com/yungbote/neurobridge-tutor/internal/services/prompt"
)

type PromptHandler struct {
	log      *logger.Logger
	state    learnerstate.Service
	compiler *prompt.Compiler
	metrics  *observability.Metrics
}

func NewPromptHandler(log *logger.Logger, state learnerstate.Service, compiler *prompt.Compiler, metrics *observability.Metrics) *PromptHandler {
	return &PromptHandler{
		log:      log.With("handler", "PromptHandler"),
		state:    state,
		compiler: compiler,
		metrics:  metrics,
	}
}

// compileRequest is a compiler input plus an optional participant whose
// stored state is used when user_state is not supplied inline.
type compileRequest struct {
	ParticipantID string `json:"participant_id"`
	prompt.Input
}

// POST /api/v1/prompts/compile
func (h *PromptHandler) Compile(c *gin.Context) {
	var req compileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	in := req.Input
	if pid := strings.TrimSpace(req.ParticipantID); pid != "" {
		c.Set(middleware.ParticipantKey, pid)
		if in.State == nil {
			summary, err := h.state.Get(dbctx.Context{Ctx: c.Request.Context()}, pid)
			if err != nil {
				h.log.Error("failed to load learner state for prompt", "participant_id", pid, "error", err)
				response.RespondError(c, http.StatusInternalServerError, "load_state_failed", err)
				return
			}
			in.State = summary
		}
	}
	out := h.compiler.Compile(in)
	h.metrics.IncPromptCompiled(strings.ToLower(strings.TrimSpace(in.Mode)))
	response.RespondOK(c, out)
}
