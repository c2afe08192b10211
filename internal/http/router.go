package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/neurobridge-tutor/internal/http/handlers"
	httpMW "github.com/yungbote/neurobridge-tutor/internal/http/middleware"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string
	ServiceName string

	EventHandler    *httpH.EventHandler
	ActivityHandler *httpH.ActivityHandler
	LearnerHandler  *httpH.LearnerHandler
	PromptHandler   *httpH.PromptHandler
	RealtimeHandler *httpH.RealtimeHandler
	TaskHandler     *httpH.TaskHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log, "/healthz", "/readyz", "/metrics"))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api/v1")
	{
		// Behavior events
		if cfg.EventHandler != nil {
			api.POST("/behavior/events", cfg.EventHandler.Ingest)
			api.POST("/ai/events", cfg.EventHandler.LogAIEvent)
		}

		// Progress, submissions and chat
		if cfg.ActivityHandler != nil {
			api.POST("/progress", cfg.ActivityHandler.SaveProgress)
			api.POST("/submissions", cfg.ActivityHandler.SaveSubmission)
			api.POST("/chat/messages", cfg.ActivityHandler.SaveChatMessage)
		}

		// Learner state
		if cfg.LearnerHandler != nil {
			api.GET("/learners/:id/state", cfg.LearnerHandler.GetState)
			api.POST("/learners/:id/snapshot", cfg.LearnerHandler.RequestSnapshot)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/learners/:id/stream", cfg.RealtimeHandler.Stream)
		}

		// Prompt compilation
		if cfg.PromptHandler != nil {
			api.POST("/prompts/compile", cfg.PromptHandler.Compile)
		}

		// Tasks
		if cfg.TaskHandler != nil {
			api.GET("/tasks/:id", cfg.TaskHandler.GetTask)
		}
	}

	return r
}
