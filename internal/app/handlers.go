package app

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/config"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/http"
	httpH "github.com/yungbote/neurobridge-tutor/internal/http/handlers"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Event    *httpH.EventHandler
	Activity *httpH.ActivityHandler
	Learner  *httpH.LearnerHandler
	Prompt   *httpH.PromptHandler
	Realtime *httpH.RealtimeHandler
	Task     *httpH.TaskHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, reposet repos.Set, services Services, clients Clients, hub *realtime.Hub, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(db, clients.universalRedis()),
		Event:    httpH.NewEventHandler(log, db, services.Dispatcher, metrics),
		Activity: httpH.NewActivityHandler(log, db, services.Dispatcher),
		Learner:  httpH.NewLearnerHandler(log, services.State, db, services.Dispatcher),
		Prompt:   httpH.NewPromptHandler(log, services.State, services.Compiler, metrics),
		Realtime: httpH.NewRealtimeHandler(log, hub),
		Task:     httpH.NewTaskHandler(reposet.TaskRuns),
	}
}

func wireRouter(log *logger.Logger, cfg config.Config, handlers Handlers, metrics *observability.Metrics) *gin.Engine {
	serviceName := ""
	if cfg.Tracing.Enabled {
		serviceName = serviceNameDefault
	}
	return http.NewRouter(http.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		ServiceName:     serviceName,
		EventHandler:    handlers.Event,
		ActivityHandler: handlers.Activity,
		LearnerHandler:  handlers.Learner,
		PromptHandler:   handlers.Prompt,
		RealtimeHandler: handlers.Realtime,
		TaskHandler:     handlers.Task,
		HealthHandler:   handlers.Health,
	})
}
