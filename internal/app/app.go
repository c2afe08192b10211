package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/config"
	"github.com/yungbote/neurobridge-tutor/internal/data/db"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/http"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/worker"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/realtime"
	"github.com/yungbote/neurobridge-tutor/internal/temporalx/taskrun"
	"github.com/yungbote/neurobridge-tutor/internal/temporalx/temporalworker"
)

const serviceNameDefault = "neurobridge-tutor"

var ErrTemporalMode = errors.New("tasks are executed by Temporal; use the worker command")

type App struct {
	Log      *logger.Logger
	Cfg      config.Config
	DB       *gorm.DB
	Clients  Clients
	Repos    repos.Set
	Services Services
	Hub      *realtime.Hub
	Metrics  *observability.Metrics
	Router   *gin.Engine

	dbService    *db.Service
	otelShutdown func(context.Context) error
}

func New(ctx context.Context, log *logger.Logger, cfg config.Config) (*App, error) {
	otelShutdown := observability.InitOTel(ctx, log, serviceNameDefault, cfg.LogMode, cfg.Tracing)
	metrics := observability.Init(log)

	dbService, err := db.Open(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	theDB := dbService.DB()
	if err := db.AutoMigrateAll(theDB); err != nil {
		_ = dbService.Close()
		return nil, fmt.Errorf("automigrate: %w", err)
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		return nil, err
	}

	reposet := wireRepos(theDB, log)
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		_ = dbService.Close()
		return nil, err
	}

	hub := realtime.NewHub(log)
	handlerset := wireHandlers(log, theDB, reposet, serviceset, clients, hub, metrics)
	router := wireRouter(log, cfg, handlerset, metrics)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           theDB,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Hub:          hub,
		Metrics:      metrics,
		Router:       router,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// Serve runs the HTTP API until ctx is done. With withWorker the task
// executors for the configured backend run in the same process.
func (a *App) Serve(ctx context.Context, withWorker bool) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)

	a.Metrics.StartRedisCollector(gctx, a.Log, a.Clients.universalRedis())
	a.Metrics.StartTaskQueueCollector(gctx, a.Log, a.Repos.TaskRuns)

	// Notifications published by any process reach this process's streams.
	if err := a.Clients.Bus.StartForwarder(gctx, a.Hub.Broadcast); err != nil {
		return fmt.Errorf("start realtime forwarder: %w", err)
	}
	if withWorker {
		g.Go(func() error { return a.RunWorker(gctx) })
	}
	g.Go(func() error {
		srv := &http.Server{Engine: a.Router}
		a.Log.Info("HTTP server listening", "addr", a.Cfg.HTTP.Addr)
		return srv.Run(gctx, a.Cfg.HTTP.Addr, a.Cfg.HTTP.ShutdownTimeout)
	})
	return g.Wait()
}

// RunWorker executes queued tasks until ctx is done: through a Temporal
// worker and sweeper when Temporal is configured, otherwise by polling the
// task table.
func (a *App) RunWorker(ctx context.Context) error {
	if a.Clients.Temporal == nil {
		w := worker.NewWorker(a.Log, a.Repos.TaskRuns, a.Services.Executor, a.Cfg.Worker)
		return w.Start(ctx)
	}

	acts := &taskrun.Activities{
		Log:          a.Log,
		Runs:         a.Repos.TaskRuns,
		Exec:         a.Services.Executor,
		StaleRunning: a.Cfg.Worker.StaleRunning,
	}
	runner, err := temporalworker.NewRunner(a.Log, a.Clients.Temporal, a.Cfg.Temporal, a.Cfg.Worker.Concurrency, acts)
	if err != nil {
		return err
	}
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("start temporal worker: %w", err)
	}
	sweeper := taskrun.NewSweeper(a.Log, a.Repos.TaskRuns, a.Services.Registry, a.Services.Starter,
		a.Cfg.Temporal.SweepInterval, a.Cfg.Temporal.SweepGrace)
	return sweeper.Run(ctx)
}

// Drain runs every ready task once with the polling executor and returns how
// many ran.
func (a *App) Drain(ctx context.Context) (int, error) {
	if a.Clients.Temporal != nil {
		return 0, ErrTemporalMode
	}
	w := worker.NewWorker(a.Log, a.Repos.TaskRuns, a.Services.Executor, a.Cfg.Worker)
	return w.Drain(ctx)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.Clients.Close()
	if a.dbService != nil {
		_ = a.dbService.Close()
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	a.Log.Sync()
}
