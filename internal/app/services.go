package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-tutor/internal/config"
	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/dispatch"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/pipeline"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/worker"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/services/interpreter"
	"github.com/yungbote/neurobridge-tutor/internal/services/learnerstate"
	"github.com/yungbote/neurobridge-tutor/internal/services/prompt"
	"github.com/yungbote/neurobridge-tutor/internal/temporalx/taskrun"
)

type Services struct {
	State       learnerstate.Service
	Interpreter *interpreter.Interpreter
	Registry    *runtime.Registry
	Dispatcher  *dispatch.Dispatcher
	Executor    *worker.Executor
	Compiler    *prompt.Compiler

	// Starter is set only when tasks run through Temporal.
	Starter *taskrun.Starter
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg config.Config, reposet repos.Set, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	rules := interpreter.Rules{Model: learner.DefaultBKT(), EditWindow: cfg.Learner.SignificantEditWindow}
	opts := learnerstate.Options{
		Model:                 rules.Model,
		Notifier:              clients.Bus,
		Replayer:              rules,
		SnapshotEventInterval: cfg.Learner.SnapshotEventInterval,
		SnapshotTimeInterval:  cfg.Learner.SnapshotTimeInterval,
	}
	if clients.Redis != nil {
		opts.Cache = learnerstate.NewRedisCache(clients.Redis, cfg.Redis.CacheTTL)
		opts.Locker = learnerstate.NewRedisLocker(clients.Redis, cfg.Redis.LockTTL)
	}
	state := learnerstate.New(log, learnerstate.NewProfileStore(reposet.Profiles), reposet.EventLogs, opts)

	var starter *taskrun.Starter
	var workflowStarter dispatch.WorkflowStarter
	if clients.Temporal != nil {
		starter = taskrun.NewStarter(clients.Temporal, cfg.Temporal, cfg.Worker)
		workflowStarter = starter
	}

	registry := runtime.NewRegistry()
	disp := dispatch.New(log, reposet.TaskRuns, registry, workflowStarter)
	interp := interpreter.New(log, state, rules, nil, disp)
	if err := pipeline.RegisterAll(registry, pipeline.Deps{
		Log:         log,
		Repos:       reposet,
		State:       state,
		Interpreter: interp,
	}); err != nil {
		return Services{}, fmt.Errorf("register task handlers: %w", err)
	}
	exec := worker.NewExecutor(log, reposet.TaskRuns, registry, runtime.NewSessionFactory(db), cfg.Worker)

	return Services{
		State:       state,
		Interpreter: interp,
		Registry:    registry,
		Dispatcher:  disp,
		Executor:    exec,
		Compiler:    prompt.NewCompiler(),
		Starter:     starter,
	}, nil
}
