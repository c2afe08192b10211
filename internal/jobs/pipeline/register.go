package pipeline

import (
	"github.com/yungbote/neurobridge-tutor/internal/data/repos"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/pipeline/interpret_behavior"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/pipeline/mastery_update"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/pipeline/persist"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/pipeline/state_snapshot"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/services/interpreter"
	"github.com/yungbote/neurobridge-tutor/internal/services/learnerstate"
)

type Deps struct {
	Log         *logger.Logger
	Repos       repos.Set
	State       learnerstate.Service
	Interpreter *interpreter.Interpreter
}

// RegisterAll registers every task kind together with its policy.
func RegisterAll(reg *runtime.Registry, deps Deps) error {
	entries := []struct {
		h      runtime.Handler
		policy runtime.Policy
	}{
		{interpret_behavior.New(deps.Log, deps.Interpreter), interpret_behavior.Policy},
		{mastery_update.New(deps.Log, deps.State), mastery_update.Policy},
		{state_snapshot.New(deps.Log, deps.State), state_snapshot.Policy},
		{persist.NewSaveProgress(deps.Log, deps.Repos.Progress), persist.Policy},
		{persist.NewSaveCodeSubmission(deps.Log, deps.Repos.Submissions), persist.Policy},
		{persist.NewSaveBehavior(deps.Log, deps.Repos.EventLogs), persist.EventLogPolicy},
		{persist.NewLogAIEvent(deps.Log, deps.Repos.EventLogs), persist.EventLogPolicy},
		{persist.NewSaveChatMessage(deps.Log, deps.Repos.Chat), persist.Policy},
	}
	for _, e := range entries {
		if err := reg.Register(e.h, e.policy); err != nil {
			return err
		}
	}
	return nil
}
