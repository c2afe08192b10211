package mastery_update

import (
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/services/learnerstate"
)

var Policy = runtime.Policy{Retryable: true, Partitioned: true}

type Pipeline struct {
	log   *logger.Logger
	state learnerstate.Service
}

func New(baseLog *logger.Logger, state learnerstate.Service) *Pipeline {
	return &Pipeline{
		log:   baseLog.With("job", runtime.KindUpdateBKTAndSnapshot),
		state: state,
	}
}

func (p *Pipeline) Type() string { return runtime.KindUpdateBKTAndSnapshot }
