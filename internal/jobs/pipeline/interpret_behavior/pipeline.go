package interpret_behavior

import (
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/observability"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/services/interpreter"
)

// Policy: a corrupt or failing event must not be retried or block the
// participant's partition.
var Policy = runtime.Policy{BestEffort: true, Partitioned: true}

type Pipeline struct {
	log     *logger.Logger
	interp  *interpreter.Interpreter
	metrics *observability.Metrics
}

func New(baseLog *logger.Logger, interp *interpreter.Interpreter) *Pipeline {
	return &Pipeline{
		log:     baseLog.With("job", runtime.KindInterpretBehavior),
		interp:  interp,
		metrics: observability.Current(),
	}
}

func (p *Pipeline) Type() string { return runtime.KindInterpretBehavior }
