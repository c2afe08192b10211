package state_snapshot

import (
	"fmt"

	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/services/learnerstate"
)

var Policy = runtime.Policy{Retryable: true, Partitioned: true}

// Pipeline writes a snapshot on demand. With force unset it only applies the
// snapshot policy; with rebuild set it first reconstructs the state from the
// event log.
type Pipeline struct {
	log   *logger.Logger
	state learnerstate.Service
}

func New(baseLog *logger.Logger, state learnerstate.Service) *Pipeline {
	return &Pipeline{
		log:   baseLog.With("job", runtime.KindSnapshotState),
		state: state,
	}
}

func (p *Pipeline) Type() string { return runtime.KindSnapshotState }

func (p *Pipeline) Run(jc *runtime.Context) error {
	if jc == nil || jc.Task == nil {
		return nil
	}
	participantID := jc.String("participant_id")
	if participantID == "" {
		return runtime.Malformed("snapshot_state: missing participant_id")
	}
	dbc := jc.DBC()
	if rebuild, _ := jc.Bool("rebuild"); rebuild {
		if _, err := p.state.Rebuild(dbc, participantID); err != nil {
			return fmt.Errorf("rebuild learner state: %w", err)
		}
		p.log.Info("learner state rebuilt", "participant_id", participantID)
	}
	if force, _ := jc.Bool("force"); force {
		if err := p.state.CreateSnapshot(dbc, participantID); err != nil {
			return fmt.Errorf("create snapshot: %w", err)
		}
		return nil
	}
	if _, err := p.state.MaybeCreateSnapshot(dbc, participantID); err != nil {
		return fmt.Errorf("snapshot policy: %w", err)
	}
	return nil
}
