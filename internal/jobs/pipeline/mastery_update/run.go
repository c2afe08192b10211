package mastery_update

import (
	"fmt"

	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
)

// Run applies one correctness observation and then checks the snapshot
// policy, both through the task session. The task id keys the observation,
// so a redelivered task leaves mastery unchanged.
func (p *Pipeline) Run(jc *runtime.Context) error {
	if jc == nil || jc.Task == nil {
		return nil
	}
	participantID := jc.String("participant_id")
	topicID := jc.String("topic_id")
	correct, hasVerdict := jc.Bool("is_correct")
	switch {
	case participantID == "":
		return runtime.Malformed("update_bkt_and_snapshot: missing participant_id")
	case topicID == "":
		return runtime.Malformed("update_bkt_and_snapshot: missing topic_id")
	case !hasVerdict:
		return runtime.Malformed("update_bkt_and_snapshot: missing is_correct")
	}

	dbc := jc.DBC()
	rec, applied, err := p.state.ApplyObservation(dbc, participantID, topicID, correct, jc.TaskID().String())
	if err != nil {
		return fmt.Errorf("update mastery: %w", err)
	}
	if !applied {
		p.log.Info("mastery observation already applied", "participant_id", participantID, "topic_id", topicID, "task_id", jc.TaskID())
	}

	snapped, err := p.state.MaybeCreateSnapshot(dbc, participantID)
	if err != nil {
		return fmt.Errorf("snapshot policy: %w", err)
	}
	p.log.Info("mastery updated",
		"participant_id", participantID,
		"topic_id", topicID,
		"is_correct", correct,
		"mastery_prob", rec.MasteryProb,
		"snapshot", snapped,
	)
	return nil
}
