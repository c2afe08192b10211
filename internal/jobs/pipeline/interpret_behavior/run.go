package interpret_behavior

import (
	"errors"

	"github.com/yungbote/neurobridge-tutor/internal/domain/behavior"
	"github.com/yungbote/neurobridge-tutor/internal/jobs/runtime"
	"github.com/yungbote/neurobridge-tutor/internal/services/interpreter"
)

// Run never returns an interpretation failure: it logs the error with the
// original payload and rolls back. Only a missing participant id surfaces,
// as malformed input, so the task is dropped.
func (p *Pipeline) Run(jc *runtime.Context) error {
	if jc == nil || jc.Task == nil {
		return nil
	}
	if jc.String("participant_id") == "" {
		p.log.Error("behavior event without participant_id; dropping", "task_id", jc.TaskID(), "payload", jc.RawArgs())
		return runtime.Malformed("interpret_behavior: missing participant_id")
	}
	if err := jc.ArgsErr(); err != nil {
		p.log.Error("undecodable behavior task payload", "task_id", jc.TaskID(), "error", err, "payload", jc.RawArgs())
		return nil
	}

	ev, err := behavior.FromMap(jc.Args())
	if err != nil {
		p.log.Error("invalid behavior event; skipping interpretation",
			"task_id", jc.TaskID(), "error", err, "payload", jc.RawArgs())
		return nil
	}

	res, err := p.interp.Interpret(jc.DBC(), ev, interpreter.Options{})
	if err != nil {
		jc.Discard()
		if errors.Is(err, interpreter.ErrMissingParticipant) {
			p.log.Error("behavior event without participant_id; dropping", "task_id", jc.TaskID(), "payload", jc.RawArgs())
			return nil
		}
		p.log.Error("behavior interpretation failed",
			"task_id", jc.TaskID(),
			"participant_id", ev.ParticipantID,
			"event_type", string(ev.Type),
			"error", err,
			"payload", jc.RawArgs(),
		)
		return nil
	}
	p.metrics.IncEventInterpreted(string(ev.Type))
	p.log.Debug("behavior event applied",
		"participant_id", ev.ParticipantID,
		"event_type", string(ev.Type),
		"mastery_updates", len(res.Effects),
	)
	return nil
}
