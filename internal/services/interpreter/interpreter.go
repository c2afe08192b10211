package interpreter

import (
	"context"
	"fmt"

	"github.com/yungbote/neurobridge-tutor/internal/domain/behavior"
	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
	"github.com/yungbote/neurobridge-tutor/internal/platform/dbctx"
	"github.com/yungbote/neurobridge-tutor/internal/platform/logger"
	"github.com/yungbote/neurobridge-tutor/internal/services/learnerstate"
)

var ErrMissingParticipant = learnerstate.ErrMissingParticipant

// Grader derives correctness for submissions that arrive without a verdict.
// ok=false means the grader has no opinion.
type Grader interface {
	Grade(ctx context.Context, participantID string, sub *behavior.TestSubmission) (correct bool, ok bool, err error)
}

// MasteryTrigger schedules the mastery update for a graded submission.
type MasteryTrigger interface {
	TriggerMasteryUpdate(dbc dbctx.Context, participantID, topicID string, correct bool) error
}

type Options struct {
	// Replay applies mastery inline instead of scheduling it.
	Replay bool
}

type Result struct {
	Effects []Effect
	Summary *learner.Summary
}

type Interpreter struct {
	log     *logger.Logger
	state   learnerstate.Service
	rules   Rules
	grader  Grader
	trigger MasteryTrigger
}

// New builds an interpreter. grader and trigger may be nil: without a grader
// unverdicted submissions only update behavior patterns, without a trigger
// mastery is applied inline.
func New(baseLog *logger.Logger, state learnerstate.Service, rules Rules, grader Grader, trigger MasteryTrigger) *Interpreter {
	return &Interpreter{
		log:     baseLog.With("service", "BehaviorInterpreter"),
		state:   state,
		rules:   rules,
		grader:  grader,
		trigger: trigger,
	}
}

func (in *Interpreter) Interpret(dbc dbctx.Context, ev *behavior.Event, opts Options) (*Result, error) {
	if ev == nil {
		return nil, fmt.Errorf("nil event")
	}
	if ev.ParticipantID == "" {
		return nil, ErrMissingParticipant
	}
	if ev.Type == behavior.EventStateSnapshot {
		in.log.Debug("state snapshot events are not interpreted", "participant_id", ev.ParticipantID)
		return &Result{}, nil
	}

	verdict := PayloadVerdict(ev)
	if sub, ok := ev.Data.(*behavior.TestSubmission); ok && verdict == nil && in.grader != nil && !opts.Replay {
		verdict = in.grade(dbc, ev.ParticipantID, sub)
	}

	inline := opts.Replay || in.trigger == nil
	var effects []Effect
	sum, err := in.state.Mutate(dbc, ev.ParticipantID, func(s *learner.Summary) error {
		effects = in.rules.Apply(s, ev, verdict)
		if inline {
			in.rules.ApplyEffects(s, effects, ev.Timestamp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("interpret %s: %w", ev.Type, err)
	}

	if !inline {
		for _, e := range effects {
			if err := in.trigger.TriggerMasteryUpdate(dbc, ev.ParticipantID, e.TopicID, e.Correct); err != nil {
				return nil, fmt.Errorf("trigger mastery update: %w", err)
			}
		}
	}
	in.log.Debug("Behavior event interpreted",
		"participant_id", ev.ParticipantID,
		"event_type", string(ev.Type),
		"effects", len(effects),
	)
	return &Result{Effects: effects, Summary: sum}, nil
}

func (in *Interpreter) grade(dbc dbctx.Context, participantID string, sub *behavior.TestSubmission) *bool {
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	correct, ok, err := in.grader.Grade(ctx, participantID, sub)
	if err != nil {
		in.log.Warn("grading failed; submission recorded without verdict", "participant_id", participantID, "topic_id", sub.TopicID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return &correct
}
