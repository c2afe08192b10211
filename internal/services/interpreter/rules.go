package interpreter

import (
	"time"

	"github.com/yungbote/neurobridge-tutor/internal/domain/behavior"
	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
)

// Effect is a follow-up that interpreting an event asks for outside the
// summary mutation itself. Today only mastery observations.
type Effect struct {
	TopicID string
	Correct bool
}

// Rules maps events onto summary mutations. It holds no state and reads no
// clock: every timestamp comes from the event, so replaying the same log
// yields the same summary.
type Rules struct {
	Model      learner.MasteryModel
	EditWindow int
}

func (r Rules) model() learner.MasteryModel {
	if r.Model == nil {
		return learner.DefaultBKT()
	}
	return r.Model
}

var (
	correctSubmission   = learner.Sentiment{Positive: 0.1, Neutral: -0.05, Negative: -0.05}
	incorrectSubmission = learner.Sentiment{Negative: 0.1, Neutral: -0.05, Positive: -0.05}
	helpRequest         = learner.Sentiment{Negative: 0.1, Neutral: -0.05, Positive: -0.05}

	lightweightSentiment = map[behavior.EventType]learner.Sentiment{
		behavior.EventCodeEdit:        {Positive: 0.05, Neutral: -0.03, Negative: -0.02},
		behavior.EventPageFocusChange: {Negative: 0.02, Neutral: 0.01, Positive: -0.03},
		behavior.EventUserIdle:        {Negative: 0.03, Neutral: 0.02, Positive: -0.05},
	}
)

// Apply mutates s for ev and returns the effects the caller must carry out.
// verdict is the submission's correctness when known.
func (r Rules) Apply(s *learner.Summary, ev *behavior.Event, verdict *bool) []Effect {
	if ev.Type == behavior.EventStateSnapshot {
		return nil
	}
	at := ev.Timestamp
	s.Touch(at)

	switch p := ev.Data.(type) {
	case *behavior.TestSubmission:
		return r.testSubmission(s, p, at, verdict)
	case *behavior.AIHelpRequest:
		s.IncrementQuestionCount(p.ContentTitle)
		s.RecordActivity(string(ev.Type), at, nil)
		s.ApplySentiment(helpRequest, 0.2)
	case *behavior.UserIdle:
		r.lightweight(s, ev.Type, at, p.DurationMS)
	case *behavior.CodeEdit, *behavior.DOMElementSelect:
		r.lightweight(s, ev.Type, at, 0)
	case *behavior.KnowledgeLevelAccess:
		var dur int64
		if p.DurationMS != nil {
			dur = *p.DurationMS
		}
		s.RecordLevelAccess(p.TopicID, p.Level, p.Action, dur)
	case *behavior.CodingProblem:
		s.RecordCodingProblem(learner.CodingProblemRecord{
			Timestamp:        at,
			Editor:           p.Editor,
			ConsecutiveEdits: p.ConsecutiveEdits,
			Severity:         p.Severity,
			NetChange:        p.NetChange,
			DurationMS:       p.DurationMS,
			DeletedChars:     p.DeletedChars,
			AddedChars:       p.AddedChars,
		}, r.EditWindow)
	case *behavior.SignificantEdit:
		s.RecordSignificantEdit(editRecord(p, at), r.EditWindow)
	case *behavior.SignificantEditsBatch:
		for i := range p.Edits {
			s.RecordSignificantEdit(editRecord(&p.Edits[i], at), r.EditWindow)
		}
	case *behavior.ProblemHintDisplayed:
		s.CountInteraction(string(ev.Type), 0)
	case *behavior.IdleHintDisplayed:
		s.CountInteraction(string(ev.Type), 0)
		s.AdjustPersistence(0, 0.05)
	case *behavior.OpaquePayload:
		r.lightweight(s, ev.Type, at, 0)
	}
	return nil
}

func (r Rules) testSubmission(s *learner.Summary, p *behavior.TestSubmission, at time.Time, verdict *bool) []Effect {
	retrying := lastSubmissionFailed(s)
	s.RecordSubmissionOutcome(verdict)
	s.RecordActivity(string(behavior.EventTestSubmission), at, verdict)
	if retrying {
		s.AdjustPersistence(1, 0.1)
	}
	if verdict == nil {
		return nil
	}
	if *verdict {
		s.ApplySentiment(correctSubmission, 0.3)
	} else {
		s.ApplySentiment(incorrectSubmission, 0.3)
		s.RaiseFrustration(s.FrustrationIndex(at))
	}
	return []Effect{{TopicID: p.TopicID, Correct: *verdict}}
}

func (r Rules) lightweight(s *learner.Summary, kind behavior.EventType, at time.Time, idleMS int64) {
	s.CountInteraction(string(kind), idleMS)
	s.RecordActivity(string(kind), at, nil)
	if upd, ok := lightweightSentiment[kind]; ok {
		s.ApplySentiment(upd, 0.1)
	}
}

// Replay applies ev the way a live interpretation would, with mastery
// effects folded in directly instead of dispatched. Submissions without a
// verdict in the payload are not graded again.
func (r Rules) Replay(s *learner.Summary, ev *behavior.Event) {
	effects := r.Apply(s, ev, PayloadVerdict(ev))
	r.ApplyEffects(s, effects, ev.Timestamp)
}

func (r Rules) ApplyEffects(s *learner.Summary, effects []Effect, at time.Time) {
	for _, e := range effects {
		s.ApplyMastery(e.TopicID, e.Correct, r.model(), at, "")
	}
}

// PayloadVerdict returns the correctness carried by a test submission.
func PayloadVerdict(ev *behavior.Event) *bool {
	p, ok := ev.Data.(*behavior.TestSubmission)
	if !ok {
		return nil
	}
	if v, ok := p.Verdict(); ok {
		return &v
	}
	return nil
}

func lastSubmissionFailed(s *learner.Summary) bool {
	recent := s.BehaviorPatterns.RecentEvents
	for i := len(recent) - 1; i >= 0; i-- {
		if recent[i].EventType != string(behavior.EventTestSubmission) {
			continue
		}
		return recent[i].IsCorrect != nil && !*recent[i].IsCorrect
	}
	return false
}

func editRecord(p *behavior.SignificantEdit, at time.Time) learner.SignificantEditRecord {
	return learner.SignificantEditRecord{
		Timestamp:        at,
		Editor:           p.Editor,
		EditType:         p.EditType,
		NetChange:        p.NetChange,
		AbsoluteChange:   p.AbsoluteChange,
		DurationMS:       p.DurationMS,
		ConsecutiveEdits: p.ConsecutiveEdits,
		DeletedChars:     p.DeletedChars,
		AddedChars:       p.AddedChars,
		TotalModified:    p.TotalModified,
	}
}
