package learner

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Touch records that one more event was interpreted at time at.
func (s *Summary) Touch(at time.Time) {
	s.ensureMaps()
	s.IsNewUser = false
	s.EventCount++
	s.EventsSinceSnapshot++
	if at.After(s.UpdatedAt) {
		s.UpdatedAt = at
	}
}

// RecordActivity appends to the recent event window and recomputes the
// windowed frequencies. isCorrect is only meaningful for submissions.
func (s *Summary) RecordActivity(eventType string, at time.Time, isCorrect *bool) {
	bp := &s.BehaviorPatterns
	bp.RecentEvents = append(bp.RecentEvents, RecentEvent{EventType: eventType, Timestamp: at, IsCorrect: isCorrect})
	if n := len(bp.RecentEvents); n > recentEventsLimit {
		bp.RecentEvents = append([]RecentEvent(nil), bp.RecentEvents[n-recentEventsLimit:]...)
	}

	windowStart := at.Add(-behaviorWindow)
	var inWindow, errors, helps int
	for _, ev := range bp.RecentEvents {
		if ev.Timestamp.Before(windowStart) {
			continue
		}
		inWindow++
		switch ev.EventType {
		case "test_submission":
			if ev.IsCorrect != nil && !*ev.IsCorrect {
				errors++
			}
		case "ai_help_request":
			helps++
		}
	}
	denom := float64(max(inWindow, 1))
	bp.ErrorFrequency = float64(errors) / denom
	bp.HelpSeekingTendency = float64(helps) / denom

	if eventType != "test_submission" {
		return
	}
	bp.SubmissionTimestamps = append(bp.SubmissionTimestamps, at)
	if n := len(bp.SubmissionTimestamps); n > submissionStampLimit {
		bp.SubmissionTimestamps = append([]time.Time(nil), bp.SubmissionTimestamps[n-submissionStampLimit:]...)
	}
	if avg, ok := averageInterval(bp.SubmissionTimestamps); ok {
		bp.LearningVelocity = math.Min(1, 300/math.Max(avg, 30))
	}
}

// ApplySentiment blends update into the sentiment confidences with an
// exponential moving average, renormalizes, and rederives the levels and
// label that depend on it.
func (s *Summary) ApplySentiment(update Sentiment, weight float64) {
	es := &s.EmotionState
	blend := func(cur, upd float64) float64 {
		return clamp01(cur*(1-weight) + upd*weight)
	}
	next := Sentiment{
		Positive: blend(es.SentimentConfidence.Positive, update.Positive),
		Negative: blend(es.SentimentConfidence.Negative, update.Negative),
		Neutral:  blend(es.SentimentConfidence.Neutral, update.Neutral),
	}
	if total := next.Positive + next.Negative + next.Neutral; total > 0 {
		next.Positive /= total
		next.Negative /= total
		next.Neutral /= total
	}
	es.SentimentConfidence = next
	es.FrustrationLevel = next.Negative
	es.EngagementLevel = next.Positive
	es.CurrentSentiment = s.deriveSentiment()
}

func (s *Summary) deriveSentiment() string {
	es := s.EmotionState
	conf := es.SentimentConfidence
	switch {
	case es.FrustrationLevel >= 0.5:
		return SentimentFrustrated
	case conf.Negative > 0.3 && conf.Negative > conf.Positive:
		return SentimentConfused
	case conf.Positive >= 0.5:
		return SentimentExcited
	default:
		return SentimentNeutral
	}
}

// FrustrationIndex combines emotional frustration, error frequency, help
// seeking and submission time pressure into one score in [0,1].
func (s *Summary) FrustrationIndex(at time.Time) float64 {
	bp := s.BehaviorPatterns
	pressure := 0.0
	var recent []time.Time
	cutoff := at.Add(-5 * time.Minute)
	for _, ts := range bp.SubmissionTimestamps {
		if !ts.Before(cutoff) {
			recent = append(recent, ts)
		}
	}
	if avg, ok := averageInterval(recent); ok {
		pressure = math.Min(1, 60/math.Max(avg, 10))
	}
	idx := 0.4*s.EmotionState.FrustrationLevel +
		0.3*bp.ErrorFrequency +
		0.2*bp.HelpSeekingTendency +
		0.1*pressure
	return clamp01(idx)
}

// RaiseFrustration bumps the frustration level according to how high index
// is and returns the amount added.
func (s *Summary) RaiseFrustration(index float64) float64 {
	var delta float64
	switch {
	case index > 0.7:
		delta = 0.3
	case index > 0.5:
		delta = 0.2
	case index > 0.3:
		delta = 0.1
	default:
		return 0
	}
	before := s.EmotionState.FrustrationLevel
	s.EmotionState.FrustrationLevel = math.Min(1, before+delta)
	s.EmotionState.CurrentSentiment = s.deriveSentiment()
	return s.EmotionState.FrustrationLevel - before
}

// AdjustPersistence moves the persistence score toward target.
func (s *Summary) AdjustPersistence(target, weight float64) {
	bp := &s.BehaviorPatterns
	bp.PersistenceScore = clamp01(bp.PersistenceScore*(1-weight) + target*weight)
}

func (s *Summary) refreshAttention() {
	c := s.BehaviorPatterns.Counters
	focused := float64(c.CodeEdits + c.DOMSelects)
	s.BehaviorPatterns.AttentionStability = clamp01((focused + 1) / (focused + float64(c.FocusChanges+c.IdleCount) + 2))
}

// CountInteraction bumps the lightweight interaction counters.
func (s *Summary) CountInteraction(eventType string, idleMS int64) {
	c := &s.BehaviorPatterns.Counters
	switch eventType {
	case "code_edit":
		c.CodeEdits++
	case "dom_element_select":
		c.DOMSelects++
	case "page_focus_change":
		c.FocusChanges++
	case "user_idle":
		c.IdleCount++
		c.TotalIdleMS += idleMS
	case "click", "page_click":
		c.Clicks++
	case "problem_hint_displayed":
		c.ProblemHints++
	case "idle_hint_displayed":
		c.IdleHints++
	}
	s.refreshAttention()
}

// IncrementQuestionCount records another help request about topic and
// returns the new count.
func (s *Summary) IncrementQuestionCount(topic string) int {
	s.ensureMaps()
	s.BehaviorPatterns.Counters.HelpRequests++
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return 0
	}
	s.BehaviorPatterns.QuestionCounts[topic]++
	return s.BehaviorPatterns.QuestionCounts[topic]
}

func (s *Summary) QuestionCount(topic string) int {
	return s.BehaviorPatterns.QuestionCounts[strings.TrimSpace(topic)]
}

// RecordSubmissionOutcome updates the submission counters. A nil verdict
// counts the submission only.
func (s *Summary) RecordSubmissionOutcome(verdict *bool) {
	c := &s.BehaviorPatterns.Counters
	c.TestSubmissions++
	if verdict == nil {
		return
	}
	if *verdict {
		c.TestPasses++
	} else {
		c.TestFailures++
	}
}

// RecordLevelAccess tracks knowledge level visits. Entering counts a visit,
// leaving adds the time spent.
func (s *Summary) RecordLevelAccess(topicID string, level int, action string, durationMS int64) {
	s.ensureMaps()
	levels := s.BehaviorPatterns.KnowledgeLevelHistory[topicID]
	if levels == nil {
		levels = map[string]LevelStats{}
		s.BehaviorPatterns.KnowledgeLevelHistory[topicID] = levels
	}
	key := strconv.Itoa(level)
	stats := levels[key]
	switch action {
	case "enter":
		stats.Visits++
	case "leave":
		if durationMS > 0 {
			stats.TotalDurationMS += durationMS
		}
	}
	levels[key] = stats
}

// RecordSignificantEdit appends an edit, keeping at most window records, and
// folds it into the edit statistics.
func (s *Summary) RecordSignificantEdit(rec SignificantEditRecord, window int) {
	if window <= 0 {
		window = defaultEditWindow
	}
	bp := &s.BehaviorPatterns
	bp.SignificantEdits = append(bp.SignificantEdits, rec)
	if n := len(bp.SignificantEdits); n > window {
		bp.SignificantEdits = append([]SignificantEditRecord(nil), bp.SignificantEdits[n-window:]...)
	}

	st := &bp.EditStatistics
	st.TotalEdits++
	switch strings.ToLower(rec.Editor) {
	case "html":
		st.HTMLEdits++
	case "css":
		st.CSSEdits++
	case "js", "javascript":
		st.JSEdits++
	default:
		st.OtherEdits++
	}
	st.AvgEditSize += (rec.size() - st.AvgEditSize) / float64(st.TotalEdits)
	deleted, added := rec.Deltas()
	st.TotalDeletedChars += deleted
	st.TotalAddedChars += added
	st.refreshProblemFrequency()
}

// RecordCodingProblem appends a detected problem, keeping at most window
// records.
func (s *Summary) RecordCodingProblem(rec CodingProblemRecord, window int) {
	if window <= 0 {
		window = defaultEditWindow
	}
	bp := &s.BehaviorPatterns
	bp.CodingProblems = append(bp.CodingProblems, rec)
	if n := len(bp.CodingProblems); n > window {
		bp.CodingProblems = append([]CodingProblemRecord(nil), bp.CodingProblems[n-window:]...)
	}
	st := &bp.EditStatistics
	st.ProblemCount++
	if rec.ConsecutiveEdits > st.MaxConsecutiveEdits {
		st.MaxConsecutiveEdits = rec.ConsecutiveEdits
	}
	st.refreshProblemFrequency()
}

func (st *EditStatistics) refreshProblemFrequency() {
	st.ProblemFrequency = math.Min(1, float64(st.ProblemCount)/float64(max(st.TotalEdits, 1)))
}

// MarkSnapshot resets the snapshot counters.
func (s *Summary) MarkSnapshot(at time.Time) {
	t := at
	s.LastSnapshotAt = &t
	s.EventsSinceSnapshot = 0
}

func averageInterval(stamps []time.Time) (float64, bool) {
	if len(stamps) < 2 {
		return 0, false
	}
	total := stamps[len(stamps)-1].Sub(stamps[0]).Seconds()
	return total / float64(len(stamps)-1), true
}
