package learner

import (
	"encoding/json"
	"time"
)

const (
	SentimentFrustrated = "FRUSTRATED"
	SentimentConfused   = "CONFUSED"
	SentimentExcited    = "EXCITED"
	SentimentNeutral    = "NEUTRAL"
)

const (
	recentEventsLimit    = 100
	submissionStampLimit = 50
	defaultEditWindow    = 100
	behaviorWindow       = 10 * time.Minute
)

// Summary is the per-participant learner state. It is written only by the
// interpreter (through the learner state service) and read by the prompt
// compiler.
type Summary struct {
	ParticipantID    string                   `json:"participant_id"`
	IsNewUser        bool                     `json:"is_new_user"`
	EmotionState     EmotionState             `json:"emotion_state"`
	BKTModels        map[string]MasteryRecord `json:"bkt_models"`
	BehaviorPatterns BehaviorPatterns         `json:"behavior_patterns"`

	EventCount          int64      `json:"event_count"`
	EventsSinceSnapshot int        `json:"events_since_snapshot"`
	LastSnapshotAt      *time.Time `json:"last_snapshot_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

type Sentiment struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
}

type EmotionState struct {
	CurrentSentiment    string    `json:"current_sentiment"`
	SentimentConfidence Sentiment `json:"sentiment_confidence"`
	FrustrationLevel    float64   `json:"frustration_level"`
	EngagementLevel     float64   `json:"engagement_level"`
	ConfidenceLevel     float64   `json:"confidence_level"`
}

type BehaviorPatterns struct {
	EditStatistics        EditStatistics                   `json:"edit_statistics"`
	SignificantEdits      []SignificantEditRecord          `json:"significant_edits"`
	CodingProblems        []CodingProblemRecord            `json:"coding_problems"`
	KnowledgeLevelHistory map[string]map[string]LevelStats `json:"knowledge_level_history"`

	ErrorFrequency      float64 `json:"error_frequency"`
	HelpSeekingTendency float64 `json:"help_seeking_tendency"`
	LearningVelocity    float64 `json:"learning_velocity"`
	PersistenceScore    float64 `json:"persistence_score"`
	AttentionStability  float64 `json:"attention_stability"`

	Counters             BehaviorCounters `json:"behavior_counters"`
	QuestionCounts       map[string]int   `json:"question_counts"`
	RecentEvents         []RecentEvent    `json:"recent_events"`
	SubmissionTimestamps []time.Time      `json:"submission_timestamps"`
}

type EditStatistics struct {
	TotalEdits          int     `json:"total_edits"`
	HTMLEdits           int     `json:"html_edits"`
	CSSEdits            int     `json:"css_edits"`
	JSEdits             int     `json:"js_edits"`
	OtherEdits          int     `json:"other_edits"`
	AvgEditSize         float64 `json:"avg_edit_size"`
	ProblemCount        int     `json:"problem_count"`
	ProblemFrequency    float64 `json:"problem_frequency"`
	TotalDeletedChars   int     `json:"total_deleted_chars"`
	TotalAddedChars     int     `json:"total_added_chars"`
	MaxConsecutiveEdits int     `json:"max_consecutive_edits"`
}

type SignificantEditRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	Editor           string    `json:"editor"`
	EditType         string    `json:"edit_type"`
	NetChange        int       `json:"net_change"`
	AbsoluteChange   int       `json:"absolute_change"`
	DurationMS       int64     `json:"duration_ms"`
	ConsecutiveEdits int       `json:"consecutive_edits"`
	DeletedChars     *int      `json:"deleted_chars,omitempty"`
	AddedChars       *int      `json:"added_chars,omitempty"`
	TotalModified    *int      `json:"total_modified,omitempty"`
}

// Deltas returns deleted and added character counts, falling back to the sign
// of net_change when the client did not report them.
func (r SignificantEditRecord) Deltas() (deleted, added int) {
	switch {
	case r.DeletedChars != nil:
		deleted = *r.DeletedChars
	case r.NetChange < 0:
		deleted = -r.NetChange
	}
	switch {
	case r.AddedChars != nil:
		added = *r.AddedChars
	case r.NetChange > 0:
		added = r.NetChange
	}
	return deleted, added
}

func (r SignificantEditRecord) size() float64 {
	switch {
	case r.TotalModified != nil:
		return float64(*r.TotalModified)
	case r.AbsoluteChange > 0:
		return float64(r.AbsoluteChange)
	case r.NetChange < 0:
		return float64(-r.NetChange)
	default:
		return float64(r.NetChange)
	}
}

type CodingProblemRecord struct {
	Timestamp        time.Time `json:"timestamp"`
	Editor           string    `json:"editor"`
	ConsecutiveEdits int       `json:"consecutive_edits"`
	Severity         string    `json:"severity"`
	NetChange        int       `json:"net_change"`
	DurationMS       int64     `json:"duration_ms"`
	DeletedChars     *int      `json:"deleted_chars,omitempty"`
	AddedChars       *int      `json:"added_chars,omitempty"`
}

type LevelStats struct {
	Visits          int   `json:"visits"`
	TotalDurationMS int64 `json:"total_duration_ms"`
}

type BehaviorCounters struct {
	HelpRequests    int   `json:"help_requests"`
	CodeEdits       int   `json:"code_edits"`
	DOMSelects      int   `json:"dom_selects"`
	FocusChanges    int   `json:"focus_changes"`
	Clicks          int   `json:"clicks"`
	IdleCount       int   `json:"idle_count"`
	TotalIdleMS     int64 `json:"total_idle_ms"`
	TestSubmissions int   `json:"test_submissions"`
	TestPasses      int   `json:"test_passes"`
	TestFailures    int   `json:"test_failures"`
	ProblemHints    int   `json:"problem_hints"`
	IdleHints       int   `json:"idle_hints"`
}

type RecentEvent struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	IsCorrect *bool     `json:"is_correct,omitempty"`
}

// NewSummary returns the state of a participant with no history.
func NewSummary(participantID string, now time.Time) *Summary {
	return &Summary{
		ParticipantID: participantID,
		IsNewUser:     true,
		EmotionState: EmotionState{
			CurrentSentiment:    SentimentNeutral,
			SentimentConfidence: Sentiment{Neutral: 1},
			EngagementLevel:     0.5,
			ConfidenceLevel:     0.5,
		},
		BKTModels: map[string]MasteryRecord{},
		BehaviorPatterns: BehaviorPatterns{
			KnowledgeLevelHistory: map[string]map[string]LevelStats{},
			LearningVelocity:      0.5,
			PersistenceScore:      0.5,
			AttentionStability:    0.5,
			QuestionCounts:        map[string]int{},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy.
func (s *Summary) Clone() *Summary {
	raw, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	out := &Summary{}
	if err := json.Unmarshal(raw, out); err != nil {
		panic(err)
	}
	out.ensureMaps()
	return out
}

func (s *Summary) ensureMaps() {
	if s.BKTModels == nil {
		s.BKTModels = map[string]MasteryRecord{}
	}
	if s.BehaviorPatterns.KnowledgeLevelHistory == nil {
		s.BehaviorPatterns.KnowledgeLevelHistory = map[string]map[string]LevelStats{}
	}
	if s.BehaviorPatterns.QuestionCounts == nil {
		s.BehaviorPatterns.QuestionCounts = map[string]int{}
	}
	if s.EmotionState.CurrentSentiment == "" {
		s.EmotionState.CurrentSentiment = SentimentNeutral
	}
}

// Mastery returns the canonical mastery record for a topic.
func (s *Summary) Mastery(topicID string) (MasteryRecord, bool) {
	rec, ok := s.BKTModels[topicID]
	return rec, ok
}
