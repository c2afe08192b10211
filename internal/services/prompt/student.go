package prompt

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
)

const (
	TierBeginner     = "beginner"
	TierIntermediate = "intermediate"
	TierAdvanced     = "advanced"
)

// MasteryTier buckets a mastery probability. Both boundaries are strict:
// 0.5 is beginner and 0.8 is intermediate.
func MasteryTier(p float64) string {
	switch {
	case p > 0.8:
		return TierAdvanced
	case p > 0.5:
		return TierIntermediate
	default:
		return TierBeginner
	}
}

// EmotionStrategy is total: labels are matched case-insensitively and
// anything unrecognized gets the neutral strategy.
func EmotionStrategy(label string) string {
	if s, ok := strategies[strings.ToUpper(strings.TrimSpace(label))]; ok {
		return s
	}
	return strategies[learner.SentimentNeutral]
}

func studentInfo(state *learner.Summary) []string {
	if state.IsNewUser {
		return []string{"STUDENT INFO: This is a new student. Start with basic concepts and be extra patient."}
	}

	lines := []string{"STUDENT INFO: This is an existing student. Build upon previous knowledge."}
	if len(state.BKTModels) > 0 {
		topics := sortedKeys(state.BKTModels)
		mastery := make([]string, 0, len(topics))
		for _, topic := range topics {
			p := state.BKTModels[topic].MasteryProb
			mastery = append(mastery, fmt.Sprintf("%s: %s (mastery: %.2f)", topic, MasteryTier(p), p))
		}
		lines = append(lines, "LEARNING PROGRESS: Student's mastery levels - "+strings.Join(mastery, ", "))
	}
	bp := state.BehaviorPatterns
	lines = append(lines, fmt.Sprintf("BEHAVIOR METRICS: error frequency: %.2f, help-seeking tendency: %.2f, learning velocity: %.2f",
		bp.ErrorFrequency, bp.HelpSeekingTendency, bp.LearningVelocity))

	out := []string{strings.Join(lines, "\n")}
	if history := levelHistory(bp.KnowledgeLevelHistory); history != "" {
		out = append(out, "LEARNING FOCUS: Please pay close attention to the student's behavior patterns to better understand their learning state. Remember that higher knowledge levels are more difficult.\n"+
			"- **Knowledge Level Exploration**: The student has explored the following knowledge levels. Use their visit order, frequency, and dwell time to infer their interests and potential difficulties.\n"+
			history)
	}
	return out
}

func levelHistory(history map[string]map[string]learner.LevelStats) string {
	var topics []string
	for _, topic := range sortedKeys(history) {
		levels := numericLevels(history[topic])
		if len(levels) == 0 {
			continue
		}
		lines := []string{fmt.Sprintf("  For Topic '%s':", topic)}
		for _, level := range levels {
			stats := history[topic][strconv.Itoa(level)]
			lines = append(lines, fmt.Sprintf("  - Level %d: Visited %d time(s), total duration %.1f seconds.",
				level, stats.Visits, float64(stats.TotalDurationMS)/1000))
		}
		topics = append(topics, strings.Join(lines, "\n"))
	}
	return strings.Join(topics, "\n")
}

func numericLevels(levels map[string]learner.LevelStats) []int {
	out := make([]int, 0, len(levels))
	for key := range levels {
		n, err := strconv.Atoi(key)
		if err != nil || strconv.Itoa(n) != key {
			continue
		}
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// topicMastery finds the record for the content title: an exact topic id
// first, then the first topic in sorted order whose id contains the title.
func topicMastery(state *learner.Summary, title string) (learner.MasteryRecord, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return learner.MasteryRecord{}, false
	}
	if rec, ok := state.Mastery(title); ok {
		return rec, true
	}
	needle := strings.ToLower(title)
	for _, topic := range sortedKeys(state.BKTModels) {
		if strings.Contains(strings.ToLower(topic), needle) {
			return state.BKTModels[topic], true
		}
	}
	return learner.MasteryRecord{}, false
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
