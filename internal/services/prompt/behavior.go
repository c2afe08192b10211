package prompt

import (
	"fmt"
	"strings"

	"github.com/yungbote/neurobridge-tutor/internal/domain/learner"
)

const (
	recentEditWindow    = 20
	recentProblemWindow = 5
	ratioWindow         = 10
)

func codingBehaviorAnalysis(bp learner.BehaviorPatterns) string {
	st := bp.EditStatistics
	if st.TotalEdits == 0 && st.ProblemCount == 0 && len(bp.SignificantEdits) == 0 && len(bp.CodingProblems) == 0 {
		return ""
	}

	var lines []string
	lines = append(lines,
		"## Code Edit Statistics",
		fmt.Sprintf("- **Total edits**: %d", st.TotalEdits),
		fmt.Sprintf("- **HTML edits**: %d", st.HTMLEdits),
		fmt.Sprintf("- **CSS edits**: %d", st.CSSEdits),
		fmt.Sprintf("- **JS edits**: %d", st.JSEdits),
		fmt.Sprintf("- **Average edit size**: %.1f characters", st.AvgEditSize),
		fmt.Sprintf("- **Problem frequency**: %.1f%%", st.ProblemFrequency*100),
	)

	recent := tail(bp.SignificantEdits, recentEditWindow)
	if len(recent) > 0 {
		deleted, added := 0, 0
		types := map[string]int{}
		for _, e := range recent {
			d, a := e.Deltas()
			deleted += d
			added += a
			types[editType(e)]++
		}
		lines = append(lines,
			"\n## Edit Pattern Analysis",
			fmt.Sprintf("- **Last %d edits**: deleted %d characters, added %d characters", len(recent), deleted, added),
			fmt.Sprintf("- **Net change**: %d characters", added-deleted),
			"- **Edit type distribution**: "+countList(types, ": "),
		)
	}

	if problems := tail(bp.CodingProblems, recentProblemWindow); len(problems) > 0 {
		lines = append(lines, "\n## Recent Coding Problems")
		for i, p := range problems {
			if p.DeletedChars != nil && p.AddedChars != nil {
				lines = append(lines, fmt.Sprintf("%d. **%s editor**: %d consecutive edits, severity: %s, deleted: %d characters, added: %d characters",
					i+1, orUnknown(p.Editor), p.ConsecutiveEdits, orUnknown(p.Severity), *p.DeletedChars, *p.AddedChars))
			} else {
				lines = append(lines, fmt.Sprintf("%d. **%s editor**: %d consecutive edits, severity: %s, net change: %d characters",
					i+1, orUnknown(p.Editor), p.ConsecutiveEdits, orUnknown(p.Severity), p.NetChange))
			}
		}
	}

	if len(recent) > 0 {
		lines = append(lines, "\n## Per-Editor Habits")
		lines = append(lines, editorHabits(recent)...)
	}

	lines = append(lines, "\n## Teaching Recommendations")
	lines = append(lines, recommendations(st, bp.SignificantEdits)...)
	return strings.Join(lines, "\n")
}

type editorStats struct {
	count   int
	deleted int
	added   int
	types   map[string]int
}

func editorHabits(recent []learner.SignificantEditRecord) []string {
	stats := map[string]*editorStats{}
	for _, e := range recent {
		name := orUnknown(e.Editor)
		s := stats[name]
		if s == nil {
			s = &editorStats{types: map[string]int{}}
			stats[name] = s
		}
		d, a := e.Deltas()
		s.count++
		s.deleted += d
		s.added += a
		s.types[editType(e)]++
	}
	out := make([]string, 0, len(stats))
	for _, name := range sortedKeys(stats) {
		s := stats[name]
		out = append(out, fmt.Sprintf("- **%s**: %d edits, average deleted: %.1f characters, average added: %.1f characters, %s",
			name, s.count, float64(s.deleted)/float64(s.count), float64(s.added)/float64(s.count), countList(s.types, ":")))
	}
	return out
}

// recommendations evaluates every rule independently; several may fire.
func recommendations(st learner.EditStatistics, edits []learner.SignificantEditRecord) []string {
	var out []string
	switch {
	case st.ProblemFrequency > 0.3:
		out = append(out, "- The student is running into many coding problems and needs more explanation of the basic concepts with step-by-step guidance.")
	case st.ProblemFrequency > 0.1:
		out = append(out, "- The student is running into some coding problems. Offer targeted hints and examples.")
	default:
		out = append(out, "- The student is progressing smoothly. You can add more challenging content.")
	}

	switch {
	case st.JSEdits > (st.HTMLEdits+st.CSSEdits)*2:
		out = append(out, "- The student is focused on JavaScript logic and may need support with HTML/CSS fundamentals.")
	case st.HTMLEdits > (st.CSSEdits+st.JSEdits)*2:
		out = append(out, "- The student is focused on HTML structure and may need guidance on CSS styling and JavaScript interaction.")
	}

	last := tail(edits, ratioWindow)
	for _, e := range last {
		if strings.Contains(e.EditType, "edit_cycle") {
			out = append(out, "- The student is debugging and rewriting, which shows they are working through the problem. Encourage this persistence.")
			break
		}
	}

	deleted, added := 0, 0
	for _, e := range last {
		d, a := e.Deltas()
		deleted += d
		added += a
	}
	switch {
	case float64(deleted) > float64(added)*1.5:
		out = append(out, "- The student is deleting a lot of code and may be struggling with the design or with understanding.")
	case float64(added) > float64(deleted)*2:
		out = append(out, "- The student is actively writing code and is well motivated. Offer more creative tasks.")
	}
	return out
}

func countList(counts map[string]int, sep string) string {
	parts := make([]string, 0, len(counts))
	for _, k := range sortedKeys(counts) {
		parts = append(parts, fmt.Sprintf("%s%s%d", k, sep, counts[k]))
	}
	return strings.Join(parts, ", ")
}

func editType(e learner.SignificantEditRecord) string {
	return orUnknown(e.EditType)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
