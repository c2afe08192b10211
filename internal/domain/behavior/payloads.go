package behavior

import (
	"fmt"
	"strings"
)

// Payload is the closed set of event_data variants. Recognized kinds without a
// declared shape decode into OpaquePayload.
type Payload interface {
	Kind() EventType
	validate() error
}

type CodeEdit struct {
	EditorName string `json:"editor_name"`
	NewLength  int    `json:"new_length"`
}

func (*CodeEdit) Kind() EventType { return EventCodeEdit }
func (p *CodeEdit) validate() error {
	if p.NewLength < 0 {
		return invalid("new_length", "must be >= 0")
	}
	return nil
}

type AIHelpRequest struct {
	Message      string `json:"message"`
	ContentTitle string `json:"content_title,omitempty"`
}

func (*AIHelpRequest) Kind() EventType { return EventAIHelpRequest }
func (p *AIHelpRequest) validate() error {
	if len(p.Message) == 0 {
		return invalid("message", "must not be empty")
	}
	return nil
}

type TestSubmission struct {
	TopicID   string            `json:"topic_id"`
	Code      map[string]string `json:"code"`
	IsCorrect *bool             `json:"is_correct,omitempty"`
	Passed    *bool             `json:"passed,omitempty"`
}

func (*TestSubmission) Kind() EventType { return EventTestSubmission }
func (p *TestSubmission) validate() error {
	if strings.TrimSpace(p.TopicID) == "" {
		return invalid("topic_id", "must not be empty")
	}
	return nil
}

// Verdict returns the correctness signal carried by the submission, if any.
// is_correct wins over passed.
func (p *TestSubmission) Verdict() (bool, bool) {
	if p.IsCorrect != nil {
		return *p.IsCorrect, true
	}
	if p.Passed != nil {
		return *p.Passed, true
	}
	return false, false
}

type DOMElementSelect struct {
	TagName  string `json:"tag_name"`
	Selector string `json:"selector"`
}

func (*DOMElementSelect) Kind() EventType { return EventDOMElementSelect }
func (*DOMElementSelect) validate() error { return nil }

type UserIdle struct {
	DurationMS int64 `json:"duration_ms"`
}

func (*UserIdle) Kind() EventType { return EventUserIdle }
func (p *UserIdle) validate() error {
	if p.DurationMS <= 0 {
		return invalid("duration_ms", "must be > 0")
	}
	return nil
}

const (
	ActionEnter = "enter"
	ActionLeave = "leave"
)

type KnowledgeLevelAccess struct {
	TopicID    string `json:"topic_id"`
	Level      int    `json:"level"`
	Action     string `json:"action"`
	DurationMS *int64 `json:"duration_ms,omitempty"`
}

func (*KnowledgeLevelAccess) Kind() EventType { return EventKnowledgeLevelAccess }
func (p *KnowledgeLevelAccess) validate() error {
	switch p.Action {
	case ActionEnter:
		if p.DurationMS != nil {
			return invalid("duration_ms", "only allowed when action is leave")
		}
	case ActionLeave:
		if p.DurationMS != nil && *p.DurationMS < 0 {
			return invalid("duration_ms", "must be >= 0")
		}
	default:
		return invalid("action", fmt.Sprintf("must be %q or %q", ActionEnter, ActionLeave))
	}
	return nil
}

type StateSnapshot struct {
	ProfileData map[string]any `json:"profile_data"`
}

func (*StateSnapshot) Kind() EventType { return EventStateSnapshot }
func (*StateSnapshot) validate() error { return nil }

const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

type CodingProblem struct {
	Editor           string `json:"editor"`
	ConsecutiveEdits int    `json:"consecutive_edits"`
	Severity         string `json:"severity"`
	NetChange        int    `json:"net_change"`
	DurationMS       int64  `json:"duration_ms"`
	DeletedChars     *int   `json:"deleted_chars,omitempty"`
	AddedChars       *int   `json:"added_chars,omitempty"`
}

func (*CodingProblem) Kind() EventType { return EventCodingProblem }
func (p *CodingProblem) validate() error {
	if p.ConsecutiveEdits < 1 {
		return invalid("consecutive_edits", "must be >= 1")
	}
	switch p.Severity {
	case SeverityLow, SeverityMedium, SeverityHigh:
	default:
		return invalid("severity", "must be one of low, medium, high")
	}
	if p.DurationMS < 0 {
		return invalid("duration_ms", "must be >= 0")
	}
	if err := nonNegative("deleted_chars", p.DeletedChars); err != nil {
		return err
	}
	return nonNegative("added_chars", p.AddedChars)
}

type SignificantEdit struct {
	Editor           string `json:"editor"`
	EditType         string `json:"edit_type"`
	NetChange        int    `json:"net_change"`
	AbsoluteChange   int    `json:"absolute_change"`
	DurationMS       int64  `json:"duration_ms"`
	ConsecutiveEdits int    `json:"consecutive_edits"`
	DeletedChars     *int   `json:"deleted_chars,omitempty"`
	AddedChars       *int   `json:"added_chars,omitempty"`
	TotalModified    *int   `json:"total_modified,omitempty"`
}

func (*SignificantEdit) Kind() EventType { return EventSignificantEdit }
func (p *SignificantEdit) validate() error { return p.check("") }

func (p *SignificantEdit) check(prefix string) error {
	if p.AbsoluteChange < 0 {
		return invalid(prefix+"absolute_change", "must be >= 0")
	}
	if p.DurationMS < 0 {
		return invalid(prefix+"duration_ms", "must be >= 0")
	}
	if p.ConsecutiveEdits < 0 {
		return invalid(prefix+"consecutive_edits", "must be >= 0")
	}
	if err := nonNegative(prefix+"deleted_chars", p.DeletedChars); err != nil {
		return err
	}
	if err := nonNegative(prefix+"added_chars", p.AddedChars); err != nil {
		return err
	}
	return nonNegative(prefix+"total_modified", p.TotalModified)
}

type ProblemHintDisplayed struct {
	Editor    string `json:"editor"`
	EditCount int    `json:"edit_count"`
	Message   string `json:"message"`
}

func (*ProblemHintDisplayed) Kind() EventType { return EventProblemHintDisplayed }
func (p *ProblemHintDisplayed) validate() error {
	if p.EditCount < 0 {
		return invalid("edit_count", "must be >= 0")
	}
	return nil
}

// SignificantEditsBatch carries edit records flushed together by the client.
// Records are lenient: only their numeric bounds are checked.
type SignificantEditsBatch struct {
	BatchID string            `json:"batch_id"`
	Count   int               `json:"count"`
	Edits   []SignificantEdit `json:"edits"`
}

func (*SignificantEditsBatch) Kind() EventType { return EventSignificantEditBatch }
func (p *SignificantEditsBatch) validate() error {
	if p.Count < 0 {
		return invalid("count", "must be >= 0")
	}
	for i := range p.Edits {
		if err := p.Edits[i].check(fmt.Sprintf("edits[%d].", i)); err != nil {
			return err
		}
	}
	return nil
}

type IdleHintDisplayed struct {
	Message string `json:"message"`
	IdleMS  int64  `json:"idle_ms"`
	PageURL string `json:"page_url"`
}

func (*IdleHintDisplayed) Kind() EventType { return EventIdleHintDisplayed }
func (p *IdleHintDisplayed) validate() error {
	if p.IdleMS < 0 {
		return invalid("idle_ms", "must be >= 0")
	}
	return nil
}

// OpaquePayload keeps event_data for kinds that have no declared shape.
type OpaquePayload struct {
	Type   EventType
	Fields map[string]any
}

func (p *OpaquePayload) Kind() EventType { return p.Type }
func (*OpaquePayload) validate() error  { return nil }

func nonNegative(field string, v *int) error {
	if v != nil && *v < 0 {
		return invalid(field, "must be >= 0")
	}
	return nil
}

// requiredFields lists, in check order, the keys that must be present and
// non-null in event_data for each shaped kind.
var requiredFields = map[EventType][]string{
	EventCodeEdit:             {"editor_name", "new_length"},
	EventAIHelpRequest:        {"message"},
	EventTestSubmission:       {"topic_id", "code"},
	EventDOMElementSelect:     {"tag_name", "selector"},
	EventUserIdle:             {"duration_ms"},
	EventKnowledgeLevelAccess: {"topic_id", "level", "action"},
	EventStateSnapshot:        {"profile_data"},
	EventCodingProblem:        {"editor", "consecutive_edits", "severity"},
	EventSignificantEdit:      {"editor", "edit_type", "net_change", "absolute_change", "duration_ms"},
	EventProblemHintDisplayed: {"editor", "edit_count", "message"},
	EventSignificantEditBatch: {"batch_id", "count", "edits"},
	EventIdleHintDisplayed:    {"message", "idle_ms", "page_url"},
}

func newPayload(t EventType) Payload {
	switch t {
	case EventCodeEdit:
		return &CodeEdit{}
	case EventAIHelpRequest:
		return &AIHelpRequest{}
	case EventTestSubmission:
		return &TestSubmission{}
	case EventDOMElementSelect:
		return &DOMElementSelect{}
	case EventUserIdle:
		return &UserIdle{}
	case EventKnowledgeLevelAccess:
		return &KnowledgeLevelAccess{}
	case EventStateSnapshot:
		return &StateSnapshot{}
	case EventCodingProblem:
		return &CodingProblem{}
	case EventSignificantEdit:
		return &SignificantEdit{}
	case EventProblemHintDisplayed:
		return &ProblemHintDisplayed{}
	case EventSignificantEditBatch:
		return &SignificantEditsBatch{}
	case EventIdleHintDisplayed:
		return &IdleHintDisplayed{}
	default:
		return &OpaquePayload{Type: t}
	}
}
