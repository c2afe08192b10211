package behavior

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventCodeEdit             EventType = "code_edit"
	EventAIHelpRequest        EventType = "ai_help_request"
	EventTestSubmission       EventType = "test_submission"
	EventDOMElementSelect     EventType = "dom_element_select"
	EventUserIdle             EventType = "user_idle"
	EventKnowledgeLevelAccess EventType = "knowledge_level_access"
	EventStateSnapshot        EventType = "state_snapshot"
	EventCodingProblem        EventType = "coding_problem"
	EventSignificantEdit      EventType = "significant_edit"
	EventProblemHintDisplayed EventType = "problem_hint_displayed"
	EventSignificantEditBatch EventType = "significant_edits_batch"
	EventIdleHintDisplayed    EventType = "idle_hint_displayed"
	EventClick                EventType = "click"
	EventPageClick            EventType = "page_click"
	EventPageFocusChange      EventType = "page_focus_change"
	EventAIResponse           EventType = "ai_response"
)

var knownTypes = map[EventType]struct{}{
	EventCodeEdit:             {},
	EventAIHelpRequest:        {},
	EventTestSubmission:       {},
	EventDOMElementSelect:     {},
	EventUserIdle:             {},
	EventKnowledgeLevelAccess: {},
	EventStateSnapshot:        {},
	EventCodingProblem:        {},
	EventSignificantEdit:      {},
	EventProblemHintDisplayed: {},
	EventSignificantEditBatch: {},
	EventIdleHintDisplayed:    {},
	EventClick:                {},
	EventPageClick:            {},
	EventPageFocusChange:      {},
	EventAIResponse:           {},
}

func ParseEventType(raw string) (EventType, error) {
	t := EventType(raw)
	if _, ok := knownTypes[t]; !ok {
		return "", invalid("event_type", "unknown event type "+raw)
	}
	return t, nil
}

func (t EventType) Valid() bool {
	_, ok := knownTypes[t]
	return ok
}

// Event is one decoded behavior event. Data always matches Type.
type Event struct {
	ParticipantID string
	Type          EventType
	Data          Payload
	Timestamp     time.Time
}

type envelope struct {
	ParticipantID string          `json:"participant_id"`
	EventType     string          `json:"event_type"`
	EventData     json.RawMessage `json:"event_data,omitempty"`
	Timestamp     *string         `json:"timestamp,omitempty"`
}

func (e *Event) MarshalJSON() ([]byte, error) {
	data, err := marshalPayload(e.Data)
	if err != nil {
		return nil, err
	}
	ts := e.Timestamp.UTC().Format(time.RFC3339Nano)
	return json.Marshal(envelope{
		ParticipantID: e.ParticipantID,
		EventType:     string(e.Type),
		EventData:     data,
		Timestamp:     &ts,
	})
}

// ToMap renders the event as a JSON-compatible mapping, the shape task
// arguments and the audit log carry.
func (e *Event) ToMap() (map[string]any, error) {
	data, err := e.DataMap()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"participant_id": e.ParticipantID,
		"event_type":     string(e.Type),
		"event_data":     data,
		"timestamp":      e.Timestamp.UTC().Format(time.RFC3339Nano),
	}, nil
}

func (e *Event) DataMap() (map[string]any, error) {
	if op, ok := e.Data.(*OpaquePayload); ok {
		out := make(map[string]any, len(op.Fields))
		for k, v := range op.Fields {
			out[k] = v
		}
		return out, nil
	}
	raw, err := marshalPayload(e.Data)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func marshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	if op, ok := p.(*OpaquePayload); ok {
		if op.Fields == nil {
			return []byte("{}"), nil
		}
		return json.Marshal(op.Fields)
	}
	return json.Marshal(p)
}
