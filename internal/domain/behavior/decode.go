package behavior

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Decode parses and validates one JSON event. A missing timestamp defaults to
// the time of receipt.
func Decode(raw []byte) (*Event, error) {
	return DecodeAt(raw, time.Now().UTC())
}

func DecodeAt(raw []byte, receivedAt time.Time) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return nil, invalid(typeErr.Field, "invalid type")
		}
		return nil, invalid("", "malformed json: "+err.Error())
	}
	if strings.TrimSpace(env.ParticipantID) == "" {
		return nil, invalid("participant_id", "field required")
	}
	if env.EventType == "" {
		return nil, invalid("event_type", "field required")
	}
	kind, err := ParseEventType(env.EventType)
	if err != nil {
		return nil, err
	}
	payload, err := decodePayload(kind, env.EventData)
	if err != nil {
		return nil, err
	}
	ts := receivedAt
	if env.Timestamp != nil && strings.TrimSpace(*env.Timestamp) != "" {
		parsed, ok := parseTimestamp(*env.Timestamp)
		if !ok {
			return nil, invalid("timestamp", "unrecognized time format")
		}
		ts = parsed
	}
	return &Event{
		ParticipantID: env.ParticipantID,
		Type:          kind,
		Data:          payload,
		Timestamp:     ts.UTC(),
	}, nil
}

// FromMap decodes the mapping form used by task arguments.
func FromMap(m map[string]any) (*Event, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, invalid("", "unserializable event: "+err.Error())
	}
	return Decode(raw)
}

func decodePayload(kind EventType, raw json.RawMessage) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, invalid("event_data", "must be an object")
	}

	p := newPayload(kind)
	if op, ok := p.(*OpaquePayload); ok {
		op.Fields = map[string]any{}
		if err := json.Unmarshal(trimmed, &op.Fields); err != nil {
			return nil, invalid("event_data", "must be an object")
		}
		return op, nil
	}

	for _, name := range requiredFields[kind] {
		v, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return nil, invalid(name, "field required")
		}
	}
	if err := json.Unmarshal(trimmed, p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, invalid(typeErr.Field, "invalid type")
		}
		return nil, invalid("event_data", err.Error())
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
