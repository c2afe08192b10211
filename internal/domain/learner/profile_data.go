package learner

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ProfileData renders the summary in the mapping form stored inside
// state_snapshot events.
func (s *Summary) ProfileData() (map[string]any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal summary: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	return out, nil
}

// SummaryFromProfileData restores a summary from snapshot profile data.
func SummaryFromProfileData(participantID string, data map[string]any) (*Summary, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal profile data: %w", err)
	}
	s := &Summary{}
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("decode profile data: %w", err)
	}
	s.ParticipantID = participantID
	s.ensureMaps()
	return s, nil
}

// UnmarshalJSON accepts every stored shape of the summary. Older documents
// keep mastery under "bkt_model" and may hold bare probabilities; both are
// normalized through NormalizeMastery. Entries of any other shape are dropped.
func (s *Summary) UnmarshalJSON(raw []byte) error {
	type plain Summary
	aux := struct {
		*plain
		BKTModels json.RawMessage `json:"bkt_models"`
		LegacyBKT json.RawMessage `json:"bkt_model"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(raw, &aux); err != nil {
		return err
	}
	models := aux.BKTModels
	if isNullJSON(models) {
		models = aux.LegacyBKT
	}
	s.BKTModels = nil
	if isNullJSON(models) {
		return nil
	}
	var byTopic map[string]any
	if err := json.Unmarshal(models, &byTopic); err != nil {
		return fmt.Errorf("bkt_models: %w", err)
	}
	s.BKTModels = make(map[string]MasteryRecord, len(byTopic))
	for topic, v := range byTopic {
		if rec, ok := NormalizeMastery(v); ok {
			s.BKTModels[topic] = rec
		}
	}
	return nil
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
