package behavior

import (
	"errors"
	"testing"
	"time"
)

func mustDecode(t *testing.T, raw string) *Event {
	t.Helper()
	ev, err := Decode([]byte(raw))
	if err != nil {
		t.Fatalf("Decode(%s): %v", raw, err)
	}
	return ev
}

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %T: %v", err, err)
	}
	return ve.Field
}

func TestDecodeAcceptsEveryShapedKind(t *testing.T) {
	valid := map[EventType]string{
		EventCodeEdit:             `{"editor_name":"html","new_length":12}`,
		EventAIHelpRequest:        `{"message":"why is my loop infinite?"}`,
		EventTestSubmission:       `{"topic_id":"loops","code":{"js":"for(;;){}"},"is_correct":true}`,
		EventDOMElementSelect:     `{"tag_name":"div","selector":"#main"}`,
		EventUserIdle:             `{"duration_ms":5000}`,
		EventKnowledgeLevelAccess: `{"topic_id":"loops","level":2,"action":"leave","duration_ms":3000}`,
		EventStateSnapshot:        `{"profile_data":{"is_new_user":false}}`,
		EventCodingProblem:        `{"editor":"js","consecutive_edits":4,"severity":"high","net_change":0,"duration_ms":1200}`,
		EventSignificantEdit:      `{"editor":"css","edit_type":"large_addition","net_change":40,"absolute_change":40,"duration_ms":800,"consecutive_edits":0,"added_chars":40}`,
		EventProblemHintDisplayed: `{"editor":"js","edit_count":6,"message":"take a break"}`,
		EventSignificantEditBatch: `{"batch_id":"b1","count":1,"edits":[{"editor":"js","edit_type":"edit_cycle","net_change":-3,"absolute_change":3}]}`,
		EventIdleHintDisplayed:    `{"message":"still there?","idle_ms":60000,"page_url":"/lesson/1"}`,
		EventClick:                `{"x":10,"y":20}`,
		EventPageFocusChange:      `{"focused":false}`,
		EventAIResponse:           `{"text":"try a while loop","model":"tutor"}`,
	}
	for kind, data := range valid {
		raw := `{"participant_id":"p1","event_type":"` + string(kind) + `","event_data":` + data + `}`
		ev := mustDecode(t, raw)
		if ev.Type != kind || ev.Data.Kind() != kind {
			t.Fatalf("%s: decoded as %s/%s", kind, ev.Type, ev.Data.Kind())
		}
	}
}

func TestDecodeRejectsNamingTheField(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		field string
	}{
		{"idle zero", `{"participant_id":"p1","event_type":"user_idle","event_data":{"duration_ms":0}}`, "duration_ms"},
		{"idle negative", `{"participant_id":"p1","event_type":"user_idle","event_data":{"duration_ms":-5}}`, "duration_ms"},
		{"idle missing", `{"participant_id":"p1","event_type":"user_idle","event_data":{}}`, "duration_ms"},
		{"severity", `{"participant_id":"p1","event_type":"coding_problem","event_data":{"editor":"js","consecutive_edits":2,"severity":"critical"}}`, "severity"},
		{"consecutive", `{"participant_id":"p1","event_type":"coding_problem","event_data":{"editor":"js","consecutive_edits":0,"severity":"low"}}`, "consecutive_edits"},
		{"first missing wins", `{"participant_id":"p1","event_type":"code_edit","event_data":{}}`, "editor_name"},
		{"empty message", `{"participant_id":"p1","event_type":"ai_help_request","event_data":{"message":""}}`, "message"},
		{"bad action", `{"participant_id":"p1","event_type":"knowledge_level_access","event_data":{"topic_id":"t","level":1,"action":"hover"}}`, "action"},
		{"duration on enter", `{"participant_id":"p1","event_type":"knowledge_level_access","event_data":{"topic_id":"t","level":1,"action":"enter","duration_ms":5}}`, "duration_ms"},
		{"negative absolute", `{"participant_id":"p1","event_type":"significant_edit","event_data":{"editor":"js","edit_type":"x","net_change":1,"absolute_change":-1,"duration_ms":10}}`, "absolute_change"},
		{"batch record", `{"participant_id":"p1","event_type":"significant_edits_batch","event_data":{"batch_id":"b","count":2,"edits":[{"absolute_change":1},{"duration_ms":-1}]}}`, "edits[1].duration_ms"},
		{"edit duration missing", `{"participant_id":"p1","event_type":"significant_edit","event_data":{"editor":"js","edit_type":"x","net_change":1,"absolute_change":1}}`, "duration_ms"},
		{"hint edit count missing", `{"participant_id":"p1","event_type":"problem_hint_displayed","event_data":{"editor":"js","message":"slow down"}}`, "edit_count"},
		{"idle hint ms missing", `{"participant_id":"p1","event_type":"idle_hint_displayed","event_data":{"message":"still there?","page_url":"/x"}}`, "idle_ms"},
		{"idle hint url missing", `{"participant_id":"p1","event_type":"idle_hint_displayed","event_data":{"message":"still there?","idle_ms":10}}`, "page_url"},
		{"batch count missing", `{"participant_id":"p1","event_type":"significant_edits_batch","event_data":{"batch_id":"b","edits":[]}}`, "count"},
		{"wrong type", `{"participant_id":"p1","event_type":"user_idle","event_data":{"duration_ms":"long"}}`, "duration_ms"},
		{"unknown kind", `{"participant_id":"p1","event_type":"keyboard_mash","event_data":{}}`, "event_type"},
		{"no participant", `{"event_type":"user_idle","event_data":{"duration_ms":10}}`, "participant_id"},
		{"bad timestamp", `{"participant_id":"p1","event_type":"user_idle","event_data":{"duration_ms":10},"timestamp":"yesterday"}`, "timestamp"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.raw))
			if err == nil {
				t.Fatalf("expected rejection")
			}
			if got := fieldOf(t, err); got != tc.field {
				t.Fatalf("field=%q want %q (%v)", got, tc.field, err)
			}
		})
	}
}

func TestDecodeAIResponseKeepsFields(t *testing.T) {
	ev := mustDecode(t, `{"participant_id":"p1","event_type":"ai_response","event_data":{"text":"look at line 3","tokens":42}}`)
	op, ok := ev.Data.(*OpaquePayload)
	if !ok || op.Kind() != EventAIResponse {
		t.Fatalf("payload: got %T", ev.Data)
	}
	if op.Fields["text"] != "look at line 3" {
		t.Fatalf("fields: got %v", op.Fields)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	ev := mustDecode(t, `{"participant_id":"p1","event_type":"user_idle","event_data":{"duration_ms":5000,"client_version":"9.9"},"extra":true}`)
	idle, ok := ev.Data.(*UserIdle)
	if !ok {
		t.Fatalf("payload type=%T", ev.Data)
	}
	if idle.DurationMS != 5000 {
		t.Fatalf("duration=%d", idle.DurationMS)
	}
}

func TestDecodeTimestampDefaultsToReceipt(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev, err := DecodeAt([]byte(`{"participant_id":"p1","event_type":"user_idle","event_data":{"duration_ms":1}}`), at)
	if err != nil {
		t.Fatalf("DecodeAt: %v", err)
	}
	if !ev.Timestamp.Equal(at) {
		t.Fatalf("timestamp=%v", ev.Timestamp)
	}
	ev, err = DecodeAt([]byte(`{"participant_id":"p1","event_type":"user_idle","event_data":{"duration_ms":1},"timestamp":"2026-02-01T08:30:00"}`), at)
	if err != nil {
		t.Fatalf("DecodeAt naive: %v", err)
	}
	if ev.Timestamp.Month() != time.February || ev.Timestamp.Hour() != 8 {
		t.Fatalf("timestamp=%v", ev.Timestamp)
	}
}

func TestToMapRoundTripsThroughFromMap(t *testing.T) {
	ev := mustDecode(t, `{"participant_id":"p1","event_type":"test_submission","event_data":{"topic_id":"loops","code":{"js":"x"},"passed":false},"timestamp":"2026-01-02T03:04:05Z"}`)
	m, err := ev.ToMap()
	if err != nil {
		t.Fatalf("ToMap: %v", err)
	}
	back, err := FromMap(m)
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	sub, ok := back.Data.(*TestSubmission)
	if !ok {
		t.Fatalf("payload type=%T", back.Data)
	}
	correct, ok := sub.Verdict()
	if !ok || correct {
		t.Fatalf("verdict=%v ok=%v", correct, ok)
	}
	if !back.Timestamp.Equal(ev.Timestamp) {
		t.Fatalf("timestamp drift: %v vs %v", back.Timestamp, ev.Timestamp)
	}
}

func TestVerdictPrefersIsCorrect(t *testing.T) {
	yes, no := true, false
	sub := &TestSubmission{TopicID: "t", IsCorrect: &yes, Passed: &no}
	if v, ok := sub.Verdict(); !ok || !v {
		t.Fatalf("verdict=%v ok=%v", v, ok)
	}
	if _, ok := (&TestSubmission{TopicID: "t"}).Verdict(); ok {
		t.Fatalf("expected no verdict")
	}
}
