package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVsHashesParticipantID(t *testing.T) {
	out := sanitizeKVs([]interface{}{"participant_id", "p1", "topic_id", "loops"})
	if len(out) != 4 {
		t.Fatalf("len=%d", len(out))
	}
	got, _ := out[1].(string)
	if !strings.HasPrefix(got, "hash:") || strings.Contains(got, "p1") {
		t.Fatalf("participant_id not hashed: %q", got)
	}
	if out[3] != "loops" {
		t.Fatalf("topic_id changed: %v", out[3])
	}
}

func TestSanitizeKVsRedactsNestedSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"payload", map[string]interface{}{"redis_password": "x", "level": 2}})
	m, ok := out[1].(map[string]interface{})
	if !ok {
		t.Fatalf("payload type=%T", out[1])
	}
	if m["redis_password"] != "[REDACTED]" {
		t.Fatalf("password not redacted: %v", m["redis_password"])
	}
	if m["level"] != 2 {
		t.Fatalf("level changed: %v", m["level"])
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"k", "v", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected: %v", out)
	}
}

func TestScrubTruncatesLongPayloads(t *testing.T) {
	r := redactor{enabled: true, maxValue: 8}
	got, _ := r.scrub("payload", `{"participant_id":"p1"}`).(string)
	if !strings.HasPrefix(got, `{"partic`) || !strings.Contains(got, "truncated") {
		t.Fatalf("payload not truncated: %q", got)
	}
	if r.scrub("payload", "short") != "short" {
		t.Fatalf("short value changed")
	}
}
