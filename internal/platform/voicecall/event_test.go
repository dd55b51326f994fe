package voicecall

import (
	"testing"
	"time"
)

func TestParseCallEvent_TopLevel(t *testing.T) {
	body := []byte(`{
		"event": "call_ended",
		"call_id": "call_1",
		"transcript": "Agent: hi\nUser: chest pain",
		"metadata": {"user_id": "u1"},
		"end_timestamp": 1700000000000,
		"call_duration": 42000
	}`)
	ev, err := ParseCallEvent(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.Event != EventCallEnded || ev.CallID != "call_1" || ev.UserID != "u1" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.DurationMs != 42000 {
		t.Errorf("expected duration 42000, got %d", ev.DurationMs)
	}
	if !ev.EndTime().Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("unexpected end time %s", ev.EndTime())
	}
}

func TestParseCallEvent_Nested(t *testing.T) {
	body := []byte(`{
		"event": "call_ended",
		"call": {
			"call_id": "call_2",
			"transcript": "hello",
			"metadata": {"user_id": "u2"},
			"start_timestamp": 1700000000000,
			"end_timestamp": 1700000030000
		}
	}`)
	ev, err := ParseCallEvent(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.CallID != "call_2" || ev.Transcript != "hello" || ev.UserID != "u2" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.DurationMs != 30000 {
		t.Errorf("expected duration derived from timestamps, got %d", ev.DurationMs)
	}
}

func TestParseCallEvent_MissingFields(t *testing.T) {
	ev, err := ParseCallEvent([]byte(`{"event":"call_started"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.CallID != "" || ev.Transcript != "" || !ev.EndTime().IsZero() {
		t.Errorf("expected empty fields, got %+v", ev)
	}
}

func TestParseCallEvent_InvalidJSON(t *testing.T) {
	if _, err := ParseCallEvent([]byte(`{not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}
