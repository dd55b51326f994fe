package voicecall

import (
	"encoding/json"
	"fmt"
	"time"
)

const EventCallEnded = "call_ended"

// CallEvent is a decoded Retell webhook delivery. Retell sends the call
// fields either at the top level or nested under "call"; both are accepted,
// top-level values win.
type CallEvent struct {
	Event        string
	CallID       string
	Transcript   string
	UserID       string
	EndTimestamp int64 // epoch milliseconds
	DurationMs   int64
}

type callFields struct {
	CallID       string `json:"call_id"`
	Transcript   string `json:"transcript"`
	EndTimestamp int64  `json:"end_timestamp"`
	StartTime    int64  `json:"start_timestamp"`
	CallDuration int64  `json:"call_duration"`
	Metadata     struct {
		UserID string `json:"user_id"`
	} `json:"metadata"`
}

type rawEvent struct {
	Event string `json:"event"`
	callFields
	Call *callFields `json:"call"`
}

// ParseCallEvent decodes a webhook body.
func ParseCallEvent(body []byte) (CallEvent, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return CallEvent{}, fmt.Errorf("decode call event: %w", err)
	}

	f := raw.callFields
	if n := raw.Call; n != nil {
		f.CallID = firstNonEmpty(f.CallID, n.CallID)
		f.Transcript = firstNonEmpty(f.Transcript, n.Transcript)
		f.Metadata.UserID = firstNonEmpty(f.Metadata.UserID, n.Metadata.UserID)
		if f.EndTimestamp == 0 {
			f.EndTimestamp = n.EndTimestamp
		}
		if f.StartTime == 0 {
			f.StartTime = n.StartTime
		}
		if f.CallDuration == 0 {
			f.CallDuration = n.CallDuration
		}
	}

	ev := CallEvent{
		Event:        raw.Event,
		CallID:       f.CallID,
		Transcript:   f.Transcript,
		UserID:       f.Metadata.UserID,
		EndTimestamp: f.EndTimestamp,
		DurationMs:   f.CallDuration,
	}
	if ev.DurationMs == 0 && f.StartTime > 0 && f.EndTimestamp > f.StartTime {
		ev.DurationMs = f.EndTimestamp - f.StartTime
	}
	return ev, nil
}

// EndTime converts EndTimestamp to a time, zero when absent.
func (e CallEvent) EndTime() time.Time {
	if e.EndTimestamp == 0 {
		return time.Time{}
	}
	return time.UnixMilli(e.EndTimestamp).UTC()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
