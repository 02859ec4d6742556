package mqtt

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sweeney/hud-worker/internal/logic"
)

func TestFormatPayload(t *testing.T) {
	event := logic.ChangeEvent{Show: true, Kind: logic.KindVolume, Value: 0.5}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"show":true,"type":"volume","value":"0.5","icon":""}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadKinds(t *testing.T) {
	tests := []struct {
		kind     logic.Kind
		value    float64
		wantType string
		wantVal  string
	}{
		{logic.KindVolume, 0.25, "volume", "0.25"},
		{logic.KindVolume, 0, "volume", "0.0"},
		{logic.KindBrightness, 1, "brightness", "1.0"},
		{logic.KindBrightness, 0.625, "brightness", "0.625"},
		{logic.KindBrightness, float64(float32(0.7)), "brightness", "0.7"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind)+"/"+tt.wantVal, func(t *testing.T) {
			payload, err := FormatPayload(logic.ChangeEvent{Show: true, Kind: tt.kind, Value: tt.value})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var parsed Payload
			if err := json.Unmarshal(payload, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if parsed.Type != tt.wantType {
				t.Errorf("type: got %s, want %s", parsed.Type, tt.wantType)
			}
			if parsed.Value != tt.wantVal {
				t.Errorf("value: got %s, want %s", parsed.Value, tt.wantVal)
			}
			if !parsed.Show {
				t.Error("show should be true")
			}
			if parsed.Icon != "" {
				t.Errorf("icon: got %q, want empty", parsed.Icon)
			}
		})
	}
}

func TestFormatPayloadRejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := FormatPayload(logic.ChangeEvent{Kind: logic.KindBrightness, Value: v}); err == nil {
			t.Errorf("expected error for %v", v)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0"},
		{1, "1.0"},
		{0.5, "0.5"},
		{0.4375, "0.4375"},
		{0.1 + 0.2, "0.3"},
		{float64(float32(0.7)), "0.7"},
		{float64(float32(0.625)), "0.625"},
		{0.63, "0.63"},
	}

	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTopics(t *testing.T) {
	if TopicEvents != "theboringteam/workers/sneakpeek" {
		t.Errorf("unexpected events topic: %s", TopicEvents)
	}
	if TopicSystem != "theboringteam/workers/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
	if TopicCommand != "theboringteam/theboringworker/togglehudreplacement" {
		t.Errorf("unexpected command topic: %s", TopicCommand)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 19, 10, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T19:10:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadReconnectedOmitsReason(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 10, 14, 30, 0, 0, time.UTC),
		Event:     "RECONNECTED",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-10T14:30:00Z","event":"RECONNECTED"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("PST", -8*60*60)
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 11, 0, 0, 0, loc),
		Event:     "STARTUP",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Timestamp != "2026-02-03T19:00:00Z" {
		t.Errorf("expected UTC timestamp, got %s", parsed.System.Timestamp)
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"system":{"event":"STARTUP","osd":{"state":"disabled"}}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload not passed through: %s", payload)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		payload string
		want    Command
	}{
		{"on", CommandRestore},
		{"enable", CommandRestore},
		{" ON\n", CommandRestore},
		{"off", CommandSuppress},
		{"Disable", CommandSuppress},
		{"", CommandToggle},
		{"toggle", CommandToggle},
		{"1", CommandToggle},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			if got := ParseCommand([]byte(tt.payload)); got != tt.want {
				t.Errorf("ParseCommand(%q) = %v, want %v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	event := logic.ChangeEvent{Show: true, Kind: logic.KindBrightness, Value: 1}
	if err := f.Publish(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(f.Events))
	}
	if f.Events[0] != event {
		t.Errorf("unexpected event: %+v", f.Events[0])
	}
	if string(f.Payloads[0]) != `{"show":true,"type":"brightness","value":"1.0","icon":""}` {
		t.Errorf("unexpected payload: %s", f.Payloads[0])
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	if err := f.Publish(logic.ChangeEvent{Kind: logic.KindVolume}); err == nil {
		t.Error("expected error")
	}
	if len(f.Events) != 0 {
		t.Errorf("expected no events recorded on error, got %d", len(f.Events))
	}
}

func TestFakePublisherDropsUnformattableEvent(t *testing.T) {
	f := NewFakePublisher()
	if err := f.Publish(logic.ChangeEvent{Kind: logic.KindVolume, Value: math.NaN()}); err == nil {
		t.Error("expected format error")
	}
	if len(f.Published()) != 0 {
		t.Error("unformattable event must not be recorded")
	}
}

func TestFakePublisherSystemAndReset(t *testing.T) {
	f := NewFakePublisher()
	f.Connected = true

	if err := f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.Publish(logic.ChangeEvent{Kind: logic.KindVolume, Value: 0.5})
	f.Close()

	if len(f.SystemEvents) != 1 || !f.SystemEvents[0].Retained {
		t.Errorf("unexpected system events: %+v", f.SystemEvents)
	}
	if !f.Closed || !f.IsConnected() {
		t.Error("expected closed and connected flags")
	}

	f.Reset()
	if len(f.Events) != 0 || len(f.SystemEvents) != 0 || f.Closed || f.IsConnected() {
		t.Error("Reset should clear all state")
	}

	// Reusable after reset
	f.Publish(logic.ChangeEvent{Kind: logic.KindBrightness, Value: 0})
	if len(f.Published()) != 1 {
		t.Error("expected publisher usable after Reset")
	}
}

func TestFakePublisherSystemError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishSystemError = errors.New("broker gone")

	if err := f.PublishSystem(SystemEvent{Event: "SHUTDOWN"}); err == nil {
		t.Error("expected error")
	}
	if len(f.SystemEvents) != 0 {
		t.Error("expected no system events recorded on error")
	}
}

func TestCommandString(t *testing.T) {
	if CommandRestore.String() != "restore" || CommandSuppress.String() != "suppress" || CommandToggle.String() != "toggle" {
		t.Error("unexpected command names")
	}
}
