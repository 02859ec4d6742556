package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/hud-worker/internal/logic"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{PollMs: 200, Margin: 0.05, Broker: "tcp://localhost:1883", HTTPPort: ":8080"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.PollMs != 200 {
		t.Errorf("Config.PollMs: got %d, want 200", snap.Config.PollMs)
	}
	if snap.Config.HTTPPort != ":8080" {
		t.Errorf("Config.HTTPPort: got %q, want %q", snap.Config.HTTPPort, ":8080")
	}
	if snap.Levels.VolumeOK || snap.Levels.BrightnessOK {
		t.Error("expected no levels initially")
	}
	if snap.OSD.State != "enabled" {
		t.Errorf("OSD.State: got %q, want enabled", snap.OSD.State)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Update(Levels{
		Volume:       0.44,
		Muted:        true,
		VolumeOK:     true,
		Brightness:   0.8,
		BrightnessOK: true,
		Strategy:     "primary",
		Displays:     2,
	}, logic.EventCounts{Volume: 3, Brightness: 1})

	snap := tr.Snapshot()
	if snap.Levels.Volume != 0.44 || !snap.Levels.Muted {
		t.Errorf("volume: got %v muted=%v", snap.Levels.Volume, snap.Levels.Muted)
	}
	if snap.Levels.Strategy != "primary" {
		t.Errorf("Strategy: got %q, want primary", snap.Levels.Strategy)
	}
	if snap.Levels.Displays != 2 {
		t.Errorf("Displays: got %d, want 2", snap.Levels.Displays)
	}
	if snap.Counts.Volume != 3 || snap.Counts.Brightness != 1 {
		t.Errorf("Counts: got %+v", snap.Counts)
	}
}

func TestSetOSD(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.SetOSD(OSDInfo{State: "disabled", Monitoring: true, Respawns: 2})

	snap := tr.Snapshot()
	if snap.OSD.State != "disabled" || !snap.OSD.Monitoring || snap.OSD.Respawns != 2 {
		t.Errorf("OSD: got %+v", snap.OSD)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(Levels{Volume: 0.5, VolumeOK: true}, logic.EventCounts{Volume: 1})

	snap1 := tr.Snapshot()

	tr.Update(Levels{Volume: 0.9, VolumeOK: true}, logic.EventCounts{Volume: 2})

	if snap1.Levels.Volume != 0.5 {
		t.Error("snapshot should be a copy; Volume was modified")
	}
	if snap1.Counts.Volume != 1 {
		t.Error("snapshot should be a copy; Counts was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Levels: Levels{
			Volume:       0.25,
			VolumeOK:     true,
			Brightness:   0.75,
			BrightnessOK: true,
			Strategy:     "fallback",
			Displays:     1,
		},
		Counts:        logic.EventCounts{Volume: 5, Brightness: 2},
		OSD:           OSDInfo{State: "disabled", Monitoring: true, Respawns: 4},
		StartTime:     start,
		Now:           start.Add(15 * time.Minute),
		MQTTConnected: true,
		Config:        Config{PollMs: 200, Margin: 0.05, MonitorMs: 2000, Broker: "tcp://localhost:1883", HTTPPort: ":8080"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Volume == nil || s.Volume.Value != 0.25 {
		t.Fatalf("Volume: got %+v", s.Volume)
	}
	if s.Volume.Muted == nil || *s.Volume.Muted {
		t.Error("expected volume muted=false to be present")
	}
	if s.Brightness == nil || s.Brightness.Strategy != "fallback" {
		t.Errorf("Brightness: got %+v", s.Brightness)
	}
	if s.OSD.State != "disabled" || s.OSD.Respawns != 4 {
		t.Errorf("OSD: got %+v", s.OSD)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Counts.Volume != 5 {
		t.Errorf("Counts.Volume: got %d, want 5", s.Counts.Volume)
	}
	if s.Config.MonitorMs != 2000 {
		t.Errorf("Config.MonitorMs: got %d, want 2000", s.Config.MonitorMs)
	}
	// Event and Reason should be omitted
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty Event/Reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONUnreadSensorsAreNull(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	var raw map[string]map[string]interface{}
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	status := raw["status"]
	if v, ok := status["volume"]; !ok || v != nil {
		t.Errorf("volume: got %v, want null", v)
	}
	if v, ok := status["brightness"]; !ok || v != nil {
		t.Errorf("brightness: got %v, want null", v)
	}
	osd := status["osd"].(map[string]interface{})
	if osd["state"] != "UNKNOWN" {
		t.Errorf("osd.state: got %v, want UNKNOWN", osd["state"])
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Counts:    logic.EventCounts{Volume: 3},
		OSD:       OSDInfo{State: "disabled"},
		StartTime: start,
		Now:       start.Add(30 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
	if parsed.Status.UptimeSeconds != 1800 {
		t.Errorf("UptimeSeconds: got %d, want 1800", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	// Verify "reason" is not in the raw JSON output
	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(Levels{Volume: float64(i) / 1000, VolumeOK: true}, logic.EventCounts{Volume: i})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetOSD(OSDInfo{State: "disabled", Respawns: i})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
