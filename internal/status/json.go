package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Volume        *LevelJSON `json:"volume"`
	Brightness    *LevelJSON `json:"brightness"`
	Displays      int        `json:"displays"`
	OSD           OSDJSON    `json:"osd"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"event_counts"`
	Config        ConfigJSON `json:"config"`
}

// LevelJSON is one sensor reading. A nil LevelJSON encodes as null when the
// sensor has not been read yet.
type LevelJSON struct {
	Value    float64 `json:"value"`
	Muted    *bool   `json:"muted,omitempty"`
	Strategy string  `json:"strategy,omitempty"`
}

// OSDJSON reports suppression watchdog state.
type OSDJSON struct {
	State       string `json:"state"`
	Monitoring  bool   `json:"monitoring"`
	Respawns    int    `json:"respawns"`
	Escalations int    `json:"escalations"`
	Reasserts   int    `json:"reasserts"`
	Errors      int    `json:"errors"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Volume     int `json:"volume"`
	Brightness int `json:"brightness"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs    int64   `json:"poll_ms"`
	Margin    float64 `json:"margin"`
	MonitorMs int64   `json:"monitor_ms"`
	Broker    string  `json:"broker"`
	HTTPPort  string  `json:"http_port"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Displays: snap.Levels.Displays,
		OSD: OSDJSON{
			State:       snap.OSD.State,
			Monitoring:  snap.OSD.Monitoring,
			Respawns:    snap.OSD.Respawns,
			Escalations: snap.OSD.Escalations,
			Reasserts:   snap.OSD.Reasserts,
			Errors:      snap.OSD.Errors,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Volume:     snap.Counts.Volume,
			Brightness: snap.Counts.Brightness,
		},
		Config: ConfigJSON{
			PollMs:    snap.Config.PollMs,
			Margin:    snap.Config.Margin,
			MonitorMs: snap.Config.MonitorMs,
			Broker:    snap.Config.Broker,
			HTTPPort:  snap.Config.HTTPPort,
		},
	}
	if inner.OSD.State == "" {
		inner.OSD.State = "UNKNOWN"
	}

	lv := snap.Levels
	if lv.VolumeOK {
		muted := lv.Muted
		inner.Volume = &LevelJSON{Value: lv.Volume, Muted: &muted}
	}
	if lv.BrightnessOK {
		inner.Brightness = &LevelJSON{Value: lv.Brightness, Strategy: lv.Strategy}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
