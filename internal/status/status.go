// Package status provides a thread-safe status tracker for the hud-worker daemon.
// It is read by the HTTP handlers and by the MQTT lifecycle events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/hud-worker/internal/logic"
)

// Levels is the latest sensor view. Values are the last successful reads,
// not the last reported ones.
type Levels struct {
	Volume       float64
	Muted        bool
	VolumeOK     bool // false until the first successful volume read
	Brightness   float64
	BrightnessOK bool
	Strategy     string // brightness read strategy in use
	Displays     int
}

// OSDInfo mirrors the suppression watchdog status. This is a local copy to
// avoid importing internal/osd from status.
type OSDInfo struct {
	State       string
	Monitoring  bool
	Respawns    int
	Escalations int
	Reasserts   int
	Errors      int
}

// Config contains daemon configuration for display.
type Config struct {
	PollMs    int64
	Margin    float64
	MonitorMs int64
	Broker    string
	HTTPPort  string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Levels        Levels
	Counts        logic.EventCounts
	OSD           OSDInfo
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			OSD:       OSDInfo{State: "enabled"},
		},
	}
}

// Update sets sensor levels and event counts.
// Called from runLoop on every tick.
func (t *Tracker) Update(levels Levels, counts logic.EventCounts) {
	t.mu.Lock()
	t.snap.Levels = levels
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetOSD sets the suppression watchdog status.
func (t *Tracker) SetOSD(info OSDInfo) {
	t.mu.Lock()
	t.snap.OSD = info
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
