// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/hud-worker/internal/logic"
)

// TopicEvents is the MQTT topic for HUD change events.
const TopicEvents = "theboringteam/workers/sneakpeek"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "theboringteam/workers/system"

// TopicCommand is the inbound topic that toggles native HUD suppression.
const TopicCommand = "theboringteam/theboringworker/togglehudreplacement"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a change event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.ChangeEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload is the JSON body of a change event.
type Payload struct {
	Show  bool   `json:"show"`
	Type  string `json:"type"`
	Value string `json:"value"`
	Icon  string `json:"icon"`
}

// FormatValue renders a level with the shortest decimal form at single
// precision, always keeping a fractional part: 0.5 -> "0.5", 1 -> "1.0".
// Levels come from float32 sources, so float64(float32(0.7)) is "0.7".
func FormatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 32)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatPayload creates the JSON payload for a change event.
func FormatPayload(event logic.ChangeEvent) ([]byte, error) {
	if math.IsNaN(event.Value) || math.IsInf(event.Value, 0) {
		return nil, fmt.Errorf("format %s value: not a finite number", event.Kind)
	}
	return json.Marshal(Payload{
		Show:  event.Show,
		Type:  string(event.Kind),
		Value: FormatValue(event.Value),
		Icon:  event.Icon,
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// Command is a request received on TopicCommand.
type Command int

const (
	// CommandToggle flips native HUD suppression.
	CommandToggle Command = iota
	// CommandRestore brings the native HUD back.
	CommandRestore
	// CommandSuppress hides the native HUD.
	CommandSuppress
)

func (c Command) String() string {
	switch c {
	case CommandRestore:
		return "restore"
	case CommandSuppress:
		return "suppress"
	default:
		return "toggle"
	}
}

// ParseCommand interprets a command payload. "on"/"enable" turn the native
// HUD back on, "off"/"disable" turn it off, anything else toggles.
func ParseCommand(payload []byte) Command {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "on", "enable":
		return CommandRestore
	case "off", "disable":
		return CommandSuppress
	default:
		return CommandToggle
	}
}
