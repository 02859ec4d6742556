// Package logic contains pure change-detection logic for the HUD sensors.
// This package has NO external dependencies (no IOKit, MQTT, OS, or time.Sleep).
// Samples are always passed in by the caller.
package logic

// Kind identifies which hardware channel a sample or event belongs to.
type Kind string

const (
	KindVolume     Kind = "volume"
	KindBrightness Kind = "brightness"
)

// DefaultMargin is the hysteresis band on the [0,1] scale (5%).
const DefaultMargin = 0.05

// Sample is a single raw reading of a channel.
type Sample struct {
	Value float64 // 0.0 (min) to 1.0 (max)
	Muted bool    // volume only; ignored for brightness
}

// ChangeEvent is a detected change to be published exactly once.
type ChangeEvent struct {
	Show  bool
	Kind  Kind
	Value float64
	Icon  string
}

// State is the debounce state of one channel: the last reported raw sample.
type State struct {
	Last      float64
	LastMuted bool
}

// EventCounts tracks the number of events per channel since startup.
type EventCounts struct {
	Volume     int
	Brightness int
}
