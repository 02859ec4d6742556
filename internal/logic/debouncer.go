package logic

import "math"

// IsAlmost reports whether a and b lie within margin of each other.
func IsAlmost(a, b, margin float64) bool {
	return math.Abs(a-b) <= margin
}

// IsBoundary reports whether v sits exactly at the minimum or maximum.
func IsBoundary(v float64) bool {
	return v == 0.0 || v == 1.0
}

// Channel debounces the samples of a single hardware channel.
// Not safe for concurrent use; it is owned by the detection loop.
type Channel struct {
	kind   Kind
	margin float64
	state  State
}

// NewChannel creates a channel seeded with an initial sample. The initial
// sample is treated as already reported.
func NewChannel(kind Kind, initial Sample, margin float64) *Channel {
	if kind != KindVolume {
		initial.Muted = false
	}
	return &Channel{
		kind:   kind,
		margin: margin,
		state:  State{Last: initial.Value, LastMuted: initial.Muted},
	}
}

// Observe takes a new raw sample and returns the event to publish, if any.
// The stored state changes only when an event is returned, so a slow drift in
// steps smaller than the margin is not reported until it escapes the band
// relative to the last reported value.
func (c *Channel) Observe(s Sample) (ChangeEvent, bool) {
	muted := c.kind == KindVolume && s.Muted
	changed := !IsAlmost(c.state.Last, s.Value, c.margin)
	if c.kind == KindVolume && muted != c.state.LastMuted {
		changed = true
	}
	if !changed {
		return ChangeEvent{}, false
	}

	value := s.Value
	if muted {
		value = 0.0
	}
	c.state = State{Last: s.Value, LastMuted: muted}
	return c.event(value), true
}

// Boundary is the key-press path: it reports the last stored value, but only
// when it is exactly 0.0 or 1.0. Intermediate values are left to the poll loop.
func (c *Channel) Boundary() (ChangeEvent, bool) {
	if !IsBoundary(c.state.Last) {
		return ChangeEvent{}, false
	}
	return c.event(c.state.Last), true
}

// State returns the current debounce state.
func (c *Channel) State() State {
	return c.state
}

// Kind returns the channel kind.
func (c *Channel) Kind() Kind {
	return c.kind
}

func (c *Channel) event(value float64) ChangeEvent {
	return ChangeEvent{
		Show:  true,
		Kind:  c.kind,
		Value: value,
		Icon:  "",
	}
}
