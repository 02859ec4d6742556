package osevents

import (
	"context"
	"time"
)

// WakeDetector reports a wake from sleep by watching for wall-clock jumps
// between ticks. While the machine sleeps the ticker stops, so the first tick
// after wake arrives far later on the wall clock than the interval allows.
type WakeDetector struct {
	interval  time.Duration
	threshold time.Duration

	now  func() time.Time
	tick <-chan time.Time
}

// NewWakeDetector checks the clock every interval and reports a wake when a
// tick is late by more than threshold.
func NewWakeDetector(interval, threshold time.Duration) *WakeDetector {
	return &WakeDetector{interval: interval, threshold: threshold, now: time.Now}
}

// wall strips the monotonic reading, which does not advance during sleep on
// macOS.
func (d *WakeDetector) wall() time.Time {
	return d.now().Round(0)
}

// Stream emits KindWake events until ctx is cancelled.
func (d *WakeDetector) Stream(ctx context.Context, emit func(Event) error) error {
	tick := d.tick
	if tick == nil {
		t := time.NewTicker(d.interval)
		defer t.Stop()
		tick = t.C
	}

	last := d.wall()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			now := d.wall()
			if now.Sub(last) > d.interval+d.threshold {
				if err := emit(Event{Kind: KindWake, At: now}); err != nil {
					return err
				}
			}
			last = now
		}
	}
}
