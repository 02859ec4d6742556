package osevents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/hud-worker/internal/sensor"
)

// DisplayWatcher polls the active display list and reports a change whenever
// the layout signature differs from the previous poll.
type DisplayWatcher struct {
	displays sensor.Displays
	interval time.Duration
	logger   *slog.Logger

	now  func() time.Time
	tick <-chan time.Time
}

// NewDisplayWatcher creates a watcher polling displays every interval.
func NewDisplayWatcher(displays sensor.Displays, interval time.Duration, logger *slog.Logger) *DisplayWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &DisplayWatcher{displays: displays, interval: interval, logger: logger, now: time.Now}
}

// Stream emits KindDisplayChange events until ctx is cancelled. A failed
// poll is logged and leaves the last known layout in place.
func (w *DisplayWatcher) Stream(ctx context.Context, emit func(Event) error) error {
	if _, err := w.displays.Active(); errors.Is(err, sensor.ErrUnsupported) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	tick := w.tick
	if tick == nil {
		t := time.NewTicker(w.interval)
		defer t.Stop()
		tick = t.C
	}

	last, known := w.signature()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			sig, ok := w.signature()
			if !ok {
				continue
			}
			if !known {
				last, known = sig, true
				continue
			}
			if sig == last {
				continue
			}
			w.logger.Debug("display layout changed", "from", last, "to", sig)
			last = sig
			if err := emit(Event{Kind: KindDisplayChange, At: w.now()}); err != nil {
				return err
			}
		}
	}
}

func (w *DisplayWatcher) signature() (string, bool) {
	ds, err := w.displays.Active()
	if err != nil {
		w.logger.Warn("list displays failed", "error", err)
		return "", false
	}
	return sensor.Signature(ds), true
}
