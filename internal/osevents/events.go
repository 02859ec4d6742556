// Package osevents turns operating-system notifications into a single
// stream of Events: hardware volume/brightness key presses, wake from
// sleep, and display configuration changes.
package osevents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrUnavailable is returned by a Source that cannot run here, either because
// the platform lacks it or because the process is not permitted to use it.
var ErrUnavailable = errors.New("event source unavailable")

// Kind identifies what happened.
type Kind int

const (
	KindVolumeKey Kind = iota + 1
	KindBrightnessKey
	KindWake
	KindDisplayChange
)

func (k Kind) String() string {
	switch k {
	case KindVolumeKey:
		return "volume-key"
	case KindBrightnessKey:
		return "brightness-key"
	case KindWake:
		return "wake"
	case KindDisplayChange:
		return "display-change"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event is one OS notification. The value behind a key event is not
// delivered with it and must be re-read by the consumer.
type Event struct {
	Kind Kind
	At   time.Time
}

// Source emits events until ctx is cancelled or emit returns an error.
type Source interface {
	Stream(ctx context.Context, emit func(Event) error) error
}

// SourceFunc adapts a function literal to the Source interface.
type SourceFunc func(ctx context.Context, emit func(Event) error) error

// Stream calls f.
func (f SourceFunc) Stream(ctx context.Context, emit func(Event) error) error {
	return f(ctx, emit)
}

// Run streams every source into out until ctx is cancelled. A source that
// reports ErrUnavailable is logged and skipped; any other source error stops
// all sources and is returned.
func Run(ctx context.Context, out chan<- Event, logger *slog.Logger, sources ...Source) error {
	if logger == nil {
		logger = slog.Default()
	}
	g, ctx := errgroup.WithContext(ctx)

	emit := func(ev Event) error {
		select {
		case out <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for _, src := range sources {
		src := src
		g.Go(func() error {
			err := src.Stream(ctx, emit)
			switch {
			case err == nil:
				return nil
			case errors.Is(err, ErrUnavailable):
				logger.Warn("event source unavailable", "source", fmt.Sprintf("%T", src), "error", err)
				return nil
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			default:
				return fmt.Errorf("event source %T: %w", src, err)
			}
		})
	}
	return g.Wait()
}
