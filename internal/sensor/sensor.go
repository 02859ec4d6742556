// Package sensor reads the hardware-exposed analog states the HUD reports:
// display brightness, output volume and the attached display layout.
//
// Brightness is read through an ordered list of strategies. The active
// strategy is sticky until it fails, then the source is permanently demoted to
// the next one; it never moves back during the process lifetime.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrNotFound is returned once every brightness strategy has failed.
	ErrNotFound = errors.New("sensor: display brightness not found")

	// ErrPrimaryUnavailable reports that the standard brightness control path failed.
	ErrPrimaryUnavailable = errors.New("sensor: standard brightness control unavailable")

	// ErrUnsupported is returned by platform readers on unsupported systems.
	ErrUnsupported = errors.New("sensor: not supported on this platform")
)

// Reading is a single brightness sample.
type Reading struct {
	Value float64 // 0.0 to 1.0
	Valid bool
}

// Strategy identifies which read method the brightness source uses.
type Strategy int

const (
	StrategyPrimary Strategy = iota
	StrategyFallback
	StrategyExhausted
)

func (s Strategy) String() string {
	switch s {
	case StrategyPrimary:
		return "primary"
	case StrategyFallback:
		return "fallback"
	case StrategyExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// demote returns the strategy that follows s after a failure.
func (s Strategy) demote() Strategy {
	if s >= StrategyExhausted {
		return StrategyExhausted
	}
	return s + 1
}

// Probe reads brightness with one specific method.
type Probe interface {
	ReadBrightness(ctx context.Context) (float64, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc func(ctx context.Context) (float64, error)

// ReadBrightness calls f.
func (f ProbeFunc) ReadBrightness(ctx context.Context) (float64, error) {
	return f(ctx)
}

// Brightness is the brightness SensorSource. Safe for concurrent use.
type Brightness struct {
	mu       sync.Mutex
	strategy Strategy
	primary  Probe
	fallback Probe
	logger   *slog.Logger
}

// NewBrightness creates a source starting at the primary strategy.
func NewBrightness(primary, fallback Probe, logger *slog.Logger) *Brightness {
	if logger == nil {
		logger = slog.Default()
	}
	return &Brightness{
		strategy: StrategyPrimary,
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// Strategy returns the currently active strategy.
func (b *Brightness) Strategy() Strategy {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.strategy
}

// Read returns the current brightness. A failing strategy is demoted and the
// next one is tried within the same call; once exhausted, Read returns
// ErrNotFound without probing anything.
func (b *Brightness) Read(ctx context.Context) (Reading, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// At most one attempt per strategy.
	for i := 0; i <= int(StrategyExhausted); i++ {
		var probe Probe
		switch b.strategy {
		case StrategyPrimary:
			probe = b.primary
		case StrategyFallback:
			probe = b.fallback
		default:
			return Reading{}, ErrNotFound
		}

		if probe != nil {
			v, err := probe.ReadBrightness(ctx)
			if err == nil {
				return Reading{Value: v, Valid: true}, nil
			}
			// A cancelled read says nothing about the strategy.
			if ctx.Err() != nil {
				return Reading{}, ctx.Err()
			}
			b.demote(err)
			continue
		}
		b.demote(errors.New("no probe configured"))
	}
	return Reading{}, ErrNotFound
}

func (b *Brightness) demote(cause error) {
	from := b.strategy
	b.strategy = from.demote()
	if from == StrategyPrimary {
		cause = fmt.Errorf("%w: %v", ErrPrimaryUnavailable, cause)
	}
	b.logger.Warn("brightness strategy demoted", "from", from.String(), "to", b.strategy.String(), "error", cause)
}
