//go:build !darwin

package osevents

import "context"

// Stream returns ErrUnavailable; media key taps exist only on macOS.
func (k *KeyTap) Stream(ctx context.Context, emit func(Event) error) error {
	return ErrUnavailable
}
