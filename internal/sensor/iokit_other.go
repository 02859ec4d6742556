//go:build !darwin

package sensor

// IOKitProbe is not available on non-darwin platforms.
type IOKitProbe struct{}

func (IOKitProbe) readBrightness() (float64, error) {
	return 0, ErrUnsupported
}

// CGDisplays is not available on non-darwin platforms.
type CGDisplays struct{}

// Active returns ErrUnsupported.
func (CGDisplays) Active() ([]Display, error) {
	return nil, ErrUnsupported
}
