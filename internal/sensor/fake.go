package sensor

import (
	"context"
	"errors"
	"sync"
)

// FakeProbe is a test double returning scripted brightness values.
type FakeProbe struct {
	mu sync.Mutex

	// Values contains scripted brightness values. Each call consumes the
	// next one; the last value repeats once exhausted.
	Values []float64

	// Err, if set, is returned by every call.
	Err error

	index int
	calls int
}

// ReadBrightness returns the next scripted value.
func (f *FakeProbe) ReadBrightness(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Err != nil {
		return 0, f.Err
	}
	if len(f.Values) == 0 {
		return 0, errors.New("no values configured")
	}
	v := f.Values[f.index]
	if f.index < len(f.Values)-1 {
		f.index++
	}
	return v, nil
}

// Calls returns how many times ReadBrightness was called.
func (f *FakeProbe) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// VolumeSample is one scripted volume reading.
type VolumeSample struct {
	Level float64
	Muted bool
}

// FakeVolume is a test double returning scripted volume readings.
type FakeVolume struct {
	mu sync.Mutex

	// Samples contains scripted readings; the last one repeats.
	Samples []VolumeSample

	// ReadError, if set, is returned by Read.
	ReadError error

	index int
}

// NewFakeVolume creates a FakeVolume with the given samples.
func NewFakeVolume(samples []VolumeSample) *FakeVolume {
	return &FakeVolume{Samples: samples}
}

// Read returns the next scripted sample.
func (f *FakeVolume) Read(ctx context.Context) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return 0, false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return 0, false, errors.New("no samples configured")
	}
	s := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return s.Level, s.Muted, nil
}

// FakeDisplays is a test double with a settable display layout.
type FakeDisplays struct {
	mu       sync.Mutex
	displays []Display
	err      error
}

// NewFakeDisplays creates a FakeDisplays with the given layout.
func NewFakeDisplays(ds ...Display) *FakeDisplays {
	return &FakeDisplays{displays: ds}
}

// Set replaces the layout.
func (f *FakeDisplays) Set(ds ...Display) {
	f.mu.Lock()
	f.displays = ds
	f.mu.Unlock()
}

// SetError makes Active return err.
func (f *FakeDisplays) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Active returns the current layout.
func (f *FakeDisplays) Active() ([]Display, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]Display, len(f.displays))
	copy(out, f.displays)
	return out, nil
}
