package procctl

import (
	"context"
	"sync"
)

// FakeHelper is a test double simulating a helper service that the OS may
// respawn. It implements Controller and Lookup and is safe for concurrent use.
type FakeHelper struct {
	mu sync.Mutex

	running bool

	// stubborn is the number of upcoming Terminate calls that leave the
	// process alive (signal not honored).
	stubborn int

	kickstarts      int
	terminates      int
	forceTerminates int
	lookups         int

	// KickstartError, TerminateError, ForceError and LookupError, if set,
	// are returned by the corresponding calls.
	KickstartError error
	TerminateError error
	ForceError     error
	LookupError    error
}

// NewFakeHelper creates a FakeHelper in the given running state.
func NewFakeHelper(running bool) *FakeHelper {
	return &FakeHelper{running: running}
}

// Kickstart starts the fake process.
func (f *FakeHelper) Kickstart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kickstarts++
	if f.KickstartError != nil {
		return f.KickstartError
	}
	f.running = true
	return nil
}

// Terminate kills the fake process unless it is currently stubborn.
func (f *FakeHelper) Terminate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminates++
	if f.TerminateError != nil {
		return f.TerminateError
	}
	if f.stubborn > 0 {
		f.stubborn--
		return nil
	}
	f.running = false
	return nil
}

// ForceTerminate always kills the fake process.
func (f *FakeHelper) ForceTerminate(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forceTerminates++
	if f.ForceError != nil {
		return f.ForceError
	}
	f.running = false
	return nil
}

// Running reports the fake process state.
func (f *FakeHelper) Running(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.LookupError != nil {
		return false, f.LookupError
	}
	return f.running, nil
}

// Respawn simulates the OS relaunching the helper on its own.
func (f *FakeHelper) Respawn() {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
}

// IgnoreTerminates makes the next n Terminate calls leave the process alive.
func (f *FakeHelper) IgnoreTerminates(n int) {
	f.mu.Lock()
	f.stubborn = n
	f.mu.Unlock()
}

// IsRunning reports the fake process state without counting a lookup.
func (f *FakeHelper) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Counts returns how many times each operation was called.
func (f *FakeHelper) Counts() (kickstarts, terminates, forceTerminates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.kickstarts, f.terminates, f.forceTerminates
}

// Reset clears counters and injected errors.
func (f *FakeHelper) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kickstarts = 0
	f.terminates = 0
	f.forceTerminates = 0
	f.lookups = 0
	f.stubborn = 0
	f.KickstartError = nil
	f.TerminateError = nil
	f.ForceError = nil
	f.LookupError = nil
}
