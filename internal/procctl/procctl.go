// Package procctl drives platform service-management and process-signaling
// utilities (launchctl, killall, pkill, pgrep) for a single named helper.
// The fake implementation allows testing without touching real processes.
package procctl

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Default identifiers of the native macOS OSD helper.
const (
	DefaultLabel   = "com.apple.OSDUIHelper"
	DefaultProcess = "OSDUIHelper"
)

// Utility paths.
const (
	launchctlPath = "/bin/launchctl"
	killallPath   = "/usr/bin/killall"
	pkillPath     = "/usr/bin/pkill"
	pgrepPath     = "/usr/bin/pgrep"
)

// Controller starts and terminates the helper service.
type Controller interface {
	// Kickstart (re)launches the helper through the service manager.
	Kickstart(ctx context.Context) error

	// Terminate sends SIGKILL to every process with the helper's name.
	Terminate(ctx context.Context) error

	// ForceTerminate is the escalation path: a broader pattern kill followed
	// by de-registering the service.
	ForceTerminate(ctx context.Context) error
}

// Lookup reports whether the helper process currently exists.
type Lookup interface {
	Running(ctx context.Context) (bool, error)
}

// Runner executes an external utility and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

// ExecRunner runs utilities with os/exec.
type ExecRunner struct{}

// Run executes name with args and returns stdout.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Error records a failed process-control operation.
type Error struct {
	Op  string // e.g. "kickstart", "terminate"
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("procctl %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// exitCode extracts the exit status of a finished utility, if any.
func exitCode(err error) (int, bool) {
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		return ec.ExitCode(), true
	}
	return 0, false
}

// noMatch reports whether err is the "no process matched" status (exit 1)
// shared by killall, pkill and pgrep.
func noMatch(err error) bool {
	code, ok := exitCode(err)
	return ok && code == 1
}
