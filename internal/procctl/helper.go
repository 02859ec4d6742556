package procctl

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"
)

// DefaultWorkers bounds how many utilities may run at once.
const DefaultWorkers = 2

// Helper controls one launchd-managed helper through command-line utilities.
// It implements both Controller and Lookup.
type Helper struct {
	label   string
	process string
	uid     int
	runner  Runner
	workers *semaphore.Weighted

	// alive probes a pid reported by pgrep; replaced in tests.
	alive func(pid int) bool
}

// NewHelper creates a Helper for the given launchd label and process name.
// A nil runner uses ExecRunner.
func NewHelper(label, process string, runner Runner) *Helper {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Helper{
		label:   label,
		process: process,
		uid:     unix.Getuid(),
		runner:  runner,
		workers: semaphore.NewWeighted(DefaultWorkers),
		alive:   pidAlive,
	}
}

// Target returns the launchctl service target in the user's GUI domain.
func (h *Helper) Target() string {
	return fmt.Sprintf("gui/%d/%s", h.uid, h.label)
}

// Kickstart launches the helper if it is not running.
func (h *Helper) Kickstart(ctx context.Context) error {
	if _, err := h.run(ctx, launchctlPath, "kickstart", h.Target()); err != nil {
		return &Error{Op: "kickstart", Err: err}
	}
	return nil
}

// Terminate kills the helper by exact process name.
// No matching process is not an error.
func (h *Helper) Terminate(ctx context.Context) error {
	if _, err := h.run(ctx, killallPath, "-9", h.process); err != nil && !noMatch(err) {
		return &Error{Op: "terminate", Err: err}
	}
	return nil
}

// ForceTerminate kills by full command-line pattern, then removes the
// service from launchd. Both steps are attempted; failures are joined.
func (h *Helper) ForceTerminate(ctx context.Context) error {
	var errs []error
	if _, err := h.run(ctx, pkillPath, "-f", h.process); err != nil && !noMatch(err) {
		errs = append(errs, fmt.Errorf("pkill: %w", err))
	}
	if _, err := h.run(ctx, launchctlPath, "remove", h.label); err != nil {
		errs = append(errs, fmt.Errorf("launchctl remove: %w", err))
	}
	if len(errs) > 0 {
		return &Error{Op: "force-terminate", Err: errors.Join(errs...)}
	}
	return nil
}

// Running reports whether a live process with the helper's name exists.
func (h *Helper) Running(ctx context.Context) (bool, error) {
	out, err := h.run(ctx, pgrepPath, h.process)
	if err != nil {
		if noMatch(err) {
			return false, nil
		}
		return false, &Error{Op: "lookup", Err: err}
	}
	for _, pid := range parsePIDs(out) {
		if h.alive(pid) {
			return true, nil
		}
	}
	return false, nil
}

func (h *Helper) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if err := h.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer h.workers.Release(1)
	return h.runner.Run(ctx, name, args...)
}

// parsePIDs reads one pid per line, skipping anything unparsable.
func parsePIDs(out []byte) []int {
	var pids []int
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		pid, err := strconv.Atoi(string(bytes.TrimSpace(sc.Bytes())))
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, pid)
	}
	return pids
}

// pidAlive probes a pid with signal 0. EPERM still means the process exists.
func pidAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
