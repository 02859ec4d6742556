// Package osd keeps the native on-screen-display helper suppressed.
//
// The OS relaunches the helper on its own schedule and after wake or display
// changes, so suppression is a running loop rather than a one-shot kill:
//
//   - Suppress: ensure running, kill, verify, escalate, then monitor every 2s
//   - Monitor tick: kill any respawn; escalate if it survives a 1s grace delay
//   - OnSystemWake / OnDisplayConfigChange: re-run the disable sequence later
//   - Restore: stop monitoring and relaunch the helper
//
// Every action runs under a single transition lock, so no two actions for the
// same Watchdog overlap. The hosting process must call Restore before exiting.
package osd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/hud-worker/internal/procctl"
)

// State is the suppression state of the helper.
type State int

const (
	// StateEnabled means the helper may run normally.
	StateEnabled State = iota
	// StateDisabled means the helper is being kept dead and monitored.
	StateDisabled
	// StateReasserting is a transient state while a scheduled re-suppression runs.
	StateReasserting
)

func (s State) String() string {
	switch s {
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateReasserting:
		return "reasserting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config holds the watchdog timings.
type Config struct {
	Settle          time.Duration // wait after kickstarting the helper
	MonitorInterval time.Duration // respawn check period while suppressed
	Grace           time.Duration // delay before escalating against a respawn
	WakeDelay       time.Duration // delay before re-suppressing after wake
	DisplayDelay    time.Duration // delay before re-suppressing after a display change
}

// DefaultConfig returns the production timings.
func DefaultConfig() Config {
	return Config{
		Settle:          750 * time.Millisecond,
		MonitorInterval: 2 * time.Second,
		Grace:           1 * time.Second,
		WakeDelay:       2 * time.Second,
		DisplayDelay:    1 * time.Second,
	}
}

// Status is a point-in-time view of the watchdog.
type Status struct {
	State       State
	Monitoring  bool
	Respawns    int // respawns caught by the monitor
	Escalations int // times the alternative termination path ran
	Reasserts   int // completed wake/display re-suppressions
	Errors      int // failed process-control operations
}

// Watchdog is the suppression state machine for one helper.
type Watchdog struct {
	ctl    procctl.Controller
	lookup procctl.Lookup
	cfg    Config
	logger *slog.Logger

	// op serializes transitions, monitor ticks and scheduled work.
	op sync.Mutex

	// mu guards the fields below; held only briefly so Status never waits on
	// an in-flight transition.
	mu          sync.Mutex
	state       State
	monitorStop chan struct{}
	generation  uint64
	timers      map[uint64]*time.Timer
	nextTimer   uint64
	stats       Status

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Watchdog in StateEnabled. Zero durations in cfg take the
// values from DefaultConfig.
func New(ctl procctl.Controller, lookup procctl.Lookup, cfg Config, logger *slog.Logger) *Watchdog {
	def := DefaultConfig()
	if cfg.Settle <= 0 {
		cfg.Settle = def.Settle
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = def.MonitorInterval
	}
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.WakeDelay <= 0 {
		cfg.WakeDelay = def.WakeDelay
	}
	if cfg.DisplayDelay <= 0 {
		cfg.DisplayDelay = def.DisplayDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watchdog{
		ctl:    ctl,
		lookup: lookup,
		cfg:    cfg,
		logger: logger,
		state:  StateEnabled,
		timers: make(map[uint64]*time.Timer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// State returns the current suppression state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Status returns the current state and counters.
func (w *Watchdog) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.State = w.state
	s.Monitoring = w.monitorStop != nil
	return s
}

// Suppress disables the helper and starts monitoring for respawns.
func (w *Watchdog) Suppress(ctx context.Context) error {
	w.op.Lock()
	defer w.op.Unlock()
	return w.suppressLocked(ctx)
}

// Restore stops monitoring and relaunches the helper so the native OSD works again.
func (w *Watchdog) Restore(ctx context.Context) error {
	w.op.Lock()
	defer w.op.Unlock()
	return w.restoreLocked(ctx)
}

// Toggle restores the helper when it is suppressed and suppresses it otherwise.
// The state is read under the same lock as the transition, so concurrent
// toggles alternate.
func (w *Watchdog) Toggle(ctx context.Context) error {
	w.op.Lock()
	defer w.op.Unlock()
	if w.State() == StateEnabled {
		return w.suppressLocked(ctx)
	}
	return w.restoreLocked(ctx)
}

// suppressLocked and restoreLocked must be called with op held.
func (w *Watchdog) suppressLocked(ctx context.Context) error {
	prev := w.State()
	w.stopMonitor()
	w.cancelTimers()

	if err := w.disableSequence(ctx); err != nil {
		if prev != StateEnabled {
			w.startMonitor()
		}
		return err
	}

	w.mu.Lock()
	w.state = StateDisabled
	w.mu.Unlock()
	w.startMonitor()

	w.logger.Info("osd suppressed, monitoring for respawns", "interval", w.cfg.MonitorInterval)
	return nil
}

func (w *Watchdog) restoreLocked(ctx context.Context) error {
	w.stopMonitor()
	w.cancelTimers()

	w.mu.Lock()
	w.state = StateEnabled
	w.mu.Unlock()

	if err := w.ctl.Kickstart(ctx); err != nil {
		w.recordError("kickstart", err)
		return fmt.Errorf("restore osd: %w", err)
	}
	if err := sleep(ctx, w.cfg.Settle); err != nil {
		return fmt.Errorf("restore osd: %w", err)
	}

	w.logger.Info("osd restored")
	return nil
}

// OnSystemWake schedules a re-suppression after a wake from sleep.
// It does nothing unless the helper is currently suppressed.
func (w *Watchdog) OnSystemWake() {
	w.scheduleReassert("system-wake", w.cfg.WakeDelay)
}

// OnDisplayConfigChange schedules a re-suppression after a display change.
// It does nothing unless the helper is currently suppressed.
func (w *Watchdog) OnDisplayConfigChange() {
	w.scheduleReassert("display-change", w.cfg.DisplayDelay)
}

// Close cancels scheduled work and the monitor. It does not restore the helper.
func (w *Watchdog) Close() {
	w.cancel()
	w.op.Lock()
	defer w.op.Unlock()
	w.stopMonitor()
	w.cancelTimers()
}

// disableSequence runs the ordered kill pipeline. Each step gates the next.
// Caller holds op.
func (w *Watchdog) disableSequence(ctx context.Context) error {
	// A helper that is not running cannot be killed cleanly, so start it first.
	running, err := w.lookup.Running(ctx)
	if err != nil {
		w.recordError("lookup", err)
	}
	if err != nil || !running {
		if err := w.ctl.Kickstart(ctx); err != nil {
			w.recordError("kickstart", err)
		}
		if err := sleep(ctx, w.cfg.Settle); err != nil {
			return fmt.Errorf("suppress osd: %w", err)
		}
	}

	if err := w.ctl.Terminate(ctx); err != nil {
		w.recordError("terminate", err)
	}

	running, err = w.lookup.Running(ctx)
	if err != nil {
		w.recordError("lookup", err)
		return nil
	}
	if running {
		w.logger.Warn("osd helper survived termination, escalating")
		w.escalate(ctx)
	} else {
		w.logger.Debug("osd helper terminated")
	}
	return nil
}

func (w *Watchdog) escalate(ctx context.Context) {
	w.mu.Lock()
	w.stats.Escalations++
	w.mu.Unlock()
	if err := w.ctl.ForceTerminate(ctx); err != nil {
		w.recordError("force-terminate", err)
	}
}

// startMonitor launches the respawn monitor. Caller holds op.
func (w *Watchdog) startMonitor() {
	stop := make(chan struct{})

	w.mu.Lock()
	w.generation++
	gen := w.generation
	w.monitorStop = stop
	w.mu.Unlock()

	go func() {
		ticker := time.NewTicker(w.cfg.MonitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				w.monitorTick(gen)
			}
		}
	}()
}

// stopMonitor cancels the active monitor, if any. Caller holds op; a tick
// already waiting on op sees a stale generation and does nothing.
func (w *Watchdog) stopMonitor() {
	w.mu.Lock()
	stop := w.monitorStop
	w.monitorStop = nil
	w.generation++
	w.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}

// current reports whether gen is the live monitor generation and the helper
// is still meant to be suppressed.
func (w *Watchdog) current(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generation == gen && w.state == StateDisabled
}

func (w *Watchdog) monitorTick(gen uint64) {
	w.op.Lock()
	defer w.op.Unlock()

	// Restore may have won the lock while this tick was waiting.
	if !w.current(gen) {
		return
	}

	running, err := w.lookup.Running(w.ctx)
	if err != nil {
		w.recordError("lookup", err)
		return
	}
	if !running {
		return
	}

	w.logger.Info("osd helper respawned, terminating")
	w.mu.Lock()
	w.stats.Respawns++
	w.mu.Unlock()
	if err := w.ctl.Terminate(w.ctx); err != nil {
		w.recordError("terminate", err)
	}

	w.after(w.cfg.Grace, func() { w.graceCheck(gen) })
}

func (w *Watchdog) graceCheck(gen uint64) {
	w.op.Lock()
	defer w.op.Unlock()

	if !w.current(gen) {
		return
	}
	running, err := w.lookup.Running(w.ctx)
	if err != nil {
		w.recordError("lookup", err)
		return
	}
	if running {
		w.logger.Warn("osd helper still running after grace delay, escalating")
		w.escalate(w.ctx)
	}
}

func (w *Watchdog) scheduleReassert(reason string, delay time.Duration) {
	w.mu.Lock()
	if w.state != StateDisabled {
		w.mu.Unlock()
		return
	}
	gen := w.generation
	w.mu.Unlock()

	w.logger.Debug("osd reassertion scheduled", "reason", reason, "delay", delay)
	w.after(delay, func() { w.reassert(reason, gen) })
}

func (w *Watchdog) reassert(reason string, gen uint64) {
	w.op.Lock()
	defer w.op.Unlock()

	// The helper may have been restored while this was pending.
	if !w.current(gen) {
		return
	}

	w.mu.Lock()
	w.state = StateReasserting
	w.mu.Unlock()

	w.logger.Info("reasserting osd suppression", "reason", reason)
	err := w.disableSequence(w.ctx)

	w.mu.Lock()
	w.state = StateDisabled
	if err == nil {
		w.stats.Reasserts++
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Warn("osd reassertion interrupted", "reason", reason, "error", err)
	}
}

// after runs f once delay has passed, unless cancelTimers runs first.
func (w *Watchdog) after(delay time.Duration, f func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	w.nextTimer++
	id := w.nextTimer
	w.timers[id] = time.AfterFunc(delay, func() {
		w.mu.Lock()
		delete(w.timers, id)
		w.mu.Unlock()
		f()
	})
}

func (w *Watchdog) cancelTimers() {
	w.mu.Lock()
	timers := w.timers
	w.timers = make(map[uint64]*time.Timer)
	w.mu.Unlock()
	for _, t := range timers {
		t.Stop()
	}
}

func (w *Watchdog) recordError(op string, err error) {
	w.mu.Lock()
	w.stats.Errors++
	w.mu.Unlock()
	w.logger.Warn("osd process control failed", "op", op, "error", err)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
