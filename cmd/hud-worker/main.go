// Command hud-worker watches volume and display brightness, publishes changes
// to MQTT for a replacement HUD and keeps the native macOS HUD suppressed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sweeney/hud-worker/internal/config"
	"github.com/sweeney/hud-worker/internal/logging"
	"github.com/sweeney/hud-worker/internal/mqtt"
	"github.com/sweeney/hud-worker/internal/osd"
	"github.com/sweeney/hud-worker/internal/osevents"
	"github.com/sweeney/hud-worker/internal/procctl"
	"github.com/sweeney/hud-worker/internal/sensor"
	"github.com/sweeney/hud-worker/internal/status"
	"github.com/sweeney/hud-worker/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (empty uses built-in defaults)")
	poll := flag.Int("poll", 0, "Sensor polling interval in milliseconds")
	margin := flag.Float64("margin", 0, "Debounce margin on the 0..1 scale")
	broker := flag.String("broker", "", "MQTT broker address")
	httpAddr := flag.String("http", "", "HTTP status address (empty to disable)")
	suppress := flag.Bool("suppress", true, "Suppress the native HUD on startup")
	keyTap := flag.Bool("key-tap", true, "Listen for volume and brightness media keys")
	logLevel := flag.String("log-level", "", "Log level: error, warn, info, debug")
	logFormat := flag.String("log-format", "", "Log format: text, json")
	printState := flag.Bool("print-state", false, "Print current levels and exit")

	flag.Parse()

	// Only flags given on the command line override the config file.
	var o config.FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "poll":
			o.PollMS = poll
		case "margin":
			o.Margin = margin
		case "broker":
			o.Broker = broker
		case "http":
			o.HTTPAddr = httpAddr
		case "suppress":
			o.SuppressOnStart = suppress
		case "key-tap":
			o.KeyTap = keyTap
		case "log-level":
			o.LogLevel = logLevel
		case "log-format":
			o.LogFormat = logFormat
		}
	})

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}
	o.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := run(cfg, *printState, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, printState bool, logger *slog.Logger) error {
	runner := procctl.ExecRunner{}

	brightness := sensor.NewBrightness(
		sensor.IOKitProbe{},
		sensor.NewDiagProbe(cfg.Sensor.DiagPath, runner),
		logger.With("component", "sensor"),
	)
	volume := sensor.NewScriptVolume(runner)
	displays := sensor.CGDisplays{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if printState {
		return printLevels(ctx, volume, brightness, displays)
	}

	helper := procctl.NewHelper(cfg.OSD.Label, cfg.OSD.Process, runner)
	watchdog := osd.New(helper, helper, cfg.ToWatchdogConfig(), logger.With("component", "osd"))

	tracker := status.NewTracker(time.Now(), status.Config{
		PollMs:    int64(cfg.Poll.IntervalMS),
		Margin:    cfg.Debounce.Margin,
		MonitorMs: int64(cfg.OSD.MonitorMS),
		Broker:    cfg.MQTT.Broker,
		HTTPPort:  cfg.HTTP.Addr,
	})

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:         cfg.MQTT.Broker,
		ClientID:       cfg.MQTT.ClientID,
		ConnectTimeout: time.Duration(cfg.MQTT.ConnectTimeoutMS) * time.Millisecond,
		OnCommand: func(cmd mqtt.Command) {
			applyCommand(ctx, watchdog, cmd, logger)
			tracker.SetOSD(osdInfo(watchdog.Status()))
		},
		Logger: logger.With("component", "mqtt"),
	})
	if err != nil {
		watchdog.Close()
		return fmt.Errorf("init mqtt: %w", err)
	}
	// The native HUD must come back however the daemon exits. The client is
	// closed first so no command can suppress it again.
	defer func() {
		publisher.Close()
		restoreOSD(watchdog, cfg.RestoreTimeout(), logger)
	}()

	// From here on a signal must reach the loop so the deferred restore runs.
	sigCh, stopSignals := notifyShutdown()
	defer stopSignals()

	if cfg.OSD.SuppressOnStart {
		if err := watchdog.Suppress(ctx); err != nil {
			logger.Error("suppress native hud", "error", err)
		}
	}
	tracker.SetOSD(osdInfo(watchdog.Status()))
	tracker.SetMQTTConnected(publisher.IsConnected())

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		logger.Warn("failed to publish startup event", "error", err)
	} else {
		logger.Info("published startup event")
	}

	g, gctx := errgroup.WithContext(ctx)

	var fanout changeFanout
	if cfg.HTTP.Addr != "" {
		hub := web.NewHub(logger.With("component", "ws"), web.HubConfig{})
		srv := web.New(cfg.HTTP.Addr, tracker, hub, logger.With("component", "http"))
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		fanout = srv
		logger.Info("http status server listening", "addr", cfg.HTTP.Addr)
	}

	events := make(chan osevents.Event, 16)
	sources := []osevents.Source{
		osevents.NewWakeDetector(
			time.Duration(cfg.Sensor.WakeCheckMS)*time.Millisecond,
			time.Duration(cfg.Sensor.WakeThresholdMS)*time.Millisecond,
		),
		osevents.NewDisplayWatcher(displays, time.Duration(cfg.Sensor.DisplayPollMS)*time.Millisecond, logger.With("component", "displays")),
	}
	if cfg.Sensor.KeyTap {
		sources = append(sources, &osevents.KeyTap{})
	}
	g.Go(func() error {
		if err := osevents.Run(gctx, events, logger.With("component", "osevents"), sources...); err != nil {
			// Key and wake events are lost but polling carries on.
			logger.Error("os event sources stopped", "error", err)
		}
		return nil
	})

	logger.Info("started",
		"poll", cfg.PollInterval(),
		"margin", cfg.Debounce.Margin,
		"broker", cfg.MQTT.Broker,
		"key_tap", cfg.Sensor.KeyTap,
	)

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	err = runLoop(ctx, loopDeps{
		volume:     volume,
		brightness: brightness,
		displays:   displays,
		publisher:  publisher,
		mqttStatus: publisher,
		fanout:     fanout,
		osd:        watchdog,
		tracker:    tracker,
		margin:     cfg.Debounce.Margin,
		logger:     logger,
		now:        time.Now,
	}, ticker.C, events, sigCh)

	cancel()
	if werr := g.Wait(); werr != nil {
		logger.Warn("background tasks", "error", werr)
	}
	return err
}

// notifyShutdown starts catching SIGINT and SIGTERM. A signal that arrives
// before runLoop is waiting stays buffered on the channel.
func notifyShutdown() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

func restoreOSD(w *osd.Watchdog, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := w.Restore(ctx); err != nil {
		logger.Error("restore native hud", "error", err)
	} else {
		logger.Info("native hud restored")
	}
	w.Close()
}

func printLevels(ctx context.Context, volume sensor.Volume, brightness brightnessReader, displays sensor.Displays) error {
	level, muted, err := volume.Read(ctx)
	if err != nil {
		return fmt.Errorf("read volume: %w", err)
	}
	fmt.Printf("volume: %s (muted=%t)\n", mqtt.FormatValue(level), muted)

	if r, err := brightness.Read(ctx); err != nil {
		fmt.Printf("brightness: unavailable (%v)\n", err)
	} else {
		fmt.Printf("brightness: %s (%s)\n", mqtt.FormatValue(r.Value), brightness.Strategy())
	}

	if ds, err := displays.Active(); err != nil {
		fmt.Printf("displays: unavailable (%v)\n", err)
	} else {
		fmt.Printf("displays: %d\n", len(ds))
	}
	return nil
}

// commandTarget is the part of the watchdog the MQTT command topic drives.
type commandTarget interface {
	Suppress(ctx context.Context) error
	Restore(ctx context.Context) error
	Toggle(ctx context.Context) error
}

func applyCommand(ctx context.Context, w commandTarget, cmd mqtt.Command, logger *slog.Logger) {
	var err error
	switch cmd {
	case mqtt.CommandRestore:
		err = w.Restore(ctx)
	case mqtt.CommandSuppress:
		err = w.Suppress(ctx)
	default:
		err = w.Toggle(ctx)
	}
	if err != nil {
		logger.Error("hud command failed", "command", cmd.String(), "error", err)
		return
	}
	logger.Info("hud command applied", "command", cmd.String())
}

func osdInfo(s osd.Status) status.OSDInfo {
	return status.OSDInfo{
		State:       s.State.String(),
		Monitoring:  s.Monitoring,
		Respawns:    s.Respawns,
		Escalations: s.Escalations,
		Reasserts:   s.Reasserts,
		Errors:      s.Errors,
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return "UNKNOWN"
	}
}
