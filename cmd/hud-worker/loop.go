package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/sweeney/hud-worker/internal/logic"
	"github.com/sweeney/hud-worker/internal/mqtt"
	"github.com/sweeney/hud-worker/internal/osd"
	"github.com/sweeney/hud-worker/internal/osevents"
	"github.com/sweeney/hud-worker/internal/sensor"
	"github.com/sweeney/hud-worker/internal/status"
)

type brightnessReader interface {
	Read(ctx context.Context) (sensor.Reading, error)
	Strategy() sensor.Strategy
}

// changeFanout receives every published change for the live status page.
type changeFanout interface {
	PublishChange(ev logic.ChangeEvent)
}

// osdEvents is the part of the watchdog the loop drives.
type osdEvents interface {
	OnSystemWake()
	OnDisplayConfigChange()
	Status() osd.Status
}

type loopDeps struct {
	volume     sensor.Volume
	brightness brightnessReader
	displays   sensor.Displays
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // optional
	fanout     changeFanout          // optional
	osd        osdEvents             // optional
	tracker    *status.Tracker       // optional
	margin     float64
	logger     *slog.Logger
	now        func() time.Time
}

// detector holds the per-channel debounce state owned by runLoop.
// A channel is nil until its first successful read seeds it.
type detector struct {
	d      loopDeps
	volume *logic.Channel
	bright *logic.Channel
	levels status.Levels
	counts logic.EventCounts

	volErr    readError
	brightErr readError
	dispErr   readError
}

func runLoop(ctx context.Context, d loopDeps, tick <-chan time.Time, events <-chan osevents.Event, sig <-chan os.Signal) error {
	if d.logger == nil {
		d.logger = slog.Default()
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.margin <= 0 {
		d.margin = logic.DefaultMargin
	}

	det := &detector{d: d}
	// Seed from the current readings so startup itself publishes nothing.
	det.poll(ctx)
	det.updateTracker()

	for {
		select {
		case s := <-sig:
			name := signalName(s)
			d.logger.Info("shutting down", "signal", s.String())
			event := mqtt.SystemEvent{
				Timestamp: d.now(),
				Event:     "SHUTDOWN",
				Reason:    name,
				Retained:  true,
			}
			if d.tracker != nil {
				det.updateTracker()
				snap := d.tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", name)
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				d.logger.Warn("failed to publish shutdown event", "error", err)
			} else {
				d.logger.Info("published shutdown event")
			}
			return nil

		case <-ctx.Done():
			return nil

		case <-tick:
			det.poll(ctx)
			det.updateTracker()

		case ev, ok := <-events:
			if !ok {
				// Sources stopped; keep polling.
				events = nil
				continue
			}
			det.handle(ev)
		}
	}
}

// poll reads every sensor once and publishes whatever escaped the margin.
func (det *detector) poll(ctx context.Context) {
	d := det.d

	level, muted, err := d.volume.Read(ctx)
	if err != nil {
		det.volErr.report(d.logger, "volume read failed", err)
	} else {
		det.volErr.clear(d.logger, "volume read recovered")
		det.levels.Volume, det.levels.Muted, det.levels.VolumeOK = level, muted, true
		s := logic.Sample{Value: level, Muted: muted}
		if det.volume == nil {
			det.volume = logic.NewChannel(logic.KindVolume, s, d.margin)
		} else if ev, ok := det.volume.Observe(s); ok {
			det.publish(ev)
		}
	}

	// With no display attached there is nothing to read brightness from.
	// A failed display query does not block the brightness read.
	if d.displays != nil {
		ds, err := d.displays.Active()
		if err != nil {
			det.dispErr.report(d.logger, "display query failed", err)
		} else {
			det.dispErr.clear(d.logger, "display query recovered")
			det.levels.Displays = len(ds)
			if len(ds) == 0 {
				return
			}
		}
	}

	r, err := d.brightness.Read(ctx)
	det.levels.Strategy = d.brightness.Strategy().String()
	if err != nil {
		det.brightErr.report(d.logger, "brightness read failed", err)
		return
	}
	det.brightErr.clear(d.logger, "brightness read recovered")
	det.levels.Brightness, det.levels.BrightnessOK = r.Value, true
	s := logic.Sample{Value: r.Value}
	if det.bright == nil {
		det.bright = logic.NewChannel(logic.KindBrightness, s, d.margin)
	} else if ev, ok := det.bright.Observe(s); ok {
		det.publish(ev)
	}
}

func (det *detector) handle(ev osevents.Event) {
	d := det.d
	d.logger.Debug("os event", "kind", ev.Kind.String())

	switch ev.Kind {
	case osevents.KindVolumeKey:
		det.boundary(det.volume)
	case osevents.KindBrightnessKey:
		det.boundary(det.bright)
	case osevents.KindWake:
		if d.osd != nil {
			d.osd.OnSystemWake()
		}
	case osevents.KindDisplayChange:
		if d.osd != nil {
			d.osd.OnDisplayConfigChange()
		}
	}
}

// boundary re-announces a channel pinned at 0.0 or 1.0 on a key press, when
// the level itself cannot move and so the poll would stay silent.
func (det *detector) boundary(ch *logic.Channel) {
	if ch == nil {
		return
	}
	if ev, ok := ch.Boundary(); ok {
		det.publish(ev)
	}
}

func (det *detector) publish(ev logic.ChangeEvent) {
	d := det.d
	switch ev.Kind {
	case logic.KindVolume:
		det.counts.Volume++
	case logic.KindBrightness:
		det.counts.Brightness++
	}

	d.logger.Info("event", "type", string(ev.Kind), "value", mqtt.FormatValue(ev.Value))
	if err := d.publisher.Publish(ev); err != nil {
		// Don't crash on publish failure; the event is dropped.
		d.logger.Warn("publish error", "type", string(ev.Kind), "error", err)
	}
	if d.fanout != nil {
		d.fanout.PublishChange(ev)
	}
}

// updateTracker refreshes the status page view.
func (det *detector) updateTracker() {
	d := det.d
	if d.tracker == nil {
		return
	}
	d.tracker.Update(det.levels, det.counts)
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	if d.osd != nil {
		d.tracker.SetOSD(osdInfo(d.osd.Status()))
	}
}

// readError logs a failing read once per distinct error instead of on every tick.
type readError struct {
	last string
}

func (r *readError) report(logger *slog.Logger, msg string, err error) {
	if s := err.Error(); s != r.last {
		r.last = s
		logger.Warn(msg, "error", err)
	}
}

func (r *readError) clear(logger *slog.Logger, msg string) {
	if r.last != "" {
		r.last = ""
		logger.Info(msg)
	}
}
