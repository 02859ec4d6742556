// Package config loads the hud-worker YAML configuration.
//
// Precedence is defaults, then the config file, then command-line flags.
// Validate runs last so the rest of the daemon can assume a well-formed config.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/hud-worker/internal/logging"
	"github.com/sweeney/hud-worker/internal/osd"
	"github.com/sweeney/hud-worker/internal/procctl"
	"github.com/sweeney/hud-worker/internal/sensor"
)

// Config is the top-level YAML configuration.
type Config struct {
	Poll     PollConfig     `yaml:"poll"`
	Debounce DebounceConfig `yaml:"debounce"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	HTTP     HTTPConfig     `yaml:"http"`
	OSD      OSDConfig      `yaml:"osd"`
	Sensor   SensorConfig   `yaml:"sensor"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type PollConfig struct {
	IntervalMS int `yaml:"interval_ms"`
}

type DebounceConfig struct {
	Margin float64 `yaml:"margin"`
}

type MQTTConfig struct {
	Broker           string `yaml:"broker"`
	ClientID         string `yaml:"client_id"`
	ConnectTimeoutMS int    `yaml:"connect_timeout_ms"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"` // empty disables the status server
}

type OSDConfig struct {
	Label            string `yaml:"label"`
	Process          string `yaml:"process"`
	SuppressOnStart  bool   `yaml:"suppress_on_start"`
	SettleMS         int    `yaml:"settle_ms"`
	MonitorMS        int    `yaml:"monitor_ms"`
	GraceMS          int    `yaml:"grace_ms"`
	WakeDelayMS      int    `yaml:"wake_delay_ms"`
	DisplayDelayMS   int    `yaml:"display_delay_ms"`
	RestoreTimeoutMS int    `yaml:"restore_timeout_ms"`
}

type SensorConfig struct {
	DiagPath        string `yaml:"diag_path"`
	KeyTap          bool   `yaml:"key_tap"`
	DisplayPollMS   int    `yaml:"display_poll_ms"`
	WakeCheckMS     int    `yaml:"wake_check_ms"`
	WakeThresholdMS int    `yaml:"wake_threshold_ms"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a fully-populated Config with defaults.
func DefaultConfig() Config {
	wd := osd.DefaultConfig()
	return Config{
		Poll:     PollConfig{IntervalMS: 200},
		Debounce: DebounceConfig{Margin: 0.05},
		MQTT: MQTTConfig{
			Broker:           "tcp://127.0.0.1:1883",
			ClientID:         "hud-worker",
			ConnectTimeoutMS: 10000,
		},
		HTTP: HTTPConfig{Addr: "127.0.0.1:8377"},
		OSD: OSDConfig{
			Label:            procctl.DefaultLabel,
			Process:          procctl.DefaultProcess,
			SuppressOnStart:  true,
			SettleMS:         int(wd.Settle / time.Millisecond),
			MonitorMS:        int(wd.MonitorInterval / time.Millisecond),
			GraceMS:          int(wd.Grace / time.Millisecond),
			WakeDelayMS:      int(wd.WakeDelay / time.Millisecond),
			DisplayDelayMS:   int(wd.DisplayDelay / time.Millisecond),
			RestoreTimeoutMS: 5000,
		},
		Sensor: SensorConfig{
			DiagPath:        sensor.DefaultDiagPath,
			KeyTap:          true,
			DisplayPollMS:   1000,
			WakeCheckMS:     5000,
			WakeThresholdMS: 10000,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig.
// Unknown fields are rejected so typos surface at startup.
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of DefaultConfig.
func Parse(b []byte) (Config, error) {
	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, errors.New("decode config yaml: unexpected trailing document")
	}
	return cfg, nil
}

// FlagOverrides holds command-line overrides. Nil pointers are ignored; a
// non-nil pointer is applied even if it holds a zero value.
type FlagOverrides struct {
	PollMS          *int
	Margin          *float64
	Broker          *string
	HTTPAddr        *string
	SuppressOnStart *bool
	KeyTap          *bool
	LogLevel        *string
	LogFormat       *string
}

// Apply merges the overrides into cfg.
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.PollMS != nil {
		cfg.Poll.IntervalMS = *o.PollMS
	}
	if o.Margin != nil {
		cfg.Debounce.Margin = *o.Margin
	}
	if o.Broker != nil {
		cfg.MQTT.Broker = *o.Broker
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
	}
	if o.SuppressOnStart != nil {
		cfg.OSD.SuppressOnStart = *o.SuppressOnStart
	}
	if o.KeyTap != nil {
		cfg.Sensor.KeyTap = *o.KeyTap
	}
	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
	if o.LogFormat != nil {
		cfg.Logging.Format = *o.LogFormat
	}
}

// Validate checks config invariants and returns a user-friendly error.
func (c *Config) Validate() error {
	if c.Poll.IntervalMS < 10 || c.Poll.IntervalMS > 10000 {
		return errors.New("poll.interval_ms must be between 10 and 10000")
	}
	if c.Debounce.Margin < 0 || c.Debounce.Margin >= 1 {
		return errors.New("debounce.margin must be in [0, 1)")
	}

	if c.MQTT.Broker == "" {
		return errors.New("mqtt.broker must not be empty")
	}
	if c.MQTT.ClientID == "" {
		return errors.New("mqtt.client_id must not be empty")
	}
	if c.MQTT.ConnectTimeoutMS <= 0 {
		return errors.New("mqtt.connect_timeout_ms must be > 0")
	}

	if c.OSD.Label == "" {
		return errors.New("osd.label must not be empty")
	}
	if c.OSD.Process == "" {
		return errors.New("osd.process must not be empty")
	}
	for name, v := range map[string]int{
		"osd.settle_ms":          c.OSD.SettleMS,
		"osd.monitor_ms":         c.OSD.MonitorMS,
		"osd.grace_ms":           c.OSD.GraceMS,
		"osd.wake_delay_ms":      c.OSD.WakeDelayMS,
		"osd.display_delay_ms":   c.OSD.DisplayDelayMS,
		"osd.restore_timeout_ms": c.OSD.RestoreTimeoutMS,
		"sensor.display_poll_ms": c.Sensor.DisplayPollMS,
		"sensor.wake_check_ms":   c.Sensor.WakeCheckMS,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if c.OSD.GraceMS >= c.OSD.MonitorMS {
		return errors.New("osd.grace_ms must be < osd.monitor_ms")
	}
	if c.Sensor.WakeThresholdMS < c.Sensor.WakeCheckMS {
		return errors.New("sensor.wake_threshold_ms must be >= sensor.wake_check_ms")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be %q or %q", "text", "json")
	}

	return nil
}

// PollInterval returns the detection loop period.
func (c *Config) PollInterval() time.Duration {
	return ms(c.Poll.IntervalMS)
}

// RestoreTimeout bounds the OSD restore performed on shutdown.
func (c *Config) RestoreTimeout() time.Duration {
	return ms(c.OSD.RestoreTimeoutMS)
}

// ToWatchdogConfig converts the osd section into watchdog timings.
func (c *Config) ToWatchdogConfig() osd.Config {
	return osd.Config{
		Settle:          ms(c.OSD.SettleMS),
		MonitorInterval: ms(c.OSD.MonitorMS),
		Grace:           ms(c.OSD.GraceMS),
		WakeDelay:       ms(c.OSD.WakeDelayMS),
		DisplayDelay:    ms(c.OSD.DisplayDelayMS),
	}
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// ExpandPath expands a leading "~" in a path using $HOME.
func ExpandPath(p string) string {
	if p == "" || p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
