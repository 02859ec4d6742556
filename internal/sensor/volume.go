package sensor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sweeney/hud-worker/internal/procctl"
)

// Volume reads the system output volume and mute flag.
type Volume interface {
	// Read returns the output level (0.0 to 1.0) and whether output is muted.
	Read(ctx context.Context) (level float64, muted bool, err error)
}

const osascriptPath = "/usr/bin/osascript"

// ScriptVolume reads volume settings through AppleScript.
type ScriptVolume struct {
	runner procctl.Runner
}

// NewScriptVolume creates a ScriptVolume. A nil runner uses procctl.ExecRunner.
func NewScriptVolume(runner procctl.Runner) *ScriptVolume {
	if runner == nil {
		runner = procctl.ExecRunner{}
	}
	return &ScriptVolume{runner: runner}
}

// Read runs "get volume settings".
func (v *ScriptVolume) Read(ctx context.Context) (float64, bool, error) {
	out, err := v.runner.Run(ctx, osascriptPath, "-e", "get volume settings")
	if err != nil {
		return 0, false, fmt.Errorf("read volume settings: %w", err)
	}
	return parseVolumeSettings(string(out))
}

// parseVolumeSettings parses
// "output volume:44, input volume:50, alert volume:100, output muted:false".
func parseVolumeSettings(s string) (float64, bool, error) {
	var (
		level             float64
		muted             bool
		haveLevel, haveMu bool
	)
	for _, field := range strings.Split(strings.TrimSpace(s), ",") {
		key, val, ok := strings.Cut(field, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		switch key {
		case "output volume":
			n, err := strconv.Atoi(val)
			if err != nil {
				return 0, false, fmt.Errorf("output volume %q: %w", val, err)
			}
			level = clamp(float64(n) / 100)
			haveLevel = true
		case "output muted":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return 0, false, fmt.Errorf("output muted %q: %w", val, err)
			}
			muted = b
			haveMu = true
		}
	}
	if !haveLevel || !haveMu {
		return 0, false, fmt.Errorf("incomplete volume settings %q", s)
	}
	return level, muted, nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
